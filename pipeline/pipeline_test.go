package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wesleyyjpark/506MBTAProject/config"
	"github.com/wesleyyjpark/506MBTAProject/daily"
	"github.com/wesleyyjpark/506MBTAProject/features"
	"github.com/wesleyyjpark/506MBTAProject/labels"
	"github.com/wesleyyjpark/506MBTAProject/model"
	"github.com/wesleyyjpark/506MBTAProject/selection"
	"github.com/wesleyyjpark/506MBTAProject/sources"
)

func jan(d int) civil.Date { return civil.Date{Year: 2023, Month: 1, Day: d} }

func partial(source string, red daily.Reducer, col string, rows map[civil.Date][]float64) *daily.Partial {
	p := daily.NewPartial(source, map[string]daily.Reducer{col: red})
	for d, vs := range rows {
		for _, v := range vs {
			p.Add(d, map[string]daily.Value{col: daily.Some(v)})
		}
	}
	return p
}

// ── merge ──

func TestMergeIsDense(t *testing.T) {
	rel := partial(sources.Reliability, daily.Mean, daily.ReliabilityColumn, map[civil.Date][]float64{
		jan(1): {80},
		jan(3): {70, 90},
	})
	alerts := partial(sources.Alerts, daily.Sum, sources.TotalAlerts, map[civil.Date][]float64{
		jan(2): {2},
	})
	weather := partial(sources.Weather, daily.Mean, sources.Snow, map[civil.Date][]float64{
		jan(4): {1.5},
	})

	tbl, err := Merge([]*daily.Partial{rel, alerts, weather}, MergeOptions{Fill: DefaultFill()})
	require.NoError(t, err)

	assert.Equal(t, daily.DenseRange(jan(1), jan(4)), tbl.Dates())
	assert.Equal(t, []daily.Value{daily.Some(80), daily.Unknown, daily.Some(80), daily.Unknown},
		mustColumn(t, tbl, daily.ReliabilityColumn))
	assert.Equal(t, []daily.Value{daily.Some(0), daily.Some(2), daily.Some(0), daily.Some(0)},
		mustColumn(t, tbl, "alerts.total_alerts"))
	assert.Equal(t, []daily.Value{daily.Unknown, daily.Unknown, daily.Unknown, daily.Some(1.5)},
		mustColumn(t, tbl, "weather.snow"))
}

func TestMergeWithoutAlertsHasNoAlertColumns(t *testing.T) {
	rel := partial(sources.Reliability, daily.Mean, daily.ReliabilityColumn, map[civil.Date][]float64{
		jan(1): {80}, jan(2): {81},
	})
	tbl, err := Merge([]*daily.Partial{rel}, MergeOptions{Fill: DefaultFill()})
	require.NoError(t, err)
	assert.Equal(t, []string{daily.ReliabilityColumn}, tbl.Columns())
	assert.False(t, tbl.Get("alerts.total_alerts", 0).Known())
}

func TestMergeClipsRange(t *testing.T) {
	rel := partial(sources.Reliability, daily.Mean, daily.ReliabilityColumn, map[civil.Date][]float64{
		jan(1): {80}, jan(5): {81}, jan(9): {82},
	})
	tbl, err := Merge([]*daily.Partial{rel}, MergeOptions{Start: jan(3), End: jan(6)})
	require.NoError(t, err)
	assert.Equal(t, daily.DenseRange(jan(3), jan(6)), tbl.Dates())
	assert.Equal(t, daily.Some(81), tbl.Get(daily.ReliabilityColumn, 2))

	_, err = Merge([]*daily.Partial{rel}, MergeOptions{Start: civil.Date{Year: 2024, Month: 1, Day: 1}})
	assert.ErrorIs(t, err, ErrNoRows)
	_, err = Merge(nil, MergeOptions{})
	assert.ErrorIs(t, err, ErrNoRows)
	_, err = Merge([]*daily.Partial{daily.NewPartial(sources.Weather, nil)}, MergeOptions{})
	assert.ErrorIs(t, err, ErrNoRows)
}

func mustColumn(t *testing.T, tbl *daily.Table, name string) []daily.Value {
	t.Helper()
	vals, ok := tbl.Column(name)
	require.True(t, ok, name)
	return vals
}

// ── full run ──

// syntheticSet has reliability for 2022-01-01..2023-06-30 and alert counts
// that fall as reliability rises.
func syntheticSet(t *testing.T) *sources.Set {
	t.Helper()
	start := civil.Date{Year: 2022, Month: 1, Day: 1}
	end := civil.Date{Year: 2023, Month: 6, Day: 30}
	rel := daily.NewPartial(sources.Reliability, map[string]daily.Reducer{daily.ReliabilityColumn: daily.Mean})
	alerts := daily.NewPartial(sources.Alerts, map[string]daily.Reducer{
		sources.TotalAlerts:        daily.Sum,
		sources.ConstructionAlerts: daily.Sum,
	})
	for i, d := range daily.DenseRange(start, end) {
		r := float64(60 + (i*7)%40)
		rel.Add(d, map[string]daily.Value{daily.ReliabilityColumn: daily.Some(r)})
		if n := float64(int(100-r) / 5); n > 0 {
			alerts.Add(d, map[string]daily.Value{
				sources.TotalAlerts:        daily.Some(n),
				sources.ConstructionAlerts: daily.Some(float64(i % 2)),
			})
		}
	}
	return &sources.Set{
		Results: map[string]*sources.Result{
			sources.Reliability: {Partial: rel},
			sources.Alerts:      {Partial: alerts},
		},
		Status: []sources.Status{
			{Name: sources.Reliability, Used: true},
			{Name: sources.Alerts, Used: true},
			{Name: sources.Weather, Reason: "no path configured"},
		},
	}
}

func testOptions() Options {
	return Options{
		Start:       civil.Date{Year: 2019, Month: 1, Day: 1},
		Fill:        DefaultFill(),
		Features:    features.Options{Workers: 4},
		LabelPolicy: labels.Fixed,
		Thresholds:  labels.Reference,
		Selection:   selection.Options{K: 5, Bins: 10, Workers: 4},
		Evaluator: model.Evaluator{
			Params:       model.Params{NumTrees: 15, MaxDepth: 4, MinSamplesSplit: 10, MinSamplesLeaf: 4, Seed: 42, Workers: 4},
			TestStart:    civil.Date{Year: 2023, Month: 1, Day: 1},
			MinTrainRows: 100,
		},
	}
}

func TestProcess(t *testing.T) {
	res, err := Process(context.Background(), syntheticSet(t), testOptions())
	require.NoError(t, err)
	rep := res.Report

	assert.Equal(t, []string{sources.Reliability, sources.Alerts}, rep.SourcesUsed)
	assert.Equal(t, []string{sources.Weather}, rep.SourcesSkipped)
	assert.Equal(t, 546, rep.Rows)
	assert.Equal(t, civil.Date{Year: 2022, Month: 1, Day: 1}, rep.Start)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, labels.Reference, rep.Thresholds)

	require.Len(t, rep.Selection.Selected, 5)
	assert.Equal(t, 365, rep.Selection.Rows, "selection ranks training rows only")
	wantCols := append(append([]string(nil), rep.Selection.Selected...), labels.Column, daily.ReliabilityColumn)
	assert.Equal(t, wantCols, res.Wide.Columns())
	assert.Equal(t, res.Merged.Dates(), res.Wide.Dates())

	ev := rep.Evaluation
	require.NotNil(t, ev)
	assert.Equal(t, 365, ev.TrainRows)
	assert.Equal(t, 181, ev.TestRows)
	assert.Equal(t, rep.Selection.Selected, ev.Features)

	var names []string
	for _, s := range rep.Stages {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"merge", "features", "labels", "selection", "evaluate"}, names)
	total := 0
	for _, n := range rep.LabelCounts {
		total += n
	}
	assert.Equal(t, 546, total)
}

func TestProcessIsIdempotent(t *testing.T) {
	set := syntheticSet(t)
	a, err := Process(context.Background(), set, testOptions())
	require.NoError(t, err)
	b, err := Process(context.Background(), set, testOptions())
	require.NoError(t, err)

	assert.Equal(t, a.Features, b.Features)
	assert.Equal(t, a.Wide, b.Wide)
	assert.Equal(t, a.Report.Selection, b.Report.Selection)
	assert.Equal(t, a.Report.Evaluation, b.Report.Evaluation)
	assert.NotEqual(t, a.Report.RunID, b.Report.RunID)
}

func TestProcessInsufficientData(t *testing.T) {
	opts := testOptions()
	opts.Evaluator.MinTrainRows = 1000
	_, err := Process(context.Background(), syntheticSet(t), opts)
	assert.ErrorIs(t, err, model.ErrInsufficientData)
}

func TestRunSkipsUnavailableSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reliability.csv")
	var b strings.Builder
	b.WriteString("datetime,reliability\n")
	start := civil.Date{Year: 2022, Month: 6, Day: 1}
	for i, d := range daily.DenseRange(start, civil.Date{Year: 2023, Month: 2, Day: 28}) {
		fmt.Fprintf(&b, "%s,%d\n", d, 60+(i*7)%40)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	cfg := config.Default()
	cfg.Sources.Reliability = path
	cfg.Sources.Weather = filepath.Join(dir, "missing.csv")
	required, optional, err := Loaders(&cfg, nil)
	require.NoError(t, err)

	opts := testOptions()
	res, err := Run(context.Background(), required, optional, opts)
	require.NoError(t, err)

	assert.Equal(t, []string{sources.Reliability, sources.Schedule}, res.Report.SourcesUsed)
	assert.ElementsMatch(t, []string{sources.Weather, sources.Performance, sources.Alerts}, res.Report.SourcesSkipped)
	assert.Equal(t, "load", res.Report.Stages[0].Name)
	assert.False(t, res.Features.Has("alerts.total_alerts"))
	assert.True(t, res.Features.Has("total_alerts"), "alert features stay in the catalog as unknown")
}

func TestRunFailsWithoutReliability(t *testing.T) {
	cfg := config.Default()
	cfg.Sources.Reliability = filepath.Join(t.TempDir(), "none.csv")
	required, optional, err := Loaders(&cfg, nil)
	require.NoError(t, err)
	_, err = Run(context.Background(), required, optional, testOptions())
	assert.ErrorIs(t, err, sources.ErrSourceUnavailable)
}

func TestLoadersRouteAndZoneWiring(t *testing.T) {
	cfg := config.Default()
	cfg.Sources.ReliabilityRoutes = []string{"Green-B"}
	required, optional, err := Loaders(&cfg, nil)
	require.NoError(t, err)

	rel := required[0].(*sources.ReliabilityLoader)
	assert.Equal(t, sources.RouteFilter{"Green-B"}, rel.Routes)
	perf := optional[2].(*sources.PerformanceLoader)
	assert.Equal(t, sources.RouteFilter{"Green"}, perf.Routes)
	al := optional[3].(*sources.AlertsLoader)
	assert.Equal(t, sources.RouteFilter{"Green"}, al.Routes)
	require.NotNil(t, al.Location)
	assert.Equal(t, "America/New_York", al.Location.String())

	cfg.Sources.ReliabilityRoutes = nil
	required, _, err = Loaders(&cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, sources.RouteFilter{"Green"}, required[0].(*sources.ReliabilityLoader).Routes)

	cfg.Sources.Timezone = "Nowhere/Special"
	_, _, err = Loaders(&cfg, nil)
	assert.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.WindowPolicy = "strict"
	cfg.Labels.Policy = "tertile"
	opts, err := OptionsFromConfig(&cfg)
	require.NoError(t, err)

	assert.Equal(t, features.StrictWindow, opts.Features.Window)
	assert.Equal(t, labels.Tertile, opts.LabelPolicy)
	assert.Equal(t, 20, opts.Selection.K)
	assert.Equal(t, 300, opts.Evaluator.Params.NumTrees)
	assert.Equal(t, uint64(42), opts.Evaluator.Params.Seed)
	assert.Equal(t, civil.Date{Year: 2023, Month: 1, Day: 1}, opts.Evaluator.TestStart)

	cfg.Pipeline.AlertPriorPolicy = "global"
	_, err = OptionsFromConfig(&cfg)
	assert.Error(t, err)
}
