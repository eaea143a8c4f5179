// Package pipeline wires the stages of a reliability run together: load,
// merge, build features, label, select and evaluate.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/wesleyyjpark/506MBTAProject/config"
	"github.com/wesleyyjpark/506MBTAProject/daily"
	"github.com/wesleyyjpark/506MBTAProject/features"
	"github.com/wesleyyjpark/506MBTAProject/labels"
	"github.com/wesleyyjpark/506MBTAProject/model"
	"github.com/wesleyyjpark/506MBTAProject/selection"
	"github.com/wesleyyjpark/506MBTAProject/sources"
)

type Options struct {
	Start       civil.Date
	End         civil.Date
	Fill        map[string]FillPolicy
	Features    features.Options
	LabelPolicy labels.Policy
	Thresholds  labels.Thresholds
	Selection   selection.Options
	Evaluator   model.Evaluator
}

func OptionsFromConfig(cfg *config.Config) (Options, error) {
	window, err := features.ParseWindowPolicy(cfg.Pipeline.WindowPolicy)
	if err != nil {
		return Options{}, err
	}
	prior, err := features.ParsePriorPolicy(cfg.Pipeline.AlertPriorPolicy)
	if err != nil {
		return Options{}, err
	}
	policy, err := labels.ParsePolicy(cfg.Labels.Policy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Start: cfg.Pipeline.Start,
		End:   cfg.Pipeline.End,
		Fill:  DefaultFill(),
		Features: features.Options{
			Window:  window,
			Prior:   prior,
			Workers: cfg.Pipeline.Workers,
		},
		LabelPolicy: policy,
		Thresholds:  labels.Thresholds{LowBelow: cfg.Labels.LowBelow, HighAbove: cfg.Labels.HighAbove},
		Selection: selection.Options{
			K:       cfg.Pipeline.TopK,
			Bins:    cfg.Pipeline.SelectionBins,
			Fill:    cfg.Pipeline.FillValue,
			Workers: cfg.Pipeline.Workers,
		},
		Evaluator: model.Evaluator{
			Params: model.Params{
				NumTrees:        cfg.Model.NumTrees,
				MaxDepth:        cfg.Model.MaxDepth,
				MinSamplesSplit: cfg.Model.MinSamplesSplit,
				MinSamplesLeaf:  cfg.Model.MinSamplesLeaf,
				Seed:            cfg.Model.Seed,
				Workers:         cfg.Pipeline.Workers,
			},
			TestStart:    cfg.Model.TestStart,
			MinTrainRows: cfg.Model.MinTrainRows,
			Fill:         cfg.Pipeline.FillValue,
		},
	}, nil
}

// Loaders builds the source loaders named by cfg. Reliability is required;
// the rest are optional. alerts, when non-nil, replaces the alert file.
func Loaders(cfg *config.Config, alerts sources.AlertReader) (required, optional []sources.Loader, err error) {
	loc, err := cfg.Sources.Location()
	if err != nil {
		return nil, nil, err
	}
	routes := sources.RouteFilter(cfg.Sources.Routes)
	required = []sources.Loader{
		&sources.ReliabilityLoader{
			Path:       cfg.Sources.Reliability,
			Routes:     sources.RouteFilter(cfg.Sources.ReliabilityFilter()),
			MetricType: cfg.Sources.MetricType,
		},
	}
	al := &sources.AlertsLoader{Path: cfg.Sources.Alerts, Routes: routes, Location: loc}
	if cfg.Sources.AlertsFromDB && alerts != nil {
		al.Path = ""
		al.Reader = alerts
	}
	optional = []sources.Loader{
		&sources.WeatherLoader{Path: cfg.Sources.Weather},
		&sources.ScheduleLoader{Path: cfg.Sources.Schedule},
		&sources.PerformanceLoader{Path: cfg.Sources.Performance, Routes: routes},
		al,
	}
	return required, optional, nil
}

type Stage struct {
	Name     string        `json:"name"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration_ns"`
}

// Report summarises one run. It is what gets stored, published and served.
type Report struct {
	RunID          string               `json:"run_id"`
	StartedAt      time.Time            `json:"started_at"`
	Duration       time.Duration        `json:"duration_ns"`
	Sources        []sources.Status     `json:"sources"`
	SourcesUsed    []string             `json:"sources_used"`
	SourcesSkipped []string             `json:"sources_skipped"`
	Start          civil.Date           `json:"start"`
	End            civil.Date           `json:"end"`
	Rows           int                  `json:"rows"`
	FeatureCount   int                  `json:"feature_count"`
	LabelPolicy    labels.Policy        `json:"label_policy"`
	Thresholds     labels.Thresholds    `json:"thresholds"`
	LabelCounts    map[string]int       `json:"label_counts"`
	Selection      *selection.Selection `json:"selection"`
	Evaluation     *model.Evaluation    `json:"evaluation"`
	Stages         []Stage              `json:"stages"`
}

type Result struct {
	Sources *sources.Set
	// Merged is the dense joined table before feature engineering.
	Merged *daily.Table
	// Features holds every feature plus the label column.
	Features *daily.Table
	// Wide keeps the selected features, the label and reliability.
	Wide   *daily.Table
	Report *Report
}

// Run loads every source and processes them.
func Run(ctx context.Context, required, optional []sources.Loader, opts Options) (*Result, error) {
	start := time.Now()
	set, err := sources.LoadAll(ctx, required, optional)
	if err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	load := Stage{Name: "load", Duration: time.Since(start)}
	for _, p := range set.Partials() {
		load.Rows += len(p.Records)
	}
	observe(load)

	res, err := Process(ctx, set, opts)
	if err != nil {
		return nil, err
	}
	res.Report.StartedAt = start.UTC()
	res.Report.Duration = time.Since(start)
	res.Report.Stages = append([]Stage{load}, res.Report.Stages...)
	return res, nil
}

// Process runs every stage after loading. It is deterministic for a given
// set and options apart from the run id and timings.
func Process(ctx context.Context, set *sources.Set, opts Options) (*Result, error) {
	res, err := process(ctx, set, opts)
	if err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	runsTotal.WithLabelValues("ok").Inc()
	return res, nil
}

func process(ctx context.Context, set *sources.Set, opts Options) (*Result, error) {
	rep := &Report{
		RunID:       uuid.NewString(),
		StartedAt:   time.Now().UTC(),
		Sources:     set.Status,
		LabelPolicy: opts.LabelPolicy,
	}
	for _, st := range set.Status {
		if st.Used {
			rep.SourcesUsed = append(rep.SourcesUsed, st.Name)
			continue
		}
		rep.SourcesSkipped = append(rep.SourcesSkipped, st.Name)
		sourcesSkipped.WithLabelValues(st.Name).Inc()
	}
	res := &Result{Sources: set, Report: rep}

	var err error
	err = rep.stage("merge", func() (int, error) {
		fill := opts.Fill
		if fill == nil {
			fill = DefaultFill()
		}
		res.Merged, err = Merge(set.Partials(), MergeOptions{Start: opts.Start, End: opts.End, Fill: fill})
		if err != nil {
			return 0, err
		}
		if !res.Merged.Has(daily.ReliabilityColumn) {
			return 0, fmt.Errorf("merge: %w: no %s column", sources.ErrSchemaMismatch, daily.ReliabilityColumn)
		}
		return res.Merged.Len(), nil
	})
	if err != nil {
		return nil, err
	}
	rep.Start, rep.End, _ = res.Merged.Span()
	rep.Rows = res.Merged.Len()

	builder := features.NewBuilder(set.Pattern(), opts.Features)
	rep.FeatureCount = len(builder.Names())
	var built *daily.Table
	err = rep.stage("features", func() (int, error) {
		built, err = builder.Build(ctx, res.Merged)
		if err != nil {
			return 0, err
		}
		return built.Len(), nil
	})
	if err != nil {
		return nil, err
	}

	err = rep.stage("labels", func() (int, error) {
		rep.Thresholds, err = labels.Fit(opts.LabelPolicy, opts.Thresholds, trainReliability(built, opts.Evaluator.TestStart))
		if err != nil {
			return 0, err
		}
		res.Features, err = labels.Apply(built, rep.Thresholds)
		if err != nil {
			return 0, err
		}
		rep.LabelCounts = make(map[string]int)
		n := 0
		for c, k := range labels.Counts(res.Features) {
			rep.LabelCounts[c.String()] = k
			n += k
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}

	err = rep.stage("selection", func() (int, error) {
		train, _ := model.Split(res.Features, opts.Evaluator.TestStart)
		rep.Selection, err = selection.Rank(ctx, train, builder.Names(), opts.Selection)
		if err != nil {
			return 0, err
		}
		res.Wide, err = selection.Reduce(res.Features, rep.Selection)
		if err != nil {
			return 0, err
		}
		return rep.Selection.Rows, nil
	})
	if err != nil {
		return nil, err
	}

	err = rep.stage("evaluate", func() (int, error) {
		rep.Evaluation, err = opts.Evaluator.Evaluate(ctx, res.Wide, rep.Selection.Selected)
		if err != nil {
			return 0, err
		}
		testAccuracy.Set(rep.Evaluation.Accuracy)
		baselineAccuracy.Set(rep.Evaluation.Baseline)
		return rep.Evaluation.TestRows, nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("run %s completed: %d days, %d features, selected %d, accuracy=%.3f baseline=%.3f",
		rep.RunID, rep.Rows, rep.FeatureCount, len(rep.Selection.Selected),
		rep.Evaluation.Accuracy, rep.Evaluation.Baseline)
	return res, nil
}

// trainReliability returns the known reliability values dated before
// testStart.
func trainReliability(tbl *daily.Table, testStart civil.Date) []float64 {
	var out []float64
	for i, d := range tbl.Dates() {
		if !d.Before(testStart) {
			break
		}
		if v, ok := tbl.Get(daily.ReliabilityColumn, i).Get(); ok {
			out = append(out, v)
		}
	}
	return out
}

func (r *Report) stage(name string, fn func() (int, error)) error {
	start := time.Now()
	rows, err := fn()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	s := Stage{Name: name, Rows: rows, Duration: time.Since(start)}
	r.Stages = append(r.Stages, s)
	observe(s)
	return nil
}

func observe(s Stage) {
	stageDuration.WithLabelValues(s.Name).Observe(s.Duration.Seconds())
	stageRows.WithLabelValues(s.Name).Set(float64(s.Rows))
}
