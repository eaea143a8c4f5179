package features

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wesleyyjpark/506MBTAProject/daily"
	"github.com/wesleyyjpark/506MBTAProject/schedule"
)

var monday = civil.Date{Year: 2023, Month: 1, Day: 2}

func vals(fs ...float64) []daily.Value {
	out := make([]daily.Value, len(fs))
	for i, f := range fs {
		out[i] = daily.Some(f)
	}
	return out
}

func fixture(t *testing.T, n int, cols map[string][]daily.Value) *daily.Table {
	t.Helper()
	dates := daily.DenseRange(monday, monday.AddDays(n-1))
	var cs []daily.Column
	for name, v := range cols {
		require.Len(t, v, n, name)
		cs = append(cs, daily.Column{Name: name, Values: v})
	}
	tbl, err := daily.NewTable(dates, cs...)
	require.NoError(t, err)
	return tbl
}

func build(t *testing.T, tbl *daily.Table, opts Options) *daily.Table {
	t.Helper()
	out, err := NewBuilder(schedule.Default(), opts).Build(context.Background(), tbl)
	require.NoError(t, err)
	return out
}

func TestNamesAreUnique(t *testing.T) {
	names := NewBuilder(nil, Options{}).Names()
	seen := make(map[string]bool)
	for _, n := range names {
		assert.False(t, seen[n], "duplicate feature %s", n)
		seen[n] = true
	}
	assert.Greater(t, len(names), 100)
	for _, want := range []string{"snow_lag_7d", "precip_mean_14d", "snow_std_7d", "total_alerts_std_7d",
		"alert_pattern_month", "days_since_last_alert", "morning_class_starts", "alerts_x_weekday_x_classes"} {
		assert.True(t, seen[want], want)
	}
}

// ── lags and windows ──

func TestLagIsCalendarOffset(t *testing.T) {
	tbl := fixture(t, 10, map[string][]daily.Value{
		"weather.snow": vals(0, 1, 2, 3, 4, 5, 6, 7, 8, 9),
	})
	out := build(t, tbl, Options{})

	assert.False(t, out.Get("snow_lag_1d", 0).Known())
	assert.Equal(t, daily.Some(3), out.Get("snow_lag_1d", 4))
	assert.Equal(t, daily.Some(1), out.Get("snow_lag_3d", 4))
	assert.False(t, out.Get("snow_lag_7d", 6).Known())
	assert.Equal(t, daily.Some(2), out.Get("snow_lag_7d", 9))
}

func TestLagAcrossGapIsUnknown(t *testing.T) {
	dates := []civil.Date{monday, monday.AddDays(1), monday.AddDays(3)}
	tbl, err := daily.NewTable(dates, daily.Column{Name: "weather.snow", Values: vals(5, 6, 7)})
	require.NoError(t, err)
	out := build(t, tbl, Options{})

	assert.False(t, out.Get("snow_lag_1d", 2).Known(), "the previous calendar day is missing")
	assert.Equal(t, daily.Some(6), out.Get("snow_lag_2d", 2))
}

func TestRollingWindowPolicies(t *testing.T) {
	tbl := fixture(t, 5, map[string][]daily.Value{
		"weather.snow": vals(3, 6, 9, 12, 15),
	})

	partial := build(t, tbl, Options{Window: PartialWindow})
	assert.Equal(t, daily.Some(3), partial.Get("snow_mean_3d", 0))
	assert.Equal(t, daily.Some(4.5), partial.Get("snow_mean_3d", 1))
	assert.Equal(t, daily.Some(6), partial.Get("snow_mean_3d", 2))
	assert.Equal(t, daily.Some(9), partial.Get("snow_mean_7d", 4))
	assert.False(t, partial.Get("snow_std_7d", 0).Known(), "one value has no sample deviation")

	strict := build(t, tbl, Options{Window: StrictWindow})
	assert.False(t, strict.Get("snow_mean_3d", 1).Known())
	assert.Equal(t, daily.Some(6), strict.Get("snow_mean_3d", 2))
	for i := 0; i < 5; i++ {
		assert.False(t, strict.Get("snow_mean_7d", i).Known())
		assert.False(t, strict.Get("snow_mean_14d", i).Known())
	}
}

func TestRollingSkipsUnknown(t *testing.T) {
	tbl := fixture(t, 4, map[string][]daily.Value{
		"weather.precip": {daily.Some(2), daily.Unknown, daily.Some(4), daily.Unknown},
	})
	out := build(t, tbl, Options{})

	assert.Equal(t, daily.Some(3), out.Get("precip_mean_3d", 2))
	assert.Equal(t, daily.Some(4), out.Get("precip_mean_3d", 3))
	v, ok := out.Get("precip_std_7d", 3).Get()
	require.True(t, ok)
	assert.InDelta(t, 1.41421356, v, 1e-6)
}

// ── look-ahead ──

func TestNoLookAhead(t *testing.T) {
	n := 40
	snow := make([]daily.Value, n)
	alerts := make([]daily.Value, n)
	dwell := make([]daily.Value, n)
	for i := range snow {
		snow[i] = daily.Some(float64(i % 5))
		alerts[i] = daily.Some(float64(i % 3))
		dwell[i] = daily.Some(float64(30 + i))
	}
	base := fixture(t, n, map[string][]daily.Value{
		"weather.snow":             snow,
		"alerts.total_alerts":      alerts,
		"performance.dwell_time_s": dwell,
	})
	before := build(t, base, Options{Workers: 3})

	cut := 25
	snow2 := append([]daily.Value(nil), snow...)
	alerts2 := append([]daily.Value(nil), alerts...)
	dwell2 := append([]daily.Value(nil), dwell...)
	for i := cut + 1; i < n; i++ {
		snow2[i] = daily.Some(1000)
		alerts2[i] = daily.Unknown
		dwell2[i] = daily.Some(-1)
	}
	changed := fixture(t, n, map[string][]daily.Value{
		"weather.snow":             snow2,
		"alerts.total_alerts":      alerts2,
		"performance.dwell_time_s": dwell2,
	})
	after := build(t, changed, Options{Workers: 3})

	for _, name := range NewBuilder(nil, Options{}).Names() {
		for i := 0; i <= cut; i++ {
			require.Equal(t, before.Get(name, i), after.Get(name, i), "%s changed at row %d", name, i)
		}
	}
}

func TestLeakageIsReported(t *testing.T) {
	tbl := fixture(t, 3, map[string][]daily.Value{"alerts.total_alerts": vals(1, 2, 3)})
	b := NewBuilder(nil, Options{})
	b.catalog = append(b.catalog, feature{name: "tomorrow", fn: func(r *rowCtx) daily.Value {
		return r.h.at("alerts.total_alerts", -1)
	}})

	_, err := b.Build(context.Background(), tbl)
	assert.ErrorIs(t, err, ErrLeakage)
}

// ── alert history ──

func TestAlertRuns(t *testing.T) {
	tbl := fixture(t, 6, map[string][]daily.Value{
		"alerts.total_alerts": vals(0, 2, 1, 0, 0, 3),
	})
	out := build(t, tbl, Options{})

	wantStreak := []float64{0, 1, 2, 0, 0, 1}
	wantQuiet := []float64{1, 0, 0, 1, 2, 0}
	for i := range wantStreak {
		assert.Equal(t, daily.Some(wantStreak[i]), out.Get("alert_streak", i), "streak row %d", i)
		assert.Equal(t, daily.Some(wantQuiet[i]), out.Get("days_since_last_alert", i), "quiet row %d", i)
	}
}

func TestAlertRunsUnknownWithoutSource(t *testing.T) {
	tbl := fixture(t, 3, map[string][]daily.Value{"reliability": vals(80, 81, 82)})
	out := build(t, tbl, Options{})
	for i := 0; i < 3; i++ {
		assert.False(t, out.Get("alert_streak", i).Known())
		assert.False(t, out.Get("alert_pattern_month", i).Known())
		assert.False(t, out.Get("snow_x_classes", i).Known())
		assert.True(t, out.Get("total_class_starts", i).Known())
	}
}

func TestAlertPatternMonthPolicies(t *testing.T) {
	jan2022 := civil.Date{Year: 2022, Month: 1, Day: 10}
	jan2023 := civil.Date{Year: 2023, Month: 1, Day: 10}
	dates := []civil.Date{jan2022, jan2022.AddDays(1), jan2023, jan2023.AddDays(1)}
	tbl, err := daily.NewTable(dates, daily.Column{Name: "alerts.total_alerts", Values: vals(2, 4, 10, 20)})
	require.NoError(t, err)

	expanding := build(t, tbl, Options{Prior: ExpandingPrior})
	assert.Equal(t, daily.Some(2), expanding.Get("alert_pattern_month", 0))
	assert.Equal(t, daily.Some(3), expanding.Get("alert_pattern_month", 1))
	assert.Equal(t, daily.Some(9), expanding.Get("alert_pattern_month", 3))

	prior := build(t, tbl, Options{Prior: PriorYearsPrior})
	assert.False(t, prior.Get("alert_pattern_month", 0).Known())
	assert.Equal(t, daily.Some(3), prior.Get("alert_pattern_month", 2))
	assert.Equal(t, daily.Some(3), prior.Get("alert_pattern_month", 3))
}

// ── schedule and calendar ──

func TestScheduleFeaturesAreDeterministic(t *testing.T) {
	tbl := fixture(t, 14, map[string][]daily.Value{})
	a := build(t, tbl, Options{})
	b := build(t, tbl, Options{Workers: 4})

	for _, name := range []string{"morning_class_starts", "total_class_starts", "class_minutes", "is_mwf_day"} {
		for i := 0; i < 14; i++ {
			assert.Equal(t, a.Get(name, i), b.Get(name, i))
			// the same weekday one week later
			if i+7 < 14 {
				assert.Equal(t, a.Get(name, i), a.Get(name, i+7))
			}
		}
	}
	assert.Equal(t, daily.Some(17), a.Get("total_class_starts", 0))
	assert.Equal(t, daily.Some(6), a.Get("morning_class_starts", 0))
	assert.Equal(t, daily.Some(0), a.Get("total_class_starts", 5), "saturday")
}

func TestTemporalFeatures(t *testing.T) {
	tbl := fixture(t, 7, map[string][]daily.Value{})
	out := build(t, tbl, Options{})

	assert.Equal(t, daily.Some(0), out.Get("day_of_week", 0))
	assert.Equal(t, daily.Some(1), out.Get("is_monday", 0))
	assert.Equal(t, daily.Some(1), out.Get("is_friday", 4))
	assert.Equal(t, daily.Some(1), out.Get("is_weekend", 6))
	assert.Equal(t, daily.Some(Spring), out.Get("semester", 0))
	assert.Equal(t, Fall, Semester(9))
	assert.Equal(t, Summer, Semester(7))
}

func TestInteractionsPropagateUnknown(t *testing.T) {
	tbl := fixture(t, 2, map[string][]daily.Value{
		"weather.snow":        {daily.Some(2), daily.Unknown},
		"alerts.total_alerts": vals(3, 1),
	})
	out := build(t, tbl, Options{})

	assert.Equal(t, daily.Some(34), out.Get("snow_x_classes", 0))
	assert.Equal(t, daily.Some(6), out.Get("snow_x_alerts", 0))
	assert.False(t, out.Get("snow_x_alerts", 1).Known())
	assert.Equal(t, daily.Some(51), out.Get("alerts_x_weekday_x_classes", 0))
	assert.Equal(t, daily.Some(3), out.Get("alerts_x_monday", 0))
	assert.Equal(t, daily.Some(0), out.Get("alerts_x_monday", 1))
}

func TestParsePolicies(t *testing.T) {
	w, err := ParseWindowPolicy("strict")
	require.NoError(t, err)
	assert.Equal(t, StrictWindow, w)
	_, err = ParseWindowPolicy("loose")
	assert.Error(t, err)

	p, err := ParsePriorPolicy("prior_years")
	require.NoError(t, err)
	assert.Equal(t, PriorYearsPrior, p)
	_, err = ParsePriorPolicy("global")
	assert.Error(t, err)
}
