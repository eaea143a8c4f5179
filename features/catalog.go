package features

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/wesleyyjpark/506MBTAProject/daily"
	"github.com/wesleyyjpark/506MBTAProject/schedule"
	"github.com/wesleyyjpark/506MBTAProject/sources"
)

var (
	lags        = []int{1, 2, 3, 7}
	meanWindows = []int{3, 7, 14}
	stdWindows  = []int{7, 14}

	// weather metrics that get lags and rolling windows
	weatherDerived = []string{sources.Precip, sources.Snow, sources.SnowDepth, sources.Temp, sources.PrecipCover}
	weatherRawOnly = []string{sources.TempMax, sources.TempMin, sources.Humidity, sources.WindSpeed}

	performanceMetrics = []string{sources.TravelTime, sources.DwellTime, sources.HeadwayTrunk, sources.HeadwayBranch}
)

func q(source, col string) string { return source + "." + col }

func lagName(col string, k int) string  { return fmt.Sprintf("%s_lag_%dd", col, k) }
func meanName(col string, n int) string { return fmt.Sprintf("%s_mean_%dd", col, n) }
func stdName(col string, n int) string  { return fmt.Sprintf("%s_std_%dd", col, n) }

// Semester of a month: spring is January to May, summer June to August,
// fall September to December.
const (
	Spring = 0
	Summer = 1
	Fall   = 2
)

func Semester(m time.Month) int {
	switch {
	case m <= time.May:
		return Spring
	case m <= time.August:
		return Summer
	}
	return Fall
}

// dayOfWeek numbers Monday 0 through Sunday 6.
func dayOfWeek(d civil.Date) int {
	return (int(daily.Weekday(d)) + 6) % 7
}

func (b *Builder) define() []feature {
	var fs []feature
	add := func(name string, fn func(r *rowCtx) daily.Value) {
		fs = append(fs, feature{name: name, fn: fn})
	}
	date := func(r *rowCtx) civil.Date { return r.h.date }
	wd := func(r *rowCtx) time.Weekday { return daily.Weekday(r.h.date) }

	// temporal
	add("day_of_week", func(r *rowCtx) daily.Value { return daily.Some(float64(dayOfWeek(date(r)))) })
	add("month", func(r *rowCtx) daily.Value { return daily.Some(float64(date(r).Month)) })
	add("day_of_month", func(r *rowCtx) daily.Value { return daily.Some(float64(date(r).Day)) })
	add("is_weekend", func(r *rowCtx) daily.Value { return daily.Bool(wd(r) == time.Saturday || wd(r) == time.Sunday) })
	add("is_monday", func(r *rowCtx) daily.Value { return daily.Bool(wd(r) == time.Monday) })
	add("is_friday", func(r *rowCtx) daily.Value { return daily.Bool(wd(r) == time.Friday) })
	add("semester", func(r *rowCtx) daily.Value { return daily.Some(float64(Semester(date(r).Month))) })
	add("is_fall_semester", func(r *rowCtx) daily.Value { return daily.Bool(Semester(date(r).Month) == Fall) })
	add("is_spring_semester", func(r *rowCtx) daily.Value { return daily.Bool(Semester(date(r).Month) == Spring) })
	add("is_summer", func(r *rowCtx) daily.Value { return daily.Bool(Semester(date(r).Month) == Summer) })

	// schedule
	starts := func(from, to schedule.Clock) func(r *rowCtx) daily.Value {
		return func(r *rowCtx) daily.Value {
			return daily.Some(float64(b.pattern.StartsBetween(wd(r), from, to)))
		}
	}
	add("morning_class_starts", starts(schedule.At(8, 0), schedule.At(10, 59)))
	add("midday_class_starts", starts(schedule.At(11, 0), schedule.At(11, 59)))
	add("afternoon_class_starts", starts(schedule.At(12, 0), schedule.At(14, 59)))
	add("evening_class_starts", starts(schedule.At(15, 0), schedule.At(17, 59)))
	add("total_class_starts", func(r *rowCtx) daily.Value { return daily.Some(float64(b.pattern.Starts(wd(r)))) })
	add("class_minutes", func(r *rowCtx) daily.Value { return daily.Some(float64(b.pattern.Minutes(wd(r)))) })
	add("is_mwf_day", func(r *rowCtx) daily.Value { return daily.Bool(schedule.DayKey(wd(r)) == "MWF") })
	add("is_tr_day", func(r *rowCtx) daily.Value { return daily.Bool(schedule.DayKey(wd(r)) == "TR") })

	// weather
	for _, m := range append(append([]string(nil), weatherDerived...), weatherRawOnly...) {
		col := q(sources.Weather, m)
		add(m, func(r *rowCtx) daily.Value { return r.h.today(col) })
	}
	for _, m := range weatherDerived {
		b.series(add, m, q(sources.Weather, m), lags, meanWindows, stdWindows)
	}

	// alerts
	for _, m := range sources.AlertColumns() {
		col := q(sources.Alerts, m)
		add(m, func(r *rowCtx) daily.Value { return r.h.today(col) })
	}
	total := q(sources.Alerts, sources.TotalAlerts)
	b.series(add, sources.TotalAlerts, total, lags, meanWindows, []int{7})
	for _, m := range []string{sources.ConstructionAlerts, sources.TechnicalProblemAlerts} {
		b.series(add, m, q(sources.Alerts, m), []int{1, 7}, []int{7}, nil)
	}
	add("days_since_last_alert", func(r *rowCtx) daily.Value { return runLength(r.h, total, false) })
	add("alert_streak", func(r *rowCtx) daily.Value { return runLength(r.h, total, true) })
	add("alert_pattern_month", func(r *rowCtx) daily.Value { return b.monthPrior(r.h, total) })
	add("alert_pattern_dow", func(r *rowCtx) daily.Value { return b.weekdayPrior(r.h, total) })

	// performance
	for _, m := range performanceMetrics {
		col := q(sources.Performance, m)
		add(m, func(r *rowCtx) daily.Value { return r.h.today(col) })
		add(lagName(m, 1), func(r *rowCtx) daily.Value { return r.h.at(col, 1) })
		add(meanName(m, 7), func(r *rowCtx) daily.Value { return r.h.mean(col, 7) })
	}

	// interactions
	product := func(name string, factors ...string) {
		add(name, func(r *rowCtx) daily.Value {
			vals := make([]daily.Value, len(factors))
			for i, f := range factors {
				vals[i] = r.out[f]
			}
			return daily.Product(vals...)
		})
	}
	product("snow_x_classes", sources.Snow, "total_class_starts")
	product("precip_x_classes", sources.Precip, "total_class_starts")
	product("snow_x_morning_classes", sources.Snow, "morning_class_starts")
	product("snow_std_7d_x_classes", stdName(sources.Snow, 7), "total_class_starts")
	product("alerts_x_classes", sources.TotalAlerts, "total_class_starts")
	product("alerts_x_morning_classes", sources.TotalAlerts, "morning_class_starts")
	product("alerts_x_afternoon_classes", sources.TotalAlerts, "afternoon_class_starts")
	product("construction_x_class_starts", sources.ConstructionAlerts, "total_class_starts")
	product("morning_rush_alerts_x_classes", sources.MorningRushAlerts, "morning_class_starts")
	product("class_end_alerts_x_classes", sources.ClassEndTimeAlerts, "total_class_starts")
	product("precip_x_alerts", sources.Precip, sources.TotalAlerts)
	product("snow_x_alerts", sources.Snow, sources.TotalAlerts)
	product("snow_x_construction", sources.Snow, sources.ConstructionAlerts)
	product("precip_x_technical_problems", sources.Precip, sources.TechnicalProblemAlerts)
	product("alerts_x_monday", sources.TotalAlerts, "is_monday")
	product("alerts_x_friday", sources.TotalAlerts, "is_friday")
	product("alerts_x_weekend", sources.TotalAlerts, "is_weekend")
	product("month_x_alerts", "month", sources.TotalAlerts)
	product("fall_semester_x_alerts", "is_fall_semester", sources.TotalAlerts)
	product("spring_semester_x_alerts", "is_spring_semester", sources.TotalAlerts)
	product("construction_x_monday_x_classes", sources.ConstructionAlerts, "is_monday", "total_class_starts")
	product("snow_x_monday_x_classes", sources.Snow, "is_monday", "total_class_starts")
	add("alerts_x_weekday_x_classes", func(r *rowCtx) daily.Value {
		weekend, _ := r.out["is_weekend"].Get()
		return daily.Product(r.out[sources.TotalAlerts], daily.Some(1-weekend), r.out["total_class_starts"])
	})
	product("dwell_x_classes", sources.DwellTime, "total_class_starts")

	return fs
}

// series adds the lags and rolling statistics of col, named after name.
func (b *Builder) series(add func(string, func(*rowCtx) daily.Value), name, col string, lagDays, means, stds []int) {
	for _, k := range lagDays {
		add(lagName(name, k), func(r *rowCtx) daily.Value { return r.h.at(col, k) })
	}
	for _, n := range means {
		add(meanName(name, n), func(r *rowCtx) daily.Value { return r.h.mean(col, n) })
	}
	for _, n := range stds {
		add(stdName(name, n), func(r *rowCtx) daily.Value { return r.h.std(col, n) })
	}
}

// runLength counts consecutive days ending today whose count is positive
// (active) or zero (quiet). It stops at the first unknown or missing day.
func runLength(h *history, col string, active bool) daily.Value {
	if !h.today(col).Known() {
		return daily.Unknown
	}
	n := 0
	for k := 0; ; k++ {
		f, ok := h.at(col, k).Get()
		if !ok || (f > 0) != active {
			break
		}
		n++
	}
	return daily.Some(float64(n))
}

func (b *Builder) monthPrior(h *history, col string) daily.Value {
	month, year := h.date.Month, h.date.Year
	return priorMean(h, col, func(d civil.Date) bool {
		if d.Month != month {
			return false
		}
		return b.opts.Prior == ExpandingPrior || d.Year < year
	})
}

func (b *Builder) weekdayPrior(h *history, col string) daily.Value {
	weekday := daily.Weekday(h.date)
	return priorMean(h, col, func(d civil.Date) bool {
		if daily.Weekday(d) != weekday {
			return false
		}
		return b.opts.Prior == ExpandingPrior || d.Before(h.date)
	})
}

func priorMean(h *history, col string, keep func(d civil.Date) bool) daily.Value {
	var sum float64
	n := 0
	h.scanBack(col, func(d civil.Date, v daily.Value) bool {
		if f, ok := v.Get(); ok && keep(d) {
			sum += f
			n++
		}
		return true
	})
	if n == 0 {
		return daily.Unknown
	}
	return daily.Some(sum / float64(n))
}
