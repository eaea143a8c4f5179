package sources

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/wesleyyjpark/506MBTAProject/daily"
)

// RawAlert is one row of the service-alert log, as published in the LAMP
// alert exports and stored by the collector. An alert that names several
// entities appears once per entity.
type RawAlert struct {
	AlertID         string   `csv:"alert_id" parquet:"alert_id,optional" json:"alert_id"`
	CreatedDatetime string   `csv:"created_datetime" parquet:"created_datetime,optional" json:"created_datetime"`
	ActiveStart     string   `csv:"active_period.start_datetime" parquet:"active_period.start_datetime,optional" json:"active_start"`
	ActiveEnd       string   `csv:"active_period.end_datetime" parquet:"active_period.end_datetime,optional" json:"active_end"`
	Cause           string   `csv:"cause" parquet:"cause,optional" json:"cause"`
	Effect          string   `csv:"effect" parquet:"effect,optional" json:"effect"`
	Severity        *float64 `csv:"severity" parquet:"severity,optional" json:"severity"`
	RouteID         string   `csv:"informed_entity.route_id" parquet:"informed_entity.route_id,optional" json:"route_id"`
	StopID          string   `csv:"informed_entity.stop_id" parquet:"informed_entity.stop_id,optional" json:"stop_id"`
}

// Alert column names, unqualified.
const (
	TotalAlerts            = "total_alerts"
	DelaysAlerts           = "delays_alerts"
	NoServiceAlerts        = "no_service_alerts"
	ReducedServiceAlerts   = "reduced_service_alerts"
	DetourAlerts           = "detour_alerts"
	ConstructionAlerts     = "construction_alerts"
	MaintenanceAlerts      = "maintenance_alerts"
	TechnicalProblemAlerts = "technical_problem_alerts"
	WeatherAlerts          = "weather_alerts"
	AccidentAlerts         = "accident_alerts"
	PoliceActivityAlerts   = "police_activity_alerts"
	HighSeverityAlerts     = "high_severity_alerts"
	MaxSeverity            = "max_severity"
	AlertDurationMin       = "total_alert_duration_min"
	BUAreaAlerts           = "bu_area_alerts"
	MorningRushAlerts      = "morning_rush_alerts"
	AfternoonRushAlerts    = "afternoon_rush_alerts"
	ClassEndTimeAlerts     = "class_end_time_alerts"
)

const highSeverity = 7

var (
	effectColumns = map[string]string{
		"SIGNIFICANT_DELAYS": DelaysAlerts,
		"NO_SERVICE":         NoServiceAlerts,
		"REDUCED_SERVICE":    ReducedServiceAlerts,
		"DETOUR":             DetourAlerts,
	}
	causeColumns = map[string]string{
		"CONSTRUCTION":      ConstructionAlerts,
		"MAINTENANCE":       MaintenanceAlerts,
		"TECHNICAL_PROBLEM": TechnicalProblemAlerts,
		"WEATHER":           WeatherAlerts,
		"ACCIDENT":          AccidentAlerts,
		"POLICE_ACTIVITY":   PoliceActivityAlerts,
	}
	// Stops serving the Boston University campus.
	buStops = map[string]bool{
		"place-bland": true,
		"place-buest": true,
		"place-buwst": true,
		"place-babck": true,
	}
)

// AlertColumns lists every daily alert column, unqualified.
func AlertColumns() []string {
	cols := make([]string, 0, len(alertReducers()))
	for c := range alertReducers() {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func alertReducers() map[string]daily.Reducer {
	r := map[string]daily.Reducer{
		TotalAlerts:         daily.Sum,
		HighSeverityAlerts:  daily.Sum,
		MaxSeverity:         daily.Max,
		AlertDurationMin:    daily.Sum,
		BUAreaAlerts:        daily.Sum,
		MorningRushAlerts:   daily.Sum,
		AfternoonRushAlerts: daily.Sum,
		ClassEndTimeAlerts:  daily.Sum,
	}
	for _, c := range effectColumns {
		r[c] = daily.Sum
	}
	for _, c := range causeColumns {
		r[c] = daily.Sum
	}
	return r
}

// AlertReader supplies raw alerts from a store instead of a file.
type AlertReader interface {
	ReadAlerts(ctx context.Context) ([]RawAlert, error)
}

// AlertsLoader counts service alerts per day. Alerts are dated by the start
// of their active period, falling back to the creation time. POSIX-second
// stamps are read in Location; nil means UTC.
type AlertsLoader struct {
	Path     string
	Reader   AlertReader
	Routes   RouteFilter
	Location *time.Location
}

func (l *AlertsLoader) Name() string { return Alerts }

func (l *AlertsLoader) Load(ctx context.Context) (*Result, error) {
	rows, err := l.read(ctx)
	if err != nil {
		return nil, err
	}
	return AggregateAlerts(ctx, rows, l.Routes, l.Location, l.Path)
}

func (l *AlertsLoader) read(ctx context.Context) ([]RawAlert, error) {
	if l.Path == "" && l.Reader != nil {
		rows, err := l.Reader.ReadAlerts(ctx)
		if err != nil {
			return nil, unavailable(Alerts, "", err)
		}
		return rows, nil
	}
	if isParquet(l.Path) {
		return readParquet[RawAlert](Alerts, l.Path, "created_datetime", "informed_entity.route_id")
	}
	var rows []RawAlert
	if _, err := decodeCSV(Alerts, l.Path, &rows, "created_datetime", "informed_entity.route_id"); err != nil {
		return nil, err
	}
	return rows, nil
}

// AggregateAlerts turns raw alert rows into the daily alert partial and the
// per-stop daily counts. Every counted alert contributes to each indicator
// column, so a day's bucket counts are zero rather than unknown when no alert
// falls in the bucket.
func AggregateAlerts(ctx context.Context, rows []RawAlert, routes RouteFilter, loc *time.Location, path string) (*Result, error) {
	p := daily.NewPartial(Alerts, alertReducers())
	type stopKey struct {
		date civil.Date
		stop string
	}
	stops := make(map[stopKey]int)

	for i, a := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !routes.Match(a.RouteID) {
			continue
		}

		stamp := a.ActiveStart
		if stamp == "" {
			stamp = a.CreatedDatetime
		}
		d, err := daily.ParseDateIn(stamp, loc)
		if err != nil {
			return nil, mismatch(Alerts, path, "row %d: %v", i+2, err)
		}

		vals := map[string]daily.Value{TotalAlerts: daily.Some(1)}
		if col, ok := effectColumns[a.Effect]; ok {
			vals[col] = daily.Some(1)
		}
		if col, ok := causeColumns[a.Cause]; ok {
			vals[col] = daily.Some(1)
		}
		vals[HighSeverityAlerts] = daily.Bool(false)
		if a.Severity != nil {
			vals[MaxSeverity] = daily.Some(*a.Severity)
			vals[HighSeverityAlerts] = daily.Bool(*a.Severity >= highSeverity)
		}
		if start, ok := daily.ParseTimestamp(a.ActiveStart); ok {
			if end, ok := daily.ParseTimestamp(a.ActiveEnd); ok && !end.Before(start) {
				vals[AlertDurationMin] = daily.Some(end.Sub(start).Minutes())
			}
		}
		vals[BUAreaAlerts] = daily.Bool(buStops[a.StopID])
		h, ok := daily.ParseHourIn(stamp, loc)
		vals[MorningRushAlerts] = daily.Bool(ok && h >= 7 && h <= 9)
		vals[AfternoonRushAlerts] = daily.Bool(ok && h >= 16 && h <= 18)
		vals[ClassEndTimeAlerts] = daily.Bool(ok && ((h >= 9 && h <= 11) || (h >= 13 && h <= 15)))
		p.Add(d, vals)

		if a.StopID != "" {
			stops[stopKey{d, a.StopID}]++
		}
	}

	res := &Result{Partial: p}
	for k, n := range stops {
		res.StopAlerts = append(res.StopAlerts, StopDay{Date: k.date, StopID: k.stop, Count: n, Mean: daily.Some(float64(n))})
	}
	sortStopDays(res.StopAlerts)
	return res, nil
}
