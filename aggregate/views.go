package aggregate

import (
	"github.com/wesleyyjpark/506MBTAProject/daily"
	"github.com/wesleyyjpark/506MBTAProject/sources"
)

// PatternMetrics are the columns summarised by the pattern views, when the
// table has them.
var PatternMetrics = []string{
	daily.ReliabilityColumn,
	"weather.snow",
	"weather.precip",
	"alerts.total_alerts",
	"total_class_starts",
	"performance.dwell_time_s",
}

type Views struct {
	Monthly       []PatternRow `json:"monthly"`
	Weekday       []PatternRow `json:"weekday"`
	StationAlerts *Heatmap     `json:"station_alerts"`
	Crowding      *Heatmap     `json:"crowding"`
}

// Build computes every view from the feature table and the per-stop rows of
// the loaded sources.
func Build(tbl *daily.Table, set *sources.Set, topN int, names StopNames) (*Views, error) {
	var metrics []string
	for _, m := range PatternMetrics {
		if tbl.Has(m) {
			metrics = append(metrics, m)
		}
	}

	v := &Views{}
	var err error
	if v.Monthly, err = MonthlyPatterns(tbl, metrics); err != nil {
		return nil, err
	}
	if v.Weekday, err = WeekdayPatterns(tbl, metrics); err != nil {
		return nil, err
	}

	var alerts, dwell []sources.StopDay
	if r, ok := set.Get(sources.Alerts); ok {
		alerts = r.StopAlerts
	}
	if r, ok := set.Get(sources.Performance); ok {
		dwell = r.StopDwell
	}
	if v.StationAlerts, err = StationAlerts(alerts, topN, names); err != nil {
		return nil, err
	}
	if v.Crowding, err = Crowding(dwell, topN, names); err != nil {
		return nil, err
	}
	return v, nil
}
