package sources

import (
	"context"
	"strings"

	"github.com/wesleyyjpark/506MBTAProject/daily"
)

type reliabilityRow struct {
	ServiceDate string   `csv:"service_date"`
	Datetime    string   `csv:"datetime"`
	RouteID     string   `csv:"gtfs_route_id"`
	MetricType  string   `csv:"metric_type"`
	Numerator   *float64 `csv:"otp_numerator"`
	Denominator *float64 `csv:"otp_denominator"`
	Pct         *float64 `csv:"pct"`
	Reliability *float64 `csv:"reliability"`
}

// ReliabilityLoader reads daily on-time percentages. Three layouts are
// accepted: the raw MBTA export with otp_numerator/otp_denominator, a
// processed file with a pct fraction, or a reliability percentage column.
type ReliabilityLoader struct {
	Path       string
	Routes     RouteFilter
	MetricType string
}

func (l *ReliabilityLoader) Name() string { return Reliability }

func (l *ReliabilityLoader) Load(ctx context.Context) (*Result, error) {
	var rows []reliabilityRow
	header, err := decodeCSV(Reliability, l.Path, &rows)
	if err != nil {
		return nil, err
	}

	raw := hasColumn(header, "otp_numerator") && hasColumn(header, "otp_denominator")
	dateCol := "datetime"
	switch {
	case raw:
		dateCol = "service_date"
	case hasColumn(header, "pct"), hasColumn(header, "reliability"):
	default:
		return nil, mismatch(Reliability, l.Path, "need otp_numerator/otp_denominator, pct or reliability column")
	}
	if !hasColumn(header, dateCol) {
		return nil, mismatch(Reliability, l.Path, "missing columns %s", dateCol)
	}

	p := daily.NewPartial(Reliability, map[string]daily.Reducer{daily.ReliabilityColumn: daily.Mean})
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if raw {
			if row.RouteID != "" && !l.Routes.Match(row.RouteID) {
				continue
			}
			if l.MetricType != "" && row.MetricType != "" && !strings.EqualFold(row.MetricType, l.MetricType) {
				continue
			}
		}

		ds := row.Datetime
		if raw {
			ds = row.ServiceDate
		}
		d, err := daily.ParseDate(ds)
		if err != nil {
			return nil, mismatch(Reliability, l.Path, "row %d: %v", i+2, err)
		}

		v := daily.Unknown
		switch {
		case raw:
			if row.Numerator != nil && row.Denominator != nil && *row.Denominator > 0 {
				v = daily.Some(100 * *row.Numerator / *row.Denominator)
			}
		case row.Reliability != nil:
			v = daily.Some(*row.Reliability)
		case row.Pct != nil:
			v = daily.Some(100 * *row.Pct)
		}
		if f, ok := v.Get(); ok && (f < 0 || f > 100) {
			return nil, mismatch(Reliability, l.Path, "row %d: reliability %.2f outside [0,100]", i+2, f)
		}
		p.Add(d, map[string]daily.Value{daily.ReliabilityColumn: v})
	}
	return &Result{Partial: p}, nil
}
