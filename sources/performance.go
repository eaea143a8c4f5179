package sources

import (
	"context"
	"sort"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/wesleyyjpark/506MBTAProject/daily"
)

// Performance column names, unqualified.
const (
	TravelTime    = "travel_time_s"
	DwellTime     = "dwell_time_s"
	HeadwayTrunk  = "headway_trunk_s"
	HeadwayBranch = "headway_branch_s"
)

var performanceMetrics = []string{TravelTime, DwellTime, HeadwayTrunk, HeadwayBranch}

type performanceCSVRow struct {
	ServiceDate   string   `csv:"service_date"`
	RouteID       string   `csv:"route_id"`
	StopID        string   `csv:"stop_id"`
	TravelTime    *float64 `csv:"travel_time_seconds"`
	DwellTime     *float64 `csv:"dwell_time_seconds"`
	HeadwayTrunk  *float64 `csv:"headway_trunk_seconds"`
	HeadwayBranch *float64 `csv:"headway_branch_seconds"`
}

// PerformanceParquetRow mirrors the LAMP subway on-time performance files,
// where service_date is an integer YYYYMMDD.
type PerformanceParquetRow struct {
	ServiceDate   int64  `parquet:"service_date"`
	RouteID       string `parquet:"route_id"`
	StopID        string `parquet:"stop_id,optional"`
	TravelTime    *int64 `parquet:"travel_time_seconds,optional"`
	DwellTime     *int64 `parquet:"dwell_time_seconds,optional"`
	HeadwayTrunk  *int64 `parquet:"headway_trunk_seconds,optional"`
	HeadwayBranch *int64 `parquet:"headway_branch_seconds,optional"`
}

type observation struct {
	date    civil.Date
	routeID string
	stopID  string
	metrics [4]daily.Value
}

// PerformanceLoader reads stop-level travel, dwell and headway times and
// averages them per day. CSV and parquet inputs are accepted.
type PerformanceLoader struct {
	Path   string
	Routes RouteFilter
}

func (l *PerformanceLoader) Name() string { return Performance }

func (l *PerformanceLoader) Load(ctx context.Context) (*Result, error) {
	obs, err := l.read()
	if err != nil {
		return nil, err
	}

	type acc struct {
		sum [4]float64
		n   [4]int
	}
	days := make(map[civil.Date]*acc)
	type stopKey struct {
		date civil.Date
		stop string
	}
	dwell := make(map[stopKey]*acc)

	for _, o := range obs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !l.Routes.Match(o.routeID) {
			continue
		}
		a := days[o.date]
		if a == nil {
			a = &acc{}
			days[o.date] = a
		}
		for j, v := range o.metrics {
			if f, ok := v.Get(); ok {
				a.sum[j] += f
				a.n[j]++
			}
		}
		if f, ok := o.metrics[1].Get(); ok && o.stopID != "" {
			k := stopKey{o.date, o.stopID}
			s := dwell[k]
			if s == nil {
				s = &acc{}
				dwell[k] = s
			}
			s.sum[0] += f
			s.n[0]++
		}
	}

	reducers := make(map[string]daily.Reducer, len(performanceMetrics))
	for _, m := range performanceMetrics {
		reducers[m] = daily.Mean
	}
	p := daily.NewPartial(Performance, reducers)
	for d, a := range days {
		vals := make(map[string]daily.Value, len(performanceMetrics))
		for j, m := range performanceMetrics {
			if a.n[j] > 0 {
				vals[m] = daily.Some(a.sum[j] / float64(a.n[j]))
			} else {
				vals[m] = daily.Unknown
			}
		}
		p.Add(d, vals)
	}

	res := &Result{Partial: p}
	for k, s := range dwell {
		res.StopDwell = append(res.StopDwell, StopDay{
			Date:   k.date,
			StopID: k.stop,
			Count:  s.n[0],
			Mean:   daily.Some(s.sum[0] / float64(s.n[0])),
		})
	}
	sortStopDays(res.StopDwell)
	return res, nil
}

func (l *PerformanceLoader) read() ([]observation, error) {
	if isParquet(l.Path) {
		rows, err := readParquet[PerformanceParquetRow](Performance, l.Path, "service_date", "route_id")
		if err != nil {
			return nil, err
		}
		out := make([]observation, 0, len(rows))
		for i, r := range rows {
			d, err := daily.ParseDate(strconv.FormatInt(r.ServiceDate, 10))
			if err != nil {
				return nil, mismatch(Performance, l.Path, "row %d: %v", i, err)
			}
			out = append(out, observation{
				date: d, routeID: r.RouteID, stopID: r.StopID,
				metrics: [4]daily.Value{intValue(r.TravelTime), intValue(r.DwellTime), intValue(r.HeadwayTrunk), intValue(r.HeadwayBranch)},
			})
		}
		return out, nil
	}

	var rows []performanceCSVRow
	if _, err := decodeCSV(Performance, l.Path, &rows, "service_date", "route_id"); err != nil {
		return nil, err
	}
	out := make([]observation, 0, len(rows))
	for i, r := range rows {
		d, err := daily.ParseDate(r.ServiceDate)
		if err != nil {
			return nil, mismatch(Performance, l.Path, "row %d: %v", i+2, err)
		}
		out = append(out, observation{
			date: d, routeID: r.RouteID, stopID: r.StopID,
			metrics: [4]daily.Value{daily.FromPtr(r.TravelTime), daily.FromPtr(r.DwellTime), daily.FromPtr(r.HeadwayTrunk), daily.FromPtr(r.HeadwayBranch)},
		})
	}
	return out, nil
}

func intValue(p *int64) daily.Value {
	if p == nil {
		return daily.Unknown
	}
	return daily.Some(float64(*p))
}

func sortStopDays(rows []StopDay) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].StopID < rows[j].StopID
	})
}
