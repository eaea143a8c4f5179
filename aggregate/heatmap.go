package aggregate

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/wesleyyjpark/506MBTAProject/daily"
	"github.com/wesleyyjpark/506MBTAProject/sources"
)

const (
	stopCol  = "stop_id"
	monthCol = "month"
	countCol = "count"
	meanCol  = "mean"
)

// Heatmap is a stop by month grid. Cells is indexed [stop][month]; a stop
// with no observation in a month has an unknown cell.
type Heatmap struct {
	Metric string          `json:"metric"`
	Stops  []string        `json:"stops"`
	Names  []string        `json:"names"`
	Months []string        `json:"months"`
	Totals []float64       `json:"totals"`
	Cells  [][]daily.Value `json:"cells"`
}

// StationAlerts counts alerts per stop per month for the topN stops with
// the most alerts overall.
func StationAlerts(rows []sources.StopDay, topN int, names StopNames) (*Heatmap, error) {
	return heatmap("alerts", rows, topN, names, countCol, dataframe.Aggregation_SUM)
}

// Crowding averages the daily mean dwell time per stop per month for the
// topN stops with the longest mean dwell. Dwell is the crowding proxy.
func Crowding(rows []sources.StopDay, topN int, names StopNames) (*Heatmap, error) {
	known := make([]sources.StopDay, 0, len(rows))
	for _, r := range rows {
		if r.Mean.Known() {
			known = append(known, r)
		}
	}
	return heatmap("dwell_time_s", known, topN, names, meanCol, dataframe.Aggregation_MEAN)
}

func heatmap(metric string, rows []sources.StopDay, topN int, names StopNames, col string, agg dataframe.AggregationType) (*Heatmap, error) {
	hm := &Heatmap{Metric: metric}
	if len(rows) == 0 || topN <= 0 {
		return hm, nil
	}

	stops := make([]string, len(rows))
	months := make([]string, len(rows))
	counts := make([]int, len(rows))
	means := make([]float64, len(rows))
	for i, r := range rows {
		stops[i] = r.StopID
		months[i] = fmt.Sprintf("%04d-%02d", r.Date.Year, int(r.Date.Month))
		counts[i] = r.Count
		means[i] = r.Mean.Or(math.NaN())
	}
	df := dataframe.New(
		series.New(stops, series.String, stopCol),
		series.New(months, series.String, monthCol),
		series.New(counts, series.Int, countCol),
		series.New(means, series.Float, meanCol),
	)
	if df.Err != nil {
		return nil, df.Err
	}

	aggName := fmt.Sprintf("%s_%s", col, agg)
	byStop := df.GroupBy(stopCol)
	if byStop.Err != nil {
		return nil, byStop.Err
	}
	totals := byStop.Aggregation([]dataframe.AggregationType{agg}, []string{col})
	if totals.Err != nil {
		return nil, totals.Err
	}
	type ranked struct {
		stop  string
		total float64
	}
	var rank []ranked
	tStops := totals.Col(stopCol).Records()
	tVals := totals.Col(aggName).Float()
	for i := range tStops {
		rank = append(rank, ranked{tStops[i], tVals[i]})
	}
	slices.SortFunc(rank, func(a, b ranked) int {
		switch {
		case a.total > b.total:
			return -1
		case a.total < b.total:
			return 1
		}
		return strings.Compare(a.stop, b.stop)
	})
	rank = rank[:min(topN, len(rank))]

	row := make(map[string]int, len(rank))
	for i, r := range rank {
		row[r.stop] = i
		hm.Stops = append(hm.Stops, r.stop)
		hm.Names = append(hm.Names, names.Name(r.stop))
		hm.Totals = append(hm.Totals, r.total)
	}

	byCell := df.GroupBy(stopCol, monthCol)
	if byCell.Err != nil {
		return nil, byCell.Err
	}
	cells := byCell.Aggregation([]dataframe.AggregationType{agg}, []string{col})
	if cells.Err != nil {
		return nil, cells.Err
	}
	cStops := cells.Col(stopCol).Records()
	cMonths := cells.Col(monthCol).Records()
	cVals := cells.Col(aggName).Float()

	monthSet := make(map[string]bool)
	for i, s := range cStops {
		if _, ok := row[s]; ok {
			monthSet[cMonths[i]] = true
		}
	}
	for m := range monthSet {
		hm.Months = append(hm.Months, m)
	}
	slices.Sort(hm.Months)
	monthIdx := make(map[string]int, len(hm.Months))
	for j, m := range hm.Months {
		monthIdx[m] = j
	}

	hm.Cells = make([][]daily.Value, len(hm.Stops))
	for i := range hm.Cells {
		hm.Cells[i] = make([]daily.Value, len(hm.Months))
	}
	for i, s := range cStops {
		r, ok := row[s]
		if !ok {
			continue
		}
		hm.Cells[r][monthIdx[cMonths[i]]] = daily.Some(cVals[i])
	}
	return hm, nil
}
