package aggregate

import (
	"fmt"
	"math"
	"slices"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/wesleyyjpark/506MBTAProject/daily"
)

const (
	monthKey   = "month"
	weekdayKey = "weekday"
)

// PatternRow is one bucket of a pattern summary. Values holds the mean of
// each metric over the bucket's known cells.
type PatternRow struct {
	Key    string                 `json:"key"`
	Label  string                 `json:"label"`
	Days   int                    `json:"days"`
	Values map[string]daily.Value `json:"values"`
}

// MonthlyPatterns averages the metrics by calendar month across years.
func MonthlyPatterns(tbl *daily.Table, metrics []string) ([]PatternRow, error) {
	keys := make([]string, tbl.Len())
	names := make(map[string]string)
	for i, d := range tbl.Dates() {
		keys[i] = fmt.Sprintf("%02d", int(d.Month))
		names[keys[i]] = d.Month.String()
	}
	return patterns(tbl, metrics, monthKey, keys, names)
}

// WeekdayPatterns averages the metrics by day of week, Monday first.
func WeekdayPatterns(tbl *daily.Table, metrics []string) ([]PatternRow, error) {
	keys := make([]string, tbl.Len())
	names := make(map[string]string)
	for i, d := range tbl.Dates() {
		wd := daily.Weekday(d)
		keys[i] = fmt.Sprintf("%d", (int(wd)+6)%7)
		names[keys[i]] = wd.String()
	}
	return patterns(tbl, metrics, weekdayKey, keys, names)
}

func patterns(tbl *daily.Table, metrics []string, keyName string, keys []string, names map[string]string) ([]PatternRow, error) {
	for _, m := range metrics {
		if !tbl.Has(m) {
			return nil, fmt.Errorf("patterns: %w: %s", daily.ErrUnknownColumn, m)
		}
	}
	rows := make(map[string]*PatternRow)
	var order []string
	for _, k := range keys {
		r, ok := rows[k]
		if !ok {
			r = &PatternRow{Key: k, Label: names[k], Values: make(map[string]daily.Value, len(metrics))}
			rows[k] = r
			order = append(order, k)
		}
		r.Days++
	}
	if len(order) == 0 {
		return nil, nil
	}

	// group on the labels, which never parse as numbers
	byLabel := make(map[string]string, len(order))
	labelled := make([]string, len(keys))
	for i, k := range keys {
		labelled[i] = names[k]
		byLabel[names[k]] = k
	}
	df := Frame(tbl, metrics...).Mutate(series.New(labelled, series.String, keyName))
	if df.Err != nil {
		return nil, df.Err
	}
	for _, m := range metrics {
		known := df.Filter(dataframe.F{
			Colname:    m,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool { return !el.IsNA() && !math.IsNaN(el.Float()) },
		})
		if known.Err != nil {
			return nil, known.Err
		}
		if known.Nrow() == 0 {
			continue
		}
		groups := known.GroupBy(keyName)
		if groups.Err != nil {
			return nil, groups.Err
		}
		agg := groups.Aggregation([]dataframe.AggregationType{dataframe.Aggregation_MEAN}, []string{m})
		if agg.Err != nil {
			return nil, agg.Err
		}
		ls := agg.Col(keyName).Records()
		means := agg.Col(m + "_MEAN").Float()
		for i, l := range ls {
			rows[byLabel[l]].Values[m] = daily.Some(means[i])
		}
	}

	out := make([]PatternRow, 0, len(rows))
	slices.Sort(order)
	for _, k := range order {
		r := rows[k]
		for _, m := range metrics {
			if _, ok := r.Values[m]; !ok {
				r.Values[m] = daily.Unknown
			}
		}
		out = append(out, *r)
	}
	return out, nil
}
