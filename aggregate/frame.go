// Package aggregate builds the summary views served to dashboards: monthly
// and weekday patterns of the daily table, and station heatmaps.
package aggregate

import (
	"io"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/wesleyyjpark/506MBTAProject/daily"
)

const DateColumn = "date"

// Frame converts the named columns of tbl, or all of them when none are
// named, into a dataframe with a leading date column. Unknown cells
// become NaN.
func Frame(tbl *daily.Table, cols ...string) dataframe.DataFrame {
	if len(cols) == 0 {
		cols = tbl.Columns()
	}
	dates := make([]string, tbl.Len())
	for i, d := range tbl.Dates() {
		dates[i] = d.String()
	}
	ss := []series.Series{series.New(dates, series.String, DateColumn)}
	for _, name := range cols {
		vals, _ := tbl.Column(name)
		f := make([]float64, len(vals))
		for i, v := range vals {
			f[i] = v.Or(math.NaN())
		}
		ss = append(ss, series.New(f, series.Float, name))
	}
	return dataframe.New(ss...)
}

// WriteCSV writes the named columns of tbl as CSV with a header row.
func WriteCSV(w io.Writer, tbl *daily.Table, cols ...string) error {
	df := Frame(tbl, cols...)
	if df.Err != nil {
		return df.Err
	}
	return df.WriteCSV(w)
}
