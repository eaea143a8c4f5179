package features

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/wesleyyjpark/506MBTAProject/daily"
	"gonum.org/v1/gonum/stat"
)

// ErrLeakage is returned when a feature asks for data dated after the row
// it is computed for.
var ErrLeakage = errors.New("leakage violation: feature read a future row")

// history is the only view a feature has of the table. Every accessor is
// expressed in days back from the current row, so reads are limited to
// rows dated on or before it.
type history struct {
	tbl    *daily.Table
	series map[string][]daily.Value
	row    int
	date   civil.Date
	first  civil.Date
	strict bool
	err    error
}

func (h *history) fail(col string, daysBack int) {
	if h.err == nil {
		h.err = fmt.Errorf("%w: %s at %s asked for %d days ahead", ErrLeakage, col, h.date, -daysBack)
	}
}

// at returns the value of col exactly daysBack calendar days earlier.
func (h *history) at(col string, daysBack int) daily.Value {
	if daysBack < 0 {
		h.fail(col, daysBack)
		return daily.Unknown
	}
	vals, ok := h.series[col]
	if !ok {
		return daily.Unknown
	}
	i, ok := h.tbl.Index(h.date.AddDays(-daysBack))
	if !ok || i > h.row {
		return daily.Unknown
	}
	return vals[i]
}

func (h *history) today(col string) daily.Value { return h.at(col, 0) }

// window returns the known values of col over the trailing n days
// including today. ok is false when strict windows are enabled and the
// window reaches before the start of the table.
func (h *history) window(col string, n int) (vals []float64, ok bool) {
	if n <= 0 {
		h.fail(col, n)
		return nil, false
	}
	if h.strict && h.date.AddDays(-(n - 1)).Before(h.first) {
		return nil, false
	}
	for k := 0; k < n; k++ {
		if f, known := h.at(col, k).Get(); known {
			vals = append(vals, f)
		}
	}
	return vals, true
}

func (h *history) mean(col string, n int) daily.Value {
	vals, ok := h.window(col, n)
	if !ok || len(vals) == 0 {
		return daily.Unknown
	}
	return daily.Some(stat.Mean(vals, nil))
}

// std is the sample standard deviation; it needs two known values.
func (h *history) std(col string, n int) daily.Value {
	vals, ok := h.window(col, n)
	if !ok || len(vals) < 2 {
		return daily.Unknown
	}
	return daily.Some(stat.StdDev(vals, nil))
}

// scanBack visits rows from today back to the first row of the table.
func (h *history) scanBack(col string, visit func(d civil.Date, v daily.Value) bool) {
	vals, ok := h.series[col]
	if !ok {
		return
	}
	for i := h.row; i >= 0; i-- {
		if !visit(h.tbl.Date(i), vals[i]) {
			return
		}
	}
}
