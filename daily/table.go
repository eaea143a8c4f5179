package daily

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
)

const ReliabilityColumn = "reliability"

var (
	ErrUnsorted        = errors.New("dates not strictly increasing")
	ErrDuplicateColumn = errors.New("duplicate column")
	ErrUnknownColumn   = errors.New("unknown column")
	ErrLength          = errors.New("column length does not match table")
)

// Column is a named series aligned with a table's dates.
type Column struct {
	Name   string
	Values []Value
}

// Table is an immutable, date-keyed set of columns. Dates are strictly
// increasing. Operations return new tables and never modify the receiver;
// column slices may be shared between tables and must not be written to.
type Table struct {
	dates []civil.Date
	index map[civil.Date]int
	names []string
	cols  map[string][]Value
}

func NewTable(dates []civil.Date, cols ...Column) (*Table, error) {
	t := &Table{
		dates: append([]civil.Date(nil), dates...),
		index: make(map[civil.Date]int, len(dates)),
		cols:  make(map[string][]Value),
	}
	for i, d := range t.dates {
		if i > 0 && !t.dates[i-1].Before(d) {
			return nil, fmt.Errorf("%w at %s", ErrUnsorted, d)
		}
		t.index[d] = i
	}
	return t.With(cols...)
}

func (t *Table) Len() int { return len(t.dates) }

func (t *Table) Dates() []civil.Date { return append([]civil.Date(nil), t.dates...) }

func (t *Table) Date(i int) civil.Date { return t.dates[i] }

func (t *Table) Index(d civil.Date) (int, bool) {
	i, ok := t.index[d]
	return i, ok
}

// Span returns the first and last date. ok is false for an empty table.
func (t *Table) Span() (first, last civil.Date, ok bool) {
	if len(t.dates) == 0 {
		return civil.Date{}, civil.Date{}, false
	}
	return t.dates[0], t.dates[len(t.dates)-1], true
}

func (t *Table) Columns() []string { return append([]string(nil), t.names...) }

func (t *Table) Has(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// Column returns a copy of the named series.
func (t *Table) Column(name string) ([]Value, bool) {
	vals, ok := t.cols[name]
	if !ok {
		return nil, false
	}
	return append([]Value(nil), vals...), true
}

// Get returns the value at row i, or Unknown if the column is absent.
func (t *Table) Get(name string, i int) Value {
	vals, ok := t.cols[name]
	if !ok || i < 0 || i >= len(vals) {
		return Unknown
	}
	return vals[i]
}

// With returns a table with the extra columns appended.
func (t *Table) With(cols ...Column) (*Table, error) {
	out := &Table{
		dates: t.dates,
		index: t.index,
		names: append([]string(nil), t.names...),
		cols:  make(map[string][]Value, len(t.cols)+len(cols)),
	}
	for k, v := range t.cols {
		out.cols[k] = v
	}
	for _, c := range cols {
		if _, dup := out.cols[c.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateColumn, c.Name)
		}
		if len(c.Values) != len(t.dates) {
			return nil, fmt.Errorf("%w: %s has %d rows, want %d", ErrLength, c.Name, len(c.Values), len(t.dates))
		}
		out.names = append(out.names, c.Name)
		out.cols[c.Name] = append([]Value(nil), c.Values...)
	}
	return out, nil
}

// Select keeps only the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	out := &Table{
		dates: t.dates,
		index: t.index,
		names: make([]string, 0, len(names)),
		cols:  make(map[string][]Value, len(names)),
	}
	for _, n := range names {
		vals, ok := t.cols[n]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, n)
		}
		if _, dup := out.cols[n]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateColumn, n)
		}
		out.names = append(out.names, n)
		out.cols[n] = vals
	}
	return out, nil
}

// Filter keeps the rows for which keep returns true.
func (t *Table) Filter(keep func(i int, d civil.Date) bool) *Table {
	var rows []int
	for i, d := range t.dates {
		if keep(i, d) {
			rows = append(rows, i)
		}
	}
	out := &Table{
		names: append([]string(nil), t.names...),
		index: make(map[civil.Date]int, len(rows)),
		cols:  make(map[string][]Value, len(t.cols)),
	}
	for j, i := range rows {
		out.dates = append(out.dates, t.dates[i])
		out.index[t.dates[i]] = j
	}
	for name, vals := range t.cols {
		sub := make([]Value, len(rows))
		for j, i := range rows {
			sub[j] = vals[i]
		}
		out.cols[name] = sub
	}
	return out
}

// Matrix returns the named columns row-major with unknowns replaced by fill.
func (t *Table) Matrix(names []string, fill float64) ([][]float64, error) {
	series := make([][]Value, len(names))
	for j, n := range names {
		vals, ok := t.cols[n]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, n)
		}
		series[j] = vals
	}
	out := make([][]float64, len(t.dates))
	for i := range t.dates {
		row := make([]float64, len(names))
		for j := range names {
			row[j] = series[j][i].Or(fill)
		}
		out[i] = row
	}
	return out, nil
}
