// Package features derives the per-day feature columns from the merged
// daily table. Every feature for a date reads only rows dated on or before
// it; the builder fails with ErrLeakage otherwise.
package features

import (
	"context"
	"fmt"

	"github.com/wesleyyjpark/506MBTAProject/daily"
	"github.com/wesleyyjpark/506MBTAProject/schedule"
	"golang.org/x/sync/errgroup"
)

// WindowPolicy decides what a rolling window does near the start of the
// table.
type WindowPolicy int

const (
	// PartialWindow needs at least one known value inside the window.
	PartialWindow WindowPolicy = iota
	// StrictWindow needs the whole window inside the table's date range.
	StrictWindow
)

func ParseWindowPolicy(s string) (WindowPolicy, error) {
	switch s {
	case "", "partial":
		return PartialWindow, nil
	case "strict":
		return StrictWindow, nil
	}
	return 0, fmt.Errorf("unknown window policy %q", s)
}

// PriorPolicy decides which history the seasonal alert averages use.
type PriorPolicy int

const (
	// ExpandingPrior averages rows dated on or before the current day.
	ExpandingPrior PriorPolicy = iota
	// PriorYearsPrior averages the same month of earlier years only, and
	// the same weekday of earlier weeks only.
	PriorYearsPrior
)

func ParsePriorPolicy(s string) (PriorPolicy, error) {
	switch s {
	case "", "expanding":
		return ExpandingPrior, nil
	case "prior_years":
		return PriorYearsPrior, nil
	}
	return 0, fmt.Errorf("unknown alert prior policy %q", s)
}

type Options struct {
	Window  WindowPolicy
	Prior   PriorPolicy
	Workers int
}

type feature struct {
	name string
	fn   func(r *rowCtx) daily.Value
}

// rowCtx carries the history view and the features already computed for
// the current row, so interactions can reuse them.
type rowCtx struct {
	h   *history
	out map[string]daily.Value
}

type Builder struct {
	opts    Options
	pattern *schedule.Pattern
	catalog []feature
}

func NewBuilder(pattern *schedule.Pattern, opts Options) *Builder {
	if pattern == nil {
		pattern = schedule.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	b := &Builder{opts: opts, pattern: pattern}
	b.catalog = b.define()
	return b
}

// Names lists every feature the builder produces, in output order.
func (b *Builder) Names() []string {
	out := make([]string, len(b.catalog))
	for i, f := range b.catalog {
		out[i] = f.name
	}
	return out
}

// Build returns tbl with one column per feature appended.
func (b *Builder) Build(ctx context.Context, tbl *daily.Table) (*daily.Table, error) {
	n := tbl.Len()
	first, _, ok := tbl.Span()
	if !ok {
		return nil, fmt.Errorf("build features: empty table")
	}

	series := make(map[string][]daily.Value)
	for _, name := range tbl.Columns() {
		vals, _ := tbl.Column(name)
		series[name] = vals
	}

	cols := make([][]daily.Value, len(b.catalog))
	for j := range cols {
		cols[j] = make([]daily.Value, n)
	}

	chunk := (n + b.opts.Workers - 1) / b.opts.Workers
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				h := &history{
					tbl:    tbl,
					series: series,
					row:    i,
					date:   tbl.Date(i),
					first:  first,
					strict: b.opts.Window == StrictWindow,
				}
				r := &rowCtx{h: h, out: make(map[string]daily.Value, len(b.catalog))}
				for j, f := range b.catalog {
					v := f.fn(r)
					r.out[f.name] = v
					cols[j][i] = v
				}
				if h.err != nil {
					return h.err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build features: %w", err)
	}

	out := make([]daily.Column, len(b.catalog))
	for j, f := range b.catalog {
		out[j] = daily.Column{Name: f.name, Values: cols[j]}
	}
	return tbl.With(out...)
}
