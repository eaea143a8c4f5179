package pipeline

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/wesleyyjpark/506MBTAProject/daily"
	"github.com/wesleyyjpark/506MBTAProject/sources"
)

var ErrNoRows = errors.New("merge: no dated rows in range")

// FillPolicy is what a loaded source contributes on dates it has no row for.
type FillPolicy int

const (
	FillUnknown FillPolicy = iota
	FillZero
)

// DefaultFill zero-fills alert counts: a loaded alert log with no entry for
// a day means no alerts that day. Every other source stays unknown.
func DefaultFill() map[string]FillPolicy {
	return map[string]FillPolicy{sources.Alerts: FillZero}
}

type MergeOptions struct {
	// Start and End clip the merged range; zero dates leave it open.
	Start civil.Date
	End   civil.Date
	Fill  map[string]FillPolicy
}

// Merge outer-joins the partials on date into a dense table with one row
// per calendar day between the earliest and latest dated row.
func Merge(partials []*daily.Partial, opts MergeOptions) (*daily.Table, error) {
	tables := make([]*daily.Table, 0, len(partials))
	fills := make([]FillPolicy, 0, len(partials))
	var first, last civil.Date
	for _, p := range partials {
		tbl, err := p.Reduce()
		if err != nil {
			return nil, fmt.Errorf("merge %s: %w", p.Source, err)
		}
		tables = append(tables, tbl)
		fills = append(fills, opts.Fill[p.Source])

		lo, hi, ok := tbl.Span()
		if !ok {
			continue
		}
		if !first.IsValid() || lo.Before(first) {
			first = lo
		}
		if !last.IsValid() || hi.After(last) {
			last = hi
		}
	}
	if !first.IsValid() {
		return nil, ErrNoRows
	}
	if opts.Start.IsValid() && first.Before(opts.Start) {
		first = opts.Start
	}
	if opts.End.IsValid() && last.After(opts.End) {
		last = opts.End
	}
	if last.Before(first) {
		return nil, fmt.Errorf("%w: data spans none of %s..%s", ErrNoRows, opts.Start, opts.End)
	}

	dates := daily.DenseRange(first, last)
	var cols []daily.Column
	for k, tbl := range tables {
		for _, name := range tbl.Columns() {
			src, _ := tbl.Column(name)
			vals := make([]daily.Value, len(dates))
			for i, d := range dates {
				j, ok := tbl.Index(d)
				switch {
				case ok:
					vals[i] = src[j]
				case fills[k] == FillZero:
					vals[i] = daily.Some(0)
				default:
					vals[i] = daily.Unknown
				}
			}
			cols = append(cols, daily.Column{Name: name, Values: vals})
		}
	}
	return daily.NewTable(dates, cols...)
}
