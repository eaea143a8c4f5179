package daily

import (
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
)

// Reducer collapses several values observed for one date.
type Reducer int

const (
	Mean Reducer = iota
	Sum
	Max
)

func (r Reducer) reduce(vals []Value) Value {
	var acc float64
	n := 0
	for _, v := range vals {
		f, ok := v.Get()
		if !ok {
			continue
		}
		switch {
		case n == 0:
			acc = f
		case r == Max:
			if f > acc {
				acc = f
			}
		default:
			acc += f
		}
		n++
	}
	if n == 0 {
		return Unknown
	}
	if r == Mean {
		acc /= float64(n)
	}
	return Some(acc)
}

// Record is one source row keyed by date.
type Record struct {
	Date   civil.Date
	Values map[string]Value
}

// Partial is the output of a single source loader. Column names are
// prefixed with the source namespace. Records may repeat a date; Reduce
// collapses them with the per-column reducer.
type Partial struct {
	Source   string
	Columns  []string
	Reducers map[string]Reducer
	Records  []Record
}

func NewPartial(source string, cols map[string]Reducer) *Partial {
	p := &Partial{Source: source, Reducers: make(map[string]Reducer, len(cols))}
	for name, r := range cols {
		full := p.Qualify(name)
		p.Columns = append(p.Columns, full)
		p.Reducers[full] = r
	}
	sort.Strings(p.Columns)
	return p
}

// Qualify prefixes a bare column name with the source namespace.
func (p *Partial) Qualify(name string) string {
	if name == p.Source || strings.HasPrefix(name, p.Source+".") {
		return name
	}
	return p.Source + "." + name
}

// Add appends a record; names are qualified with the source namespace.
func (p *Partial) Add(d civil.Date, values map[string]Value) {
	q := make(map[string]Value, len(values))
	for k, v := range values {
		q[p.Qualify(k)] = v
	}
	p.Records = append(p.Records, Record{Date: d, Values: q})
}

// Reduce returns a table with one row per distinct date, sorted ascending.
func (p *Partial) Reduce() (*Table, error) {
	byDate := make(map[civil.Date][]Record)
	for _, r := range p.Records {
		for k := range r.Values {
			if _, ok := p.Reducers[k]; !ok {
				return nil, fmt.Errorf("%s: column %q outside declared schema", p.Source, k)
			}
		}
		byDate[r.Date] = append(byDate[r.Date], r)
	}

	dates := make([]civil.Date, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	cols := make([]Column, 0, len(p.Columns))
	for _, name := range p.Columns {
		red := p.Reducers[name]
		vals := make([]Value, len(dates))
		for i, d := range dates {
			recs := byDate[d]
			obs := make([]Value, 0, len(recs))
			for _, r := range recs {
				obs = append(obs, r.Values[name])
			}
			vals[i] = red.reduce(obs)
		}
		cols = append(cols, Column{Name: name, Values: vals})
	}
	return NewTable(dates, cols...)
}
