// Package selection ranks feature columns by their mutual information with
// the reliability label and keeps the top K.
package selection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/wesleyyjpark/506MBTAProject/daily"
	"github.com/wesleyyjpark/506MBTAProject/labels"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrNoLabels       = errors.New("selection: no labelled rows")
	ErrInvalidOptions = errors.New("selection: invalid options")
)

type Options struct {
	K       int
	Bins    int
	Fill    float64
	Workers int
}

func DefaultOptions() Options {
	return Options{K: 20, Bins: 10, Workers: 4}
}

type Score struct {
	Name string  `json:"name"`
	MI   float64 `json:"mi"`
}

type Selection struct {
	Ranked   []Score  `json:"ranked"`
	Selected []string `json:"selected"`
	Dropped  []string `json:"dropped,omitempty"`
	Rows     int      `json:"rows"`
}

// Rank scores every candidate column against the label column over the
// labelled rows of tbl. Unknown feature cells are replaced with opts.Fill.
// Candidates that are all unknown or constant are dropped before ranking.
func Rank(ctx context.Context, tbl *daily.Table, candidates []string, opts Options) (*Selection, error) {
	if opts.K <= 0 || opts.Bins < 2 {
		return nil, fmt.Errorf("%w: k=%d bins=%d", ErrInvalidOptions, opts.K, opts.Bins)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	lab, ok := tbl.Column(labels.Column)
	if !ok {
		return nil, fmt.Errorf("selection: table has no %q column", labels.Column)
	}
	var rows []int
	var y []int
	for i, v := range lab {
		if c := labels.FromValue(v); c != labels.Unlabeled {
			rows = append(rows, i)
			y = append(y, int(c))
		}
	}
	if len(rows) == 0 {
		return nil, ErrNoLabels
	}

	series := make([][]daily.Value, len(candidates))
	for j, name := range candidates {
		vals, ok := tbl.Column(name)
		if !ok {
			return nil, fmt.Errorf("selection: %w: %s", daily.ErrUnknownColumn, name)
		}
		series[j] = vals
	}

	scores := make([]float64, len(candidates))
	usable := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for j, vals := range series {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			x, ok := column(vals, rows, opts.Fill)
			if !ok {
				return nil
			}
			usable[j] = true
			scores[j] = MutualInformation(x, y, opts.Bins)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("rank features: %w", err)
	}

	sel := &Selection{Rows: len(rows)}
	for j, name := range candidates {
		if !usable[j] {
			sel.Dropped = append(sel.Dropped, name)
			continue
		}
		sel.Ranked = append(sel.Ranked, Score{Name: name, MI: scores[j]})
	}
	slices.SortFunc(sel.Ranked, func(a, b Score) int {
		if a.MI != b.MI {
			if a.MI > b.MI {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	for _, s := range sel.Ranked[:min(opts.K, len(sel.Ranked))] {
		sel.Selected = append(sel.Selected, s.Name)
	}
	return sel, nil
}

// column extracts the labelled rows of vals with unknowns filled. ok is
// false when the rows hold no known value or only one distinct value.
func column(vals []daily.Value, rows []int, fill float64) ([]float64, bool) {
	x := make([]float64, len(rows))
	known := false
	for k, i := range rows {
		known = known || vals[i].Known()
		x[k] = vals[i].Or(fill)
	}
	if !known {
		return nil, false
	}
	for _, v := range x[1:] {
		if v != x[0] {
			return x, true
		}
	}
	return nil, false
}

// Discretize assigns each value an equal-frequency bin in [0, bins). Equal
// values always share a bin, so heavily tied columns get fewer bins.
func Discretize(x []float64, bins int) []int {
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	var edges []float64
	for k := 1; k < bins; k++ {
		e := sorted[k*len(sorted)/bins]
		if len(edges) == 0 || e > edges[len(edges)-1] {
			edges = append(edges, e)
		}
	}
	out := make([]int, len(x))
	for i, v := range x {
		// number of edges at or below v
		out[i] = sort.Search(len(edges), func(j int) bool { return edges[j] > v })
	}
	return out
}

// MutualInformation is the plug-in estimate H(X)+H(Y)-H(X,Y) in nats,
// with x discretized into at most bins equal-frequency bins.
func MutualInformation(x []float64, y []int, bins int) float64 {
	if len(x) == 0 || len(x) != len(y) {
		return 0
	}
	xb := Discretize(x, bins)
	n := float64(len(x))

	px := make(map[int]float64)
	py := make(map[int]float64)
	pxy := make(map[[2]int]float64)
	for i := range xb {
		px[xb[i]]++
		py[y[i]]++
		pxy[[2]int{xb[i], y[i]}]++
	}
	mi := entropy(px, n) + entropy(py, n) - entropy(pxy, n)
	return math.Max(mi, 0)
}

func entropy[K comparable](counts map[K]float64, n float64) float64 {
	p := make([]float64, 0, len(counts))
	for _, c := range counts {
		p = append(p, c/n)
	}
	// fixed order keeps the float sum reproducible
	slices.Sort(p)
	return stat.Entropy(p)
}

// Reduce keeps the date-indexed selected columns plus the label and
// reliability columns.
func Reduce(tbl *daily.Table, sel *Selection) (*daily.Table, error) {
	names := slices.Clone(sel.Selected)
	for _, extra := range []string{labels.Column, daily.ReliabilityColumn} {
		if tbl.Has(extra) && !slices.Contains(names, extra) {
			names = append(names, extra)
		}
	}
	return tbl.Select(names...)
}
