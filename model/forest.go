// Package model fits the random forest classifier and evaluates it on a
// date-based train/test split.
package model

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"golang.org/x/sync/errgroup"
)

var ErrInvalidParams = errors.New("model: invalid parameters")

type Params struct {
	NumTrees        int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	// MaxFeatures is the number of features tried at each split; 0 means
	// the square root of the feature count.
	MaxFeatures int
	Seed        uint64
	Workers     int
}

func DefaultParams() Params {
	return Params{
		NumTrees:        300,
		MaxDepth:        6,
		MinSamplesSplit: 15,
		MinSamplesLeaf:  8,
		Seed:            42,
		Workers:         4,
	}
}

func (p Params) Validate() error {
	switch {
	case p.NumTrees <= 0:
		return fmt.Errorf("%w: num_trees must be positive", ErrInvalidParams)
	case p.MaxDepth <= 0:
		return fmt.Errorf("%w: max_depth must be positive", ErrInvalidParams)
	case p.MinSamplesSplit < 2:
		return fmt.Errorf("%w: min_samples_split must be at least 2", ErrInvalidParams)
	case p.MinSamplesLeaf < 1:
		return fmt.Errorf("%w: min_samples_leaf must be at least 1", ErrInvalidParams)
	case p.MaxFeatures < 0:
		return fmt.Errorf("%w: max_features must not be negative", ErrInvalidParams)
	}
	return nil
}

type node struct {
	feature     int // -1 marks a leaf
	threshold   float64
	left, right int
	probs       []float64
}

type tree struct {
	nodes      []node
	importance []float64
}

func (t *tree) predict(x []float64) []float64 {
	i := 0
	for t.nodes[i].feature >= 0 {
		n := t.nodes[i]
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
	return t.nodes[i].probs
}

// Forest is a fitted random forest of CART trees. It is read-only after
// Fit and safe for concurrent prediction.
type Forest struct {
	classes     int
	features    int
	trees       []*tree
	importances []float64
}

// Fit grows p.NumTrees trees on bootstrap samples of X. Classes in y are
// 0..classes-1. Each tree draws from its own generator seeded by p.Seed and
// the tree index, so the result does not depend on scheduling.
func Fit(ctx context.Context, X [][]float64, y []int, classes int, p Params) (*Forest, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows and %d labels", ErrInvalidParams, len(X), len(y))
	}
	nf := len(X[0])
	if nf == 0 {
		return nil, fmt.Errorf("%w: no features", ErrInvalidParams)
	}
	for i, row := range X {
		if len(row) != nf {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrInvalidParams, i, len(row), nf)
		}
		if y[i] < 0 || y[i] >= classes {
			return nil, fmt.Errorf("%w: label %d out of range", ErrInvalidParams, y[i])
		}
	}
	mtry := p.MaxFeatures
	if mtry == 0 {
		mtry = max(1, int(math.Sqrt(float64(nf))))
	}
	mtry = min(mtry, nf)

	f := &Forest{classes: classes, features: nf, trees: make([]*tree, p.NumTrees)}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.Workers))
	for t := range f.trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			gr := &grower{
				X:        X,
				y:        y,
				classes:  classes,
				features: nf,
				mtry:     mtry,
				p:        p,
				rng:      rand.New(rand.NewPCG(p.Seed, uint64(t))),
				t:        &tree{importance: make([]float64, nf)},
			}
			idx := make([]int, len(X))
			for i := range idx {
				idx[i] = gr.rng.IntN(len(X))
			}
			gr.grow(idx, 0)
			f.trees[t] = gr.t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}

	f.importances = make([]float64, nf)
	for _, t := range f.trees {
		total := 0.0
		for _, v := range t.importance {
			total += v
		}
		if total == 0 {
			continue
		}
		for j, v := range t.importance {
			f.importances[j] += v / total
		}
	}
	normalize(f.importances)
	return f, nil
}

// Proba returns the class probabilities for x averaged over all trees.
func (f *Forest) Proba(x []float64) []float64 {
	out := make([]float64, f.classes)
	for _, t := range f.trees {
		for c, p := range t.predict(x) {
			out[c] += p
		}
	}
	for c := range out {
		out[c] /= float64(len(f.trees))
	}
	return out
}

// Predict returns the most probable class; ties go to the lower class.
func (f *Forest) Predict(x []float64) int {
	probs := f.Proba(x)
	best := 0
	for c, p := range probs {
		if p > probs[best] {
			best = c
		}
	}
	return best
}

// Importances returns the normalized mean decrease in impurity per feature,
// in column order.
func (f *Forest) Importances() []float64 { return slices.Clone(f.importances) }

func (f *Forest) NumTrees() int { return len(f.trees) }

type split struct {
	feature   int
	threshold float64
	gain      float64
}

type grower struct {
	X        [][]float64
	y        []int
	classes  int
	features int
	mtry     int
	p        Params
	rng      *rand.Rand
	t        *tree
}

func (g *grower) grow(idx []int, depth int) int {
	counts := make([]int, g.classes)
	for _, i := range idx {
		counts[g.y[i]]++
	}
	id := len(g.t.nodes)
	g.t.nodes = append(g.t.nodes, node{feature: -1, probs: probs(counts, len(idx))})
	if depth >= g.p.MaxDepth || len(idx) < g.p.MinSamplesSplit || pure(counts) {
		return id
	}
	s, ok := g.best(idx, counts)
	if !ok {
		return id
	}
	var left, right []int
	for _, i := range idx {
		if g.X[i][s.feature] <= s.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	g.t.importance[s.feature] += s.gain
	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)
	g.t.nodes[id].feature = s.feature
	g.t.nodes[id].threshold = s.threshold
	g.t.nodes[id].left = l
	g.t.nodes[id].right = r
	return id
}

// best scans mtry random features for the threshold with the largest
// weighted Gini decrease that leaves MinSamplesLeaf rows on each side.
func (g *grower) best(idx []int, parent []int) (split, bool) {
	n := len(idx)
	parentImp := float64(n) * gini(parent, n)
	order := make([]int, n)
	left := make([]int, g.classes)
	right := make([]int, g.classes)

	var best split
	found := false
	for _, f := range g.rng.Perm(g.features)[:g.mtry] {
		copy(order, idx)
		slices.SortFunc(order, func(a, b int) int { return cmp.Compare(g.X[a][f], g.X[b][f]) })
		clear(left)
		copy(right, parent)
		for k := 0; k < n-1; k++ {
			c := g.y[order[k]]
			left[c]++
			right[c]--
			nl, nr := k+1, n-k-1
			v, next := g.X[order[k]][f], g.X[order[k+1]][f]
			if v == next || nl < g.p.MinSamplesLeaf || nr < g.p.MinSamplesLeaf {
				continue
			}
			gain := parentImp - float64(nl)*gini(left, nl) - float64(nr)*gini(right, nr)
			if gain > best.gain+1e-12 {
				best = split{feature: f, threshold: v + (next-v)/2, gain: gain}
				found = true
			}
		}
	}
	return best, found
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		sum += p * p
	}
	return 1 - sum
}

func probs(counts []int, n int) []float64 {
	out := make([]float64, len(counts))
	if n == 0 {
		return out
	}
	for c, k := range counts {
		out[c] = float64(k) / float64(n)
	}
	return out
}

func pure(counts []int) bool {
	nonzero := 0
	for _, c := range counts {
		if c > 0 {
			nonzero++
		}
	}
	return nonzero <= 1
}

func normalize(v []float64) {
	total := 0.0
	for _, x := range v {
		total += x
	}
	if total == 0 {
		return
	}
	for i := range v {
		v[i] /= total
	}
}
