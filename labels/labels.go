// Package labels turns daily reliability percentages into the three
// reliability categories the classifier predicts.
package labels

import (
	"errors"
	"fmt"
	"slices"

	"github.com/wesleyyjpark/506MBTAProject/daily"
	"gonum.org/v1/gonum/stat"
)

// Column is the name of the label column added by Apply.
const Column = "label"

var ErrInvalidThresholds = errors.New("invalid label thresholds")

type Category int

const (
	Unlabeled Category = iota
	Low
	Medium
	High
)

// Categories lists the labelled categories in ascending order.
var Categories = []Category{Low, Medium, High}

func (c Category) String() string {
	switch c {
	case Low:
		return "Low"
	case Medium:
		return "Medium"
	case High:
		return "High"
	}
	return "Unlabeled"
}

func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// FromValue decodes a label cell. Unknown or out of range cells are
// Unlabeled.
func FromValue(v daily.Value) Category {
	f, ok := v.Get()
	if !ok {
		return Unlabeled
	}
	c := Category(f)
	if float64(c) != f || c < Low || c > High {
		return Unlabeled
	}
	return c
}

func (c Category) Value() daily.Value {
	if c == Unlabeled {
		return daily.Unknown
	}
	return daily.Some(float64(c))
}

// Thresholds split [0,100] into three bands: Low below LowBelow, High
// above HighAbove, Medium in between with both ends included.
type Thresholds struct {
	LowBelow  float64 `json:"low_below"`
	HighAbove float64 `json:"high_above"`
}

// Reference is the fixed banding used when nothing else is configured.
var Reference = Thresholds{LowBelow: 75, HighAbove: 84}

func (t Thresholds) Validate() error {
	if t.LowBelow > t.HighAbove {
		return fmt.Errorf("%w: low_below %.2f is above high_above %.2f", ErrInvalidThresholds, t.LowBelow, t.HighAbove)
	}
	if t.LowBelow < 0 || t.HighAbove > 100 {
		return fmt.Errorf("%w: bands must lie within [0,100]", ErrInvalidThresholds)
	}
	return nil
}

func (t Thresholds) Classify(r daily.Value) Category {
	v, ok := r.Get()
	if !ok {
		return Unlabeled
	}
	switch {
	case v < t.LowBelow:
		return Low
	case v > t.HighAbove:
		return High
	}
	return Medium
}

type Policy string

const (
	Fixed   Policy = "fixed"
	Tertile Policy = "tertile"
	StdDev  Policy = "stddev"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case Fixed, Tertile, StdDev:
		return p, nil
	case "":
		return Fixed, nil
	}
	return "", fmt.Errorf("unknown label policy %q", s)
}

// Fit derives thresholds for the policy. Fixed returns fixed unchanged;
// the other policies are computed from the reliability values of the
// training partition.
func Fit(p Policy, fixed Thresholds, train []float64) (Thresholds, error) {
	var t Thresholds
	switch p {
	case Fixed, "":
		t = fixed
	case Tertile:
		if len(train) < 3 {
			return t, fmt.Errorf("%w: tertile policy needs at least 3 training values, got %d", ErrInvalidThresholds, len(train))
		}
		sorted := slices.Clone(train)
		slices.Sort(sorted)
		t = Thresholds{
			LowBelow:  stat.Quantile(1.0/3, stat.LinInterp, sorted, nil),
			HighAbove: stat.Quantile(2.0/3, stat.LinInterp, sorted, nil),
		}
	case StdDev:
		if len(train) < 2 {
			return t, fmt.Errorf("%w: stddev policy needs at least 2 training values, got %d", ErrInvalidThresholds, len(train))
		}
		mean, std := stat.MeanStdDev(train, nil)
		t = Thresholds{LowBelow: mean - std, HighAbove: mean + std}
	default:
		return t, fmt.Errorf("unknown label policy %q", p)
	}
	t.LowBelow = max(t.LowBelow, 0)
	t.HighAbove = min(t.HighAbove, 100)
	return t, t.Validate()
}

// Apply returns tbl with the label column computed from the reliability
// column.
func Apply(tbl *daily.Table, t Thresholds) (*daily.Table, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	rel, ok := tbl.Column(daily.ReliabilityColumn)
	if !ok {
		return nil, fmt.Errorf("label: table has no %q column", daily.ReliabilityColumn)
	}
	out := make([]daily.Value, len(rel))
	for i, r := range rel {
		out[i] = t.Classify(r).Value()
	}
	return tbl.With(daily.Column{Name: Column, Values: out})
}

// Counts tallies the labelled rows of tbl per category.
func Counts(tbl *daily.Table) map[Category]int {
	counts := make(map[Category]int, len(Categories))
	vals, ok := tbl.Column(Column)
	if !ok {
		return counts
	}
	for _, v := range vals {
		if c := FromValue(v); c != Unlabeled {
			counts[c]++
		}
	}
	return counts
}
