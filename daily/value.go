package daily

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Value is an optional measurement. The zero Value is unknown, which is
// distinct from a known 0.
type Value struct {
	v  float64
	ok bool
}

// Unknown is the absent value.
var Unknown = Value{}

// Some wraps a known measurement. NaN and infinities are treated as unknown.
func Some(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Unknown
	}
	return Value{v: v, ok: true}
}

// FromPtr maps nil to Unknown.
func FromPtr(p *float64) Value {
	if p == nil {
		return Unknown
	}
	return Some(*p)
}

// Bool encodes a flag as 1 or 0.
func Bool(b bool) Value {
	if b {
		return Some(1)
	}
	return Some(0)
}

func (v Value) Get() (float64, bool) { return v.v, v.ok }

func (v Value) Known() bool { return v.ok }

// Or returns the measurement, or fallback when unknown.
func (v Value) Or(fallback float64) float64 {
	if !v.ok {
		return fallback
	}
	return v.v
}

func (v Value) Ptr() *float64 {
	if !v.ok {
		return nil
	}
	f := v.v
	return &f
}

func (v Value) String() string {
	if !v.ok {
		return "NA"
	}
	return strconv.FormatFloat(v.v, 'f', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Unknown
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Some(f)
	return nil
}

// Product multiplies the factors; unknown if any factor is unknown.
func Product(factors ...Value) Value {
	out := 1.0
	for _, f := range factors {
		if !f.ok {
			return Unknown
		}
		out *= f.v
	}
	return Some(out)
}
