package daily

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(y int, m int, day int) civil.Date {
	return civil.Date{Year: y, Month: time.Month(m), Day: day}
}

// ── Value ──

func TestValueUnknownIsNotZero(t *testing.T) {
	assert.False(t, Unknown.Known())
	assert.True(t, Some(0).Known())
	assert.NotEqual(t, Unknown, Some(0))
	assert.Equal(t, 3.5, Unknown.Or(3.5))
	assert.Equal(t, 0.0, Some(0).Or(3.5))
}

func TestValueNaNIsUnknown(t *testing.T) {
	assert.False(t, Some(math.NaN()).Known())
	assert.False(t, Some(math.Inf(1)).Known())
}

func TestValueJSON(t *testing.T) {
	data, err := json.Marshal([]Value{Some(1.5), Unknown})
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5, null]`, string(data))

	var back []Value
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []Value{Some(1.5), Unknown}, back)
}

func TestProduct(t *testing.T) {
	assert.Equal(t, Some(6), Product(Some(2), Some(3)))
	assert.Equal(t, Unknown, Product(Some(2), Unknown))
	assert.Equal(t, Some(0), Product(Some(0), Some(7)))
}

// ── dates ──

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want civil.Date
	}{
		{"2024-05-27", d(2024, 5, 27)},
		{"2024/05/27 04:00:00+00", d(2024, 5, 27)},
		{"2024-05-27 23:59:00", d(2024, 5, 27)},
		{"2024-05-27T23:30:00-04:00", d(2024, 5, 27)},
		{"20240527", d(2024, 5, 27)},
		{"5/27/2024", d(2024, 5, 27)},
		{"1716768000", d(2024, 5, 27)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "yesterday", "2024-13-01", "123"} {
		_, err := ParseDate(bad)
		assert.ErrorIs(t, err, ErrBadDate, bad)
	}
}

func TestParseHour(t *testing.T) {
	h, ok := ParseHour("2023-02-01 08:15:00")
	require.True(t, ok)
	assert.Equal(t, 8, h)

	h, ok = ParseHour("2023-02-01T17:00:00Z")
	require.True(t, ok)
	assert.Equal(t, 17, h)

	_, ok = ParseHour("2023-02-01")
	assert.False(t, ok)
}

func TestEpochSecondsInServiceZone(t *testing.T) {
	boston, err := LoadZone("")
	require.NoError(t, err)

	// 2023-03-08 01:15 UTC is 20:15 the evening before in Boston.
	got, err := ParseDateIn("1678238100", boston)
	require.NoError(t, err)
	assert.Equal(t, d(2023, 3, 7), got)

	got, err = ParseDate("1678238100")
	require.NoError(t, err)
	assert.Equal(t, d(2023, 3, 8), got)

	h, ok := ParseHourIn("1678228200", boston)
	require.True(t, ok)
	assert.Equal(t, 17, h)

	h, ok = ParseHourIn("1678228200", nil)
	require.True(t, ok)
	assert.Equal(t, 22, h)

	// zone-qualified text keeps its written wall clock
	h, ok = ParseHourIn("2023-03-07T17:30:00-05:00", time.UTC)
	require.True(t, ok)
	assert.Equal(t, 17, h)

	_, err = LoadZone("Mars/Olympus_Mons")
	assert.Error(t, err)
}

func TestDenseRange(t *testing.T) {
	got := DenseRange(d(2024, 2, 27), d(2024, 3, 2))
	assert.Equal(t, []civil.Date{d(2024, 2, 27), d(2024, 2, 28), d(2024, 2, 29), d(2024, 3, 1), d(2024, 3, 2)}, got)
	assert.Empty(t, DenseRange(d(2024, 3, 2), d(2024, 3, 1)))
}

// ── Table ──

func TestNewTableRejectsUnsorted(t *testing.T) {
	_, err := NewTable([]civil.Date{d(2024, 1, 2), d(2024, 1, 1)})
	assert.ErrorIs(t, err, ErrUnsorted)

	_, err = NewTable([]civil.Date{d(2024, 1, 1), d(2024, 1, 1)})
	assert.ErrorIs(t, err, ErrUnsorted)
}

func TestTableWithDoesNotMutate(t *testing.T) {
	base, err := NewTable(DenseRange(d(2024, 1, 1), d(2024, 1, 3)),
		Column{Name: "a", Values: []Value{Some(1), Some(2), Unknown}})
	require.NoError(t, err)

	next, err := base.With(Column{Name: "b", Values: []Value{Some(4), Some(5), Some(6)}})
	require.NoError(t, err)

	assert.False(t, base.Has("b"))
	assert.Equal(t, []string{"a", "b"}, next.Columns())
	assert.Equal(t, Some(5), next.Get("b", 1))

	_, err = next.With(Column{Name: "a", Values: make([]Value, 3)})
	assert.ErrorIs(t, err, ErrDuplicateColumn)

	_, err = next.With(Column{Name: "c", Values: make([]Value, 2)})
	assert.ErrorIs(t, err, ErrLength)
}

func TestTableFilterAndMatrix(t *testing.T) {
	tbl, err := NewTable(DenseRange(d(2022, 12, 30), d(2023, 1, 2)),
		Column{Name: "x", Values: []Value{Some(1), Unknown, Some(3), Some(4)}})
	require.NoError(t, err)

	late := tbl.Filter(func(_ int, day civil.Date) bool { return !day.Before(d(2023, 1, 1)) })
	assert.Equal(t, 2, late.Len())
	assert.Equal(t, d(2023, 1, 1), late.Date(0))
	assert.Equal(t, Some(3), late.Get("x", 0))

	m, err := tbl.Matrix([]string{"x"}, -1)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1}, {-1}, {3}, {4}}, m)

	_, err = tbl.Matrix([]string{"missing"}, 0)
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

// ── Partial ──

func TestPartialReduceCollapsesDuplicates(t *testing.T) {
	p := NewPartial("alerts", map[string]Reducer{"total_alerts": Sum, "max_severity": Max})
	p.Add(d(2024, 1, 2), map[string]Value{"total_alerts": Some(2), "max_severity": Some(3)})
	p.Add(d(2024, 1, 1), map[string]Value{"total_alerts": Some(1), "max_severity": Some(9)})
	p.Add(d(2024, 1, 2), map[string]Value{"total_alerts": Some(5), "max_severity": Some(7)})

	tbl, err := p.Reduce()
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, d(2024, 1, 1), tbl.Date(0))
	assert.Equal(t, Some(7), tbl.Get("alerts.total_alerts", 1))
	assert.Equal(t, Some(7), tbl.Get("alerts.max_severity", 1))
}

func TestPartialReduceMeanIgnoresUnknown(t *testing.T) {
	p := NewPartial("weather", map[string]Reducer{"temp": Mean})
	p.Add(d(2024, 1, 1), map[string]Value{"temp": Some(10)})
	p.Add(d(2024, 1, 1), map[string]Value{"temp": Unknown})
	p.Add(d(2024, 1, 1), map[string]Value{"temp": Some(20)})
	p.Add(d(2024, 1, 2), map[string]Value{"temp": Unknown})

	tbl, err := p.Reduce()
	require.NoError(t, err)
	assert.Equal(t, Some(15), tbl.Get("weather.temp", 0))
	assert.Equal(t, Unknown, tbl.Get("weather.temp", 1))
}

func TestPartialRejectsUndeclaredColumn(t *testing.T) {
	p := NewPartial("weather", map[string]Reducer{"temp": Mean})
	p.Add(d(2024, 1, 1), map[string]Value{"humidity": Some(1)})
	_, err := p.Reduce()
	assert.Error(t, err)
}

func TestQualifyKeepsSourceColumn(t *testing.T) {
	p := NewPartial(ReliabilityColumn, map[string]Reducer{ReliabilityColumn: Mean})
	assert.Equal(t, []string{ReliabilityColumn}, p.Columns)
}
