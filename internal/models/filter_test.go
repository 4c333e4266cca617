package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestDefaultYearBounds(t *testing.T) {
	b := DefaultYearBounds(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, YearBounds{Min: 1976, Max: 2026}, b)
	assert.True(t, b.Contains(1976))
	assert.True(t, b.Contains(2026))
	assert.False(t, b.Contains(2027))
}

func TestNewSearchFilter(t *testing.T) {
	bounds := YearBounds{Min: 1976, Max: 2026}

	tests := []struct {
		name      string
		params    FilterParams
		wantField string
	}{
		{name: "empty is valid", params: FilterParams{}},
		{name: "full", params: FilterParams{
			Category: "cars", Brand: "Audi", Model: "A6", Region: "Київ",
			MinYear: intPtr(2010), MaxYear: intPtr(2020),
			MinPrice: intPtr(1000), MaxPrice: intPtr(20000),
			Condition: "used", VerifiedVIN: true,
		}},
		{name: "site label category", params: FilterParams{Category: "Легкові"}},
		{name: "unknown category", params: FilterParams{Category: "spaceships"}, wantField: "category"},
		{name: "unknown condition", params: FilterParams{Condition: "broken"}, wantField: "condition"},
		{name: "min year below bound", params: FilterParams{MinYear: intPtr(1950)}, wantField: "min_year"},
		{name: "max year in future", params: FilterParams{MaxYear: intPtr(2030)}, wantField: "max_year"},
		{name: "min above max year", params: FilterParams{MinYear: intPtr(2020), MaxYear: intPtr(2010)}, wantField: "max_year"},
		{name: "equal years", params: FilterParams{MinYear: intPtr(2015), MaxYear: intPtr(2015)}},
		{name: "negative price", params: FilterParams{MinPrice: intPtr(-1)}, wantField: "min_price"},
		{name: "min above max price", params: FilterParams{MinPrice: intPtr(500), MaxPrice: intPtr(100)}, wantField: "max_price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSearchFilter(tt.params, bounds)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var fe *FilterError
			require.True(t, errors.As(err, &fe), "expected *FilterError, got %v", err)
			assert.Equal(t, tt.wantField, fe.Field)
		})
	}
}

func TestSearchFilterFormParams(t *testing.T) {
	bounds := YearBounds{Min: 1976, Max: 2026}

	t.Run("defaults are omitted", func(t *testing.T) {
		f, err := NewSearchFilter(FilterParams{Category: "any", Condition: "any"}, bounds)
		require.NoError(t, err)
		assert.Empty(t, f.FormParams())
	})

	t.Run("set values use site labels", func(t *testing.T) {
		f, err := NewSearchFilter(FilterParams{
			Category:  "moto",
			Brand:     " Honda ",
			MinYear:   intPtr(2001),
			MaxPrice:  intPtr(5000),
			Condition: "import",
		}, bounds)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"category":  "Мото",
			"brand":     "Honda",
			"min_year":  "2001",
			"max_price": "5000",
			"condition": "Під пригон",
		}, f.FormParams())
	})

	t.Run("input pointers are copied", func(t *testing.T) {
		year := 2005
		f, err := NewSearchFilter(FilterParams{MinYear: &year}, bounds)
		require.NoError(t, err)
		year = 2020
		got, ok := f.MinYear()
		assert.True(t, ok)
		assert.Equal(t, 2005, got)
	})
}
