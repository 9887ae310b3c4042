package aqi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name  string
		conc  float64
		index int
		cat   Category
	}{
		{name: "zero", conc: 0.0, index: 0, cat: Good},
		{name: "good midpoint", conc: 6.0, index: 25, cat: Good},
		{name: "good upper bound", conc: 12.0, index: 50, cat: Good},
		{name: "moderate lower bound", conc: 12.1, index: 51, cat: Moderate},
		{name: "moderate upper bound", conc: 35.4, index: 100, cat: Moderate},
		{name: "sensitive lower bound", conc: 35.5, index: 101, cat: UnhealthyForSensitiveGroups},
		{name: "sensitive upper bound", conc: 55.4, index: 150, cat: UnhealthyForSensitiveGroups},
		{name: "unhealthy lower bound", conc: 55.5, index: 151, cat: Unhealthy},
		{name: "unhealthy upper bound", conc: 150.4, index: 200, cat: Unhealthy},
		{name: "very unhealthy lower bound", conc: 150.5, index: 201, cat: VeryUnhealthy},
		{name: "very unhealthy upper bound", conc: 250.4, index: 300, cat: VeryUnhealthy},
		{name: "hazardous lower bound", conc: 250.5, index: 301, cat: Hazardous},
		{name: "hazardous upper bound", conc: 350.4, index: 400, cat: Hazardous},
		{name: "hazardous high lower bound", conc: 350.5, index: 401, cat: Hazardous},
		{name: "top of table", conc: 500.4, index: 500, cat: Hazardous},
		{name: "fraction truncated before interpolation", conc: 12.9, index: 51, cat: Moderate},
		{name: "second decimal ignored for row", conc: 12.05, index: 50, cat: Good},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.conc)
			assert.Equal(t, tt.index, got.Index, "Calculate(%v).Index", tt.conc)
			assert.Equal(t, tt.cat, got.Category, "Calculate(%v).Category", tt.conc)
			assert.True(t, got.Valid())
		})
	}
}

func TestCalculate_OutOfDomain(t *testing.T) {
	for _, c := range []float64{-0.1, -1, -500, 500.41, 500.5, 1000, math.Inf(1), math.Inf(-1), math.NaN()} {
		got := Calculate(c)
		assert.Equal(t, Invalid, got, "Calculate(%v)", c)
		assert.Equal(t, InvalidIndex, got.Index)
		assert.Equal(t, CategoryNone, got.Category)
		assert.False(t, got.Valid())
	}
}

func TestCalculate_RowsAndMonotonic(t *testing.T) {
	for _, bp := range Breakpoints {
		t.Run(bp.Category.String(), func(t *testing.T) {
			lo := int(math.Round(bp.CLow * 10))
			hi := int(math.Round(bp.CHigh * 10))
			prev := -1
			for k := lo; k <= hi; k++ {
				c := float64(k) / 10
				got := Calculate(c)
				assert.Equal(t, bp.Category, got.Category, "Calculate(%v)", c)
				assert.GreaterOrEqual(t, got.Index, bp.ILow, "Calculate(%v)", c)
				assert.LessOrEqual(t, got.Index, bp.IHigh, "Calculate(%v)", c)
				assert.GreaterOrEqual(t, got.Index, prev, "index decreased at %v", c)
				prev = got.Index
			}
		})
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	for _, c := range []float64{3.3, 27.8, 99.9, 420.0} {
		assert.Equal(t, Calculate(c), Calculate(c))
	}
}

func TestCategory_String(t *testing.T) {
	assert.Equal(t, "Good", Good.String())
	assert.Equal(t, "Unhealthy for Sensitive Groups", UnhealthyForSensitiveGroups.String())
	assert.Equal(t, "None", CategoryNone.String())
	assert.Equal(t, "None", Category(42).String())
}

func TestMapRange(t *testing.T) {
	assert.InDelta(t, 25.0, mapRange(6, 0, 12, 0, 50), 1e-9)
	assert.InDelta(t, 101.0, mapRange(35, 36, 55, 101, 150), 1e-9, "clamped to the lower bound")
	assert.InDelta(t, 150.0, mapRange(60, 36, 55, 101, 150), 1e-9, "clamped to the upper bound")
	assert.InDelta(t, 0.5, mapRange(3, 3, 3, 0, 1), 1e-9, "degenerate input range")
}
