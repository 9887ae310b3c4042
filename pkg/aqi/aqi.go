// Package aqi maps PM2.5 concentrations to the EPA Air Quality Index.
//
// NOTE: the index should ideally be computed from a 24-hour concentration
// average. Feeding it short-window samples yields higher values than the
// official daily figure.
package aqi

import "math"

// InvalidIndex is reported for concentrations outside the breakpoint table.
const InvalidIndex = -1

// Category is an AQI health category.
type Category int

const (
	CategoryNone Category = iota
	Good
	Moderate
	UnhealthyForSensitiveGroups
	Unhealthy
	VeryUnhealthy
	Hazardous
)

var categoryNames = map[Category]string{
	CategoryNone:                "None",
	Good:                        "Good",
	Moderate:                    "Moderate",
	UnhealthyForSensitiveGroups: "Unhealthy for Sensitive Groups",
	Unhealthy:                   "Unhealthy",
	VeryUnhealthy:               "Very Unhealthy",
	Hazardous:                   "Hazardous",
}

// String returns the category's display name.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return categoryNames[CategoryNone]
}

// Result is an index and its category.
type Result struct {
	Index    int
	Category Category
}

// Valid reports whether the concentration fell inside the breakpoint table.
func (r Result) Valid() bool {
	return r.Index != InvalidIndex && r.Category != CategoryNone
}

// Breakpoint is one row of the EPA PM2.5 table.
type Breakpoint struct {
	CLow, CHigh float64 // concentration range (µg/m³), inclusive
	ILow, IHigh int     // index range, inclusive
	Category    Category

	// Interpolation endpoints applied to the integer-truncated
	// concentration. They differ from CLow/CHigh where the table boundary
	// is fractional.
	xLow, xHigh float64
}

// Breakpoints is the PM2.5 breakpoint table in ascending order.
var Breakpoints = []Breakpoint{
	{CLow: 0.0, CHigh: 12.0, ILow: 0, IHigh: 50, Category: Good, xLow: 0, xHigh: 12},
	{CLow: 12.1, CHigh: 35.4, ILow: 51, IHigh: 100, Category: Moderate, xLow: 12, xHigh: 35},
	{CLow: 35.5, CHigh: 55.4, ILow: 101, IHigh: 150, Category: UnhealthyForSensitiveGroups, xLow: 36, xHigh: 55},
	{CLow: 55.5, CHigh: 150.4, ILow: 151, IHigh: 200, Category: Unhealthy, xLow: 56, xHigh: 150},
	{CLow: 150.5, CHigh: 250.4, ILow: 201, IHigh: 300, Category: VeryUnhealthy, xLow: 151, xHigh: 250},
	{CLow: 250.5, CHigh: 350.4, ILow: 301, IHigh: 400, Category: Hazardous, xLow: 251, xHigh: 350},
	{CLow: 350.5, CHigh: 500.4, ILow: 401, IHigh: 500, Category: Hazardous, xLow: 351, xHigh: 500},
}

// Invalid is the result for concentrations outside the table.
var Invalid = Result{Index: InvalidIndex, Category: CategoryNone}

// Calculate returns the AQI for a PM2.5 concentration in µg/m³.
//
// Concentrations below 0 or above 500.4 (and NaN) produce Invalid. Inside
// the domain the row is selected on the concentration truncated to 0.1 and
// the index is interpolated from the concentration truncated to an integer.
func Calculate(concentration float64) Result {
	lo := Breakpoints[0].CLow
	hi := Breakpoints[len(Breakpoints)-1].CHigh
	if !(concentration >= lo && concentration <= hi) {
		return Invalid
	}

	c := truncateTenth(concentration)
	for _, bp := range Breakpoints {
		if c < bp.CLow || c > bp.CHigh {
			continue
		}
		x := math.Trunc(concentration)
		index := mapRange(x, bp.xLow, bp.xHigh, float64(bp.ILow), float64(bp.IHigh))
		return Result{Index: int(index), Category: bp.Category}
	}

	return Invalid
}

// truncateTenth drops everything past the first decimal. The epsilon keeps
// values like 12.1 (stored as 12.0999...) in their own decile.
func truncateTenth(v float64) float64 {
	return math.Floor(v*10+1e-9) / 10
}

// mapRange linearly maps x from [inMin, inMax] onto [outMin, outMax] and
// clamps the result to the output range.
func mapRange(x, inMin, inMax, outMin, outMax float64) float64 {
	inRange := inMax - inMin
	inDelta := x - inMin

	var mapped float64
	switch {
	case inRange != 0:
		mapped = inDelta / inRange
	case inDelta != 0:
		mapped = inDelta
	default:
		mapped = 0.5
	}
	mapped = mapped*(outMax-outMin) + outMin

	if outMin <= outMax {
		return math.Max(math.Min(mapped, outMax), outMin)
	}
	return math.Min(math.Max(mapped, outMax), outMin)
}
