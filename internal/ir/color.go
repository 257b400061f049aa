package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Color is an RGB display colour with components in [0, 1].
type Color struct {
	R float32 `json:"r"`
	G float32 `json:"g"`
	B float32 `json:"b"`
}

// NamedColor pairs a palette entry with its display name.
type NamedColor struct {
	Name  string
	Color Color
}

// DefaultColor is used when a stored colour cannot be parsed.
var DefaultColor = Color{R: 0.2, G: 0.4, B: 0.85}

// Palette is the fixed set of investigation colours.
var Palette = []NamedColor{
	{"Red", Color{0.85, 0.2, 0.2}}, {"Blue", Color{0.2, 0.4, 0.85}}, {"Green", Color{0.2, 0.7, 0.3}},
	{"Yellow", Color{0.9, 0.8, 0.2}}, {"Orange", Color{0.9, 0.5, 0.1}}, {"Purple", Color{0.6, 0.3, 0.8}},
	{"Pink", Color{0.9, 0.4, 0.7}}, {"Violet", Color{0.5, 0.2, 0.8}}, {"Crimson", Color{0.8, 0.1, 0.3}},
	{"Azure", Color{0.0, 0.5, 1.0}}, {"Coral", Color{1.0, 0.5, 0.3}}, {"Gold", Color{1.0, 0.8, 0.0}},
	{"Silver", Color{0.7, 0.7, 0.7}}, {"Emerald", Color{0.3, 0.8, 0.5}}, {"Ruby", Color{0.7, 0.1, 0.1}},
	{"Amber", Color{1.0, 0.7, 0.0}}, {"Jade", Color{0.0, 0.7, 0.4}}, {"Cyan", Color{0.0, 0.8, 0.8}},
	{"Lime", Color{0.6, 1.0, 0.2}}, {"Indigo", Color{0.3, 0.0, 0.5}},
}

// String renders the colour in its stored "r,g,b" form.
func (c Color) String() string {
	return fmt.Sprintf("%s,%s,%s", formatComponent(c.R), formatComponent(c.G), formatComponent(c.B))
}

func formatComponent(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

// ParseColor parses the "r,g,b" form. Missing or malformed components fall
// back to the matching component of DefaultColor.
func ParseColor(s string) Color {
	parts := strings.Split(s, ",")
	defaults := [3]float32{DefaultColor.R, DefaultColor.G, DefaultColor.B}
	var out [3]float32
	for i := range out {
		out[i] = defaults[i]
		if i >= len(parts) {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 32)
		if err != nil {
			continue
		}
		out[i] = float32(f)
	}
	return Color{R: out[0], G: out[1], B: out[2]}
}

// ColorName returns the palette name for c, matching each component
// within 0.01. The second result is false when c is not a palette colour.
func ColorName(c Color) (string, bool) {
	for _, nc := range Palette {
		if near(nc.Color.R, c.R) && near(nc.Color.G, c.G) && near(nc.Color.B, c.B) {
			return nc.Name, true
		}
	}
	return "", false
}

// LookupColor finds a palette colour by case-insensitive name.
func LookupColor(name string) (Color, bool) {
	for _, nc := range Palette {
		if strings.EqualFold(nc.Name, name) {
			return nc.Color, true
		}
	}
	return Color{}, false
}

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 0.01
}
