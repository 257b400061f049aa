package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorStringRoundTrip(t *testing.T) {
	c := Color{R: 0.85, G: 0.2, B: 0.2}
	assert.Equal(t, "0.85,0.2,0.2", c.String())
	assert.Equal(t, c, ParseColor(c.String()))
}

func TestParseColorFallsBack(t *testing.T) {
	assert.Equal(t, DefaultColor, ParseColor(""))
	assert.Equal(t, Color{R: 0.5, G: 0.4, B: 0.85}, ParseColor("0.5,oops"))
}

func TestColorName(t *testing.T) {
	name, ok := ColorName(Color{R: 0.851, G: 0.199, B: 0.2})
	assert.True(t, ok)
	assert.Equal(t, "Red", name)

	_, ok = ColorName(Color{R: 0.123, G: 0.456, B: 0.789})
	assert.False(t, ok)
}

func TestLookupColor(t *testing.T) {
	c, ok := LookupColor("azure")
	assert.True(t, ok)
	assert.Equal(t, Color{R: 0.0, G: 0.5, B: 1.0}, c)

	_, ok = LookupColor("mauve")
	assert.False(t, ok)
}
