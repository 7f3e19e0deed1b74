package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloatEquals(t *testing.T) {
	assert.True(t, FloatEquals(0.1+0.2, 0.3))
	assert.False(t, FloatEquals(0.3, 0.300001))
}

func TestRoundToPrecision(t *testing.T) {
	assert.InDelta(t, 45.68, RoundToPrecision(45.6789, 2), 1e-12)
	assert.InDelta(t, 46.0, RoundToPrecision(45.6789, 0), 1e-12)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.5))
	assert.Equal(t, 1.0, Clamp01(1.5))
	assert.Equal(t, 0.42, Clamp01(0.42))
}
