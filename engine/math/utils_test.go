package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(3, 5, 10))
	assert.Equal(t, 10, Clamp(12, 5, 10))
	assert.Equal(t, 7, Clamp(7, 5, 10))
	assert.Equal(t, 0.5, Clamp(0.5, 0.0, 1.0))
}

func TestMax(t *testing.T) {
	assert.Equal(t, 10, Max(5, 10))
	assert.Equal(t, 10, Max(10, 5))
	assert.Equal(t, 1.5, Max(1.5, -2.0))
}

func TestMin(t *testing.T) {
	assert.Equal(t, 5, Min(5, 10))
	assert.Equal(t, 5, Min(10, 5))
	assert.Equal(t, -2.0, Min(1.5, -2.0))
}
