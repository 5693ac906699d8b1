package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat_Time(t *testing.T) {
	assert.Equal(t, "1.50s", FormatTime(1500*time.Millisecond))
	assert.Equal(t, "2m 5.00s", FormatTime(2*time.Minute+5*time.Second))
}

func TestFormat_Size(t *testing.T) {
	assert.Equal(t, "1.0 kB", FormatSize(1000))
	assert.Equal(t, "0 B", FormatSize(-4))
}

func TestMath_Generics(t *testing.T) {
	assert.Equal(t, 2, Min(2, 3))
	assert.Equal(t, 3, Max(2, 3))
	assert.Equal(t, 4.5, Abs(-4.5))
	assert.Equal(t, 10, Clamp(12, 0, 10))
	assert.True(t, Contains([]string{"a", "b"}, "b"))
}
