package gen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMean(t *testing.T) {
	require.Equal(t, 0.0, Mean([]float64{}))
	require.Equal(t, 2.0, Mean([]float64{1, 2, 3}))
}

func TestMode(t *testing.T) {
	mode, count := Mode([]string{})
	require.Equal(t, "", mode)
	require.Equal(t, 0, count)

	mode, count = Mode([]string{"a", "b", "b", "c"})
	require.Equal(t, "b", mode)
	require.Equal(t, 2, count)

	// First-seen wins a tie
	mode, _ = Mode([]string{"x", "y", "y", "x"})
	require.Equal(t, "x", mode)
}
