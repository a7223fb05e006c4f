package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b Detection
		want float64
	}{
		{
			name: "identical boxes",
			a:    Detection{X: 0, Y: 0, Width: 100, Height: 100},
			b:    Detection{X: 0, Y: 0, Width: 100, Height: 100},
			want: 1.0,
		},
		{
			name: "no overlap",
			a:    Detection{X: 0, Y: 0, Width: 50, Height: 50},
			b:    Detection{X: 100, Y: 100, Width: 50, Height: 50},
			want: 0.0,
		},
		{
			name: "half horizontal overlap",
			a:    Detection{X: 0, Y: 0, Width: 100, Height: 100},
			b:    Detection{X: 50, Y: 0, Width: 100, Height: 100},
			// intersection 5000, union 15000
			want: 1.0 / 3.0,
		},
		{
			name: "zero area boxes",
			a:    Detection{X: 10, Y: 10, Width: 0, Height: 0},
			b:    Detection{X: 10, Y: 10, Width: 0, Height: 0},
			want: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, IoU(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSuppressKeepsHighestScore(t *testing.T) {
	dets := []Detection{
		{X: 0, Y: 0, Width: 100, Height: 100, Score: 0.7},
		{X: 5, Y: 5, Width: 100, Height: 100, Score: 0.9},
		{X: 300, Y: 300, Width: 80, Height: 80, Score: 0.5},
	}

	kept := Suppress(dets, 0.4)
	require.Len(t, kept, 2)
	assert.InDelta(t, 0.9, float64(kept[0].Score), 1e-6)
	assert.InDelta(t, 0.5, float64(kept[1].Score), 1e-6)
}

func TestSuppressPairwiseBelowThreshold(t *testing.T) {
	dets := []Detection{
		{X: 0, Y: 0, Width: 100, Height: 100, Score: 0.9},
		{X: 10, Y: 0, Width: 100, Height: 100, Score: 0.8},
		{X: 20, Y: 0, Width: 100, Height: 100, Score: 0.7},
		{X: 200, Y: 200, Width: 50, Height: 50, Score: 0.6},
		{X: 205, Y: 200, Width: 50, Height: 50, Score: 0.5},
	}

	threshold := 0.4
	kept := Suppress(dets, threshold)
	for i := range kept {
		for j := i + 1; j < len(kept); j++ {
			assert.Less(t, IoU(kept[i], kept[j]), threshold,
				"kept boxes %d and %d overlap too much", i, j)
		}
	}
}

func TestSuppressScoreTieIsStable(t *testing.T) {
	dets := []Detection{
		{X: 0, Y: 0, Width: 100, Height: 100, Score: 0.8},
		{X: 2, Y: 2, Width: 100, Height: 100, Score: 0.8},
	}

	kept := Suppress(dets, 0.4)
	require.Len(t, kept, 1)
	assert.Equal(t, 0, kept[0].X)
}

func TestSuppressEmptyInput(t *testing.T) {
	assert.Nil(t, Suppress(nil, 0.4))
	assert.Nil(t, Suppress([]Detection{}, 0.4))
}

func TestSuppressSingleDetection(t *testing.T) {
	dets := []Detection{{X: 10, Y: 20, Width: 30, Height: 40, Score: 0.7}}

	kept := Suppress(dets, 0.4)
	require.Len(t, kept, 1)
	assert.Equal(t, dets[0], kept[0])
}

func TestSuppressDoesNotMutateInput(t *testing.T) {
	dets := []Detection{
		{X: 100, Y: 0, Width: 50, Height: 50, Score: 0.3},
		{X: 0, Y: 0, Width: 50, Height: 50, Score: 0.9},
	}
	Suppress(dets, 0.4)
	assert.Equal(t, 100, dets[0].X)
	assert.InDelta(t, 0.3, float64(dets[0].Score), 1e-6)
}
