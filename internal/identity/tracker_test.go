package identity

import (
	"testing"

	"github.com/LakePipiCAKA/self-discovery/internal/detect"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerAssignsStableIDs(t *testing.T) {
	tr := NewTracker(0.3, 2)

	faces, expired := tr.Update([]detect.Detection{
		{X: 100, Y: 100, Width: 80, Height: 80, Score: 0.9},
	})
	require.Len(t, faces, 1)
	assert.Empty(t, expired)
	firstID := faces[0].ID

	// Slight jitter keeps the same track.
	faces, _ = tr.Update([]detect.Detection{
		{X: 105, Y: 102, Width: 80, Height: 80, Score: 0.85},
	})
	require.Len(t, faces, 1)
	assert.Equal(t, firstID, faces[0].ID)
}

func TestTrackerNewFaceGetsNewID(t *testing.T) {
	tr := NewTracker(0.3, 2)

	faces, _ := tr.Update([]detect.Detection{
		{X: 0, Y: 0, Width: 50, Height: 50, Score: 0.9},
	})
	firstID := faces[0].ID

	faces, _ = tr.Update([]detect.Detection{
		{X: 0, Y: 0, Width: 50, Height: 50, Score: 0.9},
		{X: 400, Y: 400, Width: 50, Height: 50, Score: 0.8},
	})
	require.Len(t, faces, 2)
	assert.Equal(t, firstID, faces[0].ID)
	assert.NotEqual(t, firstID, faces[1].ID)
}

func TestTrackerExpiresAfterMaxMisses(t *testing.T) {
	tr := NewTracker(0.3, 2)

	faces, _ := tr.Update([]detect.Detection{
		{X: 0, Y: 0, Width: 50, Height: 50, Score: 0.9},
	})
	id := faces[0].ID

	// Two empty frames survive, the third expires the track.
	_, expired := tr.Update(nil)
	assert.Empty(t, expired)
	_, expired = tr.Update(nil)
	assert.Empty(t, expired)
	_, expired = tr.Update(nil)
	require.Len(t, expired, 1)
	assert.Equal(t, id, expired[0])

	// A face at the same spot gets a fresh ID now.
	faces, _ = tr.Update([]detect.Detection{
		{X: 0, Y: 0, Width: 50, Height: 50, Score: 0.9},
	})
	assert.NotEqual(t, id, faces[0].ID)
}

func TestTrackerReappearanceWithinWindow(t *testing.T) {
	tr := NewTracker(0.3, 2)

	faces, _ := tr.Update([]detect.Detection{
		{X: 0, Y: 0, Width: 50, Height: 50, Score: 0.9},
	})
	id := faces[0].ID

	tr.Update(nil)

	faces, _ = tr.Update([]detect.Detection{
		{X: 2, Y: 2, Width: 50, Height: 50, Score: 0.9},
	})
	require.Len(t, faces, 1)
	assert.Equal(t, id, faces[0].ID)
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker(0.3, 2)
	faces, _ := tr.Update([]detect.Detection{
		{X: 0, Y: 0, Width: 50, Height: 50, Score: 0.9},
	})
	id := faces[0].ID

	tr.Reset()

	faces, _ = tr.Update([]detect.Detection{
		{X: 0, Y: 0, Width: 50, Height: 50, Score: 0.9},
	})
	assert.NotEqual(t, id, faces[0].ID)
}
