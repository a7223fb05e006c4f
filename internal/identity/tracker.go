package identity

import (
	"github.com/LakePipiCAKA/self-discovery/internal/detect"
)

// TrackedFace is one face with a stable ID across frames.
type TrackedFace struct {
	ID        int
	Detection detect.Detection
	misses    int
}

// Tracker assigns stable IDs to face boxes across frames by greedy IoU
// association against the previous frame. It exists so the matcher's
// stability counters survive small box jitter between ticks.
type Tracker struct {
	tracks       []*TrackedFace
	nextID       int
	iouThreshold float64
	maxMisses    int
}

// NewTracker creates a tracker. Boxes overlapping an existing track by at
// least iouThreshold continue that track; a track missing for more than
// maxMisses frames is dropped.
func NewTracker(iouThreshold float64, maxMisses int) *Tracker {
	return &Tracker{
		nextID:       1,
		iouThreshold: iouThreshold,
		maxMisses:    maxMisses,
	}
}

// Update associates the current frame's detections with existing tracks and
// returns the tracked faces for this frame, plus the IDs of tracks that
// expired (so their match streaks can be forgotten).
func (t *Tracker) Update(detections []detect.Detection) (faces []*TrackedFace, expired []int) {
	assigned := make(map[int]bool, len(t.tracks))

	for _, det := range detections {
		bestIdx := -1
		bestIoU := t.iouThreshold
		for i, track := range t.tracks {
			if assigned[i] {
				continue
			}
			if iou := detect.IoU(track.Detection, det); iou >= bestIoU {
				bestIoU = iou
				bestIdx = i
			}
		}

		var face *TrackedFace
		if bestIdx >= 0 {
			face = t.tracks[bestIdx]
			face.Detection = det
			face.misses = 0
			assigned[bestIdx] = true
		} else {
			face = &TrackedFace{ID: t.nextID, Detection: det}
			t.nextID++
			t.tracks = append(t.tracks, face)
			assigned[len(t.tracks)-1] = true
		}
		faces = append(faces, face)
	}

	// Age out tracks that got no box this frame.
	survivors := t.tracks[:0]
	for i, track := range t.tracks {
		if assigned[i] {
			survivors = append(survivors, track)
			continue
		}
		track.misses++
		if track.misses > t.maxMisses {
			expired = append(expired, track.ID)
			continue
		}
		survivors = append(survivors, track)
	}
	t.tracks = survivors

	return faces, expired
}

// Reset drops all tracks.
func (t *Tracker) Reset() {
	t.tracks = nil
}
