package identity

import (
	"errors"
	"math"
)

var infDistance = math.Inf(1)

// ErrGalleryEmpty indicates there are no enrolled identities. Recognition
// degrades to always-unmatched rather than failing the tick.
var ErrGalleryEmpty = errors.New("identity gallery is empty")

// ConfidenceState describes how settled a match decision is.
type ConfidenceState int

const (
	// Unmatched means no gallery identity was within the distance threshold.
	Unmatched ConfidenceState = iota
	// Tentative means the best match is below threshold but has not yet
	// held for enough consecutive frames.
	Tentative
	// Confirmed means the same best match held for the stability window.
	Confirmed
)

func (s ConfidenceState) String() string {
	switch s {
	case Tentative:
		return "tentative"
	case Confirmed:
		return "confirmed"
	default:
		return "unmatched"
	}
}

// MatchResult is the per-face, per-frame match decision.
type MatchResult struct {
	// IdentityID is the best-matching identity, empty when unmatched.
	IdentityID string `json:"identity_id,omitempty"`
	// Distance is the best-case Euclidean distance to that identity.
	Distance float64 `json:"distance"`
	// State reflects the temporal-stability decision for the tracked face.
	State ConfidenceState `json:"state"`
}

// streak tracks consecutive frames with the same best-match candidate for
// one tracked face.
type streak struct {
	identityID string
	count      int
}

// Matcher decides which enrolled identity, if any, a probe embedding
// belongs to. A single below-threshold frame only yields a tentative match;
// confirmation requires the same best match on stabilityFrames consecutive
// frames of the same tracked face.
type Matcher struct {
	gallery         *Gallery
	threshold       float64
	stabilityFrames int
	streaks         map[int]*streak
}

// NewMatcher creates a matcher over the given gallery.
func NewMatcher(gallery *Gallery, threshold float64, stabilityFrames int) *Matcher {
	if stabilityFrames < 1 {
		stabilityFrames = 1
	}
	return &Matcher{
		gallery:         gallery,
		threshold:       threshold,
		stabilityFrames: stabilityFrames,
		streaks:         make(map[int]*streak),
	}
}

// Gallery returns the gallery the matcher reads from.
func (m *Matcher) Gallery() *Gallery {
	return m.gallery
}

// Match evaluates a probe embedding for the given tracked face and updates
// that face's stability counter. The best match is the identity with the
// smallest best-case distance below threshold; equal distances resolve to
// the first identity in gallery iteration order (ascending identity ID).
func (m *Matcher) Match(trackID int, probe []float32) MatchResult {
	bestID := ""
	bestDistance := infDistance

	for _, id := range m.gallery.IDs() {
		d := m.gallery.Distance(id, probe)
		if d >= m.threshold {
			continue
		}
		// Strictly smaller wins, so the first identity in iteration
		// order keeps a tie.
		if d < bestDistance {
			bestID = id
			bestDistance = d
		}
	}

	if bestID == "" {
		// No candidate below threshold resets the face's streak.
		delete(m.streaks, trackID)
		return MatchResult{Distance: bestDistance, State: Unmatched}
	}

	s := m.streaks[trackID]
	if s == nil || s.identityID != bestID {
		s = &streak{identityID: bestID, count: 1}
		m.streaks[trackID] = s
	} else {
		s.count++
	}

	state := Tentative
	if s.count >= m.stabilityFrames {
		state = Confirmed
	}

	return MatchResult{
		IdentityID: bestID,
		Distance:   bestDistance,
		State:      state,
	}
}

// Forget drops the stability counter of a tracked face that disappeared.
func (m *Matcher) Forget(trackID int) {
	delete(m.streaks, trackID)
}

// Reset clears all stability counters, e.g. when switching modes.
func (m *Matcher) Reset() {
	m.streaks = make(map[int]*streak)
}
