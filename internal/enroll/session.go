// Package enroll drives the multi-sample capture sequence that builds a new
// identity record, filtering outlier captures before commit.
package enroll

import (
	"errors"
	"fmt"
	"time"

	"github.com/LakePipiCAKA/self-discovery/internal/identity"
	"github.com/LakePipiCAKA/self-discovery/internal/profile"

	log "github.com/sirupsen/logrus"
)

// State is the enrollment state machine position.
type State int

const (
	// StateIdle means no session is active.
	StateIdle State = iota
	// StatePrompting shows the capture instruction for the current step.
	StatePrompting
	// StateCapturing waits for an eligible face-bearing frame.
	StateCapturing
	// StateFiltering runs the outlier filter over the collected samples.
	StateFiltering
	// StateCommitted is terminal: the filtered samples form a profile.
	StateCommitted
	// StateCancelled is terminal: the session was abandoned, nothing
	// was persisted.
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePrompting:
		return "prompting"
	case StateCapturing:
		return "capturing"
	case StateFiltering:
		return "filtering"
	case StateCommitted:
		return "committed"
	case StateCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// ErrNoValidSamples means every collected sample was an outlier and the
// session cancelled instead of committing.
var ErrNoValidSamples = errors.New("no valid samples after outlier filtering")

// Request carries the profile fields for a new enrollment. Name, city and
// country are required; the rest is optional.
type Request struct {
	DisplayName string           `json:"display_name"`
	Location    profile.Location `json:"location"`
	DateOfBirth string           `json:"date_of_birth,omitempty"`
	Sex         string           `json:"sex,omitempty"`
}

// validate rejects requests missing required fields before any capture.
func (r Request) validate() error {
	probe := profile.Profile{
		IdentityID:  profile.IdentityID(r.DisplayName),
		DisplayName: r.DisplayName,
		Location:    r.Location,
	}
	return probe.Validate()
}

// sample is one accepted capture.
type sample struct {
	embedding []float32
	imageRef  string
}

// Options are the tunable session parameters.
type Options struct {
	// SamplesRequired is the number of captures before filtering (3 or 4
	// in practice).
	SamplesRequired int
	// MinCaptureInterval is the minimum spacing between captures.
	MinCaptureInterval time.Duration
	// OutlierThreshold is the maximum distance from the mean embedding a
	// sample may have and still be kept.
	OutlierThreshold float64
}

// Session is one in-flight enrollment. It lives from Begin until a terminal
// state and owns its unsaved samples; cancellation discards them without
// touching the store.
type Session struct {
	request     Request
	opts        Options
	state       State
	step        int
	samples     []sample
	lastCapture time.Time
	cancelCause error
}

// Begin validates the request and opens a session in Prompting(0).
// An invalid request yields a session already in Cancelled so callers can
// inspect the cause uniformly.
func Begin(req Request, opts Options) (*Session, error) {
	if opts.SamplesRequired <= 0 {
		opts.SamplesRequired = 4
	}
	if opts.MinCaptureInterval <= 0 {
		opts.MinCaptureInterval = 2 * time.Second
	}
	if opts.OutlierThreshold <= 0 {
		opts.OutlierThreshold = 0.5
	}

	s := &Session{request: req, opts: opts}

	if err := req.validate(); err != nil {
		s.state = StateCancelled
		s.cancelCause = err
		log.Warnf("Enrollment request for %q rejected: %v", req.DisplayName, err)
		return s, err
	}

	s.state = StatePrompting
	log.Infof("Enrollment started for %q (%d samples required)", req.DisplayName, opts.SamplesRequired)
	return s, nil
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Step returns the zero-based capture step, meaningful in
// Prompting/Capturing.
func (s *Session) Step() int {
	return s.step
}

// SamplesRequired returns the configured capture count.
func (s *Session) SamplesRequired() int {
	return s.opts.SamplesRequired
}

// SamplesCollected returns how many captures have been accepted so far.
func (s *Session) SamplesCollected() int {
	return len(s.samples)
}

// Request returns the originating request.
func (s *Session) Request() Request {
	return s.request
}

// CancelCause reports why a cancelled session ended, nil otherwise.
func (s *Session) CancelCause() error {
	return s.cancelCause
}

// Status is a point-in-time view of a session, safe to hand to other
// goroutines once built.
type Status struct {
	State            State  `json:"-"`
	Step             int    `json:"step"`
	SamplesCollected int    `json:"samples_collected"`
	SamplesRequired  int    `json:"samples_required"`
	DisplayName      string `json:"display_name"`
	CancelCause      string `json:"cancel_cause,omitempty"`
}

// Status snapshots the session. Callers must hold the lock that serializes
// session mutations while building it.
func (s *Session) Status() Status {
	st := Status{
		State:            s.state,
		Step:             s.step,
		SamplesCollected: len(s.samples),
		SamplesRequired:  s.opts.SamplesRequired,
		DisplayName:      s.request.DisplayName,
	}
	if s.cancelCause != nil {
		st.CancelCause = s.cancelCause.Error()
	}
	return st
}

// Done reports whether the session reached a terminal state.
func (s *Session) Done() bool {
	return s.state == StateCommitted || s.state == StateCancelled
}

// Prompt acknowledges the instruction for the current step and moves
// Prompting(i) to Capturing(i). The prompt itself is informational only;
// the text lives with the presentation layer.
func (s *Session) Prompt() {
	if s.state == StatePrompting {
		s.state = StateCapturing
	}
}

// CaptureEligible reports whether a capture attempt may run this tick:
// the session must be in Capturing and the minimum inter-capture interval
// must have elapsed since the previous accepted capture.
func (s *Session) CaptureEligible(now time.Time) bool {
	if s.state != StateCapturing {
		return false
	}
	if len(s.samples) == 0 {
		return true
	}
	return now.Sub(s.lastCapture) >= s.opts.MinCaptureInterval
}

// Capture stores an extracted embedding for the current step and advances
// the machine: to Prompting(i+1), or to Filtering once the last required
// sample is in. Calling it when not eligible is a no-op by contract; the
// caller gates on CaptureEligible.
func (s *Session) Capture(embedding []float32, imageRef string, now time.Time) {
	if s.state != StateCapturing {
		return
	}

	s.samples = append(s.samples, sample{embedding: embedding, imageRef: imageRef})
	s.lastCapture = now
	s.step++
	log.Debugf("Enrollment capture %d/%d accepted for %q", len(s.samples), s.opts.SamplesRequired, s.request.DisplayName)

	if s.step >= s.opts.SamplesRequired {
		s.state = StateFiltering
		return
	}
	s.state = StatePrompting
}

// Filter runs the outlier filter: samples whose embedding lies farther from
// the mean of all collected embeddings than the outlier threshold are
// dropped. With no survivors the session cancels with ErrNoValidSamples;
// otherwise it stays in Filtering until the caller persists the survivors
// and calls Commit, or fails and calls Cancel.
func (s *Session) Filter() ([][]float32, []string, error) {
	if s.state != StateFiltering {
		return nil, nil, fmt.Errorf("filter called in state %s", s.state)
	}

	embeddings := make([][]float32, len(s.samples))
	for i, smp := range s.samples {
		embeddings[i] = smp.embedding
	}
	mean := identity.MeanEmbedding(embeddings)

	var keptEmbeddings [][]float32
	var keptRefs []string
	for i, smp := range s.samples {
		d := identity.EuclideanDistance(smp.embedding, mean)
		if d > s.opts.OutlierThreshold {
			log.Infof("Enrollment sample %d for %q dropped as outlier (distance %.3f)", i, s.request.DisplayName, d)
			continue
		}
		keptEmbeddings = append(keptEmbeddings, smp.embedding)
		keptRefs = append(keptRefs, smp.imageRef)
	}

	if len(keptEmbeddings) == 0 {
		s.state = StateCancelled
		s.cancelCause = ErrNoValidSamples
		return nil, nil, ErrNoValidSamples
	}

	log.Infof("Enrollment filter for %q kept %d/%d sample(s)", s.request.DisplayName, len(keptEmbeddings), len(s.samples))
	return keptEmbeddings, keptRefs, nil
}

// Commit marks the session committed once the filtered samples have been
// persisted. It is only valid from Filtering; the state must not report
// committed for a profile the store never accepted.
func (s *Session) Commit() {
	if s.state != StateFiltering {
		return
	}
	s.state = StateCommitted
	log.Infof("Enrollment for %q committed", s.request.DisplayName)
}

// Cancel abandons the session from any non-terminal state. Unsaved samples
// are discarded; nothing reaches the store.
func (s *Session) Cancel(cause error) {
	if s.Done() {
		return
	}
	s.state = StateCancelled
	s.cancelCause = cause
	log.Infof("Enrollment for %q cancelled: %v", s.request.DisplayName, cause)
}

// BuildProfile assembles the profile record for a committed session.
func (s *Session) BuildProfile(embeddings [][]float32, imageRefs []string, maxEmbeddings int) *profile.Profile {
	return &profile.Profile{
		IdentityID:      profile.IdentityID(s.request.DisplayName),
		DisplayName:     s.request.DisplayName,
		Location:        s.request.Location,
		DateOfBirth:     s.request.DateOfBirth,
		Sex:             s.request.Sex,
		Embeddings:      embeddings,
		SampleImageRefs: imageRefs,
		DailyCaptureLog: make(map[string]bool),
		MaxEmbeddings:   maxEmbeddings,
	}
}
