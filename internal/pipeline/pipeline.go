// Package pipeline wires the per-frame identity flow: detector inference,
// decode, suppression, tracking, then either recognition or enrollment
// depending on the active mode. All of it runs on a single tick goroutine;
// only the enrollment-control entry points are called from elsewhere.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/LakePipiCAKA/self-discovery/internal/detect"
	"github.com/LakePipiCAKA/self-discovery/internal/enroll"
	"github.com/LakePipiCAKA/self-discovery/internal/identity"
	"github.com/LakePipiCAKA/self-discovery/internal/profile"
	"github.com/LakePipiCAKA/self-discovery/internal/util/timezone"

	log "github.com/sirupsen/logrus"
	xdraw "golang.org/x/image/draw"
)

// Clock abstracts time for the tick loop so capture intervals and daily
// logging are testable.
type Clock interface {
	Now() time.Time
}

// KioskClock reads the configured kiosk timezone.
type KioskClock struct{}

// Now implements Clock.
func (KioskClock) Now() time.Time { return timezone.Now() }

// Event is a pipeline notification consumed by the SSE hub and the MQTT
// announcer.
type Event struct {
	Type        string `json:"type"`
	IdentityID  string `json:"identity_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	State       string `json:"state,omitempty"`
	Step        int    `json:"step,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Event types emitted by the pipeline.
const (
	EventGreeting       = "greeting"
	EventEnrollment     = "enrollment"
	EventDailySnapshot  = "daily_snapshot"
	EventFaceLost       = "face_lost"
	EventProfileUpdated = "profile_updated"
)

// Notifier receives pipeline events. Implementations must not block the
// tick loop.
type Notifier interface {
	Notify(Event)
}

// SnapshotWriter persists a face crop and returns a stable reference to it.
type SnapshotWriter interface {
	Write(identityID string, crop image.Image) (string, error)
}

// Stats is a point-in-time pipeline counter snapshot.
type Stats struct {
	TicksProcessed   uint64 `json:"ticks_processed"`
	FramesWithFaces  uint64 `json:"frames_with_faces"`
	DecodeErrors     uint64 `json:"decode_errors"`
	ConfirmedMatches uint64 `json:"confirmed_matches"`
	Enrollments      uint64 `json:"enrollments_committed"`
	ActiveTracks     int    `json:"active_tracks"`
}

// Options carries the pipeline tunables.
type Options struct {
	IoUThreshold  float64
	CropSize      int
	MaxEmbeddings int
	Enrollment    enroll.Options
}

// Pipeline owns the per-tick identity flow and the profile cache backing
// the gallery. Profiles are mutated only on the tick goroutine; writes go
// through the single-writer queue.
type Pipeline struct {
	runtime  detect.Runtime
	decoder  *detect.Decoder
	tracker  *identity.Tracker
	matcher  *identity.Matcher
	gallery  *identity.Gallery
	encoder  identity.Encoder
	writer   *profile.Writer
	snaps    SnapshotWriter
	notifier Notifier
	clock    Clock
	opts     Options

	// mu guards everything the API goroutines reach concurrently with the
	// tick goroutine: the profile cache, the gallery, the counters and the
	// enrollment session.
	mu       sync.Mutex
	profiles map[string]*profile.Profile
	session  *enroll.Session
	stats    Stats
}

// New assembles a pipeline over an already-loaded profile set. The gallery
// and matcher are seeded from the profiles.
func New(runtime detect.Runtime, decoder *detect.Decoder, tracker *identity.Tracker,
	gallery *identity.Gallery, matcher *identity.Matcher, encoder identity.Encoder,
	writer *profile.Writer, snaps SnapshotWriter, notifier Notifier, clock Clock,
	profiles map[string]*profile.Profile, opts Options) *Pipeline {

	if clock == nil {
		clock = KioskClock{}
	}
	if profiles == nil {
		profiles = make(map[string]*profile.Profile)
	}
	for id, p := range profiles {
		gallery.Put(id, p.Embeddings)
	}
	return &Pipeline{
		runtime:  runtime,
		decoder:  decoder,
		tracker:  tracker,
		matcher:  matcher,
		gallery:  gallery,
		encoder:  encoder,
		writer:   writer,
		snaps:    snaps,
		notifier: notifier,
		clock:    clock,
		profiles: profiles,
		opts:     opts,
	}
}

// TickResult summarizes what one frame produced.
type TickResult struct {
	Faces   []*identity.TrackedFace
	Matches map[int]identity.MatchResult
}

// Tick processes one frame end to end. A decode error skips the frame and
// is reported; the loop keeps running.
func (p *Pipeline) Tick(ctx context.Context, frame image.Image) (TickResult, error) {
	p.mu.Lock()
	p.stats.TicksProcessed++
	p.mu.Unlock()

	raw, err := p.runtime.Infer(ctx, frame)
	if err != nil {
		return TickResult{}, fmt.Errorf("detector inference: %w", err)
	}

	detections, err := p.decoder.Decode(raw)
	if err != nil {
		var derr *detect.DecodeError
		if errors.As(err, &derr) {
			p.mu.Lock()
			p.stats.DecodeErrors++
			p.mu.Unlock()
			log.Warnf("Skipping frame: %v", derr)
			return TickResult{}, nil
		}
		return TickResult{}, err
	}

	kept := detect.Suppress(detections, p.opts.IoUThreshold)
	scaled := scaleToFrame(kept, raw.InputWidth, raw.InputHeight, frame.Bounds())

	faces, expired := p.tracker.Update(scaled)

	p.mu.Lock()
	for _, id := range expired {
		p.matcher.Forget(id)
	}
	if len(faces) > 0 {
		p.stats.FramesWithFaces++
	}
	p.stats.ActiveTracks = len(faces)
	session := p.session
	enrolling := session != nil && !session.Done()
	p.mu.Unlock()

	for range expired {
		p.emit(Event{Type: EventFaceLost})
	}

	result := TickResult{Faces: faces, Matches: make(map[int]identity.MatchResult)}

	if enrolling {
		p.tickEnrollment(ctx, session, frame, faces)
		return result, nil
	}

	p.tickRecognition(ctx, frame, faces, result.Matches)
	return result, nil
}

// tickRecognition embeds each tracked face and runs it against the gallery.
func (p *Pipeline) tickRecognition(ctx context.Context, frame image.Image, faces []*identity.TrackedFace, out map[int]identity.MatchResult) {
	for _, face := range faces {
		crop := cropFace(frame, face.Detection.Rect(), p.opts.CropSize)
		embedding, err := p.encoder.Embed(ctx, crop)
		if err != nil {
			if errors.Is(err, identity.ErrNoFaceInCrop) {
				log.Debugf("Track %d: encoder found no face in crop", face.ID)
				continue
			}
			log.Errorf("Track %d: embedding failed: %v", face.ID, err)
			continue
		}

		p.mu.Lock()
		if p.gallery.Len() == 0 {
			// No enrolled identities yet; present everyone as unmatched
			// rather than failing the tick.
			log.Debugf("Track %d: %v", face.ID, identity.ErrGalleryEmpty)
			out[face.ID] = identity.MatchResult{State: identity.Unmatched}
			p.mu.Unlock()
			continue
		}

		match := p.matcher.Match(face.ID, embedding)
		out[face.ID] = match

		if match.State == identity.Confirmed {
			p.onConfirmed(ctx, match, crop, embedding)
		}
		p.mu.Unlock()
	}
}

// onConfirmed handles a newly or still confirmed identity: greeting events
// every tick, plus at most one snapshot per (date, period). The caller
// holds p.mu.
func (p *Pipeline) onConfirmed(ctx context.Context, match identity.MatchResult, crop image.Image, embedding []float32) {
	prof, ok := p.profiles[match.IdentityID]
	if !ok {
		log.Warnf("Confirmed identity %q has no loaded profile", match.IdentityID)
		return
	}

	p.stats.ConfirmedMatches++
	p.emit(Event{
		Type:        EventGreeting,
		IdentityID:  prof.IdentityID,
		DisplayName: prof.DisplayName,
	})

	now := p.clock.Now()
	date := timezone.DateKey(now)
	period := timezone.Period(now)
	if period == timezone.PeriodNone {
		return
	}
	if prof.DailyCaptureLog[profile.CaptureLogKey(date, period)] {
		return
	}

	// Mutate a clone and persist it first; the live profile and gallery
	// only advance once the store accepted the write.
	updated := prof.Clone()
	if !updated.MarkDailyCapture(date, period) {
		return
	}

	ref := ""
	if p.snaps != nil {
		var err error
		ref, err = p.snaps.Write(prof.IdentityID, crop)
		if err != nil {
			log.Errorf("Daily snapshot for %q failed: %v", prof.IdentityID, err)
			return
		}
	}
	updated.AppendEmbedding(embedding, ref)

	if err := p.writer.Save(ctx, updated); err != nil {
		log.Errorf("Daily snapshot save for %q failed, keeping in-memory state unchanged: %v", prof.IdentityID, err)
		return
	}

	p.profiles[prof.IdentityID] = updated
	p.gallery.Put(updated.IdentityID, updated.Embeddings)
	p.emit(Event{
		Type:        EventDailySnapshot,
		IdentityID:  updated.IdentityID,
		DisplayName: updated.DisplayName,
		Message:     ref,
	})
}

// tickEnrollment advances the active session with this frame. Session
// reads and transitions happen under p.mu; the embedding and snapshot
// calls run unlocked.
func (p *Pipeline) tickEnrollment(ctx context.Context, session *enroll.Session, frame image.Image, faces []*identity.TrackedFace) {
	p.mu.Lock()
	state := session.State()
	switch state {
	case enroll.StatePrompting:
		step := session.Step()
		session.Prompt()
		p.mu.Unlock()
		p.emit(Event{
			Type:  EventEnrollment,
			State: state.String(),
			Step:  step,
		})

	case enroll.StateCapturing:
		eligible := session.CaptureEligible(p.clock.Now())
		p.mu.Unlock()
		if !eligible {
			return
		}
		face, ok := largestFace(faces)
		if !ok {
			return
		}
		crop := cropFace(frame, face.Detection.Rect(), p.opts.CropSize)
		embedding, err := p.encoder.Embed(ctx, crop)
		if err != nil {
			if !errors.Is(err, identity.ErrNoFaceInCrop) {
				log.Errorf("Enrollment capture embedding failed: %v", err)
			}
			return
		}

		ref := ""
		if p.snaps != nil {
			req := session.Request()
			ref, err = p.snaps.Write(profile.IdentityID(req.DisplayName), crop)
			if err != nil {
				log.Errorf("Enrollment capture snapshot failed: %v", err)
				return
			}
		}

		p.mu.Lock()
		session.Capture(embedding, ref, p.clock.Now())
		filtering := session.State() == enroll.StateFiltering
		p.mu.Unlock()

		if filtering {
			p.finishEnrollment(ctx, session)
		}

	default:
		p.mu.Unlock()
	}
}

// finishEnrollment filters the collected samples and persists the new
// identity. The session only reaches Committed after the store accepted
// the write; a failed save cancels it.
func (p *Pipeline) finishEnrollment(ctx context.Context, session *enroll.Session) {
	p.mu.Lock()
	embeddings, refs, err := session.Filter()
	if err != nil {
		state := session.State().String()
		p.mu.Unlock()
		p.emit(Event{
			Type:    EventEnrollment,
			State:   state,
			Message: err.Error(),
		})
		return
	}
	p.mu.Unlock()

	prof := session.BuildProfile(embeddings, refs, p.opts.MaxEmbeddings)
	if err := p.writer.Save(ctx, prof); err != nil {
		p.mu.Lock()
		session.Cancel(err)
		state := session.State().String()
		p.mu.Unlock()
		p.emit(Event{
			Type:    EventEnrollment,
			State:   state,
			Message: err.Error(),
		})
		return
	}

	p.mu.Lock()
	session.Commit()
	state := session.State().String()
	p.profiles[prof.IdentityID] = prof
	p.gallery.Put(prof.IdentityID, prof.Embeddings)
	p.matcher.Reset()
	p.stats.Enrollments++
	p.mu.Unlock()

	p.emit(Event{
		Type:        EventEnrollment,
		State:       state,
		IdentityID:  prof.IdentityID,
		DisplayName: prof.DisplayName,
	})
	p.emit(Event{Type: EventProfileUpdated, IdentityID: prof.IdentityID})
}

// BeginEnrollment opens a session, switching the pipeline into enrollment
// mode. Only one session may be active at a time.
func (p *Pipeline) BeginEnrollment(req enroll.Request) (enroll.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil && !p.session.Done() {
		return enroll.Status{}, fmt.Errorf("enrollment already in progress for %q", p.session.Request().DisplayName)
	}
	session, err := enroll.Begin(req, p.opts.Enrollment)
	if err != nil {
		return enroll.Status{}, err
	}
	p.session = session
	return session.Status(), nil
}

// CancelEnrollment abandons the active session, if any, and returns to
// recognition mode.
func (p *Pipeline) CancelEnrollment() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil || p.session.Done() {
		return false
	}
	p.session.Cancel(errors.New("cancelled by operator"))
	p.emit(Event{Type: EventEnrollment, State: p.session.State().String()})
	return true
}

// EnrollmentStatus snapshots the active session for API readers; ok is
// false when the pipeline is in recognition mode. The live session never
// leaves the pipeline, so readers cannot race its transitions.
func (p *Pipeline) EnrollmentStatus() (enroll.Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return enroll.Status{}, false
	}
	return p.session.Status(), true
}

// Profiles returns deep copies of the loaded profiles for read-only API use.
func (p *Pipeline) Profiles() []*profile.Profile {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*profile.Profile, 0, len(p.profiles))
	for _, id := range p.gallery.IDs() {
		if prof, ok := p.profiles[id]; ok {
			out = append(out, prof.Clone())
		}
	}
	return out
}

// Profile returns a copy of one profile.
func (p *Pipeline) Profile(identityID string) (*profile.Profile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prof, ok := p.profiles[identityID]
	if !ok {
		return nil, false
	}
	return prof.Clone(), true
}

// RemoveProfile drops an identity from the in-memory gallery. The caller is
// responsible for store-side deletion.
func (p *Pipeline) RemoveProfile(identityID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.profiles, identityID)
	p.gallery.Remove(identityID)
	p.matcher.Reset()
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Pipeline) emit(ev Event) {
	if p.notifier != nil {
		p.notifier.Notify(ev)
	}
}

// scaleToFrame maps detections from model input coordinates to frame
// coordinates.
func scaleToFrame(detections []detect.Detection, inputW, inputH int, frame image.Rectangle) []detect.Detection {
	if inputW <= 0 || inputH <= 0 {
		return detections
	}
	sx := float64(frame.Dx()) / float64(inputW)
	sy := float64(frame.Dy()) / float64(inputH)
	out := make([]detect.Detection, len(detections))
	for i, d := range detections {
		out[i] = detect.Detection{
			X:      frame.Min.X + int(float64(d.X)*sx),
			Y:      frame.Min.Y + int(float64(d.Y)*sy),
			Width:  int(float64(d.Width) * sx),
			Height: int(float64(d.Height) * sy),
			Score:  d.Score,
		}
	}
	return out
}

// largestFace picks the biggest tracked face by box area.
func largestFace(faces []*identity.TrackedFace) (*identity.TrackedFace, bool) {
	var best *identity.TrackedFace
	bestArea := -1
	for _, f := range faces {
		area := f.Detection.Width * f.Detection.Height
		if area > bestArea {
			bestArea = area
			best = f
		}
	}
	return best, best != nil
}

// cropFace cuts the face region out of the frame and scales it to the
// square encoder input size.
func cropFace(frame image.Image, rect image.Rectangle, size int) image.Image {
	rect = rect.Intersect(frame.Bounds())
	if rect.Empty() {
		rect = frame.Bounds()
	}
	if size <= 0 {
		size = 160
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, rect, xdraw.Over, nil)
	return dst
}
