// Package profile defines the persistent identity record and the store
// contract the pipeline consumes it through.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Store failures surfaced to callers. The pipeline never touches the
// backing medium directly.
var (
	// ErrMissingRequiredField rejects an enrollment request or profile
	// lacking name, city or country.
	ErrMissingRequiredField = errors.New("missing required profile field")
	// ErrStoreWrite reports a failed persistence attempt. The caller must
	// not apply the in-memory mutation it was about to make.
	ErrStoreWrite = errors.New("profile store write failed")
)

// DefaultMaxEmbeddings bounds the rolling embedding window per profile.
const DefaultMaxEmbeddings = 10

// Location is where a profile's owner lives, used for the weather display.
type Location struct {
	City    string  `json:"city"`
	State   string  `json:"state,omitempty"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Name renders the location as "City, State, Country", skipping empty parts.
func (l Location) Name() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.City, l.State, l.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Profile is the durable identity record owned by the store. The pipeline
// holds only transient copies plus the single in-flight enrollment session.
type Profile struct {
	// IdentityID is the unique key, derived from the display name.
	IdentityID  string   `json:"identity_id"`
	DisplayName string   `json:"display_name"`
	Location    Location `json:"location"`
	DateOfBirth string   `json:"date_of_birth,omitempty"`
	Sex         string   `json:"sex,omitempty"`
	// Embeddings is a rolling window: newest appended last, oldest dropped
	// once MaxEmbeddings is exceeded. Vectors are never mutated in place.
	Embeddings [][]float32 `json:"embeddings"`
	// SampleImageRefs are paths of the face snapshots behind the embeddings.
	SampleImageRefs []string `json:"sample_image_refs"`
	// DailyCaptureLog keys are "<date>_<period>"; each key marks one
	// gallery-appending side effect already performed that day-period.
	DailyCaptureLog map[string]bool `json:"daily_capture_log"`
	// MaxEmbeddings bounds the rolling window; zero means the default.
	MaxEmbeddings int `json:"-"`
}

// Validate checks the required fields. Called once at load time and before
// any save, so missing-field backfill never happens per read.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.DisplayName) == "" {
		return fmt.Errorf("%w: display_name", ErrMissingRequiredField)
	}
	if strings.TrimSpace(p.Location.City) == "" {
		return fmt.Errorf("%w: location.city", ErrMissingRequiredField)
	}
	if strings.TrimSpace(p.Location.Country) == "" {
		return fmt.Errorf("%w: location.country", ErrMissingRequiredField)
	}
	if p.IdentityID == "" {
		return fmt.Errorf("%w: identity_id", ErrMissingRequiredField)
	}
	return nil
}

// AppendEmbedding appends an embedding and its snapshot ref to the rolling
// window, dropping the oldest pair when the window is full.
func (p *Profile) AppendEmbedding(embedding []float32, imageRef string) {
	limit := p.MaxEmbeddings
	if limit <= 0 {
		limit = DefaultMaxEmbeddings
	}

	p.Embeddings = append(p.Embeddings, embedding)
	p.SampleImageRefs = append(p.SampleImageRefs, imageRef)
	for len(p.Embeddings) > limit {
		p.Embeddings = p.Embeddings[1:]
	}
	for len(p.SampleImageRefs) > limit {
		p.SampleImageRefs = p.SampleImageRefs[1:]
	}
}

// CaptureLogKey builds the daily capture log key for a date and period.
func CaptureLogKey(date, period string) string {
	return date + "_" + period
}

// MarkDailyCapture records a (date, period) capture. Returns false when the
// tuple was already logged, in which case the caller must not append again.
func (p *Profile) MarkDailyCapture(date, period string) bool {
	if period == "" {
		return false
	}
	key := CaptureLogKey(date, period)
	if p.DailyCaptureLog == nil {
		p.DailyCaptureLog = make(map[string]bool)
	}
	if p.DailyCaptureLog[key] {
		return false
	}
	p.DailyCaptureLog[key] = true
	return true
}

// Clone returns a deep copy so the caller can mutate without touching the
// gallery's view until a store write succeeds.
func (p *Profile) Clone() *Profile {
	clone := *p
	clone.Embeddings = make([][]float32, len(p.Embeddings))
	for i, emb := range p.Embeddings {
		clone.Embeddings[i] = append([]float32(nil), emb...)
	}
	clone.SampleImageRefs = append([]string(nil), p.SampleImageRefs...)
	clone.DailyCaptureLog = make(map[string]bool, len(p.DailyCaptureLog))
	for k, v := range p.DailyCaptureLog {
		clone.DailyCaptureLog[k] = v
	}
	return &clone
}

// IdentityID derives the unique identity key from a display name:
// lowercase, spaces collapsed to single underscores, other
// non-alphanumerics dropped.
func IdentityID(displayName string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(displayName)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		case unicode.IsSpace(r) || r == '-' || r == '_':
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// Store is the persistence collaborator for profile records.
type Store interface {
	// LoadProfiles returns all persisted profiles keyed by identity ID.
	LoadProfiles() (map[string]*Profile, error)
	// SaveProfile persists one profile. A failure means the record was not
	// written and callers must discard their pending in-memory mutation.
	SaveProfile(p *Profile) error
}
