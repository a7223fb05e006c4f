package enroll

import (
	"errors"
	"testing"
	"time"

	"github.com/LakePipiCAKA/self-discovery/internal/profile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() Request {
	return Request{
		DisplayName: "Ana Pop",
		Location: profile.Location{
			City:    "Brasov",
			Country: "Romania",
		},
	}
}

func defaultOptions() Options {
	return Options{
		SamplesRequired:    4,
		MinCaptureInterval: 2 * time.Second,
		OutlierThreshold:   0.5,
	}
}

// runCaptures drives the session through n accepted captures spaced past
// the minimum interval.
func runCaptures(t *testing.T, s *Session, embeddings [][]float32) {
	t.Helper()
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	for _, emb := range embeddings {
		require.Equal(t, StatePrompting, s.State())
		s.Prompt()
		require.Equal(t, StateCapturing, s.State())
		require.True(t, s.CaptureEligible(now))
		s.Capture(emb, "", now)
		now = now.Add(3 * time.Second)
	}
}

func TestBeginRejectsMissingFields(t *testing.T) {
	req := validRequest()
	req.Location.City = ""

	s, err := Begin(req, defaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, profile.ErrMissingRequiredField))
	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, err, s.CancelCause())
}

func TestBeginRejectsEmptyName(t *testing.T) {
	req := validRequest()
	req.DisplayName = "   "

	_, err := Begin(req, defaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, profile.ErrMissingRequiredField))
}

func TestCaptureIntervalEnforced(t *testing.T) {
	s, err := Begin(validRequest(), defaultOptions())
	require.NoError(t, err)

	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	s.Prompt()
	require.True(t, s.CaptureEligible(now))
	s.Capture([]float32{1, 0}, "", now)

	s.Prompt()
	assert.False(t, s.CaptureEligible(now.Add(1*time.Second)))
	assert.True(t, s.CaptureEligible(now.Add(2*time.Second)))
}

func TestFullSessionCommitsAllSamples(t *testing.T) {
	s, err := Begin(validRequest(), defaultOptions())
	require.NoError(t, err)

	samples := [][]float32{
		{1, 0}, {0.99, 0.01}, {0.98, 0.02}, {1, 0.01},
	}
	runCaptures(t, s, samples)
	require.Equal(t, StateFiltering, s.State())

	kept, refs, err := s.Filter()
	require.NoError(t, err)
	assert.Len(t, kept, 4)
	assert.Len(t, refs, 4)

	// Filtering holds until the survivors are persisted.
	assert.Equal(t, StateFiltering, s.State())
	assert.False(t, s.Done())

	s.Commit()
	assert.Equal(t, StateCommitted, s.State())
	assert.True(t, s.Done())
}

func TestCancelAfterFilterOnFailedPersist(t *testing.T) {
	s, err := Begin(validRequest(), defaultOptions())
	require.NoError(t, err)

	samples := [][]float32{
		{1, 0}, {0.99, 0.01}, {0.98, 0.02}, {1, 0.01},
	}
	runCaptures(t, s, samples)

	_, _, err = s.Filter()
	require.NoError(t, err)

	// The store rejected the write: the session must end cancelled, never
	// reporting committed for a profile that was not persisted.
	cause := errors.New("disk full")
	s.Cancel(cause)
	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, cause, s.CancelCause())

	s.Commit()
	assert.Equal(t, StateCancelled, s.State())
}

func TestCommitOnlyFromFiltering(t *testing.T) {
	s, err := Begin(validRequest(), defaultOptions())
	require.NoError(t, err)

	s.Commit()
	assert.Equal(t, StatePrompting, s.State())
}

func TestFilterDropsOutlier(t *testing.T) {
	s, err := Begin(validRequest(), defaultOptions())
	require.NoError(t, err)

	// Three tight samples and one far away from their mean.
	samples := [][]float32{
		{1, 0}, {0.99, 0.01}, {0.98, 0.02}, {0, 1},
	}
	runCaptures(t, s, samples)

	kept, _, err := s.Filter()
	require.NoError(t, err)
	assert.Len(t, kept, 3)
	assert.Equal(t, StateFiltering, s.State())
}

func TestFilterAllOutliersCancels(t *testing.T) {
	s, err := Begin(validRequest(), Options{
		SamplesRequired:    3,
		MinCaptureInterval: 2 * time.Second,
		OutlierThreshold:   0.1,
	})
	require.NoError(t, err)

	// Mutually distant samples; every one is far from the mean.
	samples := [][]float32{
		{1, 0, 0}, {0, 1, 0}, {0, 0, 1},
	}
	runCaptures(t, s, samples)

	_, _, err = s.Filter()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoValidSamples))
	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, ErrNoValidSamples, s.CancelCause())
}

func TestCancelMidSession(t *testing.T) {
	s, err := Begin(validRequest(), defaultOptions())
	require.NoError(t, err)

	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	s.Prompt()
	s.Capture([]float32{1, 0}, "", now)

	cause := errors.New("visitor walked away")
	s.Cancel(cause)
	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, cause, s.CancelCause())

	// Terminal states do not move.
	s.Cancel(errors.New("again"))
	assert.Equal(t, cause, s.CancelCause())
}

func TestCaptureIgnoredOutsideCapturing(t *testing.T) {
	s, err := Begin(validRequest(), defaultOptions())
	require.NoError(t, err)

	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	// Still in Prompting: capture is a no-op.
	s.Capture([]float32{1, 0}, "", now)
	assert.Equal(t, 0, s.SamplesCollected())
	assert.Equal(t, StatePrompting, s.State())
}

func TestBuildProfile(t *testing.T) {
	s, err := Begin(validRequest(), defaultOptions())
	require.NoError(t, err)

	embeddings := [][]float32{{1, 0}}
	refs := []string{"ana_pop/a.jpg"}
	p := s.BuildProfile(embeddings, refs, 10)

	assert.Equal(t, "ana_pop", p.IdentityID)
	assert.Equal(t, "Ana Pop", p.DisplayName)
	assert.Equal(t, embeddings, p.Embeddings)
	assert.Equal(t, refs, p.SampleImageRefs)
	assert.NotNil(t, p.DailyCaptureLog)
	require.NoError(t, p.Validate())
}
