package profile

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProfile() *Profile {
	return &Profile{
		IdentityID:  "ana_pop",
		DisplayName: "Ana Pop",
		Location: Location{
			City:    "Brasov",
			Country: "Romania",
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validProfile().Validate())

	tests := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"empty display name", func(p *Profile) { p.DisplayName = "" }},
		{"whitespace display name", func(p *Profile) { p.DisplayName = "  " }},
		{"empty city", func(p *Profile) { p.Location.City = "" }},
		{"empty country", func(p *Profile) { p.Location.Country = "" }},
		{"empty identity id", func(p *Profile) { p.IdentityID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProfile()
			tt.mutate(p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingRequiredField))
		})
	}
}

func TestIdentityID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Ana Pop", "ana_pop"},
		{"  Ana   Pop  ", "ana_pop"},
		{"Jean-Luc O'Neil", "jean_luc_oneil"},
		{"maria", "maria"},
		{"Ana_Pop", "ana_pop"},
		{"Ion Popescu Jr.", "ion_popescu_jr"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IdentityID(tt.in), "input %q", tt.in)
	}
}

func TestAppendEmbeddingRollingWindow(t *testing.T) {
	p := validProfile()
	p.MaxEmbeddings = 3

	for i := 0; i < 5; i++ {
		p.AppendEmbedding([]float32{float32(i)}, fmt.Sprintf("ref-%d", i))
	}

	require.Len(t, p.Embeddings, 3)
	require.Len(t, p.SampleImageRefs, 3)
	// Oldest entries dropped, order preserved.
	assert.Equal(t, float32(2), p.Embeddings[0][0])
	assert.Equal(t, float32(4), p.Embeddings[2][0])
	assert.Equal(t, "ref-2", p.SampleImageRefs[0])
	assert.Equal(t, "ref-4", p.SampleImageRefs[2])
}

func TestAppendEmbeddingDefaultLimit(t *testing.T) {
	p := validProfile()
	for i := 0; i < DefaultMaxEmbeddings+4; i++ {
		p.AppendEmbedding([]float32{float32(i)}, "")
	}
	assert.Len(t, p.Embeddings, DefaultMaxEmbeddings)
}

func TestMarkDailyCapture(t *testing.T) {
	p := validProfile()

	assert.True(t, p.MarkDailyCapture("2026-08-31", "morning"))
	// Same (date, period) is refused.
	assert.False(t, p.MarkDailyCapture("2026-08-31", "morning"))
	// Different period same day is allowed.
	assert.True(t, p.MarkDailyCapture("2026-08-31", "afternoon"))
	// Same period next day is allowed.
	assert.True(t, p.MarkDailyCapture("2026-09-01", "morning"))
	// Outside any period nothing is logged.
	assert.False(t, p.MarkDailyCapture("2026-08-31", ""))
}

func TestCloneIsDeep(t *testing.T) {
	p := validProfile()
	p.AppendEmbedding([]float32{1, 2}, "a.jpg")
	p.MarkDailyCapture("2026-08-31", "morning")

	c := p.Clone()
	c.Embeddings[0][0] = 99
	c.SampleImageRefs[0] = "b.jpg"
	c.MarkDailyCapture("2026-08-31", "evening")

	assert.Equal(t, float32(1), p.Embeddings[0][0])
	assert.Equal(t, "a.jpg", p.SampleImageRefs[0])
	assert.False(t, p.DailyCaptureLog[CaptureLogKey("2026-08-31", "evening")])
}

func TestLocationName(t *testing.T) {
	l := Location{City: "Brasov", Country: "Romania"}
	assert.Equal(t, "Brasov, Romania", l.Name())

	l.State = "BV"
	assert.Equal(t, "Brasov, BV, Romania", l.Name())

	assert.Equal(t, "", Location{}.Name())
}
