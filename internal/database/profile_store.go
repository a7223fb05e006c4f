package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/LakePipiCAKA/self-discovery/internal/profile"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProfileRecord is the GORM model for one enrolled identity. Embeddings,
// image refs and the daily capture log are JSON columns; the record shape
// is the one structural contract the pipeline imposes on persistence.
type ProfileRecord struct {
	gorm.Model
	IdentityID      string         `gorm:"uniqueIndex;not null"`
	DisplayName     string         `gorm:"not null"`
	City            string         `gorm:"not null"`
	State           string
	Country         string `gorm:"not null"`
	Lat             float64
	Lon             float64
	DateOfBirth     string
	Sex             string
	Embeddings      datatypes.JSON `gorm:"type:json"`
	SampleImageRefs datatypes.JSON `gorm:"type:json"`
	DailyCaptureLog datatypes.JSON `gorm:"type:json"`
}

// ProfileStore implements profile.Store on top of the SQLite database.
type ProfileStore struct {
	db *gorm.DB
}

// NewProfileStore creates a store over an open database handle.
func NewProfileStore(db *gorm.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// LoadProfiles reads and validates every persisted profile. Records that
// fail validation are skipped with a warning instead of aborting the load.
func (s *ProfileStore) LoadProfiles() (map[string]*profile.Profile, error) {
	var records []ProfileRecord
	if err := s.db.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	profiles := make(map[string]*profile.Profile, len(records))
	for _, rec := range records {
		p, err := recordToProfile(&rec)
		if err != nil {
			log.Warnf("Skipping malformed profile record %q: %v", rec.IdentityID, err)
			continue
		}
		if err := p.Validate(); err != nil {
			log.Warnf("Skipping invalid profile record %q: %v", rec.IdentityID, err)
			continue
		}
		profiles[p.IdentityID] = p
	}

	log.Infof("Loaded %d profile(s) from store", len(profiles))
	return profiles, nil
}

// SaveProfile upserts one profile record. A returned error means nothing
// was written and the caller must discard its pending in-memory mutation.
func (s *ProfileStore) SaveProfile(p *profile.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	rec, err := profileToRecord(p)
	if err != nil {
		return fmt.Errorf("%w: %v", profile.ErrStoreWrite, err)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var existing ProfileRecord
		result := tx.Where("identity_id = ?", p.IdentityID).First(&existing)
		if result.Error == nil {
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
			rec.UpdatedAt = time.Now()
			return tx.Save(rec).Error
		}
		if result.Error != gorm.ErrRecordNotFound {
			return result.Error
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		log.Errorf("Failed to save profile %q: %v", p.IdentityID, err)
		return fmt.Errorf("%w: %v", profile.ErrStoreWrite, err)
	}

	log.Debugf("Saved profile %q (%d embedding(s))", p.IdentityID, len(p.Embeddings))
	return nil
}

// DeleteProfile removes one profile record by identity ID.
func (s *ProfileStore) DeleteProfile(identityID string) error {
	result := s.db.Where("identity_id = ?", identityID).Delete(&ProfileRecord{})
	if result.Error != nil {
		return fmt.Errorf("%w: %v", profile.ErrStoreWrite, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	log.Infof("Deleted profile %q", identityID)
	return nil
}

func profileToRecord(p *profile.Profile) (*ProfileRecord, error) {
	embeddings, err := json.Marshal(p.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embeddings: %w", err)
	}
	refs, err := json.Marshal(p.SampleImageRefs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image refs: %w", err)
	}
	captureLog, err := json.Marshal(p.DailyCaptureLog)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal daily capture log: %w", err)
	}

	return &ProfileRecord{
		IdentityID:      p.IdentityID,
		DisplayName:     p.DisplayName,
		City:            p.Location.City,
		State:           p.Location.State,
		Country:         p.Location.Country,
		Lat:             p.Location.Lat,
		Lon:             p.Location.Lon,
		DateOfBirth:     p.DateOfBirth,
		Sex:             p.Sex,
		Embeddings:      datatypes.JSON(embeddings),
		SampleImageRefs: datatypes.JSON(refs),
		DailyCaptureLog: datatypes.JSON(captureLog),
	}, nil
}

func recordToProfile(rec *ProfileRecord) (*profile.Profile, error) {
	p := &profile.Profile{
		IdentityID:  rec.IdentityID,
		DisplayName: rec.DisplayName,
		Location: profile.Location{
			City:    rec.City,
			State:   rec.State,
			Country: rec.Country,
			Lat:     rec.Lat,
			Lon:     rec.Lon,
		},
		DateOfBirth: rec.DateOfBirth,
		Sex:         rec.Sex,
	}

	if len(rec.Embeddings) > 0 {
		if err := json.Unmarshal(rec.Embeddings, &p.Embeddings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embeddings: %w", err)
		}
	}
	if len(rec.SampleImageRefs) > 0 {
		if err := json.Unmarshal(rec.SampleImageRefs, &p.SampleImageRefs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal image refs: %w", err)
		}
	}
	if len(rec.DailyCaptureLog) > 0 {
		if err := json.Unmarshal(rec.DailyCaptureLog, &p.DailyCaptureLog); err != nil {
			return nil, fmt.Errorf("failed to unmarshal daily capture log: %w", err)
		}
	}

	return p, nil
}
