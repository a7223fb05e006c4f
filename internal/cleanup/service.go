// Package cleanup removes aged snapshot files that no profile references
// anymore.
package cleanup

import (
	"os"
	"path/filepath"
	"time"

	"github.com/LakePipiCAKA/self-discovery/internal/profile"

	log "github.com/sirupsen/logrus"
)

// Service handles the automatic cleanup of old snapshot files.
type Service struct {
	store         profile.Store
	retentionDays int
	snapshotDir   string
	checkInterval time.Duration
	stopChan      chan struct{}
}

// NewService creates a cleanup service. Returns nil when retention is
// disabled, which callers treat as a no-op service.
func NewService(store profile.Store, retentionDays int, snapshotDir string, checkInterval time.Duration) *Service {
	if retentionDays <= 0 {
		log.Info("Automatic cleanup disabled (retention_days <= 0).")
		return nil
	}
	if snapshotDir == "" {
		log.Error("Cannot initialize cleanup service: snapshot directory is empty")
		return nil
	}
	log.Infof("Initializing cleanup service: RetentionDays=%d, SnapshotDir='%s', CheckInterval=%s", retentionDays, snapshotDir, checkInterval)
	return &Service{
		store:         store,
		retentionDays: retentionDays,
		snapshotDir:   snapshotDir,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
	}
}

// StartBackgroundCleanup starts a goroutine that periodically runs the
// cleanup cycle.
func (s *Service) StartBackgroundCleanup() {
	if s == nil {
		return
	}
	log.Info("Starting background cleanup routine...")

	go func() {
		log.Info("Running initial cleanup check on startup...")
		s.RunCleanupCycle()
	}()

	ticker := time.NewTicker(s.checkInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				log.Info("Running scheduled cleanup cycle...")
				s.RunCleanupCycle()
			case <-s.stopChan:
				log.Info("Stopping background cleanup routine.")
				return
			}
		}
	}()
}

// StopBackgroundCleanup signals the background routine to stop.
func (s *Service) StopBackgroundCleanup() {
	if s == nil || s.stopChan == nil {
		return
	}
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
}

// RunCleanupCycle deletes snapshot files older than the retention period
// that no profile still references.
func (s *Service) RunCleanupCycle() {
	if s == nil || s.retentionDays <= 0 {
		log.Debug("Skipping cleanup cycle: service not initialized or cleanup disabled.")
		return
	}

	referenced, err := s.referencedFiles()
	if err != nil {
		log.Errorf("Cleanup: failed to load profile references: %v", err)
		return
	}

	cutoffTime := time.Now().AddDate(0, 0, -s.retentionDays)
	log.Infof("Cleanup: Deleting unreferenced snapshots older than %s", cutoffTime.Format(time.RFC3339))

	deletedCount := 0
	failedCount := 0

	err = filepath.Walk(s.snapshotDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.snapshotDir, path)
		if err != nil {
			return nil
		}
		if referenced[rel] {
			return nil
		}
		if info.ModTime().After(cutoffTime) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			log.Warnf("Cleanup: failed to delete snapshot '%s': %v", path, err)
			failedCount++
			return nil
		}
		log.Debugf("Cleanup: deleted snapshot '%s'", rel)
		deletedCount++
		return nil
	})
	if err != nil {
		log.Errorf("Cleanup: walk over snapshot directory failed: %v", err)
	}

	log.Infof("Cleanup cycle finished. Deleted: %d, Failed: %d", deletedCount, failedCount)
}

// referencedFiles builds the set of snapshot references still held by
// profiles.
func (s *Service) referencedFiles() (map[string]bool, error) {
	profiles, err := s.store.LoadProfiles()
	if err != nil {
		return nil, err
	}
	refs := make(map[string]bool)
	for _, p := range profiles {
		for _, ref := range p.SampleImageRefs {
			refs[ref] = true
		}
	}
	return refs, nil
}
