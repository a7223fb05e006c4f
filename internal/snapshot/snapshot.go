// Package snapshot persists face crops to the kiosk data directory.
package snapshot

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Writer stores JPEG face crops under <baseDir>/<identityID>/.
type Writer struct {
	baseDir string
	quality int
}

// NewWriter creates the base directory if needed.
func NewWriter(baseDir string) (*Writer, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory %s: %w", baseDir, err)
	}
	return &Writer{baseDir: baseDir, quality: 90}, nil
}

// Write saves one crop and returns its path relative to the base directory.
func (w *Writer) Write(identityID string, crop image.Image) (string, error) {
	dir := filepath.Join(w.baseDir, identityID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create identity directory %s: %w", dir, err)
	}

	name := uuid.New().String() + ".jpg"
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot file %s: %w", path, err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, crop, &jpeg.Options{Quality: w.quality}); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to encode snapshot %s: %w", path, err)
	}

	rel := filepath.Join(identityID, name)
	log.Debugf("Snapshot saved: %s", rel)
	return rel, nil
}

// Path resolves a stored reference back to an absolute file path.
func (w *Writer) Path(ref string) string {
	return filepath.Join(w.baseDir, ref)
}

// BaseDir returns the snapshot root.
func (w *Writer) BaseDir() string {
	return w.baseDir
}
