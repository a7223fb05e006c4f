package analysis

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dirOpener struct {
	base string
}

func (o dirOpener) Path(ref string) string {
	return filepath.Join(o.base, ref)
}

func uniformImage(gray uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{gray, gray, gray, 255})
		}
	}
	return img
}

func writeSnapshot(t *testing.T, dir, name string, gray uint8) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, uniformImage(gray), &jpeg.Options{Quality: 95}))
}

func TestCenterBrightnessUniform(t *testing.T) {
	assert.InDelta(t, 200, CenterBrightness(uniformImage(200)), 2.0)
	assert.InDelta(t, 40, CenterBrightness(uniformImage(40)), 2.0)
}

func TestCenterBrightnessIgnoresBorder(t *testing.T) {
	// Bright center, black border: only the central half region counts.
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 8; y < 24; y++ {
		for x := 8; x < 24; x++ {
			img.Set(x, y, color.RGBA{200, 200, 200, 255})
		}
	}
	assert.InDelta(t, 200, CenterBrightness(img), 1.0)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "tips.hydration", classify(150, 130))
	assert.Equal(t, "tips.rest", classify(58, 55))
	assert.Equal(t, "tips.default", classify(150, 145))
}

func TestAnalyzeDetectsDullness(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "a.jpg", 180)
	writeSnapshot(t, dir, "b.jpg", 180)
	writeSnapshot(t, dir, "c.jpg", 120)

	analyzer := NewAnalyzer(dirOpener{dir})
	result, err := analyzer.Analyze([]string{"a.jpg", "b.jpg", "c.jpg"})
	require.NoError(t, err)

	assert.Len(t, result.Readings, 3)
	assert.Equal(t, "tips.hydration", result.TipKey)
	assert.Less(t, result.Latest, result.Mean)
}

func TestAnalyzeStableTrend(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "a.jpg", 170)
	writeSnapshot(t, dir, "b.jpg", 172)
	writeSnapshot(t, dir, "c.jpg", 168)

	analyzer := NewAnalyzer(dirOpener{dir})
	result, err := analyzer.Analyze([]string{"a.jpg", "b.jpg", "c.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "tips.default", result.TipKey)
}

func TestAnalyzeUsesOnlyRecentWindow(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "old.jpg", 10)
	writeSnapshot(t, dir, "a.jpg", 170)
	writeSnapshot(t, dir, "b.jpg", 170)
	writeSnapshot(t, dir, "c.jpg", 170)

	analyzer := NewAnalyzer(dirOpener{dir})
	result, err := analyzer.Analyze([]string{"old.jpg", "a.jpg", "b.jpg", "c.jpg"})
	require.NoError(t, err)
	assert.Len(t, result.Readings, 3)
	assert.Equal(t, "a.jpg", result.Readings[0].Ref)
}

func TestAnalyzeSkipsUnreadableSnapshots(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "good.jpg", 170)

	analyzer := NewAnalyzer(dirOpener{dir})
	result, err := analyzer.Analyze([]string{"missing.jpg", "good.jpg"})
	require.NoError(t, err)
	assert.Len(t, result.Readings, 1)

	_, err = analyzer.Analyze([]string{"missing.jpg"})
	assert.Error(t, err)
}

func TestAnalyzeEmptyInput(t *testing.T) {
	analyzer := NewAnalyzer(dirOpener{t.TempDir()})
	_, err := analyzer.Analyze(nil)
	assert.Error(t, err)
}
