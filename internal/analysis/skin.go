// Package analysis derives simple wellbeing hints from recent face
// snapshots by comparing their skin brightness trend.
package analysis

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"os"

	log "github.com/sirupsen/logrus"
)

// historyWindow is how many recent snapshots feed the trend.
const historyWindow = 3

// dullnessDelta is the brightness drop against the history mean that
// triggers the hydration tip.
const dullnessDelta = 12.0

// Reading is the brightness measurement of one snapshot.
type Reading struct {
	Ref        string  `json:"ref"`
	Brightness float64 `json:"brightness"`
}

// Result is the outcome of a trend analysis.
type Result struct {
	Readings []Reading `json:"readings"`
	Mean     float64   `json:"mean"`
	Latest   float64   `json:"latest"`
	TipKey   string    `json:"tip_key"`
}

// SnapshotOpener resolves stored snapshot references to readable files.
type SnapshotOpener interface {
	Path(ref string) string
}

// Analyzer measures face crop brightness across a visitor's recent
// snapshots.
type Analyzer struct {
	opener SnapshotOpener
}

// NewAnalyzer returns an analyzer over the given snapshot store.
func NewAnalyzer(opener SnapshotOpener) *Analyzer {
	return &Analyzer{opener: opener}
}

// Analyze inspects up to the last three snapshot references and classifies
// the brightness trend into a tip key for the UI to localize.
func (a *Analyzer) Analyze(refs []string) (*Result, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("no snapshots to analyze")
	}
	if len(refs) > historyWindow {
		refs = refs[len(refs)-historyWindow:]
	}

	result := &Result{}
	for _, ref := range refs {
		b, err := a.measure(ref)
		if err != nil {
			log.Warnf("Skipping snapshot %s: %v", ref, err)
			continue
		}
		result.Readings = append(result.Readings, Reading{Ref: ref, Brightness: b})
	}
	if len(result.Readings) == 0 {
		return nil, fmt.Errorf("no readable snapshots among %d reference(s)", len(refs))
	}

	var sum float64
	for _, r := range result.Readings {
		sum += r.Brightness
	}
	result.Mean = sum / float64(len(result.Readings))
	result.Latest = result.Readings[len(result.Readings)-1].Brightness
	result.TipKey = classify(result.Mean, result.Latest)
	return result, nil
}

// classify picks a tip from the latest reading against the recent mean.
func classify(mean, latest float64) string {
	switch {
	case latest < mean-dullnessDelta:
		return "tips.hydration"
	case latest < 60:
		return "tips.rest"
	default:
		return "tips.default"
	}
}

// measure decodes one snapshot and returns the mean luminance of its
// central region, where the skin dominates the crop.
func (a *Analyzer) measure(ref string) (float64, error) {
	f, err := os.Open(a.opener.Path(ref))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return 0, err
	}
	return CenterBrightness(img), nil
}

// CenterBrightness computes the mean luminance over the central half of the
// image, scaled to 0..255.
func CenterBrightness(img image.Image) float64 {
	b := img.Bounds()
	cx, cy := b.Dx()/4, b.Dy()/4
	region := image.Rect(b.Min.X+cx, b.Min.Y+cy, b.Max.X-cx, b.Max.Y-cy)
	if region.Empty() {
		region = b
	}

	var sum float64
	var count int
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			// Rec. 601 luma over 16-bit channel values.
			luma := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)
			sum += luma / 257.0
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
