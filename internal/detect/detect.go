// Package detect turns raw detector output buffers into face boxes in model
// input pixel space and collapses duplicates via non-max suppression.
package detect

import (
	"context"
	"image"
)

// Detection is one face box in pixel coordinates of the model input
// resolution, together with its objectness score.
type Detection struct {
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Score  float32 `json:"score"`
}

// Rect returns the detection as an image.Rectangle.
func (d Detection) Rect() image.Rectangle {
	return image.Rect(d.X, d.Y, d.X+d.Width, d.Y+d.Height)
}

// RawOutput is one inference result from the detector runtime: the flat
// float buffer plus the model input dimensions the boxes are normalized to.
type RawOutput struct {
	Data        []float32
	InputWidth  int
	InputHeight int
}

// Runtime is the accelerator collaborator. Implementations run the face
// detection network on a frame and hand back the undecoded output buffer.
// The buffer length is deterministic for a given model topology; any shape
// mismatch surfaces later as a DecodeError from Decode.
type Runtime interface {
	Infer(ctx context.Context, frame image.Image) (RawOutput, error)
	Close() error
}
