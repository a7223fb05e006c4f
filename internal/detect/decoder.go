package detect

import "fmt"

// DecodeError reports a detector output buffer whose shape does not match
// the model topology. Callers skip the frame and keep the loop alive.
type DecodeError struct {
	Len    int
	Stride int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("detector output length %d is not a multiple of stride %d", e.Len, e.Stride)
}

// Decoder converts anchor-encoded detector output into pixel-space
// detections. Each anchor record is (x_center, y_center, width, height,
// objectness, class scores...), all normalized to [0,1] relative to the
// model input resolution.
type Decoder struct {
	numClasses int
	confidence float32
}

// NewDecoder creates a decoder for a model with the given class count and
// objectness threshold.
func NewDecoder(numClasses int, confidenceThreshold float32) *Decoder {
	if numClasses < 1 {
		numClasses = 1
	}
	return &Decoder{
		numClasses: numClasses,
		confidence: confidenceThreshold,
	}
}

// Stride returns the float count per anchor record.
func (d *Decoder) Stride() int {
	return d.numClasses + 5
}

// Decode parses a raw output buffer. Anchors below the objectness threshold
// are dropped, surviving boxes are converted from normalized center format
// to top-left pixel coordinates and clipped to [0, dim-1]. Boxes that end
// up with a non-positive width or height after clipping are dropped too.
func (d *Decoder) Decode(raw RawOutput) ([]Detection, error) {
	stride := d.Stride()
	if len(raw.Data)%stride != 0 {
		return nil, &DecodeError{Len: len(raw.Data), Stride: stride}
	}

	inputW := raw.InputWidth
	inputH := raw.InputHeight

	var detections []Detection
	for i := 0; i+stride <= len(raw.Data); i += stride {
		objScore := raw.Data[i+4]
		if objScore < d.confidence {
			continue
		}

		xCenter := raw.Data[i]
		yCenter := raw.Data[i+1]
		width := raw.Data[i+2]
		height := raw.Data[i+3]

		x := int((xCenter - width/2) * float32(inputW))
		y := int((yCenter - height/2) * float32(inputH))
		w := int(width * float32(inputW))
		h := int(height * float32(inputH))

		// Clip to model input bounds.
		if x < 0 {
			w += x
			x = 0
		}
		if y < 0 {
			h += y
			y = 0
		}
		if x+w > inputW-1 {
			w = inputW - 1 - x
		}
		if y+h > inputH-1 {
			h = inputH - 1 - y
		}

		if w <= 0 || h <= 0 {
			continue
		}

		detections = append(detections, Detection{
			X:      x,
			Y:      y,
			Width:  w,
			Height: h,
			Score:  objScore,
		})
	}

	return detections, nil
}
