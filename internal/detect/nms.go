package detect

import "sort"

// IoU computes Intersection over Union between two detections.
// Returns 0 when the union area is 0.
func IoU(a, b Detection) float64 {
	xa := maxInt(a.X, b.X)
	ya := maxInt(a.Y, b.Y)
	xb := minInt(a.X+a.Width, b.X+b.Width)
	yb := minInt(a.Y+a.Height, b.Y+b.Height)

	interArea := float64(maxInt(0, xb-xa)) * float64(maxInt(0, yb-ya))
	unionArea := float64(a.Width)*float64(a.Height) + float64(b.Width)*float64(b.Height) - interArea
	if unionArea <= 0 {
		return 0
	}
	return interArea / unionArea
}

// Suppress collapses overlapping detections with greedy non-max
// suppression: take the highest-scoring remaining box, keep it, and discard
// every remaining box whose IoU with it reaches the threshold. Score ties
// keep first-encountered order (stable sort), so the result is
// deterministic for identical input.
func Suppress(detections []Detection, iouThreshold float64) []Detection {
	if len(detections) == 0 {
		return nil
	}

	boxes := make([]Detection, len(detections))
	copy(boxes, detections)
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Score > boxes[j].Score
	})

	var kept []Detection
	for len(boxes) > 0 {
		current := boxes[0]
		kept = append(kept, current)

		remaining := boxes[:0]
		for _, box := range boxes[1:] {
			if IoU(current, box) < iouThreshold {
				remaining = append(remaining, box)
			}
		}
		boxes = remaining
	}

	return kept
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
