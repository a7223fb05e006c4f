package camera

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/LakePipiCAKA/self-discovery/config"
	"github.com/LakePipiCAKA/self-discovery/internal/detect"

	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

// DNNRuntime runs the face detection model through the OpenCV DNN module
// and hands back the raw flat output buffer for decoding.
type DNNRuntime struct {
	net         gocv.Net
	inputWidth  int
	inputHeight int
}

// NewDNNRuntime loads the model file from disk.
func NewDNNRuntime(cfg config.DetectorConfig) (*DNNRuntime, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("detector model not found at %s: %w", cfg.ModelPath, err)
	}

	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load detector model: %s", cfg.ModelPath)
	}

	log.Infof("Face detector model loaded from %s (%dx%d input)", cfg.ModelPath, cfg.InputWidth, cfg.InputHeight)
	return &DNNRuntime{
		net:         net,
		inputWidth:  cfg.InputWidth,
		inputHeight: cfg.InputHeight,
	}, nil
}

// Infer implements detect.Runtime: one forward pass, output flattened to
// the anchor-major float buffer.
func (r *DNNRuntime) Infer(ctx context.Context, frame image.Image) (detect.RawOutput, error) {
	if err := ctx.Err(); err != nil {
		return detect.RawOutput{}, err
	}

	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return detect.RawOutput{}, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/255.0,
		image.Point{X: r.inputWidth, Y: r.inputHeight},
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	r.net.SetInput(blob, "")
	prob := r.net.Forward("")
	defer prob.Close()

	flat, err := prob.DataPtrFloat32()
	if err != nil {
		return detect.RawOutput{}, fmt.Errorf("failed to read detector output: %w", err)
	}

	// The Mat's backing buffer is released with the Mat; copy out.
	data := make([]float32, len(flat))
	copy(data, flat)

	return detect.RawOutput{
		Data:        data,
		InputWidth:  r.inputWidth,
		InputHeight: r.inputHeight,
	}, nil
}

// Close releases the network.
func (r *DNNRuntime) Close() error {
	return r.net.Close()
}
