// Package camera provides frame capture from the kiosk webcam and the
// on-device face detector runtime.
package camera

import (
	"fmt"
	"image"

	"github.com/LakePipiCAKA/self-discovery/config"

	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

// Capture reads frames from a V4L2 device via OpenCV.
type Capture struct {
	device *gocv.VideoCapture
	mat    gocv.Mat
}

// OpenCapture opens the configured camera device and applies the requested
// resolution.
func OpenCapture(cfg config.CameraConfig) (*Capture, error) {
	device, err := gocv.OpenVideoCapture(cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera device %v: %w", cfg.DeviceID, err)
	}

	if cfg.Width > 0 {
		device.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		device.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	log.Infof("Camera device %v opened (%dx%d)", cfg.DeviceID, cfg.Width, cfg.Height)
	return &Capture{
		device: device,
		mat:    gocv.NewMat(),
	}, nil
}

// ReadFrame grabs the next frame and converts it to image.Image.
func (c *Capture) ReadFrame() (image.Image, error) {
	if ok := c.device.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, fmt.Errorf("failed to read frame from camera")
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return img, nil
}

// Close releases the device and the reusable frame buffer.
func (c *Capture) Close() error {
	c.mat.Close()
	return c.device.Close()
}
