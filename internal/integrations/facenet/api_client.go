// Package facenet talks to the external FaceNet embedding service over HTTP.
package facenet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/LakePipiCAKA/self-discovery/config"
	"github.com/LakePipiCAKA/self-discovery/internal/identity"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "facenet",
}

// APIClient implements identity.Encoder against the FaceNet service.
type APIClient struct {
	config     config.EncoderConfig
	httpClient *http.Client
}

// apiInfoResponse describes the service status endpoint.
type apiInfoResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Model   string `json:"model"`
}

// apiEmbedResponse is the answer to an embedding request.
type apiEmbedResponse struct {
	Status      string    `json:"status"`
	FaceFound   bool      `json:"face_found"`
	Embedding   []float32 `json:"embedding,omitempty"`
	ProcessTime float64   `json:"process_time"`
}

// NewAPIClient creates a client for the configured service URL.
func NewAPIClient(cfg config.EncoderConfig) *APIClient {
	return &APIClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Ping checks that the embedding service is reachable and healthy.
func (c *APIClient) Ping(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/info", c.config.URL), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to connect to FaceNet service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("FaceNet service unavailable, status: %d", resp.StatusCode)
	}

	var info apiInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}

	log.WithFields(logFields).Infof("FaceNet service reachable (model: %s)", info.Model)
	return info.Status == "ok", nil
}

// encodeImage prepares a crop as JPEG for the multipart upload.
func encodeImage(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := jpeg.Encode(buf, img, nil)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Embed implements identity.Encoder. A crop in which the service finds no
// face yields identity.ErrNoFaceInCrop.
func (c *APIClient) Embed(ctx context.Context, crop image.Image) ([]float32, error) {
	imgData, err := encodeImage(crop)
	if err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "crop.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form field: %w", err)
	}

	if _, err := io.Copy(part, bytes.NewReader(imgData)); err != nil {
		return nil, fmt.Errorf("failed to copy image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/embed", c.config.URL), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach FaceNet service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status: %d, response: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp apiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if apiResp.Status != "ok" {
		return nil, fmt.Errorf("API error: %s", apiResp.Status)
	}

	if !apiResp.FaceFound || len(apiResp.Embedding) == 0 {
		return nil, identity.ErrNoFaceInCrop
	}

	log.WithFields(logFields).Debugf("Embedding extracted in %.3fs", apiResp.ProcessTime)
	return apiResp.Embedding, nil
}
