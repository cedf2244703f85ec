// Package recognition talks to the external OCR and face embedding service.
package recognition

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gate-access-backend/config"
	"gate-access-backend/internal/metrics"
	"gate-access-backend/internal/plate"
)

var (
	// ErrNoPlate is returned when the image holds no readable plate.
	ErrNoPlate = errors.New("no plate found in image")
	// ErrNoFace is returned when the image holds no detectable face.
	ErrNoFace = errors.New("no face found in image")
	// ErrUnavailable is returned when the service is not configured.
	ErrUnavailable = errors.New("recognition service is not configured")
)

// PlateReader extracts a plate from an image.
type PlateReader interface {
	ReadPlate(ctx context.Context, image []byte) (string, error)
}

// FaceEncoder turns a face image into an embedding vector.
type FaceEncoder interface {
	Encode(ctx context.Context, image []byte) ([]float64, error)
}

// Client is an HTTP PlateReader and FaceEncoder.
type Client struct {
	cfg    config.RecognitionConfig
	client *http.Client
}

// NewClient creates a recognition client. Each call is bounded by timeout.
func NewClient(cfg config.RecognitionConfig, timeout time.Duration) *Client {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Recognition client will not use a proxy.", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// ReadPlate sends the image for OCR and extracts a plate from the returned text.
func (c *Client) ReadPlate(ctx context.Context, image []byte) (string, error) {
	defer observe("plate", time.Now())

	var data plateData
	if err := c.post(ctx, "/plate", image, &data); err != nil {
		return "", err
	}
	p, ok := plate.Extract(data.Text)
	if !ok {
		return "", ErrNoPlate
	}
	return p, nil
}

// Encode sends the image for face embedding.
func (c *Client) Encode(ctx context.Context, image []byte) ([]float64, error) {
	defer observe("face", time.Now())

	var data faceData
	if err := c.post(ctx, "/face/encode", image, &data); err != nil {
		return nil, err
	}
	if len(data.Embedding) == 0 {
		return nil, ErrNoFace
	}
	return data.Embedding, nil
}

func observe(operation string, start time.Time) {
	metrics.RecognitionDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (c *Client) post(ctx context.Context, path string, image []byte, out any) error {
	if c.cfg.URL == "" {
		return ErrUnavailable
	}

	jsonBody, err := json.Marshal(imageRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return fmt.Errorf("failed to marshal request payload: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.URL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	envelope := apiResponse[json.RawMessage]{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal api response: %w", err)
	}
	if envelope.Code != 0 {
		return fmt.Errorf("recognition service returned code %d: %s", envelope.Code, envelope.Message)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal api data: %w", err)
	}
	return nil
}
