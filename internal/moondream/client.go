package moondream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sightbridge/moondream-mcp/internal/config"
)

// requestTimeout bounds a single inference round trip. Local CPU inference
// on large screenshots can be slow, so this is generous.
const requestTimeout = 2 * time.Minute

// APIError is a non-2xx response from the backend. The status line and the
// raw response body are both preserved so callers can surface them.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %s: %s", e.Status, e.Body)
}

// Client speaks the backend's JSON-over-HTTP inference contract: POST
// /caption, /detect and /query with a data URL image payload.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     *zap.Logger
}

// NewClient builds a client for the backend described by cfg.
func NewClient(cfg config.Backend, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: cfg.BaseURL(),
		httpc:   &http.Client{Timeout: requestTimeout},
		log:     logger.With(zap.String("component", "backend-client")),
	}
}

// Analyze dispatches a classified command against the image and returns the
// final user-facing text.
func (c *Client) Analyze(ctx context.Context, imageURL string, cmd Command) (string, error) {
	switch cmd.Kind {
	case KindCaption:
		return c.Caption(ctx, imageURL)
	case KindDetect:
		objects, err := c.Detect(ctx, imageURL, cmd.Object)
		if err != nil {
			return "", err
		}
		return FormatDetections(objects), nil
	default:
		return c.Query(ctx, imageURL, cmd.Question)
	}
}

// Caption asks the backend for a caption of the image.
func (c *Client) Caption(ctx context.Context, imageURL string) (string, error) {
	var out struct {
		Caption string `json:"caption"`
	}
	payload := map[string]string{"image_url": imageURL}
	if err := c.post(ctx, "/caption", payload, &out); err != nil {
		return "", err
	}
	return out.Caption, nil
}

// Detect asks the backend to locate object in the image.
func (c *Client) Detect(ctx context.Context, imageURL, object string) ([]interface{}, error) {
	var out struct {
		Objects []interface{} `json:"objects"`
	}
	payload := map[string]string{"image_url": imageURL, "object": object}
	if err := c.post(ctx, "/detect", payload, &out); err != nil {
		return nil, err
	}
	return out.Objects, nil
}

// Query asks the backend a free-form question about the image.
func (c *Client) Query(ctx context.Context, imageURL, question string) (string, error) {
	var out struct {
		Answer string `json:"answer"`
	}
	payload := map[string]string{"image_url": imageURL, "question": question}
	if err := c.post(ctx, "/query", payload, &out); err != nil {
		return "", err
	}
	return out.Answer, nil
}

// FormatDetections renders a detection result as a single line of text with
// the object list in compact JSON, e.g. `Detected objects: ["red car"]`.
func FormatDetections(objects []interface{}) string {
	if objects == nil {
		objects = []interface{}{}
	}
	encoded, err := json.Marshal(objects)
	if err != nil {
		// Only unmarshalable values can get here, and these came from JSON.
		encoded = []byte("[]")
	}
	return "Detected objects: " + string(encoded)
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("backend request %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	c.log.Debug("backend call",
		zap.String("endpoint", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
