// Package extraction calls the screenshot extraction service, which turns
// an image of a contact list into loosely typed contact records.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/lead-import/internal/config"
	"github.com/ignite/lead-import/internal/datanorm"
	"github.com/ignite/lead-import/internal/pkg/httpretry"
	"github.com/ignite/lead-import/internal/pkg/logger"
)

// ErrRejected is returned when the service refuses the image, for example
// because it is not a supported picture format.
var ErrRejected = errors.New("extraction rejected the image")

const extractPath = "/v1/extract"

// Client talks to the extraction service over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    httpretry.HTTPDoer
}

// NewClient builds a client from config with retries on transient errors.
func NewClient(cfg config.ExtractionConfig) *Client {
	base := &http.Client{Timeout: cfg.Timeout()}
	return NewClientWithDoer(cfg.BaseURL, cfg.APIKey, httpretry.NewRetryClient(base, cfg.MaxRetries))
}

// NewClientWithDoer builds a client on an existing HTTP doer.
func NewClientWithDoer(baseURL, apiKey string, doer httpretry.HTTPDoer) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: doer}
}

type extractResponse struct {
	Contacts []datanorm.ExtractedContact `json:"contacts"`
	Error    string                      `json:"error,omitempty"`
}

// Extract uploads image and returns the records the service found.
func (c *Client) Extract(ctx context.Context, image []byte, contentType string) ([]datanorm.ExtractedContact, error) {
	if contentType == "" {
		contentType = http.DetectContentType(image)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+extractPath, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call extraction service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read extraction response: %w", err)
	}

	var out extractResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("decode extraction response: %w", err)
		}
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, msg)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("extraction service returned %d", resp.StatusCode)
	}

	logger.Info("screenshot extracted",
		"contacts", len(out.Contacts), "bytes", len(image), "duration", time.Since(start).Round(time.Millisecond))
	if out.Contacts == nil {
		out.Contacts = []datanorm.ExtractedContact{}
	}
	return out.Contacts, nil
}
