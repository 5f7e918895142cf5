package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// MinTextLength is the smallest extraction considered usable. Shorter output
// almost always means a scanned image or a broken parse.
const MinTextLength = 10

var (
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrExtraction      = errors.New("text extraction failed")
	// ErrNoText means extraction succeeded but produced nothing usable.
	ErrNoText = errors.New("no usable text extracted")
)

// Client talks to the document extraction service, which converts uploaded
// files (PDF, markdown, plain text) into plain text.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Extract sends the raw document bytes for conversion and returns plain text.
func (c *Client) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	url := c.baseURL + "/v1/extract"

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnsupportedMediaType:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: extractor returned %d", ErrExtraction, resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrExtraction, err)
	}

	if len(strings.TrimSpace(result.Text)) < MinTextLength {
		return "", ErrNoText
	}

	return result.Text, nil
}
