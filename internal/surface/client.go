package surface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client calls a remote Surface served by Handler.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a Client for baseURL, e.g. "http://127.0.0.1:8931".
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Call posts args to /call/{method}. Server-side errors are mapped back onto
// ErrUnknownMethod and ErrBadArguments.
func (c *Client) Call(ctx context.Context, method string, args json.RawMessage) (json.RawMessage, error) {
	if len(args) == 0 {
		args = EncodeArgs()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/call/"+method, bytes.NewReader(args))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode == http.StatusOK {
		return body, nil
	}

	var er ErrorResponse
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &er) == nil && er.Message != "" {
		msg = er.Message
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, msg)
	case http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", ErrBadArguments, msg)
	default:
		return nil, fmt.Errorf("call %s: status %d: %s", method, resp.StatusCode, msg)
	}
}
