package requester

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxBodySize caps how much of a page is read.
const maxBodySize = 10 << 20

// Get sends a GET request to the specified URL.
func (c *HTTPClient) Get(ctx context.Context, urlStr string, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	return c.Do(req)
}

// PostJSON sends a POST request with a JSON body.
func (c *HTTPClient) PostJSON(ctx context.Context, urlStr string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(req)
}

// Fetch GETs urlStr and returns the body of a 2xx response.
func (c *HTTPClient) Fetch(ctx context.Context, urlStr string) ([]byte, error) {
	resp, err := c.Get(ctx, urlStr, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, urlStr)
	}
	return ReadBody(resp)
}

// ReadBody reads and closes the response body.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
}
