// Package requester provides the HTTP client used to fetch pages and deliver
// webhook alerts.
package requester

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Options configures an HTTPClient.
type Options struct {
	Timeout    time.Duration
	UserAgents []string
	Retries    int
	// RateLimit is the maximum number of requests per second. Zero disables it.
	RateLimit float64
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
	Transport  http.RoundTripper
}

// HTTPClient wraps http.Client with User-Agent rotation, rate limiting and
// retries on network errors or 5xx responses.
type HTTPClient struct {
	client     *http.Client
	userAgents []string
	retries    int
	retryDelay time.Duration
	limiter    *rate.Limiter

	mu   sync.Mutex
	rand *rand.Rand
}

// NewHTTPClient creates a new HTTPClient.
func NewHTTPClient(opts Options) *HTTPClient {
	c := &HTTPClient{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
		userAgents: opts.UserAgents,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

func (c *HTTPClient) userAgent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userAgents[c.rand.Intn(len(c.userAgents))]
}

// Do sends req, retrying on transport errors and 5xx responses. The request
// body is buffered so it can be replayed.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if len(c.userAgents) > 0 {
		req.Header.Set("User-Agent", c.userAgent())
	}

	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
		body = b
	}

	ctx := req.Context()
	var resp *http.Response
	var err error

	for i := 0; i <= c.retries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		clonedReq := req.Clone(ctx)
		if body != nil {
			clonedReq.Body = io.NopCloser(bytes.NewReader(body))
			clonedReq.ContentLength = int64(len(body))
		}

		resp, err = c.client.Do(clonedReq)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}

		if resp != nil {
			log.Debug().Str("url", req.URL.String()).Int("status", resp.StatusCode).Int("attempt", i+1).Msg("Request failed")
			if i < c.retries {
				resp.Body.Close()
			}
		} else {
			log.Debug().Err(err).Str("url", req.URL.String()).Int("attempt", i+1).Msg("Request failed")
		}
	}

	return resp, err
}
