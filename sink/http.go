package sink

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/juju/errors"

	"github.com/warriorguo/checkpoint/types"
	"github.com/warriorguo/checkpoint/utils"
)

var (
	_ types.ReportSink = &httpSink{}
)

// HTTPConfig holds the reporting backend connection configuration
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	// backoff suggested on 5xx responses without a Retry-After header
	RetryBackoff time.Duration
}

// DefaultHTTPConfig returns a default configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		Timeout:      10 * time.Second,
		RetryBackoff: time.Second,
	}
}

// Validate validates the configuration
func (c *HTTPConfig) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint cannot be empty")
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	return nil
}

/**
 * httpSink posts evaluated events to the tracking backend as one JSON
 * array per batch. Responses map onto the dispatcher's policy:
 * 2xx delivered, 429/5xx RetryError, any other status FatalError.
 */
type httpSink struct {
	config *HTTPConfig
	client *http.Client
}

// NewHTTPSink creates a report sink with the given configuration
func NewHTTPSink(config *HTTPConfig) (types.ReportSink, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	return &httpSink{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

func (s *httpSink) Submit(ctx context.Context, batch []*types.Event) error {
	b, err := utils.Serialize(batch)
	if err != nil {
		return types.NewFatalError(errors.Annotatef(err, "failed to encode batch"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, bytes.NewReader(b))
	if err != nil {
		return types.NewFatalError(errors.Trace(err))
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return types.NewRetryError(errors.Trace(err), s.config.RetryBackoff)
	}
	defer resp.Body.Close()
	// drain so the connection can be reused
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return types.NewRetryErrorf(s.config.RetryBackoff, "backend returned %d", resp.StatusCode)
	default:
		return types.NewFatalErrorf("backend rejected batch: %d", resp.StatusCode)
	}
}
