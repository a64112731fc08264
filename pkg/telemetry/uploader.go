// Package telemetry uploads raw sensor readings to a ThingSpeak-style HTTP
// endpoint.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/itohio/gasmon/pkg/console"
)

const (
	// DefaultURL is the ThingSpeak channel update endpoint.
	DefaultURL = "http://api.thingspeak.com/update"

	keyParam   = "api_key"
	valueParam = "field1"
)

var (
	// ErrTransport marks failures to complete the HTTP exchange.
	ErrTransport = errors.New("telemetry: transport error")
	// ErrStatus marks responses with a non-2xx status code.
	ErrStatus = errors.New("telemetry: server error")
)

// Uploader sends one reading, absorbing any failure.
type Uploader interface {
	Upload(ctx context.Context, raw uint16)
}

var _ Uploader = (*HTTP)(nil)

// HTTP uploads readings with one GET request each.
type HTTP struct {
	base   *url.URL
	apiKey string
	client *http.Client
	log    console.Logger
}

// Option configures an HTTP uploader.
type Option func(*HTTP)

// WithClient replaces http.DefaultClient.
func WithClient(c *http.Client) Option {
	return func(h *HTTP) {
		if c != nil {
			h.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l console.Logger) Option {
	return func(h *HTTP) { h.log = console.OrStd(l) }
}

// New creates an uploader for baseURL authenticated with apiKey. The key is
// passed through as-is.
func New(baseURL, apiKey string, opts ...Option) (*HTTP, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid telemetry url %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid telemetry url %q: missing scheme or host", baseURL)
	}

	h := &HTTP{
		base:   base,
		apiKey: apiKey,
		client: http.DefaultClient,
		log:    console.Std{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// URL returns the request URL carrying raw as field1.
func (h *HTTP) URL(raw uint16) string {
	u := *h.base
	q := u.Query()
	q.Set(keyParam, h.apiKey)
	q.Set(valueParam, strconv.Itoa(int(raw)))
	u.RawQuery = q.Encode()
	return u.String()
}

// Send performs one GET request without retrying.
func (h *HTTP) Send(ctx context.Context, raw uint16) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL(raw), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}
	return nil
}

// Upload sends raw and logs the outcome. Failures never reach the caller.
func (h *HTTP) Upload(ctx context.Context, raw uint16) {
	if err := h.Send(ctx, raw); err != nil {
		h.log.Errorf("failed to send data: %v", err)
		return
	}
	h.log.Infof("data sent successfully")
}
