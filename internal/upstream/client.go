// Package upstream is the JSON REST client shared by every collaborator the
// storefront proxies: the backend catalog, cart, address book and order
// services and the card-payment gateway.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/promo-storefront/internal/common"
	"github.com/noah-isme/promo-storefront/internal/resilience"
)

// ErrUnavailable marks transport failures: the collaborator could not be
// reached or did not answer. Callers cannot tell whether the request took effect.
var ErrUnavailable = errors.New("upstream: unavailable")

// ErrNotSent marks failures that happened before the request left the
// process: an open circuit or a request that could not be built. The
// collaborator never saw it.
var ErrNotSent = errors.New("upstream: request not sent")

const maxBodyBytes = 4 << 20

// Response is a raw upstream reply.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the status is 2xx.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// StatusError is returned by JSON when the collaborator answered with a non-2xx status.
type StatusError struct {
	Target  string
	Method  string
	Path    string
	Status  int
	Message string
	Body    []byte
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("upstream %s: %s %s returned %d: %s", e.Target, e.Method, e.Path, e.Status, msg)
}

// Client calls one collaborator base URL through the resilience layer.
type Client struct {
	BaseURL string
	Target  string
	HTTP    *resilience.HTTPClient
	// Decorate adds collaborator-specific headers (credentials, app keys).
	Decorate func(*http.Request)
	// ForwardToken copies the caller's bearer token from the context.
	ForwardToken bool
}

// NewHTTPClient returns an http.Client with an OpenTelemetry-instrumented transport.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Send performs the request and returns the raw reply. Only transport failures
// produce an error, wrapping ErrUnavailable, and ErrNotSent as well when the
// request never left the process.
func (c *Client) Send(ctx context.Context, method, path string, query url.Values, body any) (Response, error) {
	if c == nil || c.HTTP == nil {
		return Response{}, fmt.Errorf("%w: %w: client not configured", ErrUnavailable, ErrNotSent)
	}
	target := c.resolve(path, query)
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return Response{}, fmt.Errorf("%w: encode body: %w", ErrNotSent, err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return Response{}, fmt.Errorf("%w: build request: %w", ErrNotSent, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.ForwardToken {
		if token, ok := common.AccessToken(ctx); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if c.Decorate != nil {
		c.Decorate(req)
	}
	resp, err := c.HTTP.Do(ctx, req)
	if errors.Is(err, resilience.ErrOpenCircuit) {
		return Response{}, fmt.Errorf("%w: %w: %s %s: %w", ErrUnavailable, ErrNotSent, method, path, err)
	}
	if err != nil {
		return Response{}, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("%w: read %s %s: %v", ErrUnavailable, method, path, err)
	}
	return Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// JSON performs the request and decodes a 2xx body into out (when non-nil).
// Non-2xx replies become *StatusError.
func (c *Client) JSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	resp, err := c.Send(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &StatusError{
			Target:  c.Target,
			Method:  method,
			Path:    path,
			Status:  resp.Status,
			Message: MessageFrom(resp.Body),
			Body:    resp.Body,
		}
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], resp.Body...)
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("upstream %s: decode %s %s: %w", c.Target, method, path, err)
	}
	return nil
}

// Get is a JSON GET.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.JSON(ctx, http.MethodGet, path, query, nil, out)
}

// Post is a JSON POST.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.JSON(ctx, http.MethodPost, path, nil, body, out)
}

// Patch is a JSON PATCH.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.JSON(ctx, http.MethodPatch, path, nil, body, out)
}

// Delete is a JSON DELETE.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.JSON(ctx, http.MethodDelete, path, nil, nil, out)
}

func (c *Client) resolve(path string, query url.Values) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

// PathEscape escapes an identifier for use as a single path segment.
func PathEscape(id string) string {
	return url.PathEscape(strings.TrimSpace(id))
}
