package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Doer performs a single logical request. Implementations retry transient failures
// internally and return an error only once retries are exhausted or the failure is
// not retryable.
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Request describes an outgoing call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read upstream response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", r.URL, err)
	}
	return nil
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// StatusError reports a non-2xx response at the domain layer.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s responded with status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s responded with status %d: %s", e.URL, e.StatusCode, e.Body)
}

const maxErrorBody = 512

// NewStatusError builds a StatusError with a bounded body excerpt.
func NewStatusError(resp *Response) *StatusError {
	body := resp.Text()
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	return &StatusError{URL: resp.URL, StatusCode: resp.StatusCode, Body: body}
}

// DoerFunc adapts a function to the Doer interface.
type DoerFunc func(ctx context.Context, req Request) (*Response, error)

// Do implements Doer.
func (f DoerFunc) Do(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
