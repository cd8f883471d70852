package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"time"

	"github.com/bryanwahyu/medcoder/internal/domain/pipeline"
)

const maxBodyBytes = 64 << 20

// Client wraps net/http for the remote pipeline services. Every failure it
// returns is a *pipeline.Error.
type Client struct {
	http    *http.Client
	headers http.Header
}

type Option func(*Client)

// WithHeader sets a header on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// WithHTTPClient swaps the underlying client. Its Timeout is kept as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: timeout},
		headers: http.Header{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Response is a 2xx answer with its body fully read.
type Response struct {
	StatusCode int
	Body       []byte
}

// DecodeJSON unmarshals the body. Failures are malformed-response errors carrying the raw body.
func (r Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &pipeline.Error{
			Kind:   pipeline.ErrMalformedResponse,
			Err:    fmt.Errorf("decoding response: %w", err),
			Detail: string(r.Body),
		}
	}
	return nil
}

// StatusError is a non-2xx answer.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// FilePart is one file field of a multipart form.
type FilePart struct {
	Field       string
	FileName    string
	ContentType string
	Content     io.Reader
}

// PostJSON sends payload as a JSON body.
func (c *Client) PostJSON(ctx context.Context, url string, payload any) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, pipeline.New(pipeline.ErrTransport, fmt.Errorf("marshaling request: %w", err))
	}
	return c.do(ctx, url, "application/json", body)
}

// PostMultipart sends the given files as multipart/form-data.
func (c *Client) PostMultipart(ctx context.Context, url string, files ...FilePart) (Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.FileName))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return Response{}, pipeline.New(pipeline.ErrTransport, fmt.Errorf("building form: %w", err))
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return Response{}, pipeline.New(pipeline.ErrTransport, fmt.Errorf("reading %s: %w", f.FileName, err))
		}
	}
	if err := w.Close(); err != nil {
		return Response{}, pipeline.New(pipeline.ErrTransport, fmt.Errorf("building form: %w", err))
	}
	return c.do(ctx, url, w.FormDataContentType(), buf.Bytes())
}

func (c *Client) do(ctx context.Context, url, contentType string, body []byte) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, pipeline.New(pipeline.ErrTransport, fmt.Errorf("creating request: %w", err))
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, Classify(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{}, pipeline.Temporary(pipeline.ErrTransport, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{Code: resp.StatusCode, Body: data}
		kind := pipeline.ErrTransport
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = pipeline.ErrAuth
		}
		return Response{}, &pipeline.Error{
			Kind:      kind,
			Err:       serr,
			Detail:    string(data),
			Temporary: RetryableStatus(resp.StatusCode),
		}
	}
	return Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// Classify turns a failed round trip into a pipeline error. Cancellation is final;
// timeouts and connection failures are temporary.
func Classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return pipeline.New(pipeline.ErrTransport, err)
	}
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return pipeline.Temporary(pipeline.ErrTransport, fmt.Errorf("timeout: %w", err))
	}
	return pipeline.Temporary(pipeline.ErrTransport, err)
}

// RetryableStatus reports whether an HTTP status is worth another attempt.
func RetryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

// IsTimeout reports whether err came from a deadline.
func IsTimeout(err error) bool {
	var nerr net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout())
}
