package redaction

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanwahyu/medcoder/internal/domain/deid"
	"github.com/bryanwahyu/medcoder/internal/domain/pipeline"
	"github.com/bryanwahyu/medcoder/internal/infra/transport"
)

// Client implements deid.Redactor against the HIPAA redaction service.
type Client struct {
	endpoint string
	http     *transport.Client
}

var _ deid.Redactor = (*Client)(nil)

func NewClient(endpoint string, timeout time.Duration, opts ...transport.Option) *Client {
	return &Client{endpoint: endpoint, http: transport.New(timeout, opts...)}
}

type redactRequest struct {
	Path       string `json:"path"`
	OutputPath string `json:"output_path"`
}

// Redact asks the service to redact stagedRemotePath into outputRemoteDir. Only a
// "success" status is accepted; anything else fails with the raw body as detail.
func (c *Client) Redact(ctx context.Context, stagedRemotePath, outputRemoteDir string) (deid.RedactionResult, error) {
	resp, err := c.http.PostJSON(ctx, c.endpoint, redactRequest{
		Path:       stagedRemotePath,
		OutputPath: outputRemoteDir,
	})
	if err != nil {
		return deid.RedactionResult{}, pipeline.Wrap(deid.ErrRedactionRequestFailed, pipeline.ErrTransport, err)
	}

	var out deid.RedactionResult
	if err := resp.DecodeJSON(&out); err != nil {
		return deid.RedactionResult{}, pipeline.Wrap(deid.ErrRedactionFailed, pipeline.ErrMalformedResponse, err)
	}
	out.Raw = resp.Body

	if out.Status != deid.RedactionStatusSuccess {
		return out, &pipeline.Error{
			Kind:   pipeline.ErrMalformedResponse,
			Err:    fmt.Errorf("%w: status %q", deid.ErrRedactionFailed, out.Status),
			Detail: string(resp.Body),
		}
	}
	return out, nil
}
