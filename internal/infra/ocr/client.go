package ocr

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/bryanwahyu/medcoder/internal/domain/deid"
	"github.com/bryanwahyu/medcoder/internal/domain/pipeline"
	"github.com/bryanwahyu/medcoder/internal/infra/transport"
)

const (
	formField        = "files"
	apiKeyHeader     = "x-api-key"
	defaultMediaType = "application/pdf"
)

// Client implements deid.OCR against the OCR service.
type Client struct {
	endpoint string
	http     *transport.Client
}

var _ deid.OCR = (*Client)(nil)

func NewClient(endpoint, apiKey string, timeout time.Duration, opts ...transport.Option) *Client {
	opts = append([]transport.Option{transport.WithHeader(apiKeyHeader, apiKey)}, opts...)
	return &Client{endpoint: endpoint, http: transport.New(timeout, opts...)}
}

type ocrResponse struct {
	OCRResult string `json:"ocr_result"`
}

// RunOCR uploads filePath and writes the recognized text to <workDir>/<ulid>.txt.
func (c *Client) RunOCR(ctx context.Context, filePath, workDir string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", pipeline.New(pipeline.ErrMissingArtifact, fmt.Errorf("%w: %w", deid.ErrOCRRequestFailed, err))
	}
	defer f.Close()

	resp, err := c.http.PostMultipart(ctx, c.endpoint, transport.FilePart{
		Field:       formField,
		FileName:    filepath.Base(filePath),
		ContentType: mediaType(filePath),
		Content:     f,
	})
	if err != nil {
		return "", pipeline.Wrap(deid.ErrOCRRequestFailed, pipeline.ErrTransport, err)
	}

	var out ocrResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return "", pipeline.Wrap(deid.ErrOCROutput, pipeline.ErrMalformedResponse, err)
	}
	if strings.TrimSpace(out.OCRResult) == "" {
		return "", &pipeline.Error{
			Kind:   pipeline.ErrMalformedResponse,
			Err:    deid.ErrEmptyOCRResult,
			Detail: string(resp.Body),
		}
	}

	if err := os.MkdirAll(workDir, 0o700); err != nil {
		return "", pipeline.New(pipeline.ErrMissingArtifact, fmt.Errorf("%w: %w", deid.ErrOCROutput, err))
	}
	textPath := filepath.Join(workDir, ulid.Make().String()+".txt")
	if err := os.WriteFile(textPath, []byte(out.OCRResult), 0o600); err != nil {
		return "", pipeline.New(pipeline.ErrMissingArtifact, fmt.Errorf("%w: %w", deid.ErrOCROutput, err))
	}
	return textPath, nil
}

func mediaType(path string) string {
	if mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); mt != "" {
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = mt[:i]
		}
		return mt
	}
	return defaultMediaType
}
