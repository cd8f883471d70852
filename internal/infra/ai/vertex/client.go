package vertex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bryanwahyu/medcoder/internal/domain/ai"
	"github.com/bryanwahyu/medcoder/internal/domain/coding"
	"github.com/bryanwahyu/medcoder/internal/domain/pipeline"
	"github.com/bryanwahyu/medcoder/internal/infra/ai/prompt"
	"github.com/bryanwahyu/medcoder/internal/infra/transport"
)

const defaultModel = "gemini-1.5-pro"

// Client implements coding.Generator on Vertex AI Gemini models.
type Client struct {
	base  *genai.Client
	model string
}

var _ coding.Generator = (*Client)(nil)

func NewClient(ctx context.Context, projectID, region, model string) (*Client, error) {
	if projectID == "" || region == "" {
		return nil, errors.New("vertex: projectID and region cannot be empty")
	}
	base, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{base: base, model: model}, nil
}

func (c *Client) Close() error {
	if c.base != nil {
		return c.base.Close()
	}
	return nil
}

// configure sets up one model per request; the instruction differs per stage.
func configure(m *genai.GenerativeModel, req coding.GenerateRequest) {
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.Instruction)}}
	m.GenerationConfig = genai.GenerationConfig{Temperature: genai.Ptr[float32](0)}
	if req.Schema != nil {
		m.GenerationConfig.ResponseMIMEType = "application/json"
		m.GenerationConfig.ResponseSchema = responseSchema(req.Schema)
	}
}

var schemaTypes = map[jsonschema.DataType]genai.Type{
	jsonschema.Object:  genai.TypeObject,
	jsonschema.Array:   genai.TypeArray,
	jsonschema.String:  genai.TypeString,
	jsonschema.Number:  genai.TypeNumber,
	jsonschema.Integer: genai.TypeInteger,
	jsonschema.Boolean: genai.TypeBoolean,
}

// responseSchema converts a JSON schema into the OpenAPI subset Gemini takes.
func responseSchema(d *jsonschema.Definition) *genai.Schema {
	if d == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        schemaTypes[d.Type],
		Description: d.Description,
		Enum:        d.Enum,
		Nullable:    d.Nullable,
		Required:    d.Required,
		Items:       responseSchema(d.Items),
	}
	if len(d.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(d.Properties))
		for name, p := range d.Properties {
			out.Properties[name] = responseSchema(&p)
		}
	}
	return out
}

func (c *Client) Generate(ctx context.Context, req coding.GenerateRequest) (string, error) {
	m := c.base.GenerativeModel(c.model)
	configure(m, req)

	resp, err := m.GenerateContent(ctx, genai.Text(prompt.UserMessage(req)))
	if err != nil {
		return "", classify(err)
	}
	return responseText(resp)
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", pipeline.New(pipeline.ErrMalformedResponse, errors.New("vertex response has no candidates"))
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", pipeline.New(pipeline.ErrMalformedResponse, errors.New("vertex candidate has no text"))
	}
	return b.String(), nil
}

func classify(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return pipeline.New(pipeline.ErrMalformedResponse, err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return transport.Classify(err)
	}
	switch st.Code() {
	case codes.ResourceExhausted:
		return pipeline.Temporary(pipeline.ErrTransport, fmt.Errorf("%w: %w", ai.ErrQuotaExceeded, err))
	case codes.Unauthenticated, codes.PermissionDenied:
		return pipeline.New(pipeline.ErrAuth, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
		return pipeline.Temporary(pipeline.ErrTransport, err)
	default:
		return pipeline.New(pipeline.ErrTransport, err)
	}
}
