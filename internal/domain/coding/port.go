package coding

import (
	"context"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// GenerateRequest is one prompted extraction call.
type GenerateRequest struct {
	Name        string // short identifier, also used as the schema name
	Instruction string
	Text        string
	// Candidates is sent as the provided code list when non-nil, even if empty.
	Candidates []string
	// Schema is nil for free-text output.
	Schema *jsonschema.Definition
}

// Generator port for a language-generation backend.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Instructions are the fixed prompts for the three generation stages.
type Instructions struct {
	ParentCodes    string
	SpecifiedCodes string
	ProcedureCodes string
}
