package coding

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/medcoder/internal/application"
	domain "github.com/bryanwahyu/medcoder/internal/domain/coding"
	"github.com/bryanwahyu/medcoder/internal/domain/pipeline"
)

// Service turns de-identified text into ICD-10, CPT and HCPCS codes with three
// sequential calls to the Generator.
type Service struct {
	Generator       domain.Generator
	Instructions    domain.Instructions
	AllowedChapters []string
	Retry           application.RetryPolicy
	Log             zerolog.Logger
}

func (s *Service) generate(ctx context.Context, stage pipeline.Stage, cause error, req domain.GenerateRequest) (string, error) {
	out, err := application.Retry(ctx, s.Retry, s.Log, string(stage), func() (string, error) {
		return s.Generator.Generate(ctx, req)
	})
	if err != nil {
		return "", pipeline.AtStage(stage, cause, pipeline.ErrTransport, err)
	}
	return out, nil
}

func invalid(stage pipeline.Stage, cause error, raw string, err error) error {
	return &pipeline.Error{
		Stage:  stage,
		Kind:   pipeline.ErrSchemaValidation,
		Err:    fmt.Errorf("%w: %w", cause, err),
		Detail: raw,
	}
}

// ParentCodes runs Stage A. Output without any bracketed list fails; entries
// that are malformed or outside the allowed chapters are dropped with a warning.
func (s *Service) ParentCodes(ctx context.Context, text string) ([]string, error) {
	const stage = pipeline.StageParentCodes
	raw, err := s.generate(ctx, stage, domain.ErrParentCodeGeneration, domain.GenerateRequest{
		Name:        "icd10_parent_codes",
		Instruction: s.Instructions.ParentCodes,
		Text:        text,
	})
	if err != nil {
		return nil, err
	}
	entries, err := ParseCodeList(raw)
	if err != nil {
		return nil, invalid(stage, domain.ErrParentCodeGeneration, raw, err)
	}
	chapters := s.AllowedChapters
	if len(chapters) == 0 {
		chapters = domain.DefaultChapters
	}
	kept, dropped := filterParents(entries, chapters)
	if len(dropped) > 0 {
		s.Log.Warn().Str("stage", string(stage)).Strs("dropped", dropped).Msg("parent codes outside scope")
	}
	return kept, nil
}

// SpecifiedCodes runs Stage B with parents as the candidate pool. An empty pool
// still makes the call; whatever comes back is filtered to the pool's categories.
func (s *Service) SpecifiedCodes(ctx context.Context, text string, parents []string) ([]domain.Code, error) {
	const stage = pipeline.StageSpecifiedCodes
	candidates := append([]string{}, parents...)
	raw, err := s.generate(ctx, stage, domain.ErrSpecifiedCodeGeneration, domain.GenerateRequest{
		Name:        "icd10_specified_codes",
		Instruction: s.Instructions.SpecifiedCodes,
		Text:        text,
		Candidates:  candidates,
		Schema:      &SpecifiedCodesSchema,
	})
	if err != nil {
		return nil, err
	}
	var resp specifiedResponse
	if err := decodeStrict(SpecifiedCodesSchema, raw, &resp); err != nil {
		return nil, invalid(stage, domain.ErrSpecifiedCodeGeneration, raw, err)
	}
	kept, dropped := filterSpecified(resp.ICD10Codes, parents)
	if len(dropped) > 0 {
		s.Log.Warn().Str("stage", string(stage)).Strs("dropped", dropped).Msg("specified codes outside candidate categories")
	}
	return kept, nil
}

// ProcedureCodes runs Stage C and flattens CPT modifiers into their own list.
func (s *Service) ProcedureCodes(ctx context.Context, text string) (domain.ProcedureCodes, error) {
	const stage = pipeline.StageProcedureCodes
	raw, err := s.generate(ctx, stage, domain.ErrProcedureCodeGeneration, domain.GenerateRequest{
		Name:        "cpt_hcpcs_codes",
		Instruction: s.Instructions.ProcedureCodes,
		Text:        text,
		Schema:      &ProcedureCodesSchema,
	})
	if err != nil {
		return domain.ProcedureCodes{}, err
	}
	var resp procedureResponse
	if err := decodeStrict(procedureResponseSchema, raw, &resp); err != nil {
		return domain.ProcedureCodes{}, invalid(stage, domain.ErrProcedureCodeGeneration, raw, err)
	}
	if resp.CPTCodes == nil {
		resp.CPTCodes = []domain.ProcedureCode{}
	}
	if resp.HCPCSCodes == nil {
		resp.HCPCSCodes = []domain.Code{}
	}
	return domain.ProcedureCodes{
		CPT:       resp.CPTCodes,
		Modifiers: flattenModifiers(resp.CPTCodes),
		HCPCS:     resp.HCPCSCodes,
	}, nil
}

// Generate runs the three stages in order and stops at the first failure.
func (s *Service) Generate(ctx context.Context, text string) (domain.CodeSet, error) {
	parents, err := s.ParentCodes(ctx, text)
	if err != nil {
		return domain.CodeSet{}, err
	}
	specified, err := s.SpecifiedCodes(ctx, text, parents)
	if err != nil {
		return domain.CodeSet{}, err
	}
	procedures, err := s.ProcedureCodes(ctx, text)
	if err != nil {
		return domain.CodeSet{}, err
	}
	return domain.CodeSet{ParentCodes: parents, SpecifiedCodes: specified, ProcedureCodes: procedures}, nil
}

// GenerateCodes is Generate folded into a ProcessingResult: all three sets on
// success, or the failing stage and message with empty sets.
func (s *Service) GenerateCodes(ctx context.Context, text string) domain.ProcessingResult {
	set, err := s.Generate(ctx, text)
	if err != nil {
		s.Log.Error().Err(err).Str("stage", string(pipeline.StageOf(err))).Msg("code generation failed")
		res := domain.Failure(
			string(pipeline.StageOf(err)),
			pipeline.KindName(pipeline.KindOf(err)),
			err.Error(),
			pipeline.DetailOf(err),
		)
		res.Err = err
		return res
	}
	return domain.Success(set)
}
