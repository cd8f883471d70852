package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/medcoder/internal/domain/coding"
	"github.com/bryanwahyu/medcoder/internal/domain/deid"
	domain "github.com/bryanwahyu/medcoder/internal/domain/pipeline"
)

// Deidentifier produces redacted text for a local file.
type Deidentifier interface {
	Run(ctx context.Context, filePath string) (deid.Output, error)
}

// Coder turns redacted text into a ProcessingResult.
type Coder interface {
	GenerateCodes(ctx context.Context, text string) coding.ProcessingResult
}

// Service chains de-identification and code generation for one document.
type Service struct {
	Deid     Deidentifier
	Coder    Coder
	Reporter domain.Reporter
	Log      zerolog.Logger

	KeepWorkFiles bool
}

// ProcessICDCodes runs the whole pipeline on filePath and always returns a
// well-formed result: either every code set, or the failing stage with empty sets.
func (s *Service) ProcessICDCodes(ctx context.Context, filePath string) (res coding.ProcessingResult) {
	var workDir string
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("pipeline panic: %v", r)
			s.Log.Error().Err(err).Bytes("stack", debug.Stack()).Msg("recovered panic")
			s.report(ctx, err, map[string]string{"kind": "panic"})
			res = coding.Failure("", "panic", err.Error(), "")
			res.Err = err
		}
		s.cleanup(workDir)
	}()

	out, err := s.Deid.Run(ctx, filePath)
	workDir = out.WorkDir
	if err != nil {
		kind := domain.KindName(domain.KindOf(err))
		stage := string(domain.StageOf(err))
		s.report(ctx, err, map[string]string{"stage": stage, "kind": kind})
		res = coding.Failure(stage, kind, err.Error(), domain.DetailOf(err))
		res.Err = err
		return res
	}

	res = s.Coder.GenerateCodes(ctx, out.Text)
	if !res.OK() {
		cause := res.Err
		if cause == nil {
			cause = errors.New(res.Message)
		}
		s.report(ctx, cause, map[string]string{"stage": res.Stage, "kind": res.Kind})
		return res
	}
	res.DeidentifiedText = out.Text
	s.Log.Info().
		Str("run_id", out.RunID).
		Int("parent_codes", len(res.ParentCodes)).
		Int("icd_codes", len(res.SpecifiedCodes)).
		Int("cpt_codes", len(res.ProcedureCodes.CPT)).
		Msg("document processed")
	return res
}

func (s *Service) report(ctx context.Context, err error, tags map[string]string) {
	if s.Reporter == nil {
		return
	}
	s.Reporter.Report(ctx, err, tags)
}

func (s *Service) cleanup(dir string) {
	if dir == "" || s.KeepWorkFiles {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		s.Log.Warn().Err(err).Str("dir", dir).Msg("remove work dir")
	}
}
