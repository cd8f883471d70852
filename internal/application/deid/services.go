package deid

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/medcoder/internal/application"
	domain "github.com/bryanwahyu/medcoder/internal/domain/deid"
	"github.com/bryanwahyu/medcoder/internal/domain/pipeline"
)

// Service runs OCR, SFTP staging, redaction and retrieval for one file at a time.
// It keeps no state between runs and is safe for concurrent use.
type Service struct {
	OCR      domain.OCR
	Store    domain.FileStore
	Redactor domain.Redactor
	Retry    application.RetryPolicy
	Log      zerolog.Logger

	RemoteRoot    string
	StagingSubdir string
	OutputSubdir  string
	// WorkDir is where per-run directories are created; empty means os.TempDir().
	WorkDir string
}

type run struct {
	out domain.Output
	log zerolog.Logger
}

func (r *run) enter(state domain.State) {
	r.out.Trace = append(r.out.Trace, state)
	r.log.Debug().Str("state", string(state)).Msg("deid state")
}

func (r *run) fail(stage pipeline.Stage, fallback error, err error) (domain.Output, error) {
	r.out.Trace = append(r.out.Trace, domain.StateFailed)
	tagged := pipeline.AtStage(stage, nil, fallback, err)
	r.log.Error().Err(tagged).
		Str("stage", string(stage)).
		Str("kind", pipeline.KindName(pipeline.KindOf(tagged))).
		Msg("deid failed")
	return r.out, tagged
}

// Run de-identifies filePath. On success Output.Text holds the redacted text. On
// failure the error names the stage, and Output still carries WorkDir and the
// trace so the caller can clean up. Remote artifacts are never removed.
func (s *Service) Run(ctx context.Context, filePath string) (domain.Output, error) {
	runID := ulid.Make().String()
	r := &run{
		out: domain.Output{RunID: runID, Trace: []domain.State{domain.StateStart}},
		log: s.Log.With().Str("run_id", runID).Str("file", filepath.Base(filePath)).Logger(),
	}

	base := s.WorkDir
	if base == "" {
		base = os.TempDir()
	}
	r.out.WorkDir = filepath.Join(base, "deid-"+runID)
	if err := os.MkdirAll(r.out.WorkDir, 0o700); err != nil {
		r.out.WorkDir = ""
		return r.fail(pipeline.StageWorkDir, pipeline.ErrTransport, fmt.Errorf("create work dir: %w", err))
	}

	r.enter(domain.StateOCRRunning)
	textPath, err := application.Retry(ctx, s.Retry, r.log, "ocr", func() (string, error) {
		return s.OCR.RunOCR(ctx, filePath, r.out.WorkDir)
	})
	if err != nil {
		return r.fail(pipeline.StageOCR, pipeline.ErrTransport, err)
	}
	r.out.ExtractedPath = textPath
	r.enter(domain.StateOCRDone)

	r.enter(domain.StateUploading)
	staged, err := application.Retry(ctx, s.Retry, r.log, "upload", func() (string, error) {
		return s.Store.Upload(ctx, textPath, s.StagingSubdir)
	})
	if err != nil {
		return r.fail(pipeline.StageUpload, pipeline.ErrTransport, err)
	}
	r.out.StagedPath = staged

	r.enter(domain.StateRedacting)
	outputDir := path.Join(s.RemoteRoot, s.OutputSubdir)
	res, err := application.Retry(ctx, s.Retry, r.log, "redaction", func() (domain.RedactionResult, error) {
		return s.Redactor.Redact(ctx, staged, outputDir)
	})
	if err != nil {
		return r.fail(pipeline.StageRedaction, pipeline.ErrTransport, err)
	}
	r.out.Redaction = res
	if strings.TrimSpace(res.RedactedFile) == "" {
		return r.fail(pipeline.StageRedaction, pipeline.ErrMissingArtifact, &pipeline.Error{
			Kind:   pipeline.ErrMissingArtifact,
			Err:    domain.ErrMissingRedactedFilePath,
			Detail: string(res.Raw),
		})
	}
	r.out.RedactedRemotePath = res.RedactedFile

	r.enter(domain.StateDownloading)
	local := filepath.Join(r.out.WorkDir, "redacted", path.Base(res.RedactedFile))
	err = application.RetryErr(ctx, s.Retry, r.log, "download", func() error {
		return s.Store.Download(ctx, res.RedactedFile, local)
	})
	if err != nil {
		return r.fail(pipeline.StageDownload, pipeline.ErrTransport, err)
	}
	r.out.RedactedLocalPath = local

	data, err := os.ReadFile(local)
	if err != nil {
		kind := pipeline.ErrTransport
		if errors.Is(err, os.ErrNotExist) {
			kind = pipeline.ErrMissingArtifact
		}
		return r.fail(pipeline.StageReadback, kind, fmt.Errorf("read %s: %w", local, err))
	}
	r.out.Text = strings.ToValidUTF8(string(data), "")

	if findings := ScanResidual(r.out.Text); len(findings) > 0 {
		r.out.Residual = findings
		ev := r.log.Warn()
		for _, f := range findings {
			ev = ev.Int(f.Label, f.Count)
		}
		ev.Msg("redacted text still matches identifier patterns")
	}

	r.enter(domain.StateDone)
	r.log.Info().Int("chars", len(r.out.Text)).Msg("deid done")
	return r.out, nil
}
