package pipeline

import (
	"errors"
	"fmt"
)

// Stage names a step of the document pipeline. It is what failure diagnostics report.
type Stage string

const (
	StageWorkDir        Stage = "workdir"
	StageOCR            Stage = "ocr"
	StageUpload         Stage = "upload"
	StageRedaction      Stage = "redaction"
	StageDownload       Stage = "download"
	StageReadback       Stage = "readback"
	StageParentCodes    Stage = "parent_codes"
	StageSpecifiedCodes Stage = "specified_codes"
	StageProcedureCodes Stage = "procedure_codes"
)

// Error kinds
var (
	ErrTransport         = errors.New("transport error")
	ErrAuth              = errors.New("authentication error")
	ErrMalformedResponse = errors.New("malformed response")
	ErrSchemaValidation  = errors.New("schema validation error")
	ErrMissingArtifact   = errors.New("missing artifact")
)

// Error is a stage-tagged failure. errors.Is matches both Kind and Err.
type Error struct {
	Stage     Stage
	Kind      error
	Err       error
	Detail    string // raw remote payload, if any
	Temporary bool
}

func (e *Error) Error() string {
	msg := "pipeline error"
	if e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s", e.Stage, msg)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// New builds an untagged Error of the given kind.
func New(kind error, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Temporary builds a retryable Error of the given kind.
func Temporary(kind error, err error) *Error {
	return &Error{Kind: kind, Err: err, Temporary: true}
}

// AtStage tags err with stage. An untagged *Error keeps its kind and detail and
// gets cause wrapped into it; anything else becomes a new Error of fallback kind.
func AtStage(stage Stage, cause error, fallback error, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		out := *pe
		if out.Stage == "" {
			out.Stage = stage
		}
		if cause != nil {
			switch {
			case out.Err == nil:
				out.Err = cause
			case !errors.Is(out.Err, cause):
				out.Err = fmt.Errorf("%w: %w", cause, out.Err)
			}
		}
		return &out
	}
	if cause != nil {
		err = fmt.Errorf("%w: %w", cause, err)
	}
	return &Error{Stage: stage, Kind: fallback, Err: err}
}

// Wrap is AtStage without a stage, for adapters that leave tagging to the caller.
func Wrap(cause error, fallback error, err error) error {
	return AtStage("", cause, fallback, err)
}

// StageOf reports the stage recorded on err, if any.
func StageOf(err error) Stage {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return ""
}

// DetailOf returns the raw remote payload recorded on err, if any.
func DetailOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Detail
	}
	return ""
}

// KindOf returns the taxonomy kind of err, or nil for foreign errors.
func KindOf(err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return nil
}

// IsTemporary reports whether err is worth retrying.
func IsTemporary(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Temporary
	}
	return false
}

// KindName is the short label used in logs and persisted failures.
func KindName(kind error) string {
	switch kind {
	case ErrTransport:
		return "transport"
	case ErrAuth:
		return "auth"
	case ErrMalformedResponse:
		return "malformed_response"
	case ErrSchemaValidation:
		return "schema_validation"
	case ErrMissingArtifact:
		return "missing_artifact"
	default:
		return "unknown"
	}
}
