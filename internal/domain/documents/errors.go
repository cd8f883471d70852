package documents

import (
	"errors"
	"fmt"

	"github.com/bryanwahyu/medcoder/internal/domain/coding"
)

// Upload validation errors
var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrInvalidDocument      = errors.New("invalid document")
	ErrTooManyPages         = errors.New("too many pages")
	ErrEmptyUpdate          = errors.New("update carries no code set")
)

// ProcessingError is returned when the pipeline ran but did not succeed.
type ProcessingError struct {
	Result coding.ProcessingResult
}

func (e *ProcessingError) Error() string {
	if e.Result.Stage == "" {
		return fmt.Sprintf("processing failed: %s", e.Result.Message)
	}
	return fmt.Sprintf("processing failed at %s: %s", e.Result.Stage, e.Result.Message)
}

// Unwrap exposes the pipeline failure, if one was kept.
func (e *ProcessingError) Unwrap() error { return e.Result.Err }
