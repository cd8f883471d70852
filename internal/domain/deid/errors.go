package deid

import (
	"errors"
	"fmt"
)

var (
	ErrOCRRequestFailed        = errors.New("ocr request failed")
	ErrOCROutput               = errors.New("ocr output error")
	ErrEmptyOCRResult          = fmt.Errorf("%w: ocr_result is empty", ErrOCROutput)
	ErrRedactionRequestFailed  = errors.New("redaction request failed")
	ErrRedactionFailed         = errors.New("redaction failed")
	ErrMissingRedactedFilePath = errors.New("no redacted file path returned")
)
