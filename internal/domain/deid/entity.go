package deid

import "encoding/json"

// State of a de-identification run
type State string

const (
	StateStart       State = "START"
	StateOCRRunning  State = "OCR_RUNNING"
	StateOCRDone     State = "OCR_DONE"
	StateUploading   State = "UPLOADING"
	StateRedacting   State = "REDACTING"
	StateDownloading State = "DOWNLOADING"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// RedactionStatusSuccess is the only status the redaction service reports for a usable result.
const RedactionStatusSuccess = "success"

// RedactionResult is what the redaction service answers for one staged file.
type RedactionResult struct {
	Status       string          `json:"status"`
	RedactedFile string          `json:"redacted_file"`
	PIICount     json.RawMessage `json:"pii_count,omitempty"`
	Raw          []byte          `json:"-"`
}

// Output of a successful run. The work files under WorkDir belong to the caller.
type Output struct {
	RunID              string
	Text               string
	WorkDir            string
	ExtractedPath      string
	StagedPath         string
	RedactedRemotePath string
	RedactedLocalPath  string
	Redaction          RedactionResult
	Trace              []State
	Residual           []ResidualFinding
}

// ResidualFinding is an identifier-looking match left in redacted text.
type ResidualFinding struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}
