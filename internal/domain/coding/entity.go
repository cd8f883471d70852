package coding

// Status of a processing run
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// DefaultChapters are the ICD-10 chapters relevant to behavioral health.
var DefaultChapters = []string{"F", "G", "R"}

// Code is a code with its human-readable description.
type Code struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ProcedureCode is a CPT entry with its optional modifier.
type ProcedureCode struct {
	Code                string `json:"code"`
	Description         string `json:"description"`
	Modifier            string `json:"modifier"`
	DescriptionModifier string `json:"description_modifier"`
}

// ProcedureCodes groups CPT entries, their flattened modifiers and HCPCS codes.
type ProcedureCodes struct {
	CPT       []ProcedureCode `json:"cpt"`
	Modifiers []Code          `json:"modifiers"`
	HCPCS     []Code          `json:"hcpcs"`
}

// CodeSet is everything the three generation stages produce for one document.
type CodeSet struct {
	ParentCodes    []string
	SpecifiedCodes []Code
	ProcedureCodes ProcedureCodes
}

// Map returns a code -> description view over all sets. Parent codes map to "".
func (c CodeSet) Map() map[string]string {
	m := make(map[string]string, len(c.ParentCodes)+len(c.SpecifiedCodes))
	for _, p := range c.ParentCodes {
		m[p] = ""
	}
	for _, s := range c.SpecifiedCodes {
		m[s.Code] = s.Description
	}
	for _, p := range c.ProcedureCodes.CPT {
		m[p.Code] = p.Description
	}
	for _, h := range c.ProcedureCodes.HCPCS {
		m[h.Code] = h.Description
	}
	return m
}

// ProcessingResult is the single value a pipeline run returns.
type ProcessingResult struct {
	Status         Status         `json:"status"`
	Stage          string         `json:"stage,omitempty"`
	Kind           string         `json:"kind,omitempty"`
	Message        string         `json:"message,omitempty"`
	Detail         string         `json:"detail,omitempty"`
	ParentCodes    []string       `json:"icd_parent_codes"`
	SpecifiedCodes []Code         `json:"icd_codes"`
	ProcedureCodes ProcedureCodes `json:"cpt_codes"`

	// DeidentifiedText is kept for archival and never serialized.
	DeidentifiedText string `json:"-"`
	// Err is the failure behind an error result, for callers that branch on it.
	Err error `json:"-"`
}

// OK reports whether the run succeeded.
func (r ProcessingResult) OK() bool { return r.Status == StatusSuccess }

// Codes returns the result's code sets.
func (r ProcessingResult) Codes() CodeSet {
	return CodeSet{
		ParentCodes:    r.ParentCodes,
		SpecifiedCodes: r.SpecifiedCodes,
		ProcedureCodes: r.ProcedureCodes,
	}
}

// Success builds a successful result with non-nil slices.
func Success(set CodeSet) ProcessingResult {
	return ProcessingResult{
		Status:         StatusSuccess,
		ParentCodes:    nonNil(set.ParentCodes),
		SpecifiedCodes: nonNilCodes(set.SpecifiedCodes),
		ProcedureCodes: ProcedureCodes{
			CPT:       nonNilProcedures(set.ProcedureCodes.CPT),
			Modifiers: nonNilCodes(set.ProcedureCodes.Modifiers),
			HCPCS:     nonNilCodes(set.ProcedureCodes.HCPCS),
		},
	}
}

// Failure builds an error result. Code sets are empty, never partial.
func Failure(stage, kind, message, detail string) ProcessingResult {
	r := Success(CodeSet{})
	r.Status = StatusError
	r.Stage = stage
	r.Kind = kind
	r.Message = message
	r.Detail = detail
	return r
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilCodes(s []Code) []Code {
	if s == nil {
		return []Code{}
	}
	return s
}

func nonNilProcedures(s []ProcedureCode) []ProcedureCode {
	if s == nil {
		return []ProcedureCode{}
	}
	return s
}
