package documents

import (
	"io"
	"time"

	"github.com/bryanwahyu/medcoder/internal/domain/coding"
)

// DocumentID tipe untuk MedicalDocument
type DocumentID string

// MedicalDocument is the persisted outcome of one successful upload.
type MedicalDocument struct {
	ID                DocumentID             `json:"id"`
	UserID            string                 `json:"user_id"`
	FileName          string                 `json:"file_name"`
	MediaType         string                 `json:"media_type"`
	PageCount         int                    `json:"page_count"`
	ICDParentCodes    []string               `json:"icd_parent_codes"`
	ICDSpecifiedCodes []coding.Code          `json:"icd_specified_codes"`
	CPTCodes          []coding.ProcedureCode `json:"cpt_codes"`
	Modifiers         []coding.Code          `json:"modifiers"`
	HCPCSCodes        []coding.Code          `json:"hcpcs_codes"`
	ArtifactURL       string                 `json:"artifact_url,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// ApplyCodes copies a code set onto the document.
func (d *MedicalDocument) ApplyCodes(set coding.CodeSet) {
	d.ICDParentCodes = set.ParentCodes
	d.ICDSpecifiedCodes = set.SpecifiedCodes
	d.CPTCodes = set.ProcedureCodes.CPT
	d.Modifiers = set.ProcedureCodes.Modifiers
	d.HCPCSCodes = set.ProcedureCodes.HCPCS
}

// CodeUpdate is a partial update. Nil fields are left untouched.
type CodeUpdate struct {
	ICDParentCodes    *[]string               `json:"icd_parent_codes,omitempty"`
	ICDSpecifiedCodes *[]coding.Code          `json:"icd_specified_codes,omitempty"`
	CPTCodes          *[]coding.ProcedureCode `json:"cpt_codes,omitempty"`
	Modifiers         *[]coding.Code          `json:"modifiers,omitempty"`
	HCPCSCodes        *[]coding.Code          `json:"hcpcs_codes,omitempty"`
}

// Empty reports whether the update carries no field.
func (u CodeUpdate) Empty() bool {
	return u.ICDParentCodes == nil && u.ICDSpecifiedCodes == nil && u.CPTCodes == nil &&
		u.Modifiers == nil && u.HCPCSCodes == nil
}

// Apply writes the non-nil fields onto d.
func (u CodeUpdate) Apply(d *MedicalDocument) {
	if u.ICDParentCodes != nil {
		d.ICDParentCodes = *u.ICDParentCodes
	}
	if u.ICDSpecifiedCodes != nil {
		d.ICDSpecifiedCodes = *u.ICDSpecifiedCodes
	}
	if u.CPTCodes != nil {
		d.CPTCodes = *u.CPTCodes
	}
	if u.Modifiers != nil {
		d.Modifiers = *u.Modifiers
	}
	if u.HCPCSCodes != nil {
		d.HCPCSCodes = *u.HCPCSCodes
	}
}

// ProcessingFailure represents a persisted failed pipeline run
type ProcessingFailure struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	FileName    string    `json:"file_name"`
	Stage       string    `json:"stage"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	DetailsJSON string    `json:"details_json,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"created_at"`
}

// FileInfo is what inspection learns about an upload before processing.
type FileInfo struct {
	MediaType string `json:"media_type"`
	PageCount int    `json:"page_count"`
}

// UploadCommand carries one uploaded file for a user.
type UploadCommand struct {
	UserID   string
	FileName string
	Content  io.Reader
}
