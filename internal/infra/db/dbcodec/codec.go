// Package dbcodec holds the column encoding shared by the SQL repositories.
package dbcodec

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/bryanwahyu/medcoder/internal/domain/coding"
	"github.com/bryanwahyu/medcoder/internal/domain/documents"
)

// Columns are the JSON-encoded code sets of a MedicalDocument.
type Columns struct {
	Parents   string
	Specified string
	CPT       string
	Modifiers string
	HCPCS     string
}

// Encode marshals the code sets of d. Nil sets are stored as [].
func Encode(d *documents.MedicalDocument) (Columns, error) {
	var c Columns
	var err error
	if c.Parents, err = marshal(nonNil(d.ICDParentCodes)); err != nil {
		return c, err
	}
	if c.Specified, err = marshal(nonNil(d.ICDSpecifiedCodes)); err != nil {
		return c, err
	}
	if c.CPT, err = marshal(nonNil(d.CPTCodes)); err != nil {
		return c, err
	}
	if c.Modifiers, err = marshal(nonNil(d.Modifiers)); err != nil {
		return c, err
	}
	if c.HCPCS, err = marshal(nonNil(d.HCPCSCodes)); err != nil {
		return c, err
	}
	return c, nil
}

// Decode fills the code sets of d.
func (c Columns) Decode(d *documents.MedicalDocument) error {
	d.ICDParentCodes = []string{}
	d.ICDSpecifiedCodes = []coding.Code{}
	d.CPTCodes = []coding.ProcedureCode{}
	d.Modifiers = []coding.Code{}
	d.HCPCSCodes = []coding.Code{}
	for _, f := range []struct {
		name string
		raw  string
		dst  any
	}{
		{"icd_parent_codes", c.Parents, &d.ICDParentCodes},
		{"icd_specified_codes", c.Specified, &d.ICDSpecifiedCodes},
		{"cpt_codes", c.CPT, &d.CPTCodes},
		{"modifiers", c.Modifiers, &d.Modifiers},
		{"hcpcs_codes", c.HCPCS, &d.HCPCSCodes},
	} {
		if strings.TrimSpace(f.raw) == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return fmt.Errorf("decode %s: %w", f.name, err)
		}
	}
	return nil
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// DetailsJSON makes sure details can go into a JSON column.
func DetailsJSON(details string) string {
	if strings.TrimSpace(details) == "" {
		return "{}"
	}
	if !json.Valid([]byte(details)) {
		b, _ := json.Marshal(map[string]string{"raw": details})
		return string(b)
	}
	return details
}

// DashIfEmpty returns "-" when the input is empty/whitespace
func DashIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// TotalPages for a result of total rows.
func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(pageSize)))
}

// Offset normalizes page and pageSize and returns the row offset.
func Offset(page, pageSize int) (int, int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return page, pageSize, (page - 1) * pageSize
}
