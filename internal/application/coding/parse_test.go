package coding

import (
	"reflect"
	"testing"

	domain "github.com/bryanwahyu/medcoder/internal/domain/coding"
)

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"[\"F32\"]":                      `["F32"]`,
		"```\n[\"F32\"]\n```":            `["F32"]`,
		"```json\n{\"a\":1}\n```":        `{"a":1}`,
		"  \n```json\n{\"a\":1}```  \n": `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripFences(in); got != want {
			t.Errorf("stripFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseCodeListErrors(t *testing.T) {
	for _, raw := range []string{"", "F32", "[F32", "no codes here"} {
		if _, err := ParseCodeList(raw); err == nil {
			t.Errorf("ParseCodeList(%q) accepted", raw)
		}
	}
}

func TestFilterParentsReportsDropped(t *testing.T) {
	kept, dropped := filterParents([]string{"F32", "E11", "G4", "R45", "F32"}, []string{"f", " G ", "R"})
	if !reflect.DeepEqual(kept, []string{"F32", "R45"}) {
		t.Errorf("kept = %v", kept)
	}
	if !reflect.DeepEqual(dropped, []string{"E11", "G4"}) {
		t.Errorf("dropped = %v", dropped)
	}
}

func TestCategory(t *testing.T) {
	for code, want := range map[string]string{"F32.9": "F32", "G47.00": "G47", "R45": "R45", "F329": "F32", "G4700": "G47", "F3": "F3", "F.3": "F"} {
		if got := category(code); got != want {
			t.Errorf("category(%s) = %s", code, got)
		}
	}
}

func TestFilterSpecifiedMatchesDotlessCodes(t *testing.T) {
	kept, dropped := filterSpecified([]domain.Code{
		{Code: "F329", Description: "Major depressive disorder, unspecified"},
		{Code: "f32.9 ", Description: "Major depressive disorder, unspecified"},
		{Code: "F329", Description: "duplicate"},
		{Code: "F419", Description: "Anxiety disorder, unspecified"},
	}, []string{"F32"})
	want := []domain.Code{
		{Code: "F329", Description: "Major depressive disorder, unspecified"},
		{Code: "F32.9", Description: "Major depressive disorder, unspecified"},
	}
	if !reflect.DeepEqual(kept, want) {
		t.Errorf("kept = %v", kept)
	}
	if !reflect.DeepEqual(dropped, []string{"F419"}) {
		t.Errorf("dropped = %v", dropped)
	}
}

func TestFlattenModifiers(t *testing.T) {
	got := flattenModifiers([]domain.ProcedureCode{
		{Code: "90834", Modifier: "25", DescriptionModifier: " Significant E/M "},
		{Code: "90837"},
		{Code: "99214", Modifier: "GT,,95", DescriptionModifier: "Telehealth"},
	})
	want := []domain.Code{
		{Code: "25", Description: "Significant E/M"},
		{Code: "GT", Description: "Telehealth"},
		{Code: "95", Description: "Telehealth"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v", got)
	}
	if got := flattenModifiers(nil); got == nil || len(got) != 0 {
		t.Errorf("nil input gave %#v", got)
	}
}
