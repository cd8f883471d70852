package prompt

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/medcoder/internal/domain/coding"
)

// Coding returns the three stage instructions, with Stage A limited to chapters.
func Coding(chapters []string) coding.Instructions {
	if len(chapters) == 0 {
		chapters = coding.DefaultChapters
	}
	return coding.Instructions{
		ParentCodes:    parentCodes(chapters),
		SpecifiedCodes: specifiedCodes,
		ProcedureCodes: procedureCodes,
	}
}

func parentCodes(chapters []string) string {
	return fmt.Sprintf(`You are a certified medical coder reading psychiatric and behavioral health notes.
List every parent-level ICD-10 category that the note supports for psychiatric, behavioral or neurocognitive conditions.
Only use categories from chapters %s (mental, behavioral, neurodevelopmental, sleep, cognitive or psychosomatic conditions).
Leave out physical or otherwise non-psychiatric diagnoses.
Return category codes only, never subcodes (F32, not F32.1).
Answer with a single bracketed list such as ["F32", "G47"] and nothing else: no prose, no explanation.`,
		strings.Join(chapters, ", "))
}

const specifiedCodes = `You are a medical coding assistant for ICD-10 classification.
Read the Patient Report and choose the fully specified ICD-10 codes it supports. Every code you choose must belong to one of the categories in the Provided Code List.
Rules:
- Only pick codes the report explicitly supports.
- Leave out anything unsupported or unrelated.
- If nothing applies, or the Provided Code List is empty, answer {"icd10_codes": []}.
Answer with JSON only, in exactly this shape:
{"icd10_codes": [{"code": "", "description": ""}]}`

const procedureCodes = `You are an expert medical coder for Psychiatry and Behavioral Health encounters.
Read the clinical documentation and return the CPT codes, their modifiers and any HCPCS codes the encounter supports.
Stay within psychiatry services: diagnostic evaluations, individual, family and group psychotherapy, medication management, psychoanalysis, interactive complexity, crisis services, collaborative care and behavioral health integration, telehealth and prolonged services.
CPT selection:
- Identify the primary service and the documented face-to-face time; psychotherapy and diagnostic codes are time based.
- When E/M and psychotherapy happen in the same encounter, code the E/M level from medical decision making or time, add the psychotherapy add-on by duration, and put modifier 25 on the E/M code.
- Medication management without psychotherapy is coded with the E/M code alone.
- Code crisis intervention, collaborative care and other procedures only when documented.
Modifiers:
- 25 for a significant, separately identifiable E/M service on the same day as psychotherapy.
- 95 only for synchronous audio and video telehealth.
- Other modifiers only when the documentation supports them.
HCPCS selection:
- Prolonged services beyond the base CPT time.
- Brief communication-based or remote evaluation services.
- Psychiatric collaborative care management and behavioral health integration.
Answer with JSON only, in exactly this shape; use empty strings when a CPT code has no modifier:
{"cpt_codes": [{"code": "", "description": "", "modifier": "", "description_modifier": ""}], "hcpcs_codes": [{"code": "", "description": ""}]}`

// UserMessage builds the user turn around the document text and, when present,
// the candidate code list.
func UserMessage(req coding.GenerateRequest) string {
	var b strings.Builder
	b.WriteString("Patient Report:\n")
	b.WriteString(req.Text)
	if req.Candidates != nil {
		b.WriteString("\n\nProvided Code List:\n[")
		b.WriteString(strings.Join(req.Candidates, ", "))
		b.WriteString("]")
	}
	return b.String()
}
