package coding

import (
	"errors"
	"regexp"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	domain "github.com/bryanwahyu/medcoder/internal/domain/coding"
)

var (
	errNoList        = errors.New("no bracketed code list in output")
	parentCodeFormat = regexp.MustCompile(`^[A-Z]\d{2}$`)
)

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // drop the language tag line
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// ParseCodeList reads the first bracketed list out of raw. It accepts JSON
// arrays, Python-style lists with single quotes and bare [F32, G47] lists.
// Entries are trimmed, unquoted and upper-cased; nothing is validated here.
func ParseCodeList(raw string) ([]string, error) {
	s := stripFences(raw)
	start := strings.IndexByte(s, '[')
	if start < 0 {
		return nil, errNoList
	}
	end := strings.IndexByte(s[start:], ']')
	if end < 0 {
		return nil, errNoList
	}
	inner := s[start+1 : start+end]

	out := []string{}
	for _, part := range strings.Split(inner, ",") {
		p := strings.Trim(strings.TrimSpace(part), `"'`+"`")
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// filterParents keeps well-formed category codes from the allowed chapters,
// first occurrence wins. Everything else comes back in dropped.
func filterParents(codes []string, chapters []string) (kept, dropped []string) {
	allowed := make(map[byte]bool, len(chapters))
	for _, c := range chapters {
		c = strings.ToUpper(strings.TrimSpace(c))
		if len(c) == 1 {
			allowed[c[0]] = true
		}
	}
	seen := map[string]bool{}
	kept = []string{}
	for _, c := range codes {
		if !parentCodeFormat.MatchString(c) || !allowed[c[0]] {
			dropped = append(dropped, c)
			continue
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		kept = append(kept, c)
	}
	return kept, dropped
}

// category is the three-character ICD-10 category, so F32.9 and F329 both
// fall under F32.
func category(code string) string {
	if i := strings.IndexByte(code, '.'); i >= 0 && i < 3 {
		return code[:i]
	}
	if len(code) >= 3 {
		return code[:3]
	}
	return code
}

// filterSpecified keeps codes whose category is among parents, deduplicated.
func filterSpecified(codes []domain.Code, parents []string) (kept []domain.Code, dropped []string) {
	pool := make(map[string]bool, len(parents))
	for _, p := range parents {
		pool[p] = true
	}
	seen := map[string]bool{}
	kept = []domain.Code{}
	for _, c := range codes {
		c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
		c.Description = strings.TrimSpace(c.Description)
		if c.Code == "" || !pool[category(c.Code)] {
			dropped = append(dropped, c.Code)
			continue
		}
		if seen[c.Code] {
			continue
		}
		seen[c.Code] = true
		kept = append(kept, c)
	}
	return kept, dropped
}

// flattenModifiers lists every CPT modifier as its own code. A "25, 95" entry
// yields two modifiers sharing the description.
func flattenModifiers(cpt []domain.ProcedureCode) []domain.Code {
	out := []domain.Code{}
	for _, c := range cpt {
		for _, m := range strings.Split(c.Modifier, ",") {
			if m = strings.TrimSpace(m); m != "" {
				out = append(out, domain.Code{Code: m, Description: strings.TrimSpace(c.DescriptionModifier)})
			}
		}
	}
	return out
}

type specifiedResponse struct {
	ICD10Codes []domain.Code `json:"icd10_codes"`
}

type procedureResponse struct {
	CPTCodes   []domain.ProcedureCode `json:"cpt_codes"`
	HCPCSCodes []domain.Code          `json:"hcpcs_codes"`
}

// decodeStrict validates raw against schema before unmarshaling it into v.
func decodeStrict(schema jsonschema.Definition, raw string, v any) error {
	return schema.Unmarshal(stripFences(raw), v)
}
