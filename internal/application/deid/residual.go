package deid

import (
	"regexp"
	"sort"

	domain "github.com/bryanwahyu/medcoder/internal/domain/deid"
)

// identifier detectors run over text that already went through redaction
var residualDetectors = []struct {
	label string
	re    *regexp.Regexp
}{
	{"EMAIL", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"TELEPHONENUM", regexp.MustCompile(`\b(?:\+?1[-.]?)?\(?[0-9]{3}\)?[-.][0-9]{3}[-.][0-9]{4}\b`)},
	{"SOCIALNUM", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"DATEOFBIRTH", regexp.MustCompile(`\b(?:0?[1-9]|1[0-2])[-/](?:0?[1-9]|[12][0-9]|3[01])[-/](?:19|20)\d{2}\b`)},
	{"CREDITCARDNUMBER", regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)},
	{"MRN", regexp.MustCompile(`(?i)\bMRN[\s#:]*[A-Z0-9]{5,}\b`)},
}

// ScanResidual counts identifier-looking matches per label, sorted by label.
// It only reports; the text is never changed.
func ScanResidual(text string) []domain.ResidualFinding {
	var out []domain.ResidualFinding
	for _, d := range residualDetectors {
		if n := len(d.re.FindAllStringIndex(text, -1)); n > 0 {
			out = append(out, domain.ResidualFinding{Label: d.label, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}
