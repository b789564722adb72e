// Package deid masks obvious identifiers in free text. It is a light
// regex heuristic, not a de-identification guarantee.
package deid

import "regexp"

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Rules run in order; later rules see earlier replacements.
var rules = []rule{
	{regexp.MustCompile(`\b\d{2,4}[-/]\d{1,2}[-/]\d{1,2}\b`), "[DATE]"},
	{regexp.MustCompile(`\b\d{10,15}\b`), "[ID]"},
	{regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`), "[PHONE]"},
	{regexp.MustCompile(`\b[\w.-]+@[\w.-]+\.\w+\b`), "[EMAIL]"},
}

// Redact replaces dates, long numeric identifiers, phone numbers and
// e-mail addresses with placeholders.
func Redact(text string) string {
	for _, r := range rules {
		text = r.pattern.ReplaceAllString(text, r.replacement)
	}
	return text
}
