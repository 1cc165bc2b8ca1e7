package catalog

import (
	"regexp"
	"strings"
)

// Models routinely decorate catalog names with sourcing and potency
// qualifiers ("Ashwagandha Extract 5%", "Phosphatidylcholine 40% (soy)").
// Normalization strips those decorations deterministically and maps the
// remainder onto a canonical name, or reports the input as unresolved. It never
// guesses: there is no fuzzy matching, so ambiguity is surfaced, not hidden.
var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	parentheticRe = regexp.MustCompile(`\([^)]*\)`)
	ratioRe       = regexp.MustCompile(`\b\d+\s*:\s*\d+\b`)
	potencyPERe   = regexp.MustCompile(`(?i)\bPE\s+[\d/.]+%(\s+[A-Za-z]+)?`)
	percentRe     = regexp.MustCompile(`\b[\d/.]+%`)
	qualifierRe   = regexp.MustCompile(`(?i)\b(extract|root|powder|standardized)\b`)
)

// Normalize maps an arbitrary ingredient string to its canonical catalog name.
// The boolean is false when no cleaning step resolves the input; the string is
// then the cleaned-but-unmatched form, kept for diagnostics.
func (c *Catalog) Normalize(raw string) (string, bool) {
	cleaned := collapse(raw)

	cleaned = parentheticRe.ReplaceAllString(cleaned, " ")
	cleaned = ratioRe.ReplaceAllString(cleaned, " ")
	cleaned = potencyPERe.ReplaceAllString(cleaned, " ")
	cleaned = percentRe.ReplaceAllString(cleaned, " ")
	cleaned = qualifierRe.ReplaceAllString(cleaned, " ")
	cleaned = collapse(cleaned)

	if canonical, ok := c.aliases[strings.ToLower(cleaned)]; ok {
		return canonical, true
	}
	if e, ok := c.byName[strings.ToLower(cleaned)]; ok {
		return e.Name, true
	}
	return cleaned, false
}

// IsValid reports whether the input resolves to a catalog entry.
func (c *Catalog) IsValid(name string) bool {
	_, ok := c.Normalize(name)
	return ok
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
