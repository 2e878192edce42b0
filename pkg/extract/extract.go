// Package extract isolates an executable snippet from raw model-generated text.
// Extraction never fails outright: when no fence or code-shaped content is
// found, the original text is returned and the caller decides what to do.
package extract

import (
	"regexp"
	"strings"
)

// Extractor pulls code out of model output. LangTags lists the fence language
// tags treated as explicitly targeting the scripting language.
type Extractor struct {
	LangTags []string
}

// New creates an extractor for the given fence language tags. Generated
// scripts are Starlark, but models routinely tag fences as python since the
// syntax is a Python subset, so both tags are accepted by default.
func New(tags ...string) *Extractor {
	if len(tags) == 0 {
		tags = []string{"starlark", "python"}
	}
	return &Extractor{LangTags: tags}
}

var (
	// Matches the first line of a code-shaped snippet: imports, definitions,
	// control flow, or a comment marker.
	codeLineRe = regexp.MustCompile(`^\s*(load\(|import\s|from\s|def\s|class\s|for\s|while\s|if\s|#)`)
	// A bare assignment also counts as code-shaped.
	assignRe = regexp.MustCompile(`^[^=]*[^=!<>]=[^=]`)
)

// Extract applies, in strict order, the first matching rule:
//  1. a fenced block tagged for the target language
//  2. the first generic fenced block (tolerating a missing closing fence)
//  3. the whole text, if its first non-empty line looks like code
//  4. the original text unchanged
func (e *Extractor) Extract(text string) string {
	for _, tag := range e.LangTags {
		if code, ok := fencedBlock(text, tag); ok {
			return strings.TrimSpace(code)
		}
	}

	if code, ok := fencedBlock(text, ""); ok {
		return strings.TrimSpace(code)
	}

	if looksLikeCode(text) {
		return strings.TrimSpace(text)
	}

	return text
}

// fencedBlock returns the interior of the first fence opened with the given
// tag (empty tag matches any opening fence). A missing closing fence is not
// an error: everything from the fence to the end of text is returned.
func fencedBlock(text, tag string) (string, bool) {
	marker := "```" + tag
	idx := indexFence(text, marker, tag == "")
	if idx < 0 {
		return "", false
	}

	rest := text[idx+len(marker):]
	// Skip the remainder of the opening fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		return "", false
	}

	if end := strings.Index(rest, "```"); end >= 0 {
		return rest[:end], true
	}
	return rest, true
}

// indexFence finds the offset of a fence opener. For a tagged fence the tag
// must be followed by a line break or whitespace so that "python" does not
// match "python3"; a generic fence matches any "```".
func indexFence(text, marker string, generic bool) int {
	if generic {
		return strings.Index(text, "```")
	}
	lower := strings.ToLower(text)
	marker = strings.ToLower(marker)
	from := 0
	for {
		idx := strings.Index(lower[from:], marker)
		if idx < 0 {
			return -1
		}
		idx += from
		after := idx + len(marker)
		if after >= len(text) || text[after] == '\n' || text[after] == '\r' || text[after] == ' ' {
			return idx
		}
		from = after
	}
}

// looksLikeCode reports whether the first non-empty line matches code-like
// indicators: import/definition/loop keywords, a comment marker, or an
// assignment.
func looksLikeCode(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		return codeLineRe.MatchString(trimmed) || assignRe.MatchString(trimmed)
	}
	return false
}
