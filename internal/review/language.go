package review

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultLanguage is assumed when a submission carries no language tag.
const DefaultLanguage = "javascript"

// detector holds the syntactic signatures of one supported language. A
// language counts as detected when at least two signatures match.
type detector struct {
	name       string
	signatures []*regexp.Regexp
}

// Detection is a best-effort UX guard, not a security boundary. The
// signatures below aim to catch obvious mismatches without ever blocking
// clearly-matching input.
var detectors = []detector{
	{
		name: "javascript",
		signatures: []*regexp.Regexp{
			regexp.MustCompile(`\bconst\s+\w+\s*=`),
			regexp.MustCompile(`\blet\s+\w+`),
			regexp.MustCompile(`\bvar\s+\w+\s*=`),
			regexp.MustCompile(`=>`),
			regexp.MustCompile(`\bfunction\s*\w*\s*\(`),
			regexp.MustCompile(`console\.(log|error|warn|info)`),
			regexp.MustCompile(`===|!==`),
		},
	},
	{
		name: "typescript",
		signatures: []*regexp.Regexp{
			regexp.MustCompile(`\binterface\s+\w+\s*\{`),
			regexp.MustCompile(`:\s*(string|number|boolean|void|any)\b`),
			regexp.MustCompile(`\btype\s+\w+\s*=`),
			regexp.MustCompile(`\bexport\s+(const|function|class|interface|type)\b`),
			regexp.MustCompile(`\benum\s+\w+\s*\{`),
		},
	},
	{
		name: "python",
		signatures: []*regexp.Regexp{
			regexp.MustCompile(`\bdef\s+\w+\s*\(`),
			regexp.MustCompile(`\bself\b`),
			regexp.MustCompile(`\belif\b`),
			regexp.MustCompile(`(?m)^\s*from\s+\w+(\.\w+)*\s+import\s`),
			regexp.MustCompile(`__init__|__name__`),
			regexp.MustCompile(`\bpass\b`),
			regexp.MustCompile(`\bprint\s*\(`),
		},
	},
	{
		name: "go",
		signatures: []*regexp.Regexp{
			regexp.MustCompile(`\bfunc\s+\w*\s*\(`),
			regexp.MustCompile(`(?m)^\s*package\s+\w+`),
			regexp.MustCompile(`:=`),
			regexp.MustCompile(`\bfmt\.\w+`),
			regexp.MustCompile(`\berr\s*!=\s*nil\b`),
			regexp.MustCompile(`\bgo\s+func\b`),
		},
	},
	{
		name: "rust",
		signatures: []*regexp.Regexp{
			regexp.MustCompile(`\bfn\s+\w+`),
			regexp.MustCompile(`\blet\s+mut\b`),
			regexp.MustCompile(`\bimpl\s+\w+`),
			regexp.MustCompile(`println!|panic!|vec!`),
			regexp.MustCompile(`\bmatch\s+\w+\s*\{`),
			regexp.MustCompile(`&str\b|&mut\b`),
		},
	},
	{
		name: "java",
		signatures: []*regexp.Regexp{
			regexp.MustCompile(`\bpublic\s+class\s+\w+`),
			regexp.MustCompile(`\bSystem\.out\.`),
			regexp.MustCompile(`\bvoid\s+main\s*\(`),
			regexp.MustCompile(`\bpublic\s+(static\s+)?\w+(<[\w, ]+>)?\s+\w+\s*\(`),
			regexp.MustCompile(`@Override\b`),
		},
	},
}

// Detect returns the languages whose signatures match the code at least
// twice, in a fixed order. Pure function of the code text.
func Detect(code string) []string {
	var detected []string
	for _, d := range detectors {
		matches := 0
		for _, sig := range d.signatures {
			if sig.MatchString(code) {
				matches++
				if matches >= 2 {
					detected = append(detected, d.name)
					break
				}
			}
		}
	}
	return detected
}

var controlKeywords = regexp.MustCompile(`\b(if|for|while|return|function|def|class|import|switch|match)\b`)

// LooksLikeCode reports whether the text has any bracket or keyword
// structure at all.
func LooksLikeCode(text string) bool {
	if strings.ContainsAny(text, "{}()[];=") {
		return true
	}
	return controlKeywords.MatchString(text)
}

// languageAliases maps common shorthands onto detector names.
var languageAliases = map[string]string{
	"js":     "javascript",
	"node":   "javascript",
	"ts":     "typescript",
	"py":     "python",
	"golang": "go",
}

func normalizeLanguage(lang string) string {
	l := strings.ToLower(strings.TrimSpace(lang))
	if canonical, ok := languageAliases[l]; ok {
		return canonical
	}
	return l
}

// ValidationError rejects a submission before any model call is made.
type ValidationError struct {
	Message    string
	Detected   []string
	Suggestion string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidateLanguage checks the claimed language against syntactic signals.
// It returns a note to prepend to the eventual result when detection is
// inconclusive, or a *ValidationError when the submission should be
// rejected outright:
//
//   - nothing detected and the text has no code structure: reject
//   - nothing detected but the text is code-like: proceed with a note
//   - claimed language among the detected: proceed
//   - exactly one language detected and it isn't the claimed one: reject
//     with a suggestion
//   - several languages detected, none the claimed one: proceed with a note
//     (ambiguous detection is not confident enough to block)
func ValidateLanguage(code, claimed string) (string, error) {
	detected := Detect(code)
	claimedNorm := normalizeLanguage(claimed)

	if len(detected) == 0 {
		if !LooksLikeCode(code) && len(code) > 10 {
			return "", &ValidationError{
				Message: "this doesn't look like code; please submit a source snippet",
			}
		}
		return fmt.Sprintf("Note: the language of this snippet could not be confidently identified; reviewing as %s.\n\n", claimed), nil
	}

	for _, lang := range detected {
		if lang == claimedNorm {
			return "", nil
		}
	}

	if len(detected) == 1 {
		return "", &ValidationError{
			Message:    fmt.Sprintf("the submitted code looks like %s, not %s", detected[0], claimed),
			Detected:   detected,
			Suggestion: detected[0],
		}
	}

	return fmt.Sprintf("Note: the snippet resembles %s rather than the claimed %s; reviewing as submitted.\n\n",
		strings.Join(detected, " or "), claimed), nil
}
