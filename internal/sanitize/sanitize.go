// Package sanitize scrubs free-form user text before it is embedded in a
// prompt for a third-party language model. It filters known prompt-injection
// signatures, flags sensitive data categories, enforces a length ceiling and
// optionally escapes markup. Every input, including the empty string,
// produces a well-formed result; nothing here returns an error.
package sanitize

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"
)

// Category classifies a sanitization warning.
type Category string

const (
	CategorySensitiveData    Category = "sensitive_data"
	CategoryInjectionAttempt Category = "injection_attempt"
	CategoryLengthExceeded   Category = "length_exceeded"
)

// Severity grades a warning.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Warning describes one finding produced by the pipeline.
type Warning struct {
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`
}

// Options controls the pipeline. The zero value is not useful; start from
// DefaultOptions.
type Options struct {
	MaxLength          int
	AllowMarkup        bool
	CheckSensitiveData bool
	EscapeMarkup       bool
}

// DefaultOptions returns the policy used for model-bound task text.
func DefaultOptions() Options {
	return Options{
		MaxLength:          10000,
		AllowMarkup:        false,
		CheckSensitiveData: true,
		EscapeMarkup:       true,
	}
}

// Result is the immutable outcome of a Sanitize call.
type Result struct {
	Sanitized string    `json:"sanitized"`
	Modified  bool      `json:"modified"`
	Warnings  []Warning `json:"warnings"`
	Blocked   []string  `json:"blocked_patterns"`
}

// placeholder replaces every matched injection signature in the output text.
const placeholder = "[filtered]"

// Known prompt-manipulation signatures. Compiled once; the catalogue is never
// mutated at runtime, which keeps the package trivially safe for concurrent
// use.
var injectionPatterns = []*regexp.Regexp{
	// Instruction-override phrasing.
	regexp.MustCompile(`(?i)(ignore|disregard|forget|skip|bypass|override)\s+(all\s+)?(previous|above|prior|earlier|preceding|system)\s+(instructions?|rules?|context|prompts?|directives?|messages?)`),
	regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(the\s+)?above`),
	regexp.MustCompile(`(?i)(new|updated|real)\s+instructions?\s*:`),
	regexp.MustCompile(`(?i)override\s+(the\s+)?system\s+(prompt|directive|message)`),

	// Role-switch markers: literal role labels and delimiter tokens.
	regexp.MustCompile(`(?i)\b(system|assistant|user|human|ai)\s*:`),
	regexp.MustCompile(`(?i)</?\|?(system|user|assistant|im_start|im_end)\|?>`),
	regexp.MustCompile(`(?i)\[/?(system|inst|instructions?|context)\]`),

	// Jailbreak phrasing.
	regexp.MustCompile(`(?i)\b(jailbreak|developer\s+mode|do\s+anything\s+now|dan\s+mode)\b`),
	regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+(are|'re))`),
	regexp.MustCompile(`(?i)you\s+are\s+(now|no\s+longer)\s`),

	// Executable and markup injection fragments.
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script\s*>`),
	regexp.MustCompile(`(?i)<script[^>]*/?>`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\son[a-z]+\s*=\s*["']?[^"'>\s]+`),
	regexp.MustCompile(`<[^>]+>`),
}

type sensitivePattern struct {
	label string
	re    *regexp.Regexp

	// redactValue masks everything after the label separator instead of
	// masking digits in place.
	redactValue bool
}

// Sensitive-data shapes. Detection is non-destructive; masking is a separate
// opt-in operation.
var sensitivePatterns = []sensitivePattern{
	{label: "national id number", re: regexp.MustCompile(`\b\d{3}[- ]\d{2}[- ]\d{4}\b`)},
	{label: "payment card number", re: regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{2,4}\b`)},
	{label: "account number", re: regexp.MustCompile(`(?i)\baccount\s*(number|no\.?|#)?\s*[:#]\s*\d{5,}`)},
	{label: "policy number", re: regexp.MustCompile(`(?i)\bpolicy\s*(number|no\.?|#)?\s*[:#]\s*[a-z0-9-]{5,}`)},
	{label: "credential pair", re: regexp.MustCompile(`(?i)\b(password|passwd|pwd|passcode|secret|api[_ -]?key|access[_ -]?key|auth[_ -]?token)\s*[:=]\s*\S+`), redactValue: true},
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Sanitize runs the full pipeline in its fixed order: length ceiling,
// injection filtering, sensitive-data detection, markup escaping, whitespace
// normalization.
func Sanitize(input string, opts Options) Result {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultOptions().MaxLength
	}

	res := Result{}
	working := input

	// 1. Length ceiling.
	if runes := []rune(working); len(runes) > opts.MaxLength {
		working = string(runes[:opts.MaxLength])
		res.Warnings = append(res.Warnings, Warning{
			Category: CategoryLengthExceeded,
			Severity: SeverityLow,
			Detail:   fmt.Sprintf("input truncated to %d characters", opts.MaxLength),
		})
	}

	// 2. Injection signature filtering.
	for _, re := range injectionPatterns {
		matches := re.FindAllString(working, -1)
		if len(matches) == 0 {
			continue
		}
		for _, m := range matches {
			res.Blocked = append(res.Blocked, m)
			res.Warnings = append(res.Warnings, Warning{
				Category: CategoryInjectionAttempt,
				Severity: SeverityHigh,
				Detail:   "prompt manipulation pattern removed",
			})
		}
		working = re.ReplaceAllString(working, placeholder)
	}

	// 3. Sensitive-data detection. Flags only; the text is left in place.
	if opts.CheckSensitiveData {
		for _, p := range sensitivePatterns {
			if p.re.MatchString(working) {
				res.Warnings = append(res.Warnings, Warning{
					Category: CategorySensitiveData,
					Severity: SeverityHigh,
					Detail:   p.label + " detected",
				})
			}
		}
	}

	// 4. Markup escaping. Entities are normalized first so escaping an
	// already-escaped string is a no-op.
	if opts.EscapeMarkup && !opts.AllowMarkup {
		working = html.EscapeString(html.UnescapeString(working))
	}

	// 5. Whitespace normalization.
	working = strings.TrimSpace(collapseWhitespace(working))

	// Placeholder substitution and entity escaping can grow the text; the
	// ceiling applies to the output, not just the input.
	if runes := []rune(working); len(runes) > opts.MaxLength {
		working = string(runes[:opts.MaxLength])
	}

	res.Sanitized = working
	res.Modified = working != input
	return res
}

// IsInputSafe reports whether none of the injection signatures match. It is a
// read-only pre-flight gate and performs no mutation.
func IsInputSafe(input string) bool {
	for _, re := range injectionPatterns {
		if re.MatchString(input) {
			return false
		}
	}
	return true
}

// MaskSensitiveData replaces detected sensitive values with fixed-width
// masks, preserving only separators. Intended for safe logging, not for the
// prompt itself.
func MaskSensitiveData(input string) string {
	out := input
	for _, p := range sensitivePatterns {
		if p.redactValue {
			// Keep the label, lose the value.
			out = p.re.ReplaceAllStringFunc(out, func(m string) string {
				if i := strings.IndexAny(m, ":="); i >= 0 {
					return m[:i+1] + " [redacted]"
				}
				return "[redacted]"
			})
			continue
		}
		out = p.re.ReplaceAllStringFunc(out, maskDigits)
	}
	return out
}

// WrapResult frames already-sanitized text in the delimited block without
// running the pipeline again. Callers that sanitized with their own Options
// use this to keep the wrapped form consistent with the result.
func WrapResult(sanitized, label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "user_input"
	}
	return fmt.Sprintf("[%s]\n%s\n[/%s]", label, sanitized, label)
}

// WrapForModel sanitizes input with default options and wraps the result in
// a delimited block so a downstream model can tell user content apart from
// instructions.
func WrapForModel(input, label string) string {
	res := Sanitize(input, DefaultOptions())
	return WrapResult(res.Sanitized, label)
}

func maskDigits(m string) string {
	var b strings.Builder
	b.Grow(len(m))
	for _, r := range m {
		if unicode.IsDigit(r) {
			b.WriteRune('*')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func collapseWhitespace(s string) string {
	return whitespaceRun.ReplaceAllString(s, " ")
}
