package constraint

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"conductor/internal/infra/logger"
)

// Rule transforms content. It must be deterministic, and applying it to its
// own output must return that output unchanged.
type Rule func(content string) string

// Rewrite softens one directive phrase. Matching is case-insensitive on word
// boundaries; a capitalised match yields a capitalised replacement.
type Rewrite struct {
	From string
	To   string
}

// DefaultRewrites are the directive rewrites behind basic_safety.
var DefaultRewrites = []Rewrite{
	{From: "you must", To: "it could be helpful to"},
	{From: "you should", To: "you might consider"},
	{From: "you need to", To: "one option is to"},
	{From: "you have to", To: "you may want to"},
}

type compiledRewrite struct {
	re *regexp.Regexp
	to string
}

func compileRewrites(rewrites []Rewrite) []compiledRewrite {
	out := make([]compiledRewrite, 0, len(rewrites))
	for _, rw := range rewrites {
		words := strings.Fields(rw.From)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		pattern := `(?i)\b` + strings.Join(words, `\s+`) + `\b`
		out = append(out, compiledRewrite{re: regexp.MustCompile(pattern), to: rw.To})
	}
	return out
}

// maxRewritePasses bounds the fixpoint loop in softenDirectives. Each pass
// rewrites every non-overlapping match, so only chains that keep forming new
// matches across replacement boundaries need more than a few passes.
const maxRewritePasses = 256

// softenDirectives builds the basic_safety rule. Rewrites run until nothing
// changes so that matches formed across a replacement boundary are caught too.
func softenDirectives(rewrites []Rewrite, log *slog.Logger) Rule {
	compiled := compileRewrites(rewrites)
	log = logger.OrDiscard(log)
	return func(content string) string {
		return settle(content, compiled, maxRewritePasses, log)
	}
}

// settle applies compiled until the text stops changing. Text that has not
// settled within limit passes is returned unchanged, which keeps the rule
// idempotent.
func settle(content string, compiled []compiledRewrite, limit int, log *slog.Logger) string {
	current := content
	for pass := 0; pass < limit; pass++ {
		next := current
		for _, rw := range compiled {
			to := rw.to
			next = rw.re.ReplaceAllStringFunc(next, func(match string) string {
				return matchCase(match, to)
			})
		}
		if next == current {
			return current
		}
		current = next
	}
	log.Warn("directive rewrites did not settle, content left unchanged",
		"constraint", "basic_safety", "passes", limit, "content_chars", len(content))
	return content
}

// matchCase capitalises replacement when match starts with an upper-case letter.
func matchCase(match, replacement string) string {
	first, _ := utf8.DecodeRuneInString(match)
	if replacement == "" || !unicode.IsUpper(first) {
		return replacement
	}
	r, size := utf8.DecodeRuneInString(replacement)
	return string(unicode.ToUpper(r)) + replacement[size:]
}

// Redaction markers. None of them can be matched by the patterns they replace.
const (
	markerSecret = "[REDACTED SECRET]"
	markerEmail  = "[REDACTED EMAIL]"
	markerPhone  = "[REDACTED PHONE]"
	markerSSN    = "[REDACTED SSN]"
)

type redaction struct {
	re   *regexp.Regexp
	repl string // regexp.Expand template
}

func redactAll(redactions []redaction) Rule {
	return func(content string) string {
		for _, r := range redactions {
			content = r.re.ReplaceAllString(content, r.repl)
		}
		return content
	}
}

var secretRedactions = []redaction{
	{regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`), markerSecret},
	{regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{16,}`), markerSecret},
	{regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`), markerSecret},
	{regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{30,}\b`), markerSecret},
	{regexp.MustCompile(`(?i)\b(bearer\s+)[A-Za-z0-9\-._~+/]{16,}=*`), "${1}" + markerSecret},
	{regexp.MustCompile(`(?i)\b(api[_-]?key|secret|password|passwd|token)(\s*[:=]\s*["']?)([^\s"'\[]{8,})`), "${1}${2}" + markerSecret},
}

// SSNs run before phone numbers so a 3-2-4 group is never half-matched as a phone.
var personalDataRedactions = []redaction{
	{regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), markerEmail},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), markerSSN},
	{regexp.MustCompile(`(?:\+\d{1,3}[\s.\-]?)?(?:\(\d{3}\)|\b\d{3})[\s.\-]?\d{3}[\s.\-]\d{4}\b`), markerPhone},
}

// CodeSafetyNote is appended once to content carrying destructive commands.
const CodeSafetyNote = "[Caution: this response contains commands that can cause irreversible damage. Review them carefully before running.]"

var dangerousCommands = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+(?:-[a-zA-Z]+\s+)+(?:/|~|\*|\$HOME)(?:\s|$)`),
	regexp.MustCompile(`\b(?:curl|wget)\b[^|\n]*\|\s*(?:sudo\s+)?(?:ba|z|k)?sh\b`),
	regexp.MustCompile(`\bchmod\s+(?:-R\s+)?0?777\b`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`),
	regexp.MustCompile(`\bmkfs(?:\.\w+)?\s+/dev/`),
	regexp.MustCompile(`\bdd\s+[^\n]*\bof=/dev/(?:sd|hd|nvme|disk)`),
}

func flagDangerousCode(content string) string {
	if strings.Contains(content, CodeSafetyNote) {
		return content
	}
	for _, re := range dangerousCommands {
		if re.MatchString(content) {
			return content + "\n\n" + CodeSafetyNote
		}
	}
	return content
}
