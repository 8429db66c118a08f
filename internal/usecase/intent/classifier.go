// Package intent labels free-text messages with a message type and routing flags.
package intent

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"conductor/internal/domain"
)

// ContextTypeHint is the context key a caller can use to force the primary type.
const ContextTypeHint = "message_type"

const (
	defaultConfidence = 0.5
	confidenceStep    = 0.15
	maxConfidence     = 0.95
)

// scoringOrder decides ties: earlier types win.
var scoringOrder = []domain.MessageType{
	domain.MessageSecurity,
	domain.MessageAnalytical,
	domain.MessageReasoning,
	domain.MessageSystem,
	domain.MessageConversational,
}

// DefaultKeywords are the built-in keyword sets per message type.
var DefaultKeywords = map[domain.MessageType][]string{
	domain.MessageSecurity: {
		"security", "password", "credential", "credentials", "secret", "vulnerability",
		"exploit", "hack", "hacking", "malware", "encrypt", "encryption", "attack",
		"phishing", "breach", "firewall", "authentication", "permission", "permissions",
	},
	domain.MessageAnalytical: {
		"analyze", "analyse", "analysis", "compare", "comparison", "statistics", "data",
		"trend", "trends", "evaluate", "assess", "metrics", "research", "report", "summarize",
	},
	domain.MessageReasoning: {
		"why", "reason", "reasoning", "explain", "logic", "logical", "prove", "proof",
		"deduce", "infer", "puzzle", "think through", "step by step",
	},
	domain.MessageSystem: {
		"system", "status", "config", "configuration", "restart", "shutdown", "server",
		"deploy", "install", "cpu", "disk", "logs", "uptime",
	},
}

// DefaultCategories are the built-in category keyword sets.
var DefaultCategories = map[string][]string{
	"code": {
		"code", "function", "python", "golang", "javascript", "typescript", "script",
		"bash", "shell", "compile", "bug", "debug", "sql", "regex", "api",
	},
	"creative": {"story", "poem", "creative", "fiction", "novel", "song", "lyrics"},
	"math":     {"calculate", "equation", "integral", "derivative", "math", "probability"},
}

// DefaultPersonalData are phrases that mark a message as carrying personal data.
var DefaultPersonalData = []string{
	"my address", "home address", "phone number", "email address", "social security",
	"ssn", "date of birth", "passport", "credit card", "medical record", "bank account",
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`(?:\+\d{1,3}[\s.\-]?)?(?:\(\d{3}\)|\b\d{3})[\s.\-]?\d{3}[\s.\-]\d{4}\b`)
)

// Options extends the built-in keyword sets.
type Options struct {
	Keywords     map[domain.MessageType][]string
	Categories   map[string][]string
	PersonalData []string
}

type keywordSet struct {
	label    string
	patterns []*regexp.Regexp
}

// hits counts distinct keywords present in text.
func (k keywordSet) hits(text string) int {
	n := 0
	for _, re := range k.patterns {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}

// Classifier is a keyword classifier. It holds no mutable state after
// construction and is safe for concurrent use.
type Classifier struct {
	types        []keywordSet // scoringOrder
	categories   []keywordSet // sorted by label
	personalData keywordSet
}

// New builds a Classifier from the defaults plus opts.
func New(opts Options) *Classifier {
	c := &Classifier{}
	for _, mt := range scoringOrder {
		words := append(append([]string{}, DefaultKeywords[mt]...), opts.Keywords[mt]...)
		c.types = append(c.types, compileSet(string(mt), words))
	}

	cats := make(map[string][]string, len(DefaultCategories)+len(opts.Categories))
	for name, words := range DefaultCategories {
		cats[name] = append(cats[name], words...)
	}
	for name, words := range opts.Categories {
		cats[name] = append(cats[name], words...)
	}
	names := make([]string, 0, len(cats))
	for name := range cats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c.categories = append(c.categories, compileSet(name, cats[name]))
	}

	c.personalData = compileSet("personal_data", append(append([]string{}, DefaultPersonalData...), opts.PersonalData...))
	return c
}

// FromConfig converts string-keyed config maps. Unknown message types are skipped.
func FromConfig(keywords map[string][]string, categories map[string][]string, personal []string) *Classifier {
	typed := make(map[domain.MessageType][]string, len(keywords))
	for k, words := range keywords {
		if mt := domain.MessageType(k); mt.Valid() {
			typed[mt] = words
		}
	}
	return New(Options{Keywords: typed, Categories: categories, PersonalData: personal})
}

func compileSet(label string, words []string) keywordSet {
	set := keywordSet{label: label}
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		fields := strings.Fields(strings.ToLower(w))
		if len(fields) == 0 {
			continue
		}
		key := strings.Join(fields, " ")
		if seen[key] {
			continue
		}
		seen[key] = true
		for i, f := range fields {
			fields[i] = regexp.QuoteMeta(f)
		}
		set.patterns = append(set.patterns, regexp.MustCompile(`(?i)\b`+strings.Join(fields, `\s+`)+`\b`))
	}
	return set
}

// Classify labels message. It never fails; with no keyword hits the result is
// conversational at the default confidence.
func (c *Classifier) Classify(message string, msgCtx *domain.Context) domain.IntentResult {
	result := domain.IntentResult{
		PrimaryType: domain.MessageConversational,
		Confidence:  defaultConfidence,
	}

	scores := make(map[domain.MessageType]int, len(c.types))
	best, bestScore := domain.MessageConversational, 0
	for i, set := range c.types {
		n := set.hits(message)
		mt := scoringOrder[i]
		scores[mt] = n
		if n > bestScore {
			best, bestScore = mt, n
		}
	}

	if hint, ok := msgCtx.Get(ContextTypeHint); ok && domain.MessageType(hint).Valid() {
		result.PrimaryType = domain.MessageType(hint)
		result.Confidence = 1.0
	} else if bestScore > 0 {
		result.PrimaryType = best
		result.Confidence = math.Min(defaultConfidence+confidenceStep*float64(bestScore), maxConfidence)
	}

	for _, mt := range scoringOrder {
		if mt != result.PrimaryType && scores[mt] > 0 {
			result.SecondaryTypes = append(result.SecondaryTypes, mt)
		}
	}

	result.RequiresSecurityReview = scores[domain.MessageSecurity] > 0
	result.InvolvesPersonalData = c.personalData.hits(message) > 0 ||
		emailPattern.MatchString(message) || phonePattern.MatchString(message)

	for _, set := range c.categories {
		if set.hits(message) > 0 {
			result.Categories = append(result.Categories, set.label)
		}
	}
	return result
}
