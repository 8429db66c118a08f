// Package sanctuary parses essence, room and modulation fragments and
// composes model prompts from them.
package sanctuary

import (
	"regexp"
	"strings"

	"conductor/internal/domain"
)

// Fragment grammar:
//
//	# Title                     optional, first level-one heading
//	**Key:** value              header fields, before the first section
//	## Section Name             section start
//	free text | - bullet | key: value
//
// Blank lines are dropped. Everything before the first "##" that is not a
// title or header field is ignored.

var (
	headerFieldRe = regexp.MustCompile(`^\*\*([^*:]+):\*\*\s*(.*)$`)
	bulletRe      = regexp.MustCompile(`^[-*]\s+(.+)$`)
	boldKeyRe     = regexp.MustCompile(`^\*\*([^*:]+):\*\*\s*(.+)$`)
)

type field struct {
	key   string
	value string
}

type section struct {
	name  string
	lines []string
}

type document struct {
	title    string
	header   []field
	sections []section
}

func scan(text string) document {
	var doc document
	var current *section

	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.TrimRight(raw, " \t")
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "## "):
			doc.sections = append(doc.sections, section{name: strings.TrimSpace(trimmed[3:])})
			current = &doc.sections[len(doc.sections)-1]
		case trimmed == "":
		case current != nil:
			current.lines = append(current.lines, line)
		case strings.HasPrefix(trimmed, "# ") && doc.title == "":
			doc.title = strings.TrimSpace(trimmed[2:])
		default:
			if m := headerFieldRe.FindStringSubmatch(trimmed); m != nil {
				doc.header = append(doc.header, field{key: strings.TrimSpace(m[1]), value: strings.TrimSpace(m[2])})
			}
		}
	}
	return doc
}

func (d document) headerValue(key string) (string, bool) {
	for _, f := range d.header {
		if strings.EqualFold(f.key, key) {
			return f.value, true
		}
	}
	return "", false
}

// section returns the first section with the given name, compared case-insensitively.
func (d document) section(name string) section {
	for _, s := range d.sections {
		if strings.EqualFold(s.name, name) {
			return s
		}
	}
	return section{name: name}
}

func (s section) text() string {
	parts := make([]string, len(s.lines))
	for i, l := range s.lines {
		parts[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// bullets parses "-" or "*" items. Non-bullet lines continue the previous
// item; a "**Key:** value" item renders as "Key: value".
func (s section) bullets() []string {
	items := []string{}
	var current []string
	flush := func() {
		if len(current) > 0 {
			items = append(items, strings.Join(current, " "))
			current = nil
		}
	}

	for _, l := range s.lines {
		trimmed := strings.TrimSpace(l)
		if m := bulletRe.FindStringSubmatch(trimmed); m != nil && !strings.HasPrefix(trimmed, "**") {
			flush()
			item := strings.TrimSpace(m[1])
			if km := boldKeyRe.FindStringSubmatch(item); km != nil {
				item = strings.TrimSpace(km[1]) + ": " + strings.TrimSpace(km[2])
			}
			current = []string{item}
			continue
		}
		if len(current) > 0 {
			current = append(current, trimmed)
		}
	}
	flush()
	return items
}

// pairs parses "key: value" lines into an ordered map. Bullet and bold
// markers around keys are stripped. Lines without a colon are skipped.
func (s section) pairs() *domain.KV {
	kv := domain.NewKV()
	for _, l := range s.lines {
		key, value, ok := splitPair(l)
		if ok {
			kv.Set(key, value)
		}
	}
	return kv
}

func splitPair(line string) (key, value string, ok bool) {
	k, v, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(strings.Trim(strings.TrimSpace(k), "-* "))
	value = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(v), "* "))
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

// metadataKey turns "Voice Notes" into "voice_notes".
func metadataKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "_")
}
