package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"conductor/internal/domain"
)

type role int

const (
	roleUser role = iota
	roleAgent
	roleSystem
	roleError
)

// entry is one line item of the conversation.
type entry struct {
	role     role
	agent    string // roleAgent only
	content  string
	decision *domain.RoutingDecision
	applied  []string
	rendered string // cached markdown output
}

// transcript holds the conversation and renders it for the viewport.
type transcript struct {
	entries  []entry
	max      int
	width    int
	markdown bool
	md       *glamour.TermRenderer
}

func newTranscript(max int, markdown bool) transcript {
	return transcript{max: max, markdown: markdown}
}

func (t *transcript) setWidth(w int) {
	if w == t.width {
		return
	}
	t.width = w
	t.md = nil
	for i := range t.entries {
		t.entries[i].rendered = ""
	}
}

func (t *transcript) add(e entry) {
	t.entries = append(t.entries, e)
	if t.max > 0 && len(t.entries) > t.max {
		t.entries = t.entries[len(t.entries)-t.max:]
	}
}

func (t *transcript) clear() { t.entries = nil }

// text returns the raw content of every entry, for search and tests.
func (t *transcript) text() string {
	var b strings.Builder
	for _, e := range t.entries {
		b.WriteString(e.content)
		b.WriteByte('\n')
	}
	return b.String()
}

func (t *transcript) render() string {
	parts := make([]string, 0, len(t.entries))
	for i := range t.entries {
		parts = append(parts, t.renderEntry(&t.entries[i]))
	}
	return strings.Join(parts, "\n\n")
}

func (t *transcript) renderEntry(e *entry) string {
	width := t.width
	if width < 20 {
		width = 20
	}
	wrap := lipgloss.NewStyle().Width(width - 2).PaddingLeft(2)

	switch e.role {
	case roleUser:
		return styleUser.Render("You") + "\n" + wrap.Render(e.content)
	case roleSystem:
		return styleSystem.Render("System") + "\n" + wrap.Render(e.content)
	case roleError:
		return styleError.Render("Error") + "\n" + wrap.Render(styleError.Render(e.content))
	}

	header := styleAgent.Render(e.agent)
	if e.decision != nil {
		header += "  " + styleRoute.Render(routeLine(*e.decision))
	}
	body := e.content
	if t.markdown {
		if e.rendered == "" {
			e.rendered = t.renderMarkdown(e.content, width)
		}
		body = strings.TrimRight(e.rendered, "\n")
	} else {
		body = wrap.Render(body)
	}
	out := header + "\n" + body
	if footer := appliedLine(e.applied); footer != "" {
		out += "\n" + footer
	}
	return out
}

func (t *transcript) renderMarkdown(content string, width int) string {
	if t.md == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width-4),
		)
		if err != nil {
			return "  " + content
		}
		t.md = r
	}
	out, err := t.md.Render(content)
	if err != nil {
		return "  " + content
	}
	return out
}

// routeLine summarises a routing decision, e.g.
// "→ guardian +researcher · security 0.85".
func routeLine(d domain.RoutingDecision) string {
	var b strings.Builder
	b.WriteString(symbolArrow + " " + d.PrimaryAgent)
	for _, s := range d.SecondaryAgents {
		b.WriteString(" +" + s)
	}
	if d.MessageType == "" {
		b.WriteString(" · direct")
		return b.String()
	}
	fmt.Fprintf(&b, " · %s %.2f", d.MessageType, d.Confidence)
	return b.String()
}

func appliedLine(applied []string) string {
	if len(applied) == 0 {
		return ""
	}
	parts := make([]string, 0, len(applied))
	for _, name := range applied {
		if name == domain.ConstraintSecurityOverride {
			parts = append(parts, styleGuard.Render(symbolGuard+" "+name))
			continue
		}
		parts = append(parts, styleOK.Render(symbolSuccess+" "+name))
	}
	return "  " + strings.Join(parts, "  ")
}
