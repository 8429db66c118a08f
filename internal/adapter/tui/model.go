// Package tui is the interactive chat front end over the routing pipeline.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"conductor/internal/domain"
	"conductor/internal/infra/logger"
)

// Router is the routing pipeline the chat sends messages through.
type Router interface {
	Handle(ctx context.Context, message string, msgCtx *domain.Context) (*domain.AgentResponse, domain.RoutingDecision, error)
	Decide(message string, msgCtx *domain.Context) domain.RoutingDecision
	Stats() domain.RoutingStats
}

// Addresser recognises a message addressed to one agent, such as "@guardian ...".
type Addresser interface {
	Route(message string) (agentName, rest string, ok bool)
}

// DelegateFunc sends a message straight to one named agent.
type DelegateFunc func(ctx context.Context, agent, message string, msgCtx *domain.Context) (string, error)

// Options configures the chat model.
type Options struct {
	Router      Router
	Addresser   Addresser    // optional; with Delegate enables "@agent" messages
	Delegate    DelegateFunc // optional
	Title       string
	Markdown    bool // render agent replies with glamour
	MaxMessages int  // 0 = unlimited
	Context     *domain.Context
	Logger      *slog.Logger
}

// replyMsg carries a finished request back into the update loop.
type replyMsg struct {
	gen      uint64
	resp     *domain.AgentResponse
	decision domain.RoutingDecision
	err      error
}

// Model is the root Bubble Tea model.
type Model struct {
	router    Router
	addresser Addresser
	delegate  DelegateFunc
	title     string
	logger    *slog.Logger

	view    viewport.Model
	input   textarea.Model
	spinner spinner.Model
	log     transcript
	msgCtx  *domain.Context

	width, height int
	ready         bool
	waiting       bool
	quitting      bool

	// gen increases per request; replies from an older gen are dropped.
	gen    uint64
	cancel context.CancelFunc
}

// New creates the chat model.
func New(opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Say something, or /help"
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Prompt = stylePrompt
	ta.FocusedStyle.Placeholder = stylePlaceholder
	ta.KeyMap.InsertNewline.SetKeys("alt+enter")
	ta.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorInfo)

	title := opts.Title
	if title == "" {
		title = "conductor"
	}
	msgCtx := opts.Context
	if msgCtx == nil {
		msgCtx = domain.NewContext()
	}

	return Model{
		router:    opts.Router,
		addresser: opts.Addresser,
		delegate:  opts.Delegate,
		title:     title,
		logger:    logger.OrDiscard(opts.Logger),
		input:     ta,
		spinner:   s,
		log:       newTranscript(opts.MaxMessages, opts.Markdown),
		msgCtx:    msgCtx,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case replyMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		return m.handleReply(msg), nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	if !m.waiting {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	if m.ready {
		m.view, cmd = m.view.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.waiting {
			m.cancelRequest()
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit

	case tea.KeyCtrlL:
		return m.command("/clear")

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(msg)
		return m, cmd

	case tea.KeyEnter:
		if m.waiting {
			return m, nil
		}
		value := strings.TrimSpace(m.input.Value())
		if value == "" {
			return m, nil
		}
		m.input.Reset()
		if strings.HasPrefix(value, "/") {
			return m.command(value)
		}
		return m.submit(value)
	}

	if m.waiting {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(message string) (tea.Model, tea.Cmd) {
	m.add(entry{role: roleUser, content: message})
	if m.router == nil {
		m.add(entry{role: roleError, content: "no router configured"})
		return m, nil
	}

	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.waiting = true
	m.input.Blur()

	gen, router, msgCtx := m.gen, m.router, m.msgCtx.Clone()
	ask := func() tea.Msg {
		resp, decision, err := router.Handle(ctx, message, msgCtx)
		return replyMsg{gen: gen, resp: resp, decision: decision, err: err}
	}
	if agent, rest, ok := m.direct(message); ok {
		delegate := m.delegate
		ask = func() tea.Msg {
			content, err := delegate(ctx, agent, rest, msgCtx)
			if err != nil {
				return replyMsg{gen: gen, err: err}
			}
			return replyMsg{
				gen:      gen,
				resp:     &domain.AgentResponse{Content: content, AgentName: agent},
				decision: domain.RoutingDecision{PrimaryAgent: agent, Confidence: 1},
			}
		}
	}
	return m, tea.Batch(m.spinner.Tick, ask)
}

// direct reports whether message addresses one agent and delegation is wired.
func (m Model) direct(message string) (agent, rest string, ok bool) {
	if m.addresser == nil || m.delegate == nil {
		return "", message, false
	}
	agent, rest, ok = m.addresser.Route(message)
	if !ok || rest == "" {
		return "", message, false
	}
	return agent, rest, true
}

func (m Model) handleReply(msg replyMsg) Model {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.waiting = false
	m.input.Focus()

	if msg.err != nil {
		if !errors.Is(msg.err, context.Canceled) {
			m.logger.Warn("chat request failed", "error", msg.err, "code", domain.ErrorCodeOf(msg.err))
			m.add(entry{role: roleError, content: fmt.Sprintf("%v [%s]", msg.err, domain.ErrorCodeOf(msg.err))})
		}
		return m
	}

	decision := msg.decision
	m.add(entry{
		role:     roleAgent,
		agent:    decision.PrimaryAgent,
		content:  msg.resp.Content,
		decision: &decision,
		applied:  msg.resp.AppliedConstraints,
	})
	return m
}

func (m *Model) cancelRequest() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.gen++
	m.waiting = false
	m.input.Focus()
	m.add(entry{role: roleSystem, content: "Request cancelled."})
}

const helpText = `Commands:
  /help              Show this help
  @agent <message>   Send a message straight to one agent
  /route <message>   Show where a message would go, without sending it
  /context           Show the message context
  /context k=v ...   Set context values
  /context clear     Drop the message context
  /stats             Routing statistics for this session
  /clear             Clear the conversation
  /quit              Exit

Keys: Enter send · Alt+Enter newline · PgUp/PgDn scroll · Ctrl+L clear · Ctrl+C cancel/quit`

func (m Model) command(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "/help":
		m.add(entry{role: roleSystem, content: helpText})

	case "/quit", "/exit":
		m.quitting = true
		return m, tea.Quit

	case "/clear":
		m.log.clear()
		m.add(entry{role: roleSystem, content: symbolSuccess + " Conversation cleared."})

	case "/route":
		if len(args) == 0 || m.router == nil {
			m.add(entry{role: roleSystem, content: "Usage: /route <message>"})
			break
		}
		d := m.router.Decide(strings.Join(args, " "), m.msgCtx)
		m.add(entry{role: roleSystem, content: fmt.Sprintf("%s\nconstraints: %s", routeLine(d), strings.Join(d.Constraints, ", "))})

	case "/context":
		m.contextCommand(args)

	case "/stats":
		if m.router == nil {
			break
		}
		m.add(entry{role: roleSystem, content: formatStats(m.router.Stats())})

	default:
		m.add(entry{role: roleSystem, content: fmt.Sprintf("Unknown command: %s. Type /help for available commands.", name)})
	}
	return m, nil
}

func (m *Model) contextCommand(args []string) {
	if len(args) == 1 && args[0] == "clear" {
		m.msgCtx = domain.NewContext()
		m.add(entry{role: roleSystem, content: "Context cleared."})
		return
	}
	for _, pair := range args {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			m.add(entry{role: roleError, content: fmt.Sprintf("context %q must be key=value", pair)})
			return
		}
		m.msgCtx.Set(key, value)
	}
	if m.msgCtx.Len() == 0 {
		m.add(entry{role: roleSystem, content: "Context is empty."})
		return
	}
	var b strings.Builder
	m.msgCtx.Each(func(k, v string) {
		fmt.Fprintf(&b, "%s %s: %s\n", symbolBullet, k, v)
	})
	m.add(entry{role: roleSystem, content: strings.TrimRight(b.String(), "\n")})
}

func formatStats(s domain.RoutingStats) string {
	agents := make([]string, 0, len(s.RoutingDecisions))
	for name := range s.RoutingDecisions {
		agents = append(agents, name)
	}
	sort.Strings(agents)

	var b strings.Builder
	fmt.Fprintf(&b, "requests: %d  violations: %d", s.TotalRequests, s.ConstraintViolations)
	for _, name := range agents {
		fmt.Fprintf(&b, "\n%s %s: %d", symbolBullet, name, s.RoutingDecisions[name])
	}
	return b.String()
}

func (m *Model) add(e entry) {
	m.log.add(e)
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.view.SetContent(m.log.render())
	m.view.GotoBottom()
}

func (m *Model) layout() {
	const titleH, inputH, statusH, dividerH = 1, 3, 1, 1
	contentH := m.height - titleH - inputH - statusH - dividerH
	if contentH < 5 {
		contentH = 5
	}
	if !m.ready {
		m.view = viewport.New(m.width, contentH)
		m.view.MouseWheelEnabled = true
		m.ready = true
	} else {
		m.view.Width = m.width
		m.view.Height = contentH
	}
	m.log.setWidth(m.width)
	m.input.SetWidth(m.width - 2)
	m.refresh()
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if !m.ready {
		return "  Initializing..."
	}

	input := m.input.View()
	if m.waiting {
		input = styleDim.Render("> waiting for the roster...") + "\n" + m.spinner.View() + " routing"
	}

	status := fmt.Sprintf("context: %d  ·  Ctrl+C quit  ·  /help", m.msgCtx.Len())
	return lipgloss.JoinVertical(lipgloss.Left,
		styleTitle.Render(m.title),
		m.view.View(),
		styleDim.Render(strings.Repeat("─", max(m.width, 1))),
		input,
		styleStatus.Width(m.width).Render(status),
	)
}
