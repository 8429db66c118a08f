package tui

import "github.com/charmbracelet/lipgloss"

// Adaptive palette; lipgloss suppresses color when NO_COLOR is set.
var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
	colorFgDim   = lipgloss.AdaptiveColor{Light: "#9e9e9e", Dark: "#757575"}
	colorBgAlt   = lipgloss.AdaptiveColor{Light: "#f5f5f5", Dark: "#2d2d2d"}
	colorTitleBg = lipgloss.AdaptiveColor{Light: "#1565c0", Dark: "#42a5f5"}
	colorTitleFg = lipgloss.AdaptiveColor{Light: "#ffffff", Dark: "#1e1e1e"}
)

var (
	styleTitle = lipgloss.NewStyle().
			Foreground(colorTitleFg).
			Background(colorTitleBg).
			Bold(true).
			Padding(0, 2)

	styleUser   = lipgloss.NewStyle().Foreground(colorInfo).Bold(true)
	styleAgent  = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleSystem = lipgloss.NewStyle().Foreground(colorMuted).Bold(true)
	styleError  = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleRoute  = lipgloss.NewStyle().Foreground(colorFgDim).Faint(true)
	styleGuard  = lipgloss.NewStyle().Foreground(colorWarning)
	styleOK     = lipgloss.NewStyle().Foreground(colorSuccess)

	styleStatus = lipgloss.NewStyle().
			Foreground(colorFgDim).
			Background(colorBgAlt).
			Padding(0, 1)

	stylePrompt      = lipgloss.NewStyle().Foreground(colorInfo).Bold(true)
	stylePlaceholder = lipgloss.NewStyle().Foreground(colorFgDim)
	styleDim         = lipgloss.NewStyle().Faint(true)
)

const (
	symbolArrow   = "→"
	symbolGuard   = "⚠"
	symbolSuccess = "✓"
	symbolBullet  = "•"
)
