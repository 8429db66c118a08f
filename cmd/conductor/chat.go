package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"conductor/internal/adapter/tui"
	"conductor/internal/domain"
	"conductor/internal/usecase/multiagent"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat through the agent roster",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

var (
	chatContext []string
	chatPlain   bool
)

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringArrayVarP(&chatContext, "context", "c", nil, "initial context pair key=value (repeatable)")
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "do not render replies as markdown")
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	msgCtx, err := parseContext(chatContext)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, needs{agents: true, journal: true, watch: true, tui: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	model := tui.New(tui.Options{
		Router:    rt.coordinator,
		Addresser: rt.router,
		Delegate: func(ctx context.Context, agent, message string, msgCtx *domain.Context) (string, error) {
			resp, err := rt.broker.Delegate(ctx, multiagent.DelegateRequest{
				FromAgent: "chat",
				ToAgent:   agent,
				Message:   message,
				Context:   msgCtx,
			})
			if err != nil {
				return "", err
			}
			return resp.Content, nil
		},
		Title:       "conductor " + symbolDot + " " + configPath,
		Markdown:    !chatPlain,
		MaxMessages: 500,
		Context:     msgCtx,
		Logger:      rt.logger,
	})
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

const symbolDot = "·"
