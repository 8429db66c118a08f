package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"conductor/internal/domain"
	"conductor/internal/usecase/multiagent"
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Route a message through the agent roster",
	Long: `Classify the message, route it to a primary agent, run secondary agents
and constraints, and print the reply.

A leading "@name" (or --agent) sends the message straight to one agent.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var (
	askContext []string
	askAgent   string
	askJSON    bool
)

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringArrayVarP(&askContext, "context", "c", nil, "context pair key=value (repeatable, order kept)")
	askCmd.Flags().StringVar(&askAgent, "agent", "", "send directly to this agent")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the routing decision and response as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	msgCtx, err := parseContext(askContext)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, needs{agents: true, journal: true, watch: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	message := strings.Join(args, " ")
	target := askAgent
	if target == "" {
		if name, rest, ok := rt.router.Route(message); ok {
			target, message = name, rest
		}
	}

	out := cmd.OutOrStdout()
	if target != "" {
		resp, err := rt.broker.Delegate(ctx, multiagent.DelegateRequest{
			FromAgent: "cli",
			ToAgent:   target,
			Message:   message,
			Context:   msgCtx,
		})
		if err != nil {
			return err
		}
		if askJSON {
			return writeJSON(out, resp)
		}
		fmt.Fprintln(out, resp.Content)
		return nil
	}

	if !askJSON {
		fmt.Fprintln(out, rt.coordinator.ProcessMessage(ctx, message, msgCtx))
		return nil
	}

	resp, decision, err := rt.coordinator.Handle(ctx, message, msgCtx)
	if err != nil {
		return err
	}
	return writeJSON(out, struct {
		Decision domain.RoutingDecision `json:"decision"`
		Response *domain.AgentResponse  `json:"response"`
	}{decision, resp})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
