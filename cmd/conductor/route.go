package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var routeCmd = &cobra.Command{
	Use:   "route <message>",
	Short: "Show the routing decision for a message without invoking agents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRoute,
}

var (
	routeContext []string
	routeJSON    bool
)

func init() {
	rootCmd.AddCommand(routeCmd)
	routeCmd.Flags().StringArrayVarP(&routeContext, "context", "c", nil, "context pair key=value (repeatable, order kept)")
	routeCmd.Flags().BoolVar(&routeJSON, "json", false, "print as JSON")
}

func runRoute(cmd *cobra.Command, args []string) error {
	msgCtx, err := parseContext(routeContext)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), needs{agents: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	decision := rt.coordinator.Decide(strings.Join(args, " "), msgCtx)
	out := cmd.OutOrStdout()
	if routeJSON {
		return writeJSON(out, decision)
	}

	secondary := "-"
	if len(decision.SecondaryAgents) > 0 {
		secondary = strings.Join(decision.SecondaryAgents, ", ")
	}
	fmt.Fprintf(out, "type:        %s (confidence %.2f)\n", decision.MessageType, decision.Confidence)
	fmt.Fprintf(out, "primary:     %s\n", decision.PrimaryAgent)
	fmt.Fprintf(out, "secondary:   %s\n", secondary)
	fmt.Fprintf(out, "constraints: %s\n", strings.Join(decision.Constraints, ", "))
	return nil
}
