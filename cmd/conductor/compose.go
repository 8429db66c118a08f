package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var composeCmd = &cobra.Command{
	Use:   "compose <agent> <message>",
	Short: "Print the prompt an agent would receive",
	Long: `Compose the full prompt (essence, room, modulation rules, constraints,
context) for an agent. Room and modulations default to the agent's
configured values. --baseline prints the essence-only prompt instead, for
side-by-side comparison.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCompose,
}

var (
	composeRoom        string
	composeModulations []string
	composeContext     []string
	composeBaseline    bool
)

func init() {
	rootCmd.AddCommand(composeCmd)
	composeCmd.Flags().StringVar(&composeRoom, "room", "", "room to compose in (default: agent's configured room)")
	composeCmd.Flags().StringSliceVar(&composeModulations, "modulation", nil, "active modulation sets")
	composeCmd.Flags().StringArrayVarP(&composeContext, "context", "c", nil, "context pair key=value (repeatable, order kept)")
	composeCmd.Flags().BoolVar(&composeBaseline, "baseline", false, "essence-only prompt")
}

func runCompose(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	msgCtx, err := parseContext(composeContext)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, needs{})
	if err != nil {
		return err
	}
	defer rt.Close()

	agentName := args[0]
	message := strings.Join(args[1:], " ")

	var prompt string
	if composeBaseline {
		prompt, err = rt.composer.ComposeBaselinePrompt(ctx, agentName, message, msgCtx)
	} else {
		room, mods := composeRoom, composeModulations
		for _, inst := range rt.cfg.Agents.Instances {
			if inst.Name != agentName {
				continue
			}
			if room == "" {
				room = inst.Room
			}
			if !cmd.Flags().Changed("modulation") {
				mods = inst.Modulations
			}
		}
		if room == "" {
			return fmt.Errorf("agent %q has no room configured; pass --room or --baseline", agentName)
		}
		prompt, err = rt.composer.ComposePrompt(ctx, agentName, room, message, msgCtx, mods)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), prompt)
	return nil
}
