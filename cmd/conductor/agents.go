package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the configured agent roster",
	Args:  cobra.NoArgs,
	RunE:  runAgents,
}

var agentsJSON bool

func init() {
	rootCmd.AddCommand(agentsCmd)
	agentsCmd.Flags().BoolVar(&agentsJSON, "json", false, "print as JSON")
}

func runAgents(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime(cmd.Context(), needs{agents: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	states := rt.roster.List()
	out := cmd.OutOrStdout()
	if agentsJSON {
		return writeJSON(out, states)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tESSENCE\tPROVIDER\tMODEL\tCAPABILITIES\tDESCRIPTION")
	for _, st := range states {
		info, _ := rt.coordinator.AgentInfo(st.Name)
		caps := "-"
		if len(info.Capabilities) > 0 {
			caps = strings.Join(info.Capabilities, ",")
		}
		model := st.Model
		if model == "" {
			model = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", st.Name, st.EssenceTag, st.Provider, model, caps, info.Description)
	}
	return w.Flush()
}
