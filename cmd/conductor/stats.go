package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"conductor/internal/adapter/journal"
	"conductor/internal/domain"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show routing statistics from the journal",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var (
	statsRecent int
	statsJSON   bool
)

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().IntVar(&statsRecent, "recent", 0, "also list the N most recent requests")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print as JSON")
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, needs{journal: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.journal == nil {
		return fmt.Errorf("journal is disabled (set journal.enabled: true)")
	}

	stats, err := rt.journal.Stats(ctx)
	if err != nil {
		return fmt.Errorf("journal stats: %w", err)
	}
	var recent []journal.Entry
	if statsRecent > 0 {
		if recent, err = rt.journal.Recent(ctx, statsRecent); err != nil {
			return fmt.Errorf("journal recent: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if statsJSON {
		return writeJSON(out, struct {
			Stats  domain.RoutingStats `json:"stats"`
			Recent []journal.Entry     `json:"recent,omitempty"`
		}{stats, recent})
	}
	printStats(out, stats)
	if len(recent) > 0 {
		fmt.Fprintln(out)
		printEntries(out, recent)
	}
	return nil
}

func printStats(out io.Writer, stats domain.RoutingStats) {
	fmt.Fprintf(out, "Total requests:        %d\n", stats.TotalRequests)
	fmt.Fprintf(out, "Constraint violations: %d\n", stats.ConstraintViolations)
	if len(stats.RoutingDecisions) == 0 {
		return
	}

	agents := make([]string, 0, len(stats.RoutingDecisions))
	for name := range stats.RoutingDecisions {
		agents = append(agents, name)
	}
	sort.Strings(agents)

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tREQUESTS")
	for _, name := range agents {
		fmt.Fprintf(w, "%s\t%d\n", name, stats.RoutingDecisions[name])
	}
	w.Flush()
}

func printEntries(out io.Writer, entries []journal.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tPRIMARY\tSECONDARY\tOUTCOME\tMODIFIED\tDURATION")
	for _, e := range entries {
		secondary := "-"
		if len(e.Decision.SecondaryAgents) > 0 {
			secondary = strings.Join(e.Decision.SecondaryAgents, ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%dms\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.Decision.MessageType,
			e.Decision.PrimaryAgent,
			secondary,
			e.Outcome,
			e.Modified,
			e.DurationMS,
		)
	}
	w.Flush()
}
