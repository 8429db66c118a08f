package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"conductor/internal/domain"
	"conductor/internal/infra/config"
	"conductor/internal/usecase/sanctuary"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse every sanctuary fragment and check agent references",
	Long: `Parse all essence, room and modulation fragments and report typed
errors. Also checks that every configured agent's room and modulation sets
exist. Exits non-zero when anything is invalid.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, needs{})
	if err != nil {
		return err
	}
	defer rt.Close()

	failures, err := validateFragments(ctx, cmd.OutOrStdout(), rt.store, rt.cfg.Agents.Instances)
	if err != nil {
		return err
	}
	if failures > 0 {
		return fmt.Errorf("%d problem(s) found", failures)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "all fragments valid")
	return nil
}

// validateFragments reports one line per fragment and returns the number of failures.
func validateFragments(ctx context.Context, w io.Writer, store domain.FragmentStore, instances []config.AgentInstanceConfig) (int, error) {
	failures := 0
	known := map[domain.FragmentKind]map[string]bool{}

	for _, kind := range domain.FragmentKinds {
		names, err := store.List(ctx, kind)
		if err != nil {
			return 0, fmt.Errorf("list %s fragments: %w", kind, err)
		}
		known[kind] = make(map[string]bool, len(names))
		for _, name := range names {
			known[kind][name] = true
			text, err := store.Fragment(ctx, kind, name)
			if err == nil {
				err = parseFragment(w, kind, name, text)
			}
			if err != nil {
				failures++
				fmt.Fprintf(w, "FAIL %s/%s: %v [%s]\n", kind, name, err, domain.ErrorCodeOf(err))
			}
		}
	}

	for _, inst := range instances {
		if inst.Room != "" && !known[domain.FragmentRoom][inst.Room] {
			failures++
			fmt.Fprintf(w, "FAIL agent %s: room %q not found\n", inst.Name, inst.Room)
		}
		for _, set := range inst.Modulations {
			if !known[domain.FragmentModulation][set] {
				failures++
				fmt.Fprintf(w, "FAIL agent %s: modulation set %q not found\n", inst.Name, set)
			}
		}
		if !known[domain.FragmentEssence][inst.Name] {
			fmt.Fprintf(w, "warn agent %s: no essence fragment, default essence will be used\n", inst.Name)
		}
	}
	return failures, nil
}

func parseFragment(w io.Writer, kind domain.FragmentKind, name, text string) error {
	switch kind {
	case domain.FragmentEssence:
		e, err := sanctuary.ParseEssence(name, text)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "ok   essence/%s (%s)\n", name, e.Tag)
		for _, warning := range sanctuary.ValidateEssence(e) {
			fmt.Fprintf(w, "warn essence/%s: %s\n", name, warning)
		}
	case domain.FragmentRoom:
		r, err := sanctuary.ParseRoom(name, text)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "ok   room/%s (%s)\n", name, r.Name)
	case domain.FragmentModulation:
		rules, err := sanctuary.ParseModulations(name, text)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "ok   modulation/%s (%d rules)\n", name, len(rules))
	}
	return nil
}
