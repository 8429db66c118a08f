package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"conductor/internal/adapter/llm"
	"conductor/internal/domain"
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Inspect and manage model backends",
}

var backendStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report which backends answer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx, needs{llm: true})
		if err != nil {
			return err
		}
		defer rt.Close()

		avail := rt.llm.Registry.Availability(ctx)
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tSTATUS\tBREAKER")
		for _, name := range rt.llm.Registry.List() {
			status := "n/a"
			if up, ok := avail[name]; ok {
				status = "down"
				if up {
					status = "up"
				}
			}
			breaker := "-"
			if p, err := rt.llm.Registry.Get(name); err == nil {
				if cb, ok := llm.BreakerOf(p); ok {
					breaker = cb.State().String()
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", name, status, breaker)
		}
		return w.Flush()
	},
}

var backendLoadCmd = &cobra.Command{
	Use:   "load <provider>",
	Short: "Ask a backend to load its configured model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd, args[0], true)
	},
}

var backendUnloadCmd = &cobra.Command{
	Use:   "unload <provider>",
	Short: "Ask a backend to release its configured model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd, args[0], false)
	},
}

var backendProbeCmd = &cobra.Command{
	Use:   "probe <provider> <prompt>",
	Short: "Send a raw prompt to one backend, streaming the reply when supported",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx, needs{llm: true})
		if err != nil {
			return err
		}
		defer rt.Close()

		p, err := rt.llm.Registry.Get(args[0])
		if err != nil {
			return err
		}
		req := domain.ChatRequest{
			Messages: []domain.Message{{Role: domain.RoleUser, Content: strings.Join(args[1:], " ")}},
		}
		return probe(ctx, cmd.OutOrStdout(), p, req)
	},
}

func init() {
	backendCmd.AddCommand(backendStatusCmd, backendLoadCmd, backendUnloadCmd, backendProbeCmd)
	rootCmd.AddCommand(backendCmd)
}

func runLifecycle(cmd *cobra.Command, provider string, load bool) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, needs{llm: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	lc, err := rt.llm.Registry.Lifecycle(provider)
	if err != nil {
		return err
	}
	if load {
		err = lc.LoadModel(ctx)
	} else {
		err = lc.UnloadModel(ctx)
	}
	if err != nil {
		return err
	}

	verb := "loaded"
	if !load {
		verb = "unloaded"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: model %s\n", provider, verb)
	return nil
}

// probe writes the backend's reply to w as it arrives.
func probe(ctx context.Context, w io.Writer, p domain.LLMProvider, req domain.ChatRequest) error {
	sp, ok := p.(domain.StreamingLLMProvider)
	if !ok {
		resp, err := p.Chat(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, resp.Message.Content)
		return nil
	}

	req.Stream = true
	ch, err := sp.ChatStream(ctx, req)
	if err != nil {
		return err
	}
	for d := range ch {
		fmt.Fprint(w, d.Content)
		if d.Done {
			break
		}
	}
	fmt.Fprintln(w)
	return ctx.Err()
}
