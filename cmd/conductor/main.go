package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "conductor - multi-agent message orchestration",
	Long: `conductor classifies each message, routes it to a primary agent, lets
guardian and researcher agents review or extend the reply, and applies
content constraints before answering.

Agent personas live as essence, room and modulation fragments under the
sanctuary directory.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "config file path (env: CONDUCTOR_CONFIG)")
}

func defaultConfigPath() string {
	if p := os.Getenv("CONDUCTOR_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
