package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"conductor/internal/adapter/httpapi"
	"conductor/internal/domain"
	"conductor/internal/usecase/multiagent"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the routing pipeline over HTTP",
	Long: `Serve a JSON API:

  POST /api/v1/messages   {"content": "...", "context": {...}, "agent": "optional"}
  POST /api/v1/route      routing decision only
  GET  /api/v1/stats      in-process routing statistics
  GET  /api/v1/agents     roster
  GET  /api/v1/health`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, needs{agents: true, journal: true, watch: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	sc := rt.cfg.Server
	if serveAddr != "" {
		sc.Addr = serveAddr
	}

	srv := httpapi.New(httpapi.Options{
		Addr:     sc.Addr,
		Pipeline: rt.coordinator,
		Delegate: func(ctx context.Context, agent, message string, msgCtx *domain.Context) (string, error) {
			resp, err := rt.broker.Delegate(ctx, multiagent.DelegateRequest{
				FromAgent: "http",
				ToAgent:   agent,
				Message:   message,
				Context:   msgCtx,
			})
			if err != nil {
				return "", err
			}
			return resp.Content, nil
		},
		RateLimit: httpapi.RateLimitConfig{
			RequestsPerMin: sc.RequestsPerMin,
			BurstSize:      sc.BurstSize,
			TrustedProxies: sc.TrustedProxies,
		},
		WriteTimeout: sc.WriteTimeout,
		Logger:       rt.logger,
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}
	cmd.Printf("listening on http://%s\n", srv.Addr())

	<-ctx.Done()
	rt.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
