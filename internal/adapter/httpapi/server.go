// Package httpapi exposes the routing pipeline over a small JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"conductor/internal/domain"
	"conductor/internal/infra/logger"
	"conductor/internal/infra/tracer"
	"conductor/internal/usecase/coordinator"
)

const maxBodyBytes = 1 << 20

// Pipeline is the coordinator surface the API serves.
type Pipeline interface {
	Handle(ctx context.Context, message string, msgCtx *domain.Context) (*domain.AgentResponse, domain.RoutingDecision, error)
	Decide(message string, msgCtx *domain.Context) domain.RoutingDecision
	Stats() domain.RoutingStats
	ListAvailableAgents() []string
	AgentInfo(name string) (domain.AgentInfo, bool)
}

// DelegateFunc sends a message straight to one named agent.
type DelegateFunc func(ctx context.Context, agent, message string, msgCtx *domain.Context) (string, error)

// Options configures a Server.
type Options struct {
	Addr         string
	Pipeline     Pipeline
	Delegate     DelegateFunc // optional; requests naming an agent fail without it
	RateLimit    RateLimitConfig
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Server is the HTTP front end.
type Server struct {
	opts   Options
	logger *slog.Logger

	server    *http.Server
	boundAddr string
	cancel    context.CancelFunc
}

type messageRequest struct {
	Content string                                 `json:"content"`
	Agent   string                                 `json:"agent,omitempty"`
	Context *orderedmap.OrderedMap[string, string] `json:"context,omitempty"`
}

type messageResponse struct {
	Content            string                  `json:"content"`
	Agent              string                  `json:"agent"`
	Decision           *domain.RoutingDecision `json:"decision,omitempty"`
	AppliedConstraints []string                `json:"applied_constraints,omitempty"`
	Metadata           map[string]string       `json:"metadata,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// New creates a Server. Call Start to listen, or mount Handler yourself.
func New(opts Options) *Server {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 120 * time.Second
	}
	return &Server{opts: opts, logger: logger.OrDiscard(opts.Logger)}
}

// Handler returns the API routes wrapped in security headers and, when
// configured, per-client rate limiting.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/messages", s.handleMessage)
	mux.HandleFunc("POST /api/v1/route", s.handleRoute)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	mux.HandleFunc("GET /api/v1/agents", s.handleAgents)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	var h http.Handler = mux
	if s.opts.RateLimit.RequestsPerMin > 0 {
		h = RateLimit(ctx, s.opts.RateLimit)(h)
	}
	return SecurityHeaders(h)
}

// Start listens and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.server = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.opts.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	s.boundAddr = ln.Addr().String()

	go func() {
		s.logger.Info("http api started", "addr", s.boundAddr)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http api stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start has returned.
func (s *Server) Addr() string { return s.boundAddr }

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	req, msgCtx, ok := decodeMessage(w, r)
	if !ok {
		return
	}

	ctx, span := tracer.StartSpan(r.Context(), "http.message")
	span.SetAttributes(tracer.BoolAttr("http.direct", req.Agent != ""))

	if req.Agent != "" {
		if s.opts.Delegate == nil {
			writeError(w, http.StatusNotImplemented, "direct agent addressing is not enabled", "")
			tracer.Finish(span, nil)
			return
		}
		content, err := s.opts.Delegate(ctx, req.Agent, req.Content, msgCtx)
		tracer.Finish(span, err)
		if err != nil {
			s.writeRequestError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Content: content, Agent: req.Agent})
		return
	}

	resp, decision, err := s.opts.Pipeline.Handle(ctx, req.Content, msgCtx)
	tracer.Finish(span, err)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{
		Content:            resp.Content,
		Agent:              decision.PrimaryAgent,
		Decision:           &decision,
		AppliedConstraints: resp.AppliedConstraints,
		Metadata:           resp.Metadata,
	})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	req, msgCtx, ok := decodeMessage(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Pipeline.Decide(req.Content, msgCtx))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Pipeline.Stats())
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	names := s.opts.Pipeline.ListAvailableAgents()
	infos := make([]domain.AgentInfo, 0, len(names))
	for _, name := range names {
		if info, ok := s.opts.Pipeline.AgentInfo(name); ok {
			infos = append(infos, info)
		}
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeMessage(w http.ResponseWriter, r *http.Request) (messageRequest, *domain.Context, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		msg := "invalid JSON: " + err.Error()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "request body too large (max 1MB)"
		}
		writeError(w, http.StatusBadRequest, msg, string(domain.ErrorCodeOf(domain.ErrInvalidInput)))
		return req, nil, false
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required", string(domain.ErrorCodeOf(domain.ErrInvalidInput)))
		return req, nil, false
	}

	msgCtx := domain.NewContext()
	if req.Context != nil {
		for pair := req.Context.Oldest(); pair != nil; pair = pair.Next() {
			msgCtx.Set(pair.Key, pair.Value)
		}
	}
	return req, msgCtx, true
}

// writeRequestError answers a failed message with the generic apology. The
// error text can carry backend responses, so it only goes to the log.
func (s *Server) writeRequestError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	code := domain.ErrorCodeOf(err)
	s.logger.Warn("api request failed", "error", err, "code", code, "status", status)
	writeError(w, status, coordinator.ApologyMessage, string(code))
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAgentNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrBackendUnavailable), errors.Is(err, domain.ErrRateLimit):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}
