package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chronoplan/chronoplan/agent"
	"github.com/chronoplan/chronoplan/config"
	"github.com/chronoplan/chronoplan/metric"
	"github.com/chronoplan/chronoplan/usercontext"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server is the HTTP front of the agent.
type Server struct {
	cfg        *config.Config
	dispatcher *agent.Dispatcher
	auth       *Authenticator
	logger     *slog.Logger
	clock      func() time.Time
	card       Card
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithClock overrides the server clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) { s.clock = clock }
}

// NewServer builds the HTTP server around a dispatcher.
func NewServer(cfg *config.Config, dispatcher *agent.Dispatcher, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		auth:       NewAuthenticator(cfg),
		logger:     slog.Default(),
		clock:      time.Now,
		card:       BuildCard(cfg),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler assembles the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))

	r.Post("/a2a/rpc", s.handleRPC)
	r.Get("/.well-known/a2a.json", s.handleCardDocument)
	r.Get("/.well-known/a2a-credentials.json", s.handleCredentialsDocument)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.mountLegacy(r)
	return r
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Authenticate(r); err != nil {
		s.logger.Warn("Rejected unauthenticated RPC", "remote", r.RemoteAddr, "error", err)
		metric.RPCRequests.WithLabelValues("unknown", "unauthorized").Inc()
		writeJSON(w, http.StatusUnauthorized,
			errorResponse(nil, CodeUnauthorized, "unauthorized"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusOK, errorResponse(nil, CodeParseError, "unreadable request body"))
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		metric.RPCRequests.WithLabelValues("unknown", "parse_error").Inc()
		writeJSON(w, http.StatusOK, errorResponse(nil, CodeParseError, "parse error"))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		metric.RPCRequests.WithLabelValues(req.Method, "invalid_request").Inc()
		writeJSON(w, http.StatusOK, errorResponse(req.ID, CodeInvalidRequest, "invalid request"))
		return
	}

	resp := s.dispatchMethod(r, &req)
	outcome := "ok"
	if resp.Error != nil {
		outcome = "error"
	}
	metric.RPCRequests.WithLabelValues(req.Method, outcome).Inc()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) dispatchMethod(r *http.Request, req *Request) *Response {
	switch req.Method {
	case "agent.card":
		return resultResponse(req.ID, s.card)

	case "agent.handshake":
		return resultResponse(req.ID, map[string]any{
			"agent":       s.card.ID,
			"card":        s.card,
			"server_time": s.clock().UTC().Format(time.RFC3339),
		})

	case "tool.list":
		return resultResponse(req.ID, agent.Tools)

	case "tool.execute":
		return s.handleExecute(r, req)

	case "tool.approve":
		return s.handleApprove(r, req)

	default:
		return errorResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
}

// executeParams is the tool.execute parameter shape.
type executeParams struct {
	Tool        string             `json:"tool"`
	Arguments   json.RawMessage    `json:"arguments"`
	UserContext usercontext.Params `json:"user_context"`
	RequestID   string             `json:"request_id"`
}

func (s *Server) handleExecute(r *http.Request, req *Request) *Response {
	var params executeParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Tool == "" {
		return errorResponse(req.ID, CodeInvalidParams, "tool.execute requires tool and arguments")
	}

	uctx, err := usercontext.Resolve(params.UserContext, s.clock)
	if err != nil {
		return errorResponse(req.ID, CodeInvalidParams, err.Error())
	}

	result, err := s.dispatcher.Execute(r.Context(), params.Tool, params.Arguments, uctx)
	return s.toolResponse(req, params.Tool, result, err)
}

// approveParams is the tool.approve parameter shape. The action_data is
// the record the previous call echoed out.
type approveParams struct {
	Tool              string             `json:"tool"`
	OriginalArguments json.RawMessage    `json:"original_arguments"`
	ActionData        json.RawMessage    `json:"action_data"`
	UserContext       usercontext.Params `json:"user_context"`
	Approved          *bool              `json:"approved"`
	RequestID         string             `json:"request_id"`
}

func (s *Server) handleApprove(r *http.Request, req *Request) *Response {
	var params approveParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Tool == "" {
		return errorResponse(req.ID, CodeInvalidParams, "tool.approve requires tool and action_data")
	}

	uctx, err := usercontext.Resolve(params.UserContext, s.clock)
	if err != nil {
		return errorResponse(req.ID, CodeInvalidParams, err.Error())
	}

	approved := params.Approved == nil || *params.Approved
	result, err := s.dispatcher.Approve(r.Context(), params.Tool,
		params.OriginalArguments, params.ActionData, approved, uctx)
	return s.toolResponse(req, params.Tool, result, err)
}

func (s *Server) toolResponse(req *Request, tool string, result *agent.Response, err error) *Response {
	if err != nil {
		if errors.Is(err, agent.ErrUnknownTool) {
			metric.ToolExecutions.WithLabelValues(tool, "unknown_tool").Inc()
			return errorResponse(req.ID, CodeInvalidParams, err.Error())
		}
		s.logger.Error("Tool call failed internally", "tool", tool, "error", err)
		metric.ToolExecutions.WithLabelValues(tool, "internal_error").Inc()
		return errorResponse(req.ID, CodeInternalError, "internal error")
	}

	outcome := "success"
	switch {
	case result.NeedsApproval:
		outcome = "needs_approval"
	case result.NeedsSetup:
		outcome = "needs_setup"
	case result.Success != nil && !*result.Success:
		outcome = "error"
	}
	metric.ToolExecutions.WithLabelValues(tool, outcome).Inc()
	return resultResponse(req.ID, result)
}

func (s *Server) handleCardDocument(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.card)
}

func (s *Server) handleCredentialsDocument(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"credentials": CredentialsManifest()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"agent":   s.card.ID,
		"version": s.card.Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
