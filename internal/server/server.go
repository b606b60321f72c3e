package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jpalmerr/yieldboard/internal/chain"
	"github.com/jpalmerr/yieldboard/internal/recorder"
	"github.com/jpalmerr/yieldboard/internal/store"
)

const (
	// sseWriteTimeout bounds a single SSE write so a stalled client cannot
	// pin its handler. Must stay <= shutdownTimeout.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	maxRequestBody = 1 << 20

	defaultTitle     = "DeFi Portfolio Advisor"
	titlePlaceholder = "{{.Title}}"
)

// ErrInvalidRequest marks controller errors caused by bad input. Handlers
// answer them with 400.
var ErrInvalidRequest = errors.New("invalid request")

// AssetInput is one holding as posted by the dashboard.
type AssetInput struct {
	Symbol  string      `json:"symbol"`
	Name    string      `json:"name"`
	Balance json.Number `json:"balance"`
	Address string      `json:"address,omitempty"`
}

// SubmitRequest asks for a new strategy analysis.
type SubmitRequest struct {
	Board   string       `json:"board"`
	ChainID int64        `json:"chain_id"`
	Assets  []AssetInput `json:"assets"`
}

// SubmitResult is either a tracked job or an immediate answer.
type SubmitResult struct {
	JobID      string            `json:"job_id,omitempty"`
	Board      string            `json:"board"`
	Generation uint64            `json:"generation"`
	Strategies []json.RawMessage `json:"strategies,omitempty"`
}

// ExplainRequest asks for a strategy walkthrough.
type ExplainRequest struct {
	Strategy json.RawMessage `json:"strategy"`
	Assets   []AssetInput    `json:"assets"`
}

// Controller performs the actions behind the API.
type Controller interface {
	Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error)
	Cancel(jobID string) bool
	Explain(req ExplainRequest) (string, error)
	Balances(ctx context.Context, chainID int64, wallet string) ([]chain.Balance, error)
	Networks() []chain.Network
	RecentRuns(ctx context.Context, limit int) ([]recorder.Run, error)
}

// Server handles HTTP requests for the dashboard and API.
//
// Routes:
//   - GET /: embedded dashboard
//   - GET /api/status, GET /api/boards/{board}: board snapshots
//   - GET /api/sse: Server-Sent Events stream of board updates
//   - POST /api/generate-strategy: submit a portfolio
//   - DELETE /api/jobs/{job_id}: cancel a job
//   - POST /api/explain-strategy: markdown walkthrough
//   - GET /api/balances, GET /api/networks, GET /api/runs
type Server struct {
	store      store.Store
	controller Controller
	port       int
	httpServer *http.Server
	assets     fs.FS
	title      string
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server]. assets may be nil. The server is
// not started until [Server.Start] is called.
func NewServer(st store.Store, ctrl Controller, port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:      st,
		controller: ctrl,
		port:       port,
		assets:     assets,
		title:      title,
		logger:     logger,
	}
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/boards/{board}", s.handleBoard)
	mux.HandleFunc("GET /api/sse", s.handleSSE)
	mux.HandleFunc("GET /api/networks", s.handleNetworks)

	if s.controller != nil {
		mux.HandleFunc("POST /api/generate-strategy", s.handleGenerate)
		mux.HandleFunc("DELETE /api/jobs/{job_id}", s.handleCancel)
		mux.HandleFunc("POST /api/explain-strategy", s.handleExplain)
		mux.HandleFunc("GET /api/balances", s.handleBalances)
		mux.HandleFunc("GET /api/runs", s.handleRuns)
	}

	if s.assets != nil {
		mux.HandleFunc("GET /{$}", s.handleDashboard)
	}
	return mux
}

// Start begins serving in a background goroutine and returns once the
// port is bound. Cancelling ctx shuts the server down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so SSE handlers end on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	return nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.GetAll())
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	state, ok := s.store.Get(r.PathValue("board"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "board not found")
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		s.writeJSON(w, http.StatusOK, chain.NewRegistry().All())
		return
	}
	s.writeJSON(w, http.StatusOK, s.controller.Networks())
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Assets) == 0 {
		s.writeError(w, http.StatusBadRequest, "No assets provided")
		return
	}

	result, err := s.controller.Submit(r.Context(), req)
	switch {
	case errors.Is(err, ErrInvalidRequest):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("strategy submission failed", "board", req.Board, "error", err)
		s.writeError(w, http.StatusBadGateway, "Failed to generate strategy")
		return
	}

	if result.JobID != "" {
		s.writeJSON(w, http.StatusAccepted, result)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	s.writeJSON(w, http.StatusOK, map[string]any{
		"job_id":    jobID,
		"cancelled": s.controller.Cancel(jobID),
	})
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req ExplainRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Strategy) == 0 || string(req.Strategy) == "null" {
		s.writeError(w, http.StatusBadRequest, "Strategy is required")
		return
	}

	explanation, err := s.controller.Explain(req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("explanation failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to generate explanation")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"explanation": explanation})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	address := q.Get("address")
	chainID, err := strconv.ParseInt(q.Get("chain_id"), 10, 64)
	if err != nil || address == "" {
		s.writeError(w, http.StatusBadRequest, "chain_id and address are required")
		return
	}

	balances, err := s.controller.Balances(r.Context(), chainID, address)
	switch {
	case errors.Is(err, ErrInvalidRequest):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("balance read failed", "chain_id", chainID, "error", err)
		s.writeError(w, http.StatusBadGateway, "Failed to read balances")
		return
	}
	s.writeJSON(w, http.StatusOK, balances)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := s.controller.RecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("run history read failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to read run history")
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

// handleSSE streams board updates via Server-Sent Events.
//
// Writes carry deadlines so a slow or vanished client cannot block the
// handler past shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	for _, state := range s.store.GetAll() {
		data, err := json.Marshal(state)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case state, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(state)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
