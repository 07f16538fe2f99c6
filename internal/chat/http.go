package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Health reports what the server can currently reach.
type Health struct {
	Status       string `json:"status"`
	Providers    int    `json:"providers"`
	Capabilities int    `json:"capabilities"`
}

type askRequest struct {
	Question string `json:"question"`
	ThreadID string `json:"threadId,omitempty"`
}

type askResponse struct {
	Reply    string `json:"reply"`
	ThreadID string `json:"threadId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandlerOption configures the HTTP handler.
type HandlerOption func(*handler)

// WithStaticDir serves files under dir at /.
func WithStaticDir(dir string) HandlerOption {
	return func(h *handler) { h.staticDir = dir }
}

// WithHealth sets the /healthz probe.
func WithHealth(fn func() Health) HandlerOption {
	return func(h *handler) { h.health = fn }
}

type handler struct {
	chat      *Chat
	logger    *slog.Logger
	staticDir string
	health    func() Health
}

// NewHandler returns the chat HTTP API:
//
//	POST /api/chat  {question, threadId?} -> {reply, threadId}
//	GET  /healthz
//	GET  /metrics
func NewHandler(c *Chat, opts ...HandlerOption) http.Handler {
	h := &handler{
		chat:   c,
		logger: c.logger,
		health: func() Health { return Health{Status: "ok"} },
	}
	for _, opt := range opts {
		opt(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", h.handleChat)
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	if h.staticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(h.staticDir)))
	}
	return mux
}

func (h *handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question is required"})
		return
	}

	reply, thread, err := h.chat.AskThread(r.Context(), req.ThreadID, req.Question)
	switch {
	case errors.Is(err, ErrUnknownThread):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	case err != nil:
		h.logger.Error("chat request failed", "err", err)
		reply = warning(err)
	}
	writeJSON(w, http.StatusOK, askResponse{Reply: reply, ThreadID: thread})
}

func (h *handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.health())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve runs the handler on addr until ctx is done, then shuts down
// gracefully. ready, when set, receives the bound address.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("starting http server", "addr", ln.Addr().String())
	if ready != nil {
		ready(ln.Addr())
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", "error", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
