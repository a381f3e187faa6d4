// Package webhook implements a Reader that accepts SMS events pushed over HTTP by a
// device companion app.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/capture"
)

// Source is recorded on messages produced by this reader.
const Source = "webhook"

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8081"

// maxRequestBytes bounds a request body independently of the message body limit.
const maxRequestBytes = 64 << 10

// Config holds configuration for the webhook reader.
type Config struct {
	// Addr is the listen address. Defaults to DefaultAddr.
	Addr string
	// MaxBodyLength caps accepted message bodies. Zero selects capture.DefaultMaxBodyLength.
	MaxBodyLength int
	// Pending receives events flagged as the launch message. Optional.
	Pending *capture.PendingSlot
}

// Reader serves POST /api/messages and forwards accepted events.
type Reader struct {
	addr    string
	decoder *capture.Decoder
	pending *capture.PendingSlot
	logger  *slog.Logger

	mu     sync.Mutex
	out    chan<- *api.RawMessage
	ctx    context.Context
	closed bool
}

// New creates a new webhook reader.
func New(cfg Config, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	return &Reader{
		addr:    addr,
		decoder: capture.NewDecoder(Source, cfg.MaxBodyLength),
		pending: cfg.Pending,
		logger:  logger.With("component", "webhook_reader"),
	}
}

// Routes returns the reader's HTTP handler.
func (r *Reader) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)

	router.Post("/api/messages", r.handleMessage)
	return router
}

// Read listens on the configured address until ctx is canceled.
// Events have been accepted once the HTTP response is sent, so acknowledgments are
// only drained.
func (r *Reader) Read(ctx context.Context, out chan<- *api.RawMessage, ackChan <-chan string) error {
	r.attach(ctx, out)
	defer r.detach()

	srv := &http.Server{
		Addr:              r.addr,
		Handler:           r.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("webhook listening", "addr", r.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	for {
		select {
		case err, ok := <-errCh:
			if ok {
				return err
			}
		case <-ackChan:
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				r.logger.Error("webhook shutdown failed", "error", err)
			}
			r.logger.Info("webhook reader stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// attach binds the output channel used by the handler.
func (r *Reader) attach(ctx context.Context, out chan<- *api.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctx = ctx
	r.out = out
	r.closed = false
}

// detach closes the output channel. Handlers arriving later get 503.
func (r *Reader) detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out != nil && !r.closed {
		close(r.out)
	}
	r.closed = true
}

type acceptedResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (r *Reader) handleMessage(w http.ResponseWriter, req *http.Request) {
	logger := r.logger.With("request_id", chimiddleware.GetReqID(req.Context()))

	data, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxRequestBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return
	}

	ev, msg, err := r.decoder.DecodeEvent(data)
	switch {
	case errors.Is(err, capture.ErrBodyTooLong):
		logger.Warn("rejected sms event", "error", err)
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
		return
	case err != nil:
		logger.Warn("rejected sms event", "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if ev.Launch && r.pending != nil {
		r.pending.Offer(msg)
	}

	if !r.forward(req.Context(), &msg) {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "not accepting messages"})
		return
	}

	logger.Debug("accepted sms event", "message_id", msg.ID)
	writeJSON(w, http.StatusAccepted, acceptedResponse{ID: msg.ID})
}

// forward hands msg to the pipeline. It reports false when the reader is not running
// or the request was abandoned.
func (r *Reader) forward(reqCtx context.Context, msg *api.RawMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.out == nil || r.closed {
		return false
	}

	select {
	case r.out <- msg:
		return true
	case <-reqCtx.Done():
		return false
	case <-r.ctx.Done():
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
