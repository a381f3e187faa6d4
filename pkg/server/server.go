// Package server exposes the read-side HTTP API used by dashboards: stored
// transactions, spending insights, ad-hoc classification and the pending launch message.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/capture"
	"github.com/ArionMiles/smsexpensor/pkg/classifier"
	"github.com/ArionMiles/smsexpensor/pkg/insights"
	"github.com/ArionMiles/smsexpensor/pkg/labels"
	"github.com/ArionMiles/smsexpensor/pkg/metrics"
	"github.com/ArionMiles/smsexpensor/pkg/record"
)

// Defaults for query parameters.
const (
	DefaultAddr  = ":8080"
	DefaultLimit = 50
	MaxLimit     = 1000
	DefaultDays  = 7
	MaxDays      = 366
)

// CategoryTotaler is implemented by stores that aggregate category totals themselves.
type CategoryTotaler interface {
	CategoryTotals(ctx context.Context) ([]insights.CategoryTotal, error)
}

// Config holds the server dependencies. Every field is optional; endpoints whose
// dependency is missing answer 503.
type Config struct {
	Addr       string
	Lister     api.Lister
	Classifier *classifier.Classifier
	Labels     *labels.Labels
	Pending    *capture.PendingSlot
	// MaxBodyLength caps bodies submitted to /api/classify.
	MaxBodyLength int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server serves the read-side API.
type Server struct {
	addr          string
	lister        api.Lister
	classifier    *classifier.Classifier
	builder       *record.Builder
	labels        *labels.Labels
	pending       *capture.PendingSlot
	maxBodyLength int
	now           func() time.Time
	validate      *validator.Validate
	logger        *slog.Logger
}

// New creates a server.
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Classifier == nil {
		cfg.Classifier = classifier.Default()
	}
	if cfg.MaxBodyLength <= 0 {
		cfg.MaxBodyLength = capture.DefaultMaxBodyLength
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Server{
		addr:          cfg.Addr,
		lister:        cfg.Lister,
		classifier:    cfg.Classifier,
		builder:       record.NewBuilder(cfg.Classifier),
		labels:        cfg.Labels,
		pending:       cfg.Pending,
		maxBodyLength: cfg.MaxBodyLength,
		now:           cfg.Now,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		logger:        logger.With("component", "api_server"),
	}
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/transactions", s.handleTransactions)
		r.Get("/insights/categories", s.handleCategories)
		r.Get("/insights/daily", s.handleDaily)
		r.Post("/classify", s.handleClassify)
		r.Get("/capture/pending", s.handlePending)
	})

	return r
}

// Run serves until ctx is canceled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info("api server stopped")
		return nil
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if s.lister == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "writer does not support listing"})
		return
	}

	limit, err := intParam(r, "limit", DefaultLimit, 1, MaxLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	txns, err := s.lister.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list transactions", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list transactions"})
		return
	}
	if txns == nil {
		txns = []*api.Transaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if totaler, ok := s.lister.(CategoryTotaler); ok {
		totals, err := totaler.CategoryTotals(r.Context())
		if err != nil {
			s.logger.Error("failed to aggregate categories", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to aggregate categories"})
			return
		}
		writeJSON(w, http.StatusOK, nonNil(totals))
		return
	}

	txns, ok := s.listAll(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, nonNil(insights.ByCategory(txns)))
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", DefaultDays, 1, MaxDays)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	txns, ok := s.listAll(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, insights.Daily(txns, s.now(), days))
}

func (s *Server) listAll(w http.ResponseWriter, r *http.Request) ([]*api.Transaction, bool) {
	if s.lister == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "writer does not support listing"})
		return nil, false
	}
	txns, err := s.lister.List(r.Context(), 0)
	if err != nil {
		s.logger.Error("failed to list transactions", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list transactions"})
		return nil, false
	}
	return txns, true
}

// ClassifyRequest is the body of POST /api/classify.
type ClassifyRequest struct {
	Body   string `json:"body" validate:"required"`
	Sender string `json:"sender"`
}

// ClassifyResponse carries the classification evidence and, for transactions, the
// record and the category it would be filed under.
type ClassifyResponse struct {
	Classification api.ClassificationResult `json:"classification"`
	Record         *api.TransactionRecord   `json:"record"`
	Category       string                   `json:"category,omitempty"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := s.validate.StructCtx(r.Context(), req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed: " + err.Error()})
		return
	}
	if len(req.Body) > s.maxBodyLength {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: capture.ErrBodyTooLong.Error()})
		return
	}

	resp := ClassifyResponse{
		Classification: s.classifier.Classify(req.Body, req.Sender),
		Record: s.builder.Build(api.RawMessage{
			Body:       req.Body,
			Sender:     req.Sender,
			ReceivedAt: s.now(),
		}),
	}
	if resp.Record != nil {
		resp.Category = s.labels.Lookup(req.Body, resp.Record.Direction)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePending(w http.ResponseWriter, _ *http.Request) {
	if s.pending == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	msg, ok := s.pending.Take()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, pendingMessage{
		ID:         msg.ID,
		Body:       msg.Body,
		Sender:     msg.Sender,
		ReceivedAt: msg.ReceivedAt.UTC().Format(time.RFC3339),
		Source:     msg.Source,
	})
}

type pendingMessage struct {
	ID         string `json:"id"`
	Body       string `json:"body"`
	Sender     string `json:"sender"`
	ReceivedAt string `json:"receivedAt"`
	Source     string `json:"source"`
}

type paramError struct {
	name string
	min  int
	max  int
}

func (e *paramError) Error() string {
	return e.name + " must be an integer between " + strconv.Itoa(e.min) + " and " + strconv.Itoa(e.max)
}

func intParam(r *http.Request, name string, def, minVal, maxVal int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < minVal || n > maxVal {
		return 0, &paramError{name: name, min: minVal, max: maxVal}
	}
	return n, nil
}

func nonNil(totals []insights.CategoryTotal) []insights.CategoryTotal {
	if totals == nil {
		return []insights.CategoryTotal{}
	}
	return totals
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
