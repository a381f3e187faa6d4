// Package daemon wires a capture reader, the transaction processor and a writer
// into a running pipeline.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/smsexpensor/internal/plugins"
	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/capture"
	"github.com/ArionMiles/smsexpensor/pkg/classifier"
	"github.com/ArionMiles/smsexpensor/pkg/config"
	"github.com/ArionMiles/smsexpensor/pkg/dedup"
	"github.com/ArionMiles/smsexpensor/pkg/labels"
	"github.com/ArionMiles/smsexpensor/pkg/server"
)

// channelSize is the capacity of the pipeline channels.
const channelSize = 100

// Options holds the processing dependencies shared by every run.
type Options struct {
	// Classifier defaults to classifier.Default().
	Classifier *classifier.Classifier
	// Labels categorizes transactions. Nil files everything under the defaults.
	Labels *labels.Labels
	// Dedup drops repeated deliveries. Nil disables de-duplication.
	Dedup dedup.Store
	// Pending is exposed by the API server. Optional.
	Pending *capture.PendingSlot
}

// Runner manages the daemon lifecycle.
type Runner struct {
	registry   *plugins.Registry
	httpClient *http.Client
	opts       Options
	logger     *slog.Logger
}

// New creates a new daemon runner.
func New(registry *plugins.Registry, httpClient *http.Client, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		registry:   registry,
		httpClient: httpClient,
		opts:       opts,
		logger:     logger,
	}
}

// Run builds the configured reader and writer and runs the pipeline, plus the API
// server when cfg.HTTPAddr is set. It blocks until the context is canceled, or until a
// one-shot reader is exhausted and no API server is running.
func (r *Runner) Run(ctx context.Context, cfg config.Config) error {
	if cfg.ReaderPlugin == "" {
		return errors.New("EXPENSOR_READER is required")
	}
	if cfg.WriterPlugin == "" {
		return errors.New("EXPENSOR_WRITER is required")
	}

	r.logger.Info("starting smsexpensor daemon",
		"reader", cfg.ReaderPlugin,
		"writer", cfg.WriterPlugin,
	)

	reader, err := r.registry.CreateReader(
		cfg.ReaderPlugin,
		r.httpClient,
		cfg.ReaderConfig,
		r.logger.With("plugin", cfg.ReaderPlugin),
	)
	if err != nil {
		return fmt.Errorf("creating reader: %w", err)
	}

	writer, err := r.registry.CreateWriter(
		cfg.WriterPlugin,
		r.httpClient,
		cfg.WriterConfig,
		r.logger.With("plugin", cfg.WriterPlugin),
	)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	if c, ok := writer.(interface{ Close() }); ok {
		defer c.Close()
	}

	var serverDone chan error
	if cfg.HTTPAddr != "" {
		lister, _ := writer.(api.Lister)
		if lister == nil {
			r.logger.Warn("writer cannot be read back; transaction endpoints will answer 503", "writer", cfg.WriterPlugin)
		}
		srv := server.New(server.Config{
			Addr:          cfg.HTTPAddr,
			Lister:        lister,
			Classifier:    r.opts.Classifier,
			Labels:        r.opts.Labels,
			Pending:       r.opts.Pending,
			MaxBodyLength: cfg.MaxBodyLength,
		}, r.logger)

		serverDone = make(chan error, 1)
		go func() {
			serverDone <- srv.Run(ctx)
		}()
	}

	pipelineErr := r.Pipeline(ctx, reader, writer, cfg.WriterPlugin)

	if serverDone != nil {
		if pipelineErr == nil && ctx.Err() == nil {
			r.logger.Info("pipeline finished, api server running until shutdown")
		}
		if err := <-serverDone; err != nil {
			r.logger.Error("api server error", "error", err)
			pipelineErr = errors.Join(pipelineErr, fmt.Errorf("api server: %w", err))
		}
	}

	r.logger.Info("daemon stopped")
	return pipelineErr
}

// Pipeline connects reader → processor → writer and blocks until the writer
// returns. The writer returns once the reader closes its output and everything
// was flushed, or once ctx is canceled.
func (r *Runner) Pipeline(ctx context.Context, reader api.Reader, writer api.Writer, writerName string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	raw := make(chan *api.RawMessage, channelSize)
	transactions := make(chan *api.Transaction, channelSize)
	ackChan := make(chan string, channelSize)

	readerDone := make(chan error, 1)
	go func() {
		readerDone <- reader.Read(ctx, raw, ackChan)
	}()

	processor := NewProcessor(r.opts, writerName, r.logger)
	go processor.Run(ctx, raw, transactions, ackChan)

	// Writer acknowledgments pass through the processor on their way to the reader.
	written := make(chan string, channelSize)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		processor.Acknowledge(ctx, written, ackChan)
	}()

	r.logger.Info("pipeline started")
	var errs []error
	if err := writer.Write(ctx, transactions, written); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("writer error", "error", err)
		errs = append(errs, fmt.Errorf("writer: %w", err))
	}
	close(written)
	<-relayDone

	// Readers keep draining acknowledgments until their context ends.
	cancel()
	if err := <-readerDone; err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("reader error", "error", err)
		errs = append(errs, fmt.Errorf("reader: %w", err))
	}

	r.logger.Info("pipeline stopped")
	return errors.Join(errs...)
}
