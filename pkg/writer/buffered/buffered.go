// Package buffered batches transactions for writers whose destination prefers bulk
// writes. A batch is acknowledged only after the destination accepted it.
package buffered

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ArionMiles/smsexpensor/pkg/api"
)

// Defaults for Config.
const (
	DefaultBatchSize     = 10
	DefaultFlushInterval = 30 * time.Second
)

// Flusher persists one batch. The slice is owned by the callee.
type Flusher func(ctx context.Context, batch []*api.Transaction) error

// Config controls when a batch is flushed: when it reaches BatchSize, every
// FlushInterval, and when the input closes.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// Stats counts flush outcomes since the writer was created.
type Stats struct {
	Batches int64
	Written int64
	// Failed counts transactions in batches the flusher rejected.
	Failed int64
}

// Writer accumulates transactions and hands them to a Flusher in batches.
// A transaction redelivered while its first copy is still pending replaces that
// copy instead of being written twice.
type Writer struct {
	flusher Flusher
	cfg     Config
	logger  *slog.Logger

	mu      sync.Mutex
	pending []*api.Transaction
	byID    map[string]int

	batches atomic.Int64
	written atomic.Int64
	failed  atomic.Int64
}

// New creates a Writer around flusher.
func New(flusher Flusher, cfg Config, logger *slog.Logger) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		flusher: flusher,
		cfg:     cfg,
		logger:  logger,
		pending: make([]*api.Transaction, 0, cfg.BatchSize),
		byID:    make(map[string]int, cfg.BatchSize),
	}
}

// Write batches transactions from in until it is closed or ctx is done.
// Once in is closed the last batch is flushed and its error, if any, returned.
// On cancellation the pending batch is still written but not acknowledged.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	w.logger.Info("buffered writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("buffered writer stopping", "pending", w.Pending())
			if err := w.commit(context.Background(), w.take(), nil); err != nil {
				w.logger.Error("failed to flush on shutdown", "error", err)
			}
			return ctx.Err()

		case <-ticker.C:
			if err := w.commit(ctx, w.take(), ackChan); err != nil {
				w.logger.Error("failed to flush on interval", "error", err)
			}

		case txn, ok := <-in:
			if !ok {
				return w.commit(ctx, w.take(), ackChan)
			}
			if w.add(txn) < w.cfg.BatchSize {
				continue
			}
			if err := w.commit(ctx, w.take(), ackChan); err != nil {
				w.logger.Error("failed to flush full batch", "error", err)
			}
		}
	}
}

// Pending returns the number of transactions waiting for the next flush.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Stats returns the flush counters.
func (w *Writer) Stats() Stats {
	return Stats{
		Batches: w.batches.Load(),
		Written: w.written.Load(),
		Failed:  w.failed.Load(),
	}
}

func (w *Writer) add(txn *api.Transaction) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if txn.MessageID != "" {
		if i, ok := w.byID[txn.MessageID]; ok {
			w.pending[i] = txn
			w.logger.Debug("coalesced redelivered transaction", "message_id", txn.MessageID)
			return len(w.pending)
		}
		w.byID[txn.MessageID] = len(w.pending)
	}
	w.pending = append(w.pending, txn)
	return len(w.pending)
}

func (w *Writer) take() []*api.Transaction {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 {
		return nil
	}
	batch := w.pending
	w.pending = make([]*api.Transaction, 0, w.cfg.BatchSize)
	clear(w.byID)
	return batch
}

// commit flushes batch and acknowledges its message IDs. A rejected batch is
// dropped unacknowledged so the source can redeliver it.
func (w *Writer) commit(ctx context.Context, batch []*api.Transaction, ackChan chan<- string) error {
	if len(batch) == 0 {
		return nil
	}

	if err := w.flusher(ctx, batch); err != nil {
		w.failed.Add(int64(len(batch)))
		return fmt.Errorf("flushing %d transactions: %w", len(batch), err)
	}
	w.batches.Add(1)
	w.written.Add(int64(len(batch)))
	w.logger.Info("flushed transactions", "count", len(batch))

	if ackChan == nil {
		return nil
	}
	for _, txn := range batch {
		if txn.MessageID == "" {
			continue
		}
		select {
		case ackChan <- txn.MessageID:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}
