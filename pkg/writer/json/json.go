// Package json implements a Writer that stores transactions in a JSON file.
//
// The file holds one array kept newest first. A transaction whose message ID is
// already stored replaces the stored copy, so redelivered messages are not counted
// twice.
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/writer/buffered"
)

// Writer writes transactions to a JSON file with buffered batching.
type Writer struct {
	filePath     string
	transactions []*api.Transaction
	mu           sync.Mutex
	buffered     *buffered.Writer
	logger       *slog.Logger
}

// Config holds configuration for the JSON writer.
type Config struct {
	// FilePath is the path to the JSON output file.
	FilePath      string
	BatchSize     int
	FlushInterval time.Duration
}

// New creates a new JSON writer.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FilePath == "" {
		return nil, errors.New("json file path is required")
	}

	w := &Writer{
		filePath:     cfg.FilePath,
		transactions: make([]*api.Transaction, 0),
		logger:       logger,
	}

	// Load existing transactions if file exists
	if err := w.loadExisting(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", cfg.FilePath, err)
	}

	bufCfg := buffered.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}
	w.buffered = buffered.New(w.flushBatch, bufCfg, logger.With("component", "json_buffer"))

	logger.Info("json writer initialized", "file", cfg.FilePath, "existing_count", len(w.transactions))
	return w, nil
}

// loadExisting loads existing transactions from the JSON file if it exists.
func (w *Writer) loadExisting() error {
	data, err := os.ReadFile(w.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, &w.transactions)
}

// Write consumes transactions from the input channel and writes them to JSON.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	return w.buffered.Write(ctx, in, ackChan)
}

// flushBatch merges a batch into the stored transactions and rewrites the file.
func (w *Writer) flushBatch(_ context.Context, transactions []*api.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	merged := merge(w.transactions, transactions)

	// Write entire array to file (JSON doesn't support appending)
	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}

	tmp := w.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing json file: %w", err)
	}
	if err := os.Rename(tmp, w.filePath); err != nil {
		return fmt.Errorf("replacing json file: %w", err)
	}

	w.transactions = merged
	w.logger.Debug("wrote transactions to json",
		"batch_count", len(transactions),
		"total_count", len(w.transactions),
	)
	return nil
}

// merge returns stored plus batch, deduplicated by message ID and sorted newest first.
func merge(stored, batch []*api.Transaction) []*api.Transaction {
	index := make(map[string]int, len(stored)+len(batch))
	out := make([]*api.Transaction, 0, len(stored)+len(batch))

	for _, txn := range append(append([]*api.Transaction{}, stored...), batch...) {
		if txn == nil {
			continue
		}
		if txn.MessageID != "" {
			if i, ok := index[txn.MessageID]; ok {
				out[i] = txn
				continue
			}
			index[txn.MessageID] = len(out)
		}
		out = append(out, txn)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time().After(out[j].Time())
	})
	return out
}

// List implements api.Lister.
func (w *Writer) List(_ context.Context, limit int) ([]*api.Transaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.transactions)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*api.Transaction, n)
	copy(out, w.transactions[:n])
	return out, nil
}

// TransactionCount returns the total number of transactions stored.
func (w *Writer) TransactionCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.transactions)
}
