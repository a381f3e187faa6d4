// Package csv implements a Writer that appends transactions to a CSV file.
//
// The file is an export: rows are only ever appended, and a file written by an
// older column layout is refused rather than extended with mismatched rows.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/writer/buffered"
)

// Header is the first row of every file written.
var Header = []string{"Timestamp", "Sender", "Amount", "Currency", "Direction", "Category", "Description", "Source", "Message ID", "Message"}

// ErrHeaderMismatch is returned when an existing file has a different header.
var ErrHeaderMismatch = errors.New("csv header does not match")

// Config holds configuration for the CSV writer.
type Config struct {
	// FilePath is the path to the CSV output file.
	FilePath      string
	BatchSize     int
	FlushInterval time.Duration
}

// Writer appends transactions to a CSV file in batches.
type Writer struct {
	path     string
	mu       sync.Mutex
	file     *os.File
	csv      *csv.Writer
	buffered *buffered.Writer
	logger   *slog.Logger
}

// New opens cfg.FilePath for appending, writing Header to a new file.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FilePath == "" {
		return nil, errors.New("csv file path is required")
	}

	file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening csv file: %w", err)
	}

	w := &Writer{
		path:   cfg.FilePath,
		file:   file,
		csv:    csv.NewWriter(file),
		logger: logger.With("component", "csv_writer"),
	}
	if err := w.prepare(); err != nil {
		return nil, errors.Join(err, file.Close())
	}

	w.buffered = buffered.New(w.appendRows, buffered.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, logger.With("component", "csv_buffer"))

	w.logger.Info("csv writer initialized", "file", cfg.FilePath)
	return w, nil
}

// prepare writes the header to an empty file and checks it on an existing one.
func (w *Writer) prepare() error {
	first, err := csv.NewReader(w.file).Read()
	switch {
	case errors.Is(err, io.EOF):
		return w.writeRows([][]string{Header})
	case err != nil:
		return fmt.Errorf("reading csv header: %w", err)
	case !slices.Equal(first, Header):
		return fmt.Errorf("%s: %w: got %v", w.path, ErrHeaderMismatch, first)
	}
	return nil
}

// Row renders a transaction in Header order.
func Row(t *api.Transaction) []string {
	return []string{
		t.Timestamp,
		t.Sender,
		t.Amount,
		string(t.Currency),
		string(t.Direction),
		t.Category,
		t.Description,
		t.Source,
		t.MessageID,
		t.RawMessage,
	}
}

// Write consumes transactions from in and appends them to the file. The file is
// closed when Write returns.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	defer func() {
		if err := w.Close(); err != nil {
			w.logger.Error("failed to close csv file", "error", err)
		}
	}()
	return w.buffered.Write(ctx, in, ackChan)
}

func (w *Writer) appendRows(_ context.Context, batch []*api.Transaction) error {
	rows := make([][]string, 0, len(batch))
	for _, t := range batch {
		rows = append(rows, Row(t))
	}
	return w.writeRows(rows)
}

func (w *Writer) writeRows(rows [][]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.csv.WriteAll(rows); err != nil {
		return fmt.Errorf("writing csv rows: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("syncing csv file: %w", err)
	}
	return nil
}

// Close closes the file. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	w.csv.Flush()
	err := errors.Join(w.csv.Error(), w.file.Close())
	w.file = nil
	if err != nil {
		return fmt.Errorf("closing csv file: %w", err)
	}
	return nil
}
