// Package sheets implements a Writer that appends transactions to a Google Sheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/writer/buffered"
)

// Defaults for Config.
const (
	DefaultSheetTitle = "SMS Transactions"
	DefaultSheetName  = "Transactions"
	DefaultRetryDelay = time.Minute
	retryAttempts     = 3
)

// Header is the first row of a sheet created by the writer.
var Header = []any{"Timestamp", "Sender", "Amount", "Currency", "Direction", "Category", "Description", "Source", "Message ID", "Message"}

// Config holds configuration for the Sheets writer.
type Config struct {
	// SheetID selects an existing spreadsheet. A new one titled SheetTitle is
	// created when it is empty or cannot be opened.
	SheetID    string
	SheetTitle string
	// SheetName is the tab transactions are appended to. It is added to an
	// existing spreadsheet when missing.
	SheetName string
	// BatchSize and FlushInterval tune batching; see buffered.Config.
	BatchSize     int
	FlushInterval time.Duration
	// RetryDelay is the wait after a rate-limited or failed append.
	RetryDelay time.Duration
}

// Writer appends transactions to one tab of a spreadsheet in batches.
type Writer struct {
	client        *sheets.Service
	spreadsheetID string
	tab           string
	retryDelay    time.Duration
	buffered      *buffered.Writer
	logger        *slog.Logger
}

// New opens or creates the spreadsheet and makes sure the tab exists.
func New(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SheetTitle == "" {
		cfg.SheetTitle = DefaultSheetTitle
	}
	if cfg.SheetName == "" {
		cfg.SheetName = DefaultSheetName
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	ctx := context.Background()
	client, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	w := &Writer{
		client:     client,
		tab:        cfg.SheetName,
		retryDelay: cfg.RetryDelay,
		logger:     logger.With("component", "sheets_writer"),
	}

	if w.spreadsheetID, err = w.open(ctx, cfg); err != nil {
		return nil, fmt.Errorf("initializing spreadsheet: %w", err)
	}

	w.buffered = buffered.New(w.appendBatch, buffered.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, logger.With("component", "sheets_buffer"))

	w.logger.Info("sheets writer initialized", "spreadsheet_id", w.spreadsheetID, "tab", w.tab)
	return w, nil
}

// open returns the ID of a spreadsheet that has the configured tab with a header.
func (w *Writer) open(ctx context.Context, cfg Config) (string, error) {
	if cfg.SheetID != "" {
		ss, err := w.client.Spreadsheets.Get(cfg.SheetID).Context(ctx).Do()
		if err == nil {
			w.logger.Info("using existing spreadsheet", "title", ss.Properties.Title, "id", ss.SpreadsheetId)
			if hasTab(ss, w.tab) {
				return ss.SpreadsheetId, nil
			}
			if err := w.addTab(ctx, ss.SpreadsheetId); err != nil {
				return "", err
			}
			return ss.SpreadsheetId, w.writeHeader(ctx, ss.SpreadsheetId)
		}
		w.logger.Warn("failed to open spreadsheet, creating a new one", "id", cfg.SheetID, "error", err)
	}

	ss, err := w.client.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: cfg.SheetTitle},
		Sheets: []*sheets.Sheet{{
			Properties: &sheets.SheetProperties{Title: w.tab},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("creating spreadsheet: %w", err)
	}
	w.logger.Info("created spreadsheet", "title", cfg.SheetTitle, "id", ss.SpreadsheetId)

	return ss.SpreadsheetId, w.writeHeader(ctx, ss.SpreadsheetId)
}

func hasTab(ss *sheets.Spreadsheet, name string) bool {
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == name {
			return true
		}
	}
	return false
}

func (w *Writer) addTab(ctx context.Context, spreadsheetID string) error {
	_, err := w.client.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: w.tab},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("adding tab %q: %w", w.tab, err)
	}
	w.logger.Info("added tab", "tab", w.tab)
	return nil
}

func (w *Writer) writeHeader(ctx context.Context, spreadsheetID string) error {
	_, err := w.client.Spreadsheets.Values.Update(spreadsheetID, Range(w.tab, 1), &sheets.ValueRange{
		Values: [][]any{Header},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	return nil
}

// Range returns the A1 range covering all Header columns of one row.
func Range(tab string, row int) string {
	last := rune('A' + len(Header) - 1)
	return fmt.Sprintf("'%s'!A%d:%c%d", tab, row, last, row)
}

// Write consumes transactions from the input channel and appends them to the sheet.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	return w.buffered.Write(ctx, in, ackChan)
}

// Row renders a transaction in Header order. The amount is left as text so that
// USER_ENTERED input turns it into a number.
func Row(t *api.Transaction) []any {
	return []any{
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

// appendBatch writes a batch in one API call, retrying while the API is rate
// limited or unavailable.
func (w *Writer) appendBatch(ctx context.Context, batch []*api.Transaction) error {
	values := make([][]any, 0, len(batch))
	for _, t := range batch {
		values = append(values, Row(t))
	}
	req := &sheets.ValueRange{Values: values}

	err := retry.Do(
		func() error {
			_, err := w.client.Spreadsheets.Values.Append(w.spreadsheetID, Range(w.tab, 2), req).
				ValueInputOption("USER_ENTERED").
				InsertDataOption("INSERT_ROWS").
				Context(ctx).
				Do()
			return err
		},
		retry.RetryIf(func(err error) bool {
			if retryable(err) {
				w.logger.Warn("sheets append failed, will retry", "error", err)
				return true
			}
			return false
		}),
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.Delay(w.retryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("appending %d rows: %w", len(batch), err)
	}
	return nil
}

// retryable reports whether err is a quota or server-side failure.
func retryable(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
}

// SpreadsheetID returns the ID of the spreadsheet being written to.
func (w *Writer) SpreadsheetID() string {
	return w.spreadsheetID
}

// Pending returns the number of transactions waiting for the next append.
func (w *Writer) Pending() int {
	return w.buffered.Pending()
}
