// Package postgres provides a PostgreSQL writer for transaction storage.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/insights"
	"github.com/ArionMiles/smsexpensor/pkg/writer/buffered"
)

//go:embed 001_create_transactions.sql
var migrationSQL string

const upsertSQL = `
	INSERT INTO transactions (
		message_id, amount, currency, direction, raw_message, sender,
		timestamp, category, source, description
	) VALUES ($1, $2::text::numeric, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (message_id) DO UPDATE SET
		amount = EXCLUDED.amount,
		currency = EXCLUDED.currency,
		direction = EXCLUDED.direction,
		raw_message = EXCLUDED.raw_message,
		sender = EXCLUDED.sender,
		timestamp = EXCLUDED.timestamp,
		category = EXCLUDED.category,
		source = EXCLUDED.source,
		description = EXCLUDED.description,
		updated_at = NOW()
`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Config holds the PostgreSQL writer configuration.
type Config struct {
	// DSN is a full connection string. When set, the discrete fields are ignored.
	DSN string

	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// BatchSize is the number of transactions to buffer before writing.
	BatchSize int
	// FlushInterval is the time between automatic flushes.
	FlushInterval time.Duration

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// Writer writes transactions to a PostgreSQL database.
type Writer struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	buffered *buffered.Writer
}

// New creates a new PostgreSQL writer and applies the schema.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Set defaults
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}

	connStr := cfg.DSN
	if connStr == "" {
		connStr = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
		)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", poolConfig.ConnConfig.Host,
		"port", poolConfig.ConnConfig.Port,
		"database", poolConfig.ConnConfig.Database,
	)

	w := &Writer{
		pool:   pool,
		logger: logger,
	}
	w.buffered = buffered.New(w.writeBatch, buffered.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, logger.With("component", "postgres_buffer"))

	if err := w.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return w, nil
}

func (w *Writer) runMigrations(ctx context.Context) error {
	w.logger.Info("running database migrations")

	if _, err := w.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}

	w.logger.Info("migrations completed successfully")
	return nil
}

// Write consumes transactions from the channel and writes them to PostgreSQL.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	return w.buffered.Write(ctx, in, ackChan)
}

// writeBatch upserts a batch of transactions in one database transaction.
// A redelivered message ID updates the existing row.
func (w *Writer) writeBatch(ctx context.Context, transactions []*api.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, txn := range transactions {
		timestamp := txn.Time()
		if timestamp.IsZero() {
			w.logger.Warn("invalid timestamp format, using current time",
				"timestamp", txn.Timestamp,
				"message_id", txn.MessageID,
			)
			timestamp = time.Now()
		}

		amount := txn.Amount
		if amount == "" {
			amount = "0"
		}

		batch.Queue(upsertSQL,
			txn.MessageID,
			amount,
			string(txn.Currency),
			string(txn.Direction),
			txn.RawMessage,
			txn.Sender,
			timestamp.UTC(),
			txn.Category,
			txn.Source,
			txn.Description,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range transactions {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("upserting transaction %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	w.logger.Debug("wrote transaction batch", "count", len(transactions))
	return nil
}

// List implements api.Lister.
func (w *Writer) List(ctx context.Context, limit int) ([]*api.Transaction, error) {
	query := psql.Select(
		"message_id", "amount::text", "currency", "direction", "raw_message", "sender",
		"timestamp", "category", "source", "description",
	).
		From("transactions").
		OrderBy("timestamp DESC", "id DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list query: %w", err)
	}

	rows, err := w.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var out []*api.Transaction
	for rows.Next() {
		var (
			txn                 api.Transaction
			currency, direction string
			timestamp           time.Time
		)
		if err := rows.Scan(
			&txn.MessageID, &txn.Amount, &currency, &direction, &txn.RawMessage, &txn.Sender,
			&timestamp, &txn.Category, &txn.Source, &txn.Description,
		); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		txn.Currency = api.Currency(currency)
		txn.Direction = api.Direction(direction)
		txn.Timestamp = timestamp.UTC().Format(time.RFC3339)
		out = append(out, &txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}
	return out, nil
}

// CategoryTotals sums debits per category in the database, largest first.
func (w *Writer) CategoryTotals(ctx context.Context) ([]insights.CategoryTotal, error) {
	sql, args, err := psql.Select("category", "SUM(amount)::text", "COUNT(*)").
		From("transactions").
		Where(sq.Eq{"direction": string(api.DirectionDebit)}).
		GroupBy("category").
		OrderBy("SUM(amount) DESC", "category").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building totals query: %w", err)
	}

	rows, err := w.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying category totals: %w", err)
	}
	defer rows.Close()

	var out []insights.CategoryTotal
	for rows.Next() {
		var (
			ct    insights.CategoryTotal
			total string
		)
		if err := rows.Scan(&ct.Category, &total, &ct.Count); err != nil {
			return nil, fmt.Errorf("scanning category total: %w", err)
		}
		if ct.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parsing total %q: %w", total, err)
		}
		out = append(out, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating category totals: %w", err)
	}
	return out, nil
}

// Close closes the database connection pool.
func (w *Writer) Close() {
	if w.pool != nil {
		w.pool.Close()
		w.logger.Info("closed PostgreSQL connection pool")
	}
}
