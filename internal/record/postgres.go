package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/moznion/go-optional"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS indicator_records (
	id          BIGSERIAL PRIMARY KEY,
	recorded_at TIMESTAMPTZ NOT NULL,
	symbol      TEXT NOT NULL,
	rsi         DOUBLE PRECISION,
	rsi_ewma    DOUBLE PRECISION,
	price       DOUBLE PRECISION NOT NULL,
	direction   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS indicator_records_symbol_time_idx
	ON indicator_records (symbol, recorded_at);
`

type PostgresRecorder struct {
	db *sql.DB
}

// OpenPostgres connects with dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return db, nil
}

func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (p *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create indicator_records: %w", err)
	}
	return nil
}

func (p *PostgresRecorder) Record(ctx context.Context, entry Entry) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO indicator_records (recorded_at, symbol, rsi, rsi_ewma, price, direction)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.Time.UTC(), entry.Symbol, nullFloat(entry.RSI), nullFloat(entry.EWMA), entry.Price, entry.Direction,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record for %s: %w", entry.Symbol, err)
	}
	return nil
}

// Latest returns the most recent entry stored for symbol.
func (p *PostgresRecorder) Latest(ctx context.Context, symbol string) (Entry, error) {
	var (
		entry     Entry
		rsi, ewma sql.NullFloat64
	)
	row := p.db.QueryRowContext(ctx,
		`SELECT recorded_at, symbol, rsi, rsi_ewma, price, direction
		 FROM indicator_records WHERE symbol = $1
		 ORDER BY recorded_at DESC, id DESC LIMIT 1`, symbol)
	err := row.Scan(&entry.Time, &entry.Symbol, &rsi, &ewma, &entry.Price, &entry.Direction)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%s: %w", symbol, ErrNoRecord)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to load latest record for %s: %w", symbol, err)
	}
	entry.RSI = fromNull(rsi)
	entry.EWMA = fromNull(ewma)
	return entry, nil
}

func nullFloat(v optional.Option[float64]) sql.NullFloat64 {
	if v.IsNone() {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v.Unwrap(), Valid: true}
}

func fromNull(v sql.NullFloat64) optional.Option[float64] {
	if !v.Valid {
		return optional.None[float64]()
	}
	return optional.Some(v.Float64)
}
