// File: internal/records/archive.go

package records

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var archiveColumns = []string{"recorded_at", "email", "name", "password", "status", "session_id", "run_id"}

const createArchiveSQL = `
    CREATE TABLE IF NOT EXISTS registrations (
        id BIGSERIAL PRIMARY KEY,
        recorded_at TIMESTAMPTZ NOT NULL,
        email TEXT NOT NULL,
        name TEXT NOT NULL,
        password TEXT NOT NULL,
        status TEXT NOT NULL,
        session_id TEXT,
        run_id TEXT
    );
`

// Archive provides a PostgreSQL mirror of the registration journal for
// setups where the CSV file is not durable enough.
type Archive struct {
	pool DBPool
	log  *zap.Logger
}

// NewArchive creates an archive instance and verifies the connection.
func NewArchive(ctx context.Context, pool DBPool, logger *zap.Logger) (*Archive, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Archive{
		pool: pool,
		log:  logger.Named("archive"),
	}, nil
}

// Init creates the registrations table when it does not exist yet.
func (a *Archive) Init(ctx context.Context) error {
	if _, err := a.pool.Exec(ctx, createArchiveSQL); err != nil {
		return fmt.Errorf("failed to create registrations table: %w", err)
	}
	return nil
}

// Save inserts a single record.
func (a *Archive) Save(ctx context.Context, rec Record) error {
	query := `
        INSERT INTO registrations (recorded_at, email, name, password, status, session_id, run_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7);
    `
	_, err := a.pool.Exec(ctx, query,
		rec.Timestamp.UTC(), rec.Email, rec.Name, rec.Password, rec.Status, rec.SessionID, rec.RunID)
	if err != nil {
		return fmt.Errorf("failed to insert registration record: %w", err)
	}
	return nil
}

// Import bulk-loads records, typically a whole journal, and returns the
// number of rows copied.
func (a *Archive) Import(ctx context.Context, recs []Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	rows := make([][]interface{}, len(recs))
	for i, rec := range recs {
		rows[i] = []interface{}{
			rec.Timestamp.UTC(), rec.Email, rec.Name, rec.Password, rec.Status, rec.SessionID, rec.RunID,
		}
	}

	copyCount, err := a.pool.CopyFrom(
		ctx,
		pgx.Identifier{"registrations"},
		archiveColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to copy registration records: %w", err)
	}
	if int(copyCount) != len(recs) {
		return copyCount, fmt.Errorf("mismatch in copied record count: expected %d, got %d", len(recs), copyCount)
	}

	a.log.Info("Imported registration records.", zap.Int64("count", copyCount))
	return copyCount, nil
}

// Recent returns the newest records, most recent first. A limit of zero or
// less defaults to 20.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
        SELECT recorded_at, email, name, password, status, session_id, run_id
        FROM registrations
        ORDER BY recorded_at DESC
        LIMIT $1;
    `
	rows, err := a.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query registration records: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Timestamp, &rec.Email, &rec.Name, &rec.Password, &rec.Status, &rec.SessionID, &rec.RunID); err != nil {
			return nil, fmt.Errorf("failed to scan registration row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return recs, nil
}
