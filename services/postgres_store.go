package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresArchive implements ArchiveStore with PostgreSQL persistence.
type PostgresArchive struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresArchive creates a new PostgreSQL-backed archive.
func NewPostgresArchive(config *PostgresConfig) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresArchive{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresArchive) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		batch_id BIGINT PRIMARY KEY,
		open BOOLEAN NOT NULL,
		submission_count BIGINT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS submissions (
		batch_id BIGINT NOT NULL,
		provider VARCHAR(128) NOT NULL,
		handles BYTEA[] NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (batch_id, provider)
	);

	CREATE TABLE IF NOT EXISTS decryption_requests (
		request_id BIGINT PRIMARY KEY,
		batch_id BIGINT NOT NULL,
		requester VARCHAR(128) NOT NULL,
		fingerprint VARCHAR(64) NOT NULL,
		processed BOOLEAN NOT NULL,
		result BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_batch ON submissions(batch_id);
	CREATE INDEX IF NOT EXISTS idx_requests_batch ON decryption_requests(batch_id);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveBatch upserts a batch record.
func (s *PostgresArchive) SaveBatch(rec *BatchRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO batches (batch_id, open, submission_count, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (batch_id) DO UPDATE SET
		open = EXCLUDED.open,
		submission_count = EXCLUDED.submission_count,
		updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query, rec.ID, rec.Open, rec.SubmissionCount)
	return err
}

// SaveSubmission upserts a provider's submission record.
func (s *PostgresArchive) SaveSubmission(rec *SubmissionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO submissions (batch_id, provider, handles, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (batch_id, provider) DO UPDATE SET
		handles = EXCLUDED.handles,
		updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query, rec.BatchID, rec.Provider, pq.ByteaArray(rec.Handles))
	return err
}

// SaveRequest upserts a decryption request record.
func (s *PostgresArchive) SaveRequest(rec *RequestRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO decryption_requests (request_id, batch_id, requester, fingerprint, processed, result, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, NOW())
	ON CONFLICT (request_id) DO UPDATE SET
		processed = EXCLUDED.processed,
		result = EXCLUDED.result,
		updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.BatchID, rec.Requester, rec.Fingerprint, rec.Processed, int64(rec.Result))
	return err
}

// LoadBatches retrieves all archived batches.
func (s *PostgresArchive) LoadBatches() ([]*BatchRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT batch_id, open, submission_count FROM batches")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BatchRecord
	for rows.Next() {
		rec := &BatchRecord{}
		if err := rows.Scan(&rec.ID, &rec.Open, &rec.SubmissionCount); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadRequests retrieves all archived decryption requests.
func (s *PostgresArchive) LoadRequests() ([]*RequestRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, batch_id, requester, fingerprint, processed, result
		FROM decryption_requests
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RequestRecord
	for rows.Next() {
		rec := &RequestRecord{}
		var result int64
		if err := rows.Scan(&rec.ID, &rec.BatchID, &rec.Requester, &rec.Fingerprint, &rec.Processed, &result); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		rec.Result = uint64(result)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *PostgresArchive) Close() error {
	return s.db.Close()
}
