// Package database provides the PostgreSQL scan journal.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/asean-events/checkin-station/internal/config"
	"github.com/asean-events/checkin-station/internal/models"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// Repository defines the interface for scan journal operations.
type Repository interface {
	// Record appends a delivered verification outcome. The entry's ID and
	// CreatedAt are filled in when empty.
	Record(ctx context.Context, entry *models.JournalEntry) error

	// Recent returns the latest entries, newest first.
	Recent(ctx context.Context, limit int) ([]models.JournalEntry, error)

	// Close closes the database connection.
	Close()
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepository connects to the database and creates the journal
// table when missing.
func NewPostgresRepository(cfg *config.Config, logger *zap.Logger) (*PostgresRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &PostgresRepository{
		pool:   pool,
		logger: logger,
	}

	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Connected to PostgreSQL database")
	return repo, nil
}

func (r *PostgresRepository) migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS scan_journal (
			id UUID PRIMARY KEY,
			session_id VARCHAR(64) NOT NULL,
			event_id BIGINT,
			code VARCHAR(512) DEFAULT '',
			source VARCHAR(32) NOT NULL,
			ok BOOLEAN NOT NULL,
			message TEXT NOT NULL,
			participant_id BIGINT,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_scan_journal_created_at ON scan_journal(created_at);
		CREATE INDEX IF NOT EXISTS idx_scan_journal_session_id ON scan_journal(session_id);
	`

	_, err := r.pool.Exec(ctx, query)
	return err
}

// Record appends an entry to the journal.
func (r *PostgresRepository) Record(ctx context.Context, entry *models.JournalEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO scan_journal (id, session_id, event_id, code, source, ok, message, participant_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.SessionID,
		entry.EventID,
		entry.Code,
		string(entry.Source),
		entry.OK,
		entry.Message,
		entry.ParticipantID,
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to record scan", zap.String("session_id", entry.SessionID), zap.Error(err))
		return fmt.Errorf("failed to record scan: %w", err)
	}

	r.logger.Debug("Recorded scan", zap.String("id", entry.ID), zap.String("source", string(entry.Source)))
	return nil
}

// Recent returns the latest journal entries, newest first.
func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]models.JournalEntry, error) {
	limit = clampLimit(limit)

	query := `
		SELECT id, session_id, event_id, code, source, ok, message, participant_id, created_at
		FROM scan_journal
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		r.logger.Error("Failed to query journal", zap.Error(err))
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	entries := []models.JournalEntry{}
	for rows.Next() {
		var (
			entry  models.JournalEntry
			source string
		)
		err := rows.Scan(
			&entry.ID,
			&entry.SessionID,
			&entry.EventID,
			&entry.Code,
			&source,
			&entry.OK,
			&entry.Message,
			&entry.ParticipantID,
			&entry.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan journal row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entry.Source = models.ScanSource(source)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	return entries, nil
}

// Close closes the database connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
	r.logger.Info("Closed database connection")
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	return min(limit, maxRecentLimit)
}
