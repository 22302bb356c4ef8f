package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const createScansTable = `CREATE TABLE IF NOT EXISTS scans (
	id                UUID PRIMARY KEY,
	user_id           TEXT,
	image_name        TEXT NOT NULL,
	lottery_type      TEXT NOT NULL,
	blocks            JSONB NOT NULL DEFAULT '[]',
	extracted_numbers JSONB NOT NULL DEFAULT '[]',
	ticket_id         TEXT NOT NULL DEFAULT '',
	confidence        DOUBLE PRECISION NOT NULL,
	status            TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS scans_user_created_idx ON scans (user_id, created_at DESC);`

// PostgresStore keeps the scan history in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore connects to dsn, checks the connection and creates the
// scans table if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createScansTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create scans table: %w", err)
	}
	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) SaveScan(ctx context.Context, rec *ScanRecord) error {
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()

	blocksJSON, err := json.Marshal(rec.Blocks)
	if err != nil {
		return err
	}
	numbersJSON, err := json.Marshal(rec.Numbers)
	if err != nil {
		return err
	}

	var userID *string
	if rec.UserID != "" {
		userID = &rec.UserID
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO scans (id, user_id, image_name, lottery_type, blocks, extracted_numbers, ticket_id, confidence, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, userID, rec.ImageName, rec.LotteryType, blocksJSON, numbersJSON, rec.TicketID, rec.Confidence, rec.Status, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

func (s *PostgresStore) ScansByUser(ctx context.Context, userID string) ([]ScanHistoryItem, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, extracted_numbers, confidence, status, created_at
		 FROM scans WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, historyLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	return collectScanHistory(rows)
}

func (s *PostgresStore) Scan(ctx context.Context, id string) (*ScanRecord, error) {
	if uuid.Validate(id) != nil {
		return nil, errScanNotFound
	}

	var rec ScanRecord
	var userID *string
	var blocksJSON, numbersJSON []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, image_name, lottery_type, blocks, extracted_numbers, ticket_id, confidence, status, created_at
		 FROM scans WHERE id = $1`, id,
	).Scan(&rec.ID, &userID, &rec.ImageName, &rec.LotteryType, &blocksJSON, &numbersJSON, &rec.TicketID, &rec.Confidence, &rec.Status, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errScanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query scan: %w", err)
	}

	if userID != nil {
		rec.UserID = *userID
	}
	if err := json.Unmarshal(blocksJSON, &rec.Blocks); err != nil {
		return nil, fmt.Errorf("decode blocks: %w", err)
	}
	if err := json.Unmarshal(numbersJSON, &rec.Numbers); err != nil {
		return nil, fmt.Errorf("decode numbers: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func collectScanHistory(rows pgx.Rows) ([]ScanHistoryItem, error) {
	var items []ScanHistoryItem
	for rows.Next() {
		var item ScanHistoryItem
		var numbersJSON []byte
		if err := rows.Scan(&item.ID, &numbersJSON, &item.Confidence, &item.Status, &item.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(numbersJSON, &item.ExtractedNumbers); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// openStore returns a PostgreSQL store when dsn is set and reachable and
// an in-memory store otherwise.
func openStore(ctx context.Context, dsn string, logger *zap.Logger) ScanStore {
	if dsn == "" {
		logger.Info("no database configured, keeping scan history in memory")
		return NewMemoryStore()
	}
	pg, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		logger.Warn("database not available, keeping scan history in memory", zap.Error(err))
		return NewMemoryStore()
	}
	logger.Info("connected to database")
	return pg
}
