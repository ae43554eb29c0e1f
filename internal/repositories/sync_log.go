package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/pubkytree/internal/models"
)

// SyncLogRepository appends and lists [models.SyncRecord] rows in sync_log.
type SyncLogRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSyncLogRepository creates a new SyncLogRepository with the given database connection
func NewSyncLogRepository(db *sql.DB) *SyncLogRepository {
	return &SyncLogRepository{db: db, now: time.Now}
}

// Record stores the outcome of one remote operation. A nil err is a success.
func (r *SyncLogRepository) Record(ctx context.Context, operation, object string, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}

	query := `
		INSERT INTO sync_log (operation, object, success, message, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, execErr := r.db.ExecContext(ctx, query, operation, object, err == nil, message, r.now().UTC()); execErr != nil {
		return fmt.Errorf("failed to insert sync record: %w", execErr)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (r *SyncLogRepository) Recent(ctx context.Context, limit int) ([]models.SyncRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, operation, object, success, message, created_at
		FROM sync_log
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	defer rows.Close()

	records := []models.SyncRecord{}
	for rows.Next() {
		var rec models.SyncRecord
		if err := rows.Scan(&rec.ID, &rec.Operation, &rec.Object, &rec.Success, &rec.Message, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync log: %w", err)
	}
	return records, nil
}

// LastSuccess returns the time of the newest successful record, or nil.
func (r *SyncLogRepository) LastSuccess(ctx context.Context) (*time.Time, error) {
	var at time.Time
	query := "SELECT created_at FROM sync_log WHERE success = 1 ORDER BY id DESC LIMIT 1"
	err := r.db.QueryRowContext(ctx, query).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last sync: %w", err)
	}
	return &at, nil
}
