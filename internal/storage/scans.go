package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// ScanRecord is one scanned item and how far it got in the wizard.
type ScanRecord struct {
	ItemID         string
	TelegramID     int64
	RunID          string
	Category       string
	Condition      string
	Confidence     float64
	EstimatedValue *float64
	ItemType       string
	Step           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ScanHistoryStore records scanned items per user.
type ScanHistoryStore interface {
	SaveScan(rec *ScanRecord) error
	GetRecentScans(telegramID int64, limit int) ([]ScanRecord, error)
}

// SaveScan inserts or updates a scan by item id. CreatedAt is kept from
// the first save.
func (s *SQLiteStore) SaveScan(rec *ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	var value sql.NullFloat64
	if rec.EstimatedValue != nil {
		value = sql.NullFloat64{Float64: *rec.EstimatedValue, Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO scan_history (item_id, telegram_id, run_id, category, condition, confidence, estimated_value, item_type, step, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			run_id = excluded.run_id,
			category = excluded.category,
			condition = excluded.condition,
			confidence = excluded.confidence,
			estimated_value = excluded.estimated_value,
			item_type = excluded.item_type,
			step = excluded.step,
			updated_at = excluded.updated_at
	`, rec.ItemID, rec.TelegramID, rec.RunID, rec.Category, rec.Condition, rec.Confidence,
		value, rec.ItemType, rec.Step, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save scan: %w", err)
	}
	return nil
}

// GetRecentScans returns the latest scans of a user, newest first.
func (s *SQLiteStore) GetRecentScans(telegramID int64, limit int) ([]ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT item_id, telegram_id, run_id, category, condition, confidence, estimated_value, item_type, step, created_at, updated_at
		FROM scan_history WHERE telegram_id = ?
		ORDER BY updated_at DESC LIMIT ?
	`, telegramID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	var scans []ScanRecord
	for rows.Next() {
		var rec ScanRecord
		var value sql.NullFloat64
		if err := rows.Scan(&rec.ItemID, &rec.TelegramID, &rec.RunID, &rec.Category, &rec.Condition,
			&rec.Confidence, &value, &rec.ItemType, &rec.Step, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan scan record: %w", err)
		}
		if value.Valid {
			v := value.Float64
			rec.EstimatedValue = &v
		}
		scans = append(scans, rec)
	}

	return scans, rows.Err()
}
