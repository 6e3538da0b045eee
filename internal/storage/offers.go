package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// TrackedOffer is an offer the watcher polls for status changes.
type TrackedOffer struct {
	OfferID    string
	TelegramID int64
	Status     string
	GMV        float64
	Payout     float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OfferStore persists offers created through the bot.
type OfferStore interface {
	TrackOffer(offer *TrackedOffer) error
	GetTrackedOffer(offerID string) (*TrackedOffer, error)
	GetOffersByUser(telegramID int64) ([]TrackedOffer, error)
	GetAllTrackedOffers() ([]TrackedOffer, error)
	UpdateOfferStatus(offerID, status string) error
	UntrackOffer(offerID string) error
	PruneSettledOffers(olderThan time.Duration, settled []string) (int64, error)
}

// TrackOffer starts tracking an offer, replacing any earlier record.
func (s *SQLiteStore) TrackOffer(offer *TrackedOffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = now
	}
	offer.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO tracked_offers (offer_id, telegram_id, status, gmv, payout, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(offer_id) DO UPDATE SET
			telegram_id = excluded.telegram_id,
			status = excluded.status,
			gmv = excluded.gmv,
			payout = excluded.payout,
			updated_at = excluded.updated_at
	`, offer.OfferID, offer.TelegramID, offer.Status, offer.GMV, offer.Payout, offer.CreatedAt, offer.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to track offer: %w", err)
	}
	return nil
}

// GetTrackedOffer retrieves a single offer by ID.
// Returns nil, nil if the offer is not tracked.
func (s *SQLiteStore) GetTrackedOffer(offerID string) (*TrackedOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var o TrackedOffer
	err := s.db.QueryRow(
		`SELECT offer_id, telegram_id, status, gmv, payout, created_at, updated_at FROM tracked_offers WHERE offer_id = ?`,
		offerID,
	).Scan(&o.OfferID, &o.TelegramID, &o.Status, &o.GMV, &o.Payout, &o.CreatedAt, &o.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}

	return &o, nil
}

// GetOffersByUser retrieves the offers of a user, newest first.
func (s *SQLiteStore) GetOffersByUser(telegramID int64) ([]TrackedOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT offer_id, telegram_id, status, gmv, payout, created_at, updated_at FROM tracked_offers WHERE telegram_id = ? ORDER BY created_at DESC`,
		telegramID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query offers: %w", err)
	}
	return scanOffers(rows)
}

// GetAllTrackedOffers retrieves all offers across all users (for polling).
func (s *SQLiteStore) GetAllTrackedOffers() ([]TrackedOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT offer_id, telegram_id, status, gmv, payout, created_at, updated_at FROM tracked_offers`)
	if err != nil {
		return nil, fmt.Errorf("failed to query all offers: %w", err)
	}
	return scanOffers(rows)
}

func scanOffers(rows *sql.Rows) ([]TrackedOffer, error) {
	defer rows.Close()

	var offers []TrackedOffer
	for rows.Next() {
		var o TrackedOffer
		if err := rows.Scan(&o.OfferID, &o.TelegramID, &o.Status, &o.GMV, &o.Payout, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers = append(offers, o)
	}

	return offers, rows.Err()
}

// UpdateOfferStatus records a new status for an offer.
func (s *SQLiteStore) UpdateOfferStatus(offerID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		`UPDATE tracked_offers SET status = ?, updated_at = ? WHERE offer_id = ?`,
		status, time.Now(), offerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update offer status: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("offer not found")
	}
	return nil
}

// UntrackOffer stops tracking an offer.
func (s *SQLiteStore) UntrackOffer(offerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM tracked_offers WHERE offer_id = ?`, offerID)
	if err != nil {
		return fmt.Errorf("failed to untrack offer: %w", err)
	}
	return nil
}

// PruneSettledOffers removes offers in one of the settled statuses that
// have not changed for the given duration.
func (s *SQLiteStore) PruneSettledOffers(olderThan time.Duration, settled []string) (int64, error) {
	if len(settled) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	args := []any{cutoff}
	placeholders := ""
	for i, status := range settled {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, status)
	}

	result, err := s.db.Exec(
		`DELETE FROM tracked_offers WHERE updated_at < ? AND status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune settled offers: %w", err)
	}

	return result.RowsAffected()
}
