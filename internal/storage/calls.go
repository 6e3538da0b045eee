package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CallLogEntry is one recorded backend call of the harness.
type CallLogEntry struct {
	ID             string
	Label          string
	Method         string
	Path           string
	Status         int
	OK             bool
	RequestHeaders map[string]string
	RequestPayload any
	ResponseBody   any
	CreatedAt      time.Time
}

// CallLogStore persists the harness result log.
type CallLogStore interface {
	AddCall(entry *CallLogEntry) error
	GetRecentCalls(limit int) ([]CallLogEntry, error)
	ClearCalls() error
}

// AddCall records a call. The Authorization header is stored redacted.
func (s *SQLiteStore) AddCall(entry *CallLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	headersJSON, err := json.Marshal(RedactHeaders(entry.RequestHeaders))
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}
	payloadJSON, err := marshalNullable(entry.RequestPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	bodyJSON, err := marshalNullable(entry.ResponseBody)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO call_log (id, label, method, path, status, ok, request_headers, request_payload, response_body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Label, entry.Method, entry.Path, entry.Status, entry.OK,
		string(headersJSON), payloadJSON, bodyJSON, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add call: %w", err)
	}
	return nil
}

// GetRecentCalls returns the latest calls, newest first.
func (s *SQLiteStore) GetRecentCalls(limit int) ([]CallLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, label, method, path, status, ok, request_headers, request_payload, response_body, created_at
		FROM call_log ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query calls: %w", err)
	}
	defer rows.Close()

	var calls []CallLogEntry
	for rows.Next() {
		var e CallLogEntry
		var headersJSON string
		var payloadJSON, bodyJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.Label, &e.Method, &e.Path, &e.Status, &e.OK,
			&headersJSON, &payloadJSON, &bodyJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		if err := json.Unmarshal([]byte(headersJSON), &e.RequestHeaders); err != nil {
			return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
		}
		if payloadJSON.Valid {
			_ = json.Unmarshal([]byte(payloadJSON.String), &e.RequestPayload)
		}
		if bodyJSON.Valid {
			_ = json.Unmarshal([]byte(bodyJSON.String), &e.ResponseBody)
		}
		calls = append(calls, e)
	}

	return calls, rows.Err()
}

// ClearCalls empties the call log.
func (s *SQLiteStore) ClearCalls() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM call_log`); err != nil {
		return fmt.Errorf("failed to clear calls: %w", err)
	}
	return nil
}

// RedactHeaders returns a copy of headers with the bearer token hidden.
func RedactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if k == "Authorization" {
			v = "Bearer ***"
		}
		out[k] = v
	}
	return out
}

func marshalNullable(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
