package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// TokenSet holds the backend tokens of a signed in user.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// StoredSession represents a persisted backend session.
// TelegramID 0 is the local session of the harness CLI.
type StoredSession struct {
	TelegramID  int64
	UserID      string
	Email       string
	Tokens      TokenSet
	LastUpdated time.Time
}

// AllowedUser represents a user in the whitelist.
type AllowedUser struct {
	TelegramID int64
	AddedAt    time.Time
	AddedBy    int64
}

// SessionStore defines the interface for session persistence.
type SessionStore interface {
	Get(telegramID int64) (*StoredSession, error)
	Save(session *StoredSession) error
	Delete(telegramID int64) error
	GetAll() ([]StoredSession, error)
	Close() error

	// Allowed users methods
	IsUserAllowed(telegramID int64) (bool, error)
	AddAllowedUser(telegramID, addedBy int64) error
	RemoveAllowedUser(telegramID int64) error
	GetAllowedUsers() ([]AllowedUser, error)

	ScanHistoryStore
	OfferStore
}

// SQLiteStore implements SessionStore using SQLite with encrypted tokens.
type SQLiteStore struct {
	db            *sql.DB
	encryptionKey []byte
	mu            sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based store.
// The dbPath is the path to the SQLite database file.
// The encryptionKey is used to encrypt/decrypt token data.
func NewSQLiteStore(dbPath string, encryptionKey []byte) (*SQLiteStore, error) {
	// WAL mode and busy timeout for concurrent bot workers
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &SQLiteStore{
		db:            db,
		encryptionKey: encryptionKey,
	}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	// Only the owner may read the tokens
	if dbPath != ":memory:" {
		if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
			db.Close()
			return nil, fmt.Errorf("failed to set database permissions: %w", err)
		}
	}

	return store, nil
}

var schema = []struct {
	name  string
	query string
}{
	{"sessions", `
	CREATE TABLE IF NOT EXISTS sessions (
		telegram_id INTEGER PRIMARY KEY,
		user_id TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		encrypted_tokens TEXT NOT NULL,
		last_updated DATETIME NOT NULL
	);`},
	{"allowed_users", `
	CREATE TABLE IF NOT EXISTS allowed_users (
		telegram_id INTEGER PRIMARY KEY,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		added_by INTEGER
	);`},
	{"scan_history", `
	CREATE TABLE IF NOT EXISTS scan_history (
		item_id TEXT PRIMARY KEY,
		telegram_id INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		category TEXT NOT NULL,
		condition TEXT NOT NULL,
		confidence REAL NOT NULL,
		estimated_value REAL,
		item_type TEXT NOT NULL DEFAULT '',
		step TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`},
	{"call_log", `
	CREATE TABLE IF NOT EXISTS call_log (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		status INTEGER NOT NULL,
		ok INTEGER NOT NULL,
		request_headers TEXT NOT NULL,
		request_payload TEXT,
		response_body TEXT,
		created_at DATETIME NOT NULL
	);`},
	{"tracked_offers", `
	CREATE TABLE IF NOT EXISTS tracked_offers (
		offer_id TEXT PRIMARY KEY,
		telegram_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		gmv REAL NOT NULL DEFAULT 0,
		payout REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`},
}

func (s *SQLiteStore) init() error {
	for _, t := range schema {
		if _, err := s.db.Exec(t.query); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}
	return nil
}

// Get retrieves a session by Telegram user ID.
// Returns nil, nil if the session doesn't exist.
func (s *SQLiteStore) Get(telegramID int64) (*StoredSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var userID, email, encryptedTokens string
	var lastUpdated time.Time

	err := s.db.QueryRow(
		"SELECT user_id, email, encrypted_tokens, last_updated FROM sessions WHERE telegram_id = ?",
		telegramID,
	).Scan(&userID, &email, &encryptedTokens, &lastUpdated)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	tokens, err := s.decryptTokens(encryptedTokens)
	if err != nil {
		return nil, err
	}

	return &StoredSession{
		TelegramID:  telegramID,
		UserID:      userID,
		Email:       email,
		Tokens:      tokens,
		LastUpdated: lastUpdated,
	}, nil
}

// Save stores or updates a session.
func (s *SQLiteStore) Save(session *StoredSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokensJSON, err := json.Marshal(session.Tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	encryptedTokens, err := Encrypt(tokensJSON, s.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt tokens: %w", err)
	}

	session.LastUpdated = time.Now()

	_, err = s.db.Exec(`
		INSERT INTO sessions (telegram_id, user_id, email, encrypted_tokens, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			user_id = excluded.user_id,
			email = excluded.email,
			encrypted_tokens = excluded.encrypted_tokens,
			last_updated = excluded.last_updated
	`, session.TelegramID, session.UserID, session.Email, encryptedTokens, session.LastUpdated)

	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// Delete removes a session by Telegram user ID.
func (s *SQLiteStore) Delete(telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM sessions WHERE telegram_id = ?", telegramID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

// GetAll retrieves all stored sessions.
func (s *SQLiteStore) GetAll() ([]StoredSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT telegram_id, user_id, email, encrypted_tokens, last_updated FROM sessions")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []StoredSession
	for rows.Next() {
		var session StoredSession
		var encryptedTokens string

		if err := rows.Scan(&session.TelegramID, &session.UserID, &session.Email, &encryptedTokens, &session.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		session.Tokens, err = s.decryptTokens(encryptedTokens)
		if err != nil {
			return nil, fmt.Errorf("user %d: %w", session.TelegramID, err)
		}

		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

func (s *SQLiteStore) decryptTokens(encrypted string) (TokenSet, error) {
	var tokens TokenSet
	tokensJSON, err := Decrypt(encrypted, s.encryptionKey)
	if err != nil {
		return tokens, fmt.Errorf("failed to decrypt tokens: %w", err)
	}
	if err := json.Unmarshal(tokensJSON, &tokens); err != nil {
		return tokens, fmt.Errorf("failed to unmarshal tokens: %w", err)
	}
	return tokens, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// IsUserAllowed checks if a user is in the whitelist.
func (s *SQLiteStore) IsUserAllowed(telegramID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM allowed_users WHERE telegram_id = ?",
		telegramID,
	).Scan(&count)

	if err != nil {
		return false, fmt.Errorf("failed to check allowed user: %w", err)
	}

	return count > 0, nil
}

// AddAllowedUser adds a user to the whitelist.
func (s *SQLiteStore) AddAllowedUser(telegramID, addedBy int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO allowed_users (telegram_id, added_by)
		VALUES (?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			added_by = excluded.added_by,
			added_at = CURRENT_TIMESTAMP
	`, telegramID, addedBy)

	if err != nil {
		return fmt.Errorf("failed to add allowed user: %w", err)
	}
	return nil
}

// RemoveAllowedUser removes a user from the whitelist.
func (s *SQLiteStore) RemoveAllowedUser(telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM allowed_users WHERE telegram_id = ?", telegramID)
	if err != nil {
		return fmt.Errorf("failed to remove allowed user: %w", err)
	}
	return nil
}

// GetAllowedUsers returns all users in the whitelist.
func (s *SQLiteStore) GetAllowedUsers() ([]AllowedUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT telegram_id, added_at, added_by FROM allowed_users ORDER BY added_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query allowed users: %w", err)
	}
	defer rows.Close()

	var users []AllowedUser
	for rows.Next() {
		var user AllowedUser
		if err := rows.Scan(&user.TelegramID, &user.AddedAt, &user.AddedBy); err != nil {
			return nil, fmt.Errorf("failed to scan allowed user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}
