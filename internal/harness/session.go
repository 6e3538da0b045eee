package harness

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/raine/telegram-fastkale-bot/internal/storage"
)

// LocalSessionID is the session slot of the CLI user.
const LocalSessionID int64 = 0

// TokenEnv overrides the stored access token.
const TokenEnv = "FASTKALE_TOKEN"

var ErrNoToken = errors.New("no access token: pass --token, set " + TokenEnv + " or run `auth login`")

// Sessions is the part of the store the CLI keeps its session in.
type Sessions interface {
	Get(telegramID int64) (*storage.StoredSession, error)
	Save(session *storage.StoredSession) error
	Delete(telegramID int64) error
}

// ResolveToken returns the flag value, then the environment, then the
// stored local session.
func ResolveToken(flag string, sessions Sessions) (string, error) {
	if t := strings.TrimSpace(flag); t != "" {
		return t, nil
	}
	if t := strings.TrimSpace(os.Getenv(TokenEnv)); t != "" {
		return t, nil
	}
	s, err := sessions.Get(LocalSessionID)
	if err != nil {
		return "", err
	}
	if s == nil || s.Tokens.AccessToken == "" {
		return "", ErrNoToken
	}
	return s.Tokens.AccessToken, nil
}

// StoredRefreshToken returns the refresh token of the local session.
func StoredRefreshToken(sessions Sessions) (string, error) {
	s, err := sessions.Get(LocalSessionID)
	if err != nil {
		return "", err
	}
	if s == nil || s.Tokens.RefreshToken == "" {
		return "", errors.New("no stored refresh token: pass --refresh-token or run `auth login`")
	}
	return s.Tokens.RefreshToken, nil
}

// SaveAuth keeps the tokens of a successful login or signup as the local
// session. Failed results are left alone.
func SaveAuth(sessions Sessions, res *fastkale.CallResult) (*fastkale.AuthData, error) {
	if res == nil || !res.OK {
		return nil, nil
	}
	auth, err := fastkale.DecodeData[fastkale.AuthData](res)
	if err != nil {
		return nil, err
	}
	if auth.Session.AccessToken == "" {
		return nil, fmt.Errorf("response has no access token")
	}

	stored := &storage.StoredSession{
		TelegramID: LocalSessionID,
		Tokens: storage.TokenSet{
			AccessToken:  auth.Session.AccessToken,
			RefreshToken: auth.Session.RefreshToken,
			ExpiresAt:    auth.Session.ExpiresAt,
		},
	}
	if auth.User != nil {
		stored.UserID = auth.User.ID
		stored.Email = auth.User.Email
	}
	if err := sessions.Save(stored); err != nil {
		return nil, err
	}
	return auth, nil
}

// SaveRefresh replaces the local tokens after refresh-token.
func SaveRefresh(sessions Sessions, res *fastkale.CallResult) error {
	if res == nil || !res.OK {
		return nil
	}
	pair, err := fastkale.DecodeData[fastkale.TokenPair](res)
	if err != nil {
		return err
	}

	stored, err := sessions.Get(LocalSessionID)
	if err != nil {
		return err
	}
	if stored == nil {
		stored = &storage.StoredSession{TelegramID: LocalSessionID}
	}
	stored.Tokens.AccessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		stored.Tokens.RefreshToken = pair.RefreshToken
	}
	return sessions.Save(stored)
}

// ClearSession forgets the local session.
func ClearSession(sessions Sessions) error {
	return sessions.Delete(LocalSessionID)
}
