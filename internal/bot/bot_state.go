package bot

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/raine/telegram-fastkale-bot/internal/scanflow"
)

// BotState owns one UserSession, and its worker, per Telegram user.
type BotState struct {
	bot      *Bot
	mu       sync.Mutex
	sessions map[int64]*UserSession
}

func (b *Bot) NewBotState() *BotState {
	return &BotState{
		bot:      b,
		sessions: make(map[int64]*UserSession),
	}
}

// getUserSession returns the running session of a user, starting one on
// first contact.
func (bs *BotState) getUserSession(userId int64) (*UserSession, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if session, ok := bs.sessions[userId]; ok {
		return session, nil
	}

	session := bs.newUserSession(userId)
	session.SetHandler(bs.bot)
	session.StartWorker()
	bs.sessions[userId] = session
	return session, nil
}

func (bs *BotState) newUserSession(userId int64) *UserSession {
	ctx, cancel := context.WithCancel(context.Background())
	session := &UserSession{
		userId:   userId,
		sender:   bs.bot.tg,
		authFlow: NewAuthFlow(),
		inbox:    make(chan SessionMessage, 10),
		ctx:      ctx,
		cancel:   cancel,
	}
	// The session is the wizard's token source, so a refreshed token is
	// picked up by the next backend call.
	session.wizard = scanflow.New(bs.bot.api, session, bs.bot.scanHandler.cartNotifier(session))
	session.auth = bs.storedAuth(userId)
	return session
}

// storedAuth restores the backend session saved for a user. A user without
// one starts logged out.
func (bs *BotState) storedAuth(userId int64) AuthContext {
	if bs.bot.sessionStore == nil {
		return AuthContext{}
	}
	stored, err := bs.bot.sessionStore.Get(userId)
	if err != nil {
		log.Warn().Err(err).Int64("userId", userId).Msg("failed to get stored session")
		return AuthContext{}
	}
	if stored == nil {
		log.Info().Int64("userId", userId).Msg("new user session created (no auth)")
		return AuthContext{}
	}
	log.Info().Int64("userId", userId).Str("email", stored.Email).Msg("restored backend session")
	return AuthContext{
		AccessToken:  stored.Tokens.AccessToken,
		RefreshToken: stored.Tokens.RefreshToken,
		UserID:       stored.UserID,
		Email:        stored.Email,
	}
}

// Shutdown stops every session worker. Workers are stopped outside the lock
// so a handler still finishing up can't deadlock on it.
func (bs *BotState) Shutdown() {
	bs.mu.Lock()
	sessions := make([]*UserSession, 0, len(bs.sessions))
	for _, session := range bs.sessions {
		sessions = append(sessions, session)
	}
	bs.mu.Unlock()

	for _, session := range sessions {
		session.Stop()
	}
	log.Info().Int("count", len(sessions)).Msg("stopped all session workers")
}
