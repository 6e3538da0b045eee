package bot

import (
	"context"
	"errors"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/raine/telegram-fastkale-bot/internal/scanflow"
	"github.com/raine/telegram-fastkale-bot/internal/storage"
)

var ErrNoRefreshToken = errors.New("no refresh token available")

// AuthHandler handles login, signup and the backend session of a user.
type AuthHandler struct {
	api          fastkale.FlowService
	sessionStore storage.SessionStore
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(api fastkale.FlowService, sessionStore storage.SessionStore) *AuthHandler {
	return &AuthHandler{
		api:          api,
		sessionStore: sessionStore,
	}
}

// HandleMessage handles messages during auth flow.
// Returns true if the message was handled (auth flow is active).
// Called from session worker - no locking needed.
func (h *AuthHandler) HandleMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) bool {
	// Check auth flow timeout
	if session.IsAuthFlowTimedOut() {
		session.authFlow.Reset()
		session.reply(MsgLoginTimeout)
		return true
	}

	// Check if auth flow is active
	if !session.IsAuthFlowActive() {
		return false
	}

	h.handleAuthFlowMessage(ctx, session, message)
	return true
}

// handleAuthFlowMessage handles messages during login and signup.
// Called from session worker - no locking needed.
func (h *AuthHandler) handleAuthFlowMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	text := strings.TrimSpace(message.Text)

	// Handle /cancel to abort login
	if command, _ := parseCommand(text); command == "/cancel" {
		session.authFlow.Reset()
		session.reply(MsgLoginCancelled)
		return
	}

	// Reject other commands during auth flow
	if strings.HasPrefix(text, "/") {
		session.reply(MsgLoginInProgress)
		return
	}

	if text == "" {
		session.reply(MsgEmptyInputNotAllowed)
		return
	}

	session.authFlow.Touch()

	switch session.authFlow.State {
	case AuthStateAwaitingEmail:
		session.authFlow.Email = text
		session.authFlow.State = AuthStateAwaitingPassword
		session.reply(MsgLoginPromptPassword)
	case AuthStateAwaitingPassword:
		deletePasswordMessage(session, message)
		h.login(ctx, session, text)
	case AuthStateAwaitingSignupEmail:
		session.authFlow.Email = text
		session.authFlow.State = AuthStateAwaitingSignupPassword
		session.reply(MsgSignupPromptPassword)
	case AuthStateAwaitingSignupPassword:
		deletePasswordMessage(session, message)
		session.authFlow.Password = text
		session.authFlow.State = AuthStateAwaitingFullName
		session.reply(MsgSignupPromptFullName)
	case AuthStateAwaitingFullName:
		session.authFlow.FullName = text
		session.authFlow.State = AuthStateAwaitingPhone
		session.reply(MsgSignupPromptPhone)
	case AuthStateAwaitingPhone:
		h.signup(ctx, session, text)
	}
}

// HandleLoginCommand starts the login flow.
// Called from session worker - no locking needed.
func (h *AuthHandler) HandleLoginCommand(session *UserSession) {
	if session.isLoggedIn() {
		session.reply(MsgLoginAlreadyLoggedIn)
		return
	}
	session.authFlow.Reset()
	session.authFlow.State = AuthStateAwaitingEmail
	session.reply(MsgLoginPromptEmail)
}

// HandleSignupCommand starts the signup flow.
// Called from session worker - no locking needed.
func (h *AuthHandler) HandleSignupCommand(session *UserSession) {
	if session.isLoggedIn() {
		session.reply(MsgLoginAlreadyLoggedIn)
		return
	}
	session.authFlow.Reset()
	session.authFlow.State = AuthStateAwaitingSignupEmail
	session.reply(MsgSignupPromptEmail)
}

func (h *AuthHandler) login(ctx context.Context, session *UserSession, password string) {
	email := session.authFlow.Email
	data, err := h.api.Login(ctx, email, password)
	if err != nil {
		log.Error().Err(err).Int64("userId", session.userId).Msg("login failed")
		session.authFlow.Reset()
		session.reply(MsgLoginFailed, escapeMarkdown(err.Error()))
		return
	}

	if err := h.finalizeAuth(session, data); err != nil {
		session.authFlow.Reset()
		session.reply(MsgLoginFailed, escapeMarkdown(err.Error()))
		return
	}
	session.authFlow.Reset()
	session.reply(MsgLoginSuccess, escapeMarkdown(session.Auth().Email))
	log.Info().Int64("userId", session.userId).Msg("user logged in successfully")
}

func (h *AuthHandler) signup(ctx context.Context, session *UserSession, phone string) {
	req := fastkale.SignupRequest{
		Email:    session.authFlow.Email,
		Password: session.authFlow.Password,
		FullName: session.authFlow.FullName,
		Phone:    phone,
	}
	// The password is not needed past this point
	session.authFlow.Password = ""

	data, err := h.api.Signup(ctx, req)
	if err != nil {
		log.Error().Err(err).Int64("userId", session.userId).Msg("signup failed")
		session.authFlow.Reset()
		session.reply(MsgSignupFailed, escapeMarkdown(err.Error()))
		return
	}

	if err := h.finalizeAuth(session, data); err != nil {
		session.authFlow.Reset()
		session.reply(MsgSignupFailed, escapeMarkdown(err.Error()))
		return
	}
	session.authFlow.Reset()
	session.reply(MsgSignupSuccess, escapeMarkdown(session.Auth().Email))
	log.Info().Int64("userId", session.userId).Msg("user signed up successfully")
}

// finalizeAuth stores the backend session and updates the user session.
func (h *AuthHandler) finalizeAuth(session *UserSession, data *fastkale.AuthData) error {
	auth := AuthContext{
		AccessToken:  data.Session.AccessToken,
		RefreshToken: data.Session.RefreshToken,
		Email:        session.authFlow.Email,
	}
	if data.User != nil {
		auth.UserID = data.User.ID
		if data.User.Email != "" {
			auth.Email = data.User.Email
		}
	}
	if auth.AccessToken == "" {
		return errors.New("no access token in response")
	}

	if h.sessionStore != nil {
		storedSession := &storage.StoredSession{
			TelegramID: session.userId,
			UserID:     auth.UserID,
			Email:      auth.Email,
			Tokens: storage.TokenSet{
				AccessToken:  auth.AccessToken,
				RefreshToken: auth.RefreshToken,
				ExpiresAt:    data.Session.ExpiresAt,
			},
		}
		if err := h.sessionStore.Save(storedSession); err != nil {
			log.Error().Err(err).Msg("failed to save session")
			return err
		}
	}

	session.setAuth(auth)
	return nil
}

// HandleLogoutCommand ends the backend session and forgets the tokens.
// The local session is cleared even when the backend call fails.
func (h *AuthHandler) HandleLogoutCommand(ctx context.Context, session *UserSession) {
	if !session.isLoggedIn() {
		session.reply(MsgNotLoggedIn)
		return
	}

	if err := h.api.Logout(ctx, session.AccessToken()); err != nil {
		log.Warn().Err(err).Int64("userId", session.userId).Msg("backend logout failed")
	}
	h.forgetSession(session)
	session.reset()
	session.replyAndRemoveCustomKeyboard(MsgLogoutSuccess)
}

// HandleResetCommand handles both halves of a password reset:
// "/reset <email>" requests the email, "/reset <token> <new password>" sets
// the new password. The second form is deleted from the chat.
func (h *AuthHandler) HandleResetCommand(ctx context.Context, session *UserSession, message *tgbotapi.Message, args []string) {
	switch {
	case len(args) == 1 && strings.Contains(args[0], "@"):
		email := args[0]
		if err := h.api.RequestPasswordReset(ctx, email); err != nil {
			h.HandleFlowError(ctx, session, err)
			return
		}
		session.reply(MsgPasswordResetSent, escapeMarkdown(email))
	case len(args) == 2:
		deletePasswordMessage(session, message)
		req := fastkale.PasswordResetConfirmRequest{ResetToken: args[0], NewPassword: args[1]}
		if err := h.api.ConfirmPasswordReset(ctx, req); err != nil {
			h.HandleFlowError(ctx, session, err)
			return
		}
		session.reply(MsgPasswordResetDone)
	default:
		session.reply(MsgPasswordResetUsage)
	}
}

// redactCommand hides the arguments of commands that carry a password.
func redactCommand(text string) string {
	command, args := parseCommand(text)
	if command == "/reset" && len(args) > 1 {
		return command + " ***"
	}
	return text
}

func (h *AuthHandler) forgetSession(session *UserSession) {
	if h.sessionStore != nil {
		if err := h.sessionStore.Delete(session.userId); err != nil {
			log.Warn().Err(err).Int64("userId", session.userId).Msg("failed to delete stored session")
		}
	}
	session.clearAuth()
}

// TryRefreshTokens exchanges the refresh token for a new token pair and
// persists it.
func (h *AuthHandler) TryRefreshTokens(ctx context.Context, session *UserSession) error {
	auth := session.Auth()
	if auth.RefreshToken == "" {
		return ErrNoRefreshToken
	}

	log.Info().Int64("userId", session.userId).Msg("attempting token refresh")

	pair, err := h.api.RefreshToken(ctx, auth.RefreshToken)
	if err != nil {
		return err
	}

	auth.AccessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		auth.RefreshToken = pair.RefreshToken
	}
	session.setAuth(auth)

	if h.sessionStore != nil {
		storedSession := &storage.StoredSession{
			TelegramID: session.userId,
			UserID:     auth.UserID,
			Email:      auth.Email,
			Tokens: storage.TokenSet{
				AccessToken:  auth.AccessToken,
				RefreshToken: auth.RefreshToken,
			},
		}
		if err := h.sessionStore.Save(storedSession); err != nil {
			log.Warn().Err(err).Msg("failed to persist refreshed tokens")
		}
	}

	log.Info().Int64("userId", session.userId).Msg("token refresh successful")
	return nil
}

// HandleFlowError tells the user what went wrong with a backend call or a
// wizard operation. An expired access token is refreshed once; the user
// then retries the action.
func (h *AuthHandler) HandleFlowError(ctx context.Context, session *UserSession, err error) {
	var apiErr *fastkale.APIError
	var validationErr *scanflow.ValidationError
	var stepErr *scanflow.StepError

	switch {
	case errors.Is(err, scanflow.ErrRestarted):
		// The user already started over
		log.Debug().Int64("userId", session.userId).Msg("ignoring result of restarted scan")
	case errors.Is(err, scanflow.ErrBusy):
		session.reply(MsgBusy)
	case errors.Is(err, scanflow.ErrNotLoggedIn):
		session.reply(MsgLoginRequired)
	case errors.As(err, &validationErr):
		session.reply(MsgErrorFmt, escapeMarkdown(validationErr.Message))
	case errors.As(err, &stepErr):
		log.Warn().Err(err).Int64("userId", session.userId).Msg("operation not allowed on step")
		if stepErr.Step == scanflow.StepCapture {
			session.reply(MsgStartPrompt)
		} else {
			session.reply(MsgFinishCurrentItem)
		}
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized:
		if refreshErr := h.TryRefreshTokens(ctx, session); refreshErr != nil {
			log.Warn().Err(refreshErr).Int64("userId", session.userId).Msg("token refresh failed")
			h.forgetSession(session)
			session.reply(MsgSessionExpired)
			return
		}
		session.reply(MsgSessionRefreshed)
	default:
		log.Error().Err(err).Int64("userId", session.userId).Msg("flow error")
		LogError(session.userId, "%s", err)
		session.reply(MsgErrorFmt, escapeMarkdown(err.Error()))
	}
}

// deletePasswordMessage removes a message holding a password from the chat.
func deletePasswordMessage(session *UserSession, message *tgbotapi.Message) {
	if message == nil || message.MessageID == 0 {
		return
	}
	del := tgbotapi.NewDeleteMessage(session.userId, message.MessageID)
	if _, err := session.sender.Request(del); err != nil {
		log.Warn().Err(err).Int64("userId", session.userId).Msg("failed to delete password message")
	}
}
