package bot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/raine/telegram-fastkale-bot/internal/scanflow"
	"github.com/raine/telegram-fastkale-bot/internal/storage"
)

const testAdminID = int64(1000)

type botApiMock struct {
	mock.Mock

	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (m *botApiMock) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.mu.Lock()
		m.sent = append(m.sent, msg)
		m.mu.Unlock()
	}
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *botApiMock) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	args := m.Called(c)
	return args.Get(0).(*tgbotapi.APIResponse), args.Error(1)
}

func (m *botApiMock) GetFileDirectURL(fileID string) (string, error) {
	args := m.Called(fileID)
	return args.Get(0).(string), args.Error(1)
}

// sentMessages returns the messages sent so far and forgets them.
func (m *botApiMock) sentMessages() []tgbotapi.MessageConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	sent := m.sent
	m.sent = nil
	return sent
}

// sentTexts returns the texts sent so far and forgets them.
func (m *botApiMock) sentTexts() []string {
	var texts []string
	for _, msg := range m.sentMessages() {
		texts = append(texts, msg.Text)
	}
	return texts
}

// stubTelegram accepts every Send and Request.
func stubTelegram(tg *botApiMock) {
	tg.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil)
	tg.On("Request", mock.Anything).Return(&tgbotapi.APIResponse{Ok: true}, nil)
}

type testEnv struct {
	userId int64
	tg     *botApiMock
	bot    *Bot
	api    *fastkale.MockFlowService
	store  *storage.SQLiteStore
}

func newTestStore(t *testing.T) *storage.SQLiteStore {
	store, err := storage.NewSQLiteStore(":memory:", []byte("test-key-32-bytes-long-ok-test!!"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// setup creates a bot with an allowed and logged in user.
func setup(t *testing.T) *testEnv {
	env := setupLoggedOut(t)
	require.NoError(t, env.store.Save(&storage.StoredSession{
		TelegramID: env.userId,
		UserID:     "user-1",
		Email:      "jane@example.com",
		Tokens: storage.TokenSet{
			AccessToken:  "test-token",
			RefreshToken: "test-refresh",
		},
	}))
	return env
}

// setupLoggedOut creates a bot with an allowed user that has no session.
func setupLoggedOut(t *testing.T) *testEnv {
	store := newTestStore(t)
	userId := int64(1)
	require.NoError(t, store.AddAllowedUser(userId, testAdminID))

	tg := new(botApiMock)
	api := &fastkale.MockFlowService{}
	bot := NewBot(tg, store, api, testAdminID)
	t.Cleanup(bot.Shutdown)

	return &testEnv{userId: userId, tg: tg, bot: bot, api: api, store: store}
}

func (e *testEnv) session(t *testing.T) *UserSession {
	session, err := e.bot.state.getUserSession(e.userId)
	require.NoError(t, err)
	return session
}

func (e *testEnv) sendText(text string) {
	e.bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(e.userId, text))
}

func (e *testEnv) sendCallback(data string) {
	e.bot.handleUpdateSync(context.Background(), makeCallbackUpdate(e.userId, data))
}

func (e *testEnv) sendPhoto(fileID string) {
	e.bot.handleUpdateSync(context.Background(), makePhotoUpdate(e.userId, fileID, ""))
}

func makeUpdateWithMessageText(userId int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 10,
			From:      &tgbotapi.User{ID: userId},
			Chat:      &tgbotapi.Chat{ID: userId},
			Text:      text,
		},
	}
}

func makeCallbackUpdate(userId int64, data string) tgbotapi.Update {
	return tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "callback-1",
			From: &tgbotapi.User{ID: userId},
			Data: data,
			Message: &tgbotapi.Message{
				MessageID: 20,
				Chat:      &tgbotapi.Chat{ID: userId},
			},
		},
	}
}

func makePhotoUpdate(userId int64, fileID, mediaGroupID string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID:    30,
			From:         &tgbotapi.User{ID: userId},
			Chat:         &tgbotapi.Chat{ID: userId},
			MediaGroupID: mediaGroupID,
			Photo: []tgbotapi.PhotoSize{
				{FileID: fileID + "-small", Width: 90, Height: 90, FileSize: 1000},
				{FileID: fileID, Width: 800, Height: 800, FileSize: 50000},
			},
		},
	}
}

func makeMessage(userId int64, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(userId, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	return msg
}

func floatPtr(v float64) *float64 { return &v }

// serveImages serves a JPEG for every Telegram file id.
func serveImages(t *testing.T, tg *botApiMock) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpegBytes)
	}))
	t.Cleanup(ts.Close)
	tg.On("GetFileDirectURL", mock.Anything).Return(ts.URL+"/photo.jpg", nil)
}

func electronicsScan() *fastkale.ScanResult {
	return &fastkale.ScanResult{
		ItemID:          "item-1",
		Category:        fastkale.CategoryOption{ID: "cat-electronics", Name: "electronics", DisplayName: "Electronics"},
		Condition:       "Good",
		ConfidenceScore: 85,
		Attributes: []fastkale.ItemAttribute{
			{Name: "brand", Label: "Brand", Value: "Sony", AIDetected: true},
		},
		Description: "Wireless headphones",
	}
}

func containsText(texts []string, substr string) bool {
	for _, text := range texts {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}

// scanToResults sends one photo and returns once the results are shown.
func (e *testEnv) scanToResults(t *testing.T, scan *fastkale.ScanResult) {
	e.api.ScanItemFunc = func(ctx context.Context, token string, images []fastkale.ImageFile) (*fastkale.ScanResult, error) {
		return scan, nil
	}
	e.sendPhoto("file-1")
	require.Equal(t, scanflow.StepResults, e.session(t).wizard.Step())
}

// --- Access ---

func TestHandleUpdate_UnknownUserIsDropped(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)

	env.bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(555, "/start"))

	env.tg.AssertNotCalled(t, "Send", mock.Anything)
}

func TestHandleUpdate_AdminIsAlwaysAllowed(t *testing.T) {
	env := setup(t)
	env.tg.On("Send", makeMessage(testAdminID, MsgLoginRequired)).Return(tgbotapi.Message{}, nil).Once()

	env.bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(testAdminID, "/start"))

	env.tg.AssertExpectations(t)
}

func TestHandleUpdate_UnauthenticatedUserStart(t *testing.T) {
	env := setupLoggedOut(t)
	env.tg.On("Send", makeMessage(env.userId, MsgLoginRequired)).Return(tgbotapi.Message{}, nil).Once()

	env.sendText("/start")

	env.tg.AssertExpectations(t)
}

func TestHandleUpdate_AuthenticatedUserStart(t *testing.T) {
	env := setup(t)
	env.tg.On("Send", makeMessage(env.userId, MsgStartPrompt)).Return(tgbotapi.Message{}, nil).Once()

	env.sendText("/start")

	env.tg.AssertExpectations(t)
}

func TestHandleUpdate_Version(t *testing.T) {
	env := setup(t)
	env.tg.On("Send", makeMessage(env.userId, "Version: dev\nBuilt: unknown")).Return(tgbotapi.Message{}, nil).Once()

	env.sendText("/version")

	env.tg.AssertExpectations(t)
}

func TestHandleUpdate_PhotoRequiresLogin(t *testing.T) {
	env := setupLoggedOut(t)
	stubTelegram(env.tg)

	env.sendPhoto("file-1")

	assert.Equal(t, []string{MsgLoginRequired}, env.tg.sentTexts())
	assert.Empty(t, env.api.CallsTo("ScanItem"))
}

func TestHandleUpdate_CallbackRequiresLogin(t *testing.T) {
	env := setupLoggedOut(t)
	stubTelegram(env.tg)

	env.sendCallback("cart:view")

	assert.Equal(t, []string{MsgLoginRequired}, env.tg.sentTexts())
	assert.Empty(t, env.api.CallsTo("GetCart"))
}

// --- Login and signup ---

func TestLoginFlow(t *testing.T) {
	env := setupLoggedOut(t)
	stubTelegram(env.tg)

	env.sendText("/login")
	env.sendText("jane@example.com")
	env.sendText("hunter2")

	texts := env.tg.sentTexts()
	assert.Equal(t, []string{
		MsgLoginPromptEmail,
		MsgLoginPromptPassword,
		"Logged in as jane@example.com.",
	}, texts)

	// The password message is deleted
	env.tg.AssertCalled(t, "Request", tgbotapi.NewDeleteMessage(env.userId, 10))

	require.Len(t, env.api.CallsTo("Login"), 1)
	assert.Equal(t, "jane@example.com", env.api.CallsTo("Login")[0].Args[0])

	stored, err := env.store.Get(env.userId)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "mock-access-token", stored.Tokens.AccessToken)
	assert.Equal(t, "mock-refresh-token", stored.Tokens.RefreshToken)
	assert.Equal(t, "mock-user-id", stored.UserID)
	assert.True(t, env.session(t).IsLoggedIn())
}

func TestLoginFlow_Failure(t *testing.T) {
	env := setupLoggedOut(t)
	stubTelegram(env.tg)
	env.api.LoginFunc = func(ctx context.Context, email, password string) (*fastkale.AuthData, error) {
		return nil, &fastkale.APIError{Status: 401, Code: "INVALID_CREDENTIALS", Message: "Invalid credentials"}
	}

	env.sendText("/login")
	env.sendText("jane@example.com")
	env.sendText("wrong")

	texts := env.tg.sentTexts()
	require.Len(t, texts, 3)
	assert.True(t, strings.HasPrefix(texts[2], "Login failed: "))
	assert.Contains(t, texts[2], "Invalid credentials")
	assert.False(t, env.session(t).IsLoggedIn())
	assert.False(t, env.session(t).IsAuthFlowActive())
}

func TestLoginFlow_Cancel(t *testing.T) {
	env := setupLoggedOut(t)
	stubTelegram(env.tg)

	env.sendText("/login")
	env.sendText("/cart")
	env.sendText("/cancel")

	assert.Equal(t, []string{MsgLoginPromptEmail, MsgLoginInProgress, MsgLoginCancelled}, env.tg.sentTexts())
	assert.Empty(t, env.api.CallsTo("Login"))
}

func TestLoginCommand_AlreadyLoggedIn(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)

	env.sendText("/login")

	assert.Equal(t, []string{MsgLoginAlreadyLoggedIn}, env.tg.sentTexts())
}

func TestSignupFlow(t *testing.T) {
	env := setupLoggedOut(t)
	stubTelegram(env.tg)

	var got fastkale.SignupRequest
	env.api.SignupFunc = func(ctx context.Context, req fastkale.SignupRequest) (*fastkale.AuthData, error) {
		got = req
		return &fastkale.AuthData{
			User:    &fastkale.UserProfile{ID: "new-user", Email: req.Email},
			Session: fastkale.AuthSession{AccessToken: "signup-token", RefreshToken: "signup-refresh"},
		}, nil
	}

	env.sendText("/signup")
	env.sendText("new@example.com")
	env.sendText("s3cret!")
	env.sendText("Jane Doe")
	env.sendText("+1 555 0100")

	assert.Equal(t, []string{
		MsgSignupPromptEmail,
		MsgSignupPromptPassword,
		MsgSignupPromptFullName,
		MsgSignupPromptPhone,
		"Account created. Logged in as new@example.com.",
	}, env.tg.sentTexts())
	assert.Equal(t, fastkale.SignupRequest{
		Email:    "new@example.com",
		Password: "s3cret!",
		FullName: "Jane Doe",
		Phone:    "+1 555 0100",
	}, got)
	assert.Equal(t, "signup-token", env.session(t).AccessToken())
}

func TestLogoutCommand(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)

	env.sendText("/logout")

	sent := env.tg.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, MsgLogoutSuccess, sent[0].Text)
	assert.Equal(t, tgbotapi.NewRemoveKeyboard(false), sent[0].ReplyMarkup)

	require.Len(t, env.api.CallsTo("Logout"), 1)
	assert.Equal(t, "test-token", env.api.CallsTo("Logout")[0].Args[0])

	stored, err := env.store.Get(env.userId)
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.False(t, env.session(t).IsLoggedIn())
}

func TestLogoutCommand_BackendFailureStillLogsOut(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	env.api.LogoutFunc = func(ctx context.Context, token string) error {
		return errors.New("connection refused")
	}

	env.sendText("/logout")

	assert.Equal(t, []string{MsgLogoutSuccess}, env.tg.sentTexts())
	assert.False(t, env.session(t).IsLoggedIn())
}

func TestResetCommand(t *testing.T) {
	env := setupLoggedOut(t)
	stubTelegram(env.tg)

	env.sendText("/reset")
	env.sendText("/reset jane@example.com")

	texts := env.tg.sentTexts()
	require.Len(t, texts, 2)
	assert.Equal(t, MsgPasswordResetUsage, texts[0])
	assert.Contains(t, texts[1], "jane@example.com")
	require.Len(t, env.api.CallsTo("RequestPasswordReset"), 1)
}

func TestResetCommand_ConfirmDeletesPassword(t *testing.T) {
	env := setupLoggedOut(t)
	stubTelegram(env.tg)

	env.sendText("/reset reset-tok n3w-secret")

	assert.Equal(t, []string{MsgPasswordResetDone}, env.tg.sentTexts())
	env.tg.AssertCalled(t, "Request", tgbotapi.NewDeleteMessage(env.userId, 10))

	calls := env.api.CallsTo("ConfirmPasswordReset")
	require.Len(t, calls, 1)
	assert.Equal(t, "reset-tok", calls[0].Args[0])
}

func TestHandleFlowError_RestartedScanIsSilent(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)

	env.bot.authHandler.HandleFlowError(context.Background(), env.session(t), scanflow.ErrRestarted)

	assert.Empty(t, env.tg.sentTexts())
}

func TestRedactCommand(t *testing.T) {
	assert.Equal(t, "/reset ***", redactCommand("/reset tok secret"))
	assert.Equal(t, "/reset a@b.c", redactCommand("/reset a@b.c"))
	assert.Equal(t, "/cart", redactCommand("/cart"))
}

// --- Expired sessions ---

func TestExpiredToken_RefreshSucceeds(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	env.api.GetCartFunc = func(ctx context.Context, token string) (*fastkale.CartData, error) {
		return nil, &fastkale.APIError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "JWT expired"}
	}
	env.api.RefreshTokenFunc = func(ctx context.Context, refreshToken string) (*fastkale.TokenPair, error) {
		assert.Equal(t, "test-refresh", refreshToken)
		return &fastkale.TokenPair{AccessToken: "fresh-token", RefreshToken: "fresh-refresh"}, nil
	}

	env.sendText("/cart")

	assert.Equal(t, []string{MsgSessionRefreshed}, env.tg.sentTexts())
	assert.Equal(t, "fresh-token", env.session(t).AccessToken())

	stored, err := env.store.Get(env.userId)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "fresh-token", stored.Tokens.AccessToken)
	assert.Equal(t, "fresh-refresh", stored.Tokens.RefreshToken)
}

func TestExpiredToken_RefreshFails(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	env.api.GetCartFunc = func(ctx context.Context, token string) (*fastkale.CartData, error) {
		return nil, &fastkale.APIError{Status: http.StatusUnauthorized, Message: "JWT expired"}
	}
	env.api.RefreshTokenFunc = func(ctx context.Context, refreshToken string) (*fastkale.TokenPair, error) {
		return nil, &fastkale.APIError{Status: http.StatusUnauthorized, Message: "Invalid refresh token"}
	}

	env.sendText("/cart")

	assert.Equal(t, []string{MsgSessionExpired}, env.tg.sentTexts())
	assert.False(t, env.session(t).IsLoggedIn())
	stored, err := env.store.Get(env.userId)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

// --- Scan wizard ---

func TestScanFlow_SellEndToEnd(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	serveImages(t, env.tg)

	env.api.GetEbayPriceFunc = func(ctx context.Context, token, itemID string) (*fastkale.PriceResult, error) {
		return &fastkale.PriceResult{ItemID: itemID, EstimatedResaleValue: floatPtr(40), CalculationMethod: "ebay"}, nil
	}
	env.api.GetCartFunc = func(ctx context.Context, token string) (*fastkale.CartData, error) {
		return &fastkale.CartData{
			ID:    "cart-1",
			Items: []fastkale.CartItem{{ItemID: "item-1", ItemType: fastkale.ItemTypeResale}},
		}, nil
	}

	env.scanToResults(t, electronicsScan())
	texts := env.tg.sentTexts()
	assert.Contains(t, texts, "Scanning 1 photo...")
	assert.True(t, containsText(texts, "Category: *Electronics*"))
	assert.True(t, containsText(texts, "• Brand: Sony"))
	assert.False(t, containsText(texts, MsgLowConfidence))

	scanCalls := env.api.CallsTo("ScanItem")
	require.Len(t, scanCalls, 1)
	assert.Equal(t, "test-token", scanCalls[0].Args[0])
	assert.Equal(t, 1, scanCalls[0].Args[1])

	env.sendCallback("scan:confirm")
	assert.Equal(t, scanflow.StepPrice, env.session(t).wizard.Step())
	texts = env.tg.sentTexts()
	assert.True(t, containsText(texts, "Estimated resale value: *$40.00*"))
	assert.True(t, containsText(texts, "Sell now payout: $20.00+"))

	confirmCalls := env.api.CallsTo("ConfirmItem")
	require.Len(t, confirmCalls, 1)
	req := confirmCalls[0].Args[1].(fastkale.ConfirmRequest)
	assert.Equal(t, "item-1", req.ItemID)
	assert.Equal(t, "cat-electronics", req.CategoryID)
	assert.False(t, req.ManuallyVerified)

	env.sendCallback("scan:continue")
	assert.Equal(t, scanflow.StepDonateSell, env.session(t).wizard.Step())
	assert.True(t, containsText(env.tg.sentTexts(), MsgChoicePrompt))

	env.sendCallback("scan:sell")
	assert.Equal(t, scanflow.StepAdded, env.session(t).wizard.Step())
	texts = env.tg.sentTexts()
	require.GreaterOrEqual(t, len(texts), 2)
	// The badge follows the confirmation
	assert.Contains(t, texts[len(texts)-2], "Electronics added as resale.")
	assert.Equal(t, "🛒 1 item in cart", texts[len(texts)-1])
	assert.Empty(t, env.session(t).cartBadge)

	addCalls := env.api.CallsTo("AddToCart")
	require.Len(t, addCalls, 1)
	assert.Equal(t, fastkale.ItemTypeResale, addCalls[0].Args[2])
	assert.Equal(t, "", addCalls[0].Args[3])

	// The cart is refreshed once, by the cart notifier
	assert.Len(t, env.api.CallsTo("GetCart"), 1)

	scans, err := env.store.GetRecentScans(env.userId, 10)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, "resale", scans[0].ItemType)
	assert.Equal(t, "added", scans[0].Step)
	require.NotNil(t, scans[0].EstimatedValue)
	assert.Equal(t, 40.0, *scans[0].EstimatedValue)
}

func TestScanFlow_LowConfidenceWarning(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	serveImages(t, env.tg)

	scan := electronicsScan()
	scan.ConfidenceScore = 65
	env.scanToResults(t, scan)
	assert.True(t, containsText(env.tg.sentTexts(), MsgLowConfidence))

	env.sendCallback("scan:confirm")
	req := env.api.CallsTo("ConfirmItem")[0].Args[1].(fastkale.ConfirmRequest)
	assert.True(t, req.ManuallyVerified)
}

func TestScanFlow_EditDetails(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	serveImages(t, env.tg)
	env.scanToResults(t, electronicsScan())
	env.tg.sentTexts()

	env.sendCallback("scan:edit")
	sent := env.tg.sentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, MsgEditPrompt)
	keyboard := sent[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.Equal(t, "cond:New", *keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "• Good", keyboard.InlineKeyboard[0][2].Text)

	env.sendText("brand: Apple")
	env.sendText("Color: Black")
	env.sendCallback("cond:Fair")
	texts := env.tg.sentTexts()
	assert.Contains(t, texts, "Brand set to *Apple*.")
	assert.True(t, containsText(texts, "Condition: *Fair*"))
	assert.True(t, containsText(texts, "• Color: Black"))

	env.sendText("nonsense")
	assert.Equal(t, []string{MsgAttributeEditInvalid}, env.tg.sentTexts())

	env.sendCallback("scan:confirm")
	req := env.api.CallsTo("ConfirmItem")[0].Args[1].(fastkale.ConfirmRequest)
	assert.Equal(t, "Fair", req.Condition)
	assert.Equal(t, map[string]string{"brand": "Apple", "Color": "Black"}, req.Attributes)
	assert.True(t, req.ManuallyVerified)
}

func TestScanFlow_Rescan(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	serveImages(t, env.tg)
	env.scanToResults(t, electronicsScan())
	env.tg.sentTexts()

	env.sendCallback("scan:rescan")

	assert.Equal(t, scanflow.StepCapture, env.session(t).wizard.Step())
	assert.Equal(t, []string{MsgScanRestarted}, env.tg.sentTexts())
}

func TestScanFlow_PhotoWhileOnResults(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	serveImages(t, env.tg)
	env.scanToResults(t, electronicsScan())
	env.tg.sentTexts()

	env.sendPhoto("file-2")

	assert.Equal(t, []string{MsgFinishCurrentItem}, env.tg.sentTexts())
	assert.Len(t, env.api.CallsTo("ScanItem"), 1)
}

func TestScanFlow_ScanFailureStaysOnCapture(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	serveImages(t, env.tg)
	env.api.ScanItemFunc = func(ctx context.Context, token string, images []fastkale.ImageFile) (*fastkale.ScanResult, error) {
		return nil, &fastkale.APIError{Status: 500, Message: "Vision service unavailable"}
	}

	env.sendPhoto("file-1")

	assert.Equal(t, scanflow.StepCapture, env.session(t).wizard.Step())
	assert.True(t, containsText(env.tg.sentTexts(), "⚠️ Vision service unavailable"))
}

func TestScanFlow_DownloadFailure(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	env.tg.On("GetFileDirectURL", mock.Anything).Return("", errors.New("file not found"))

	env.sendPhoto("file-1")

	assert.Contains(t, env.tg.sentTexts(), MsgPhotoDownloadFailed)
	assert.Empty(t, env.api.CallsTo("ScanItem"))
}

func TestScanFlow_JewelryPath(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	serveImages(t, env.tg)
	env.api.GetEbayPriceFunc = func(ctx context.Context, token, itemID string) (*fastkale.PriceResult, error) {
		return &fastkale.PriceResult{ItemID: itemID, EstimatedResaleValue: floatPtr(312.4), CalculationMethod: "metal_value"}, nil
	}

	scan := electronicsScan()
	scan.Category = fastkale.CategoryOption{ID: "cat-jewelry", Name: "jewelry", DisplayName: "Fine Jewelry"}
	env.scanToResults(t, scan)
	env.tg.sentTexts()

	env.sendCallback("scan:confirm")
	assert.Equal(t, scanflow.StepJewelry, env.session(t).wizard.Step())
	assert.True(t, containsText(env.tg.sentTexts(), MsgChooseMetal))
	assert.Empty(t, env.api.CallsTo("GetEbayPrice"))

	env.sendCallback("metal:Silver")
	sent := env.tg.sentMessages()
	require.Len(t, sent, 1)
	keyboard := sent[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.Len(t, keyboard.InlineKeyboard[0], 2)
	assert.Equal(t, "purity:Sterling", *keyboard.InlineKeyboard[0][0].CallbackData)

	env.sendCallback("purity:Sterling")
	assert.True(t, containsText(env.tg.sentTexts(), "Purity: *Sterling*"))

	env.sendText("0.05")
	assert.Equal(t, []string{"⚠️ Enter a weight between 0.1 and 10000 grams."}, env.tg.sentTexts())
	assert.Equal(t, scanflow.StepJewelry, env.session(t).wizard.Step())

	env.sendText("12.5")
	assert.Equal(t, scanflow.StepPrice, env.session(t).wizard.Step())
	assert.True(t, containsText(env.tg.sentTexts(), "Estimated resale value: *$312.40*"))
	assert.Len(t, env.api.CallsTo("GetEbayPrice"), 1)
}

func TestScanFlow_PriceNotFoundAndOverride(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	serveImages(t, env.tg)
	env.scanToResults(t, electronicsScan())
	env.tg.sentTexts()

	env.sendCallback("scan:confirm")
	texts := env.tg.sentTexts()
	assert.True(t, containsText(texts, scanflow.FallbackPriceMessage))
	assert.True(t, containsText(texts, MsgPriceOverrideHint))

	env.sendText("/price abc")
	assert.Equal(t, []string{MsgPriceOverrideUsage}, env.tg.sentTexts())

	env.sendText("/price $25 looks mint")
	assert.True(t, containsText(env.tg.sentTexts(), "Estimated resale value: *$25.00*"))

	calls := env.api.CallsTo("ManualPriceOverride")
	require.Len(t, calls, 1)
	assert.Equal(t, 25.0, calls[0].Args[2])
	assert.Equal(t, "looks mint", calls[0].Args[3])
}

func TestScanFlow_PriceCommandOutsidePriceStep(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)

	env.sendText("/price 10")

	assert.Equal(t, []string{MsgPriceNotExpected}, env.tg.sentTexts())
}

func TestScanFlow_PriceFailureRetry(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	serveImages(t, env.tg)

	calls := 0
	env.api.GetEbayPriceFunc = func(ctx context.Context, token, itemID string) (*fastkale.PriceResult, error) {
		calls++
		if calls == 1 {
			return nil, &fastkale.APIError{Status: 502, Message: "eBay lookup failed"}
		}
		return &fastkale.PriceResult{ItemID: itemID, EstimatedResaleValue: floatPtr(12.5)}, nil
	}
	env.scanToResults(t, electronicsScan())
	env.tg.sentTexts()

	env.sendCallback("scan:confirm")
	assert.Equal(t, scanflow.StepPrice, env.session(t).wizard.Step())
	sent := env.tg.sentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "⚠️ eBay lookup failed", sent[0].Text)
	keyboard := sent[1].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.Equal(t, "scan:retry", *keyboard.InlineKeyboard[0][0].CallbackData)

	env.sendCallback("scan:retry")
	assert.True(t, containsText(env.tg.sentTexts(), "Estimated resale value: *$12.50*"))
	assert.Equal(t, 2, calls)
}

func TestScanFlow_DonateWithCharity(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	serveImages(t, env.tg)
	env.scanToResults(t, electronicsScan())
	env.sendCallback("scan:confirm")
	env.sendCallback("scan:continue")
	env.tg.sentTexts()

	env.sendCallback("scan:donate")
	assert.Equal(t, []string{MsgCharityPrompt}, env.tg.sentTexts())

	env.sendText("charity-7")
	assert.Equal(t, scanflow.StepAdded, env.session(t).wizard.Step())

	addCalls := env.api.CallsTo("AddToCart")
	require.Len(t, addCalls, 1)
	assert.Equal(t, fastkale.ItemTypeDonation, addCalls[0].Args[2])
	assert.Equal(t, "charity-7", addCalls[0].Args[3])
}

func TestScanFlow_DonateWithoutCharity(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	serveImages(t, env.tg)
	env.scanToResults(t, electronicsScan())
	env.sendCallback("scan:confirm")
	env.sendCallback("scan:continue")

	env.sendCallback("scan:donate")
	env.sendCallback("scan:donate-skip")

	addCalls := env.api.CallsTo("AddToCart")
	require.Len(t, addCalls, 1)
	assert.Equal(t, fastkale.ItemTypeDonation, addCalls[0].Args[2])
	assert.Equal(t, "", addCalls[0].Args[3])
}

func TestScanFlow_AddToCartFailureStaysOnChoice(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	serveImages(t, env.tg)
	env.api.AddToCartFunc = func(ctx context.Context, token, itemID string, itemType fastkale.ItemType, charityID string) (*fastkale.AddToCartResult, error) {
		return nil, &fastkale.APIError{Status: 409, Message: "Item already in cart"}
	}
	env.scanToResults(t, electronicsScan())
	env.sendCallback("scan:confirm")
	env.sendCallback("scan:continue")
	env.tg.sentTexts()

	env.sendCallback("scan:sell")

	assert.Equal(t, scanflow.StepDonateSell, env.session(t).wizard.Step())
	texts := env.tg.sentTexts()
	assert.Contains(t, texts, "⚠️ Item already in cart")
	assert.True(t, containsText(texts, MsgChoicePrompt))
	assert.Empty(t, env.api.CallsTo("GetCart"))
}

func TestScanFlow_NoThanksRestarts(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	serveImages(t, env.tg)
	env.scanToResults(t, electronicsScan())
	env.sendCallback("scan:confirm")
	env.sendCallback("scan:continue")
	env.tg.sentTexts()

	env.sendCallback("scan:nothanks")

	assert.Equal(t, scanflow.StepCapture, env.session(t).wizard.Step())
	assert.Equal(t, []string{MsgNoThanks}, env.tg.sentTexts())
	assert.Empty(t, env.api.CallsTo("AddToCart"))
}

func TestScanFlow_PhotoAfterAddedStartsNewScan(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	serveImages(t, env.tg)
	env.scanToResults(t, electronicsScan())
	env.sendCallback("scan:confirm")
	env.sendCallback("scan:continue")
	env.sendCallback("scan:sell")
	require.Equal(t, scanflow.StepAdded, env.session(t).wizard.Step())

	env.sendPhoto("file-2")

	assert.Equal(t, scanflow.StepResults, env.session(t).wizard.Step())
	assert.Len(t, env.api.CallsTo("ScanItem"), 2)
}

func TestScanFlow_AlbumIsBuffered(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	serveImages(t, env.tg)

	env.bot.handleUpdateSync(context.Background(), makePhotoUpdate(env.userId, "a", "album-1"))
	env.bot.handleUpdateSync(context.Background(), makePhotoUpdate(env.userId, "b", "album-1"))

	session := env.session(t)
	buf := session.scan.AlbumBuffer
	require.NotNil(t, buf)
	require.Len(t, buf.Photos, 2)
	assert.Equal(t, "a", buf.Photos[0].FileID)
	assert.Equal(t, "b", buf.Photos[1].FileID)
	assert.Empty(t, env.api.CallsTo("ScanItem"))

	buf.Timer.Stop()
	session.SendSync(SessionMessage{Type: "album_timeout", Ctx: context.Background(), AlbumBuffer: buf})

	calls := env.api.CallsTo("ScanItem")
	require.Len(t, calls, 1)
	assert.Equal(t, 2, calls[0].Args[1])
	assert.Nil(t, session.scan.AlbumBuffer)
}

func TestCancelCommand_ResetsWizard(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	serveImages(t, env.tg)
	env.scanToResults(t, electronicsScan())
	env.tg.sentTexts()

	env.sendText("/cancel")

	assert.Equal(t, scanflow.StepCapture, env.session(t).wizard.Step())
	assert.Equal(t, []string{MsgCancelled}, env.tg.sentTexts())
}

func TestUnexpectedText(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)

	env.sendText("hello")

	assert.Equal(t, []string{MsgStartPrompt}, env.tg.sentTexts())
}

func TestHistoryCommand(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)

	env.sendText("/history")
	assert.Equal(t, []string{MsgNoScanHistory}, env.tg.sentTexts())

	serveImages(t, env.tg)
	env.scanToResults(t, electronicsScan())
	env.tg.sentTexts()

	env.sendText("/history")
	texts := env.tg.sentTexts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Electronics, Good (results)")
}

// --- Cart ---

func sampleCart(meetsMinimum bool) *fastkale.CartData {
	return &fastkale.CartData{
		ID:                 "cart-1",
		TotalResaleValue:   62.5,
		TotalDonationValue: 15,
		MeetsMinimum:       meetsMinimum,
		CanCheckout:        meetsMinimum,
		Items: []fastkale.CartItem{
			{ItemID: "item-1", Title: "Sony headphones", EstimatedValue: 62.5, ItemType: fastkale.ItemTypeResale},
			{ItemID: "item-2", Category: "Books", EstimatedValue: 15, ItemType: fastkale.ItemTypeDonation,
				Charity: &fastkale.Charity{ID: "c1", Name: "Reading Club"}},
		},
	}
}

func TestCartCommand_Empty(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)

	env.sendText("/cart")

	assert.Equal(t, []string{MsgCartEmpty}, env.tg.sentTexts())
}

func TestCartCommand_ShowsSections(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	env.api.GetCartFunc = func(ctx context.Context, token string) (*fastkale.CartData, error) {
		return sampleCart(true), nil
	}

	env.sendText("/cart")

	sent := env.tg.sentMessages()
	require.Len(t, sent, 1)
	text := sent[0].Text
	assert.Contains(t, text, "*Your cart* (2 items)")
	assert.Contains(t, text, "• Sony headphones, $62.50")
	assert.Contains(t, text, "Resale minimum: $50 (currently $62.50)")
	assert.Contains(t, text, "• Books, $15.00 for Reading Club")
	assert.Contains(t, text, "Donation minimum: $50 (currently $15.00)")
	assert.Contains(t, text, "Total value: *$77.50*")
	assert.Contains(t, text, MsgMinimumMet)

	keyboard := sent[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.Len(t, keyboard.InlineKeyboard, 4)
	assert.Equal(t, "cart:remove:item-1", *keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "cart:switch:item-1", *keyboard.InlineKeyboard[0][1].CallbackData)
	assert.Equal(t, "→ Sell", keyboard.InlineKeyboard[1][1].Text)
	assert.Equal(t, "offer:start", *keyboard.InlineKeyboard[2][0].CallbackData)
	assert.Equal(t, "cart:clear", *keyboard.InlineKeyboard[3][0].CallbackData)
}

func TestCartCommand_BelowMinimumHasNoOfferButton(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	env.api.GetCartFunc = func(ctx context.Context, token string) (*fastkale.CartData, error) {
		return sampleCart(false), nil
	}

	env.sendText("/cart")

	sent := env.tg.sentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "Minimum not met. Need $50+")
	keyboard := sent[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.Len(t, keyboard.InlineKeyboard, 3)
}

func TestCartCallback_RemoveItem(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)

	env.sendCallback("cart:remove:item-1")

	calls := env.api.CallsTo("RemoveFromCart")
	require.Len(t, calls, 1)
	assert.Equal(t, "item-1", calls[0].Args[1])
	assert.Equal(t, []string{MsgCartItemRemoved, MsgCartEmpty}, env.tg.sentTexts())
	env.tg.AssertCalled(t, "Request", tgbotapi.NewEditMessageReplyMarkup(env.userId, 20,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}))
}

func TestCartCallback_SwitchItem(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	env.api.GetCartFunc = func(ctx context.Context, token string) (*fastkale.CartData, error) {
		return sampleCart(true), nil
	}

	env.sendCallback("cart:switch:item-2")

	calls := env.api.CallsTo("UpdateCartItem")
	require.Len(t, calls, 1)
	assert.Equal(t, "item-2", calls[0].Args[1])
	assert.Equal(t, fastkale.ItemTypeResale, calls[0].Args[2])
	assert.Contains(t, env.tg.sentTexts(), "Moved to resale.")
}

func TestCartCallback_Clear(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)

	env.sendCallback("cart:clear")

	assert.Len(t, env.api.CallsTo("ClearCart"), 1)
	assert.Equal(t, []string{MsgCartCleared}, env.tg.sentTexts())
}

// --- Offers ---

func TestOfferFlow(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	env.api.GetCartFunc = func(ctx context.Context, token string) (*fastkale.CartData, error) {
		return sampleCart(true), nil
	}
	env.api.CreateOfferFunc = func(ctx context.Context, token, cartID string, addr fastkale.PickupAddress) (*fastkale.Offer, error) {
		return &fastkale.Offer{
			OfferID: "offer-1",
			Status:  "pending",
			PricingSummary: fastkale.PricingSummary{
				TotalResaleValue:   62.5,
				TotalDonationValue: 15,
				TotalSellerPayout:  31.25,
			},
		}, nil
	}

	env.sendText("/offer")
	assert.Equal(t, []string{MsgOfferAddressPrompt}, env.tg.sentTexts())

	env.sendText("somewhere")
	assert.Equal(t, []string{MsgOfferAddressInvalid}, env.tg.sentTexts())

	env.sendText("123 Main St, Orlando, fl, 32801, Apt 4")
	sent := env.tg.sentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, MsgOfferCreating, sent[0].Text)
	assert.Contains(t, sent[1].Text, "Total value: $77.50")
	assert.Contains(t, sent[1].Text, "Your payout: *$31.25*")

	calls := env.api.CallsTo("CreateOffer")
	require.Len(t, calls, 1)
	assert.Equal(t, "cart-1", calls[0].Args[1])
	assert.Equal(t, fastkale.PickupAddress{
		StreetAddress: "123 Main St",
		City:          "Orlando",
		State:         "FL",
		ZipCode:       "32801",
		ApartmentUnit: "Apt 4",
	}, calls[0].Args[2])

	tracked, err := env.store.GetTrackedOffer("offer-1")
	require.NoError(t, err)
	require.NotNil(t, tracked)
	assert.Equal(t, env.userId, tracked.TelegramID)
	assert.Equal(t, 77.5, tracked.GMV)
	assert.Equal(t, "pending", tracked.Status)

	env.sendCallback("offer:accept:offer-1")
	assert.Equal(t, []string{MsgOfferAccepted}, env.tg.sentTexts())
	tracked, err = env.store.GetTrackedOffer("offer-1")
	require.NoError(t, err)
	assert.Equal(t, "accepted", tracked.Status)

	env.sendText("/offers")
	texts := env.tg.sentTexts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "`offer-1` accepted, total $77.50, payout $31.25")
}

func TestOfferCommand_BelowMinimum(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	env.api.GetCartFunc = func(ctx context.Context, token string) (*fastkale.CartData, error) {
		return sampleCart(false), nil
	}

	env.sendText("/offer")

	assert.Equal(t, []string{"Minimum not met. Need $50+ in resale and/or donation to continue."}, env.tg.sentTexts())
	assert.False(t, env.session(t).offer.AwaitingAddress)
}

func TestOfferCallback_Reject(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	require.NoError(t, env.store.TrackOffer(&storage.TrackedOffer{OfferID: "offer-9", TelegramID: env.userId, Status: "pending"}))

	env.sendCallback("offer:reject:offer-9")

	calls := env.api.CallsTo("RejectOffer")
	require.Len(t, calls, 1)
	assert.Equal(t, "offer-9", calls[0].Args[1])
	assert.Equal(t, []string{MsgOfferRejected}, env.tg.sentTexts())

	tracked, err := env.store.GetTrackedOffer("offer-9")
	require.NoError(t, err)
	assert.Equal(t, "rejected", tracked.Status)
}

func TestOffersCommand_Empty(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)

	env.sendText("/offers")

	assert.Equal(t, []string{MsgNoOffers}, env.tg.sentTexts())
}

// --- Admin ---

func TestAdminCommand_ManagesUsers(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)
	send := func(text string) {
		env.bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(testAdminID, text))
	}

	send("/admin users add 42")
	send("/admin users add abc")
	send("/admin users list")
	send("/admin users remove 42")
	send("/admin")

	texts := env.tg.sentTexts()
	require.Len(t, texts, 5)
	assert.Equal(t, "✅ User `42` added.", texts[0])
	assert.Equal(t, MsgAdminUserInvalidID, texts[1])
	assert.Contains(t, texts[2], "• `42` (added ")
	assert.Contains(t, texts[2], "• `1` (added ")
	assert.Equal(t, "🗑 User `42` removed.", texts[3])
	assert.Equal(t, MsgAdminUsage, texts[4])

	allowed, err := env.store.IsUserAllowed(42)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestAdminCommand_NonAdminIsIgnored(t *testing.T) {
	env := setup(t)
	stubTelegram(env.tg)

	env.sendText("/admin users add 42")

	assert.Empty(t, env.tg.sentTexts())
	allowed, err := env.store.IsUserAllowed(42)
	require.NoError(t, err)
	assert.False(t, allowed)
}
