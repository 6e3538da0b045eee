package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/raine/telegram-fastkale-bot/internal/scanflow"
	"github.com/raine/telegram-fastkale-bot/internal/storage"
)

// BotAPI defines the interface for Telegram bot API operations.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot is the main Telegram bot handler.
type Bot struct {
	tg           BotAPI
	state        *BotState
	sessionStore storage.SessionStore
	api          fastkale.FlowService
	adminID      int64

	// Handlers
	authHandler  *AuthHandler
	scanHandler  *ScanHandler
	cartHandler  *CartHandler
	offerHandler *OfferHandler
}

// NewBot creates a new Bot instance.
func NewBot(tg BotAPI, sessionStore storage.SessionStore, api fastkale.FlowService, adminID int64) *Bot {
	bot := &Bot{
		tg:           tg,
		sessionStore: sessionStore,
		api:          api,
		adminID:      adminID,
	}

	bot.authHandler = NewAuthHandler(api, sessionStore)
	bot.scanHandler = NewScanHandler(tg, api, sessionStore, bot.authHandler)
	bot.cartHandler = NewCartHandler(api, bot.authHandler)
	bot.offerHandler = NewOfferHandler(api, sessionStore, bot.authHandler)
	bot.state = bot.NewBotState()

	return bot
}

// Shutdown stops all session workers.
func (b *Bot) Shutdown() {
	b.state.Shutdown()
}

// HandleUpdate is the main message router.
// It dispatches messages to the appropriate session worker for sequential processing.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, false)
}

// handleUpdateSync is like HandleUpdate but waits for message processing to complete.
// Used in tests where we need synchronous behavior.
func (b *Bot) handleUpdateSync(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, true)
}

// dispatchUpdate routes updates to the appropriate session worker.
// If sync is true, it waits for message processing to complete.
func (b *Bot) dispatchUpdate(ctx context.Context, update tgbotapi.Update, sync bool) {
	var userId int64

	// Determine user ID from the update
	if update.CallbackQuery != nil {
		userId = update.CallbackQuery.From.ID
	} else if update.Message != nil && update.Message.From != nil {
		userId = update.Message.From.ID
	} else {
		return
	}

	// Check if user is allowed (admin always allowed)
	// MUST be before getUserSession to prevent memory exhaustion from random user IDs
	if userId != b.adminID {
		allowed, err := b.sessionStore.IsUserAllowed(userId)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userId).Msg("whitelist check failed")
			return // Fail closed
		}
		if !allowed {
			return // Silent drop
		}
	}

	session, err := b.state.getUserSession(userId)
	if err != nil {
		log.Error().Err(err).Send()
		return
	}

	// Helper to send sync or async based on flag
	send := func(msg SessionMessage) {
		if sync {
			session.SendSync(msg)
		} else {
			session.Send(msg)
		}
	}

	// Dispatch to session worker based on update type
	if update.CallbackQuery != nil {
		send(SessionMessage{
			Type:          "callback",
			Ctx:           ctx,
			CallbackQuery: update.CallbackQuery,
		})
		return
	}

	log.Info().Int64("userId", userId).Int("photos", len(update.Message.Photo)).Msg("got message")

	if len(update.Message.Photo) > 0 {
		send(SessionMessage{
			Type:    "photo",
			Ctx:     ctx,
			Message: update.Message,
		})
	} else {
		send(SessionMessage{
			Type:    "text",
			Ctx:     ctx,
			Message: update.Message,
		})
	}
}

// HandleSessionMessage implements MessageHandler interface.
// This is called by the session worker goroutine for sequential processing.
// No mutex locking is needed here since only one goroutine accesses session state.
func (b *Bot) HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage) {
	switch msg.Type {
	case "callback":
		b.handleCallbackQuery(ctx, session, msg.CallbackQuery)
	case "photo":
		b.handlePhotoMessage(ctx, session, msg.Message)
	case "text":
		b.handleTextMessage(ctx, session, msg.Message)
	case "album_timeout":
		b.scanHandler.ProcessAlbumTimeout(msg.Ctx, session, msg.AlbumBuffer)
	}
}

// handlePhotoMessage processes photo messages.
// Called from session worker - no locking needed.
func (b *Bot) handlePhotoMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	if !session.isLoggedIn() {
		session.reply(MsgLoginRequired)
		return
	}
	b.scanHandler.HandlePhoto(ctx, session, message)
}

// handleTextMessage processes text messages.
// Called from session worker - no locking needed.
func (b *Bot) handleTextMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	// Handle auth flow first, passwords must not reach the flow log
	if b.authHandler.HandleMessage(ctx, session, message) {
		return
	}
	LogUser(session.userId, "%s", redactCommand(message.Text))

	if strings.HasPrefix(message.Text, "/") {
		b.handleCommand(ctx, session, message)
		return
	}

	if !session.isLoggedIn() {
		session.reply(MsgLoginRequired)
		return
	}

	// Pickup address of an offer
	if b.offerHandler.HandleText(ctx, session, message.Text) {
		return
	}

	// Weight, charity id or attribute edits of the scan wizard
	if b.scanHandler.HandleText(ctx, session, message.Text) {
		return
	}

	if session.wizard.Step() == scanflow.StepCapture {
		session.reply(MsgStartPrompt)
	} else {
		session.reply(MsgFinishCurrentItem)
	}
}

// handleCommand processes bot commands.
// Called from session worker - no locking needed.
func (b *Bot) handleCommand(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	command, args := parseCommand(message.Text)
	switch command {
	case "/start":
		if !session.isLoggedIn() {
			session.reply(MsgLoginRequired)
		} else {
			session.reply(MsgStartPrompt)
		}
	case "/login":
		b.authHandler.HandleLoginCommand(session)
	case "/signup":
		b.authHandler.HandleSignupCommand(session)
	case "/logout":
		b.authHandler.HandleLogoutCommand(ctx, session)
	case "/reset":
		b.authHandler.HandleResetCommand(ctx, session, message, args)
	case "/cancel":
		session.reset()
		session.replyAndRemoveCustomKeyboard(MsgCancelled)
	case "/version":
		session.reply(MsgVersionInfo, Version, BuildTime)
	case "/admin":
		b.handleAdminCommand(session, strings.Join(args, " "))
	case "/scan", "/cart", "/offer", "/offers", "/history", "/price", "/charity":
		if !session.isLoggedIn() {
			session.reply(MsgLoginRequired)
			return
		}
		b.handleFlowCommand(ctx, session, command, args)
	default:
		if !session.isLoggedIn() {
			session.reply(MsgLoginRequired)
			return
		}
		session.reply(MsgStartPrompt)
	}
}

// handleFlowCommand handles the commands that need a signed in user.
func (b *Bot) handleFlowCommand(ctx context.Context, session *UserSession, command string, args []string) {
	switch command {
	case "/scan":
		session.offer = OfferFlowState{}
		b.scanHandler.HandleScanCommand(session)
	case "/cart":
		b.cartHandler.HandleCartCommand(ctx, session)
	case "/offer":
		b.offerHandler.HandleOfferCommand(ctx, session)
	case "/offers":
		b.offerHandler.HandleOffersCommand(session)
	case "/history":
		b.scanHandler.HandleHistoryCommand(session)
	case "/price":
		b.scanHandler.HandlePriceCommand(ctx, session, args)
	case "/charity":
		b.scanHandler.HandleCharityCommand(ctx, session, args)
	}
}

// handleCallbackQuery handles inline keyboard button presses.
// Called from session worker - no locking needed.
func (b *Bot) handleCallbackQuery(ctx context.Context, session *UserSession, query *tgbotapi.CallbackQuery) {
	// Answer the callback to remove the loading state
	callback := tgbotapi.NewCallback(query.ID, "")
	b.tg.Request(callback)

	if !session.isLoggedIn() {
		session.reply(MsgLoginRequired)
		return
	}

	// Route to appropriate handler
	switch {
	case strings.HasPrefix(query.Data, "cart:"):
		b.cartHandler.HandleCallback(ctx, session, query)
	case strings.HasPrefix(query.Data, "offer:"):
		b.offerHandler.HandleCallback(ctx, session, query)
	case strings.HasPrefix(query.Data, "scan:"),
		strings.HasPrefix(query.Data, "cond:"),
		strings.HasPrefix(query.Data, "metal:"),
		strings.HasPrefix(query.Data, "purity:"):
		b.scanHandler.HandleCallback(ctx, session, query)
	default:
		log.Warn().Str("data", query.Data).Msg("unknown callback")
	}
}

// handleAdminCommand handles /admin command with subcommands.
// Only the admin user can use this command (defense in depth check).
func (b *Bot) handleAdminCommand(session *UserSession, args string) {
	// Verify caller is admin even though whitelist check passed
	if session.userId != b.adminID {
		return // Silent drop for non-admin users
	}

	parts := strings.Fields(args)
	if len(parts) == 0 {
		session.reply(MsgAdminUsage)
		return
	}

	switch parts[0] {
	case "users":
		if len(parts) < 2 {
			session.reply(MsgAdminUsage)
			return
		}
		b.handleAdminUsersCommand(session, parts[1], parts[2:])
	default:
		session.reply(MsgAdminUsage)
	}
}

// handleAdminUsersCommand handles /admin users subcommands.
func (b *Bot) handleAdminUsersCommand(session *UserSession, action string, args []string) {
	switch action {
	case "add":
		if len(args) < 1 {
			session.reply(MsgAdminUserAddUsage)
			return
		}
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			session.reply(MsgAdminUserInvalidID)
			return
		}
		if err := b.sessionStore.AddAllowedUser(userID, session.userId); err != nil {
			session.replyWithError(err)
			return
		}
		session.reply(MsgAdminUserAdded, userID)

	case "remove":
		if len(args) < 1 {
			session.reply(MsgAdminUserRemoveUsage)
			return
		}
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			session.reply(MsgAdminUserInvalidID)
			return
		}
		if err := b.sessionStore.RemoveAllowedUser(userID); err != nil {
			session.replyWithError(err)
			return
		}
		session.reply(MsgAdminUserRemoved, userID)

	case "list":
		users, err := b.sessionStore.GetAllowedUsers()
		if err != nil {
			session.replyWithError(err)
			return
		}
		if len(users) == 0 {
			session.reply(MsgAdminNoUsers)
			return
		}
		var sb strings.Builder
		sb.WriteString(MsgAdminAllowedUsers)
		for _, u := range users {
			sb.WriteString(fmt.Sprintf("• `%d` (added %s)\n", u.TelegramID, u.AddedAt.Format("2006-01-02")))
		}
		session.reply(sb.String())

	default:
		session.reply(MsgAdminUsage)
	}
}
