package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/raine/telegram-fastkale-bot/internal/scanflow"
)

// CartMinimum is the value a cart section needs before an offer can be made.
const CartMinimum = 50.0

// maxButtonTitle keeps item buttons readable.
const maxButtonTitle = 24

// CartHandler shows and edits the backend cart.
type CartHandler struct {
	api  fastkale.FlowService
	auth *AuthHandler
}

// NewCartHandler creates a new cart handler.
func NewCartHandler(api fastkale.FlowService, auth *AuthHandler) *CartHandler {
	return &CartHandler{api: api, auth: auth}
}

// HandleCartCommand handles /cart.
// Called from session worker - no locking needed.
func (h *CartHandler) HandleCartCommand(ctx context.Context, session *UserSession) {
	cart, err := h.api.GetCart(ctx, session.AccessToken())
	if err != nil {
		h.auth.HandleFlowError(ctx, session, err)
		return
	}
	h.showCart(session, cart)
}

// HandleCallback handles cart:view, cart:remove:<id>, cart:switch:<id>
// and cart:clear.
// Called from session worker - no locking needed.
func (h *CartHandler) HandleCallback(ctx context.Context, session *UserSession, query *tgbotapi.CallbackQuery) {
	LogCallback(session.userId, "%s", query.Data)
	args := callbackArgs(query.Data, "cart:")

	switch args[0] {
	case "view":
		removeInlineKeyboard(session.sender, query)
		h.HandleCartCommand(ctx, session)
	case "remove":
		if len(args) < 2 {
			return
		}
		removeInlineKeyboard(session.sender, query)
		h.removeItem(ctx, session, args[1])
	case "switch":
		if len(args) < 2 {
			return
		}
		removeInlineKeyboard(session.sender, query)
		h.switchItem(ctx, session, args[1])
	case "clear":
		removeInlineKeyboard(session.sender, query)
		h.clear(ctx, session)
	default:
		log.Warn().Str("data", query.Data).Msg("unknown cart callback")
	}
}

func (h *CartHandler) removeItem(ctx context.Context, session *UserSession, itemID string) {
	if err := h.api.RemoveFromCart(ctx, session.AccessToken(), itemID); err != nil {
		h.auth.HandleFlowError(ctx, session, err)
		return
	}
	session.reply(MsgCartItemRemoved)
	h.HandleCartCommand(ctx, session)
}

// switchItem moves an item between resale and donation.
func (h *CartHandler) switchItem(ctx context.Context, session *UserSession, itemID string) {
	token := session.AccessToken()
	cart, err := h.api.GetCart(ctx, token)
	if err != nil {
		h.auth.HandleFlowError(ctx, session, err)
		return
	}

	var item *fastkale.CartItem
	for i := range cart.Items {
		if cart.Items[i].ItemID == itemID {
			item = &cart.Items[i]
			break
		}
	}
	if item == nil {
		h.showCart(session, cart)
		return
	}

	newType := fastkale.ItemTypeDonation
	if item.ItemType == fastkale.ItemTypeDonation {
		newType = fastkale.ItemTypeResale
	}
	if err := h.api.UpdateCartItem(ctx, token, itemID, newType, ""); err != nil {
		h.auth.HandleFlowError(ctx, session, err)
		return
	}
	session.reply(MsgCartItemSwitched, newType)
	h.HandleCartCommand(ctx, session)
}

func (h *CartHandler) clear(ctx context.Context, session *UserSession) {
	if err := h.api.ClearCart(ctx, session.AccessToken()); err != nil {
		h.auth.HandleFlowError(ctx, session, err)
		return
	}
	session.reply(MsgCartCleared)
}

func (h *CartHandler) showCart(session *UserSession, cart *fastkale.CartData) {
	if cart.ItemCount() == 0 {
		session.reply(MsgCartEmpty)
		return
	}
	session.replyWithKeyboard(formatCart(cart), cartKeyboard(cart))
}

func formatCart(cart *fastkale.CartData) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Your cart* (%s)\n", countNoun(cart.ItemCount(), "item", "items"))

	resale := cart.ItemsOfType(fastkale.ItemTypeResale)
	fmt.Fprintf(&sb, "\n*Resale* (%d)\n", len(resale))
	for _, item := range resale {
		fmt.Fprintf(&sb, "• %s, %s\n", escapeMarkdown(itemTitle(item)), scanflow.FormatPrice(item.EstimatedValue))
	}
	fmt.Fprintf(&sb, "Resale minimum: $%.0f (currently %s)\n", CartMinimum, scanflow.FormatPrice(cart.TotalResaleValue))

	donation := cart.ItemsOfType(fastkale.ItemTypeDonation)
	fmt.Fprintf(&sb, "\n*Donation* (%d)\n", len(donation))
	for _, item := range donation {
		fmt.Fprintf(&sb, "• %s, %s", escapeMarkdown(itemTitle(item)), scanflow.FormatPrice(item.EstimatedValue))
		if item.Charity != nil && item.Charity.Name != "" {
			fmt.Fprintf(&sb, " for %s", escapeMarkdown(item.Charity.Name))
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Donation minimum: $%.0f (currently %s)\n", CartMinimum, scanflow.FormatPrice(cart.TotalDonationValue))

	fmt.Fprintf(&sb, "\nTotal value: *%s*\n\n", scanflow.FormatPrice(cart.GMV()))
	if cart.MeetsMinimum {
		sb.WriteString(MsgMinimumMet)
	} else {
		fmt.Fprintf(&sb, MsgMinimumNotMet, CartMinimum)
	}
	return sb.String()
}

func cartKeyboard(cart *fastkale.CartData) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, item := range cart.Items {
		switchLabel := "→ Donate"
		if item.ItemType == fastkale.ItemTypeDonation {
			switchLabel = "→ Sell"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ "+truncate(itemTitle(item), maxButtonTitle), "cart:remove:"+item.ItemID),
			tgbotapi.NewInlineKeyboardButtonData(switchLabel, "cart:switch:"+item.ItemID),
		))
	}
	if cart.MeetsMinimum {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(BtnToOffer, "offer:start"),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(BtnClearCart, "cart:clear"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func itemTitle(item fastkale.CartItem) string {
	switch {
	case item.Title != "":
		return item.Title
	case item.Category != "":
		return item.Category
	default:
		return "Item"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
