package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/raine/telegram-fastkale-bot/internal/scanflow"
	"github.com/raine/telegram-fastkale-bot/internal/storage"
)

// OfferHandler turns a cart into an offer and lets the user answer it.
type OfferHandler struct {
	api   fastkale.FlowService
	store storage.SessionStore
	auth  *AuthHandler
}

// NewOfferHandler creates a new offer handler.
func NewOfferHandler(api fastkale.FlowService, store storage.SessionStore, auth *AuthHandler) *OfferHandler {
	return &OfferHandler{api: api, store: store, auth: auth}
}

// HandleOfferCommand checks the cart and asks for the pickup address.
// Called from session worker - no locking needed.
func (h *OfferHandler) HandleOfferCommand(ctx context.Context, session *UserSession) {
	cart, err := h.api.GetCart(ctx, session.AccessToken())
	if err != nil {
		h.auth.HandleFlowError(ctx, session, err)
		return
	}
	if cart.ItemCount() == 0 {
		session.reply(MsgCartEmpty)
		return
	}
	if !cart.MeetsMinimum {
		session.reply(MsgMinimumNotMet, CartMinimum)
		return
	}

	session.offer = OfferFlowState{AwaitingAddress: true, CartID: cart.ID}
	session.reply(MsgOfferAddressPrompt)
}

// HandleText reads the pickup address. Returns true if the message was
// handled.
// Called from session worker - no locking needed.
func (h *OfferHandler) HandleText(ctx context.Context, session *UserSession, text string) bool {
	if !session.offer.AwaitingAddress {
		return false
	}

	addr, err := parsePickupAddress(text)
	if err != nil {
		session.reply(MsgOfferAddressInvalid)
		return true
	}

	cartID := session.offer.CartID
	session.offer = OfferFlowState{}
	h.createOffer(ctx, session, cartID, addr)
	return true
}

func (h *OfferHandler) createOffer(ctx context.Context, session *UserSession, cartID string, addr fastkale.PickupAddress) {
	session.reply(MsgOfferCreating)

	offer, err := h.api.CreateOffer(ctx, session.AccessToken(), cartID, addr)
	if err != nil {
		h.auth.HandleFlowError(ctx, session, err)
		return
	}
	LogAPI(session.userId, "create-offer: %s %s", offer.OfferID, offer.Status)

	tracked := &storage.TrackedOffer{
		OfferID:    offer.OfferID,
		TelegramID: session.userId,
		Status:     offer.Status,
		GMV:        offer.PricingSummary.TotalValue(),
		Payout:     offer.PricingSummary.TotalSellerPayout,
	}
	if err := h.store.TrackOffer(tracked); err != nil {
		log.Warn().Err(err).Str("offerId", offer.OfferID).Msg("failed to track offer")
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(BtnAccept, "offer:accept:"+offer.OfferID),
		tgbotapi.NewInlineKeyboardButtonData(BtnReject, "offer:reject:"+offer.OfferID),
	))
	session.replyWithKeyboard(formatOffer(offer), keyboard)
}

// formatOffer renders the pricing summary.
func formatOffer(offer *fastkale.Offer) string {
	p := offer.PricingSummary
	gmv := p.TotalValue()

	var sb strings.Builder
	sb.WriteString("*Your offer*\n\n")
	fmt.Fprintf(&sb, "Resale value: %s\n", scanflow.FormatPrice(p.TotalResaleValue))
	fmt.Fprintf(&sb, "Donation value: %s\n", scanflow.FormatPrice(p.TotalDonationValue))
	fmt.Fprintf(&sb, "Total value: %s\n", scanflow.FormatPrice(gmv))
	fmt.Fprintf(&sb, "Your payout: *%s*\n", scanflow.FormatPrice(p.TotalSellerPayout))
	fmt.Fprintf(&sb, "Status: %s", escapeMarkdown(offer.Status))
	return sb.String()
}

// HandleCallback handles offer:start, offer:accept:<id> and
// offer:reject:<id>.
// Called from session worker - no locking needed.
func (h *OfferHandler) HandleCallback(ctx context.Context, session *UserSession, query *tgbotapi.CallbackQuery) {
	LogCallback(session.userId, "%s", query.Data)
	args := callbackArgs(query.Data, "offer:")

	switch {
	case args[0] == "start":
		removeInlineKeyboard(session.sender, query)
		h.HandleOfferCommand(ctx, session)
	case args[0] == "accept" && len(args) == 2:
		removeInlineKeyboard(session.sender, query)
		h.accept(ctx, session, args[1])
	case args[0] == "reject" && len(args) == 2:
		removeInlineKeyboard(session.sender, query)
		h.reject(ctx, session, args[1])
	default:
		log.Warn().Str("data", query.Data).Msg("unknown offer callback")
	}
}

func (h *OfferHandler) accept(ctx context.Context, session *UserSession, offerID string) {
	offer, err := h.api.AcceptOffer(ctx, session.AccessToken(), offerID)
	if err != nil {
		h.auth.HandleFlowError(ctx, session, err)
		return
	}
	status := "accepted"
	if offer != nil && offer.Status != "" {
		status = offer.Status
	}
	h.updateStatus(offerID, status)
	session.reply(MsgOfferAccepted)
}

func (h *OfferHandler) reject(ctx context.Context, session *UserSession, offerID string) {
	if err := h.api.RejectOffer(ctx, session.AccessToken(), offerID, ""); err != nil {
		h.auth.HandleFlowError(ctx, session, err)
		return
	}
	h.updateStatus(offerID, "rejected")
	session.reply(MsgOfferRejected)
}

func (h *OfferHandler) updateStatus(offerID, status string) {
	if err := h.store.UpdateOfferStatus(offerID, status); err != nil {
		log.Warn().Err(err).Str("offerId", offerID).Msg("failed to update offer status")
	}
}

// HandleOffersCommand lists the offers created through the bot.
func (h *OfferHandler) HandleOffersCommand(session *UserSession) {
	offers, err := h.store.GetOffersByUser(session.userId)
	if err != nil {
		session.replyWithError(err)
		return
	}
	if len(offers) == 0 {
		session.reply(MsgNoOffers)
		return
	}

	var sb strings.Builder
	sb.WriteString(MsgOffersHeader)
	for _, o := range offers {
		fmt.Fprintf(&sb, "• `%s` %s, total %s, payout %s\n",
			o.OfferID, escapeMarkdown(o.Status), scanflow.FormatPrice(o.GMV), scanflow.FormatPrice(o.Payout))
	}
	session.reply("%s", sb.String())
}
