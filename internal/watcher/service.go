package watcher

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/raine/telegram-fastkale-bot/internal/storage"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultPollInterval is the time between polling cycles.
	DefaultPollInterval = 5 * time.Minute

	// DelayBetweenOffers is the delay between fetching each offer.
	DelayBetweenOffers = 500 * time.Millisecond

	// PruneInterval is how often to prune settled offers.
	PruneInterval = 24 * time.Hour

	// SettledOfferMaxAge is how long to keep settled offers before pruning.
	SettledOfferMaxAge = 30 * 24 * time.Hour // 30 days
)

// SettledStatuses are offer statuses that no longer change.
var SettledStatuses = []string{"completed", "rejected", "expired", "cancelled"}

// IsSettled reports whether an offer status is final.
func IsSettled(status string) bool {
	return slices.Contains(SettledStatuses, strings.ToLower(status))
}

// BotSender abstracts the Telegram bot API for sending messages.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// OfferGetter fetches the current state of an offer.
type OfferGetter interface {
	GetOffer(ctx context.Context, token, offerID string) (*fastkale.Offer, error)
}

// Store is the storage used by the watcher.
type Store interface {
	Get(telegramID int64) (*storage.StoredSession, error)
	storage.OfferStore
}

// Service is the background watcher that polls tracked offers for status
// changes.
type Service struct {
	store      Store
	offers     OfferGetter
	bot        BotSender
	interval   time.Duration
	startDelay time.Duration
	offerDelay time.Duration
}

// NewService creates a new watcher service. A zero interval uses
// DefaultPollInterval.
func NewService(store Store, offers OfferGetter, bot BotSender, interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Service{
		store:      store,
		offers:     offers,
		bot:        bot,
		interval:   interval,
		startDelay: 5 * time.Second,
		offerDelay: DelayBetweenOffers,
	}
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("starting offer watcher")

	// Let the bot fully start before the first poll
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.startDelay):
	}
	s.Poll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	pruneTicker := time.NewTicker(PruneInterval)
	defer pruneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("offer watcher stopped")
			return
		case <-ticker.C:
			s.Poll(ctx)
		case <-pruneTicker.C:
			s.pruneSettledOffers()
		}
	}
}

// Poll executes one polling cycle for all open offers.
func (s *Service) Poll(ctx context.Context) {
	log.Debug().Msg("starting poll cycle")

	offers, err := s.store.GetAllTrackedOffers()
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch tracked offers")
		return
	}

	processed := 0
	for _, offer := range offers {
		if IsSettled(offer.Status) {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		// Rate limit between offers
		if processed > 0 && s.offerDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.offerDelay):
			}
		}
		processed++

		s.checkOffer(ctx, offer)
	}

	log.Debug().Int("checked", processed).Msg("poll cycle complete")
}

// checkOffer fetches one offer and notifies its owner when the status changed.
func (s *Service) checkOffer(ctx context.Context, tracked storage.TrackedOffer) {
	session, err := s.store.Get(tracked.TelegramID)
	if err != nil {
		log.Error().Err(err).Int64("userID", tracked.TelegramID).Msg("failed to load session")
		return
	}
	if session == nil || session.Tokens.AccessToken == "" {
		log.Debug().Int64("userID", tracked.TelegramID).Str("offerID", tracked.OfferID).Msg("no session, skipping offer")
		return
	}

	offer, err := s.offers.GetOffer(ctx, session.Tokens.AccessToken, tracked.OfferID)
	if err != nil {
		log.Warn().Err(err).Str("offerID", tracked.OfferID).Msg("failed to fetch offer")
		return
	}

	if offer.Status == "" || offer.Status == tracked.Status {
		return
	}

	log.Info().
		Str("offerID", tracked.OfferID).
		Str("from", tracked.Status).
		Str("to", offer.Status).
		Msg("offer status changed")

	// Record before notifying so a failed send does not repeat forever
	if err := s.store.UpdateOfferStatus(tracked.OfferID, offer.Status); err != nil {
		log.Error().Err(err).Str("offerID", tracked.OfferID).Msg("failed to update offer status")
	}

	s.sendNotification(tracked.TelegramID, offer)
}

// sendNotification tells the user about a new offer status.
func (s *Service) sendNotification(userID int64, offer *fastkale.Offer) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("🔔 *Offer update:* %s\n\n", escapeMarkdown(offer.Status)))
	sb.WriteString(fmt.Sprintf("Offer `%s`\n", offer.OfferID))
	if p := offer.PricingSummary; p.TotalValue() > 0 || p.TotalSellerPayout > 0 {
		sb.WriteString(fmt.Sprintf("💰 Total value: $%.2f\n", p.TotalValue()))
		sb.WriteString(fmt.Sprintf("💵 Your payout: $%.2f\n", p.TotalSellerPayout))
	}

	msg := tgbotapi.NewMessage(userID, sb.String())
	msg.ParseMode = tgbotapi.ModeMarkdown

	_, err := s.bot.Send(msg)
	if err != nil {
		log.Error().
			Err(err).
			Int64("userID", userID).
			Str("offerID", offer.OfferID).
			Msg("failed to send notification")
	} else {
		log.Debug().
			Int64("userID", userID).
			Str("offerID", offer.OfferID).
			Msg("notification sent")
	}
}

// pruneSettledOffers removes old settled offers to prevent database bloat.
func (s *Service) pruneSettledOffers() {
	count, err := s.store.PruneSettledOffers(SettledOfferMaxAge, SettledStatuses)
	if err != nil {
		log.Error().Err(err).Msg("failed to prune settled offers")
		return
	}
	if count > 0 {
		log.Info().Int64("pruned", count).Msg("pruned settled offers")
	}
}

// escapeMarkdown escapes special characters for Telegram Markdown V1.
func escapeMarkdown(text string) string {
	text = strings.ReplaceAll(text, "*", "\\*")
	text = strings.ReplaceAll(text, "_", "\\_")
	text = strings.ReplaceAll(text, "`", "\\`")
	text = strings.ReplaceAll(text, "[", "\\[")
	return text
}
