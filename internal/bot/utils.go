package bot

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/lithammer/dedent"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
)

func formatReplyText(text string, a ...any) string {
	return fmt.Sprintf(strings.TrimSpace(dedent.Dedent(text)), a...)
}

// parseCommand splits a command message into the command and its
// arguments. A bot mention suffix ("/cart@fastkale_bot") is dropped.
func parseCommand(s string) (string, []string) {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return "", nil
	}
	command, _, _ := strings.Cut(parts[0], "@")
	return command, parts[1:]
}

var (
	zipRegex          = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	errInvalidAddress = errors.New("invalid pickup address")
)

// parsePickupAddress parses "street, city, state, zip[, unit]".
func parsePickupAddress(text string) (fastkale.PickupAddress, error) {
	parts := strings.Split(text, ",")
	if len(parts) < 4 || len(parts) > 5 {
		return fastkale.PickupAddress{}, errInvalidAddress
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return fastkale.PickupAddress{}, errInvalidAddress
		}
	}
	if !zipRegex.MatchString(parts[3]) {
		return fastkale.PickupAddress{}, errInvalidAddress
	}

	addr := fastkale.PickupAddress{
		StreetAddress: parts[0],
		City:          parts[1],
		State:         strings.ToUpper(parts[2]),
		ZipCode:       parts[3],
	}
	if len(parts) == 5 {
		addr.ApartmentUnit = parts[4]
	}
	return addr, nil
}

// callbackArgs returns the parts of callback data after the prefix, e.g.
// "cart:remove:42" with prefix "cart:" gives ["remove", "42"].
func callbackArgs(data, prefix string) []string {
	return strings.SplitN(strings.TrimPrefix(data, prefix), ":", 2)
}

// removeInlineKeyboard removes the buttons of the message a callback came
// from, so a step can't be answered twice.
func removeInlineKeyboard(tg MessageSender, query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(
		query.Message.Chat.ID,
		query.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}},
	)
	tg.Request(edit)
}
