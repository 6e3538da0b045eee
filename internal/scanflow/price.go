package scanflow

import (
	"fmt"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
)

const (
	FallbackPriceMessage = "We couldn't find enough comparables. You can enter a price manually on the next screen or try different photos."
	// Share of the resale value shown as the sell now payout.
	PayoutRate = 0.5
)

// FormatPrice formats a dollar amount with two decimals.
func FormatPrice(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

// PriceText returns the text of the price screen. found is false when the
// backend had no usable estimate, in which case text is the backend message
// or the fallback.
func PriceText(p *fastkale.PriceResult) (text string, found bool) {
	if p.HasPrice() {
		return FormatPrice(p.Value()), true
	}
	if p != nil && p.Message != "" {
		return p.Message, false
	}
	return FallbackPriceMessage, false
}

// PayoutEstimate returns the "$X.XX+" sell now estimate, or "" when there
// is no value.
func PayoutEstimate(p *fastkale.PriceResult) string {
	v := p.Value()
	if v <= 0 {
		return ""
	}
	return FormatPrice(v*PayoutRate) + "+"
}
