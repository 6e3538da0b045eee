package scanflow

import (
	"maps"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
)

const (
	DefaultCondition = "Good"
	// Scans below this confidence are always sent as manually verified.
	LowConfidenceThreshold = 70
)

var ConditionOptions = []string{"New", "Like New", "Good", "Fair", "Poor"}

// Confirmation holds the user's review of a scan result.
type Confirmation struct {
	Condition  string
	Attributes map[string]string
	// Edited is set when the user opened the edit form.
	Edited bool
}

// NewConfirmation prefills a confirmation from the scan.
func NewConfirmation(scan *fastkale.ScanResult) Confirmation {
	c := Confirmation{Condition: scan.Condition, Attributes: scan.AttributeMap()}
	if c.Condition == "" {
		c.Condition = DefaultCondition
	}
	return c
}

// IsLowConfidence reports whether the scan needs the user's verification.
func IsLowConfidence(scan *fastkale.ScanResult) bool {
	return scan.ConfidenceScore < LowConfidenceThreshold
}

// BuildConfirmRequest builds the confirm-item payload from the scan and
// the user's review.
func BuildConfirmRequest(scan *fastkale.ScanResult, c Confirmation) fastkale.ConfirmRequest {
	condition := c.Condition
	if condition == "" {
		condition = DefaultCondition
	}
	attrs := maps.Clone(c.Attributes)
	if attrs == nil {
		attrs = scan.AttributeMap()
	}
	return fastkale.ConfirmRequest{
		ItemID:           scan.ItemID,
		CategoryID:       scan.Category.ID,
		Condition:        condition,
		Attributes:       attrs,
		ManuallyVerified: c.Edited || IsLowConfidence(scan),
	}
}
