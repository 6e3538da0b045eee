package scanflow

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ParseAttributeEdit parses a "name: value" attribute edit. Only the first
// colon separates.
func ParseAttributeEdit(text string) (name, value string, ok bool) {
	name, value, found := strings.Cut(text, ":")
	if !found {
		return "", "", false
	}
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if name == "" || value == "" {
		return "", "", false
	}
	return name, value, true
}

// priceRegex matches amounts such as "40", "$40", "1,250.50" or "12.5$".
var priceRegex = regexp.MustCompile(`^\$?\s*(\d{1,3}(?:,\d{3})+|\d+)(\.\d{1,2})?\s*\$?$`)

var ErrInvalidPrice = errors.New("invalid price")

// ParsePriceArgs parses a manual price: an amount followed by an optional
// free text reason.
func ParsePriceArgs(args []string) (float64, string, error) {
	if len(args) == 0 {
		return 0, "", ErrInvalidPrice
	}
	m := priceRegex.FindStringSubmatch(args[0])
	if m == nil {
		return 0, "", ErrInvalidPrice
	}
	price, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "")+m[2], 64)
	if err != nil {
		return 0, "", ErrInvalidPrice
	}
	return price, strings.Join(args[1:], " "), nil
}
