package scanflow

import (
	"slices"
	"strconv"
	"strings"
)

const (
	DefaultMetal   = "Gold"
	MinWeightGrams = 0.1
	MaxWeightGrams = 10000
)

var Metals = []string{"Gold", "Silver", "Platinum"}

var puritiesByMetal = map[string][]string{
	"Gold":     {"24K", "22K", "18K", "14K", "10K"},
	"Silver":   {"Sterling", "Fine"},
	"Platinum": {"950", "900", "850"},
}

// PuritiesFor returns the purity options of a metal. Unknown metals get
// the gold options.
func PuritiesFor(metal string) []string {
	if p, ok := puritiesByMetal[metal]; ok {
		return p
	}
	return puritiesByMetal[DefaultMetal]
}

// JewelryInput is what the user enters on the jewelry step. Only the item
// id reaches the backend; the inputs gate the price request.
type JewelryInput struct {
	Metal  string
	Purity string
	Weight string
}

// WeightGrams parses the weight. ok is false for anything that is not a
// number.
func (j JewelryInput) WeightGrams() (float64, bool) {
	w, err := strconv.ParseFloat(strings.TrimSpace(j.Weight), 64)
	if err != nil {
		return 0, false
	}
	return w, true
}

// Validate checks the weight range and that a purity was picked.
func (j JewelryInput) Validate() error {
	w, ok := j.WeightGrams()
	if !ok || w < MinWeightGrams || w > MaxWeightGrams {
		return &ValidationError{Field: "weight", Message: "Enter a weight between 0.1 and 10000 grams."}
	}
	if strings.TrimSpace(j.Purity) == "" {
		return &ValidationError{Field: "purity", Message: "Choose a purity."}
	}
	return nil
}

// WithMetal switches the metal and clears a purity that does not belong
// to it.
func (j JewelryInput) WithMetal(metal string) JewelryInput {
	j.Metal = metal
	if !slices.Contains(PuritiesFor(metal), j.Purity) {
		j.Purity = ""
	}
	return j
}
