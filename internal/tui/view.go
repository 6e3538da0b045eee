package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/raine/telegram-fastkale-bot/internal/scanflow"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	priceStyle  = lipgloss.NewStyle().Bold(true)
	boxStyle    = lipgloss.NewStyle().Padding(1, 2)
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	st := m.wizard.State()

	var b strings.Builder
	b.WriteString(titleStyle.Render(st.Step.Title()))
	b.WriteString("\n\n")

	switch st.Step {
	case scanflow.StepCapture:
		m.viewCapture(&b)
	case scanflow.StepResults:
		m.viewResults(&b, st)
	case scanflow.StepJewelry:
		viewJewelry(&b, st)
	case scanflow.StepPrice:
		viewPrice(&b, st)
	case scanflow.StepDonateSell:
		viewChoice(&b, st)
	case scanflow.StepAdded:
		viewCart(&b, m.cart.get())
	}

	b.WriteString("\n")
	for _, r := range m.rejected {
		b.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s: %s", r.Name, r.Reason)) + "\n")
	}
	if st.Loading {
		b.WriteString(m.spinner.View() + " Working…\n")
	}
	if st.Error != "" {
		b.WriteString(errorStyle.Render(st.Error) + "\n")
	}
	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice) + "\n")
	}
	if m.mode != inputNone {
		b.WriteString(m.input.View() + "\n")
	} else {
		b.WriteString(m.help.ShortHelpView(m.stepKeys(st.Step)) + "\n")
	}
	return boxStyle.Render(b.String())
}

func (m Model) viewCapture(b *strings.Builder) {
	if len(m.images) == 0 {
		b.WriteString("No photos yet. Add 1 to 5 photos of the item.\n")
	}
	for _, img := range m.images {
		fmt.Fprintf(b, "• %s %s\n", img.Name, mutedStyle.Render(fmt.Sprintf("(%s, %d KB)", img.MimeType, len(img.Data)/1024)))
	}
}

func (m Model) viewResults(b *strings.Builder, st scanflow.State) {
	scan := st.Scan
	if scan == nil {
		return
	}
	c := m.currentConfirmation(st)

	fmt.Fprintf(b, "Category:   %s\n", scan.Category.Label())
	fmt.Fprintf(b, "Condition:  %s\n", c.Condition)
	fmt.Fprintf(b, "Confidence: %.0f%%\n", scan.ConfidenceScore)

	labels := make(map[string]string, len(scan.Attributes))
	for _, a := range scan.Attributes {
		labels[a.Name] = a.DisplayLabel()
	}
	names := make([]string, 0, len(c.Attributes))
	for name := range c.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		label := labels[name]
		if label == "" {
			label = name
		}
		fmt.Fprintf(b, "  %s: %s\n", label, c.Attributes[name])
	}

	if scan.Description != "" {
		b.WriteString("\n" + mutedStyle.Render(scan.Description) + "\n")
	}
	if scanflow.IsLowConfidence(scan) || scan.RequiresManualReview {
		b.WriteString("\n" + noticeStyle.Render("Please check these details before confirming.") + "\n")
	}
}

func viewJewelry(b *strings.Builder, st scanflow.State) {
	in := st.Jewelry
	fmt.Fprintf(b, "Metal:  %s\n", in.Metal)
	purity := in.Purity
	if purity == "" {
		purity = mutedStyle.Render("choose one of " + strings.Join(scanflow.PuritiesFor(in.Metal), ", "))
	}
	fmt.Fprintf(b, "Purity: %s\n", purity)
	weight := in.Weight
	if weight == "" {
		weight = mutedStyle.Render(fmt.Sprintf("%.1f to %.0f grams", scanflow.MinWeightGrams, float64(scanflow.MaxWeightGrams)))
	}
	fmt.Fprintf(b, "Weight: %s\n", weight)
}

func viewPrice(b *strings.Builder, st scanflow.State) {
	if st.Price == nil {
		if !st.Loading {
			b.WriteString("No price yet.\n")
		}
		return
	}
	text, found := scanflow.PriceText(st.Price)
	if !found {
		b.WriteString(text + "\n")
		return
	}
	fmt.Fprintf(b, "Estimated value: %s\n", priceStyle.Render(text))
	if st.Price.CalculationMethod != "" {
		fmt.Fprintf(b, "%s\n", mutedStyle.Render("Method: "+st.Price.CalculationMethod))
	}
}

func viewChoice(b *strings.Builder, st scanflow.State) {
	if payout := scanflow.PayoutEstimate(st.Price); payout != "" {
		fmt.Fprintf(b, "Sell now: get %s\n", priceStyle.Render(payout))
	} else {
		b.WriteString("Sell now: price set after review\n")
	}
	b.WriteString("Donate: give it to a charity of your choice\n")
}

func viewCart(b *strings.Builder, cart *fastkale.CartData) {
	if cart == nil {
		b.WriteString("The item is in your cart.\n")
		return
	}
	fmt.Fprintf(b, "Cart: %d resale, %d donation\n", cart.ResaleItemCount, cart.DonationItemCount)
	fmt.Fprintf(b, "Resale value:   %s\n", scanflow.FormatPrice(cart.TotalResaleValue))
	fmt.Fprintf(b, "Donation value: %s\n", scanflow.FormatPrice(cart.TotalDonationValue))
	if cart.MeetsMinimum {
		b.WriteString(titleStyle.Render("Ready for an offer.") + "\n")
	}
}
