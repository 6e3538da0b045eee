package tui

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/raine/telegram-fastkale-bot/internal/scanflow"
)

type inputMode int

const (
	inputNone inputMode = iota
	inputImages
	inputAttribute
	inputWeight
	inputPrice
	inputCharity
)

var inputPrompts = map[inputMode]string{
	inputImages:    "Photo paths: ",
	inputAttribute: "Detail (name: value): ",
	inputWeight:    "Weight in grams: ",
	inputPrice:     "Price [reason]: ",
	inputCharity:   "Charity id (empty to skip): ",
}

// opDoneMsg reports the end of a wizard call.
type opDoneMsg struct {
	op       string
	err      error
	rejected []scanflow.Rejection
}

// cartBox receives the cart from the wizard's notifier. It is shared by
// every copy of the model.
type cartBox struct {
	mu   sync.Mutex
	cart *fastkale.CartData
}

func (b *cartBox) set(_ context.Context, cart *fastkale.CartData) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cart = cart
}

func (b *cartBox) get() *fastkale.CartData {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cart
}

// Model is the bubbletea model of the terminal scan wizard.
type Model struct {
	ctx    context.Context
	wizard *scanflow.Wizard
	cart   *cartBox

	images       []fastkale.ImageFile
	rejected     []scanflow.Rejection
	confirmation scanflow.Confirmation
	confirmedRun string

	mode    inputMode
	input   textinput.Model
	spinner spinner.Model
	help    help.Model
	keys    keyMap

	notice   string
	quitting bool
}

// New creates the model. images are the candidates loaded from the
// command line.
func New(ctx context.Context, svc fastkale.ScanService, tokens scanflow.TokenSource, images []fastkale.ImageFile) Model {
	box := &cartBox{}
	ti := textinput.New()
	ti.CharLimit = 500

	return Model{
		ctx:     ctx,
		wizard:  scanflow.New(svc, tokens, box.set),
		cart:    box,
		images:  images,
		input:   ti,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:    help.New(),
		keys:    defaultKeys(),
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// State returns the wizard state.
func (m Model) State() scanflow.State {
	return m.wizard.State()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.quitting = true
			return m, tea.Quit
		}
		if m.mode != inputNone {
			return m.updateInput(msg)
		}
		return m.updateKeys(msg)

	case opDoneMsg:
		return m.opDone(msg), nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}

	st := m.wizard.State()
	if st.Loading {
		return m, nil
	}
	m.notice = ""
	if msg.Type == tea.KeyEsc {
		m.wizard.DismissError()
		return m, nil
	}

	switch st.Step {
	case scanflow.StepCapture:
		return m.captureKeys(msg)
	case scanflow.StepResults:
		return m.resultsKeys(msg, st)
	case scanflow.StepJewelry:
		return m.jewelryKeys(msg, st)
	case scanflow.StepPrice:
		return m.priceKeys(msg)
	case scanflow.StepDonateSell:
		return m.choiceKeys(msg)
	case scanflow.StepAdded:
		if key.Matches(msg, m.keys.Another) {
			m.wizard.ScanAnother()
			m.images = nil
			m.rejected = nil
			return m, nil
		}
	}
	return m, nil
}

func (m Model) captureKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		images := m.images
		return m, m.run("scan", func(ctx context.Context) opDoneMsg {
			rejected, err := m.wizard.SubmitImages(ctx, images)
			return opDoneMsg{rejected: rejected, err: err}
		})
	case key.Matches(msg, m.keys.AddImages):
		return m.startInput(inputImages, ""), nil
	case key.Matches(msg, m.keys.Clear):
		m.images = nil
		m.rejected = nil
	}
	return m, nil
}

func (m Model) resultsKeys(msg tea.KeyMsg, st scanflow.State) (tea.Model, tea.Cmd) {
	m = m.ensureConfirmation(st)
	switch {
	case key.Matches(msg, m.keys.Submit):
		c := m.confirmation
		return m, m.run("confirm", func(ctx context.Context) opDoneMsg {
			return opDoneMsg{err: m.wizard.Confirm(ctx, c)}
		})
	case key.Matches(msg, m.keys.Edit):
		return m.startInput(inputAttribute, ""), nil
	case key.Matches(msg, m.keys.Condition):
		m.confirmation.Condition = next(scanflow.ConditionOptions, m.confirmation.Condition)
		m.confirmation.Edited = true
	case key.Matches(msg, m.keys.Rescan):
		m.wizard.Restart()
	}
	return m, nil
}

func (m Model) jewelryKeys(msg tea.KeyMsg, st scanflow.State) (tea.Model, tea.Cmd) {
	in := st.Jewelry
	switch {
	case key.Matches(msg, m.keys.Submit):
		return m, m.run("jewelry", func(ctx context.Context) opDoneMsg {
			return opDoneMsg{err: m.wizard.SubmitJewelry(ctx, in)}
		})
	case key.Matches(msg, m.keys.Metal):
		m.wizard.SetJewelry(in.WithMetal(next(scanflow.Metals, in.Metal)))
	case key.Matches(msg, m.keys.Purity):
		in.Purity = next(scanflow.PuritiesFor(in.Metal), in.Purity)
		m.wizard.SetJewelry(in)
	case key.Matches(msg, m.keys.Weight):
		return m.startInput(inputWeight, in.Weight), nil
	}
	return m, nil
}

func (m Model) priceKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		if err := m.wizard.ContinueToChoice(); err != nil {
			m.notice = "Retry the price or enter one first."
		}
	case key.Matches(msg, m.keys.Retry):
		return m, m.run("price", func(ctx context.Context) opDoneMsg {
			return opDoneMsg{err: m.wizard.RetryPrice(ctx)}
		})
	case key.Matches(msg, m.keys.Override):
		return m.startInput(inputPrice, ""), nil
	}
	return m, nil
}

func (m Model) choiceKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Sell):
		return m, m.choose(fastkale.ItemTypeResale, "")
	case key.Matches(msg, m.keys.Donate):
		return m.startInput(inputCharity, ""), nil
	}
	return m, nil
}

func (m Model) choose(itemType fastkale.ItemType, charityID string) tea.Cmd {
	return m.run("add", func(ctx context.Context) opDoneMsg {
		return opDoneMsg{err: m.wizard.Choose(ctx, itemType, charityID)}
	})
}

func (m Model) startInput(mode inputMode, value string) Model {
	m.mode = mode
	m.input.Prompt = inputPrompts[mode]
	m.input.SetValue(value)
	m.input.Focus()
	return m
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = inputNone
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		mode, value := m.mode, strings.TrimSpace(m.input.Value())
		m.mode = inputNone
		m.input.Blur()
		m.input.SetValue("")
		return m.submitInput(mode, value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submitInput(mode inputMode, value string) (tea.Model, tea.Cmd) {
	switch mode {
	case inputImages:
		files, err := scanflow.LoadImageFiles(strings.Fields(value))
		if err != nil {
			m.notice = err.Error()
			return m, nil
		}
		m.images = append(slices.Clone(m.images), files...)

	case inputAttribute:
		name, val, ok := scanflow.ParseAttributeEdit(value)
		if !ok {
			m.notice = "Use the form name: value"
			return m, nil
		}
		attrs := make(map[string]string, len(m.confirmation.Attributes)+1)
		for k, v := range m.confirmation.Attributes {
			attrs[k] = v
		}
		attrs[name] = val
		m.confirmation.Attributes = attrs
		m.confirmation.Edited = true

	case inputWeight:
		in := m.wizard.State().Jewelry
		in.Weight = value
		m.wizard.SetJewelry(in)

	case inputPrice:
		price, reason, err := scanflow.ParsePriceArgs(strings.Fields(value))
		if err != nil {
			m.notice = "Enter an amount such as 25 or 12.50"
			return m, nil
		}
		return m, m.run("override", func(ctx context.Context) opDoneMsg {
			return opDoneMsg{err: m.wizard.OverridePrice(ctx, price, reason)}
		})

	case inputCharity:
		return m, m.choose(fastkale.ItemTypeDonation, value)
	}
	return m, nil
}

// run performs a wizard call off the update loop.
func (m Model) run(op string, fn func(ctx context.Context) opDoneMsg) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		msg := fn(ctx)
		msg.op = op
		return msg
	}
}

func (m Model) opDone(msg opDoneMsg) Model {
	if errors.Is(msg.err, scanflow.ErrRestarted) {
		return m
	}
	if msg.op == "scan" {
		m.rejected = msg.rejected
		m = m.ensureConfirmation(m.wizard.State())
	}
	// The wizard keeps the error for display
	if errors.Is(msg.err, scanflow.ErrBusy) {
		m.notice = "Still working…"
	}
	return m
}

// ensureConfirmation prefills the review form once per scan.
func (m Model) ensureConfirmation(st scanflow.State) Model {
	m.confirmation = m.currentConfirmation(st)
	if st.Scan != nil {
		m.confirmedRun = st.Scan.ItemID + st.RunID
	}
	return m
}

// currentConfirmation is the review form of the current scan.
func (m Model) currentConfirmation(st scanflow.State) scanflow.Confirmation {
	if st.Scan != nil && m.confirmedRun != st.Scan.ItemID+st.RunID {
		return scanflow.NewConfirmation(st.Scan)
	}
	return m.confirmation
}

// next returns the option after current, wrapping around.
func next(options []string, current string) string {
	if len(options) == 0 {
		return current
	}
	i := slices.Index(options, current)
	return options[(i+1)%len(options)]
}

func (m Model) stepKeys(step scanflow.Step) []key.Binding {
	k := m.keys
	switch step {
	case scanflow.StepCapture:
		return []key.Binding{k.Submit, k.AddImages, k.Clear, k.Quit}
	case scanflow.StepResults:
		return []key.Binding{k.Submit, k.Edit, k.Condition, k.Rescan, k.Quit}
	case scanflow.StepJewelry:
		return []key.Binding{k.Submit, k.Metal, k.Purity, k.Weight, k.Quit}
	case scanflow.StepPrice:
		return []key.Binding{k.Submit, k.Retry, k.Override, k.Quit}
	case scanflow.StepDonateSell:
		return []key.Binding{k.Sell, k.Donate, k.Quit}
	case scanflow.StepAdded:
		return []key.Binding{k.Another, k.Quit}
	}
	return []key.Binding{k.Quit}
}
