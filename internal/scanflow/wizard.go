package scanflow

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/rs/zerolog/log"
)

// TokenSource provides the access token of the signed in user. An empty
// token means nobody is signed in.
type TokenSource interface {
	AccessToken() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) AccessToken() string {
	return f()
}

// CartNotifier is called once after every successful add-to-cart with the
// cart returned by the backend.
type CartNotifier func(ctx context.Context, cart *fastkale.CartData)

// State is a copy of the wizard state for rendering.
type State struct {
	Step    Step
	Scan    *fastkale.ScanResult
	Price   *fastkale.PriceResult
	Loading bool
	Error   string
	Jewelry JewelryInput
	// RunID changes every time the wizard returns to capture.
	RunID string
}

// IsJewelry reports whether the scanned item takes the jewelry step.
func (s State) IsJewelry() bool {
	return s.Scan != nil && s.Scan.Category.IsJewelry()
}

// Wizard drives a single item from photos to the cart:
// capture → results → [jewelry] → price → donate-sell → added.
// One request may be in flight at a time.
type Wizard struct {
	svc          fastkale.ScanService
	tokens       TokenSource
	onCartUpdate CartNotifier

	mu      sync.Mutex
	step    Step
	scan    *fastkale.ScanResult
	price   *fastkale.PriceResult
	loading bool
	err     string
	jewelry JewelryInput
	runID   string
}

func New(svc fastkale.ScanService, tokens TokenSource, onCartUpdate CartNotifier) *Wizard {
	return &Wizard{
		svc:          svc,
		tokens:       tokens,
		onCartUpdate: onCartUpdate,
		step:         StepCapture,
		jewelry:      JewelryInput{Metal: DefaultMetal},
		runID:        uuid.NewString(),
	}
}

// State returns a snapshot of the wizard.
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return State{
		Step:    w.step,
		Scan:    w.scan,
		Price:   w.price,
		Loading: w.loading,
		Error:   w.err,
		Jewelry: w.jewelry,
		RunID:   w.runID,
	}
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// SubmitImages filters the candidates with SelectImages and scans the
// rest. Rejected candidates are returned even when the scan fails.
func (w *Wizard) SubmitImages(ctx context.Context, files []fastkale.ImageFile) ([]Rejection, error) {
	w.mu.Lock()
	if err := w.checkLocked("submit images", StepCapture); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	images, rejected := SelectImages(files)
	if len(images) == 0 {
		w.err = ErrNoImages.Error()
		w.mu.Unlock()
		return rejected, &ValidationError{Field: "images", Message: ErrNoImages.Error()}
	}
	token, run, err := w.beginLocked()
	w.mu.Unlock()
	if err != nil {
		return rejected, err
	}

	scan, err := w.svc.ScanItem(ctx, token, images)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.finishLocked(run, err); err != nil {
		return rejected, err
	}

	w.scan = scan
	w.price = nil
	w.jewelry = JewelryInput{Metal: DefaultMetal}
	if scan.Category.IsJewelry() {
		if scan.Purity != nil {
			w.jewelry.Purity = *scan.Purity
		}
		if scan.MetalType != nil && *scan.MetalType != "" {
			w.jewelry.Metal = *scan.MetalType
		}
	}
	w.setStepLocked(StepResults)
	return rejected, nil
}

// Confirm sends the user's review of the scan. Jewelry continues to the
// jewelry step; everything else goes to price and fetches it right away.
func (w *Wizard) Confirm(ctx context.Context, c Confirmation) error {
	w.mu.Lock()
	if err := w.checkLocked("confirm", StepResults); err != nil {
		w.mu.Unlock()
		return err
	}
	scan := w.scan
	if scan == nil {
		w.mu.Unlock()
		return ErrNoScan
	}
	token, run, err := w.beginLocked()
	w.mu.Unlock()
	if err != nil {
		return err
	}

	_, err = w.svc.ConfirmItem(ctx, token, BuildConfirmRequest(scan, c))

	w.mu.Lock()
	if err := w.finishLocked(run, err); err != nil {
		w.mu.Unlock()
		return err
	}
	if scan.Category.IsJewelry() {
		w.setStepLocked(StepJewelry)
		w.mu.Unlock()
		return nil
	}
	// Still busy: the price fetch is part of the same request
	w.loading = true
	w.setStepLocked(StepPrice)
	w.price = nil
	w.mu.Unlock()

	return w.fetchPrice(ctx, token, run, scan.ItemID)
}

// SetJewelry stores the jewelry inputs while the user fills them in.
func (w *Wizard) SetJewelry(in JewelryInput) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.jewelry = in
}

// SubmitJewelry validates the inputs, moves to price and fetches it.
func (w *Wizard) SubmitJewelry(ctx context.Context, in JewelryInput) error {
	w.mu.Lock()
	if err := w.checkLocked("submit jewelry", StepJewelry); err != nil {
		w.mu.Unlock()
		return err
	}
	w.jewelry = in
	if err := in.Validate(); err != nil {
		w.err = err.Error()
		w.mu.Unlock()
		return err
	}
	if w.scan == nil {
		w.mu.Unlock()
		return ErrNoScan
	}
	itemID := w.scan.ItemID
	token, run, err := w.beginLocked()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.setStepLocked(StepPrice)
	w.price = nil
	w.mu.Unlock()

	return w.fetchPrice(ctx, token, run, itemID)
}

// RetryPrice fetches the price again after a failure.
func (w *Wizard) RetryPrice(ctx context.Context) error {
	w.mu.Lock()
	if err := w.checkLocked("retry price", StepPrice); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.scan == nil {
		w.mu.Unlock()
		return ErrNoScan
	}
	itemID := w.scan.ItemID
	token, run, err := w.beginLocked()
	w.mu.Unlock()
	if err != nil {
		return err
	}
	return w.fetchPrice(ctx, token, run, itemID)
}

// OverridePrice sets the price by hand, typically when no comparables were
// found.
func (w *Wizard) OverridePrice(ctx context.Context, price float64, reason string) error {
	w.mu.Lock()
	if err := w.checkLocked("override price", StepPrice); err != nil {
		w.mu.Unlock()
		return err
	}
	if price <= 0 {
		verr := &ValidationError{Field: "price", Message: "Enter a price greater than 0."}
		w.err = verr.Error()
		w.mu.Unlock()
		return verr
	}
	if w.scan == nil {
		w.mu.Unlock()
		return ErrNoScan
	}
	itemID := w.scan.ItemID
	token, run, err := w.beginLocked()
	w.mu.Unlock()
	if err != nil {
		return err
	}

	res, err := w.svc.ManualPriceOverride(ctx, token, itemID, price, reason)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.finishLocked(run, err); err != nil {
		return err
	}
	w.price = res
	return nil
}

// ContinueToChoice moves from price to donate-sell once a price result is
// present, found or not.
func (w *Wizard) ContinueToChoice() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkLocked("continue", StepPrice); err != nil {
		return err
	}
	if w.price == nil {
		return ErrNoPrice
	}
	w.setStepLocked(StepDonateSell)
	return nil
}

// Choose adds the item to the cart as resale or donation. On success the
// wizard moves to added and the cart notifier runs once.
func (w *Wizard) Choose(ctx context.Context, itemType fastkale.ItemType, charityID string) error {
	w.mu.Lock()
	if err := w.checkLocked("choose", StepDonateSell); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.scan == nil {
		w.mu.Unlock()
		return ErrNoScan
	}
	itemID := w.scan.ItemID
	token, run, err := w.beginLocked()
	w.mu.Unlock()
	if err != nil {
		return err
	}

	res, err := w.svc.AddToCart(ctx, token, itemID, itemType, charityID)

	w.mu.Lock()
	if err := w.finishLocked(run, err); err != nil {
		w.mu.Unlock()
		return err
	}
	w.setStepLocked(StepAdded)
	notify := w.onCartUpdate
	w.mu.Unlock()

	if notify != nil {
		notify(ctx, &res.Cart)
	}
	return nil
}

// Restart discards the current item and returns to capture.
func (w *Wizard) Restart() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scan = nil
	w.price = nil
	w.err = ""
	w.loading = false
	w.jewelry = JewelryInput{Metal: DefaultMetal}
	w.runID = uuid.NewString()
	w.setStepLocked(StepCapture)
}

// ScanAnother starts over after an item was added or declined.
func (w *Wizard) ScanAnother() {
	w.Restart()
}

// DismissError clears the error message.
func (w *Wizard) DismissError() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = ""
}

func (w *Wizard) fetchPrice(ctx context.Context, token, run, itemID string) error {
	res, err := w.svc.GetEbayPrice(ctx, token, itemID)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.finishLocked(run, err); err != nil {
		return err
	}
	w.price = res
	return nil
}

func (w *Wizard) checkLocked(op string, allowed ...Step) error {
	if w.loading {
		return ErrBusy
	}
	if !slices.Contains(allowed, w.step) {
		return &StepError{Op: op, Step: w.step}
	}
	return nil
}

// beginLocked marks the wizard busy and clears the error. It fails when
// nobody is signed in.
func (w *Wizard) beginLocked() (token, run string, err error) {
	if w.tokens != nil {
		token = w.tokens.AccessToken()
	}
	if token == "" {
		w.err = ErrNotLoggedIn.Error()
		return "", "", ErrNotLoggedIn
	}
	w.loading = true
	w.err = ""
	return token, w.runID, nil
}

// finishLocked ends a request. A non-nil result means it must not be
// applied: the call failed, or the wizard was restarted meanwhile and
// ErrRestarted is returned without touching the new run's state.
func (w *Wizard) finishLocked(run string, err error) error {
	if run != w.runID {
		log.Debug().Str("run", run).Msg("dropping result of restarted scan")
		return ErrRestarted
	}
	w.loading = false
	if err != nil {
		w.err = err.Error()
		return err
	}
	return nil
}

func (w *Wizard) setStepLocked(step Step) {
	if w.step != step {
		log.Debug().
			Str("run", w.runID).
			Str("from", w.step.String()).
			Str("to", step.String()).
			Msg("scan step")
	}
	w.step = step
}
