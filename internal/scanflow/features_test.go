package scanflow_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/raine/telegram-fastkale-bot/internal/scanflow"
)

type scanTestContext struct {
	svc         *fastkale.MockFlowService
	wizard      *scanflow.Wizard
	token       string
	category    string
	confidence  float64
	price       *float64
	cartUpdates int
	lastConfirm fastkale.ConfirmRequest
	photosSent  int
	err         error
}

func (c *scanTestContext) reset() {
	*c = scanTestContext{}
	c.svc = &fastkale.MockFlowService{
		ScanItemFunc: func(ctx context.Context, token string, images []fastkale.ImageFile) (*fastkale.ScanResult, error) {
			c.photosSent = len(images)
			return &fastkale.ScanResult{
				ItemID:          "item-1",
				Category:        fastkale.CategoryOption{ID: "cat-1", DisplayName: c.category},
				Condition:       "Good",
				ConfidenceScore: c.confidence,
			}, nil
		},
		ConfirmItemFunc: func(ctx context.Context, token string, req fastkale.ConfirmRequest) (*fastkale.ConfirmResult, error) {
			c.lastConfirm = req
			return &fastkale.ConfirmResult{ItemID: req.ItemID, Status: "confirmed"}, nil
		},
		GetEbayPriceFunc: func(ctx context.Context, token, itemID string) (*fastkale.PriceResult, error) {
			return &fastkale.PriceResult{ItemID: itemID, EstimatedResaleValue: c.price}, nil
		},
	}
	c.wizard = scanflow.New(c.svc, scanflow.TokenFunc(func() string { return c.token }),
		func(ctx context.Context, cart *fastkale.CartData) { c.cartUpdates++ })
}

func (c *scanTestContext) aSignedInUser() error {
	c.token = "feature-token"
	return nil
}

func (c *scanTestContext) theBackendClassifiesItemsAs(category string, confidence float64) error {
	c.category = category
	c.confidence = confidence
	return nil
}

func (c *scanTestContext) theBackendPricesItemsAt(price float64) error {
	c.price = &price
	return nil
}

func (c *scanTestContext) theBackendFindsNoPrice() error {
	c.price = nil
	return nil
}

func (c *scanTestContext) theUserSubmitsPhotos(n int) error {
	files := make([]fastkale.ImageFile, n)
	for i := range files {
		files[i] = fastkale.ImageFile{Name: fmt.Sprintf("photo%d.jpg", i), MimeType: "image/jpeg", Data: []byte{0xff, 0xd8}}
	}
	_, c.err = c.wizard.SubmitImages(context.Background(), files)
	return c.err
}

func (c *scanTestContext) theUserConfirmsTheDetails() error {
	st := c.wizard.State()
	if st.Scan == nil {
		return errors.New("no scan result")
	}
	c.err = c.wizard.Confirm(context.Background(), scanflow.NewConfirmation(st.Scan))
	return c.err
}

func (c *scanTestContext) theUserEntersGramsOf(weight, purity, metal string) error {
	c.err = c.wizard.SubmitJewelry(context.Background(), scanflow.JewelryInput{Metal: metal, Purity: purity, Weight: weight})
	return c.err
}

func (c *scanTestContext) theUserContinues() error {
	c.err = c.wizard.ContinueToChoice()
	return c.err
}

func (c *scanTestContext) theUserChooses(itemType string) error {
	c.err = c.wizard.Choose(context.Background(), fastkale.ItemType(itemType), "")
	return c.err
}

func (c *scanTestContext) theWizardIsOnStep(step string) error {
	if got := c.wizard.Step(); got != scanflow.Step(step) {
		return fmt.Errorf("expected step %q, got %q (error %q)", step, got, c.wizard.State().Error)
	}
	return nil
}

func (c *scanTestContext) thePriceShownIs(want string) error {
	got, _ := scanflow.PriceText(c.wizard.State().Price)
	if got != want {
		return fmt.Errorf("expected price %q, got %q", want, got)
	}
	return nil
}

func (c *scanTestContext) theSellPayoutEstimateIs(want string) error {
	if got := scanflow.PayoutEstimate(c.wizard.State().Price); got != want {
		return fmt.Errorf("expected payout %q, got %q", want, got)
	}
	return nil
}

func (c *scanTestContext) theCartWasRefreshedTimes(n int) error {
	if c.cartUpdates != n {
		return fmt.Errorf("expected %d cart refreshes, got %d", n, c.cartUpdates)
	}
	return nil
}

func (c *scanTestContext) theConfirmationWasManuallyVerified() error {
	if !c.lastConfirm.ManuallyVerified {
		return errors.New("expected manually_verified to be true")
	}
	return nil
}

func (c *scanTestContext) theBackendReceivedPhotos(n int) error {
	if c.photosSent != n {
		return fmt.Errorf("expected %d photos, got %d", n, c.photosSent)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &scanTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a signed in user$`, tc.aSignedInUser)
	ctx.Step(`^the backend classifies items as "([^"]*)" with confidence (\d+)$`, tc.theBackendClassifiesItemsAs)
	ctx.Step(`^the backend prices items at ([\d.]+)$`, tc.theBackendPricesItemsAt)
	ctx.Step(`^the backend finds no price$`, tc.theBackendFindsNoPrice)

	// When steps
	ctx.Step(`^the user submits (\d+) photos$`, tc.theUserSubmitsPhotos)
	ctx.Step(`^the user confirms the details$`, tc.theUserConfirmsTheDetails)
	ctx.Step(`^the user enters ([\d.]+) grams of "([^"]*)" "([^"]*)"$`, tc.theUserEntersGramsOf)
	ctx.Step(`^the user continues$`, tc.theUserContinues)
	ctx.Step(`^the user chooses "([^"]*)"$`, tc.theUserChooses)

	// Then steps
	ctx.Step(`^the wizard is on step "([^"]*)"$`, tc.theWizardIsOnStep)
	ctx.Step(`^the price shown is "([^"]*)"$`, tc.thePriceShownIs)
	ctx.Step(`^the sell payout estimate is "([^"]*)"$`, tc.theSellPayoutEstimateIs)
	ctx.Step(`^the cart was refreshed (\d+) times?$`, tc.theCartWasRefreshedTimes)
	ctx.Step(`^the confirmation was manually verified$`, tc.theConfirmationWasManuallyVerified)
	ctx.Step(`^the backend received (\d+) photos$`, tc.theBackendReceivedPhotos)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/scan_flow.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
