package tui

import (
	"bytes"
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/raine/telegram-fastkale-bot/internal/scanflow"
)

func testImages() []fastkale.ImageFile {
	return []fastkale.ImageFile{
		{Name: "front.jpg", MimeType: "image/jpeg", Data: bytes.Repeat([]byte{0xff}, 2048)},
		{Name: "notes.txt", MimeType: "text/plain", Data: []byte("hello")},
	}
}

func newTestModel(api *fastkale.MockFlowService, images []fastkale.ImageFile) Model {
	tokens := scanflow.TokenFunc(func() string { return "test-token" })
	return New(context.Background(), api, tokens, images)
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

// press sends a key and runs the wizard call it starts, if any.
func press(t *testing.T, m Model, k string) Model {
	t.Helper()
	next, cmd := m.Update(keyMsg(k))
	m = next.(Model)
	if cmd == nil {
		return m
	}
	if done, ok := cmd().(opDoneMsg); ok {
		next, _ = m.Update(done)
		m = next.(Model)
	}
	return m
}

// typeText fills the open input. The cursor blink command is dropped.
func typeText(m Model, s string) Model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return next.(Model)
}

func toResults(t *testing.T, m Model) Model {
	t.Helper()
	m = press(t, m, "enter")
	require.Equal(t, scanflow.StepResults, m.State().Step)
	return m
}

func TestModel_SellEndToEnd(t *testing.T) {
	api := &fastkale.MockFlowService{}
	m := newTestModel(api, testImages())

	assert.Contains(t, m.View(), "Step 1: Capture photos")
	assert.Contains(t, m.View(), "front.jpg")

	m = toResults(t, m)
	view := m.View()
	assert.Contains(t, view, "Step 2: Verify details")
	assert.Contains(t, view, "Other")
	assert.Contains(t, view, "notes.txt: not an image")

	calls := api.CallsTo("ScanItem")
	require.Len(t, calls, 1)
	assert.Equal(t, 1, calls[0].Args[1])

	m = press(t, m, "c")
	assert.Contains(t, m.View(), "Condition:  Fair")

	m = press(t, m, "enter")
	require.Equal(t, scanflow.StepPrice, m.State().Step)
	assert.Contains(t, m.View(), scanflow.FallbackPriceMessage)

	confirm := api.CallsTo("ConfirmItem")
	require.Len(t, confirm, 1)
	req := confirm[0].Args[1].(fastkale.ConfirmRequest)
	assert.Equal(t, "Fair", req.Condition)
	assert.True(t, req.ManuallyVerified)

	m = press(t, m, "enter")
	require.Equal(t, scanflow.StepDonateSell, m.State().Step)

	m = press(t, m, "s")
	require.Equal(t, scanflow.StepAdded, m.State().Step)
	assert.Contains(t, m.View(), "Cart:")

	add := api.CallsTo("AddToCart")
	require.Len(t, add, 1)
	assert.Equal(t, fastkale.ItemTypeResale, add[0].Args[2])

	m = press(t, m, "a")
	assert.Equal(t, scanflow.StepCapture, m.State().Step)
	assert.Contains(t, m.View(), "No photos yet")
}

func TestModel_CaptureWithoutPhotos(t *testing.T) {
	api := &fastkale.MockFlowService{}
	m := newTestModel(api, nil)

	m = press(t, m, "enter")
	assert.Equal(t, scanflow.StepCapture, m.State().Step)
	assert.Contains(t, m.View(), scanflow.ErrNoImages.Error())
	assert.Empty(t, api.CallsTo("ScanItem"))

	m = press(t, m, "esc")
	assert.Empty(t, m.State().Error)
}

func TestModel_EditDetailMarksVerified(t *testing.T) {
	api := &fastkale.MockFlowService{}
	m := toResults(t, newTestModel(api, testImages()))

	m = press(t, m, "e")
	m = typeText(m, "brand: Sony")
	m = press(t, m, "enter")
	assert.Contains(t, m.View(), "brand: Sony")

	m = press(t, m, "enter")
	confirm := api.CallsTo("ConfirmItem")
	require.Len(t, confirm, 1)
	req := confirm[0].Args[1].(fastkale.ConfirmRequest)
	assert.Equal(t, map[string]string{"brand": "Sony"}, req.Attributes)
	assert.True(t, req.ManuallyVerified)
}

func TestModel_InvalidDetailShowsNotice(t *testing.T) {
	api := &fastkale.MockFlowService{}
	m := toResults(t, newTestModel(api, testImages()))

	m = press(t, m, "e")
	m = typeText(m, "just text")
	m = press(t, m, "enter")
	assert.Contains(t, m.View(), "Use the form name: value")
}

func TestModel_Rescan(t *testing.T) {
	api := &fastkale.MockFlowService{}
	m := toResults(t, newTestModel(api, testImages()))

	m = press(t, m, "r")
	assert.Equal(t, scanflow.StepCapture, m.State().Step)
	assert.Contains(t, m.View(), "front.jpg")

	toResults(t, m)
	assert.Len(t, api.CallsTo("ScanItem"), 2)
}

func TestModel_JewelryPath(t *testing.T) {
	api := &fastkale.MockFlowService{
		ScanItemFunc: func(ctx context.Context, token string, images []fastkale.ImageFile) (*fastkale.ScanResult, error) {
			return &fastkale.ScanResult{
				ItemID:          "ring-1",
				Category:        fastkale.CategoryOption{ID: "cat-j", DisplayName: "Jewelry"},
				ConfidenceScore: 95,
			}, nil
		},
	}
	m := toResults(t, newTestModel(api, testImages()))

	m = press(t, m, "enter")
	require.Equal(t, scanflow.StepJewelry, m.State().Step)
	assert.Contains(t, m.View(), "Metal:  Gold")

	// Nothing entered yet
	m = press(t, m, "enter")
	assert.Equal(t, scanflow.StepJewelry, m.State().Step)
	assert.Contains(t, m.View(), "Enter a weight between 0.1 and 10000 grams.")

	m = press(t, m, "m")
	assert.Equal(t, "Silver", m.State().Jewelry.Metal)
	m = press(t, m, "p")
	assert.Equal(t, "Sterling", m.State().Jewelry.Purity)

	m = press(t, m, "w")
	m = typeText(m, "12.5")
	m = press(t, m, "enter")
	assert.Equal(t, "12.5", m.State().Jewelry.Weight)

	m = press(t, m, "enter")
	assert.Equal(t, scanflow.StepPrice, m.State().Step)
	require.Len(t, api.CallsTo("GetEbayPrice"), 1)
}

func TestModel_PriceRetryAndOverride(t *testing.T) {
	fail := true
	api := &fastkale.MockFlowService{
		GetEbayPriceFunc: func(ctx context.Context, token, itemID string) (*fastkale.PriceResult, error) {
			if fail {
				return nil, errors.New("pricing unavailable")
			}
			return &fastkale.PriceResult{ItemID: itemID}, nil
		},
	}
	m := toResults(t, newTestModel(api, testImages()))

	m = press(t, m, "enter")
	require.Equal(t, scanflow.StepPrice, m.State().Step)
	assert.Contains(t, m.View(), "pricing unavailable")

	m = press(t, m, "enter")
	assert.Equal(t, scanflow.StepPrice, m.State().Step)
	assert.Contains(t, m.View(), "Retry the price or enter one first.")

	fail = false
	m = press(t, m, "r")
	assert.Empty(t, m.State().Error)
	assert.Len(t, api.CallsTo("GetEbayPrice"), 2)

	m = press(t, m, "o")
	m = typeText(m, "40 signed copy")
	m = press(t, m, "enter")

	override := api.CallsTo("ManualPriceOverride")
	require.Len(t, override, 1)
	assert.Equal(t, 40.0, override[0].Args[2])
	assert.Equal(t, "signed copy", override[0].Args[3])
	assert.Contains(t, m.View(), "$40.00")

	m = press(t, m, "enter")
	require.Equal(t, scanflow.StepDonateSell, m.State().Step)
	assert.Contains(t, m.View(), "$20.00+")
}

func TestModel_Donate(t *testing.T) {
	api := &fastkale.MockFlowService{}
	m := toResults(t, newTestModel(api, testImages()))
	m = press(t, m, "enter")
	m = press(t, m, "enter")
	require.Equal(t, scanflow.StepDonateSell, m.State().Step)

	m = press(t, m, "d")
	m = typeText(m, "charity-7")
	m = press(t, m, "enter")
	require.Equal(t, scanflow.StepAdded, m.State().Step)

	add := api.CallsTo("AddToCart")
	require.Len(t, add, 1)
	assert.Equal(t, fastkale.ItemTypeDonation, add[0].Args[2])
	assert.Equal(t, "charity-7", add[0].Args[3])
}

func TestModel_EscClosesInput(t *testing.T) {
	api := &fastkale.MockFlowService{}
	m := newTestModel(api, nil)

	m = press(t, m, "i")
	assert.Contains(t, m.View(), "Photo paths:")
	m = press(t, m, "esc")
	assert.NotContains(t, m.View(), "Photo paths:")
}

func TestModel_Quit(t *testing.T) {
	m := newTestModel(&fastkale.MockFlowService{}, nil)

	next, cmd := m.Update(keyMsg("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, next.View())
}
