package bot

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/raine/telegram-fastkale-bot/internal/scanflow"
	"github.com/raine/telegram-fastkale-bot/internal/storage"
)

const (
	// albumBufferTimeout is how long to wait for more photos before processing an album
	albumBufferTimeout = 1500 * time.Millisecond
	// maxAlbumPhotos is the maximum number of photos buffered from an album
	maxAlbumPhotos = 10
	// maxParallelDownloads bounds concurrent Telegram file downloads
	maxParallelDownloads = 4
	historyLimit         = 10
)

// ScanHandler drives the scan wizard of a user from Telegram messages.
type ScanHandler struct {
	tg         BotAPI
	api        fastkale.FlowService
	store      storage.SessionStore
	auth       *AuthHandler
	downloader *ImageDownloader
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(tg BotAPI, api fastkale.FlowService, store storage.SessionStore, auth *AuthHandler) *ScanHandler {
	return &ScanHandler{
		tg:         tg,
		api:        api,
		store:      store,
		auth:       auth,
		downloader: NewImageDownloader(),
	}
}

// --- Photos ---

// HandlePhoto starts a scan from a photo message. Album photos are
// buffered and scanned together.
// Called from session worker - no locking needed.
func (h *ScanHandler) HandlePhoto(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	switch session.wizard.Step() {
	case scanflow.StepCapture:
	case scanflow.StepAdded:
		session.wizard.ScanAnother()
		session.resetScanScreen()
	default:
		session.reply(MsgFinishCurrentItem)
		return
	}

	photo := pickPhotoSize(message.Photo)
	albumPhoto := AlbumPhoto{
		FileID:   photo.FileID,
		Width:    photo.Width,
		Height:   photo.Height,
		FileSize: photo.FileSize,
	}

	if message.MediaGroupID != "" {
		h.bufferAlbumPhoto(session, albumPhoto, message.MediaGroupID)
		return
	}

	h.processPhotos(ctx, session, []AlbumPhoto{albumPhoto})
}

// pickPhotoSize returns the largest photo size that fits the scan limit,
// or the smallest one when none does.
func pickPhotoSize(sizes []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.FileSize <= scanflow.MaxImageSize && s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best
}

// bufferAlbumPhoto adds a photo to the album buffer and schedules processing.
// Called from session worker - no locking needed for session state.
func (h *ScanHandler) bufferAlbumPhoto(session *UserSession, photo AlbumPhoto, mediaGroupID string) {
	buf := session.scan.AlbumBuffer
	if buf == nil || buf.MediaGroupID != mediaGroupID {
		// A new album replaces a pending one
		if buf != nil && buf.Timer != nil {
			buf.Timer.Stop()
		}
		buf = &AlbumBuffer{
			MediaGroupID:  mediaGroupID,
			FirstReceived: time.Now(),
		}
		session.scan.AlbumBuffer = buf
	}

	if len(buf.Photos) < maxAlbumPhotos {
		buf.Photos = append(buf.Photos, photo)
	}

	if buf.Timer != nil {
		buf.Timer.Stop()
	}
	buf.Timer = time.AfterFunc(albumBufferTimeout, func() {
		// The request context may be cancelled by now
		session.Send(SessionMessage{
			Type:        "album_timeout",
			Ctx:         context.Background(),
			AlbumBuffer: buf,
		})
	})
}

// ProcessAlbumTimeout scans the photos of a completed album.
// Called from session worker - no locking needed.
func (h *ScanHandler) ProcessAlbumTimeout(ctx context.Context, session *UserSession, albumBuffer *AlbumBuffer) {
	// Verify this is still the active album buffer (wasn't replaced or cleared)
	if session.scan.AlbumBuffer != albumBuffer {
		return
	}
	session.scan.AlbumBuffer = nil

	if len(albumBuffer.Photos) == 0 {
		return
	}
	h.processPhotos(ctx, session, albumBuffer.Photos)
}

func (h *ScanHandler) processPhotos(ctx context.Context, session *UserSession, photos []AlbumPhoto) {
	if session.wizard.Step() != scanflow.StepCapture {
		session.reply(MsgFinishCurrentItem)
		return
	}

	StartFlowLog(session.userId, session.wizard.State().RunID)
	LogUser(session.userId, "sent %s", countNoun(len(photos), "photo", "photos"))

	if len(photos) > scanflow.MaxImages {
		session.reply(MsgOnlyFirstPhotos, scanflow.MaxImages)
	}
	session.reply(MsgScanningPhotos, countNoun(len(photos), "photo", "photos"))

	// Replies clear the typing status, so start it after the reply
	typingCtx, cancelTyping := context.WithCancel(ctx)
	defer cancelTyping()
	go session.startTypingLoop(typingCtx)

	files, err := h.downloadPhotos(ctx, photos)
	if err != nil {
		log.Error().Err(err).Int64("userId", session.userId).Msg("failed to download photos")
		LogError(session.userId, "download: %s", err)
		session.reply(MsgPhotoDownloadFailed)
		return
	}

	rejected, err := session.wizard.SubmitImages(ctx, files)
	if len(rejected) > 0 {
		session.reply(MsgPhotosSkipped, formatRejections(rejected))
	}
	if err != nil {
		h.auth.HandleFlowError(ctx, session, err)
		return
	}
	cancelTyping()

	st := session.wizard.State()
	LogAPI(session.userId, "scan-item: item %s, category %s", st.Scan.ItemID, st.Scan.Category.Label())
	session.scan = ScanScreenState{Confirmation: scanflow.NewConfirmation(st.Scan)}
	h.recordScan(session, "")
	h.showResults(session)
}

// downloadPhotos fetches the photos from Telegram in parallel. Order is kept.
func (h *ScanHandler) downloadPhotos(ctx context.Context, photos []AlbumPhoto) ([]fastkale.ImageFile, error) {
	files := make([]fastkale.ImageFile, len(photos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDownloads)
	for i, photo := range photos {
		i, photo := i, photo
		g.Go(func() error {
			file, err := h.downloader.DownloadFromTelegramFileID(gctx, h.tg.GetFileDirectURL, photo.FileID)
			if err != nil {
				return fmt.Errorf("photo %d: %w", i+1, err)
			}
			files[i] = fastkale.ImageFile{
				Name:     fmt.Sprintf("photo_%d%s", i+1, fileExtension(file.MimeType)),
				MimeType: file.MimeType,
				Data:     file.Data,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func fileExtension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}

func formatRejections(rejected []scanflow.Rejection) string {
	parts := make([]string, len(rejected))
	for i, r := range rejected {
		parts[i] = fmt.Sprintf("%s (%s)", r.Name, r.Reason)
	}
	return escapeMarkdown(strings.Join(parts, ", "))
}

// --- Callbacks ---

// HandleCallback handles the inline buttons of the scan screens.
// Called from session worker - no locking needed.
func (h *ScanHandler) HandleCallback(ctx context.Context, session *UserSession, query *tgbotapi.CallbackQuery) {
	removeInlineKeyboard(session.sender, query)
	LogCallback(session.userId, "%s", query.Data)

	data := query.Data
	switch {
	case strings.HasPrefix(data, "cond:"):
		h.selectCondition(session, strings.TrimPrefix(data, "cond:"))
	case strings.HasPrefix(data, "metal:"):
		h.selectMetal(session, strings.TrimPrefix(data, "metal:"))
	case strings.HasPrefix(data, "purity:"):
		h.selectPurity(session, strings.TrimPrefix(data, "purity:"))
	case data == "scan:confirm":
		h.confirm(ctx, session)
	case data == "scan:edit":
		h.startEdit(session)
	case data == "scan:rescan":
		h.HandleScanCommand(session)
	case data == "scan:retry":
		h.retryPrice(ctx, session)
	case data == "scan:continue":
		h.continueToChoice(ctx, session)
	case data == "scan:sell":
		h.choose(ctx, session, fastkale.ItemTypeResale, "")
	case data == "scan:donate":
		h.promptCharity(session)
	case data == "scan:donate-skip":
		h.choose(ctx, session, fastkale.ItemTypeDonation, "")
	case data == "scan:nothanks":
		session.wizard.Restart()
		session.resetScanScreen()
		session.reply(MsgNoThanks)
	case data == "scan:another":
		session.wizard.ScanAnother()
		session.resetScanScreen()
		session.reply(MsgStartPrompt)
	default:
		log.Warn().Str("data", data).Msg("unknown scan callback")
	}
}

// HandleText handles free text typed into the current scan screen.
// Returns true if the message was handled.
// Called from session worker - no locking needed.
func (h *ScanHandler) HandleText(ctx context.Context, session *UserSession, text string) bool {
	step := session.wizard.Step()
	switch {
	case session.scan.AwaitingWeight && step == scanflow.StepJewelry:
		h.submitWeight(ctx, session, text)
	case session.scan.AwaitingCharity && step == scanflow.StepDonateSell:
		h.choose(ctx, session, fastkale.ItemTypeDonation, strings.TrimSpace(text))
	case session.scan.EditMode && step == scanflow.StepResults:
		h.editAttribute(session, text)
	default:
		return false
	}
	return true
}

// HandleScanCommand discards the current item and waits for new photos.
func (h *ScanHandler) HandleScanCommand(session *UserSession) {
	session.wizard.Restart()
	session.resetScanScreen()
	session.reply(MsgScanRestarted)
}

// --- Results ---

func (h *ScanHandler) showResults(session *UserSession) {
	st := session.wizard.State()
	if st.Scan == nil {
		session.reply(MsgStartPrompt)
		return
	}
	text := formatScanResults(st.Scan, session.scan.Confirmation)
	if session.scan.EditMode {
		text += "\n\n" + MsgEditPrompt
	}
	session.replyWithKeyboard(text, resultsKeyboard(session.scan.Confirmation.Condition, session.scan.EditMode))
}

func formatScanResults(scan *fastkale.ScanResult, c scanflow.Confirmation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*\n\n", scanflow.StepResults.Title())
	fmt.Fprintf(&sb, "Category: *%s*\n", escapeMarkdown(scan.Category.Label()))
	fmt.Fprintf(&sb, "Condition: *%s*\n", escapeMarkdown(c.Condition))
	fmt.Fprintf(&sb, "Confidence: %.0f%%\n", scan.ConfidenceScore)

	known := make(map[string]bool, len(scan.Attributes))
	for _, a := range scan.Attributes {
		known[a.Name] = true
		value, ok := c.Attributes[a.Name]
		if !ok {
			value = a.Value
		}
		fmt.Fprintf(&sb, "• %s: %s\n", escapeMarkdown(a.DisplayLabel()), escapeMarkdown(value))
	}
	// Attributes the user added
	var extra []string
	for name := range c.Attributes {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		fmt.Fprintf(&sb, "• %s: %s\n", escapeMarkdown(name), escapeMarkdown(c.Attributes[name]))
	}

	if scan.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", escapeMarkdown(scan.Description))
	}
	if scanflow.IsLowConfidence(scan) || scan.RequiresManualReview {
		sb.WriteString("\n" + MsgLowConfidence)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func resultsKeyboard(condition string, editMode bool) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if editMode {
		var row []tgbotapi.InlineKeyboardButton
		for i, option := range scanflow.ConditionOptions {
			label := option
			if option == condition {
				label = "• " + option
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "cond:"+option))
			if len(row) == 3 || i == len(scanflow.ConditionOptions)-1 {
				rows = append(rows, row)
				row = nil
			}
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(BtnConfirm, "scan:confirm"),
			tgbotapi.NewInlineKeyboardButtonData(BtnRescan, "scan:rescan"),
		))
		return tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(BtnConfirm, "scan:confirm"),
			tgbotapi.NewInlineKeyboardButtonData(BtnEdit, "scan:edit"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(BtnRescan, "scan:rescan"),
		),
	)
}

func (h *ScanHandler) startEdit(session *UserSession) {
	if session.wizard.Step() != scanflow.StepResults {
		session.reply(MsgFinishCurrentItem)
		return
	}
	session.scan.EditMode = true
	session.scan.Confirmation.Edited = true
	h.showResults(session)
}

func (h *ScanHandler) selectCondition(session *UserSession, condition string) {
	if session.wizard.Step() != scanflow.StepResults {
		session.reply(MsgFinishCurrentItem)
		return
	}
	if !slices.Contains(scanflow.ConditionOptions, condition) {
		return
	}
	session.scan.Confirmation.Condition = condition
	session.scan.Confirmation.Edited = true
	h.showResults(session)
}

// editAttribute applies a "name: value" edit. Names match the scanned
// attributes by name or label, ignoring case; "condition" sets the
// condition.
func (h *ScanHandler) editAttribute(session *UserSession, text string) {
	name, value, ok := scanflow.ParseAttributeEdit(text)
	if !ok {
		session.reply(MsgAttributeEditInvalid)
		return
	}

	if strings.EqualFold(name, "condition") {
		idx := slices.IndexFunc(scanflow.ConditionOptions, func(o string) bool {
			return strings.EqualFold(o, value)
		})
		if idx < 0 {
			session.reply(MsgErrorFmt, "Condition must be one of: "+strings.Join(scanflow.ConditionOptions, ", "))
			return
		}
		h.selectCondition(session, scanflow.ConditionOptions[idx])
		return
	}

	key := name
	label := name
	if scan := session.wizard.State().Scan; scan != nil {
		for _, a := range scan.Attributes {
			if strings.EqualFold(a.Name, name) || strings.EqualFold(a.Label, name) {
				key = a.Name
				label = a.DisplayLabel()
				break
			}
		}
	}

	c := &session.scan.Confirmation
	if c.Attributes == nil {
		c.Attributes = make(map[string]string)
	}
	c.Attributes[key] = value
	c.Edited = true
	session.reply(MsgAttributeSet, escapeMarkdown(label), escapeMarkdown(value))
	h.showResults(session)
}

func (h *ScanHandler) confirm(ctx context.Context, session *UserSession) {
	session.scan.EditMode = false

	typingCtx, cancelTyping := context.WithCancel(ctx)
	go session.startTypingLoop(typingCtx)
	err := session.wizard.Confirm(ctx, session.scan.Confirmation)
	cancelTyping()

	step := session.wizard.Step()
	if err != nil && step != scanflow.StepPrice {
		h.auth.HandleFlowError(ctx, session, err)
		if step == scanflow.StepResults {
			h.showResults(session)
		}
		return
	}
	if step == scanflow.StepJewelry {
		LogState(session.userId, "confirmed, jewelry details needed")
		h.promptMetal(session)
		return
	}
	h.afterPriceFetch(ctx, session, err)
}

// --- Jewelry ---

func (h *ScanHandler) promptMetal(session *UserSession) {
	var buttons []tgbotapi.InlineKeyboardButton
	for _, metal := range scanflow.Metals {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(metal, "metal:"+metal))
	}
	text := fmt.Sprintf("*%s*\n\n%s", scanflow.StepJewelry.Title(), MsgChooseMetal)
	session.replyWithKeyboard(text, tgbotapi.NewInlineKeyboardMarkup(buttons))
}

func (h *ScanHandler) promptPurity(session *UserSession, metal string) {
	var buttons []tgbotapi.InlineKeyboardButton
	for _, purity := range scanflow.PuritiesFor(metal) {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(purity, "purity:"+purity))
	}
	session.replyWithKeyboard(fmt.Sprintf(MsgChoosePurity, metal), tgbotapi.NewInlineKeyboardMarkup(buttons))
}

func (h *ScanHandler) selectMetal(session *UserSession, metal string) {
	if session.wizard.Step() != scanflow.StepJewelry {
		session.reply(MsgFinishCurrentItem)
		return
	}
	if !slices.Contains(scanflow.Metals, metal) {
		return
	}
	session.wizard.SetJewelry(session.wizard.State().Jewelry.WithMetal(metal))
	session.scan.AwaitingWeight = false
	h.promptPurity(session, metal)
}

func (h *ScanHandler) selectPurity(session *UserSession, purity string) {
	if session.wizard.Step() != scanflow.StepJewelry {
		session.reply(MsgFinishCurrentItem)
		return
	}
	in := session.wizard.State().Jewelry
	if !slices.Contains(scanflow.PuritiesFor(in.Metal), purity) {
		return
	}
	in.Purity = purity
	session.wizard.SetJewelry(in)
	session.scan.AwaitingWeight = true
	session.reply(MsgEnterWeight, purity)
}

func (h *ScanHandler) submitWeight(ctx context.Context, session *UserSession, text string) {
	in := session.wizard.State().Jewelry
	in.Weight = strings.TrimSpace(text)

	typingCtx, cancelTyping := context.WithCancel(ctx)
	go session.startTypingLoop(typingCtx)
	err := session.wizard.SubmitJewelry(ctx, in)
	cancelTyping()

	if session.wizard.Step() == scanflow.StepJewelry {
		// Invalid input, the user can try again
		h.auth.HandleFlowError(ctx, session, err)
		return
	}
	session.scan.AwaitingWeight = false
	LogState(session.userId, "jewelry: %s %s %sg", in.Metal, in.Purity, in.Weight)
	h.afterPriceFetch(ctx, session, err)
}

// --- Price ---

func (h *ScanHandler) retryPrice(ctx context.Context, session *UserSession) {
	typingCtx, cancelTyping := context.WithCancel(ctx)
	go session.startTypingLoop(typingCtx)
	err := session.wizard.RetryPrice(ctx)
	cancelTyping()

	h.afterPriceFetch(ctx, session, err)
}

// HandlePriceCommand sets the price by hand with /price <amount> [reason].
func (h *ScanHandler) HandlePriceCommand(ctx context.Context, session *UserSession, args []string) {
	if session.wizard.Step() != scanflow.StepPrice {
		session.reply(MsgPriceNotExpected)
		return
	}
	price, reason, err := scanflow.ParsePriceArgs(args)
	if err != nil {
		session.reply(MsgPriceOverrideUsage)
		return
	}
	LogUser(session.userId, "price override %.2f %q", price, reason)
	err = session.wizard.OverridePrice(ctx, price, reason)
	h.afterPriceFetch(ctx, session, err)
}

// afterPriceFetch shows the price screen, or the error with a retry button.
func (h *ScanHandler) afterPriceFetch(ctx context.Context, session *UserSession, err error) {
	if err != nil {
		h.auth.HandleFlowError(ctx, session, err)
		if session.wizard.Step() == scanflow.StepPrice {
			keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(BtnRetry, "scan:retry"),
			))
			session.replyWithKeyboard(MsgPriceOverrideHint, keyboard)
		}
		return
	}
	h.recordScan(session, "")
	h.showPrice(session)
}

func (h *ScanHandler) showPrice(session *UserSession) {
	st := session.wizard.State()
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*\n\n", scanflow.StepPrice.Title())

	text, found := scanflow.PriceText(st.Price)
	if found {
		LogAPI(session.userId, "price: %s", text)
		fmt.Fprintf(&sb, "Estimated resale value: *%s*\n", text)
		if payout := scanflow.PayoutEstimate(st.Price); payout != "" {
			fmt.Fprintf(&sb, "Sell now payout: %s\n", payout)
		}
		if st.Price.CalculationMethod != "" {
			fmt.Fprintf(&sb, "Method: %s\n", escapeMarkdown(st.Price.CalculationMethod))
		}
	} else {
		LogAPI(session.userId, "price not found")
		sb.WriteString(escapeMarkdown(text) + "\n\n" + MsgPriceOverrideHint)
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(BtnContinue, "scan:continue"),
	))
	session.replyWithKeyboard(strings.TrimRight(sb.String(), "\n"), keyboard)
}

// --- Sell or donate ---

func (h *ScanHandler) continueToChoice(ctx context.Context, session *UserSession) {
	if err := session.wizard.ContinueToChoice(); err != nil {
		h.auth.HandleFlowError(ctx, session, err)
		return
	}
	h.showChoice(session)
}

func (h *ScanHandler) showChoice(session *UserSession) {
	st := session.wizard.State()
	text := fmt.Sprintf("*%s*\n\n%s", scanflow.StepDonateSell.Title(), MsgChoicePrompt)
	sellLabel := BtnSell
	if payout := scanflow.PayoutEstimate(st.Price); payout != "" {
		sellLabel = fmt.Sprintf("%s (%s)", BtnSell, payout)
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(sellLabel, "scan:sell")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(BtnDonate, "scan:donate")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(BtnNoThanks, "scan:nothanks")),
	)
	session.replyWithKeyboard(text, keyboard)
}

func (h *ScanHandler) promptCharity(session *UserSession) {
	if session.wizard.Step() != scanflow.StepDonateSell {
		session.reply(MsgCharityNotExpected)
		return
	}
	session.scan.AwaitingCharity = true
	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(BtnSkipCharity, "scan:donate-skip"),
	))
	session.replyWithKeyboard(MsgCharityPrompt, keyboard)
}

// HandleCharityCommand donates the item with /charity <id>, or asks for the
// charity when no id is given.
func (h *ScanHandler) HandleCharityCommand(ctx context.Context, session *UserSession, args []string) {
	if session.wizard.Step() != scanflow.StepDonateSell {
		session.reply(MsgCharityNotExpected)
		return
	}
	if len(args) == 0 {
		h.promptCharity(session)
		return
	}
	h.choose(ctx, session, fastkale.ItemTypeDonation, args[0])
}

func (h *ScanHandler) choose(ctx context.Context, session *UserSession, itemType fastkale.ItemType, charityID string) {
	LogUser(session.userId, "add to cart as %s %s", itemType, charityID)

	typingCtx, cancelTyping := context.WithCancel(ctx)
	go session.startTypingLoop(typingCtx)
	err := session.wizard.Choose(ctx, itemType, charityID)
	cancelTyping()

	if err != nil {
		h.auth.HandleFlowError(ctx, session, err)
		if session.wizard.Step() == scanflow.StepDonateSell {
			session.scan.AwaitingCharity = false
			h.showChoice(session)
		}
		return
	}

	h.recordScan(session, itemType)
	session.resetScanScreen()

	label := "Item"
	if scan := session.wizard.State().Scan; scan != nil {
		label = scan.Category.Label()
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(BtnScanAnother, "scan:another"),
		tgbotapi.NewInlineKeyboardButtonData(BtnViewCart, "cart:view"),
	))
	session.replyWithKeyboard(fmt.Sprintf(MsgItemAdded, escapeMarkdown(label), itemType), keyboard)

	if session.cartBadge != "" {
		session.reply(session.cartBadge)
		session.cartBadge = ""
	}
}

// cartNotifier refreshes the cart after an item was added and keeps the
// new item count for choose to send after its confirmation. The cart of the
// add-to-cart response is used when the refresh fails.
func (h *ScanHandler) cartNotifier(session *UserSession) scanflow.CartNotifier {
	return func(ctx context.Context, cart *fastkale.CartData) {
		fresh, err := h.api.GetCart(ctx, session.AccessToken())
		if err != nil {
			log.Warn().Err(err).Int64("userId", session.userId).Msg("failed to refresh cart")
		} else {
			cart = fresh
		}
		session.cartBadge = formatReplyText(MsgCartBadge, countNoun(cart.ItemCount(), "item", "items"))
	}
}

// --- History ---

// recordScan saves how far the current item got. Failures are logged only.
func (h *ScanHandler) recordScan(session *UserSession, itemType fastkale.ItemType) {
	if h.store == nil {
		return
	}
	st := session.wizard.State()
	if st.Scan == nil {
		return
	}
	condition := session.scan.Confirmation.Condition
	if condition == "" {
		condition = st.Scan.Condition
	}
	rec := &storage.ScanRecord{
		ItemID:     st.Scan.ItemID,
		TelegramID: session.userId,
		RunID:      st.RunID,
		Category:   st.Scan.Category.Label(),
		Condition:  condition,
		Confidence: st.Scan.ConfidenceScore,
		ItemType:   string(itemType),
		Step:       st.Step.String(),
	}
	if st.Price.HasPrice() {
		v := st.Price.Value()
		rec.EstimatedValue = &v
	}
	if err := h.store.SaveScan(rec); err != nil {
		log.Warn().Err(err).Int64("userId", session.userId).Msg("failed to record scan")
	}
}

// HandleHistoryCommand lists the latest scanned items.
func (h *ScanHandler) HandleHistoryCommand(session *UserSession) {
	scans, err := h.store.GetRecentScans(session.userId, historyLimit)
	if err != nil {
		session.replyWithError(err)
		return
	}
	if len(scans) == 0 {
		session.reply(MsgNoScanHistory)
		return
	}

	var sb strings.Builder
	sb.WriteString(MsgScanHistory)
	for _, s := range scans {
		fmt.Fprintf(&sb, "• %s, %s", escapeMarkdown(s.Category), escapeMarkdown(s.Condition))
		if s.EstimatedValue != nil {
			fmt.Fprintf(&sb, ", %s", scanflow.FormatPrice(*s.EstimatedValue))
		}
		if s.ItemType != "" {
			fmt.Fprintf(&sb, " (%s)", s.ItemType)
		} else {
			fmt.Fprintf(&sb, " (%s)", s.Step)
		}
		fmt.Fprintf(&sb, " %s\n", s.UpdatedAt.Format("2006-01-02"))
	}
	session.reply("%s", sb.String())
}
