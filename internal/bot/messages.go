package bot

// =============================================================================
// General messages
// =============================================================================

const (
	MsgOk            = `Ok!`
	MsgUnexpectedErr = `Unexpected error: %s`
	MsgErrorFmt      = "⚠️ %s"
	MsgStartPrompt   = "Send 1–5 photos of an item to get an instant estimate."
	MsgVersionInfo   = "Version: %s\nBuilt: %s"
	MsgBusy          = "Still working on the previous step, hold on..."
	MsgCancelled     = "Cancelled. Send photos to scan a new item."
)

// =============================================================================
// Login flow messages
// =============================================================================

const (
	MsgLoginPromptEmail     = "Enter your email address:"
	MsgLoginPromptPassword  = "Enter your password:"
	MsgLoginSuccess         = "Logged in as %s."
	MsgLoginFailed          = "Login failed: %s"
	MsgLoginTimeout         = "Login timed out. Start again with /login"
	MsgLoginAlreadyLoggedIn = "You are already logged in."
	MsgLoginRequired        = "You need to log in first. Use /login or /signup"
	MsgLoginCancelled       = "Login cancelled."
	MsgLoginInProgress      = "Login in progress. Enter the requested value or cancel with /cancel"

	MsgSignupPromptEmail    = "Enter the email address for your new account:"
	MsgSignupPromptPassword = "Choose a password:"
	MsgSignupPromptFullName = "Enter your full name:"
	MsgSignupPromptPhone    = "Enter your phone number:"
	MsgSignupSuccess        = "Account created. Logged in as %s."
	MsgSignupFailed         = "Signup failed: %s"

	MsgLogoutSuccess        = "Logged out."
	MsgNotLoggedIn          = "You are not logged in."
	MsgPasswordResetUsage   = "Usage: `/reset <email>`, then `/reset <token> <new password>`"
	MsgPasswordResetSent    = "If an account exists for %s, a reset link is on its way."
	MsgPasswordResetDone    = "Password changed. Log in with /login"
	MsgSessionRefreshed     = "Your session was refreshed. Please try again."
	MsgSessionExpired       = "Your session expired. Log in again with /login"
	MsgEmptyInputNotAllowed = "The value can't be empty. Try again or cancel with /cancel"
)

// =============================================================================
// Scan wizard messages
// =============================================================================

const (
	MsgScanningPhotos      = "Scanning %s..."
	MsgPhotosSkipped       = "Skipped %s"
	MsgOnlyFirstPhotos     = "Only the first %d photos are used."
	MsgPhotoDownloadFailed = "Could not download the photos. Try again."
	MsgFinishCurrentItem   = "Finish the current item first, or start over with /scan"
	MsgScanRestarted       = "Ok, let's start over. " + MsgStartPrompt

	MsgLowConfidence        = "⚠️ Low confidence. Please double-check the details."
	MsgEditPrompt           = "Pick the condition below, or send `name: value` to change an attribute. Press Confirm when done."
	MsgAttributeSet         = "%s set to *%s*."
	MsgAttributeEditInvalid = "Send attribute edits as `name: value`."

	MsgChooseMetal  = "Choose the metal:"
	MsgChoosePurity = "Metal: *%s*\nChoose the purity:"
	MsgEnterWeight  = "Purity: *%s*\nEnter the weight in grams (0.1–10000):"

	MsgPriceOverrideHint  = "Set a price yourself with `/price <amount> [reason]`."
	MsgPriceOverrideUsage = "Usage: `/price <amount> [reason]`"
	MsgPriceNotExpected   = "Prices can be set on the price step only."

	MsgChoicePrompt       = "Choose how to add this item to your cart."
	MsgCharityPrompt      = "Enter the charity ID for your donation (`/charity <id>` works too), or press Skip."
	MsgCharityNotExpected = "Choose Donate on the Sell or Donate step first."
	MsgNoThanks           = "No problem. " + MsgStartPrompt

	MsgItemAdded = "✅ *Item added to cart*\n\n%s added as %s."
	MsgCartBadge = "🛒 %s in cart"

	MsgNoScanHistory = "No scanned items yet."
	MsgScanHistory   = "*Recent scans:*\n"
)

// =============================================================================
// Cart messages
// =============================================================================

const (
	MsgCartEmpty        = "Your cart is empty. Send photos to scan items."
	MsgCartCleared      = "🗑 Cart cleared."
	MsgCartItemRemoved  = "Removed from cart."
	MsgCartItemSwitched = "Moved to %s."
	MsgMinimumNotMet    = "Minimum not met. Need $%.0f+ in resale and/or donation to continue."
	MsgMinimumMet       = "✅ Minimum met. You can continue to an offer with /offer"
)

// =============================================================================
// Offer messages
// =============================================================================

const (
	MsgOfferAddressPrompt  = "Enter the pickup address as `street, city, state, zip` (optionally `, unit`):"
	MsgOfferAddressInvalid = "Couldn't read that address. Use `street, city, state, zip`, for example `123 Main St, Orlando, FL, 32801`."
	MsgOfferCreating       = "Creating offer..."
	MsgOfferAccepted       = "🎉 Offer accepted. We'll let you know when the pickup is scheduled."
	MsgOfferRejected       = "Offer rejected."
	MsgOfferNotFound       = "Offer not found."
	MsgNoOffers            = "No offers yet. Create one with /offer"
	MsgOffersHeader        = "*Your offers:*\n"
)

// =============================================================================
// Admin command messages
// =============================================================================

const (
	MsgAdminUsage           = "Usage:\n`/admin users add <user_id>`\n`/admin users remove <user_id>`\n`/admin users list`"
	MsgAdminUserAddUsage    = "Usage: `/admin users add <user_id>`"
	MsgAdminUserRemoveUsage = "Usage: `/admin users remove <user_id>`"
	MsgAdminUserInvalidID   = "Invalid user ID. Enter a number."
	MsgAdminUserAdded       = "✅ User `%d` added."
	MsgAdminUserRemoved     = "🗑 User `%d` removed."
	MsgAdminNoUsers         = "No allowed users."
	MsgAdminAllowedUsers    = "*Allowed users:*\n"
)

// =============================================================================
// Button labels
// =============================================================================

const (
	BtnConfirm     = "✅ Confirm"
	BtnEdit        = "✏️ Edit details"
	BtnRescan      = "🔄 Re-scan"
	BtnContinue    = "Continue ➡️"
	BtnRetry       = "🔁 Retry"
	BtnSell        = "💵 Sell now for cash"
	BtnDonate      = "💚 Donate to charity"
	BtnSkipCharity = "Skip"
	BtnNoThanks    = "No thanks"
	BtnScanAnother = "📷 Scan another"
	BtnViewCart    = "🛒 View cart"
	BtnClearCart   = "🗑 Clear cart"
	BtnToOffer     = "🚚 Schedule pickup / offer"
	BtnAccept      = "✅ Accept"
	BtnReject      = "❌ Reject"
)
