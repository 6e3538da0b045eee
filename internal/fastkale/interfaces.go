package fastkale

import "context"

// ScanService is the part of the backend the scan wizard talks to.
type ScanService interface {
	ScanItem(ctx context.Context, token string, images []ImageFile) (*ScanResult, error)
	ConfirmItem(ctx context.Context, token string, req ConfirmRequest) (*ConfirmResult, error)
	GetEbayPrice(ctx context.Context, token, itemID string) (*PriceResult, error)
	ManualPriceOverride(ctx context.Context, token, itemID string, price float64, reason string) (*PriceResult, error)
	AddToCart(ctx context.Context, token, itemID string, itemType ItemType, charityID string) (*AddToCartResult, error)
}

// FlowService defines the typed operations of the backend.
// This interface allows for mocking in tests.
type FlowService interface {
	ScanService

	GetCart(ctx context.Context, token string) (*CartData, error)
	RemoveFromCart(ctx context.Context, token, itemID string) error
	UpdateCartItem(ctx context.Context, token, itemID string, newType ItemType, charityID string) error
	ClearCart(ctx context.Context, token string) error

	Login(ctx context.Context, email, password string) (*AuthData, error)
	Signup(ctx context.Context, req SignupRequest) (*AuthData, error)
	Logout(ctx context.Context, token string) error
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, req PasswordResetConfirmRequest) error

	CreateOffer(ctx context.Context, token, cartID string, addr PickupAddress) (*Offer, error)
	GetOffer(ctx context.Context, token, offerID string) (*Offer, error)
	AcceptOffer(ctx context.Context, token, offerID string) (*Offer, error)
	RejectOffer(ctx context.Context, token, offerID, reason string) error
}

// Ensure Client implements FlowService
var _ FlowService = (*Client)(nil)
