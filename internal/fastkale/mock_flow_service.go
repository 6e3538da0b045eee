package fastkale

import (
	"context"
	"sync"
)

// MockFlowService is a test double for FlowService.
// Each method can be overridden with a custom function.
// If not overridden, methods return sensible defaults.
// Thread-safe for use in concurrent tests.
type MockFlowService struct {
	ScanItemFunc             func(ctx context.Context, token string, images []ImageFile) (*ScanResult, error)
	ConfirmItemFunc          func(ctx context.Context, token string, req ConfirmRequest) (*ConfirmResult, error)
	GetEbayPriceFunc         func(ctx context.Context, token, itemID string) (*PriceResult, error)
	ManualPriceOverrideFunc  func(ctx context.Context, token, itemID string, price float64, reason string) (*PriceResult, error)
	AddToCartFunc            func(ctx context.Context, token, itemID string, itemType ItemType, charityID string) (*AddToCartResult, error)
	GetCartFunc              func(ctx context.Context, token string) (*CartData, error)
	RemoveFromCartFunc       func(ctx context.Context, token, itemID string) error
	UpdateCartItemFunc       func(ctx context.Context, token, itemID string, newType ItemType, charityID string) error
	ClearCartFunc            func(ctx context.Context, token string) error
	LoginFunc                func(ctx context.Context, email, password string) (*AuthData, error)
	SignupFunc               func(ctx context.Context, req SignupRequest) (*AuthData, error)
	LogoutFunc               func(ctx context.Context, token string) error
	RefreshTokenFunc         func(ctx context.Context, refreshToken string) (*TokenPair, error)
	RequestPasswordResetFunc func(ctx context.Context, email string) error
	ConfirmPasswordResetFunc func(ctx context.Context, req PasswordResetConfirmRequest) error
	CreateOfferFunc          func(ctx context.Context, token, cartID string, addr PickupAddress) (*Offer, error)
	GetOfferFunc             func(ctx context.Context, token, offerID string) (*Offer, error)
	AcceptOfferFunc          func(ctx context.Context, token, offerID string) (*Offer, error)
	RejectOfferFunc          func(ctx context.Context, token, offerID, reason string) error

	mu sync.Mutex

	// Calls tracks all method invocations for assertions
	Calls []MockCall
}

// MockCall records a method call for test assertions.
type MockCall struct {
	Method string
	Args   []any
}

// Ensure MockFlowService implements FlowService
var _ FlowService = (*MockFlowService)(nil)

func (m *MockFlowService) record(method string, args ...any) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
	m.mu.Unlock()
}

func (m *MockFlowService) ScanItem(ctx context.Context, token string, images []ImageFile) (*ScanResult, error) {
	m.record("ScanItem", token, len(images))
	m.mu.Lock()
	fn := m.ScanItemFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, token, images)
	}
	return &ScanResult{
		ItemID:          "mock-item-id",
		Category:        CategoryOption{ID: "cat-other", Name: "other", DisplayName: "Other"},
		Condition:       "Good",
		ConfidenceScore: 90,
		NextStep:        "confirm",
	}, nil
}

func (m *MockFlowService) ConfirmItem(ctx context.Context, token string, req ConfirmRequest) (*ConfirmResult, error) {
	m.record("ConfirmItem", token, req)
	m.mu.Lock()
	fn := m.ConfirmItemFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, token, req)
	}
	return &ConfirmResult{ItemID: req.ItemID, Status: "confirmed", NextStep: "price"}, nil
}

func (m *MockFlowService) GetEbayPrice(ctx context.Context, token, itemID string) (*PriceResult, error) {
	m.record("GetEbayPrice", token, itemID)
	m.mu.Lock()
	fn := m.GetEbayPriceFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, token, itemID)
	}
	return &PriceResult{ItemID: itemID, CalculationMethod: "ebay", NextStep: "choose"}, nil
}

func (m *MockFlowService) ManualPriceOverride(ctx context.Context, token, itemID string, price float64, reason string) (*PriceResult, error) {
	m.record("ManualPriceOverride", token, itemID, price, reason)
	m.mu.Lock()
	fn := m.ManualPriceOverrideFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, token, itemID, price, reason)
	}
	return &PriceResult{
		ItemID:               itemID,
		EstimatedResaleValue: &price,
		CalculationMethod:    "manual",
		NextStep:             "choose",
	}, nil
}

func (m *MockFlowService) AddToCart(ctx context.Context, token, itemID string, itemType ItemType, charityID string) (*AddToCartResult, error) {
	m.record("AddToCart", token, itemID, itemType, charityID)
	m.mu.Lock()
	fn := m.AddToCartFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, token, itemID, itemType, charityID)
	}
	return &AddToCartResult{Cart: CartData{
		ID:    "mock-cart-id",
		Items: []CartItem{{ItemID: itemID, ItemType: itemType}},
	}}, nil
}

func (m *MockFlowService) GetCart(ctx context.Context, token string) (*CartData, error) {
	m.record("GetCart", token)
	m.mu.Lock()
	fn := m.GetCartFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, token)
	}
	return &CartData{ID: "mock-cart-id"}, nil
}

func (m *MockFlowService) RemoveFromCart(ctx context.Context, token, itemID string) error {
	m.record("RemoveFromCart", token, itemID)
	m.mu.Lock()
	fn := m.RemoveFromCartFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, token, itemID)
	}
	return nil
}

func (m *MockFlowService) UpdateCartItem(ctx context.Context, token, itemID string, newType ItemType, charityID string) error {
	m.record("UpdateCartItem", token, itemID, newType, charityID)
	m.mu.Lock()
	fn := m.UpdateCartItemFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, token, itemID, newType, charityID)
	}
	return nil
}

func (m *MockFlowService) ClearCart(ctx context.Context, token string) error {
	m.record("ClearCart", token)
	m.mu.Lock()
	fn := m.ClearCartFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, token)
	}
	return nil
}

func (m *MockFlowService) Login(ctx context.Context, email, password string) (*AuthData, error) {
	m.record("Login", email)
	m.mu.Lock()
	fn := m.LoginFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, email, password)
	}
	return &AuthData{
		User:    &UserProfile{ID: "mock-user-id", Email: email},
		Session: AuthSession{AccessToken: "mock-access-token", RefreshToken: "mock-refresh-token"},
	}, nil
}

func (m *MockFlowService) Signup(ctx context.Context, req SignupRequest) (*AuthData, error) {
	m.record("Signup", req.Email)
	m.mu.Lock()
	fn := m.SignupFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &AuthData{
		User:    &UserProfile{ID: "mock-user-id", Email: req.Email, FullName: req.FullName},
		Session: AuthSession{AccessToken: "mock-access-token", RefreshToken: "mock-refresh-token"},
	}, nil
}

func (m *MockFlowService) Logout(ctx context.Context, token string) error {
	m.record("Logout", token)
	m.mu.Lock()
	fn := m.LogoutFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, token)
	}
	return nil
}

func (m *MockFlowService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	m.record("RefreshToken", refreshToken)
	m.mu.Lock()
	fn := m.RefreshTokenFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, refreshToken)
	}
	return &TokenPair{AccessToken: "mock-access-token", RefreshToken: "mock-refresh-token"}, nil
}

func (m *MockFlowService) RequestPasswordReset(ctx context.Context, email string) error {
	m.record("RequestPasswordReset", email)
	m.mu.Lock()
	fn := m.RequestPasswordResetFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, email)
	}
	return nil
}

func (m *MockFlowService) ConfirmPasswordReset(ctx context.Context, req PasswordResetConfirmRequest) error {
	m.record("ConfirmPasswordReset", req.ResetToken)
	m.mu.Lock()
	fn := m.ConfirmPasswordResetFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return nil
}

func (m *MockFlowService) CreateOffer(ctx context.Context, token, cartID string, addr PickupAddress) (*Offer, error) {
	m.record("CreateOffer", token, cartID, addr)
	m.mu.Lock()
	fn := m.CreateOfferFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, token, cartID, addr)
	}
	return &Offer{OfferID: "mock-offer-id", Status: "pending"}, nil
}

func (m *MockFlowService) GetOffer(ctx context.Context, token, offerID string) (*Offer, error) {
	m.record("GetOffer", token, offerID)
	m.mu.Lock()
	fn := m.GetOfferFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, token, offerID)
	}
	return &Offer{OfferID: offerID, Status: "pending"}, nil
}

func (m *MockFlowService) AcceptOffer(ctx context.Context, token, offerID string) (*Offer, error) {
	m.record("AcceptOffer", token, offerID)
	m.mu.Lock()
	fn := m.AcceptOfferFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, token, offerID)
	}
	return &Offer{OfferID: offerID, Status: "accepted"}, nil
}

func (m *MockFlowService) RejectOffer(ctx context.Context, token, offerID, reason string) error {
	m.record("RejectOffer", token, offerID, reason)
	m.mu.Lock()
	fn := m.RejectOfferFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, token, offerID, reason)
	}
	return nil
}

// CallsTo returns the recorded calls of one method.
func (m *MockFlowService) CallsTo(method string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var calls []MockCall
	for _, c := range m.Calls {
		if c.Method == method {
			calls = append(calls, c)
		}
	}
	return calls
}
