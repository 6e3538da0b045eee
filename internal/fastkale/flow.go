package fastkale

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// MaxScanImages is the most photos accepted by scan-item.
const MaxScanImages = 5

// ImageFile is a photo of the item being scanned.
type ImageFile struct {
	Name     string
	MimeType string
	Data     []byte
}

// ScanItem uploads 1 to 5 photos and returns the classification.
func (c *Client) ScanItem(ctx context.Context, token string, images []ImageFile) (*ScanResult, error) {
	if len(images) == 0 {
		return nil, errors.New("scan item: no images")
	}
	if len(images) > MaxScanImages {
		return nil, fmt.Errorf("scan item: at most %d images, got %d", MaxScanImages, len(images))
	}
	files := make([]FormFile, len(images))
	for i, img := range images {
		files[i] = FormFile{Field: "images", Name: img.Name, ContentType: img.MimeType, Data: img.Data}
	}
	res, err := c.Call(ctx, "scan-item", CallOptions{Method: http.MethodPost, Token: token, Files: files})
	if err != nil {
		return nil, fmt.Errorf("scan item: %w", err)
	}
	return getData[ScanResult](res)
}

// ConfirmItem confirms the category, condition and attributes of an item.
func (c *Client) ConfirmItem(ctx context.Context, token string, req ConfirmRequest) (*ConfirmResult, error) {
	if req.Attributes == nil {
		req.Attributes = map[string]string{}
	}
	res, err := c.Call(ctx, "confirm-item", CallOptions{Method: http.MethodPost, Body: req, Token: token})
	if err != nil {
		return nil, fmt.Errorf("confirm item: %w", err)
	}
	return getData[ConfirmResult](res)
}

// GetEbayPrice asks the backend for a price estimate of a confirmed item.
// Jewelry items are priced from metal spot prices by the same endpoint.
func (c *Client) GetEbayPrice(ctx context.Context, token, itemID string) (*PriceResult, error) {
	res, err := c.Call(ctx, "get-ebay-price", CallOptions{
		Method: http.MethodPost,
		Body:   map[string]any{"item_id": itemID},
		Token:  token,
	})
	if err != nil {
		return nil, fmt.Errorf("get ebay price: %w", err)
	}
	return getData[PriceResult](res)
}

type manualPriceRequest struct {
	ItemID      string  `json:"item_id"`
	ManualPrice float64 `json:"manual_price"`
	Reason      string  `json:"reason,omitempty"`
}

// ManualPriceOverride sets the price of an item by hand. An empty reason
// is omitted from the request.
func (c *Client) ManualPriceOverride(ctx context.Context, token, itemID string, price float64, reason string) (*PriceResult, error) {
	res, err := c.Call(ctx, "manual-price-override", CallOptions{
		Method: http.MethodPost,
		Body:   manualPriceRequest{ItemID: itemID, ManualPrice: price, Reason: reason},
		Token:  token,
	})
	if err != nil {
		return nil, fmt.Errorf("manual price override: %w", err)
	}
	return getData[PriceResult](res)
}

type addToCartRequest struct {
	ItemID    string   `json:"item_id"`
	ItemType  ItemType `json:"item_type"`
	CharityID string   `json:"charity_id,omitempty"`
}

// AddToCart places an item in the cart. The charity is only sent for
// donations.
func (c *Client) AddToCart(ctx context.Context, token, itemID string, itemType ItemType, charityID string) (*AddToCartResult, error) {
	body := addToCartRequest{ItemID: itemID, ItemType: itemType}
	if itemType == ItemTypeDonation && charityID != "" {
		body.CharityID = charityID
	}
	res, err := c.Call(ctx, "add-to-cart", CallOptions{Method: http.MethodPost, Body: body, Token: token})
	if err != nil {
		return nil, fmt.Errorf("add to cart: %w", err)
	}
	return getData[AddToCartResult](res)
}

// GetCart fetches the current cart. Both a bare cart and one nested under
// a "cart" key are accepted.
func (c *Client) GetCart(ctx context.Context, token string) (*CartData, error) {
	res, err := c.Call(ctx, "get-cart", CallOptions{Method: http.MethodGet, Token: token})
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return getNested[CartData](res, "cart")
}

// RemoveFromCart removes an item from the cart.
func (c *Client) RemoveFromCart(ctx context.Context, token, itemID string) error {
	res, err := c.Call(ctx, "remove-from-cart", CallOptions{
		Method: http.MethodPost,
		Body:   map[string]any{"item_id": itemID},
		Token:  token,
	})
	if err != nil {
		return fmt.Errorf("remove from cart: %w", err)
	}
	return checkOK(res)
}

type updateCartItemRequest struct {
	ItemID      string   `json:"item_id"`
	NewItemType ItemType `json:"new_item_type"`
	CharityID   string   `json:"charity_id,omitempty"`
}

// UpdateCartItem moves a cart item between resale and donation.
func (c *Client) UpdateCartItem(ctx context.Context, token, itemID string, newType ItemType, charityID string) error {
	body := updateCartItemRequest{ItemID: itemID, NewItemType: newType}
	if newType == ItemTypeDonation {
		body.CharityID = charityID
	}
	res, err := c.Call(ctx, "update-cart-item", CallOptions{Method: http.MethodPost, Body: body, Token: token})
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return checkOK(res)
}

// ClearCart removes every item from the cart.
func (c *Client) ClearCart(ctx context.Context, token string) error {
	res, err := c.Call(ctx, "clear-cart", CallOptions{Method: http.MethodPost, Token: token})
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return checkOK(res)
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthData, error) {
	res, err := c.Call(ctx, "login", CallOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return getData[AuthData](res)
}

// Signup creates an account and returns its first session.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*AuthData, error) {
	res, err := c.Call(ctx, "signup", CallOptions{Method: http.MethodPost, Body: req})
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	return getData[AuthData](res)
}

// Logout ends the session of the token.
func (c *Client) Logout(ctx context.Context, token string) error {
	res, err := c.Call(ctx, "logout", CallOptions{Method: http.MethodPost, Token: token})
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return checkOK(res)
}

// RefreshToken trades a refresh token for a new token pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	res, err := c.Call(ctx, "refresh-token", CallOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"refresh_token": refreshToken},
	})
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return getData[TokenPair](res)
}

// RequestPasswordReset sends a reset email.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	res, err := c.Call(ctx, "password-reset-request", CallOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"email": email},
	})
	if err != nil {
		return fmt.Errorf("password reset request: %w", err)
	}
	return checkOK(res)
}

// ConfirmPasswordReset sets a new password using a reset token.
func (c *Client) ConfirmPasswordReset(ctx context.Context, req PasswordResetConfirmRequest) error {
	res, err := c.Call(ctx, "password-reset-confirm", CallOptions{Method: http.MethodPost, Body: req})
	if err != nil {
		return fmt.Errorf("password reset confirm: %w", err)
	}
	return checkOK(res)
}

type createOfferRequest struct {
	CartID        string        `json:"cart_id"`
	PickupAddress PickupAddress `json:"pickup_address"`
}

// CreateOffer requests an offer for the cart.
func (c *Client) CreateOffer(ctx context.Context, token, cartID string, addr PickupAddress) (*Offer, error) {
	res, err := c.Call(ctx, "create-offer", CallOptions{
		Method: http.MethodPost,
		Body:   createOfferRequest{CartID: cartID, PickupAddress: addr},
		Token:  token,
	})
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	return getNested[Offer](res, "offer")
}

// GetOffer fetches an offer by id.
func (c *Client) GetOffer(ctx context.Context, token, offerID string) (*Offer, error) {
	res, err := c.Call(ctx, "get-offer", CallOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"offer_id": offerID},
		Token:  token,
	})
	if err != nil {
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return getNested[Offer](res, "offer")
}

// AcceptOffer accepts an offer.
func (c *Client) AcceptOffer(ctx context.Context, token, offerID string) (*Offer, error) {
	res, err := c.Call(ctx, "accept-offer", CallOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"offer_id": offerID},
		Token:  token,
	})
	if err != nil {
		return nil, fmt.Errorf("accept offer: %w", err)
	}
	return getNested[Offer](res, "offer")
}

type rejectOfferRequest struct {
	OfferID string `json:"offer_id"`
	Reason  string `json:"reason,omitempty"`
}

// RejectOffer rejects an offer. An empty reason is omitted.
func (c *Client) RejectOffer(ctx context.Context, token, offerID, reason string) error {
	res, err := c.Call(ctx, "reject-offer", CallOptions{
		Method: http.MethodPost,
		Body:   rejectOfferRequest{OfferID: offerID, Reason: reason},
		Token:  token,
	})
	if err != nil {
		return fmt.Errorf("reject offer: %w", err)
	}
	return checkOK(res)
}

// checkOK returns the backend error of a failed call. Data is not required.
func checkOK(res *CallResult) error {
	if res.OK {
		return nil
	}
	_, err := getData[json.RawMessage](res)
	return err
}

// getNested unwraps data like getData, descending into data[key] when the
// backend wraps the object.
func getNested[T any](res *CallResult, key string) (*T, error) {
	raw, err := getData[json.RawMessage](res)
	if err != nil {
		return nil, err
	}
	var wrapped map[string]json.RawMessage
	if json.Unmarshal(*raw, &wrapped) == nil {
		if inner, ok := wrapped[key]; ok && len(inner) > 0 && string(inner) != "null" {
			*raw = inner
		}
	}
	var data T
	if err := json.Unmarshal(*raw, &data); err != nil {
		return nil, fmt.Errorf("decode response data: %w", err)
	}
	return &data, nil
}
