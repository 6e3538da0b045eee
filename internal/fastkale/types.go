package fastkale

import "strings"

// ItemType is the destination of a cart item.
type ItemType string

const (
	ItemTypeResale   ItemType = "resale"
	ItemTypeDonation ItemType = "donation"
)

// CategoryOption is the category classification attached to a scanned item.
type CategoryOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// IsJewelry reports whether the category routes through the jewelry step.
// The backend has no explicit category kind, so this matches "jewel"
// anywhere in the display name, ignoring case.
func (c CategoryOption) IsJewelry() bool {
	return strings.Contains(strings.ToLower(c.DisplayName), "jewel")
}

// Label returns the display name, falling back to the internal name.
func (c CategoryOption) Label() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	if c.Name != "" {
		return c.Name
	}
	return "—"
}

// ItemAttribute is a named attribute detected on a scanned item.
type ItemAttribute struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	Value      string `json:"value"`
	AIDetected bool   `json:"ai_detected"`
}

// DisplayLabel returns the label, or the name when no label is set.
func (a ItemAttribute) DisplayLabel() string {
	if a.Label != "" {
		return a.Label
	}
	return a.Name
}

// ScanResult is the backend classification of a set of item photos.
type ScanResult struct {
	ItemID               string          `json:"item_id"`
	Category             CategoryOption  `json:"category"`
	Condition            string          `json:"condition"`
	Attributes           []ItemAttribute `json:"attributes"`
	Description          string          `json:"description"`
	ConfidenceScore      float64         `json:"confidence_score"`
	RequiresManualReview bool            `json:"requires_manual_review"`
	ImageURLs            []string        `json:"image_urls"`
	EbaySearchSuggestion string          `json:"ebay_search_suggestion"`
	MetalType            *string         `json:"metal_type"`
	Purity               *string         `json:"purity"`
	NextStep             string          `json:"next_step"`
}

// AttributeMap returns the attribute values keyed by attribute name.
func (r *ScanResult) AttributeMap() map[string]string {
	attrs := make(map[string]string, len(r.Attributes))
	for _, a := range r.Attributes {
		attrs[a.Name] = a.Value
	}
	return attrs
}

// ConfirmRequest is the payload of confirm-item.
type ConfirmRequest struct {
	ItemID           string            `json:"item_id"`
	CategoryID       string            `json:"category_id"`
	Condition        string            `json:"condition"`
	Attributes       map[string]string `json:"attributes"`
	ManuallyVerified bool              `json:"manually_verified"`
}

// ConfirmResult is the data returned by confirm-item.
type ConfirmResult struct {
	ItemID   string `json:"item_id"`
	Status   string `json:"status"`
	NextStep string `json:"next_step"`
}

// EbayData holds the comparables used for an eBay based estimate.
type EbayData struct {
	SearchQuery    string   `json:"search_query"`
	ResultsCount   int      `json:"results_count"`
	MedianPrice    *float64 `json:"median_price"`
	TopComparables []any    `json:"top_comparables,omitempty"`
}

// JewelryData holds the inputs of a metal value estimate.
type JewelryData struct {
	MetalType        string  `json:"metal_type"`
	Purity           string  `json:"purity"`
	WeightGrams      float64 `json:"weight_grams"`
	SpotPricePerGram float64 `json:"spot_price_per_gram"`
	FinalValue       float64 `json:"final_value"`
}

// PriceResult is the estimated value of a confirmed item.
// EstimatedResaleValue is nil when no comparable was found.
type PriceResult struct {
	ItemID               string       `json:"item_id"`
	EstimatedResaleValue *float64     `json:"estimated_resale_value"`
	CalculationMethod    string       `json:"calculation_method"`
	EbayData             *EbayData    `json:"ebay_data,omitempty"`
	JewelryData          *JewelryData `json:"jewelry_data,omitempty"`
	NextStep             string       `json:"next_step"`
	Message              string       `json:"message,omitempty"`
}

// HasPrice reports whether the estimate is a positive number.
func (p *PriceResult) HasPrice() bool {
	return p != nil && p.EstimatedResaleValue != nil && *p.EstimatedResaleValue > 0
}

// Value returns the estimate, or 0 when there is none.
func (p *PriceResult) Value() float64 {
	if p == nil || p.EstimatedResaleValue == nil {
		return 0
	}
	return *p.EstimatedResaleValue
}

// Charity is the recipient of a donation item.
type Charity struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	LogoURL string `json:"logo_url,omitempty"`
}

// CartItem is a single item in the cart.
type CartItem struct {
	ItemID         string   `json:"item_id"`
	Title          string   `json:"title"`
	EstimatedValue float64  `json:"estimated_value"`
	ItemType       ItemType `json:"item_type"`
	Condition      string   `json:"condition"`
	Category       string   `json:"category"`
	ImageURL       *string  `json:"image_url"`
	Charity        *Charity `json:"charity,omitempty"`
}

// CartData is the aggregate cart as computed by the backend.
type CartData struct {
	ID                 string     `json:"id"`
	TotalResaleValue   float64    `json:"total_resale_value"`
	TotalDonationValue float64    `json:"total_donation_value"`
	ResaleItemCount    int        `json:"resale_item_count"`
	DonationItemCount  int        `json:"donation_item_count"`
	MeetsMinimum       bool       `json:"meets_minimum"`
	CanCheckout        bool       `json:"can_checkout"`
	Items              []CartItem `json:"items"`
}

// ItemsOfType returns the cart items with the given destination.
func (c *CartData) ItemsOfType(t ItemType) []CartItem {
	var items []CartItem
	for _, item := range c.Items {
		if item.ItemType == t {
			items = append(items, item)
		}
	}
	return items
}

// ItemCount returns the total number of items in the cart.
func (c *CartData) ItemCount() int {
	return len(c.Items)
}

// GMV is the gross merchandise value of the cart.
func (c *CartData) GMV() float64 {
	return c.TotalResaleValue + c.TotalDonationValue
}

// AddToCartResult is the data returned by add-to-cart.
type AddToCartResult struct {
	Cart CartData `json:"cart"`
}

// UserProfile is the authenticated user.
type UserProfile struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FullName  string  `json:"full_name"`
	Phone     *string `json:"phone"`
	Role      string  `json:"role"`
	CreatedAt string  `json:"created_at,omitempty"`
	UpdatedAt string  `json:"updated_at,omitempty"`
}

// AuthSession holds the backend tokens.
type AuthSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	TokenType    string `json:"token_type"`
}

// AuthData is returned by signup and login.
type AuthData struct {
	User    *UserProfile `json:"user"`
	Session AuthSession  `json:"session"`
}

// TokenPair is returned by refresh-token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// SignupRequest is the payload of signup.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

// PasswordResetConfirmRequest is the payload of password-reset-confirm.
type PasswordResetConfirmRequest struct {
	ResetToken  string `json:"reset_token"`
	NewPassword string `json:"new_password"`
}

// PickupAddress is where the items of an offer are collected.
type PickupAddress struct {
	StreetAddress string `json:"street_address"`
	City          string `json:"city"`
	State         string `json:"state"`
	ZipCode       string `json:"zip_code"`
	ApartmentUnit string `json:"apartment_unit,omitempty"`
	GooglePlaceID string `json:"google_place_id,omitempty"`
}

// PricingSummary is the money side of an offer.
type PricingSummary struct {
	TotalResaleValue   float64 `json:"total_resale_value"`
	TotalDonationValue float64 `json:"total_donation_value"`
	GMV                float64 `json:"gmv"`
	TotalSellerPayout  float64 `json:"total_seller_payout"`
}

// TotalValue is the GMV, or resale plus donation when the backend leaves
// it out.
func (p PricingSummary) TotalValue() float64 {
	if p.GMV != 0 {
		return p.GMV
	}
	return p.TotalResaleValue + p.TotalDonationValue
}

// Offer is a purchase offer for the contents of a cart.
type Offer struct {
	OfferID        string         `json:"offer_id"`
	Status         string         `json:"status"`
	PricingSummary PricingSummary `json:"pricing_summary"`
	Breakdown      []any          `json:"breakdown,omitempty"`
}
