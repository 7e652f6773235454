package models

import "time"

// Campaign type names. A banner_external campaign is a rotating storefront
// banner pointing at an external URL; a product_internal campaign sponsors a
// catalog listing inside search and category pages.
const (
	AdTypeBanner  = "banner_external"
	AdTypeProduct = "product_internal"
)

// Campaign status values. Suspended is reserved for the fraud path and admin
// action; expired campaigns age out of the date window without a status write.
const (
	StatusDraft     = "draft"
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusRejected  = "rejected"
	StatusExpired   = "expired"
)

// Approval status values. Self-serve and platform-run campaigns carry an
// empty approval status, which eligibility treats the same as approved.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Campaign is a single paid placement owned by a seller (SellerID == 0 means
// the platform runs it). The counter pair is only ever mutated through atomic
// SQL increments; status and notes only through the suspension controller or
// external admin tooling. The engine never deletes campaigns.
type Campaign struct {
	ID             int    `json:"id"`
	SellerID       int    `json:"seller_id"`
	AdType         string `json:"ad_type"`
	Status         string `json:"status"`
	ApprovalStatus string `json:"approval_status,omitempty"`
	// ProductID links a product_internal campaign to the listing it
	// sponsors. Zero for banner campaigns.
	ProductID int       `json:"product_id,omitempty"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	// BidAmount is the fixed price chosen at creation time. It drives both
	// the banner display duration and the sponsorship ordering.
	BidAmount   float64   `json:"bid_amount"`
	BannerImage string    `json:"banner_image,omitempty"`
	BannerLink  string    `json:"banner_link,omitempty"`
	AutoPaused  bool      `json:"auto_paused"`
	ClickCount  int64     `json:"click_count"`
	ReachCount  int64     `json:"reach_count"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	// PaymentSettled is a joined read from the payments table.
	// HasPaymentRecord distinguishes "no payment row" (house ads, which pass
	// the banner check) from an unsettled invoice.
	PaymentSettled   bool `json:"payment_settled"`
	HasPaymentRecord bool `json:"has_payment_record"`
}

// BannerSlot is one entry of the banner rotation schedule returned to the
// storefront widget. The engine never tracks a "currently playing" banner;
// the caller owns the rotation timer.
type BannerSlot struct {
	Campaign       Campaign `json:"campaign"`
	DisplaySeconds int      `json:"display_seconds"`
	DisplayMinutes float64  `json:"display_minutes"`
}

// CampaignStats mirrors the statistics view: log-derived totals alongside the
// denormalized campaign counters.
type CampaignStats struct {
	CampaignID  int   `json:"campaign_id"`
	TotalReach  int64 `json:"total_reach"`
	TotalClicks int64 `json:"total_clicks"`
	TodayReach  int64 `json:"today_reach"`
	TodayClicks int64 `json:"today_clicks"`
	ReachCount  int64 `json:"reach_count"`
	ClickCount  int64 `json:"click_count"`
}
