package models

import "time"

// ListingSignals carries the organic ranking inputs for one catalog listing,
// as loaded from storage. The composite score itself is computed in the
// ranking engine so the sponsorship join stays in one place.
type ListingSignals struct {
	ProductID     int       `json:"product_id"`
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	ListPrice     float64   `json:"list_price"`
	SalePrice     float64   `json:"sale_price"`
	StockQuantity int       `json:"stock_quantity"`
	CreatedAt     time.Time `json:"created_at"`
	// AvgProductRating and AvgSellerRating are review averages, zero when
	// unreviewed.
	AvgProductRating float64 `json:"avg_product_rating"`
	AvgSellerRating  float64 `json:"avg_seller_rating"`
	// MonthlySales counts delivered order items in the last 30 days.
	MonthlySales int `json:"monthly_sales"`
	// CategoryOrders counts 30-day orders across the listing's category;
	// the trend score is 0.1 per order.
	CategoryOrders int `json:"category_orders"`
}

// RankedListing pairs a listing with its composite score.
type RankedListing struct {
	Listing   ListingSignals `json:"listing"`
	Score     float64        `json:"score"`
	Sponsored bool           `json:"sponsored"`
}
