package store

import "time"

// PricePoint is one entry of a product's append-only price history.
type PricePoint struct {
	Price float64   `json:"price"`
	At    time.Time `json:"at"`
}

// Metadata carries per-product counters.
//
// PriceChecks equals the number of successful price updates ever applied to
// the product. It is never decremented and never reset by retention.
type Metadata struct {
	Views       int `json:"views"`
	PriceChecks int `json:"priceChecks"`
}

// Product is a tracked catalog item.
//
// Price fields, the history append, and the check counter are mutated only
// through ApplyPriceCheck; the retention sweep only trims history entries.
type Product struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	URL          string       `json:"url"`
	Platform     string       `json:"platform"`
	Currency     string       `json:"currency"`
	IsActive     bool         `json:"isActive"`
	CurrentPrice *float64     `json:"currentPrice,omitempty"`
	TargetPrice  *float64     `json:"targetPrice,omitempty"`
	LastChecked  *time.Time   `json:"lastChecked,omitempty"`
	PriceHistory []PricePoint `json:"priceHistory,omitempty"`
	Metadata     Metadata     `json:"metadata"`

	// AlertedAt is the re-alert watermark: the last time an alert was emitted
	// for this product. Nil means never alerted.
	AlertedAt *time.Time `json:"alertedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// PriceCheck is the atomic outcome of one successful probe: set current
// price + last-checked, append one history point, increment the counter.
type PriceCheck struct {
	Price float64
	At    time.Time
}

// Snapshot is one immutable daily analytics record.
type Snapshot struct {
	Date           time.Time `json:"date"`
	GeneratedAt    time.Time `json:"generatedAt"`
	TotalProducts  int       `json:"totalProducts"`
	ActiveProducts int       `json:"activeProducts"`
	AvgPrice       float64   `json:"avgPrice"`
	MinPrice       float64   `json:"minPrice"`
	MaxPrice       float64   `json:"maxPrice"`
}

// PriceStats aggregates current prices across all products.
// Products without a price are excluded; Count reports how many were priced.
type PriceStats struct {
	Count int
	Avg   float64
	Min   float64
	Max   float64
}

// PlatformStat is a derived per-platform aggregate, computed on demand.
type PlatformStat struct {
	Platform string  `json:"platform"`
	Count    int     `json:"count"`
	AvgPrice float64 `json:"avgPrice"`
	MinPrice float64 `json:"minPrice"`
	MaxPrice float64 `json:"maxPrice"`
}
