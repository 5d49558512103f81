package models

import "math"

// Asset classes recognised by the platform. Anything else coming back from
// the database is kept verbatim so the UI can still render it.
const (
	AssetClassCrypto = "crypto"
	AssetClassStocks = "stocks"
	AssetClassETF    = "etf"
	AssetClassBonds  = "bonds"
	AssetClassOther  = "other"
)

// Portfolio statuses.
const (
	PortfolioStatusActive   = "active"
	PortfolioStatusArchived = "archived"
)

// Transaction sides.
const (
	TransactionSideBuy      = "buy"
	TransactionSideSell     = "sell"
	TransactionSideDividend = "dividend"
)

// Asset is reference data maintained by the catalog; read-only everywhere else.
type Asset struct {
	ID         string `json:"id"`
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	AssetClass string `json:"asset_class"`
	LogoURL    string `json:"logo_url,omitempty"`
	Exchange   string `json:"exchange,omitempty"`
	IsActive   bool   `json:"is_active"`
}

type Portfolio struct {
	ID               string  `json:"id"`
	UserID           int64   `json:"user_id"`
	Name             string  `json:"name"`
	InitialBalance   float64 `json:"initial_balance"`
	CurrentBalance   float64 `json:"current_balance"`
	TotalInvested    float64 `json:"total_invested"`
	TotalReturn      float64 `json:"total_return"`
	ReturnPercentage float64 `json:"return_percentage"`
	Status           string  `json:"status"`
	IsDefault        bool    `json:"is_default"`
	CreatedAt        string  `json:"created_at,omitempty"`
	UpdatedAt        string  `json:"updated_at,omitempty"`
}

// Holding is a position in one asset within one portfolio. MarketValue,
// UnrealizedPnL and UnrealizedPnLPercent are derived from
// quantity/current price/average cost and must only ever be written through
// RecomputeDerived so that stored and derived values cannot drift apart.
type Holding struct {
	ID                   string  `json:"id"`
	PortfolioID          string  `json:"portfolio_id"`
	Asset                Asset   `json:"asset"`
	Quantity             float64 `json:"quantity"`
	AverageCost          float64 `json:"average_cost"`
	CurrentPrice         float64 `json:"current_price"`
	MarketValue          float64 `json:"market_value"`
	UnrealizedPnL        float64 `json:"unrealized_pnl"`
	UnrealizedPnLPercent float64 `json:"unrealized_pnl_percentage"`
	UpdatedAt            string  `json:"updated_at,omitempty"`
}

// Transaction is one row of the append-only execution log. RealizedPnL is
// only meaningful for sell and dividend sides.
type Transaction struct {
	ID          string  `json:"id"`
	PortfolioID string  `json:"portfolio_id"`
	Asset       Asset   `json:"asset"`
	Side        string  `json:"side"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	RealizedPnL float64 `json:"realized_pnl"`
	ExecutedAt  string  `json:"executed_at"`
}

// PerformanceSnapshot is the end-of-day valuation row, one per
// (portfolio, date) pair. Date is day granularity, formatted 2006-01-02.
type PerformanceSnapshot struct {
	PortfolioID     string  `json:"portfolio_id"`
	Date            string  `json:"date"`
	TotalValue      float64 `json:"total_value"`
	BenchmarkReturn float64 `json:"benchmark_return"`
}

// CoerceNumber normalises a numeric field read from the gateway: NaN and
// infinities become 0 so downstream sums never silently poison an
// accumulator. All aggregation code assumes its inputs went through this.
func CoerceNumber(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Normalize applies the coerce-on-read rule to a holding: every numeric
// field is defaulted and the derived fields are recomputed from the
// primary ones. Called at the data-model boundary right after scanning a
// row, never inside the aggregation code.
func (h *Holding) Normalize() {
	h.Quantity = CoerceNumber(h.Quantity)
	h.AverageCost = CoerceNumber(h.AverageCost)
	h.CurrentPrice = CoerceNumber(h.CurrentPrice)
	h.RecomputeDerived()
}

// RecomputeDerived rewrites MarketValue, UnrealizedPnL and
// UnrealizedPnLPercent from quantity, current price and average cost.
func (h *Holding) RecomputeDerived() {
	h.MarketValue = CoerceNumber(h.Quantity * h.CurrentPrice)
	cost := CoerceNumber(h.Quantity * h.AverageCost)
	h.UnrealizedPnL = h.MarketValue - cost
	if cost > 0 {
		h.UnrealizedPnLPercent = CoerceNumber(h.UnrealizedPnL / cost * 100)
	} else {
		h.UnrealizedPnLPercent = 0
	}
}

// Normalize defaults the numeric fields of a snapshot.
func (s *PerformanceSnapshot) Normalize() {
	s.TotalValue = CoerceNumber(s.TotalValue)
	s.BenchmarkReturn = CoerceNumber(s.BenchmarkReturn)
}
