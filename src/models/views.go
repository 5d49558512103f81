package models

// Derived, presentation-ready structures produced by the aggregator. They
// carry no behaviour and are recomputed on every call; nothing in here is
// persisted or cached beyond a single request lifecycle.

// PortfolioSummary is the KPI header of the dashboard.
type PortfolioSummary struct {
	Portfolio
	TotalAssets  int      `json:"totalAssets"`
	TotalValue   float64  `json:"totalValue"`
	TotalReturn  float64  `json:"totalReturn"`
	AssetClasses []string `json:"assetClasses"`
}

// HoldingView is one row of the holdings table, flattened for rendering.
// PortfolioPercent is this holding's share of the full, unfiltered
// portfolio market value, so it stays comparable across filter states.
type HoldingView struct {
	Symbol           string  `json:"symbol"`
	Name             string  `json:"name"`
	AssetClass       string  `json:"assetClass"`
	Logo             string  `json:"logo,omitempty"`
	CurrentPrice     float64 `json:"currentPrice"`
	Quantity         float64 `json:"quantity"`
	MarketValue      float64 `json:"marketValue"`
	Change24h        float64 `json:"change24h"`
	Change24hValue   float64 `json:"change24hValue"`
	PortfolioPercent float64 `json:"portfolioPercent"`
}

// AllocationEntry feeds the allocation donut. Value is the raw market
// value, not a percentage; consumers that want percentages divide by the
// sum themselves so that ones needing absolute figures are not forced to
// re-derive them.
type AllocationEntry struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Change float64 `json:"change"`
}

// PerformancePoint is one point of the portfolio-vs-benchmark chart.
type PerformancePoint struct {
	Timestamp      string  `json:"timestamp"`
	PortfolioValue float64 `json:"portfolio"`
	BenchmarkValue float64 `json:"benchmark"`
}

// PortfolioView bundles everything one dashboard refresh needs.
type PortfolioView struct {
	Summary     PortfolioSummary   `json:"summary"`
	Holdings    []HoldingView      `json:"holdings"`
	Allocation  []AllocationEntry  `json:"allocation"`
	Performance []PerformancePoint `json:"performance"`
}
