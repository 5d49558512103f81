package services

import (
	"context"

	"github.com/username/tradingpro/backend/src/aggregator"
	"github.com/username/tradingpro/backend/src/models"
)

// PortfolioService is the raw data gateway over the persisted tables plus
// the view-assembly entry points. The Fetch* group returns raw records;
// the Get* group hands them to the aggregator and caches the result for a
// short window. Transport failures wrap models.ErrUpstreamUnavailable.
type PortfolioService interface {
	FetchPortfolios(userID int64) ([]models.Portfolio, error)
	FetchPortfolioByID(portfolioID string) (*models.Portfolio, error)
	FetchHoldings(portfolioID string) ([]models.Holding, error)
	FetchTransactions(portfolioID string, limit int) ([]models.Transaction, error)
	FetchPerformance(portfolioID string, sinceDate string) ([]models.PerformanceSnapshot, error)
	FetchAllocationHoldings(portfolioID string) ([]models.Holding, error)

	CreatePortfolio(userID int64, name string, initialBalance float64, isDefault bool) (*models.Portfolio, error)
	UpdatePortfolio(portfolioID string, updates PortfolioUpdates) (*models.Portfolio, error)
	ArchivePortfolio(portfolioID string) error

	GetSummary(portfolioID string) (models.PortfolioSummary, error)
	GetHoldingsView(portfolioID string, opts aggregator.HoldingViewOptions) ([]models.HoldingView, error)
	GetAllocation(portfolioID string) ([]models.AllocationEntry, error)
	GetPerformanceSeries(portfolioID string, days int) ([]models.PerformancePoint, error)
	GetView(portfolioID string, days int) (*models.PortfolioView, error)

	InvalidatePortfolioCache(portfolioID string)
}

// PortfolioUpdates carries the mutable portfolio fields; nil means "leave
// unchanged".
type PortfolioUpdates struct {
	Name      *string `json:"name,omitempty"`
	IsDefault *bool   `json:"is_default,omitempty"`
}

// TransactionInput is the payload for recording an execution.
type TransactionInput struct {
	AssetSymbol string  `json:"asset_symbol"`
	Side        string  `json:"side"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	ExecutedAt  string  `json:"executed_at,omitempty"` // RFC3339; defaults to now
}

// TransactionService applies executions to the append-only log and keeps
// the affected holding's derived fields consistent.
type TransactionService interface {
	RecordTransaction(portfolioID string, input TransactionInput) (*models.Transaction, error)
}

// PriceInfo is one quote from the market data source.
type PriceInfo struct {
	Status        string  `json:"status"` // "OK" or "UNAVAILABLE"
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"change_percent"`
	Currency      string  `json:"currency"`
}

// PriceService fetches live quotes and pushes them into holdings.
type PriceService interface {
	GetCurrentPrices(symbols []string) (map[string]PriceInfo, error)
	RefreshPortfolioPrices(portfolioID string) error
	RefreshAllPortfolios(ctx context.Context) error
}

// AssetService reads the reference asset catalog.
type AssetService interface {
	ListAssets(assetClass string) ([]models.Asset, error)
	SearchAssets(term string) ([]models.Asset, error)
}
