// Package aggregator turns raw persisted portfolio records into the
// derived view-models the dashboard renders. Every function here is pure:
// no I/O, no shared state, inputs are never mutated, so concurrent calls
// need no coordination. Malformed individual records degrade to
// zero/default values; only structurally absent top-level arguments fail.
package aggregator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/username/tradingpro/backend/src/models"
)

// SortKey selects the holdings-table column to order by.
type SortKey string

const (
	SortKeyPrice       SortKey = "price"
	SortKeyQuantity    SortKey = "quantity"
	SortKeyMarketValue SortKey = "marketValue"
	SortKeyChange24h   SortKey = "change24h"
)

type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// AssetClassAll disables asset-class filtering.
const AssetClassAll = "all"

// HoldingViewOptions controls filtering and ordering of the holdings view.
// Zero values mean: sort by market value descending, no filter, no search.
type HoldingViewOptions struct {
	SortKey       SortKey
	SortDirection SortDirection
	AssetClass    string
	Search        string
}

// ComputeSummary reduces a portfolio's holdings to the KPI totals. A
// missing portfolio record is the only failure mode; holdings with missing
// or non-numeric fields contribute zero instead of invalidating the sums.
func ComputeSummary(portfolio *models.Portfolio, holdings []models.Holding) (models.PortfolioSummary, error) {
	if portfolio == nil {
		return models.PortfolioSummary{}, fmt.Errorf("%w: portfolio", models.ErrNotFound)
	}

	summary := models.PortfolioSummary{
		Portfolio:    *portfolio,
		TotalAssets:  len(holdings),
		AssetClasses: []string{},
	}

	seenClasses := make(map[string]bool)
	for _, h := range holdings {
		summary.TotalValue += models.CoerceNumber(h.MarketValue)
		summary.TotalReturn += models.CoerceNumber(h.UnrealizedPnL)
		if !seenClasses[h.Asset.AssetClass] {
			seenClasses[h.Asset.AssetClass] = true
			summary.AssetClasses = append(summary.AssetClasses, h.Asset.AssetClass)
		}
	}
	return summary, nil
}

// EnrichAndViewHoldings produces the filtered, sorted holdings table.
// Percentages are computed against the full unfiltered total, so a
// holding's share reads the same whichever filter is active. The sort is
// stable: rows comparing equal on the key keep their input order.
func EnrichAndViewHoldings(holdings []models.Holding, opts HoldingViewOptions) ([]models.HoldingView, error) {
	key := opts.SortKey
	if key == "" {
		key = SortKeyMarketValue
	}
	dir := opts.SortDirection
	if dir == "" {
		dir = SortDescending
	}
	extract, err := sortKeyExtractor(key)
	if err != nil {
		return nil, err
	}
	if dir != SortAscending && dir != SortDescending {
		return nil, fmt.Errorf("%w: sort direction %q", models.ErrInvalidArgument, opts.SortDirection)
	}

	// Denominator over the unfiltered set; zero total means every
	// percentage is defined as 0 rather than a division fault.
	var total float64
	for _, h := range holdings {
		total += models.CoerceNumber(h.MarketValue)
	}

	search := strings.ToLower(strings.TrimSpace(opts.Search))
	views := make([]models.HoldingView, 0, len(holdings))
	for _, h := range holdings {
		if opts.AssetClass != "" && opts.AssetClass != AssetClassAll && h.Asset.AssetClass != opts.AssetClass {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(h.Asset.Symbol), search) &&
			!strings.Contains(strings.ToLower(h.Asset.Name), search) {
			continue
		}

		v := models.HoldingView{
			Symbol:         h.Asset.Symbol,
			Name:           h.Asset.Name,
			AssetClass:     h.Asset.AssetClass,
			Logo:           h.Asset.LogoURL,
			CurrentPrice:   models.CoerceNumber(h.CurrentPrice),
			Quantity:       models.CoerceNumber(h.Quantity),
			MarketValue:    models.CoerceNumber(h.MarketValue),
			Change24h:      models.CoerceNumber(h.UnrealizedPnLPercent),
			Change24hValue: models.CoerceNumber(h.UnrealizedPnL),
		}
		if total > 0 {
			v.PortfolioPercent = v.MarketValue / total * 100
		}
		views = append(views, v)
	}

	sort.SliceStable(views, func(i, j int) bool {
		if dir == SortAscending {
			return extract(views[i]) < extract(views[j])
		}
		return extract(views[i]) > extract(views[j])
	})
	return views, nil
}

func sortKeyExtractor(key SortKey) (func(models.HoldingView) float64, error) {
	switch key {
	case SortKeyPrice:
		return func(v models.HoldingView) float64 { return v.CurrentPrice }, nil
	case SortKeyQuantity:
		return func(v models.HoldingView) float64 { return v.Quantity }, nil
	case SortKeyMarketValue:
		return func(v models.HoldingView) float64 { return v.MarketValue }, nil
	case SortKeyChange24h:
		return func(v models.HoldingView) float64 { return v.Change24h }, nil
	default:
		return nil, fmt.Errorf("%w: sort key %q", models.ErrInvalidArgument, key)
	}
}

// ComputeAllocation emits one entry per open position. Closed positions
// (quantity 0) are excluded entirely. Change is the position's value
// relative to the portfolio's total invested figure; when that figure is
// zero or absent the divisor falls back to 1, giving a 0% baseline instead
// of a division fault.
func ComputeAllocation(holdings []models.Holding, totalInvested float64) []models.AllocationEntry {
	divisor := models.CoerceNumber(totalInvested)
	if divisor <= 0 {
		divisor = 1
	}

	entries := []models.AllocationEntry{}
	for _, h := range holdings {
		if models.CoerceNumber(h.Quantity) == 0 {
			continue
		}
		name := h.Asset.Name
		if name == "" {
			name = h.Asset.Symbol
		}
		if name == "" {
			name = "Unknown"
		}
		value := models.CoerceNumber(h.MarketValue)
		entries = append(entries, models.AllocationEntry{
			Name:   name,
			Value:  value,
			Change: (value/divisor - 1) * 100,
		})
	}
	return entries
}

// BuildPerformanceSeries maps snapshots to chart points one-to-one, in
// input order. No resampling or gap-filling happens here; a sparse input
// series stays sparse.
func BuildPerformanceSeries(snapshots []models.PerformanceSnapshot) []models.PerformancePoint {
	points := make([]models.PerformancePoint, 0, len(snapshots))
	for _, s := range snapshots {
		value := models.CoerceNumber(s.TotalValue)
		benchmarkReturn := models.CoerceNumber(s.BenchmarkReturn)
		points = append(points, models.PerformancePoint{
			Timestamp:      s.Date,
			PortfolioValue: value,
			BenchmarkValue: value * (1 + benchmarkReturn/100),
		})
	}
	return points
}
