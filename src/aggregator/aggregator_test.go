package aggregator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/tradingpro/backend/src/models"
)

func holding(symbol, name, class string, qty, price, avgCost float64) models.Holding {
	h := models.Holding{
		Asset:        models.Asset{Symbol: symbol, Name: name, AssetClass: class},
		Quantity:     qty,
		AverageCost:  avgCost,
		CurrentPrice: price,
	}
	h.RecomputeDerived()
	return h
}

func TestComputeSummary(t *testing.T) {
	portfolio := &models.Portfolio{ID: "p1", Name: "Main"}

	t.Run("concrete scenario", func(t *testing.T) {
		holdings := []models.Holding{
			holding("BTC", "Bitcoin", models.AssetClassCrypto, 1, 40000, 30000),
			holding("ETH", "Ethereum", models.AssetClassCrypto, 2, 2000, 2500),
		}
		summary, err := ComputeSummary(portfolio, holdings)
		require.NoError(t, err)
		assert.Equal(t, 2, summary.TotalAssets)
		assert.InDelta(t, 44000, summary.TotalValue, 1e-9)
		assert.InDelta(t, 9000, summary.TotalReturn, 1e-9)
		assert.Equal(t, []string{"crypto"}, summary.AssetClasses)
	})

	t.Run("empty holdings", func(t *testing.T) {
		summary, err := ComputeSummary(portfolio, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.TotalAssets)
		assert.Zero(t, summary.TotalValue)
		assert.Zero(t, summary.TotalReturn)
		assert.Empty(t, summary.AssetClasses)
	})

	t.Run("nil portfolio is NotFound", func(t *testing.T) {
		_, err := ComputeSummary(nil, nil)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("NaN market value contributes zero", func(t *testing.T) {
		bad := holding("XXX", "Broken", models.AssetClassOther, 1, 10, 5)
		bad.MarketValue = math.NaN()
		bad.UnrealizedPnL = math.Inf(1)
		good := holding("AAPL", "Apple", models.AssetClassStocks, 2, 100, 90)
		summary, err := ComputeSummary(portfolio, []models.Holding{bad, good})
		require.NoError(t, err)
		assert.InDelta(t, 200, summary.TotalValue, 1e-9)
		assert.InDelta(t, 20, summary.TotalReturn, 1e-9)
		assert.False(t, math.IsNaN(summary.TotalValue))
	})

	t.Run("distinct classes keep first-appearance order", func(t *testing.T) {
		holdings := []models.Holding{
			holding("AAPL", "Apple", models.AssetClassStocks, 1, 1, 1),
			holding("BTC", "Bitcoin", models.AssetClassCrypto, 1, 1, 1),
			holding("TSLA", "Tesla", models.AssetClassStocks, 1, 1, 1),
		}
		summary, err := ComputeSummary(portfolio, holdings)
		require.NoError(t, err)
		assert.Equal(t, []string{"stocks", "crypto"}, summary.AssetClasses)
	})
}

func TestEnrichAndViewHoldings(t *testing.T) {
	holdings := []models.Holding{
		holding("BTC", "Bitcoin", models.AssetClassCrypto, 1, 40000, 30000),
		holding("ETH", "Ethereum", models.AssetClassCrypto, 2, 2000, 2500),
		holding("AAPL", "Apple Inc", models.AssetClassStocks, 10, 150, 120),
		holding("SPY", "SPDR S&P 500", models.AssetClassETF, 5, 500, 450),
	}

	t.Run("no filter preserves total market value", func(t *testing.T) {
		views, err := EnrichAndViewHoldings(holdings, HoldingViewOptions{})
		require.NoError(t, err)
		require.Len(t, views, len(holdings))

		var want, got float64
		for _, h := range holdings {
			want += h.MarketValue
		}
		for _, v := range views {
			got += v.MarketValue
		}
		assert.InDelta(t, want, got, 1e-9)
	})

	t.Run("filtered total never exceeds unfiltered total", func(t *testing.T) {
		views, err := EnrichAndViewHoldings(holdings, HoldingViewOptions{AssetClass: models.AssetClassCrypto})
		require.NoError(t, err)

		var unfiltered, filtered float64
		for _, h := range holdings {
			unfiltered += h.MarketValue
		}
		for _, v := range views {
			filtered += v.MarketValue
		}
		assert.LessOrEqual(t, filtered, unfiltered)
		assert.Len(t, views, 2)
	})

	t.Run("percentage denominator stays unfiltered", func(t *testing.T) {
		all, err := EnrichAndViewHoldings(holdings, HoldingViewOptions{})
		require.NoError(t, err)
		crypto, err := EnrichAndViewHoldings(holdings, HoldingViewOptions{AssetClass: models.AssetClassCrypto})
		require.NoError(t, err)

		pct := func(views []models.HoldingView, symbol string) float64 {
			for _, v := range views {
				if v.Symbol == symbol {
					return v.PortfolioPercent
				}
			}
			t.Fatalf("symbol %s not in view", symbol)
			return 0
		}
		assert.InDelta(t, pct(all, "BTC"), pct(crypto, "BTC"), 1e-9)

		var sum float64
		for _, v := range all {
			sum += v.PortfolioPercent
		}
		assert.InDelta(t, 100, sum, 1e-9)
	})

	t.Run("search matches symbol or name case-insensitively", func(t *testing.T) {
		bySymbol, err := EnrichAndViewHoldings(holdings, HoldingViewOptions{Search: "btc"})
		require.NoError(t, err)
		require.Len(t, bySymbol, 1)
		assert.Equal(t, "BTC", bySymbol[0].Symbol)

		byName, err := EnrichAndViewHoldings(holdings, HoldingViewOptions{Search: "apple"})
		require.NoError(t, err)
		require.Len(t, byName, 1)
		assert.Equal(t, "AAPL", byName[0].Symbol)
	})

	t.Run("search and filter compose with AND", func(t *testing.T) {
		views, err := EnrichAndViewHoldings(holdings, HoldingViewOptions{
			AssetClass: models.AssetClassStocks,
			Search:     "bitcoin",
		})
		require.NoError(t, err)
		assert.Empty(t, views)
	})

	t.Run("default sort is market value descending", func(t *testing.T) {
		views, err := EnrichAndViewHoldings(holdings, HoldingViewOptions{})
		require.NoError(t, err)
		for i := 1; i < len(views); i++ {
			assert.GreaterOrEqual(t, views[i-1].MarketValue, views[i].MarketValue)
		}
	})

	t.Run("equal keys preserve input order for every key and direction", func(t *testing.T) {
		tied := []models.Holding{
			holding("AAA", "First", models.AssetClassStocks, 3, 100, 100),
			holding("BBB", "Second", models.AssetClassStocks, 3, 100, 100),
			holding("CCC", "Third", models.AssetClassStocks, 3, 100, 100),
		}
		for _, key := range []SortKey{SortKeyPrice, SortKeyQuantity, SortKeyMarketValue, SortKeyChange24h} {
			for _, dir := range []SortDirection{SortAscending, SortDescending} {
				views, err := EnrichAndViewHoldings(tied, HoldingViewOptions{SortKey: key, SortDirection: dir})
				require.NoError(t, err)
				require.Len(t, views, 3)
				assert.Equal(t, "AAA", views[0].Symbol, "key=%s dir=%s", key, dir)
				assert.Equal(t, "BBB", views[1].Symbol, "key=%s dir=%s", key, dir)
				assert.Equal(t, "CCC", views[2].Symbol, "key=%s dir=%s", key, dir)
			}
		}
	})

	t.Run("empty holdings yield zero percentages not NaN", func(t *testing.T) {
		views, err := EnrichAndViewHoldings(nil, HoldingViewOptions{})
		require.NoError(t, err)
		assert.Empty(t, views)

		zeroValue := []models.Holding{holding("ZRO", "Zero", models.AssetClassOther, 0, 0, 0)}
		views, err = EnrichAndViewHoldings(zeroValue, HoldingViewOptions{})
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Zero(t, views[0].PortfolioPercent)
		assert.False(t, math.IsNaN(views[0].PortfolioPercent))
	})

	t.Run("invalid sort key is InvalidArgument", func(t *testing.T) {
		_, err := EnrichAndViewHoldings(holdings, HoldingViewOptions{SortKey: "volume"})
		assert.ErrorIs(t, err, models.ErrInvalidArgument)

		_, err = EnrichAndViewHoldings(holdings, HoldingViewOptions{SortDirection: "sideways"})
		assert.ErrorIs(t, err, models.ErrInvalidArgument)
	})
}

func TestComputeAllocation(t *testing.T) {
	t.Run("empty input yields empty output", func(t *testing.T) {
		assert.Empty(t, ComputeAllocation(nil, 1000))
		assert.Empty(t, ComputeAllocation([]models.Holding{}, 0))
	})

	t.Run("zero-quantity positions are excluded", func(t *testing.T) {
		holdings := []models.Holding{
			holding("BTC", "Bitcoin", models.AssetClassCrypto, 1, 40000, 30000),
			holding("ETH", "Ethereum", models.AssetClassCrypto, 0, 2000, 2500),
			holding("AAPL", "Apple Inc", models.AssetClassStocks, 10, 150, 120),
		}
		entries := ComputeAllocation(holdings, 50000)
		require.Len(t, entries, 2)
		for _, e := range entries {
			assert.NotEqual(t, "Ethereum", e.Name)
		}
	})

	t.Run("zero total invested falls back to divisor 1", func(t *testing.T) {
		holdings := []models.Holding{
			holding("BTC", "Bitcoin", models.AssetClassCrypto, 1, 40000, 30000),
		}
		entries := ComputeAllocation(holdings, 0)
		require.Len(t, entries, 1)
		assert.InDelta(t, (40000.0/1-1)*100, entries[0].Change, 1e-9)
		assert.False(t, math.IsNaN(entries[0].Change))
		assert.False(t, math.IsInf(entries[0].Change, 0))
	})

	t.Run("change is relative to total invested", func(t *testing.T) {
		holdings := []models.Holding{
			holding("SPY", "SPDR S&P 500", models.AssetClassETF, 5, 500, 450),
		}
		entries := ComputeAllocation(holdings, 2000)
		require.Len(t, entries, 1)
		assert.InDelta(t, 2500, entries[0].Value, 1e-9)
		assert.InDelta(t, (2500.0/2000-1)*100, entries[0].Change, 1e-9)
	})

	t.Run("falls back to symbol then Unknown for missing names", func(t *testing.T) {
		holdings := []models.Holding{
			holding("BTC", "", models.AssetClassCrypto, 1, 10, 10),
			holding("", "", models.AssetClassOther, 1, 10, 10),
		}
		entries := ComputeAllocation(holdings, 100)
		require.Len(t, entries, 2)
		assert.Equal(t, "BTC", entries[0].Name)
		assert.Equal(t, "Unknown", entries[1].Name)
	})
}

func TestBuildPerformanceSeries(t *testing.T) {
	t.Run("length preserving including empty", func(t *testing.T) {
		assert.Empty(t, BuildPerformanceSeries(nil))

		snapshots := []models.PerformanceSnapshot{
			{PortfolioID: "p1", Date: "2025-08-01", TotalValue: 1000, BenchmarkReturn: 2},
			{PortfolioID: "p1", Date: "2025-08-02", TotalValue: 1100, BenchmarkReturn: -1},
			{PortfolioID: "p1", Date: "2025-08-05", TotalValue: 900},
		}
		points := BuildPerformanceSeries(snapshots)
		require.Len(t, points, len(snapshots))
	})

	t.Run("benchmark derives from value and return", func(t *testing.T) {
		points := BuildPerformanceSeries([]models.PerformanceSnapshot{
			{Date: "2025-08-01", TotalValue: 1000, BenchmarkReturn: 2},
			{Date: "2025-08-02", TotalValue: 1100, BenchmarkReturn: -1},
		})
		require.Len(t, points, 2)
		assert.Equal(t, "2025-08-01", points[0].Timestamp)
		assert.InDelta(t, 1020, points[0].BenchmarkValue, 1e-9)
		assert.InDelta(t, 1089, points[1].BenchmarkValue, 1e-9)
	})

	t.Run("missing numerics default to zero, gaps pass through", func(t *testing.T) {
		points := BuildPerformanceSeries([]models.PerformanceSnapshot{
			{Date: "2025-08-01", TotalValue: math.NaN(), BenchmarkReturn: math.Inf(1)},
		})
		require.Len(t, points, 1)
		assert.Zero(t, points[0].PortfolioValue)
		assert.Zero(t, points[0].BenchmarkValue)
	})
}
