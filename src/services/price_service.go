package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"regexp"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/tradingpro/backend/src/config"
	"github.com/username/tradingpro/backend/src/database"
	"github.com/username/tradingpro/backend/src/logger"
	"github.com/username/tradingpro/backend/src/models"
	"github.com/username/tradingpro/backend/src/utils"
	"golang.org/x/net/publicsuffix"
)

const (
	ckQuote        = "quote_%s"
	yahooUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"
)

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                     string  `json:"symbol"`
			RegularMarketPrice         float64 `json:"regularMarketPrice"`
			RegularMarketChangePercent float64 `json:"regularMarketChangePercent"`
			Currency                   string  `json:"currency"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"quoteResponse"`
}

// priceServiceImpl scrapes quotes from Yahoo Finance. The v7 quote
// endpoint requires session cookies plus a crumb, so the client carries a
// cookie jar and the crumb is fetched once up front and re-fetched if it
// goes missing.
type priceServiceImpl struct {
	httpClient http.Client
	crumb      string
	quoteCache *cache.Cache
	viewCache  *cache.Cache
}

// NewPriceService builds the quote client with a cookie jar and attempts
// to establish the Yahoo session. A failed initialization is logged, not
// fatal; quote fetches retry the session later.
func NewPriceService(viewCache *cache.Cache) PriceService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	s := &priceServiceImpl{
		httpClient: http.Client{Jar: jar, Timeout: 20 * time.Second},
		quoteCache: cache.New(config.Cfg.QuoteCacheExpiry, CacheCleanupInterval),
		viewCache:  viewCache,
	}

	if err := s.initializeYahooSession(); err != nil {
		logger.L.Error("Failed to initialize Yahoo Finance session. Price fetching may fail.", "error", err)
	}
	return s
}

// initializeYahooSession visits a quote page to collect cookies and pull
// the crumb out of the embedded page state.
func (s *priceServiceImpl) initializeYahooSession() error {
	logger.L.Info("Initializing Yahoo Finance session to get crumb and cookies...")
	req, err := http.NewRequest("GET", "https://finance.yahoo.com/quote/SPY", nil)
	if err != nil {
		return err
	}
	// Yahoo rejects the default Go user agent.
	req.Header.Set("User-Agent", yahooUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make initial request to Yahoo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read Yahoo response body: %w", err)
	}

	re := regexp.MustCompile(`"CrumbStore":{"crumb":"(.*?)"}`)
	matches := re.FindStringSubmatch(string(body))
	if len(matches) < 2 {
		return fmt.Errorf("could not find crumb in Yahoo Finance response. The page structure may have changed")
	}

	s.crumb = matches[1]
	logger.L.Info("Successfully obtained Yahoo Finance crumb.")
	return nil
}

// GetCurrentPrices returns a quote per requested symbol. Every symbol is
// present in the result; symbols Yahoo did not return come back with
// status UNAVAILABLE so callers can keep the last stored price. Fresh
// quotes are cached for the configured expiry to keep the 30 second
// dashboard refresh from hammering Yahoo.
func (s *priceServiceImpl) GetCurrentPrices(symbols []string) (map[string]PriceInfo, error) {
	result := make(map[string]PriceInfo)
	var misses []string
	seen := make(map[string]bool)
	for _, symbol := range symbols {
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		result[symbol] = PriceInfo{Status: "UNAVAILABLE"}
		if cached, found := s.quoteCache.Get(fmt.Sprintf(ckQuote, symbol)); found {
			result[symbol] = cached.(PriceInfo)
			continue
		}
		misses = append(misses, symbol)
	}
	if len(misses) == 0 {
		return result, nil
	}

	if s.crumb == "" {
		logger.L.Warn("Yahoo crumb is missing, attempting to re-initialize session.")
		if err := s.initializeYahooSession(); err != nil {
			return result, fmt.Errorf("%w: re-initializing Yahoo session: %v", models.ErrUpstreamUnavailable, err)
		}
	}

	quotes, err := s.fetchQuotes(misses)
	if err != nil {
		return result, fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}
	for symbol, info := range quotes {
		result[symbol] = info
		s.quoteCache.Set(fmt.Sprintf(ckQuote, symbol), info, config.Cfg.QuoteCacheExpiry)
	}
	return result, nil
}

// fetchQuotes hits the v7 quote endpoint with a comma-joined symbol list.
func (s *priceServiceImpl) fetchQuotes(symbols []string) (map[string]PriceInfo, error) {
	quoteURL := fmt.Sprintf("https://query2.finance.yahoo.com/v7/finance/quote?symbols=%s&crumb=%s",
		strings.Join(symbols, ","), s.crumb)
	req, err := http.NewRequest("GET", quoteURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", yahooUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Yahoo quote API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("yahoo quote API returned status %d. Body: %s", resp.StatusCode, string(bodyBytes))
	}

	var quoteData yahooQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quoteData); err != nil {
		return nil, fmt.Errorf("failed to decode Yahoo quote response: %w", err)
	}
	if quoteData.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("yahoo quote API returned an error for symbols %s", strings.Join(symbols, ","))
	}

	quotes := make(map[string]PriceInfo, len(quoteData.QuoteResponse.Result))
	for _, r := range quoteData.QuoteResponse.Result {
		quotes[r.Symbol] = PriceInfo{
			Status:        "OK",
			Price:         models.CoerceNumber(r.RegularMarketPrice),
			ChangePercent: models.CoerceNumber(r.RegularMarketChangePercent),
			Currency:      r.Currency,
		}
	}
	return quotes, nil
}

// RefreshPortfolioPrices pushes fresh quotes into every holding of the
// portfolio, recomputes the derived columns, rolls the sum back up into
// the portfolio balance and upserts today's performance snapshot. Symbols
// without a usable quote keep their stored price.
func (s *priceServiceImpl) RefreshPortfolioPrices(portfolioID string) error {
	rows, err := database.DB.Query(`SELECT h.id, h.quantity, h.average_cost, h.current_price, a.symbol
		FROM holdings h JOIN assets a ON a.id = h.asset_id
		WHERE h.portfolio_id = ?`, portfolioID)
	if err != nil {
		return fmt.Errorf("%w: querying holdings for %s: %v", models.ErrUpstreamUnavailable, portfolioID, err)
	}

	type holdingRow struct {
		holding models.Holding
		symbol  string
	}
	var holdings []holdingRow
	for rows.Next() {
		var hr holdingRow
		if err := rows.Scan(&hr.holding.ID, &hr.holding.Quantity, &hr.holding.AverageCost, &hr.holding.CurrentPrice, &hr.symbol); err != nil {
			rows.Close()
			return fmt.Errorf("%w: scanning holding: %v", models.ErrUpstreamUnavailable, err)
		}
		holdings = append(holdings, hr)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("%w: iterating holdings: %v", models.ErrUpstreamUnavailable, err)
	}
	rows.Close()

	symbols := make([]string, 0, len(holdings)+1)
	for _, hr := range holdings {
		symbols = append(symbols, hr.symbol)
	}
	if config.Cfg.BenchmarkSymbol != "" {
		symbols = append(symbols, config.Cfg.BenchmarkSymbol)
	}

	prices, err := s.GetCurrentPrices(symbols)
	if err != nil {
		return err
	}

	dbTx, err := database.DB.Begin()
	if err != nil {
		return fmt.Errorf("%w: beginning refresh transaction: %v", models.ErrUpstreamUnavailable, err)
	}
	defer dbTx.Rollback()

	var totalValue float64
	for _, hr := range holdings {
		h := hr.holding
		if info, ok := prices[hr.symbol]; ok && info.Status == "OK" {
			h.CurrentPrice = info.Price
		}
		h.RecomputeDerived()
		totalValue += h.MarketValue
		_, err = dbTx.Exec(`UPDATE holdings SET current_price = ?, market_value = ?, unrealized_pnl = ?,
			unrealized_pnl_percentage = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			h.CurrentPrice, h.MarketValue, h.UnrealizedPnL, h.UnrealizedPnLPercent, h.ID)
		if err != nil {
			return fmt.Errorf("%w: updating holding %s: %v", models.ErrUpstreamUnavailable, h.ID, err)
		}
	}

	_, err = dbTx.Exec(`UPDATE portfolios SET current_balance = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		totalValue, portfolioID)
	if err != nil {
		return fmt.Errorf("%w: updating portfolio balance: %v", models.ErrUpstreamUnavailable, err)
	}

	benchmarkReturn := 0.0
	if info, ok := prices[config.Cfg.BenchmarkSymbol]; ok && info.Status == "OK" {
		benchmarkReturn = info.ChangePercent
	}
	today := time.Now().UTC().Format(utils.DayFormat)
	_, err = dbTx.Exec(`INSERT INTO portfolio_performance (portfolio_id, date, total_value, benchmark_return)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(portfolio_id, date) DO UPDATE SET total_value = excluded.total_value,
		benchmark_return = excluded.benchmark_return`,
		portfolioID, today, totalValue, benchmarkReturn)
	if err != nil {
		return fmt.Errorf("%w: upserting performance snapshot: %v", models.ErrUpstreamUnavailable, err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("%w: committing refresh: %v", models.ErrUpstreamUnavailable, err)
	}

	invalidatePortfolioCache(s.viewCache, portfolioID)
	logger.L.Info("Refreshed portfolio prices",
		"portfolioID", portfolioID, "holdings", len(holdings), "totalValue", totalValue)
	return nil
}

// RefreshAllPortfolios refreshes every active portfolio, stopping early
// if the context is cancelled. Used by the background refresh loop.
func (s *priceServiceImpl) RefreshAllPortfolios(ctx context.Context) error {
	rows, err := database.DB.Query(`SELECT id FROM portfolios WHERE status = ?`, models.PortfolioStatusActive)
	if err != nil {
		return fmt.Errorf("%w: listing active portfolios: %v", models.ErrUpstreamUnavailable, err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("%w: scanning portfolio id: %v", models.ErrUpstreamUnavailable, err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterating portfolios: %v", models.ErrUpstreamUnavailable, err)
	}

	for _, id := range ids {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.RefreshPortfolioPrices(id); err != nil {
			logger.L.Error("Price refresh failed for portfolio", "portfolioID", id, "error", err)
		}
	}
	return nil
}
