package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/username/tradingpro/backend/src/aggregator"
	"github.com/username/tradingpro/backend/src/database"
	"github.com/username/tradingpro/backend/src/logger"
	"github.com/username/tradingpro/backend/src/models"
	"github.com/username/tradingpro/backend/src/utils"
)

const (
	ckPortfolioSummary = "summary_portfolio_%s"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute

	// DefaultTransactionLimit caps transaction listings when the caller
	// does not pass one.
	DefaultTransactionLimit = 50
)

type portfolioServiceImpl struct {
	viewCache *cache.Cache
}

func NewPortfolioService(viewCache *cache.Cache) PortfolioService {
	return &portfolioServiceImpl{viewCache: viewCache}
}

// invalidatePortfolioCache is shared with the transaction and price
// services, which write through the same cache.
func invalidatePortfolioCache(c *cache.Cache, portfolioID string) {
	c.Delete(fmt.Sprintf(ckPortfolioSummary, portfolioID))
}

func (s *portfolioServiceImpl) InvalidatePortfolioCache(portfolioID string) {
	invalidatePortfolioCache(s.viewCache, portfolioID)
	logger.L.Debug("Invalidated portfolio cache", "portfolioID", portfolioID)
}

// --- Raw data gateway ---

const portfolioColumns = `id, user_id, name, initial_balance, current_balance, total_invested,
	total_return, return_percentage, status, is_default, created_at, updated_at`

func scanPortfolio(row interface{ Scan(...interface{}) error }) (*models.Portfolio, error) {
	var p models.Portfolio
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.InitialBalance, &p.CurrentBalance,
		&p.TotalInvested, &p.TotalReturn, &p.ReturnPercentage, &p.Status, &p.IsDefault,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.InitialBalance = models.CoerceNumber(p.InitialBalance)
	p.CurrentBalance = models.CoerceNumber(p.CurrentBalance)
	p.TotalInvested = models.CoerceNumber(p.TotalInvested)
	p.TotalReturn = models.CoerceNumber(p.TotalReturn)
	p.ReturnPercentage = models.CoerceNumber(p.ReturnPercentage)
	return &p, nil
}

func (s *portfolioServiceImpl) FetchPortfolios(userID int64) ([]models.Portfolio, error) {
	rows, err := database.DB.Query(`SELECT `+portfolioColumns+`
		FROM portfolios
		WHERE user_id = ? AND status = ?
		ORDER BY created_at DESC`, userID, models.PortfolioStatusActive)
	if err != nil {
		return nil, fmt.Errorf("%w: querying portfolios for user %d: %v", models.ErrUpstreamUnavailable, userID, err)
	}
	defer rows.Close()

	portfolios := []models.Portfolio{}
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning portfolio row: %v", models.ErrUpstreamUnavailable, err)
		}
		portfolios = append(portfolios, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating portfolio rows: %v", models.ErrUpstreamUnavailable, err)
	}
	return portfolios, nil
}

func (s *portfolioServiceImpl) FetchPortfolioByID(portfolioID string) (*models.Portfolio, error) {
	if portfolioID == "" {
		return nil, fmt.Errorf("%w: portfolio id required", models.ErrInvalidArgument)
	}
	row := database.DB.QueryRow(`SELECT `+portfolioColumns+` FROM portfolios WHERE id = ?`, portfolioID)
	p, err := scanPortfolio(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: portfolio %s", models.ErrNotFound, portfolioID)
		}
		return nil, fmt.Errorf("%w: querying portfolio %s: %v", models.ErrUpstreamUnavailable, portfolioID, err)
	}
	return p, nil
}

const holdingQuery = `
	SELECT h.id, h.portfolio_id, h.quantity, h.average_cost, h.current_price,
	       h.market_value, h.unrealized_pnl, h.unrealized_pnl_percentage, h.updated_at,
	       a.id, a.symbol, a.name, a.asset_class, COALESCE(a.logo_url, ''), COALESCE(a.exchange, ''), a.is_active
	FROM holdings h
	JOIN assets a ON a.id = h.asset_id
	WHERE h.portfolio_id = ?`

func fetchHoldingRows(query string, args ...interface{}) ([]models.Holding, error) {
	rows, err := database.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying holdings: %v", models.ErrUpstreamUnavailable, err)
	}
	defer rows.Close()

	holdings := []models.Holding{}
	for rows.Next() {
		var h models.Holding
		err := rows.Scan(&h.ID, &h.PortfolioID, &h.Quantity, &h.AverageCost, &h.CurrentPrice,
			&h.MarketValue, &h.UnrealizedPnL, &h.UnrealizedPnLPercent, &h.UpdatedAt,
			&h.Asset.ID, &h.Asset.Symbol, &h.Asset.Name, &h.Asset.AssetClass,
			&h.Asset.LogoURL, &h.Asset.Exchange, &h.Asset.IsActive)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning holding row: %v", models.ErrUpstreamUnavailable, err)
		}
		// coerce-on-read: downstream aggregation assumes populated numerics
		h.Normalize()
		holdings = append(holdings, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating holding rows: %v", models.ErrUpstreamUnavailable, err)
	}
	return holdings, nil
}

func (s *portfolioServiceImpl) FetchHoldings(portfolioID string) ([]models.Holding, error) {
	if portfolioID == "" {
		return nil, fmt.Errorf("%w: portfolio id required", models.ErrInvalidArgument)
	}
	return fetchHoldingRows(holdingQuery+` ORDER BY h.market_value DESC`, portfolioID)
}

func (s *portfolioServiceImpl) FetchAllocationHoldings(portfolioID string) ([]models.Holding, error) {
	if portfolioID == "" {
		return nil, fmt.Errorf("%w: portfolio id required", models.ErrInvalidArgument)
	}
	return fetchHoldingRows(holdingQuery+` AND h.quantity > 0 ORDER BY h.market_value DESC`, portfolioID)
}

func (s *portfolioServiceImpl) FetchTransactions(portfolioID string, limit int) ([]models.Transaction, error) {
	if portfolioID == "" {
		return nil, fmt.Errorf("%w: portfolio id required", models.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = DefaultTransactionLimit
	}
	rows, err := database.DB.Query(`
		SELECT t.id, t.portfolio_id, t.side, t.quantity, t.price, t.realized_pnl, t.executed_at,
		       a.id, a.symbol, a.name, a.asset_class, COALESCE(a.logo_url, ''), COALESCE(a.exchange, ''), a.is_active
		FROM transactions t
		JOIN assets a ON a.id = t.asset_id
		WHERE t.portfolio_id = ?
		ORDER BY t.executed_at DESC, t.created_at DESC
		LIMIT ?`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: querying transactions for portfolio %s: %v", models.ErrUpstreamUnavailable, portfolioID, err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		err := rows.Scan(&t.ID, &t.PortfolioID, &t.Side, &t.Quantity, &t.Price, &t.RealizedPnL, &t.ExecutedAt,
			&t.Asset.ID, &t.Asset.Symbol, &t.Asset.Name, &t.Asset.AssetClass,
			&t.Asset.LogoURL, &t.Asset.Exchange, &t.Asset.IsActive)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning transaction row: %v", models.ErrUpstreamUnavailable, err)
		}
		t.Quantity = models.CoerceNumber(t.Quantity)
		t.Price = models.CoerceNumber(t.Price)
		t.RealizedPnL = models.CoerceNumber(t.RealizedPnL)
		transactions = append(transactions, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating transaction rows: %v", models.ErrUpstreamUnavailable, err)
	}
	return transactions, nil
}

func (s *portfolioServiceImpl) FetchPerformance(portfolioID string, sinceDate string) ([]models.PerformanceSnapshot, error) {
	if portfolioID == "" {
		return nil, fmt.Errorf("%w: portfolio id required", models.ErrInvalidArgument)
	}
	rows, err := database.DB.Query(`
		SELECT portfolio_id, date, total_value, benchmark_return
		FROM portfolio_performance
		WHERE portfolio_id = ? AND date >= ?
		ORDER BY date ASC`, portfolioID, sinceDate)
	if err != nil {
		return nil, fmt.Errorf("%w: querying performance for portfolio %s: %v", models.ErrUpstreamUnavailable, portfolioID, err)
	}
	defer rows.Close()

	snapshots := []models.PerformanceSnapshot{}
	for rows.Next() {
		var snap models.PerformanceSnapshot
		if err := rows.Scan(&snap.PortfolioID, &snap.Date, &snap.TotalValue, &snap.BenchmarkReturn); err != nil {
			return nil, fmt.Errorf("%w: scanning performance row: %v", models.ErrUpstreamUnavailable, err)
		}
		snap.Normalize()
		snapshots = append(snapshots, snap)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating performance rows: %v", models.ErrUpstreamUnavailable, err)
	}
	return snapshots, nil
}

// --- Portfolio CRUD ---

func (s *portfolioServiceImpl) CreatePortfolio(userID int64, name string, initialBalance float64, isDefault bool) (*models.Portfolio, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: portfolio name required", models.ErrInvalidArgument)
	}

	dbTx, err := database.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("%w: beginning transaction: %v", models.ErrUpstreamUnavailable, err)
	}
	defer dbTx.Rollback()

	if isDefault {
		if _, err := dbTx.Exec(`UPDATE portfolios SET is_default = FALSE WHERE user_id = ?`, userID); err != nil {
			return nil, fmt.Errorf("%w: clearing default flags: %v", models.ErrUpstreamUnavailable, err)
		}
	}

	id := uuid.NewString()
	_, err = dbTx.Exec(`
		INSERT INTO portfolios (id, user_id, name, initial_balance, current_balance, status, is_default)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		id, userID, name, models.CoerceNumber(initialBalance), models.PortfolioStatusActive, isDefault)
	if err != nil {
		return nil, fmt.Errorf("%w: inserting portfolio: %v", models.ErrUpstreamUnavailable, err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing portfolio insert: %v", models.ErrUpstreamUnavailable, err)
	}

	logger.L.Info("Portfolio created", "portfolioID", id, "userID", userID, "name", name)
	return s.FetchPortfolioByID(id)
}

func (s *portfolioServiceImpl) UpdatePortfolio(portfolioID string, updates PortfolioUpdates) (*models.Portfolio, error) {
	current, err := s.FetchPortfolioByID(portfolioID)
	if err != nil {
		return nil, err
	}

	name := current.Name
	if updates.Name != nil && *updates.Name != "" {
		name = *updates.Name
	}
	isDefault := current.IsDefault
	if updates.IsDefault != nil {
		isDefault = *updates.IsDefault
	}

	dbTx, err := database.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("%w: beginning transaction: %v", models.ErrUpstreamUnavailable, err)
	}
	defer dbTx.Rollback()

	if isDefault && !current.IsDefault {
		if _, err := dbTx.Exec(`UPDATE portfolios SET is_default = FALSE WHERE user_id = ?`, current.UserID); err != nil {
			return nil, fmt.Errorf("%w: clearing default flags: %v", models.ErrUpstreamUnavailable, err)
		}
	}

	_, err = dbTx.Exec(`UPDATE portfolios SET name = ?, is_default = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, isDefault, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("%w: updating portfolio %s: %v", models.ErrUpstreamUnavailable, portfolioID, err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing portfolio update: %v", models.ErrUpstreamUnavailable, err)
	}

	s.InvalidatePortfolioCache(portfolioID)
	return s.FetchPortfolioByID(portfolioID)
}

func (s *portfolioServiceImpl) ArchivePortfolio(portfolioID string) error {
	if _, err := s.FetchPortfolioByID(portfolioID); err != nil {
		return err
	}
	_, err := database.DB.Exec(`UPDATE portfolios SET status = ?, is_default = FALSE, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		models.PortfolioStatusArchived, portfolioID)
	if err != nil {
		return fmt.Errorf("%w: archiving portfolio %s: %v", models.ErrUpstreamUnavailable, portfolioID, err)
	}
	s.InvalidatePortfolioCache(portfolioID)
	logger.L.Info("Portfolio archived", "portfolioID", portfolioID)
	return nil
}

// --- View assembly ---

func (s *portfolioServiceImpl) GetSummary(portfolioID string) (models.PortfolioSummary, error) {
	cacheKey := fmt.Sprintf(ckPortfolioSummary, portfolioID)
	if cached, found := s.viewCache.Get(cacheKey); found {
		logger.L.Debug("Cache hit for portfolio summary", "portfolioID", portfolioID)
		return cached.(models.PortfolioSummary), nil
	}

	portfolio, err := s.FetchPortfolioByID(portfolioID)
	if err != nil {
		return models.PortfolioSummary{}, err
	}
	holdings, err := s.FetchHoldings(portfolioID)
	if err != nil {
		return models.PortfolioSummary{}, err
	}

	summary, err := aggregator.ComputeSummary(portfolio, holdings)
	if err != nil {
		return models.PortfolioSummary{}, err
	}
	s.viewCache.Set(cacheKey, summary, DefaultCacheExpiration)
	return summary, nil
}

func (s *portfolioServiceImpl) GetHoldingsView(portfolioID string, opts aggregator.HoldingViewOptions) ([]models.HoldingView, error) {
	holdings, err := s.FetchHoldings(portfolioID)
	if err != nil {
		return nil, err
	}
	return aggregator.EnrichAndViewHoldings(holdings, opts)
}

func (s *portfolioServiceImpl) GetAllocation(portfolioID string) ([]models.AllocationEntry, error) {
	portfolio, err := s.FetchPortfolioByID(portfolioID)
	if err != nil {
		return nil, err
	}
	holdings, err := s.FetchAllocationHoldings(portfolioID)
	if err != nil {
		return nil, err
	}
	return aggregator.ComputeAllocation(holdings, portfolio.TotalInvested), nil
}

func (s *portfolioServiceImpl) GetPerformanceSeries(portfolioID string, days int) ([]models.PerformancePoint, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days).Format(utils.DayFormat)
	snapshots, err := s.FetchPerformance(portfolioID, since)
	if err != nil {
		return nil, err
	}
	return aggregator.BuildPerformanceSeries(snapshots), nil
}

func (s *portfolioServiceImpl) GetView(portfolioID string, days int) (*models.PortfolioView, error) {
	summary, err := s.GetSummary(portfolioID)
	if err != nil {
		return nil, err
	}
	holdings, err := s.GetHoldingsView(portfolioID, aggregator.HoldingViewOptions{})
	if err != nil {
		return nil, err
	}
	allocation, err := s.GetAllocation(portfolioID)
	if err != nil {
		return nil, err
	}
	performance, err := s.GetPerformanceSeries(portfolioID, days)
	if err != nil {
		return nil, err
	}
	return &models.PortfolioView{
		Summary:     summary,
		Holdings:    holdings,
		Allocation:  allocation,
		Performance: performance,
	}, nil
}
