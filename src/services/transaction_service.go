package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/tradingpro/backend/src/database"
	"github.com/username/tradingpro/backend/src/logger"
	"github.com/username/tradingpro/backend/src/models"
)

type transactionServiceImpl struct {
	viewCache *cache.Cache
}

func NewTransactionService(viewCache *cache.Cache) TransactionService {
	return &transactionServiceImpl{viewCache: viewCache}
}

// RecordTransaction appends one execution and updates the affected holding
// and the portfolio totals atomically. Position math runs on decimals so
// repeated partial fills cannot accumulate binary-float drift in the
// average cost; results are stored as floats at the model boundary.
//
// Side semantics:
//   - buy: creates the holding on first purchase, moves the average cost,
//     adds the cost to the portfolio's total invested.
//   - sell: realizes (price - average cost) x quantity, releases the cost
//     from total invested; the average cost of the remainder is unchanged.
//     Selling more than the open position is rejected.
//   - dividend: cash event of quantity x price; the position is untouched.
//
// A holding whose quantity reaches zero is kept as a zeroed row: the
// transaction log still references it and the allocation view excludes it.
func (s *transactionServiceImpl) RecordTransaction(portfolioID string, input TransactionInput) (*models.Transaction, error) {
	if portfolioID == "" {
		return nil, fmt.Errorf("%w: portfolio id required", models.ErrInvalidArgument)
	}
	if input.AssetSymbol == "" {
		return nil, fmt.Errorf("%w: asset symbol required", models.ErrInvalidArgument)
	}
	switch input.Side {
	case models.TransactionSideBuy, models.TransactionSideSell, models.TransactionSideDividend:
	default:
		return nil, fmt.Errorf("%w: transaction side %q", models.ErrInvalidArgument, input.Side)
	}
	if input.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", models.ErrInvalidArgument)
	}
	if input.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", models.ErrInvalidArgument)
	}

	executedAt := input.ExecutedAt
	if executedAt == "" {
		executedAt = time.Now().UTC().Format(time.RFC3339)
	} else if _, err := time.Parse(time.RFC3339, executedAt); err != nil {
		return nil, fmt.Errorf("%w: executed_at %q is not RFC3339", models.ErrInvalidArgument, input.ExecutedAt)
	}

	dbTx, err := database.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("%w: beginning transaction: %v", models.ErrUpstreamUnavailable, err)
	}
	defer dbTx.Rollback()

	var portfolio models.Portfolio
	err = dbTx.QueryRow(`SELECT id, total_invested, total_return FROM portfolios WHERE id = ?`, portfolioID).
		Scan(&portfolio.ID, &portfolio.TotalInvested, &portfolio.TotalReturn)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: portfolio %s", models.ErrNotFound, portfolioID)
		}
		return nil, fmt.Errorf("%w: loading portfolio %s: %v", models.ErrUpstreamUnavailable, portfolioID, err)
	}

	var asset models.Asset
	err = dbTx.QueryRow(`SELECT id, symbol, name, asset_class, COALESCE(logo_url, ''), COALESCE(exchange, ''), is_active
		FROM assets WHERE symbol = ? AND is_active = TRUE`, input.AssetSymbol).
		Scan(&asset.ID, &asset.Symbol, &asset.Name, &asset.AssetClass, &asset.LogoURL, &asset.Exchange, &asset.IsActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: asset %s", models.ErrNotFound, input.AssetSymbol)
		}
		return nil, fmt.Errorf("%w: loading asset %s: %v", models.ErrUpstreamUnavailable, input.AssetSymbol, err)
	}

	var holding models.Holding
	holdingExists := true
	err = dbTx.QueryRow(`SELECT id, quantity, average_cost, current_price FROM holdings
		WHERE portfolio_id = ? AND asset_id = ?`, portfolioID, asset.ID).
		Scan(&holding.ID, &holding.Quantity, &holding.AverageCost, &holding.CurrentPrice)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("%w: loading holding: %v", models.ErrUpstreamUnavailable, err)
		}
		holdingExists = false
	}

	qty := decimal.NewFromFloat(input.Quantity)
	price := decimal.NewFromFloat(input.Price)
	heldQty := decimal.NewFromFloat(models.CoerceNumber(holding.Quantity))
	avgCost := decimal.NewFromFloat(models.CoerceNumber(holding.AverageCost))
	totalInvested := decimal.NewFromFloat(models.CoerceNumber(portfolio.TotalInvested))
	totalReturn := decimal.NewFromFloat(models.CoerceNumber(portfolio.TotalReturn))

	realized := decimal.Zero

	switch input.Side {
	case models.TransactionSideBuy:
		cost := qty.Mul(price)
		newQty := heldQty.Add(qty)
		// weighted average of the old position and the new lot
		avgCost = heldQty.Mul(avgCost).Add(cost).Div(newQty)
		heldQty = newQty
		totalInvested = totalInvested.Add(cost)
		holding.CurrentPrice = input.Price

	case models.TransactionSideSell:
		if !holdingExists || heldQty.LessThan(qty) {
			return nil, fmt.Errorf("%w: sell quantity %s exceeds open position", models.ErrInvalidArgument, qty.String())
		}
		realized = price.Sub(avgCost).Mul(qty)
		totalReturn = totalReturn.Add(realized)
		totalInvested = totalInvested.Sub(avgCost.Mul(qty))
		heldQty = heldQty.Sub(qty)
		if heldQty.IsZero() {
			avgCost = decimal.Zero
		}
		holding.CurrentPrice = input.Price

	case models.TransactionSideDividend:
		if !holdingExists {
			return nil, fmt.Errorf("%w: no position in %s to pay a dividend on", models.ErrNotFound, asset.Symbol)
		}
		realized = qty.Mul(price)
		totalReturn = totalReturn.Add(realized)
	}

	holding.Quantity, _ = heldQty.Float64()
	holding.AverageCost, _ = avgCost.Float64()
	holding.RecomputeDerived()

	if holdingExists {
		_, err = dbTx.Exec(`UPDATE holdings SET quantity = ?, average_cost = ?, current_price = ?,
			market_value = ?, unrealized_pnl = ?, unrealized_pnl_percentage = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			holding.Quantity, holding.AverageCost, holding.CurrentPrice,
			holding.MarketValue, holding.UnrealizedPnL, holding.UnrealizedPnLPercent, holding.ID)
	} else {
		holding.ID = uuid.NewString()
		_, err = dbTx.Exec(`INSERT INTO holdings (id, portfolio_id, asset_id, quantity, average_cost, current_price,
			market_value, unrealized_pnl, unrealized_pnl_percentage)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			holding.ID, portfolioID, asset.ID, holding.Quantity, holding.AverageCost, holding.CurrentPrice,
			holding.MarketValue, holding.UnrealizedPnL, holding.UnrealizedPnLPercent)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: writing holding: %v", models.ErrUpstreamUnavailable, err)
	}

	tx := &models.Transaction{
		ID:          uuid.NewString(),
		PortfolioID: portfolioID,
		Asset:       asset,
		Side:        input.Side,
		Quantity:    input.Quantity,
		Price:       input.Price,
		ExecutedAt:  executedAt,
	}
	tx.RealizedPnL, _ = realized.Float64()

	_, err = dbTx.Exec(`INSERT INTO transactions (id, portfolio_id, asset_id, side, quantity, price, realized_pnl, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.PortfolioID, asset.ID, tx.Side, tx.Quantity, tx.Price, tx.RealizedPnL, tx.ExecutedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: inserting transaction: %v", models.ErrUpstreamUnavailable, err)
	}

	// Portfolio totals: total_return accumulates realized P&L only;
	// unrealized P&L is always recomputed by the aggregator from holdings.
	var currentBalance float64
	err = dbTx.QueryRow(`SELECT COALESCE(SUM(market_value), 0) FROM holdings WHERE portfolio_id = ?`, portfolioID).
		Scan(&currentBalance)
	if err != nil {
		return nil, fmt.Errorf("%w: summing holdings: %v", models.ErrUpstreamUnavailable, err)
	}

	newInvested, _ := totalInvested.Float64()
	newReturn, _ := totalReturn.Float64()
	returnPercentage := 0.0
	if newInvested > 0 {
		returnPercentage = newReturn / newInvested * 100
	}

	_, err = dbTx.Exec(`UPDATE portfolios SET total_invested = ?, total_return = ?, return_percentage = ?,
		current_balance = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		newInvested, newReturn, returnPercentage, currentBalance, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("%w: updating portfolio totals: %v", models.ErrUpstreamUnavailable, err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing transaction: %v", models.ErrUpstreamUnavailable, err)
	}

	invalidatePortfolioCache(s.viewCache, portfolioID)
	logger.L.Info("Transaction recorded",
		"portfolioID", portfolioID, "symbol", asset.Symbol, "side", tx.Side,
		"quantity", tx.Quantity, "price", tx.Price, "realizedPnL", tx.RealizedPnL)
	return tx, nil
}
