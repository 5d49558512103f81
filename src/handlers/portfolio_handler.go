package handlers

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/username/tradingpro/backend/src/aggregator"
	"github.com/username/tradingpro/backend/src/config"
	"github.com/username/tradingpro/backend/src/logger"
	"github.com/username/tradingpro/backend/src/models"
	"github.com/username/tradingpro/backend/src/security/validation"
	"github.com/username/tradingpro/backend/src/services"
	"github.com/username/tradingpro/backend/src/utils"
)

type PortfolioHandler struct {
	portfolioService   services.PortfolioService
	transactionService services.TransactionService
	priceService       services.PriceService
}

func NewPortfolioHandler(
	portfolioService services.PortfolioService,
	transactionService services.TransactionService,
	priceService services.PriceService,
) *PortfolioHandler {
	return &PortfolioHandler{
		portfolioService:   portfolioService,
		transactionService: transactionService,
		priceService:       priceService,
	}
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		utils.SendJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrInvalidArgument):
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrUpstreamUnavailable):
		utils.SendJSONError(w, err.Error(), http.StatusBadGateway)
	default:
		utils.SendJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// requireOwnedPortfolio resolves the {id} path segment and checks that
// the portfolio belongs to the authenticated user. Foreign portfolios
// look exactly like absent ones to the caller.
func (h *PortfolioHandler) requireOwnedPortfolio(w http.ResponseWriter, r *http.Request) (*models.Portfolio, bool) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return nil, false
	}

	portfolioID := r.PathValue("id")
	portfolio, err := h.portfolioService.FetchPortfolioByID(portfolioID)
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	if portfolio.UserID != userID {
		logger.L.Warn("Portfolio access denied", "portfolioID", portfolioID, "userID", userID)
		utils.SendJSONError(w, fmt.Sprintf("portfolio not found: %s", portfolioID), http.StatusNotFound)
		return nil, false
	}
	return portfolio, true
}

func (h *PortfolioHandler) HandleListPortfolios(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	portfolios, err := h.portfolioService.FetchPortfolios(userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if portfolios == nil {
		portfolios = []models.Portfolio{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(portfolios)
}

func (h *PortfolioHandler) HandleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var body struct {
		Name           string  `json:"name"`
		InitialBalance float64 `json:"initial_balance"`
		IsDefault      bool    `json:"is_default"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	portfolio, err := h.portfolioService.CreatePortfolio(userID, body.Name, body.InitialBalance, body.IsDefault)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(portfolio)
}

func (h *PortfolioHandler) HandleUpdatePortfolio(w http.ResponseWriter, r *http.Request) {
	portfolio, ok := h.requireOwnedPortfolio(w, r)
	if !ok {
		return
	}

	var updates services.PortfolioUpdates
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.portfolioService.UpdatePortfolio(portfolio.ID, updates)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

func (h *PortfolioHandler) HandleArchivePortfolio(w http.ResponseWriter, r *http.Request) {
	portfolio, ok := h.requireOwnedPortfolio(w, r)
	if !ok {
		return
	}
	if err := h.portfolioService.ArchivePortfolio(portfolio.ID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PortfolioHandler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	portfolio, ok := h.requireOwnedPortfolio(w, r)
	if !ok {
		return
	}

	summary, err := h.portfolioService.GetSummary(portfolio.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if etag, err := utils.GenerateETag(summary); err == nil {
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

func holdingViewOptionsFromQuery(r *http.Request) aggregator.HoldingViewOptions {
	q := r.URL.Query()
	return aggregator.HoldingViewOptions{
		SortKey:       aggregator.SortKey(q.Get("sortKey")),
		SortDirection: aggregator.SortDirection(q.Get("sortDir")),
		AssetClass:    q.Get("assetClass"),
		Search:        validation.NormalizeSearchTerm(q.Get("search")),
	}
}

func (h *PortfolioHandler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	portfolio, ok := h.requireOwnedPortfolio(w, r)
	if !ok {
		return
	}

	views, err := h.portfolioService.GetHoldingsView(portfolio.ID, holdingViewOptionsFromQuery(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if views == nil {
		views = []models.HoldingView{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// HandleExportHoldings streams the current holdings view as CSV. Text
// cells pass through the formula-injection guard before writing.
func (h *PortfolioHandler) HandleExportHoldings(w http.ResponseWriter, r *http.Request) {
	portfolio, ok := h.requireOwnedPortfolio(w, r)
	if !ok {
		return
	}

	views, err := h.portfolioService.GetHoldingsView(portfolio.ID, holdingViewOptionsFromQuery(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("holdings_%s.csv", portfolio.ID)))

	cw := csv.NewWriter(w)
	cw.Write([]string{"symbol", "name", "asset_class", "price", "quantity", "market_value", "change_24h_percent", "portfolio_percent"})
	for _, v := range views {
		cw.Write([]string{
			validation.SanitizeForFormulaInjection(v.Symbol),
			validation.SanitizeForFormulaInjection(v.Name),
			validation.SanitizeForFormulaInjection(v.AssetClass),
			strconv.FormatFloat(utils.RoundFloat(v.CurrentPrice, 2), 'f', -1, 64),
			strconv.FormatFloat(v.Quantity, 'f', -1, 64),
			strconv.FormatFloat(utils.RoundFloat(v.MarketValue, 2), 'f', -1, 64),
			strconv.FormatFloat(utils.RoundFloat(v.Change24h, 2), 'f', -1, 64),
			strconv.FormatFloat(utils.RoundFloat(v.PortfolioPercent, 2), 'f', -1, 64),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logger.L.Error("CSV export failed mid-stream", "portfolioID", portfolio.ID, "error", err)
	}
}

func (h *PortfolioHandler) HandleGetAllocation(w http.ResponseWriter, r *http.Request) {
	portfolio, ok := h.requireOwnedPortfolio(w, r)
	if !ok {
		return
	}

	allocation, err := h.portfolioService.GetAllocation(portfolio.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if allocation == nil {
		allocation = []models.AllocationEntry{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(allocation)
}

func (h *PortfolioHandler) HandleGetPerformance(w http.ResponseWriter, r *http.Request) {
	portfolio, ok := h.requireOwnedPortfolio(w, r)
	if !ok {
		return
	}

	days := utils.DaysForRange(r.URL.Query().Get("range"), config.Cfg.DefaultPerformanceDays)
	series, err := h.portfolioService.GetPerformanceSeries(portfolio.ID, days)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if series == nil {
		series = []models.PerformancePoint{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(series)
}

func (h *PortfolioHandler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	portfolio, ok := h.requireOwnedPortfolio(w, r)
	if !ok {
		return
	}

	limit := services.DefaultTransactionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.SendJSONError(w, fmt.Sprintf("invalid limit: %s", raw), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	transactions, err := h.portfolioService.FetchTransactions(portfolio.ID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}

func (h *PortfolioHandler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	portfolio, ok := h.requireOwnedPortfolio(w, r)
	if !ok {
		return
	}

	var input services.TransactionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := h.transactionService.RecordTransaction(portfolio.ID, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tx)
}

func (h *PortfolioHandler) HandleRefreshPrices(w http.ResponseWriter, r *http.Request) {
	portfolio, ok := h.requireOwnedPortfolio(w, r)
	if !ok {
		return
	}

	if err := h.priceService.RefreshPortfolioPrices(portfolio.ID); err != nil {
		writeServiceError(w, err)
		return
	}

	summary, err := h.portfolioService.GetSummary(portfolio.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// HandleStreamView serves the dashboard's auto-refresh as server-sent
// events. A poller re-fetches the assembled view on the configured
// interval for as long as the client stays connected; stale fetch
// results are discarded by the poller, so events always move forward.
func (h *PortfolioHandler) HandleStreamView(w http.ResponseWriter, r *http.Request) {
	portfolio, ok := h.requireOwnedPortfolio(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.SendJSONError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	days := utils.DaysForRange(r.URL.Query().Get("range"), config.Cfg.DefaultPerformanceDays)
	interval := config.Cfg.PriceRefreshInterval
	poller := services.NewViewPoller(h.portfolioService, portfolio.ID, days, interval)

	ctx := r.Context()
	go poller.Run(ctx)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for {
		select {
		case <-ctx.Done():
			return
		case view := <-poller.Updates():
			payload, err := json.Marshal(view)
			if err != nil {
				logger.L.Error("Failed to marshal view for stream", "portfolioID", portfolio.ID, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: view\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
