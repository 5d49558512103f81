package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/tradingpro/backend/src/config"
	"github.com/username/tradingpro/backend/src/database"
	"github.com/username/tradingpro/backend/src/logger"
	"github.com/username/tradingpro/backend/src/models"
	"github.com/username/tradingpro/backend/src/services"
)

type testEnv struct {
	handler     *PortfolioHandler
	portfolio   *models.Portfolio
	portfolioID string
	txService   services.TransactionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if logger.L == nil {
		logger.InitLogger("error")
	}
	if config.Cfg == nil {
		config.Cfg = &config.AppConfig{DefaultPerformanceDays: 30, BenchmarkSymbol: "SPY"}
	}
	database.InitDB(":memory:")
	t.Cleanup(func() { database.DB.Close() })

	viewCache := cache.New(time.Minute, time.Minute)
	portfolioService := services.NewPortfolioService(viewCache)
	transactionService := services.NewTransactionService(viewCache)

	portfolio, err := portfolioService.CreatePortfolio(1, "Growth", 100000, true)
	require.NoError(t, err)

	return &testEnv{
		handler:     NewPortfolioHandler(portfolioService, transactionService, nil),
		portfolio:   portfolio,
		portfolioID: portfolio.ID,
		txService:   transactionService,
	}
}

// authedRequest builds a request the way AuthMiddleware and the mux
// would hand it to the handler: user id in context, {id} as path value.
func authedRequest(method, target string, body string, userID int64, portfolioID string) *http.Request {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r = r.WithContext(context.WithValue(r.Context(), userIDContextKey, userID))
	if portfolioID != "" {
		r.SetPathValue("id", portfolioID)
	}
	return r
}

func (e *testEnv) seedHoldings(t *testing.T) {
	t.Helper()
	_, err := e.txService.RecordTransaction(e.portfolioID, services.TransactionInput{
		AssetSymbol: "BTC", Side: models.TransactionSideBuy, Quantity: 0.5, Price: 80000,
	})
	require.NoError(t, err)
	_, err = e.txService.RecordTransaction(e.portfolioID, services.TransactionInput{
		AssetSymbol: "ETH", Side: models.TransactionSideBuy, Quantity: 3, Price: 3000,
	})
	require.NoError(t, err)
}

func TestHandleListPortfolios(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.handler.HandleListPortfolios(w, authedRequest("GET", "/api/portfolios", "", 1, ""))

	require.Equal(t, http.StatusOK, w.Code)
	var portfolios []models.Portfolio
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &portfolios))
	require.Len(t, portfolios, 1)
	assert.Equal(t, "Growth", portfolios[0].Name)
	assert.True(t, portfolios[0].IsDefault)
}

func TestHandleGetSummary(t *testing.T) {
	env := newTestEnv(t)
	env.seedHoldings(t)

	w := httptest.NewRecorder()
	env.handler.HandleGetSummary(w, authedRequest("GET", "/api/portfolios/x/summary", "", 1, env.portfolioID))

	require.Equal(t, http.StatusOK, w.Code)
	var summary models.PortfolioSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.TotalAssets)
	assert.InDelta(t, 49000, summary.TotalValue, 1e-6) // 0.5*80000 + 3*3000
	assert.NotEmpty(t, w.Header().Get("ETag"))
}

func TestHandleGetSummary_ETagNotModified(t *testing.T) {
	env := newTestEnv(t)
	env.seedHoldings(t)

	first := httptest.NewRecorder()
	env.handler.HandleGetSummary(first, authedRequest("GET", "/api/portfolios/x/summary", "", 1, env.portfolioID))
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	r := authedRequest("GET", "/api/portfolios/x/summary", "", 1, env.portfolioID)
	r.Header.Set("If-None-Match", etag)
	second := httptest.NewRecorder()
	env.handler.HandleGetSummary(second, r)
	assert.Equal(t, http.StatusNotModified, second.Code)
}

func TestHandleGetSummary_ForeignPortfolioLooksAbsent(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.handler.HandleGetSummary(w, authedRequest("GET", "/api/portfolios/x/summary", "", 99, env.portfolioID))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	env.handler.HandleGetSummary(w, authedRequest("GET", "/api/portfolios/x/summary", "", 1, "no-such-id"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetHoldings_SortAndFilter(t *testing.T) {
	env := newTestEnv(t)
	env.seedHoldings(t)

	w := httptest.NewRecorder()
	env.handler.HandleGetHoldings(w, authedRequest("GET",
		"/api/portfolios/x/holdings?sortKey=price&sortDir=asc", "", 1, env.portfolioID))

	require.Equal(t, http.StatusOK, w.Code)
	var views []models.HoldingView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "ETH", views[0].Symbol)
	assert.Equal(t, "BTC", views[1].Symbol)

	w = httptest.NewRecorder()
	env.handler.HandleGetHoldings(w, authedRequest("GET",
		"/api/portfolios/x/holdings?search=bitcoin", "", 1, env.portfolioID))
	require.Equal(t, http.StatusOK, w.Code)
	views = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "BTC", views[0].Symbol)
}

func TestHandleGetHoldings_InvalidSortKey(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.handler.HandleGetHoldings(w, authedRequest("GET",
		"/api/portfolios/x/holdings?sortKey=volume", "", 1, env.portfolioID))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleExportHoldings_SanitizesCells(t *testing.T) {
	env := newTestEnv(t)
	env.seedHoldings(t)

	w := httptest.NewRecorder()
	env.handler.HandleExportHoldings(w, authedRequest("GET",
		"/api/portfolios/x/holdings/export", "", 1, env.portfolioID))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "symbol,name,asset_class"))
	assert.Contains(t, body, "BTC")
	assert.Contains(t, body, "ETH")
}

func TestHandleCreateTransaction(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.handler.HandleCreateTransaction(w, authedRequest("POST", "/api/portfolios/x/transactions",
		`{"asset_symbol":"AAPL","side":"buy","quantity":10,"price":150}`, 1, env.portfolioID))

	require.Equal(t, http.StatusCreated, w.Code)
	var tx models.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tx))
	assert.Equal(t, "AAPL", tx.Asset.Symbol)

	w = httptest.NewRecorder()
	env.handler.HandleCreateTransaction(w, authedRequest("POST", "/api/portfolios/x/transactions",
		`{"asset_symbol":"AAPL","side":"sell","quantity":999,"price":150}`, 1, env.portfolioID))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetTransactions(t *testing.T) {
	env := newTestEnv(t)
	env.seedHoldings(t)

	w := httptest.NewRecorder()
	env.handler.HandleGetTransactions(w, authedRequest("GET",
		"/api/portfolios/x/transactions?limit=1", "", 1, env.portfolioID))

	require.Equal(t, http.StatusOK, w.Code)
	var transactions []models.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &transactions))
	assert.Len(t, transactions, 1)

	w = httptest.NewRecorder()
	env.handler.HandleGetTransactions(w, authedRequest("GET",
		"/api/portfolios/x/transactions?limit=bogus", "", 1, env.portfolioID))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetPerformance_EmptyHistory(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.handler.HandleGetPerformance(w, authedRequest("GET",
		"/api/portfolios/x/performance?range=1W", "", 1, env.portfolioID))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestHandleArchivePortfolio(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.handler.HandleArchivePortfolio(w, authedRequest("DELETE", "/api/portfolios/x", "", 1, env.portfolioID))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	env.handler.HandleListPortfolios(w, authedRequest("GET", "/api/portfolios", "", 1, ""))
	require.Equal(t, http.StatusOK, w.Code)
	var portfolios []models.Portfolio
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &portfolios))
	assert.Empty(t, portfolios)
}
