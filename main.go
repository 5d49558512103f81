package main

import (
	"context"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/tradingpro/backend/src/config"
	"github.com/username/tradingpro/backend/src/database"
	"github.com/username/tradingpro/backend/src/handlers"
	"github.com/username/tradingpro/backend/src/logger"
	"github.com/username/tradingpro/backend/src/security"
	"github.com/username/tradingpro/backend/src/services"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == config.Cfg.CORSAllowedOrigin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With, Cookie, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "X-CSRF-Token, ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("TradingPro backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}
	if len(config.Cfg.CSRFAuthKey) < 32 {
		logger.L.Error("CSRF_AUTH_KEY must be at least 32 bytes long.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	viewCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	portfolioService := services.NewPortfolioService(viewCache)
	transactionService := services.NewTransactionService(viewCache)
	priceService := services.NewPriceService(viewCache)
	assetService := services.NewAssetService()

	userHandler := handlers.NewUserHandler(authService)
	portfolioHandler := handlers.NewPortfolioHandler(portfolioService, transactionService, priceService)
	assetHandler := handlers.NewAssetHandler(assetService)
	handlers.InitializeGoogleOAuthConfig()

	if config.Cfg.PriceRefreshInterval > 0 {
		go func() {
			ticker := time.NewTicker(config.Cfg.PriceRefreshInterval)
			defer ticker.Stop()
			for range ticker.C {
				if err := priceService.RefreshAllPortfolios(context.Background()); err != nil {
					logger.L.Error("Background price refresh failed", "error", err)
				}
			}
		}()
		logger.L.Info("Background price refresh enabled", "interval", config.Cfg.PriceRefreshInterval)
	}

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	// Public routes
	apiRouter.HandleFunc("GET /api/auth/csrf", handlers.GetCSRFToken)
	apiRouter.HandleFunc("GET /api/auth/google/login", userHandler.HandleGoogleLogin)
	apiRouter.HandleFunc("GET /api/auth/google/callback", userHandler.HandleGoogleCallback)

	// Auth actions, grouped so CSRF applies to the whole set
	authActionRouter := http.NewServeMux()
	authActionRouter.HandleFunc("POST /login", userHandler.LoginUserHandler)
	authActionRouter.HandleFunc("POST /register", userHandler.RegisterUserHandler)
	authActionRouter.HandleFunc("POST /refresh", userHandler.RefreshTokenHandler)
	authActionRouter.Handle("POST /logout", userHandler.AuthMiddleware(http.HandlerFunc(userHandler.LogoutUserHandler)))
	apiRouter.Handle("/api/auth/", http.StripPrefix("/api/auth", handlers.CSRFMiddleware()(authActionRouter)))

	csrfProtection := handlers.CSRFMiddleware()
	applyCsrfAndAuth := func(handler http.HandlerFunc) http.Handler {
		return csrfProtection(userHandler.AuthMiddleware(handler))
	}

	apiRouter.Handle("GET /api/portfolios", applyCsrfAndAuth(portfolioHandler.HandleListPortfolios))
	apiRouter.Handle("POST /api/portfolios", applyCsrfAndAuth(portfolioHandler.HandleCreatePortfolio))
	apiRouter.Handle("PUT /api/portfolios/{id}", applyCsrfAndAuth(portfolioHandler.HandleUpdatePortfolio))
	apiRouter.Handle("DELETE /api/portfolios/{id}", applyCsrfAndAuth(portfolioHandler.HandleArchivePortfolio))
	apiRouter.Handle("GET /api/portfolios/{id}/summary", applyCsrfAndAuth(portfolioHandler.HandleGetSummary))
	apiRouter.Handle("GET /api/portfolios/{id}/holdings", applyCsrfAndAuth(portfolioHandler.HandleGetHoldings))
	apiRouter.Handle("GET /api/portfolios/{id}/holdings/export", applyCsrfAndAuth(portfolioHandler.HandleExportHoldings))
	apiRouter.Handle("GET /api/portfolios/{id}/allocation", applyCsrfAndAuth(portfolioHandler.HandleGetAllocation))
	apiRouter.Handle("GET /api/portfolios/{id}/performance", applyCsrfAndAuth(portfolioHandler.HandleGetPerformance))
	apiRouter.Handle("GET /api/portfolios/{id}/transactions", applyCsrfAndAuth(portfolioHandler.HandleGetTransactions))
	apiRouter.Handle("POST /api/portfolios/{id}/transactions", applyCsrfAndAuth(portfolioHandler.HandleCreateTransaction))
	apiRouter.Handle("POST /api/portfolios/{id}/refresh-prices", applyCsrfAndAuth(portfolioHandler.HandleRefreshPrices))
	apiRouter.Handle("GET /api/portfolios/{id}/stream", applyCsrfAndAuth(portfolioHandler.HandleStreamView))
	apiRouter.Handle("GET /api/assets", applyCsrfAndAuth(assetHandler.HandleListAssets))
	apiRouter.Handle("GET /api/assets/search", applyCsrfAndAuth(assetHandler.HandleSearchAssets))

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "TradingPro Backend is running"})
		} else if !strings.HasPrefix(r.URL.Path, "/api/") {
			logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     finalHandler,
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: the SSE stream endpoint holds its
		// response open for the life of the client connection
		IdleTimeout: 60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
