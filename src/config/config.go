package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port         string
	DatabasePath string
	LogLevel     string

	JWTSecret          string
	CSRFAuthKey        []byte
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration

	CORSAllowedOrigin string
	FrontendBaseURL   string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Price refresh settings. A zero PriceRefreshInterval disables the
	// background refresh loop entirely.
	PriceRefreshInterval time.Duration
	QuoteCacheExpiry     time.Duration
	BenchmarkSymbol      string

	// Default window (days) for performance queries when the client does
	// not pass a range.
	DefaultPerformanceDays int
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	jwtSecret := getEnv("JWT_SECRET", "your-very-secure-and-long-jwt-secret-key-for-hs256-minimum-32-bytes")
	if jwtSecret == "your-very-secure-and-long-jwt-secret-key-for-hs256-minimum-32-bytes" {
		log.Println("WARNING: Using default insecure JWT_SECRET. Set JWT_SECRET environment variable for production.")
	}

	csrfAuthKeyStr := getEnv("CSRF_AUTH_KEY", "a-very-secure-32-byte-long-key-must-be-32-bytes!")
	if csrfAuthKeyStr == "a-very-secure-32-byte-long-key-must-be-32-bytes!" {
		log.Println("WARNING: Using default insecure CSRF_AUTH_KEY. Set CSRF_AUTH_KEY environment variable for production.")
	}
	if len(csrfAuthKeyStr) < 32 {
		log.Fatalf("FATAL: CSRF_AUTH_KEY must be at least 32 bytes long. Current length: %d", len(csrfAuthKeyStr))
	}

	defaultPerformanceDaysStr := getEnv("DEFAULT_PERFORMANCE_DAYS", "30")
	defaultPerformanceDays, err := strconv.Atoi(defaultPerformanceDaysStr)
	if err != nil || defaultPerformanceDays <= 0 {
		log.Printf("WARNING: Invalid DEFAULT_PERFORMANCE_DAYS '%s'. Using default 30.", defaultPerformanceDaysStr)
		defaultPerformanceDays = 30
	}

	Cfg = &AppConfig{
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./tradingpro.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		JWTSecret:          jwtSecret,
		CSRFAuthKey:        []byte(csrfAuthKeyStr),
		AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 60*time.Minute),
		RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),

		CORSAllowedOrigin: getEnv("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
		FrontendBaseURL:   getEnv("FRONTEND_BASE_URL", "http://localhost:3000"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/auth/google/callback"),

		PriceRefreshInterval: getEnvAsDuration("PRICE_REFRESH_INTERVAL", 30*time.Second),
		QuoteCacheExpiry:     getEnvAsDuration("QUOTE_CACHE_EXPIRY", 5*time.Minute),
		BenchmarkSymbol:      getEnv("BENCHMARK_SYMBOL", "SPY"),

		DefaultPerformanceDays: defaultPerformanceDays,
	}

	if Cfg.GoogleClientID == "" || Cfg.GoogleClientSecret == "" {
		log.Println("Info: Google OAuth credentials not set. Google login will be unavailable.")
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, PriceRefreshInterval=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.PriceRefreshInterval)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		log.Printf("Duration value for %s not set, using default: %s", key, fallback.String())
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
