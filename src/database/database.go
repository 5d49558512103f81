package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/tradingpro/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	// SQLite is single-writer; one pooled connection also keeps
	// in-memory databases coherent across queries.
	db.SetMaxOpenConns(1)
	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		auth_provider TEXT DEFAULT 'local',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		user_agent TEXT,
		client_ip TEXT,
		is_blocked BOOLEAN DEFAULT FALSE,
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		asset_class TEXT NOT NULL,
		logo_url TEXT,
		exchange TEXT,
		is_active BOOLEAN DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS portfolios (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		initial_balance REAL DEFAULT 0,
		current_balance REAL DEFAULT 0,
		total_invested REAL DEFAULT 0,
		total_return REAL DEFAULT 0,
		return_percentage REAL DEFAULT 0,
		status TEXT DEFAULT 'active',
		is_default BOOLEAN DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS holdings (
		id TEXT PRIMARY KEY,
		portfolio_id TEXT NOT NULL,
		asset_id TEXT NOT NULL,
		quantity REAL DEFAULT 0,
		average_cost REAL DEFAULT 0,
		current_price REAL DEFAULT 0,
		market_value REAL DEFAULT 0,
		unrealized_pnl REAL DEFAULT 0,
		unrealized_pnl_percentage REAL DEFAULT 0,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(portfolio_id) REFERENCES portfolios(id),
		FOREIGN KEY(asset_id) REFERENCES assets(id),
		UNIQUE(portfolio_id, asset_id)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		portfolio_id TEXT NOT NULL,
		asset_id TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		price REAL NOT NULL,
		realized_pnl REAL DEFAULT 0,
		executed_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(portfolio_id) REFERENCES portfolios(id),
		FOREIGN KEY(asset_id) REFERENCES assets(id)
	);

	CREATE TABLE IF NOT EXISTS portfolio_performance (
		portfolio_id TEXT NOT NULL,
		date TEXT NOT NULL,
		total_value REAL DEFAULT 0,
		benchmark_return REAL DEFAULT 0,
		PRIMARY KEY(portfolio_id, date),
		FOREIGN KEY(portfolio_id) REFERENCES portfolios(id)
	);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}

	migrateAssetsTable()
	migratePortfoliosTable()
	seedAssets()

	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

// tableColumns returns the set of column names of a table, or nil when the
// table does not exist yet.
func tableColumns(tableName string) map[string]bool {
	var name string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", tableName).Scan(&name)
	if err != nil {
		if err != sql.ErrNoRows {
			stdlog.Printf("Error checking for '%s' table: %v", tableName, err)
		}
		return nil
	}

	rows, err := DB.Query("PRAGMA table_info(" + tableName + ")")
	if err != nil {
		stdlog.Printf("Error querying table schema for '%s': %v", tableName, err)
		return nil
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var colName, dataType string
		var notnullVal int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &colName, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			stdlog.Printf("Error scanning column info for '%s': %v", tableName, err)
			return nil
		}
		columnExists[colName] = true
	}
	if err = rows.Err(); err != nil {
		stdlog.Printf("Error iterating over column info for '%s': %v", tableName, err)
		return nil
	}
	return columnExists
}

func addColumn(tableName, columnDef, columnName string) {
	_, err := DB.Exec("ALTER TABLE " + tableName + " ADD COLUMN " + columnDef)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error adding column", "table", tableName, "column", columnName, "error", err)
		} else {
			stdlog.Printf("Error adding '%s' column to '%s' table: %v", columnName, tableName, err)
		}
		return
	}
	if logger.L != nil {
		logger.L.Info("Added column", "table", tableName, "column", columnName)
	} else {
		stdlog.Printf("Added '%s' column to '%s' table", columnName, tableName)
	}
}

func migrateAssetsTable() {
	columns := tableColumns("assets")
	if columns == nil {
		return
	}
	if !columns["exchange"] {
		addColumn("assets", "exchange TEXT", "exchange")
	}
	if !columns["is_active"] {
		addColumn("assets", "is_active BOOLEAN DEFAULT TRUE", "is_active")
	}
}

func migratePortfoliosTable() {
	columns := tableColumns("portfolios")
	if columns == nil {
		return
	}
	if !columns["total_invested"] {
		addColumn("portfolios", "total_invested REAL DEFAULT 0", "total_invested")
	}
	if !columns["total_return"] {
		addColumn("portfolios", "total_return REAL DEFAULT 0", "total_return")
	}
	if !columns["return_percentage"] {
		addColumn("portfolios", "return_percentage REAL DEFAULT 0", "return_percentage")
	}
	if !columns["is_default"] {
		addColumn("portfolios", "is_default BOOLEAN DEFAULT FALSE", "is_default")
	}
}

// seedAssets inserts the reference asset catalog on first run. The catalog
// is otherwise maintained by an external process; rows here only provide a
// working instance out of the box.
func seedAssets() {
	seed := []struct {
		id, symbol, name, class, exchange string
	}{
		{"a1000000-0000-0000-0000-000000000001", "BTC", "Bitcoin", "crypto", ""},
		{"a1000000-0000-0000-0000-000000000002", "ETH", "Ethereum", "crypto", ""},
		{"a1000000-0000-0000-0000-000000000003", "SOL", "Solana", "crypto", ""},
		{"a1000000-0000-0000-0000-000000000004", "AAPL", "Apple Inc", "stocks", "NASDAQ"},
		{"a1000000-0000-0000-0000-000000000005", "TSLA", "Tesla Inc", "stocks", "NASDAQ"},
		{"a1000000-0000-0000-0000-000000000006", "MSFT", "Microsoft Corporation", "stocks", "NASDAQ"},
		{"a1000000-0000-0000-0000-000000000007", "SPY", "SPDR S&P 500 ETF Trust", "etf", "NYSEARCA"},
		{"a1000000-0000-0000-0000-000000000008", "QQQ", "Invesco QQQ Trust", "etf", "NASDAQ"},
		{"a1000000-0000-0000-0000-000000000009", "TLT", "iShares 20+ Year Treasury Bond ETF", "bonds", "NASDAQ"},
	}

	stmt, err := DB.Prepare(`INSERT OR IGNORE INTO assets (id, symbol, name, asset_class, exchange, is_active) VALUES (?, ?, ?, ?, ?, TRUE)`)
	if err != nil {
		stdlog.Printf("Error preparing asset seed statement: %v", err)
		return
	}
	defer stmt.Close()

	for _, a := range seed {
		if _, err := stmt.Exec(a.id, a.symbol, a.name, a.class, a.exchange); err != nil {
			stdlog.Printf("Error seeding asset %s: %v", a.symbol, err)
		}
	}
}
