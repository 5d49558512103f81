package services

import (
	"database/sql"
	"fmt"

	"github.com/username/tradingpro/backend/src/database"
	"github.com/username/tradingpro/backend/src/models"
	"github.com/username/tradingpro/backend/src/security/validation"
)

const searchResultLimit = 20

type assetServiceImpl struct{}

func NewAssetService() AssetService {
	return &assetServiceImpl{}
}

const assetColumns = `id, symbol, name, asset_class, COALESCE(logo_url, ''), COALESCE(exchange, ''), is_active`

func scanAssets(rows *sql.Rows) ([]models.Asset, error) {
	defer rows.Close()
	var assets []models.Asset
	for rows.Next() {
		var a models.Asset
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Name, &a.AssetClass, &a.LogoURL, &a.Exchange, &a.IsActive); err != nil {
			return nil, fmt.Errorf("%w: scanning asset: %v", models.ErrUpstreamUnavailable, err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating assets: %v", models.ErrUpstreamUnavailable, err)
	}
	return assets, nil
}

// ListAssets returns the active catalog, optionally limited to one asset
// class. An empty class or "all" returns everything.
func (s *assetServiceImpl) ListAssets(assetClass string) ([]models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE is_active = TRUE`
	args := []interface{}{}
	if assetClass != "" && assetClass != "all" {
		query += ` AND asset_class = ?`
		args = append(args, assetClass)
	}
	query += ` ORDER BY symbol ASC`

	rows, err := database.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying assets: %v", models.ErrUpstreamUnavailable, err)
	}
	return scanAssets(rows)
}

// SearchAssets matches the term against symbol and name, case
// insensitively.
func (s *assetServiceImpl) SearchAssets(term string) ([]models.Asset, error) {
	term = validation.NormalizeSearchTerm(term)
	if term == "" {
		return nil, fmt.Errorf("%w: search term required", models.ErrInvalidArgument)
	}
	pattern := "%" + term + "%"
	rows, err := database.DB.Query(`SELECT `+assetColumns+` FROM assets
		WHERE is_active = TRUE AND (symbol LIKE ? COLLATE NOCASE OR name LIKE ? COLLATE NOCASE)
		ORDER BY symbol ASC LIMIT ?`, pattern, pattern, searchResultLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: searching assets: %v", models.ErrUpstreamUnavailable, err)
	}
	return scanAssets(rows)
}
