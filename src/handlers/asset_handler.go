package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/tradingpro/backend/src/models"
	"github.com/username/tradingpro/backend/src/services"
)

type AssetHandler struct {
	assetService services.AssetService
}

func NewAssetHandler(assetService services.AssetService) *AssetHandler {
	return &AssetHandler{assetService: assetService}
}

func (h *AssetHandler) HandleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.assetService.ListAssets(r.URL.Query().Get("assetClass"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if assets == nil {
		assets = []models.Asset{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(assets)
}

func (h *AssetHandler) HandleSearchAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.assetService.SearchAssets(r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if assets == nil {
		assets = []models.Asset{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(assets)
}
