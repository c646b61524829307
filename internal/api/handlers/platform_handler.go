package handlers

import (
	"net/http"

	"brokerlink/internal/models"
	"brokerlink/internal/service"
)

// PlatformResponse - ответ с дескриптором площадки
type PlatformResponse struct {
	ID                 int    `json:"id"`
	Code               string `json:"code"`
	Name               string `json:"name"`
	Type               string `json:"type"`
	SupportsAPI        bool   `json:"supports_api"`
	SupportsWebTrading bool   `json:"supports_web_trading"`
	WebTradingURL      string `json:"web_trading_url,omitempty"`
}

// PlatformHandler отвечает за реестр торговых площадок
//
// Endpoints:
// - GET /api/v1/platforms - список поддерживаемых площадок
type PlatformHandler struct {
	platformService service.PlatformServiceInterface
}

// NewPlatformHandler создает новый PlatformHandler
func NewPlatformHandler(platformService service.PlatformServiceInterface) *PlatformHandler {
	return &PlatformHandler{platformService: platformService}
}

// GetPlatforms возвращает список всех поддерживаемых площадок
// GET /api/v1/platforms
//
// Ответы:
// - 200 OK: список площадок
// - 500 Internal Server Error: хранилище недоступно после повторов
func (h *PlatformHandler) GetPlatforms(w http.ResponseWriter, r *http.Request) {
	platforms, err := h.platformService.ListPlatforms()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list platforms", err.Error())
		return
	}

	response := make([]PlatformResponse, 0, len(platforms))
	for _, platform := range platforms {
		response = append(response, toPlatformResponse(platform))
	}

	respondWithJSON(w, http.StatusOK, response)
}

func toPlatformResponse(platform *models.Platform) PlatformResponse {
	return PlatformResponse{
		ID:                 platform.ID,
		Code:               platform.Code,
		Name:               platform.Name,
		Type:               platform.Type,
		SupportsAPI:        platform.SupportsAPI,
		SupportsWebTrading: platform.SupportsWebTrading,
		WebTradingURL:      platform.WebTradingURL,
	}
}
