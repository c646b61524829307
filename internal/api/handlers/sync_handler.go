package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"brokerlink/internal/connector"
	"brokerlink/internal/repository"
	"brokerlink/internal/service"
)

// SyncHandler отвечает за синхронизацию подключений по требованию
//
// Endpoints:
// - POST /api/v1/sync/{connectionId} - синхронная синхронизация
type SyncHandler struct {
	syncService service.SyncServiceInterface
}

// NewSyncHandler создает новый SyncHandler
func NewSyncHandler(syncService service.SyncServiceInterface) *SyncHandler {
	return &SyncHandler{syncService: syncService}
}

// Sync синхронизирует одно подключение и ждет результата
// POST /api/v1/sync/{connectionId}
//
// Ответы:
// - 200 OK: синхронизация выполнена
// - 404 Not Found: подключение не найдено
// - 409 Conflict: подключение отключено
// - 502 Bad Gateway: площадка недоступна или отвергла сессию
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	connectionID, err := strconv.Atoi(vars["connectionId"])
	if err != nil || connectionID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid connection id", "")
		return
	}

	if err := h.syncService.Sync(r.Context(), connectionID); err != nil {
		var connErr *connector.ConnectorError
		switch {
		case errors.Is(err, repository.ErrConnectionNotFound):
			respondWithError(w, http.StatusNotFound, "Connection not found", "")
		case errors.Is(err, service.ErrConnectionInactive):
			respondWithError(w, http.StatusConflict, "Connection is not active", "")
		case errors.As(err, &connErr):
			respondWithError(w, http.StatusBadGateway, "Venue request failed", err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{
		Message: "Sync completed successfully",
	})
}
