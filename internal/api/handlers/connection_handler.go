package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"brokerlink/internal/connector"
	"brokerlink/internal/models"
	"brokerlink/internal/repository"
	"brokerlink/internal/service"
)

// ConnectBody - тело запроса на подключение площадки
type ConnectBody struct {
	UserID     int    `json:"user_id"`
	PlatformID int    `json:"platform_id"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	Server     string `json:"server,omitempty"`
	APIKey     string `json:"api_key,omitempty"`
	APISecret  string `json:"api_secret,omitempty"`
	Demo       bool   `json:"demo,omitempty"`
}

// DisconnectBody - тело запроса на отключение
type DisconnectBody struct {
	UserID       int `json:"user_id"`
	ConnectionID int `json:"connection_id"`
}

// ConnectResponse - ответ на успешное подключение
type ConnectResponse struct {
	Success      bool `json:"success"`
	ConnectionID int  `json:"connection_id"`
}

// ConnectionRow - подключение вместе с площадкой и снимком аккаунта
type ConnectionRow struct {
	ConnectionID int                            `json:"connection_id"`
	Platform     PlatformResponse               `json:"platform"`
	Connected    bool                           `json:"connected"`
	LastSyncAt   *time.Time                     `json:"last_sync_at,omitempty"`
	SyncError    string                         `json:"sync_error,omitempty"`
	StaleSince   *time.Time                     `json:"stale_since,omitempty"`
	Account      *models.TradingPlatformAccount `json:"account,omitempty"`
}

// ConnectionHandler отвечает за подключения пользователей к площадкам
//
// Endpoints:
// - POST /api/v1/connect - подключить площадку
// - GET /api/v1/connections?user_id= - список подключений пользователя
// - POST /api/v1/disconnect - отключить площадку
type ConnectionHandler struct {
	connectionService service.ConnectionServiceInterface
}

// NewConnectionHandler создает новый ConnectionHandler
func NewConnectionHandler(connectionService service.ConnectionServiceInterface) *ConnectionHandler {
	return &ConnectionHandler{connectionService: connectionService}
}

// Connect подключает пользователя к площадке
// POST /api/v1/connect
//
// Тело запроса:
//
//	{
//	  "user_id": 42,
//	  "platform_id": 4,
//	  "username": "demoUser",
//	  "password": "pw",
//	  "server": "Test-Server"
//	}
//
// Ответы:
// - 200 OK: подключение создано, возвращается connection_id
// - 400 Bad Request: неизвестная площадка или некорректное тело
// - 401 Unauthorized: площадка отвергла реквизиты
func (h *ConnectionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var body ConnectBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if body.UserID <= 0 {
		respondWithError(w, http.StatusBadRequest, "user_id is required", "")
		return
	}
	if body.PlatformID <= 0 {
		respondWithError(w, http.StatusBadRequest, "platform_id is required", "")
		return
	}

	conn, err := h.connectionService.Connect(r.Context(), &service.ConnectRequest{
		UserID:     body.UserID,
		PlatformID: body.PlatformID,
		Credentials: connector.Credentials{
			Username:  body.Username,
			Password:  body.Password,
			Server:    body.Server,
			APIKey:    body.APIKey,
			APISecret: body.APISecret,
			Demo:      body.Demo,
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPlatformUnknown):
			respondWithError(w, http.StatusBadRequest, "Unknown platform", "")
		case errors.Is(err, connector.ErrUnsupportedPlatformType):
			respondWithError(w, http.StatusBadRequest, "Unsupported platform type", err.Error())
		case errors.Is(err, service.ErrAuthenticationFailed):
			respondWithError(w, http.StatusUnauthorized, "Venue rejected the credentials", err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, ConnectResponse{
		Success:      true,
		ConnectionID: conn.ID,
	})
}

// GetConnections возвращает подключения пользователя с площадками и
// снимками аккаунтов
// GET /api/v1/connections?user_id=42
//
// Ответы:
// - 200 OK: список подключений (возможно пустой)
// - 400 Bad Request: user_id отсутствует или некорректен
func (h *ConnectionHandler) GetConnections(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(r.URL.Query().Get("user_id"))
	if err != nil || userID <= 0 {
		respondWithError(w, http.StatusBadRequest, "user_id query parameter is required", "")
		return
	}

	details, err := h.connectionService.ListConnections(userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list connections", err.Error())
		return
	}

	response := make([]ConnectionRow, 0, len(details))
	for _, d := range details {
		response = append(response, ConnectionRow{
			ConnectionID: d.Connection.ID,
			Platform:     toPlatformResponse(d.Platform),
			Connected:    d.Connection.Connected,
			LastSyncAt:   d.Connection.LastSyncAt,
			SyncError:    d.Connection.LastSyncError,
			StaleSince:   d.StaleSince,
			Account:      d.Account,
		})
	}

	respondWithJSON(w, http.StatusOK, response)
}

// Disconnect отключает подключение пользователя (soft delete)
// POST /api/v1/disconnect
//
// Ответы:
// - 200 OK: подключение отключено
// - 403 Forbidden: подключение принадлежит другому пользователю
// - 404 Not Found: подключение не найдено
// - 409 Conflict: подключение уже отключено
func (h *ConnectionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var body DisconnectBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if body.UserID <= 0 || body.ConnectionID <= 0 {
		respondWithError(w, http.StatusBadRequest, "user_id and connection_id are required", "")
		return
	}

	err := h.connectionService.Disconnect(r.Context(), body.UserID, body.ConnectionID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConnectionNotFound):
			respondWithError(w, http.StatusNotFound, "Connection not found", "")
		case errors.Is(err, service.ErrConnectionNotOwned):
			respondWithError(w, http.StatusForbidden, "Connection belongs to another user", "")
		case errors.Is(err, service.ErrConnectionInactive):
			respondWithError(w, http.StatusConflict, "Connection is already disconnected", "")
		default:
			respondWithError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{
		Message: "Connection disconnected successfully",
	})
}
