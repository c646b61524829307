package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"brokerlink/internal/api/handlers"
	"brokerlink/internal/api/middleware"
	"brokerlink/internal/service"
	"brokerlink/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	PlatformService   service.PlatformServiceInterface
	ConnectionService service.ConnectionServiceInterface
	SyncService       service.SyncServiceInterface
	Hub               *websocket.Hub
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Назначение:
// Центральное место для определения всех API endpoints.
// Регистрирует handlers для каждого маршрута.
// Применяет middleware к группам маршрутов.
// Организует версионирование API (v1).
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── GET  /platforms - каталог поддерживаемых платформ
//	├── POST /connect - подключить торговый счет
//	├── GET  /connections?user_id= - подключения пользователя
//	├── POST /disconnect - отключить торговый счет
//	└── POST /sync/{connectionId} - принудительная синхронизация
//
// /ws/
//
//	└── /stream - WebSocket для real-time обновлений
//
// /metrics - Prometheus метрики
// /health - health check
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	// Создание handlers с внедрением зависимостей
	var platformHandler *handlers.PlatformHandler
	if deps != nil && deps.PlatformService != nil {
		platformHandler = handlers.NewPlatformHandler(deps.PlatformService)
	}

	var connectionHandler *handlers.ConnectionHandler
	if deps != nil && deps.ConnectionService != nil {
		connectionHandler = handlers.NewConnectionHandler(deps.ConnectionService)
	}

	var syncHandler *handlers.SyncHandler
	if deps != nil && deps.SyncService != nil {
		syncHandler = handlers.NewSyncHandler(deps.SyncService)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Platform routes
	if platformHandler != nil {
		api.HandleFunc("/platforms", platformHandler.GetPlatforms).Methods("GET")
	}

	// Connection routes
	if connectionHandler != nil {
		api.HandleFunc("/connect", connectionHandler.Connect).Methods("POST")
		api.HandleFunc("/connections", connectionHandler.GetConnections).Methods("GET")
		api.HandleFunc("/disconnect", connectionHandler.Disconnect).Methods("POST")
	}

	// Sync routes
	if syncHandler != nil {
		api.HandleFunc("/sync/{connectionId}", syncHandler.Sync).Methods("POST")
	}

	// WebSocket route
	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
