// Package integration contains integration tests for the broker integration layer.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle against a stub venue
// - WebSocket tests: connection, broadcast messaging
// - Database tests: schema, upsert semantics, transactions
//
// Tests skip automatically when the test database is unavailable.
package integration

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"brokerlink/internal/api"
	"brokerlink/internal/connector"
	"brokerlink/internal/models"
	"brokerlink/internal/repository"
	"brokerlink/internal/service"
	"brokerlink/internal/websocket"
	"brokerlink/pkg/vault"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
)

// Реквизиты, которые принимает stub площадка
const (
	stubVenueCode    = "testvenue"
	stubUsername     = "demoUser"
	stubPassword     = "pw"
	stubAccessToken  = "itest-session-token"
	testUserID       = 42
	testVaultPass    = "integration-test-passphrase"
	testVaultSalt    = "integration-test-salt"
	testSweepWorkers = 4
	testFreshWindow  = 15 * time.Minute
)

// TestConfig contains configuration for integration tests
type TestConfig struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	DB         *sql.DB
	Router     *mux.Router
	Server     *httptest.Server
	VenueStub  *httptest.Server
	Hub        *websocket.Hub
	Repos      *TestRepositories
	Services   *TestServices
	PlatformID int // id stub площадки в таблице platforms
	Cleanup    func()
}

// TestRepositories contains all repository instances for testing
type TestRepositories struct {
	Platform   *repository.PlatformRepository
	Connection *repository.ConnectionRepository
	Account    *repository.AccountRepository
	Trade      *repository.TradeRepository
}

// TestServices contains all service instances for testing
type TestServices struct {
	Platform   *service.PlatformService
	Connection *service.ConnectionService
	Sync       *service.SyncService
}

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "brokerlink_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SetupTestDB creates a test database connection
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	config := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.DBHost, config.DBPort, config.DBUser, config.DBPassword, config.DBName, config.DBSSLMode,
	)

	db, err := sql.Open(config.DBDriver, connStr)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil, func() {}
	}

	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil, func() {}
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	return db, cleanup
}

// newVenueStub поднимает HTTP stub площадки типа session_login:
// login endpoint, счета и позиции в формате TradeLocker-совместимого API.
func newVenueStub() *httptest.Server {
	stub := http.NewServeMux()

	stub.HandleFunc("/auth/jwt/token", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if body.Email != stubUsername || body.Password != stubPassword {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"accessToken": stubAccessToken})
	})

	requireBearer := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("Authorization") != "Bearer "+stubAccessToken {
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
		return true
	}

	stub.HandleFunc("/trade/accounts", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearer(w, r) {
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"accounts": []map[string]interface{}{
				{
					"id":             "ITEST-100",
					"name":           "Integration Account",
					"accountType":    "DEMO",
					"currency":       "USD",
					"accountBalance": 10500.50,
					"equity":         10480.10,
					"marginUsed":     120.25,
					"freeMargin":     10359.85,
				},
			},
		})
	})

	stub.HandleFunc("/trade/positions", func(w http.ResponseWriter, r *http.Request) {
		if !requireBearer(w, r) {
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"positions": []map[string]interface{}{
				{
					"id":        "T-1",
					"symbol":    "EURUSD",
					"side":      "BUY",
					"qty":       0.5,
					"openPrice": 1.0850,
					"pnl":       12.30,
					"status":    "OPEN",
					"openTime":  "2026-01-05T10:00:00Z",
				},
				{
					"id":         "T-2",
					"symbol":     "XAUUSD",
					"side":       "SELL",
					"qty":        0.1,
					"openPrice":  2650.00,
					"closePrice": 2641.50,
					"pnl":        85.00,
					"status":     "CLOSED",
					"openTime":   "2026-01-04T09:30:00Z",
					"closeTime":  "2026-01-04T15:45:00Z",
				},
			},
		})
	})

	return httptest.NewServer(stub)
}

// SetupTestServer creates a complete test server with all components
func SetupTestServer(t *testing.T) *TestServer {
	db, dbCleanup := SetupTestDB(t)
	if db == nil {
		return nil
	}

	if err := initTestTables(db); err != nil {
		t.Skipf("Skipping integration test: cannot initialize tables: %v", err)
		return nil
	}
	cleanupTestTables(db)

	venueStub := newVenueStub()

	hub := websocket.NewHub()
	go hub.Run()

	repos := &TestRepositories{
		Platform:   repository.NewPlatformRepository(db),
		Connection: repository.NewConnectionRepository(db),
		Account:    repository.NewAccountRepository(db),
		Trade:      repository.NewTradeRepository(db),
	}

	credVault, err := vault.NewAESVault(testVaultPass, testVaultSalt)
	if err != nil {
		t.Fatalf("failed to create vault: %v", err)
	}

	registry := connector.NewRegistry(connector.NewHTTPClient(connector.DefaultHTTPClientConfig()))

	services := &TestServices{
		Platform: service.NewPlatformService(repos.Platform),
		Connection: service.NewConnectionService(
			repos.Platform, repos.Connection, repos.Account,
			credVault, registry, testFreshWindow,
		),
		Sync: service.NewSyncService(
			repos.Connection, repos.Platform, repos.Account, repos.Trade,
			credVault, registry, testSweepWorkers,
		),
	}
	services.Connection.SetSyncService(services.Sync)
	services.Sync.SetWebSocketHub(hub)

	if err := services.Platform.EnsureSeeded(); err != nil {
		t.Fatalf("failed to seed platform registry: %v", err)
	}

	// Stub площадка поверх посеянного реестра: тот же тип session_login,
	// но base URL указывает на локальный httptest сервер
	stub := &models.Platform{
		Code:        stubVenueCode,
		Name:        "Test Venue",
		Type:        models.PlatformTypeSessionLogin,
		APIBaseURL:  venueStub.URL,
		SupportsAPI: true,
	}
	if err := repos.Platform.Create(stub); err != nil {
		t.Fatalf("failed to create stub platform: %v", err)
	}

	deps := &api.Dependencies{
		PlatformService:   services.Platform,
		ConnectionService: services.Connection,
		SyncService:       services.Sync,
		Hub:               hub,
	}
	router := api.SetupRoutes(deps)

	server := httptest.NewServer(router)

	cleanup := func() {
		server.Close()
		venueStub.Close()
		hub.Stop()
		cleanupTestTables(db)
		dbCleanup()
	}

	return &TestServer{
		DB:         db,
		Router:     router,
		Server:     server,
		VenueStub:  venueStub,
		Hub:        hub,
		Repos:      repos,
		Services:   services,
		PlatformID: stub.ID,
		Cleanup:    cleanup,
	}
}

// wsURL возвращает WebSocket адрес тестового сервера
func (ts *TestServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.Server.URL, "http") + "/ws/stream"
}

// initTestTables creates tables for testing
func initTestTables(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS platforms (
			id SERIAL PRIMARY KEY,
			code VARCHAR(50) UNIQUE NOT NULL,
			name VARCHAR(100) NOT NULL,
			type VARCHAR(30) NOT NULL,
			api_base_url TEXT NOT NULL DEFAULT '',
			web_trading_url TEXT NOT NULL DEFAULT '',
			supports_api BOOLEAN DEFAULT false,
			supports_web_trading BOOLEAN DEFAULT false,
			config JSONB DEFAULT '{}',
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS user_platform_connections (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL,
			platform_id INT REFERENCES platforms(id),
			credential_handle TEXT NOT NULL DEFAULT '',
			access_token TEXT NOT NULL DEFAULT '',
			refresh_token TEXT NOT NULL DEFAULT '',
			token_expires_at TIMESTAMP,
			session_metadata TEXT NOT NULL DEFAULT '',
			connected BOOLEAN DEFAULT false,
			last_sync_at TIMESTAMP,
			last_sync_error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW(),
			UNIQUE (user_id, platform_id)
		)`,
		`CREATE TABLE IF NOT EXISTS trading_platform_accounts (
			id SERIAL PRIMARY KEY,
			connection_id INT UNIQUE REFERENCES user_platform_connections(id) ON DELETE CASCADE,
			account_number VARCHAR(100) NOT NULL DEFAULT '',
			account_name VARCHAR(100) NOT NULL DEFAULT '',
			account_type VARCHAR(20) NOT NULL DEFAULT '',
			currency VARCHAR(10) NOT NULL DEFAULT '',
			balance DECIMAL(20, 2) DEFAULT 0,
			equity DECIMAL(20, 2) DEFAULT 0,
			margin_used DECIMAL(20, 2) DEFAULT 0,
			free_margin DECIMAL(20, 2) DEFAULT 0,
			last_updated TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS platform_trades (
			id SERIAL PRIMARY KEY,
			connection_id INT REFERENCES user_platform_connections(id) ON DELETE CASCADE,
			platform_trade_id VARCHAR(100) NOT NULL,
			symbol VARCHAR(30) NOT NULL,
			side VARCHAR(10) NOT NULL,
			volume DECIMAL(20, 8) NOT NULL DEFAULT 0,
			open_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			close_price DECIMAL(20, 8) NOT NULL DEFAULT 0,
			profit DECIMAL(20, 2) NOT NULL DEFAULT 0,
			status VARCHAR(10) NOT NULL DEFAULT 'open',
			opened_at TIMESTAMP NOT NULL,
			closed_at TIMESTAMP,
			synced_at TIMESTAMP DEFAULT NOW(),
			UNIQUE (connection_id, platform_trade_id)
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// cleanupTestTables truncates all test tables
func cleanupTestTables(db *sql.DB) {
	tables := []string{
		"platform_trades",
		"trading_platform_accounts",
		"user_platform_connections",
		"platforms",
	}

	for _, table := range tables {
		db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
	}
}
