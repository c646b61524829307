package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"brokerlink/internal/api"
	"brokerlink/internal/config"
	"brokerlink/internal/connector"
	"brokerlink/internal/repository"
	"brokerlink/internal/service"
	"brokerlink/internal/websocket"
	"brokerlink/pkg/utils"
	"brokerlink/pkg/vault"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	log := logger.Sugar()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err, "dsn", cfg.Database.DSNWithoutPassword())
	}
	defer db.Close()

	log.Infow("connected to database", "dsn", cfg.Database.DSNWithoutPassword())

	// Инициализация хранилища секретов
	credVault, err := vault.NewAESVault(cfg.Vault.Passphrase, cfg.Vault.Salt)
	if err != nil {
		log.Fatalw("failed to initialize credential vault", "error", err)
	}

	// Инициализация репозиториев
	platformRepo := repository.NewPlatformRepository(db)
	connectionRepo := repository.NewConnectionRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	tradeRepo := repository.NewTradeRepository(db)

	// HTTP клиент коннекторов: общий пул соединений и rate limiter per venue
	httpCfg := connector.DefaultHTTPClientConfig()
	httpCfg.TotalTimeout = cfg.Sync.RequestTimeout
	httpCfg.VenueRateLimit = cfg.Sync.VenueRateLimit
	httpCfg.VenueRateBurst = cfg.Sync.VenueRateBurst
	registry := connector.NewRegistry(connector.NewHTTPClient(httpCfg))

	// Инициализация сервисов
	platformService := service.NewPlatformService(platformRepo)

	connectionService := service.NewConnectionService(
		platformRepo,
		connectionRepo,
		accountRepo,
		credVault,
		registry,
		cfg.Sync.FreshnessWindow,
	)

	syncService := service.NewSyncService(
		connectionRepo,
		platformRepo,
		accountRepo,
		tradeRepo,
		credVault,
		registry,
		cfg.Sync.SweepWorkers,
	)
	connectionService.SetSyncService(syncService)

	// Реестр площадок обязан быть заполнен до приема трафика
	if err := platformService.EnsureSeeded(); err != nil {
		log.Fatalw("failed to seed platform registry", "error", err)
	}

	// WebSocket hub для push-обновлений
	hub := websocket.NewHub()
	go hub.Run()
	syncService.SetWebSocketHub(hub)

	// Фоновый обход всех подключенных аккаунтов
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go runSweeper(sweepCtx, syncService, cfg.Sync.SweepInterval)

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		PlatformService:   platformService,
		ConnectionService: connectionService,
		SyncService:       syncService,
		Hub:               hub,
	}

	router := api.SetupRoutes(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		log.Infow("starting server", "addr", server.Addr, "https", cfg.Server.UseHTTPS)
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalw("server failed", "error", err)
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalw("server failed", "error", err)
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server")

	stopSweep()
	hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Infow("server exited")
}

// runSweeper периодически синхронизирует все активные подключения
func runSweeper(ctx context.Context, syncService *service.SyncService, interval time.Duration) {
	log := utils.L().WithComponent("sweeper").Sugar()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			results := syncService.SyncSweep(ctx)

			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
				}
			}
			log.Infow("sweep completed", "connections", len(results), "failed", failed)
		}
	}
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
