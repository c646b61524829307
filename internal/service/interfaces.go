package service

import (
	"context"
	"time"

	"brokerlink/internal/connector"
	"brokerlink/internal/models"
	"brokerlink/internal/repository"
)

// PlatformRepositoryInterface определяет интерфейс репозитория площадок
type PlatformRepositoryInterface interface {
	Create(platform *models.Platform) error
	GetByID(id int) (*models.Platform, error)
	GetByCode(code string) (*models.Platform, error)
	GetAll() ([]*models.Platform, error)
	ExistsByCode(code string) (bool, error)
	Count() (int, error)
}

// ConnectionRepositoryInterface определяет интерфейс репозитория подключений
type ConnectionRepositoryInterface interface {
	Create(conn *models.UserPlatformConnection) error
	GetByID(id int) (*models.UserPlatformConnection, error)
	GetByUserAndPlatform(userID, platformID int) (*models.UserPlatformConnection, error)
	GetByUser(userID int) ([]*models.UserPlatformConnection, error)
	GetConnected() ([]*models.UserPlatformConnection, error)
	Reactivate(conn *models.UserPlatformConnection) error
	SetDisconnected(id int) error
	UpdateTokens(id int, accessToken, refreshToken string, expiresAt *time.Time) error
	UpdateSessionState(id int, accessToken, refreshToken string, expiresAt *time.Time, metadata string) error
	UpdateSyncStatus(id int, syncedAt *time.Time, syncErr string) error
	CountConnected() (int, error)
}

// AccountRepositoryInterface определяет интерфейс репозитория торговых аккаунтов
type AccountRepositoryInterface interface {
	Upsert(account *models.TradingPlatformAccount) error
	GetByConnection(connectionID int) (*models.TradingPlatformAccount, error)
	GetByConnections(connectionIDs []int) (map[int]*models.TradingPlatformAccount, error)
}

// TradeRepositoryInterface определяет интерфейс репозитория сделок
type TradeRepositoryInterface interface {
	Upsert(trade *models.PlatformTrade) error
	UpsertBatch(connectionID int, trades []*models.PlatformTrade) error
	GetByConnection(connectionID int, limit int) ([]*models.PlatformTrade, error)
	CountByConnection(connectionID int) (int, error)
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ PlatformRepositoryInterface = (*repository.PlatformRepository)(nil)
var _ ConnectionRepositoryInterface = (*repository.ConnectionRepository)(nil)
var _ AccountRepositoryInterface = (*repository.AccountRepository)(nil)
var _ TradeRepositoryInterface = (*repository.TradeRepository)(nil)

// ConnectorRegistryInterface - выбор коннектора по типу площадки
type ConnectorRegistryInterface interface {
	ForType(platformType string) (connector.Connector, error)
	SupportedTypes() []string
}

var _ ConnectorRegistryInterface = (*connector.Registry)(nil)

// UpdateBroadcaster - интерфейс для push-уведомлений через WebSocket
type UpdateBroadcaster interface {
	BroadcastAccountUpdate(connectionID int, account *models.TradingPlatformAccount)
	BroadcastSyncResult(connectionID int, venue string, success bool, errMessage string)
}

// ============ Интерфейсы сервисов для Dependency Injection ============

// PlatformServiceInterface определяет интерфейс сервиса реестра площадок
type PlatformServiceInterface interface {
	EnsureSeeded() error
	ListPlatforms() ([]*models.Platform, error)
	GetPlatform(code string) (*models.Platform, error)
}

// ConnectionServiceInterface определяет интерфейс сервиса подключений
type ConnectionServiceInterface interface {
	Connect(ctx context.Context, req *ConnectRequest) (*models.UserPlatformConnection, error)
	Disconnect(ctx context.Context, userID, connectionID int) error
	ListConnections(userID int) ([]*models.ConnectionDetails, error)
}

// SyncServiceInterface определяет интерфейс сервиса синхронизации
type SyncServiceInterface interface {
	Sync(ctx context.Context, connectionID int) error
	SyncSweep(ctx context.Context) []SweepResult
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ PlatformServiceInterface = (*PlatformService)(nil)
var _ ConnectionServiceInterface = (*ConnectionService)(nil)
var _ SyncServiceInterface = (*SyncService)(nil)
