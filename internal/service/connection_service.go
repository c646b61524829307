package service

import (
	"context"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"

	"brokerlink/internal/connector"
	"brokerlink/internal/models"
	"brokerlink/internal/repository"
	"brokerlink/pkg/utils"
	"brokerlink/pkg/vault"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ConnectRequest - запрос на подключение пользователя к площадке
type ConnectRequest struct {
	UserID      int
	PlatformID  int
	Credentials connector.Credentials
}

// sessionState - сериализованное состояние сессии площадки,
// хранится в колонке session_metadata
type sessionState struct {
	SessionID string            `json:"session_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ConnectionService - управление подключениями пользователей к площадкам
type ConnectionService struct {
	platformRepo   PlatformRepositoryInterface
	connectionRepo ConnectionRepositoryInterface
	accountRepo    AccountRepositoryInterface
	credVault      vault.Vault
	registry       ConnectorRegistryInterface

	// Окно свежести для вычисления stale_since
	freshnessWindow time.Duration

	// Синхронизатор для немедленной синхронизации после подключения.
	// Устанавливается сеттером после сборки графа сервисов в main.go.
	syncer SyncServiceInterface
}

// NewConnectionService создает новый экземпляр сервиса
func NewConnectionService(
	platformRepo PlatformRepositoryInterface,
	connectionRepo ConnectionRepositoryInterface,
	accountRepo AccountRepositoryInterface,
	credVault vault.Vault,
	registry ConnectorRegistryInterface,
	freshnessWindow time.Duration,
) *ConnectionService {
	return &ConnectionService{
		platformRepo:    platformRepo,
		connectionRepo:  connectionRepo,
		accountRepo:     accountRepo,
		credVault:       credVault,
		registry:        registry,
		freshnessWindow: freshnessWindow,
	}
}

// SetSyncService устанавливает синхронизатор для немедленной синхронизации
func (s *ConnectionService) SetSyncService(syncer SyncServiceInterface) {
	s.syncer = syncer
}

// Connect подключает пользователя к площадке.
// Выполняет:
// 1. Поиск дескриптора площадки и выбор коннектора по типу
// 2. Проверочную аутентификацию на площадке
// 3. Сохранение реквизитов в vault (в строку попадает только handle)
// 4. Создание записи подключения либо реактивацию отключенной
// 5. Немедленную синхронизацию (best effort)
//
// Если площадка отвергла реквизиты, запись не создается.
func (s *ConnectionService) Connect(ctx context.Context, req *ConnectRequest) (*models.UserPlatformConnection, error) {
	platform, err := s.platformRepo.GetByID(req.PlatformID)
	if err != nil {
		if errors.Is(err, repository.ErrPlatformNotFound) {
			return nil, ErrPlatformUnknown
		}
		return nil, err
	}

	log := utils.L().WithVenue(platform.Code).Sugar()

	conn, err := s.registry.ForType(platform.Type)
	if err != nil {
		return nil, err
	}

	session, err := conn.Authenticate(ctx, platform, req.Credentials)
	if err != nil {
		ConnectAttempts.WithLabelValues(platform.Code, "rejected").Inc()
		log.Warnw("authentication rejected", "user_id", req.UserID, "error", err)
		return nil, errors.Join(ErrAuthenticationFailed, err)
	}

	// Сырые реквизиты уходят в vault целиком, строка подключения
	// хранит только непрозрачный handle
	secretJSON, err := json.Marshal(req.Credentials)
	if err != nil {
		return nil, err
	}

	handle, err := s.credVault.Store(req.UserID, req.PlatformID, string(secretJSON))
	if err != nil {
		return nil, err
	}

	metadataJSON, err := marshalSessionState(session)
	if err != nil {
		return nil, err
	}

	row := &models.UserPlatformConnection{
		UserID:           req.UserID,
		PlatformID:       req.PlatformID,
		CredentialHandle: handle,
		AccessToken:      session.AccessToken,
		RefreshToken:     session.RefreshToken,
		SessionMetadata:  metadataJSON,
		Connected:        true,
	}
	if !session.ExpiresAt.IsZero() {
		expiresAt := session.ExpiresAt
		row.TokenExpiresAt = &expiresAt
	}

	existing, err := s.connectionRepo.GetByUserAndPlatform(req.UserID, req.PlatformID)
	switch {
	case err == nil:
		// Повторное подключение: реактивируем строку, история
		// аккаунта и сделок остается за тем же id
		row.ID = existing.ID
		if err := s.connectionRepo.Reactivate(row); err != nil {
			return nil, err
		}
	case errors.Is(err, repository.ErrConnectionNotFound):
		if err := s.connectionRepo.Create(row); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	ConnectAttempts.WithLabelValues(platform.Code, "success").Inc()
	s.refreshActiveGauge()
	log.Infow("connection established", "user_id", req.UserID, "connection_id", row.ID)

	// Немедленная синхронизация: неудача не отменяет подключение,
	// фоновый обход доберет данные позже
	if s.syncer != nil {
		if err := s.syncer.Sync(ctx, row.ID); err != nil {
			log.Warnw("initial sync failed", "connection_id", row.ID, "error", err)
		}
	}

	return row, nil
}

// Disconnect отключает подключение пользователя (soft delete).
// Снимок аккаунта и зеркало сделок сохраняются.
func (s *ConnectionService) Disconnect(ctx context.Context, userID, connectionID int) error {
	conn, err := s.connectionRepo.GetByID(connectionID)
	if err != nil {
		return err
	}

	if conn.UserID != userID {
		return ErrConnectionNotOwned
	}
	if !conn.Connected {
		return ErrConnectionInactive
	}

	if err := s.connectionRepo.SetDisconnected(connectionID); err != nil {
		return err
	}

	venue := "unknown"
	if platform, err := s.platformRepo.GetByID(conn.PlatformID); err == nil {
		venue = platform.Code
	}
	Disconnects.WithLabelValues(venue).Inc()
	s.refreshActiveGauge()

	utils.L().Sugar().Infow("connection closed",
		"user_id", userID, "connection_id", connectionID, "venue", venue)

	return nil
}

// ListConnections возвращает подключения пользователя с дескрипторами
// площадок и снимками аккаунтов
func (s *ConnectionService) ListConnections(userID int) ([]*models.ConnectionDetails, error) {
	var connections []*models.UserPlatformConnection
	err := withRetry("list connections", func() error {
		var err error
		connections, err = s.connectionRepo.GetByUser(userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	platforms, err := s.platformRepo.GetAll()
	if err != nil {
		return nil, err
	}
	platformByID := make(map[int]*models.Platform, len(platforms))
	for _, platform := range platforms {
		platformByID[platform.ID] = platform
	}

	connectionIDs := make([]int, 0, len(connections))
	for _, conn := range connections {
		connectionIDs = append(connectionIDs, conn.ID)
	}

	accounts, err := s.accountRepo.GetByConnections(connectionIDs)
	if err != nil {
		return nil, err
	}

	details := make([]*models.ConnectionDetails, 0, len(connections))
	for _, conn := range connections {
		platform := platformByID[conn.PlatformID]
		if platform == nil {
			continue
		}

		details = append(details, &models.ConnectionDetails{
			Connection: conn,
			Platform:   platform,
			Account:    accounts[conn.ID],
			StaleSince: s.staleSince(conn),
		})
	}

	return details, nil
}

// staleSince вычисляет момент, с которого данные подключения считаются
// устаревшими: последняя синхронизация провалилась либо старше окна свежести
func (s *ConnectionService) staleSince(conn *models.UserPlatformConnection) *time.Time {
	if !conn.Connected {
		return nil
	}

	if conn.LastSyncError != "" {
		if conn.LastSyncAt != nil {
			return conn.LastSyncAt
		}
		createdAt := conn.CreatedAt
		return &createdAt
	}

	if conn.LastSyncAt == nil {
		if time.Since(conn.CreatedAt) > s.freshnessWindow {
			createdAt := conn.CreatedAt
			return &createdAt
		}
		return nil
	}

	if time.Since(*conn.LastSyncAt) > s.freshnessWindow {
		return conn.LastSyncAt
	}

	return nil
}

func (s *ConnectionService) refreshActiveGauge() {
	if count, err := s.connectionRepo.CountConnected(); err == nil {
		ActiveConnections.Set(float64(count))
	}
}

// marshalSessionState сериализует непереносимую часть сессии площадки
func marshalSessionState(session *connector.Session) (string, error) {
	if session.SessionID == "" && len(session.Metadata) == 0 {
		return "", nil
	}

	data, err := json.Marshal(sessionState{
		SessionID: session.SessionID,
		Metadata:  session.Metadata,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalSessionState восстанавливает сессию из строки подключения
func unmarshalSessionState(conn *models.UserPlatformConnection) (*connector.Session, error) {
	session := &connector.Session{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
	}
	if conn.TokenExpiresAt != nil {
		session.ExpiresAt = *conn.TokenExpiresAt
	}

	if conn.SessionMetadata != "" {
		var state sessionState
		if err := json.Unmarshal([]byte(conn.SessionMetadata), &state); err != nil {
			return nil, err
		}
		session.SessionID = state.SessionID
		session.Metadata = state.Metadata
	}

	return session, nil
}
