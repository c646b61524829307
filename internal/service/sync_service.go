package service

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"brokerlink/internal/connector"
	"brokerlink/internal/models"
	"brokerlink/pkg/utils"
	"brokerlink/pkg/vault"
)

// SweepResult - исход синхронизации одного подключения в рамках обхода.
// Обход никогда не возвращает одну агрегированную ошибку: сбой одного
// подключения не касается остальных.
type SweepResult struct {
	ConnectionID int
	Err          error
}

// SyncService - синхронизация аккаунтов и сделок с площадками
type SyncService struct {
	connectionRepo ConnectionRepositoryInterface
	platformRepo   PlatformRepositoryInterface
	accountRepo    AccountRepositoryInterface
	tradeRepo      TradeRepositoryInterface
	credVault      vault.Vault
	registry       ConnectorRegistryInterface

	// Параллелизм фонового обхода
	sweepWorkers int

	// Схлопывание конкурентных синхронизаций одного подключения
	syncGroup singleflight.Group
	// Отдельная группа для refresh токенов: два конкурентных вызова
	// дают ровно один запрос к token endpoint
	refreshGroup singleflight.Group

	// WebSocket hub для push-обновлений (может отсутствовать)
	wsHub UpdateBroadcaster
}

// NewSyncService создает новый экземпляр сервиса
func NewSyncService(
	connectionRepo ConnectionRepositoryInterface,
	platformRepo PlatformRepositoryInterface,
	accountRepo AccountRepositoryInterface,
	tradeRepo TradeRepositoryInterface,
	credVault vault.Vault,
	registry ConnectorRegistryInterface,
	sweepWorkers int,
) *SyncService {
	if sweepWorkers < 1 {
		sweepWorkers = 1
	}
	return &SyncService{
		connectionRepo: connectionRepo,
		platformRepo:   platformRepo,
		accountRepo:    accountRepo,
		tradeRepo:      tradeRepo,
		credVault:      credVault,
		registry:       registry,
		sweepWorkers:   sweepWorkers,
	}
}

// SetWebSocketHub устанавливает hub для push-обновлений
func (s *SyncService) SetWebSocketHub(hub UpdateBroadcaster) {
	s.wsHub = hub
}

// Sync синхронизирует одно подключение: аккаунт и сделки.
// Конкурентные вызовы для одного connection id схлопываются в один
// проход. При ошибке существующий снимок остается нетронутым, а текст
// ошибки записывается в last_sync_error.
func (s *SyncService) Sync(ctx context.Context, connectionID int) error {
	_, err, _ := s.syncGroup.Do(strconv.Itoa(connectionID), func() (interface{}, error) {
		return nil, s.doSync(ctx, connectionID)
	})
	return err
}

func (s *SyncService) doSync(ctx context.Context, connectionID int) error {
	conn, err := s.connectionRepo.GetByID(connectionID)
	if err != nil {
		return err
	}
	if !conn.Connected {
		return ErrConnectionInactive
	}

	platform, err := s.platformRepo.GetByID(conn.PlatformID)
	if err != nil {
		return err
	}

	log := utils.L().WithVenue(platform.Code).WithConnectionID(connectionID).Sugar()
	start := time.Now()

	if err := s.syncOnce(ctx, conn, platform); err != nil {
		SyncsTotal.WithLabelValues(platform.Code, "failure").Inc()
		log.Warnw("sync failed", "error", err)

		syncErr := &SyncError{ConnectionID: connectionID, Venue: platform.Code, Cause: err}
		if storeErr := s.connectionRepo.UpdateSyncStatus(connectionID, nil, syncErr.Error()); storeErr != nil {
			log.Errorw("failed to record sync error", "error", storeErr)
		}
		if s.wsHub != nil {
			s.wsHub.BroadcastSyncResult(connectionID, platform.Code, false, syncErr.Error())
		}
		return syncErr
	}

	now := time.Now()
	if err := s.connectionRepo.UpdateSyncStatus(connectionID, &now, ""); err != nil {
		log.Errorw("failed to record sync success", "error", err)
	}

	SyncsTotal.WithLabelValues(platform.Code, "success").Inc()
	SyncDuration.WithLabelValues(platform.Code).Observe(time.Since(start).Seconds())
	log.Debugw("sync completed", "duration", time.Since(start))

	if s.wsHub != nil {
		s.wsHub.BroadcastSyncResult(connectionID, platform.Code, true, "")
	}

	return nil
}

// syncOnce выполняет один проход: сессия → аккаунт → сделки
func (s *SyncService) syncOnce(ctx context.Context, conn *models.UserPlatformConnection, platform *models.Platform) error {
	venueConn, err := s.registry.ForType(platform.Type)
	if err != nil {
		return err
	}

	session, err := s.ensureSession(ctx, conn, platform, venueConn)
	if err != nil {
		return err
	}

	accountInfo, err := venueConn.FetchAccount(ctx, platform, session)
	if err != nil {
		return err
	}

	account := &models.TradingPlatformAccount{
		ConnectionID:  conn.ID,
		AccountNumber: accountInfo.AccountNumber,
		AccountName:   accountInfo.AccountName,
		AccountType:   accountInfo.AccountType,
		Currency:      accountInfo.Currency,
		Balance:       accountInfo.Balance,
		Equity:        accountInfo.Equity,
		MarginUsed:    accountInfo.MarginUsed,
		FreeMargin:    accountInfo.FreeMargin,
		LastUpdated:   time.Now(),
	}
	if err := s.accountRepo.Upsert(account); err != nil {
		return err
	}

	tradeInfos, err := venueConn.FetchTrades(ctx, platform, session)
	if err != nil {
		return err
	}

	trades := make([]*models.PlatformTrade, 0, len(tradeInfos))
	for _, info := range tradeInfos {
		trades = append(trades, &models.PlatformTrade{
			ConnectionID:    conn.ID,
			PlatformTradeID: info.TradeID,
			Symbol:          info.Symbol,
			Side:            info.Side,
			Volume:          info.Volume,
			OpenPrice:       info.OpenPrice,
			ClosePrice:      info.ClosePrice,
			Profit:          info.Profit,
			Status:          info.Status,
			OpenedAt:        info.OpenedAt,
			ClosedAt:        info.ClosedAt,
		})
	}
	if err := s.tradeRepo.UpsertBatch(conn.ID, trades); err != nil {
		return err
	}

	if s.wsHub != nil {
		s.wsHub.BroadcastAccountUpdate(conn.ID, account)
	}

	return nil
}

// ensureSession восстанавливает сессию из строки подключения и при
// необходимости обновляет или пересоздает ее
func (s *SyncService) ensureSession(ctx context.Context, conn *models.UserPlatformConnection, platform *models.Platform, venueConn connector.Connector) (*connector.Session, error) {
	session, err := unmarshalSessionState(conn)
	if err != nil {
		return nil, err
	}

	// Сессии нет вовсе - аутентифицируемся заново по реквизитам из vault
	if session.AccessToken == "" && session.SessionID == "" {
		return s.reauthenticate(ctx, conn, platform, venueConn)
	}

	// Коннектор умеет refresh и токен скоро истечет
	if refresher, ok := venueConn.(connector.TokenRefresher); ok && refresher.NeedsRefresh(session) {
		return s.refreshSession(ctx, conn, platform, refresher, session)
	}

	// Истекшая сессия без refresh равносильна отсутствующей:
	// пересоздаем по реквизитам из vault вместо гарантированного 401
	if sessionExpired(session) {
		return s.reauthenticate(ctx, conn, platform, venueConn)
	}

	return session, nil
}

// sessionExpired сообщает, истек ли срок действия сессии площадки
func sessionExpired(session *connector.Session) bool {
	return !session.ExpiresAt.IsZero() && !time.Now().Before(session.ExpiresAt)
}

// refreshSession обновляет OAuth2 токен. Конкурентные вызовы для одного
// подключения схлопываются: token endpoint видит ровно один запрос.
func (s *SyncService) refreshSession(ctx context.Context, conn *models.UserPlatformConnection, platform *models.Platform, refresher connector.TokenRefresher, session *connector.Session) (*connector.Session, error) {
	result, err, _ := s.refreshGroup.Do(strconv.Itoa(conn.ID), func() (interface{}, error) {
		refreshed, err := refresher.RefreshSession(ctx, platform, session)
		if err != nil {
			TokenRefreshes.WithLabelValues(platform.Code, "failure").Inc()
			return nil, err
		}
		TokenRefreshes.WithLabelValues(platform.Code, "success").Inc()

		var expiresAt *time.Time
		if !refreshed.ExpiresAt.IsZero() {
			t := refreshed.ExpiresAt
			expiresAt = &t
		}
		if err := s.connectionRepo.UpdateTokens(conn.ID, refreshed.AccessToken, refreshed.RefreshToken, expiresAt); err != nil {
			return nil, err
		}

		return refreshed, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*connector.Session), nil
}

// reauthenticate восстанавливает сессию по реквизитам из vault
func (s *SyncService) reauthenticate(ctx context.Context, conn *models.UserPlatformConnection, platform *models.Platform, venueConn connector.Connector) (*connector.Session, error) {
	secret, err := s.credVault.Resolve(conn.CredentialHandle)
	if err != nil {
		return nil, err
	}

	var creds connector.Credentials
	if err := json.Unmarshal([]byte(secret), &creds); err != nil {
		return nil, err
	}

	session, err := venueConn.Authenticate(ctx, platform, creds)
	if err != nil {
		return nil, err
	}

	metadata, err := marshalSessionState(session)
	if err != nil {
		return nil, err
	}

	var expiresAt *time.Time
	if !session.ExpiresAt.IsZero() {
		t := session.ExpiresAt
		expiresAt = &t
	}
	if err := s.connectionRepo.UpdateSessionState(conn.ID, session.AccessToken, session.RefreshToken, expiresAt, metadata); err != nil {
		return nil, err
	}

	return session, nil
}

// SyncSweep обходит все активные подключения ограниченным пулом воркеров.
// Возвращает результат по каждому подключению; сбои изолированы.
func (s *SyncService) SyncSweep(ctx context.Context) []SweepResult {
	connections, err := s.connectionRepo.GetConnected()
	if err != nil {
		utils.L().Sugar().Errorw("sweep aborted: cannot list connections", "error", err)
		return nil
	}
	if len(connections) == 0 {
		return nil
	}

	results := make([]SweepResult, len(connections))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.sweepWorkers)

	for i, conn := range connections {
		i, id := i, conn.ID
		g.Go(func() error {
			results[i] = SweepResult{ConnectionID: id, Err: s.Sync(gctx, id)}
			return nil
		})
	}

	// Воркеры не возвращают ошибок, Wait нужен только как барьер
	_ = g.Wait()

	return results
}
