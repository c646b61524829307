package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"brokerlink/internal/models"
	"brokerlink/internal/repository"
	"brokerlink/internal/service"
)

// ErrMockDatabase имитирует ошибку хранилища
var ErrMockDatabase = errors.New("mock database error")

// ============ Mock Platform Service ============

// MockPlatformService мок для PlatformServiceInterface
type MockPlatformService struct {
	platforms []*models.Platform
	listErr   error
	mu        sync.RWMutex
}

// NewMockPlatformService создает новый мок сервиса площадок
func NewMockPlatformService() *MockPlatformService {
	return &MockPlatformService{}
}

// AddPlatform добавляет площадку в мок-реестр
func (m *MockPlatformService) AddPlatform(platform *models.Platform) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.platforms = append(m.platforms, platform)
}

func (m *MockPlatformService) EnsureSeeded() error {
	return nil
}

func (m *MockPlatformService) ListPlatforms() ([]*models.Platform, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.listErr != nil {
		return nil, m.listErr
	}

	result := make([]*models.Platform, len(m.platforms))
	copy(result, m.platforms)
	return result, nil
}

func (m *MockPlatformService) GetPlatform(code string) (*models.Platform, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.listErr != nil {
		return nil, m.listErr
	}

	for _, p := range m.platforms {
		if p.Code == code {
			return p, nil
		}
	}
	return nil, service.ErrPlatformUnknown
}

// ============ Mock Connection Service ============

// MockConnectionService мок для ConnectionServiceInterface
type MockConnectionService struct {
	connections   map[int]*models.UserPlatformConnection
	details       map[int][]*models.ConnectionDetails
	connectErr    error
	disconnectErr error
	listErr       error
	nextID        int
	mu            sync.RWMutex
}

// NewMockConnectionService создает новый мок сервиса подключений
func NewMockConnectionService() *MockConnectionService {
	return &MockConnectionService{
		connections: make(map[int]*models.UserPlatformConnection),
		details:     make(map[int][]*models.ConnectionDetails),
		nextID:      1,
	}
}

// AddDetails подставляет готовый ответ для ListConnections
func (m *MockConnectionService) AddDetails(userID int, detail *models.ConnectionDetails) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[userID] = append(m.details[userID], detail)
}

func (m *MockConnectionService) Connect(ctx context.Context, req *service.ConnectRequest) (*models.UserPlatformConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connectErr != nil {
		return nil, m.connectErr
	}

	conn := &models.UserPlatformConnection{
		ID:         m.nextID,
		UserID:     req.UserID,
		PlatformID: req.PlatformID,
		Connected:  true,
		CreatedAt:  time.Now(),
	}
	m.nextID++
	m.connections[conn.ID] = conn
	return conn, nil
}

func (m *MockConnectionService) Disconnect(ctx context.Context, userID, connectionID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disconnectErr != nil {
		return m.disconnectErr
	}

	conn, ok := m.connections[connectionID]
	if !ok {
		return repository.ErrConnectionNotFound
	}
	if !conn.Connected {
		return service.ErrConnectionInactive
	}
	if conn.UserID != userID {
		return service.ErrConnectionNotOwned
	}
	conn.Connected = false
	return nil
}

func (m *MockConnectionService) ListConnections(userID int) ([]*models.ConnectionDetails, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.listErr != nil {
		return nil, m.listErr
	}

	result := make([]*models.ConnectionDetails, 0, len(m.details[userID]))
	result = append(result, m.details[userID]...)
	return result, nil
}

// ============ Mock Sync Service ============

// MockSyncService мок для SyncServiceInterface
type MockSyncService struct {
	syncErr   error
	syncCalls int
	lastID    int
	mu        sync.Mutex
}

// NewMockSyncService создает новый мок сервиса синхронизации
func NewMockSyncService() *MockSyncService {
	return &MockSyncService{}
}

func (m *MockSyncService) Sync(ctx context.Context, connectionID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.syncCalls++
	m.lastID = connectionID
	return m.syncErr
}

func (m *MockSyncService) SyncSweep(ctx context.Context) []service.SweepResult {
	return nil
}
