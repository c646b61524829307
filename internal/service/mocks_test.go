package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"brokerlink/internal/connector"
	"brokerlink/internal/models"
	"brokerlink/internal/repository"
)

// ============ Mock PlatformRepository ============

type MockPlatformRepository struct {
	platforms map[int]*models.Platform
	createErr error
	getErr    error
	existsErr error
	nextID    int
}

func NewMockPlatformRepository() *MockPlatformRepository {
	return &MockPlatformRepository{
		platforms: make(map[int]*models.Platform),
		nextID:    1,
	}
}

func (m *MockPlatformRepository) Create(platform *models.Platform) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.platforms {
		if existing.Code == platform.Code {
			return repository.ErrPlatformExists
		}
	}
	platform.ID = m.nextID
	m.nextID++
	platform.CreatedAt = time.Now()
	platform.UpdatedAt = platform.CreatedAt
	m.platforms[platform.ID] = platform
	return nil
}

func (m *MockPlatformRepository) GetByID(id int) (*models.Platform, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if platform, exists := m.platforms[id]; exists {
		return platform, nil
	}
	return nil, repository.ErrPlatformNotFound
}

func (m *MockPlatformRepository) GetByCode(code string) (*models.Platform, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, platform := range m.platforms {
		if platform.Code == code {
			return platform, nil
		}
	}
	return nil, repository.ErrPlatformNotFound
}

func (m *MockPlatformRepository) GetAll() ([]*models.Platform, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.Platform, 0, len(m.platforms))
	for _, platform := range m.platforms {
		result = append(result, platform)
	}
	return result, nil
}

func (m *MockPlatformRepository) ExistsByCode(code string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	for _, platform := range m.platforms {
		if platform.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockPlatformRepository) Count() (int, error) {
	return len(m.platforms), nil
}

// ============ Mock ConnectionRepository ============

type MockConnectionRepository struct {
	mu          sync.Mutex
	connections map[int]*models.UserPlatformConnection
	createErr   error
	getErr      error
	updateErr   error
	nextID      int
}

func NewMockConnectionRepository() *MockConnectionRepository {
	return &MockConnectionRepository{
		connections: make(map[int]*models.UserPlatformConnection),
		nextID:      1,
	}
}

func (m *MockConnectionRepository) Create(conn *models.UserPlatformConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.connections {
		if existing.UserID == conn.UserID && existing.PlatformID == conn.PlatformID {
			return repository.ErrConnectionExists
		}
	}
	conn.ID = m.nextID
	m.nextID++
	conn.CreatedAt = time.Now()
	conn.UpdatedAt = conn.CreatedAt
	stored := *conn
	m.connections[conn.ID] = &stored
	return nil
}

func (m *MockConnectionRepository) GetByID(id int) (*models.UserPlatformConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if conn, exists := m.connections[id]; exists {
		copied := *conn
		return &copied, nil
	}
	return nil, repository.ErrConnectionNotFound
}

func (m *MockConnectionRepository) GetByUserAndPlatform(userID, platformID int) (*models.UserPlatformConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, conn := range m.connections {
		if conn.UserID == userID && conn.PlatformID == platformID {
			copied := *conn
			return &copied, nil
		}
	}
	return nil, repository.ErrConnectionNotFound
}

func (m *MockConnectionRepository) GetByUser(userID int) ([]*models.UserPlatformConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.UserPlatformConnection
	for _, conn := range m.connections {
		if conn.UserID == userID {
			copied := *conn
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *MockConnectionRepository) GetConnected() ([]*models.UserPlatformConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.UserPlatformConnection
	for _, conn := range m.connections {
		if conn.Connected {
			copied := *conn
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *MockConnectionRepository) Reactivate(conn *models.UserPlatformConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, exists := m.connections[conn.ID]
	if !exists {
		return repository.ErrConnectionNotFound
	}
	stored.CredentialHandle = conn.CredentialHandle
	stored.AccessToken = conn.AccessToken
	stored.RefreshToken = conn.RefreshToken
	stored.TokenExpiresAt = conn.TokenExpiresAt
	stored.SessionMetadata = conn.SessionMetadata
	stored.Connected = true
	stored.LastSyncError = ""
	stored.UpdatedAt = time.Now()
	conn.Connected = true
	return nil
}

func (m *MockConnectionRepository) SetDisconnected(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	conn, exists := m.connections[id]
	if !exists {
		return repository.ErrConnectionNotFound
	}
	conn.Connected = false
	conn.CredentialHandle = ""
	conn.AccessToken = ""
	conn.RefreshToken = ""
	conn.TokenExpiresAt = nil
	conn.SessionMetadata = ""
	return nil
}

func (m *MockConnectionRepository) UpdateTokens(id int, accessToken, refreshToken string, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	conn, exists := m.connections[id]
	if !exists {
		return repository.ErrConnectionNotFound
	}
	conn.AccessToken = accessToken
	conn.RefreshToken = refreshToken
	conn.TokenExpiresAt = expiresAt
	return nil
}

func (m *MockConnectionRepository) UpdateSessionState(id int, accessToken, refreshToken string, expiresAt *time.Time, metadata string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	conn, exists := m.connections[id]
	if !exists {
		return repository.ErrConnectionNotFound
	}
	conn.AccessToken = accessToken
	conn.RefreshToken = refreshToken
	conn.TokenExpiresAt = expiresAt
	conn.SessionMetadata = metadata
	return nil
}

func (m *MockConnectionRepository) UpdateSyncStatus(id int, syncedAt *time.Time, syncErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	conn, exists := m.connections[id]
	if !exists {
		return repository.ErrConnectionNotFound
	}
	if syncErr == "" {
		conn.LastSyncAt = syncedAt
		conn.LastSyncError = ""
	} else {
		conn.LastSyncError = syncErr
	}
	return nil
}

func (m *MockConnectionRepository) CountConnected() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, conn := range m.connections {
		if conn.Connected {
			count++
		}
	}
	return count, nil
}

// ============ Mock AccountRepository ============

type MockAccountRepository struct {
	mu        sync.Mutex
	accounts  map[int]*models.TradingPlatformAccount
	upsertErr error
	nextID    int
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		accounts: make(map[int]*models.TradingPlatformAccount),
		nextID:   1,
	}
}

func (m *MockAccountRepository) Upsert(account *models.TradingPlatformAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if existing, exists := m.accounts[account.ConnectionID]; exists {
		account.ID = existing.ID
	} else {
		account.ID = m.nextID
		m.nextID++
	}
	stored := *account
	m.accounts[account.ConnectionID] = &stored
	return nil
}

func (m *MockAccountRepository) GetByConnection(connectionID int) (*models.TradingPlatformAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account, exists := m.accounts[connectionID]; exists {
		copied := *account
		return &copied, nil
	}
	return nil, repository.ErrAccountNotFound
}

func (m *MockAccountRepository) GetByConnections(connectionIDs []int) (map[int]*models.TradingPlatformAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[int]*models.TradingPlatformAccount)
	for _, id := range connectionIDs {
		if account, exists := m.accounts[id]; exists {
			copied := *account
			result[id] = &copied
		}
	}
	return result, nil
}

// ============ Mock TradeRepository ============

type MockTradeRepository struct {
	mu        sync.Mutex
	trades    map[string]*models.PlatformTrade
	upsertErr error
	nextID    int
}

func NewMockTradeRepository() *MockTradeRepository {
	return &MockTradeRepository{
		trades: make(map[string]*models.PlatformTrade),
		nextID: 1,
	}
}

func tradeKey(connectionID int, platformTradeID string) string {
	return fmt.Sprintf("%d/%s", connectionID, platformTradeID)
}

func (m *MockTradeRepository) Upsert(trade *models.PlatformTrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertLocked(trade)
}

func (m *MockTradeRepository) UpsertBatch(connectionID int, trades []*models.PlatformTrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, trade := range trades {
		trade.ConnectionID = connectionID
		if err := m.upsertLocked(trade); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockTradeRepository) upsertLocked(trade *models.PlatformTrade) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	key := tradeKey(trade.ConnectionID, trade.PlatformTradeID)
	if existing, exists := m.trades[key]; exists {
		trade.ID = existing.ID
	} else {
		trade.ID = m.nextID
		m.nextID++
	}
	stored := *trade
	m.trades[key] = &stored
	return nil
}

func (m *MockTradeRepository) GetByConnection(connectionID int, limit int) ([]*models.PlatformTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.PlatformTrade
	for _, trade := range m.trades {
		if trade.ConnectionID == connectionID && len(result) < limit {
			copied := *trade
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *MockTradeRepository) CountByConnection(connectionID int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, trade := range m.trades {
		if trade.ConnectionID == connectionID {
			count++
		}
	}
	return count, nil
}

// ============ Mock Vault ============

type MockVault struct {
	mu       sync.Mutex
	secrets  map[string]string
	storeErr error
	nextID   int
}

func NewMockVault() *MockVault {
	return &MockVault{secrets: make(map[string]string), nextID: 1}
}

func (m *MockVault) Store(userID, platformID int, secret string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return "", m.storeErr
	}
	handle := fmt.Sprintf("v1:mock-%d", m.nextID)
	m.nextID++
	m.secrets[handle] = secret
	return handle, nil
}

func (m *MockVault) Resolve(handle string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	secret, exists := m.secrets[handle]
	if !exists {
		return "", fmt.Errorf("unknown handle %q", handle)
	}
	return secret, nil
}

// ============ Mock Connector ============

// MockConnector - программируемый коннектор площадки
type MockConnector struct {
	mu           sync.Mutex
	platformType string
	authErr      error
	accountErr   error
	tradesErr    error
	session      *connector.Session
	account      *connector.AccountInfo
	trades       []*connector.TradeInfo

	authCalls    int
	accountCalls int
	refreshCalls int

	// refresh поведение (для варианта с TokenRefresher)
	refreshable bool
	refreshErr  error
}

func NewMockConnector(platformType string) *MockConnector {
	return &MockConnector{
		platformType: platformType,
		session:      &connector.Session{AccessToken: "mock-token"},
		account: &connector.AccountInfo{
			AccountNumber: "A-1",
			AccountType:   models.AccountTypeDemo,
			Currency:      "USD",
			Balance:       10000,
			Equity:        10000,
			FreeMargin:    10000,
		},
	}
}

func (m *MockConnector) Type() string { return m.platformType }

func (m *MockConnector) Authenticate(ctx context.Context, platform *models.Platform, creds connector.Credentials) (*connector.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authCalls++
	if m.authErr != nil {
		return nil, m.authErr
	}
	copied := *m.session
	return &copied, nil
}

func (m *MockConnector) FetchAccount(ctx context.Context, platform *models.Platform, session *connector.Session) (*connector.AccountInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountCalls++
	if m.accountErr != nil {
		return nil, m.accountErr
	}
	copied := *m.account
	return &copied, nil
}

func (m *MockConnector) FetchTrades(ctx context.Context, platform *models.Platform, session *connector.Session) ([]*connector.TradeInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tradesErr != nil {
		return nil, m.tradesErr
	}
	return m.trades, nil
}

// ============ Mock Connector с поддержкой refresh ============

type MockRefreshableConnector struct {
	*MockConnector
}

func NewMockRefreshableConnector(platformType string) *MockRefreshableConnector {
	m := NewMockConnector(platformType)
	m.refreshable = true
	return &MockRefreshableConnector{MockConnector: m}
}

func (m *MockRefreshableConnector) NeedsRefresh(session *connector.Session) bool {
	if session.ExpiresAt.IsZero() {
		return false
	}
	return time.Until(session.ExpiresAt) < time.Minute
}

func (m *MockRefreshableConnector) RefreshSession(ctx context.Context, platform *models.Platform, session *connector.Session) (*connector.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshCalls++
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	// Имитация задержки token endpoint, чтобы конкурентные вызовы
	// реально накладывались друг на друга
	time.Sleep(20 * time.Millisecond)
	return &connector.Session{
		AccessToken:  "refreshed-token",
		RefreshToken: session.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

// ============ Mock Registry ============

type MockRegistry struct {
	connectors map[string]connector.Connector
}

func NewMockRegistry() *MockRegistry {
	return &MockRegistry{connectors: make(map[string]connector.Connector)}
}

func (m *MockRegistry) Register(c connector.Connector) {
	m.connectors[c.Type()] = c
}

func (m *MockRegistry) ForType(platformType string) (connector.Connector, error) {
	if c, exists := m.connectors[platformType]; exists {
		return c, nil
	}
	return nil, connector.ErrUnsupportedPlatformType
}

func (m *MockRegistry) SupportedTypes() []string {
	types := make([]string, 0, len(m.connectors))
	for t := range m.connectors {
		types = append(types, t)
	}
	return types
}

// ============ Mock Broadcaster ============

type MockBroadcaster struct {
	mu             sync.Mutex
	accountUpdates int
	syncResults    []bool
}

func (m *MockBroadcaster) BroadcastAccountUpdate(connectionID int, account *models.TradingPlatformAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountUpdates++
}

func (m *MockBroadcaster) BroadcastSyncResult(connectionID int, venue string, success bool, errMessage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncResults = append(m.syncResults, success)
}
