// Package connector предоставляет унифицированный интерфейс для работы
// с торговыми площадками.
//
// Один коннектор на тип аутентификации: session_login, api_key, oauth2,
// session_id. Каждый коннектор переводит единый контракт
// Authenticate/FetchAccount/FetchTrades в протокол конкретной площадки
// и нормализует ее представление аккаунта и сделок в единую схему.
package connector

import (
	"context"
	"fmt"
	"time"

	"brokerlink/internal/models"
)

// Connector определяет набор возможностей адаптера площадки.
// Реализации не обращаются к Vault и не видят handle: сюда приходят
// уже расшифрованные credentials.
type Connector interface {
	// Type возвращает тип аутентификации, который обслуживает коннектор
	Type() string

	// Authenticate выполняет вход на площадку и возвращает сессию
	Authenticate(ctx context.Context, platform *models.Platform, creds Credentials) (*Session, error)

	// FetchAccount получает состояние аккаунта в нормализованном виде
	FetchAccount(ctx context.Context, platform *models.Platform, session *Session) (*AccountInfo, error)

	// FetchTrades получает сделки аккаунта в нормализованном виде
	FetchTrades(ctx context.Context, platform *models.Platform, session *Session) ([]*TradeInfo, error)
}

// TokenRefresher - дополнительная возможность коннекторов с истекающими
// токенами (oauth2). Вызывается синхронизатором под per-connection
// single-flight, чтобы два конкурентных вызова не сделали два refresh.
type TokenRefresher interface {
	// NeedsRefresh сообщает, пора ли обновлять токен сессии
	NeedsRefresh(session *Session) bool

	// RefreshSession обменивает refresh-токен на новую сессию
	RefreshSession(ctx context.Context, platform *models.Platform, session *Session) (*Session, error)
}

// Credentials - сырые учетные данные площадки.
// Состав полей зависит от типа площадки; неиспользуемые остаются пустыми.
type Credentials struct {
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	Server    string `json:"server,omitempty"`     // session_id
	APIKey    string `json:"api_key,omitempty"`    // api_key
	APISecret string `json:"api_secret,omitempty"` // api_key
	Demo      bool   `json:"demo,omitempty"`       // session_login
}

// Session - результат аутентификации, сохраняется в строке подключения
type Session struct {
	AccessToken  string            `json:"access_token,omitempty"`
	RefreshToken string            `json:"refresh_token,omitempty"` // только oauth2
	ExpiresAt    time.Time         `json:"expires_at,omitempty"`    // zero = бессрочная
	SessionID    string            `json:"session_id,omitempty"`    // только session_id
	Metadata     map[string]string `json:"metadata,omitempty"`      // venue-специфика
}

// AccountInfo - нормализованное состояние аккаунта.
// Каждый коннектор обязан привести свой ответ к этой форме независимо
// от имен полей и единиц удаленного API.
type AccountInfo struct {
	AccountNumber string  `json:"account_number"`
	AccountName   string  `json:"account_name"`
	AccountType   string  `json:"account_type"` // demo, live, prop
	Currency      string  `json:"currency"`
	Balance       float64 `json:"balance"`
	Equity        float64 `json:"equity"`
	MarginUsed    float64 `json:"margin_used"`
	FreeMargin    float64 `json:"free_margin"`
}

// TradeInfo - нормализованная сделка
type TradeInfo struct {
	TradeID    string     `json:"trade_id"` // идентификатор на площадке
	Symbol     string     `json:"symbol"`
	Side       string     `json:"side"` // buy или sell
	Volume     float64    `json:"volume"`
	OpenPrice  float64    `json:"open_price"`
	ClosePrice float64    `json:"close_price"`
	Profit     float64    `json:"profit"`
	Status     string     `json:"status"` // open или closed
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

// Phase - фаза вызова коннектора, в которой произошла ошибка
type Phase string

// Фазы вызовов коннектора
const (
	PhaseAuth         Phase = "auth"
	PhaseFetchAccount Phase = "fetchAccount"
	PhaseFetchTrades  Phase = "fetchTrades"
)

// ConnectorError - типизированная ошибка коннектора.
// Любой неуспешный ответ или сетевая ошибка (включая таймаут) оборачивается
// сюда с контекстом площадки и фазы; частичные данные никогда не возвращаются.
type ConnectorError struct {
	Venue string
	Phase Phase
	Cause error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Venue, e.Phase, e.Cause)
}

// Unwrap возвращает причину для поддержки errors.Is() и errors.As()
func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

// newError создает ConnectorError для площадки и фазы
func newError(venue string, phase Phase, cause error) *ConnectorError {
	return &ConnectorError{Venue: venue, Phase: phase, Cause: cause}
}
