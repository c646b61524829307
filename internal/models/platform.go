package models

import "time"

// Типы аутентификации торговых площадок.
// Диспетчеризация коннекторов идет только по этому типу:
// новая площадка с уже известным типом не требует нового кода.
const (
	PlatformTypeSessionLogin = "session_login" // логин/пароль, bearer-токен сессии
	PlatformTypeAPIKey       = "api_key"       // пара key/secret, access-токен
	PlatformTypeOAuth2       = "oauth2"        // token endpoint, access+refresh+expiry
	PlatformTypeSessionID    = "session_id"    // логин/пароль/сервер, session id в заголовке
)

// Platform - неизменяемый дескриптор торговой площадки.
// Создается один раз при старте (seeding), обновляется только оператором,
// никогда не удаляется пока на него ссылается хотя бы одно подключение.
type Platform struct {
	ID                 int               `json:"id" db:"id"`
	Code               string            `json:"code" db:"code"` // tradelocker, matchtrader, ctrader, metatrader5
	Name               string            `json:"name" db:"name"`
	Type               string            `json:"type" db:"type"`
	APIBaseURL         string            `json:"api_base_url" db:"api_base_url"`
	WebTradingURL      string            `json:"web_trading_url" db:"web_trading_url"`
	SupportsAPI        bool              `json:"supports_api" db:"supports_api"`
	SupportsWebTrading bool              `json:"supports_web_trading" db:"supports_web_trading"`
	Config             map[string]string `json:"config,omitempty" db:"config"` // freeform, JSONB
	CreatedAt          time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at" db:"updated_at"`
}

// IsValidPlatformType проверяет, известен ли тип аутентификации
func IsValidPlatformType(t string) bool {
	switch t {
	case PlatformTypeSessionLogin, PlatformTypeAPIKey, PlatformTypeOAuth2, PlatformTypeSessionID:
		return true
	}
	return false
}
