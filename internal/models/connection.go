package models

import "time"

// UserPlatformConnection - авторизация одного пользователя на одной площадке.
//
// Сырые credentials здесь не хранятся никогда: только непрозрачный handle
// из Credential Vault. Отключение - soft delete (Connected=false), строка
// не удаляется, чтобы сохранить происхождение истории сделок.
type UserPlatformConnection struct {
	ID               int        `json:"id" db:"id"`
	UserID           int        `json:"user_id" db:"user_id"`
	PlatformID       int        `json:"platform_id" db:"platform_id"`
	CredentialHandle string     `json:"-" db:"credential_handle"` // handle из Vault, не возвращается в JSON
	AccessToken      string     `json:"-" db:"access_token"`      // токен сессии, не возвращается в JSON
	RefreshToken     string     `json:"-" db:"refresh_token"`     // только для oauth2
	TokenExpiresAt   *time.Time `json:"-" db:"token_expires_at"`  // только для oauth2
	SessionMetadata  string     `json:"-" db:"session_metadata"`  // venue-специфичный blob (JSON)
	Connected        bool       `json:"connected" db:"connected"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty" db:"last_sync_at"`
	LastSyncError    string     `json:"last_sync_error,omitempty" db:"last_sync_error"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// ConnectionDetails - строка read-side join для фасада:
// подключение + площадка + зеркало аккаунта.
type ConnectionDetails struct {
	Connection *UserPlatformConnection `json:"connection"`
	Platform   *Platform               `json:"platform"`
	Account    *TradingPlatformAccount `json:"account,omitempty"` // nil до первой успешной синхронизации

	// StaleSince выставляется, когда последняя синхронизация провалилась
	// или снимок старше окна свежести - UI показывает "stale since".
	StaleSince *time.Time `json:"stale_since,omitempty"`
}
