package models

import "time"

// Типы торговых аккаунтов
const (
	AccountTypeDemo = "demo"
	AccountTypeLive = "live"
	AccountTypeProp = "prop"
)

// TradingPlatformAccount - нормализованное зеркало удаленного аккаунта.
//
// Это снимок, а не журнал: одна строка на подключение, перезаписывается
// при каждой синхронизации. При ошибке синхронизации последний удачный
// снимок остается нетронутым (никогда не обнуляется).
type TradingPlatformAccount struct {
	ID            int       `json:"id" db:"id"`
	ConnectionID  int       `json:"connection_id" db:"connection_id"`
	AccountNumber string    `json:"account_number" db:"account_number"`
	AccountName   string    `json:"account_name" db:"account_name"`
	AccountType   string    `json:"account_type" db:"account_type"` // demo, live, prop
	Currency      string    `json:"currency" db:"currency"`
	Balance       float64   `json:"balance" db:"balance"`
	Equity        float64   `json:"equity" db:"equity"`
	MarginUsed    float64   `json:"margin_used" db:"margin_used"`
	FreeMargin    float64   `json:"free_margin" db:"free_margin"`
	LastUpdated   time.Time `json:"last_updated" db:"last_updated"`
}
