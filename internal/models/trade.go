package models

import "time"

// Стороны и статусы сделок
const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"

	TradeStatusOpen   = "open"
	TradeStatusClosed = "closed"
)

// PlatformTrade - одна удаленная сделка, отраженная локально.
//
// Ключ (ConnectionID, PlatformTradeID) уникален: повторная синхронизация
// обновляет существующую строку, а не плодит дубликаты.
type PlatformTrade struct {
	ID              int        `json:"id" db:"id"`
	ConnectionID    int        `json:"connection_id" db:"connection_id"`
	PlatformTradeID string     `json:"platform_trade_id" db:"platform_trade_id"` // идентификатор сделки на площадке
	Symbol          string     `json:"symbol" db:"symbol"`
	Side            string     `json:"side" db:"side"` // buy или sell
	Volume          float64    `json:"volume" db:"volume"`
	OpenPrice       float64    `json:"open_price" db:"open_price"`
	ClosePrice      float64    `json:"close_price" db:"close_price"` // 0 пока сделка открыта
	Profit          float64    `json:"profit" db:"profit"`
	Status          string     `json:"status" db:"status"` // open или closed
	OpenedAt        time.Time  `json:"opened_at" db:"opened_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	SyncedAt        time.Time  `json:"synced_at" db:"synced_at"`
}
