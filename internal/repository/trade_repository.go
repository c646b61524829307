package repository

import (
	"database/sql"
	"time"

	"brokerlink/internal/models"
)

// TradeRepository - работа с таблицей platform_trades
//
// Зеркало сделок площадки. Ключ дедупликации - (connection_id,
// platform_trade_id): повторная синхронизация обновляет существующие
// строки, а не плодит дубликаты.
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Upsert записывает сделку, обновляя существующую при совпадении ключа
func (r *TradeRepository) Upsert(trade *models.PlatformTrade) error {
	query := `
		INSERT INTO platform_trades (connection_id, platform_trade_id, symbol, side, volume, open_price, close_price, profit, status, opened_at, closed_at, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (connection_id, platform_trade_id) DO UPDATE
		SET symbol = EXCLUDED.symbol,
		    side = EXCLUDED.side,
		    volume = EXCLUDED.volume,
		    open_price = EXCLUDED.open_price,
		    close_price = EXCLUDED.close_price,
		    profit = EXCLUDED.profit,
		    status = EXCLUDED.status,
		    opened_at = EXCLUDED.opened_at,
		    closed_at = EXCLUDED.closed_at,
		    synced_at = EXCLUDED.synced_at
		RETURNING id`

	if trade.SyncedAt.IsZero() {
		trade.SyncedAt = time.Now()
	}

	return r.db.QueryRow(
		query,
		trade.ConnectionID,
		trade.PlatformTradeID,
		trade.Symbol,
		trade.Side,
		trade.Volume,
		trade.OpenPrice,
		trade.ClosePrice,
		trade.Profit,
		trade.Status,
		trade.OpenedAt,
		trade.ClosedAt,
		trade.SyncedAt,
	).Scan(&trade.ID)
}

// UpsertBatch записывает набор сделок в одной транзакции
func (r *TradeRepository) UpsertBatch(connectionID int, trades []*models.PlatformTrade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO platform_trades (connection_id, platform_trade_id, symbol, side, volume, open_price, close_price, profit, status, opened_at, closed_at, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (connection_id, platform_trade_id) DO UPDATE
		SET symbol = EXCLUDED.symbol,
		    side = EXCLUDED.side,
		    volume = EXCLUDED.volume,
		    open_price = EXCLUDED.open_price,
		    close_price = EXCLUDED.close_price,
		    profit = EXCLUDED.profit,
		    status = EXCLUDED.status,
		    opened_at = EXCLUDED.opened_at,
		    closed_at = EXCLUDED.closed_at,
		    synced_at = EXCLUDED.synced_at`

	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, trade := range trades {
		trade.ConnectionID = connectionID
		if trade.SyncedAt.IsZero() {
			trade.SyncedAt = now
		}

		_, err := stmt.Exec(
			trade.ConnectionID,
			trade.PlatformTradeID,
			trade.Symbol,
			trade.Side,
			trade.Volume,
			trade.OpenPrice,
			trade.ClosePrice,
			trade.Profit,
			trade.Status,
			trade.OpenedAt,
			trade.ClosedAt,
			trade.SyncedAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByConnection возвращает сделки подключения, свежие сверху
func (r *TradeRepository) GetByConnection(connectionID int, limit int) ([]*models.PlatformTrade, error) {
	query := `
		SELECT id, connection_id, platform_trade_id, symbol, side, volume, open_price, close_price, profit, status, opened_at, closed_at, synced_at
		FROM platform_trades
		WHERE connection_id = $1
		ORDER BY opened_at DESC
		LIMIT $2`

	rows, err := r.db.Query(query, connectionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.PlatformTrade
	for rows.Next() {
		trade := &models.PlatformTrade{}
		var closedAt sql.NullTime

		err := rows.Scan(
			&trade.ID,
			&trade.ConnectionID,
			&trade.PlatformTradeID,
			&trade.Symbol,
			&trade.Side,
			&trade.Volume,
			&trade.OpenPrice,
			&trade.ClosePrice,
			&trade.Profit,
			&trade.Status,
			&trade.OpenedAt,
			&closedAt,
			&trade.SyncedAt,
		)
		if err != nil {
			return nil, err
		}

		if closedAt.Valid {
			trade.ClosedAt = &closedAt.Time
		}
		trades = append(trades, trade)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}

// CountByConnection возвращает количество зеркалированных сделок
func (r *TradeRepository) CountByConnection(connectionID int) (int, error) {
	query := `SELECT COUNT(*) FROM platform_trades WHERE connection_id = $1`

	var count int
	err := r.db.QueryRow(query, connectionID).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}
