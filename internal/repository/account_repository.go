package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"brokerlink/internal/models"
)

// Ошибки репозитория торговых аккаунтов
var (
	ErrAccountNotFound = errors.New("account not found")
)

// AccountRepository - работа с таблицей trading_platform_accounts
//
// На одно подключение приходится один снимок аккаунта, поэтому запись
// обновляется через UPSERT по connection_id.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository создает новый экземпляр репозитория
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Upsert записывает свежий снимок аккаунта для подключения
func (r *AccountRepository) Upsert(account *models.TradingPlatformAccount) error {
	query := `
		INSERT INTO trading_platform_accounts (connection_id, account_number, account_name, account_type, currency, balance, equity, margin_used, free_margin, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (connection_id) DO UPDATE
		SET account_number = EXCLUDED.account_number,
		    account_name = EXCLUDED.account_name,
		    account_type = EXCLUDED.account_type,
		    currency = EXCLUDED.currency,
		    balance = EXCLUDED.balance,
		    equity = EXCLUDED.equity,
		    margin_used = EXCLUDED.margin_used,
		    free_margin = EXCLUDED.free_margin,
		    last_updated = EXCLUDED.last_updated
		RETURNING id`

	if account.LastUpdated.IsZero() {
		account.LastUpdated = time.Now()
	}

	return r.db.QueryRow(
		query,
		account.ConnectionID,
		account.AccountNumber,
		account.AccountName,
		account.AccountType,
		account.Currency,
		account.Balance,
		account.Equity,
		account.MarginUsed,
		account.FreeMargin,
		account.LastUpdated,
	).Scan(&account.ID)
}

// GetByConnection возвращает снимок аккаунта для подключения
func (r *AccountRepository) GetByConnection(connectionID int) (*models.TradingPlatformAccount, error) {
	query := `
		SELECT id, connection_id, account_number, account_name, account_type, currency, balance, equity, margin_used, free_margin, last_updated
		FROM trading_platform_accounts
		WHERE connection_id = $1`

	account := &models.TradingPlatformAccount{}
	err := r.db.QueryRow(query, connectionID).Scan(
		&account.ID,
		&account.ConnectionID,
		&account.AccountNumber,
		&account.AccountName,
		&account.AccountType,
		&account.Currency,
		&account.Balance,
		&account.Equity,
		&account.MarginUsed,
		&account.FreeMargin,
		&account.LastUpdated,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	return account, nil
}

// GetByConnections возвращает снимки аккаунтов для набора подключений.
// Подключения без единой успешной синхронизации в карте отсутствуют.
func (r *AccountRepository) GetByConnections(connectionIDs []int) (map[int]*models.TradingPlatformAccount, error) {
	accounts := make(map[int]*models.TradingPlatformAccount)
	if len(connectionIDs) == 0 {
		return accounts, nil
	}

	query := `
		SELECT id, connection_id, account_number, account_name, account_type, currency, balance, equity, margin_used, free_margin, last_updated
		FROM trading_platform_accounts
		WHERE connection_id = ANY($1)`

	rows, err := r.db.Query(query, pq.Array(connectionIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		account := &models.TradingPlatformAccount{}
		err := rows.Scan(
			&account.ID,
			&account.ConnectionID,
			&account.AccountNumber,
			&account.AccountName,
			&account.AccountType,
			&account.Currency,
			&account.Balance,
			&account.Equity,
			&account.MarginUsed,
			&account.FreeMargin,
			&account.LastUpdated,
		)
		if err != nil {
			return nil, err
		}
		accounts[account.ConnectionID] = account
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return accounts, nil
}
