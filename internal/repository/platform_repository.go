package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"brokerlink/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ошибки репозитория площадок
var (
	ErrPlatformNotFound = errors.New("platform not found")
	ErrPlatformExists   = errors.New("platform already exists")
)

// PlatformRepository - работа с таблицей platforms
type PlatformRepository struct {
	db *sql.DB
}

// NewPlatformRepository создает новый экземпляр репозитория
func NewPlatformRepository(db *sql.DB) *PlatformRepository {
	return &PlatformRepository{db: db}
}

// Create регистрирует новую площадку
func (r *PlatformRepository) Create(platform *models.Platform) error {
	query := `
		INSERT INTO platforms (code, name, type, api_base_url, web_trading_url, supports_api, supports_web_trading, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	now := time.Now()
	platform.CreatedAt = now
	platform.UpdatedAt = now

	configJSON, err := marshalConfig(platform.Config)
	if err != nil {
		return err
	}

	err = r.db.QueryRow(
		query,
		platform.Code,
		platform.Name,
		platform.Type,
		platform.APIBaseURL,
		platform.WebTradingURL,
		platform.SupportsAPI,
		platform.SupportsWebTrading,
		configJSON,
		platform.CreatedAt,
		platform.UpdatedAt,
	).Scan(&platform.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrPlatformExists
		}
		return err
	}

	return nil
}

// GetByID возвращает площадку по ID
func (r *PlatformRepository) GetByID(id int) (*models.Platform, error) {
	query := `
		SELECT id, code, name, type, api_base_url, web_trading_url, supports_api, supports_web_trading, config, created_at, updated_at
		FROM platforms
		WHERE id = $1`

	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByCode возвращает площадку по коду (tradelocker, ctrader, etc.)
func (r *PlatformRepository) GetByCode(code string) (*models.Platform, error) {
	query := `
		SELECT id, code, name, type, api_base_url, web_trading_url, supports_api, supports_web_trading, config, created_at, updated_at
		FROM platforms
		WHERE code = $1`

	return r.scanOne(r.db.QueryRow(query, code))
}

// GetAll возвращает все площадки
func (r *PlatformRepository) GetAll() ([]*models.Platform, error) {
	query := `
		SELECT id, code, name, type, api_base_url, web_trading_url, supports_api, supports_web_trading, config, created_at, updated_at
		FROM platforms
		ORDER BY name`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var platforms []*models.Platform
	for rows.Next() {
		platform, err := r.scanPlatform(rows)
		if err != nil {
			return nil, err
		}
		platforms = append(platforms, platform)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return platforms, nil
}

// Update обновляет данные площадки
func (r *PlatformRepository) Update(platform *models.Platform) error {
	query := `
		UPDATE platforms
		SET name = $1, type = $2, api_base_url = $3, web_trading_url = $4, supports_api = $5, supports_web_trading = $6, config = $7, updated_at = $8
		WHERE id = $9`

	platform.UpdatedAt = time.Now()

	configJSON, err := marshalConfig(platform.Config)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(
		query,
		platform.Name,
		platform.Type,
		platform.APIBaseURL,
		platform.WebTradingURL,
		platform.SupportsAPI,
		platform.SupportsWebTrading,
		configJSON,
		platform.UpdatedAt,
		platform.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrPlatformNotFound
	}

	return nil
}

// ExistsByCode проверяет, зарегистрирована ли площадка с таким кодом
func (r *PlatformRepository) ExistsByCode(code string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM platforms WHERE code = $1)`

	var exists bool
	err := r.db.QueryRow(query, code).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

// Count возвращает количество зарегистрированных площадок
func (r *PlatformRepository) Count() (int, error) {
	query := `SELECT COUNT(*) FROM platforms`

	var count int
	err := r.db.QueryRow(query).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// rowScanner покрывает *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *PlatformRepository) scanOne(row *sql.Row) (*models.Platform, error) {
	platform, err := r.scanPlatform(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlatformNotFound
		}
		return nil, err
	}
	return platform, nil
}

func (r *PlatformRepository) scanPlatform(row rowScanner) (*models.Platform, error) {
	platform := &models.Platform{}
	var configJSON []byte

	err := row.Scan(
		&platform.ID,
		&platform.Code,
		&platform.Name,
		&platform.Type,
		&platform.APIBaseURL,
		&platform.WebTradingURL,
		&platform.SupportsAPI,
		&platform.SupportsWebTrading,
		&configJSON,
		&platform.CreatedAt,
		&platform.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &platform.Config); err != nil {
			return nil, err
		}
	}

	return platform, nil
}

// marshalConfig сериализует конфигурацию площадки для JSONB колонки
func marshalConfig(config map[string]string) ([]byte, error) {
	if config == nil {
		config = map[string]string{}
	}
	return json.Marshal(config)
}

// isUniqueViolation проверяет, является ли ошибка нарушением UNIQUE constraint
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "23505")
}
