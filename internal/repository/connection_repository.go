package repository

import (
	"database/sql"
	"errors"
	"time"

	"brokerlink/internal/models"
)

// Ошибки репозитория подключений
var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionExists   = errors.New("connection already exists")
)

// ConnectionRepository - работа с таблицей user_platform_connections
type ConnectionRepository struct {
	db *sql.DB
}

// NewConnectionRepository создает новый экземпляр репозитория
func NewConnectionRepository(db *sql.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const connectionColumns = `id, user_id, platform_id, credential_handle, access_token, refresh_token, token_expires_at, session_metadata, connected, last_sync_at, last_sync_error, created_at, updated_at`

// Create создает запись о подключении пользователя к площадке
func (r *ConnectionRepository) Create(conn *models.UserPlatformConnection) error {
	query := `
		INSERT INTO user_platform_connections (user_id, platform_id, credential_handle, access_token, refresh_token, token_expires_at, session_metadata, connected, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	now := time.Now()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	err := r.db.QueryRow(
		query,
		conn.UserID,
		conn.PlatformID,
		conn.CredentialHandle,
		conn.AccessToken,
		conn.RefreshToken,
		conn.TokenExpiresAt,
		conn.SessionMetadata,
		conn.Connected,
		conn.CreatedAt,
		conn.UpdatedAt,
	).Scan(&conn.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrConnectionExists
		}
		return err
	}

	return nil
}

// GetByID возвращает подключение по ID
func (r *ConnectionRepository) GetByID(id int) (*models.UserPlatformConnection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM user_platform_connections
		WHERE id = $1`

	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByUserAndPlatform возвращает подключение пользователя к конкретной площадке
func (r *ConnectionRepository) GetByUserAndPlatform(userID, platformID int) (*models.UserPlatformConnection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM user_platform_connections
		WHERE user_id = $1 AND platform_id = $2`

	return r.scanOne(r.db.QueryRow(query, userID, platformID))
}

// GetByUser возвращает все подключения пользователя
func (r *ConnectionRepository) GetByUser(userID int) ([]*models.UserPlatformConnection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM user_platform_connections
		WHERE user_id = $1
		ORDER BY created_at DESC`

	return r.queryConnections(query, userID)
}

// GetConnected возвращает все активные подключения (для фонового обхода)
func (r *ConnectionRepository) GetConnected() ([]*models.UserPlatformConnection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM user_platform_connections
		WHERE connected = true
		ORDER BY id`

	return r.queryConnections(query)
}

// Reactivate повторно активирует отключенную запись с новыми реквизитами.
// История аккаунта и сделок при этом сохраняется за тем же connection id.
func (r *ConnectionRepository) Reactivate(conn *models.UserPlatformConnection) error {
	query := `
		UPDATE user_platform_connections
		SET credential_handle = $1, access_token = $2, refresh_token = $3, token_expires_at = $4, session_metadata = $5, connected = true, last_sync_error = '', updated_at = $6
		WHERE id = $7`

	conn.UpdatedAt = time.Now()
	conn.Connected = true
	conn.LastSyncError = ""

	result, err := r.db.Exec(
		query,
		conn.CredentialHandle,
		conn.AccessToken,
		conn.RefreshToken,
		conn.TokenExpiresAt,
		conn.SessionMetadata,
		conn.UpdatedAt,
		conn.ID,
	)
	if err != nil {
		return err
	}

	return checkAffected(result, ErrConnectionNotFound)
}

// SetDisconnected помечает подключение отключенным (soft delete).
// Реквизиты и токены затираются, строка остается ради истории синхронизаций.
func (r *ConnectionRepository) SetDisconnected(id int) error {
	query := `
		UPDATE user_platform_connections
		SET connected = false, credential_handle = '', access_token = '', refresh_token = '', token_expires_at = NULL, session_metadata = '', updated_at = $1
		WHERE id = $2`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return err
	}

	return checkAffected(result, ErrConnectionNotFound)
}

// UpdateTokens сохраняет обновленную сессию площадки
func (r *ConnectionRepository) UpdateTokens(id int, accessToken, refreshToken string, expiresAt *time.Time) error {
	query := `
		UPDATE user_platform_connections
		SET access_token = $1, refresh_token = $2, token_expires_at = $3, updated_at = $4
		WHERE id = $5`

	result, err := r.db.Exec(query, accessToken, refreshToken, expiresAt, time.Now(), id)
	if err != nil {
		return err
	}

	return checkAffected(result, ErrConnectionNotFound)
}

// UpdateSessionState сохраняет пересозданную сессию целиком: токены
// и venue-специфичный session_metadata (session id и прочее)
func (r *ConnectionRepository) UpdateSessionState(id int, accessToken, refreshToken string, expiresAt *time.Time, metadata string) error {
	query := `
		UPDATE user_platform_connections
		SET access_token = $1, refresh_token = $2, token_expires_at = $3, session_metadata = $4, updated_at = $5
		WHERE id = $6`

	result, err := r.db.Exec(query, accessToken, refreshToken, expiresAt, metadata, time.Now(), id)
	if err != nil {
		return err
	}

	return checkAffected(result, ErrConnectionNotFound)
}

// UpdateSyncStatus записывает исход синхронизации: отметку времени при
// успехе, текст ошибки при неудаче (отметка успеха при этом не трогается)
func (r *ConnectionRepository) UpdateSyncStatus(id int, syncedAt *time.Time, syncErr string) error {
	var (
		query  string
		result sql.Result
		err    error
	)

	if syncErr == "" {
		query = `
			UPDATE user_platform_connections
			SET last_sync_at = $1, last_sync_error = '', updated_at = $2
			WHERE id = $3`
		result, err = r.db.Exec(query, syncedAt, time.Now(), id)
	} else {
		query = `
			UPDATE user_platform_connections
			SET last_sync_error = $1, updated_at = $2
			WHERE id = $3`
		result, err = r.db.Exec(query, syncErr, time.Now(), id)
	}
	if err != nil {
		return err
	}

	return checkAffected(result, ErrConnectionNotFound)
}

// CountConnected возвращает количество активных подключений
func (r *ConnectionRepository) CountConnected() (int, error) {
	query := `SELECT COUNT(*) FROM user_platform_connections WHERE connected = true`

	var count int
	err := r.db.QueryRow(query).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *ConnectionRepository) queryConnections(query string, args ...interface{}) ([]*models.UserPlatformConnection, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var connections []*models.UserPlatformConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		connections = append(connections, conn)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return connections, nil
}

func (r *ConnectionRepository) scanOne(row *sql.Row) (*models.UserPlatformConnection, error) {
	conn, err := scanConnection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConnectionNotFound
		}
		return nil, err
	}
	return conn, nil
}

func scanConnection(row rowScanner) (*models.UserPlatformConnection, error) {
	conn := &models.UserPlatformConnection{}
	var (
		tokenExpiresAt sql.NullTime
		lastSyncAt     sql.NullTime
	)

	err := row.Scan(
		&conn.ID,
		&conn.UserID,
		&conn.PlatformID,
		&conn.CredentialHandle,
		&conn.AccessToken,
		&conn.RefreshToken,
		&tokenExpiresAt,
		&conn.SessionMetadata,
		&conn.Connected,
		&lastSyncAt,
		&conn.LastSyncError,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tokenExpiresAt.Valid {
		conn.TokenExpiresAt = &tokenExpiresAt.Time
	}
	if lastSyncAt.Valid {
		conn.LastSyncAt = &lastSyncAt.Time
	}

	return conn, nil
}

// checkAffected возвращает notFound, если UPDATE/DELETE не затронул строк
func checkAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
