// Package vault предоставляет хранилище секретов для подключений к площадкам.
//
// Слой интеграции никогда не хранит и не логирует сырые credentials:
// Store возвращает непрозрачный handle, который сохраняется в строке
// подключения; Resolve восстанавливает секрет только в момент использования.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// Ошибки хранилища секретов
var (
	ErrEmptySecret          = errors.New("secret cannot be empty")
	ErrEmptyPassphrase      = errors.New("vault passphrase cannot be empty")
	ErrInvalidHandle        = errors.New("invalid credential handle")
	ErrHandleTooShort       = errors.New("credential handle too short")
	ErrDecryptionFailed     = errors.New("decryption failed: authentication error")
	ErrUnknownHandleVersion = errors.New("unknown credential handle version")
)

// handlePrefix - версия формата handle, для будущей ротации ключей
const handlePrefix = "v1:"

// Vault - абстрактное хранилище секретов per-user, per-platform.
// Connection Manager - единственный потребитель; коннекторы получают
// уже расшифрованные credentials и handle не видят.
type Vault interface {
	// Store шифрует секрет и возвращает непрозрачный handle
	Store(userID, platformID int, secret string) (string, error)

	// Resolve восстанавливает секрет по handle
	Resolve(handle string) (string, error)
}

// AESVault - реализация Vault на AES-256-GCM.
// Handle самодостаточен: это версионированный base64 от nonce+ciphertext,
// отдельная таблица секретов не нужна.
type AESVault struct {
	key []byte
}

// NewAESVault создает vault, выводя 32-байтовый ключ из passphrase
// через scrypt с заданной солью
func NewAESVault(passphrase, salt string) (*AESVault, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}

	// Параметры scrypt: N=32768, r=8, p=1 - интерактивный профиль
	key, err := scrypt.Key([]byte(passphrase), []byte(salt), 32768, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive vault key: %w", err)
	}

	return &AESVault{key: key}, nil
}

// Store шифрует секрет с использованием AES-256-GCM.
// Пара (userID, platformID) кодируется в handle и аутентифицируется
// как additional data - подмена привязки ломает расшифровку.
func (v *AESVault) Store(userID, platformID int, secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	// Генерируем случайный nonce
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	aad := encodeBinding(userID, platformID)
	ciphertext := gcm.Seal(nonce, nonce, []byte(secret), aad)

	// aad восстановим при Resolve из тела handle, поэтому кодируем его рядом
	payload := append(aad, ciphertext...)

	return handlePrefix + base64.StdEncoding.EncodeToString(payload), nil
}

// Resolve расшифровывает handle и возвращает исходный секрет
func (v *AESVault) Resolve(handle string) (string, error) {
	if !strings.HasPrefix(handle, handlePrefix) {
		return "", ErrUnknownHandleVersion
	}

	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(handle, handlePrefix))
	if err != nil {
		return "", ErrInvalidHandle
	}

	if len(payload) < bindingSize {
		return "", ErrHandleTooShort
	}

	aad := payload[:bindingSize]
	ciphertext := payload[bindingSize:]

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return "", ErrHandleTooShort
	}

	nonce := ciphertext[:gcm.NonceSize()]
	sealed := ciphertext[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, aad)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// bindingSize - размер закодированной пары (userID, platformID)
const bindingSize = 16

// encodeBinding кодирует пару идентификаторов фиксированной длины,
// результат используется как additional data для GCM
func encodeBinding(userID, platformID int) []byte {
	buf := make([]byte, bindingSize)
	putInt64(buf[0:8], int64(userID))
	putInt64(buf[8:16], int64(platformID))
	return buf
}

func putInt64(b []byte, v int64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * (7 - i)))
	}
}
