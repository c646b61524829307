package service

import (
	"context"
	"errors"
	"fmt"

	"brokerlink/pkg/retry"
)

// Ошибки сервисного слоя
var (
	ErrPlatformUnknown      = errors.New("platform is not registered")
	ErrConnectionInactive   = errors.New("connection is not active")
	ErrConnectionNotOwned   = errors.New("connection belongs to another user")
	ErrAuthenticationFailed = errors.New("venue rejected the credentials")
)

// RegistrySeedError - ошибка посева реестра площадок. Фатальна на старте:
// без полного реестра слой интеграции работать не может.
type RegistrySeedError struct {
	Code  string
	Cause error
}

func (e *RegistrySeedError) Error() string {
	return fmt.Sprintf("platform registry seed failed for %q: %v", e.Code, e.Cause)
}

func (e *RegistrySeedError) Unwrap() error {
	return e.Cause
}

// SyncError - ошибка синхронизации одного подключения. Оборачивает
// ConnectorError либо ошибку хранилища; никогда не выходит за пределы
// своего подключения.
type SyncError struct {
	ConnectionID int
	Venue        string
	Cause        error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync connection %d (%s): %v", e.ConnectionID, e.Venue, e.Cause)
}

func (e *SyncError) Unwrap() error {
	return e.Cause
}

// PersistenceError - ошибка хранилища на читающих путях фасада
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// withRetry повторяет операцию чтения с экспоненциальным backoff.
// Достижение лимита попыток оборачивается в PersistenceError.
func withRetry(op string, fn func() error) error {
	err := retry.Do(context.Background(), fn, retry.PersistenceConfig())
	if err != nil {
		return &PersistenceError{Op: op, Cause: err}
	}
	return nil
}
