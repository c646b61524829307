package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config - параметры повторов с экспоненциальным backoff
//
// delay = min(InitialDelay * Multiplier^attempt + jitter, MaxDelay)
//
// Jitter добавляет случайность, чтобы параллельные клиенты
// не retry'или синхронно.
type Config struct {
	// MaxAttempts - количество попыток, включая первую
	MaxAttempts int

	// InitialDelay - задержка перед второй попыткой
	// По умолчанию: 100ms
	InitialDelay time.Duration

	// MaxDelay - потолок задержки
	// По умолчанию: 30s
	MaxDelay time.Duration

	// Multiplier - множитель экспоненциального роста
	// По умолчанию: 2.0
	Multiplier float64

	// JitterFactor - доля случайности (0.0 - 1.0)
	JitterFactor float64

	// RetryIf определяет, имеет ли смысл повторять после этой ошибки.
	// nil = повторяются все ошибки.
	RetryIf func(error) bool

	// OnRetry вызывается перед каждым повтором, полезно для логирования
	OnRetry func(attempt int, err error, delay time.Duration)
}

// PersistenceConfig - профиль для операций чтения из хранилища:
// 3 попытки, задержки 100ms и 200ms, без jitter.
func PersistenceConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}
}

// DefaultConfig - профиль общего назначения:
// 4 попытки, задержки 100ms, 200ms, 400ms с 10% jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (c *Config) validate() {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
}

// calculateDelay вычисляет задержку после указанной попытки
func (c *Config) calculateDelay(attempt int) time.Duration {
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))

	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.JitterFactor > 0 {
		jitter := delay * c.JitterFactor * (rand.Float64()*2 - 1)
		delay += jitter
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// Do выполняет операцию с повторными попытками
//
// Возвращает nil при первом успехе, иначе последнюю ошибку после
// исчерпания попыток. Отмена контекста прерывает ожидание между
// попытками.
func Do(ctx context.Context, operation func() error, cfg Config) error {
	cfg.validate()

	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return lastErr
			}
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return err
		}

		if attempt >= cfg.MaxAttempts-1 {
			break
		}

		delay := cfg.calculateDelay(attempt)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return lastErr
		}
	}

	return lastErr
}

// RetryIfNotContext не повторяет после отмены контекста
func RetryIfNotContext(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// PermanentError помечает ошибку, повторять после которой бессмысленно
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent оборачивает ошибку в PermanentError
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// RetryIfNotPermanent не повторяет после PermanentError
func RetryIfNotPermanent(err error) bool {
	var perm *PermanentError
	return !errors.As(err, &perm)
}
