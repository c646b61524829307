package connector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"
)

// json - jsoniter в режиме совместимости со стандартной библиотекой.
// Коннекторы декодируют много venue-ответов, это самый горячий JSON-путь слоя.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HTTPClientConfig содержит настройки HTTP клиента для площадок
type HTTPClientConfig struct {
	// Таймауты соединения
	ConnectTimeout time.Duration // таймаут установки TCP соединения (default: 5s)
	TotalTimeout   time.Duration // общий таймаут одного вызова (default: 15s)

	// Connection pooling
	MaxIdleConns        int           // максимум idle соединений (default: 100)
	MaxIdleConnsPerHost int           // максимум idle соединений на хост (default: 10)
	MaxConnsPerHost     int           // максимум соединений на хост (default: 20)
	IdleConnTimeout     time.Duration // таймаут простоя соединения (default: 90s)

	// TLS
	TLSHandshakeTimeout time.Duration // таймаут TLS handshake (default: 5s)

	// Rate limiting per venue
	VenueRateLimit float64 // запросов в секунду на площадку (default: 5)
	VenueRateBurst int     // burst на площадку (default: 10)
}

// DefaultHTTPClientConfig возвращает конфигурацию по умолчанию
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		ConnectTimeout:      5 * time.Second,
		TotalTimeout:        15 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		VenueRateLimit:      5,
		VenueRateBurst:      10,
	}
}

// HTTPClient - общий HTTP клиент всех коннекторов: connection pooling,
// таймаут на каждый вызов и rate limiter per venue, чтобы массовый обход
// подключений не упирался в лимиты отдельной площадки.
type HTTPClient struct {
	client   *http.Client
	limiters *venueLimiters
}

// NewHTTPClient создает HTTP клиент по конфигурации
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
	}

	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.TotalTimeout,
		},
		limiters: newVenueLimiters(rate.Limit(cfg.VenueRateLimit), cfg.VenueRateBurst),
	}
}

// maxResponseBody ограничивает размер читаемого ответа площадки (4 MB)
const maxResponseBody = 4 << 20

// DoJSON выполняет HTTP вызов к площадке: ждет слот rate limiter'а,
// кодирует body в JSON (если он есть), декодирует ответ в out.
// Не-2xx статус возвращается как ошибка с кодом и фрагментом тела.
func (c *HTTPClient) DoJSON(ctx context.Context, venue, method, rawURL string, headers map[string]string, body, out interface{}) error {
	if err := c.limiters.wait(ctx, venue); err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Body:       truncateBody(data),
		}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("malformed response: %w", err)
		}
	}

	return nil
}

// DoForm выполняет form-encoded POST (token endpoint в oauth2)
func (c *HTTPClient) DoForm(ctx context.Context, venue, rawURL string, form url.Values, out interface{}) error {
	if err := c.limiters.wait(ctx, venue); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Body:       truncateBody(data),
		}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("malformed response: %w", err)
		}
	}

	return nil
}

// HTTPStatusError - не-2xx ответ площадки
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// truncateBody обрезает тело ошибки для логов (секреты туда не попадают,
// но мегабайтные HTML-страницы - легко)
func truncateBody(data []byte) string {
	const maxLen = 256
	s := strings.TrimSpace(string(data))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// venueLimiters - rate limiter'ы по площадкам, создаются лениво
type venueLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newVenueLimiters(limit rate.Limit, burst int) *venueLimiters {
	if burst < 1 {
		burst = 1
	}
	return &venueLimiters{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// wait блокируется до слота лимитера площадки или отмены контекста
func (v *venueLimiters) wait(ctx context.Context, venue string) error {
	v.mu.Lock()
	limiter, ok := v.limiters[venue]
	if !ok {
		limiter = rate.NewLimiter(v.limit, v.burst)
		v.limiters[venue] = limiter
	}
	v.mu.Unlock()

	return limiter.Wait(ctx)
}
