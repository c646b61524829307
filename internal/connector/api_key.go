package connector

import (
	"context"
	"errors"
	"net/http"
	"time"

	"brokerlink/internal/models"
)

// Ошибки аутентификации по API ключу
var (
	ErrEmptyAPIKey   = errors.New("api key and secret are required")
	ErrNoAccessToken = errors.New("auth response contains no access token")
)

// APIKeyConnector обслуживает площадки с аутентификацией по паре
// key/secret (Match-Trader и совместимые): пара обменивается на
// access-токен, который идет bearer'ом в последующих вызовах.
type APIKeyConnector struct {
	http *HTTPClient
}

// NewAPIKeyConnector создает коннектор api_key
func NewAPIKeyConnector(client *HTTPClient) *APIKeyConnector {
	return &APIKeyConnector{http: client}
}

// Type возвращает обслуживаемый тип площадки
func (c *APIKeyConnector) Type() string {
	return models.PlatformTypeAPIKey
}

// Authenticate обменивает пару key/secret на access-токен
func (c *APIKeyConnector) Authenticate(ctx context.Context, platform *models.Platform, creds Credentials) (*Session, error) {
	if creds.APIKey == "" || creds.APISecret == "" {
		return nil, newError(platform.Code, PhaseAuth, ErrEmptyAPIKey)
	}

	reqBody := struct {
		APIKey    string `json:"apiKey"`
		APISecret string `json:"apiSecret"`
	}{
		APIKey:    creds.APIKey,
		APISecret: creds.APISecret,
	}

	var resp struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expiresIn"` // секунды
	}

	url := platform.APIBaseURL + "/v1/auth/token"
	if err := c.http.DoJSON(ctx, platform.Code, http.MethodPost, url, nil, reqBody, &resp); err != nil {
		return nil, newError(platform.Code, PhaseAuth, err)
	}

	if resp.Token == "" {
		return nil, newError(platform.Code, PhaseAuth, ErrNoAccessToken)
	}

	session := &Session{AccessToken: resp.Token}
	if resp.ExpiresIn > 0 {
		session.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	return session, nil
}

// FetchAccount получает состояние аккаунта
func (c *APIKeyConnector) FetchAccount(ctx context.Context, platform *models.Platform, session *Session) (*AccountInfo, error) {
	var resp struct {
		AccountID   string  `json:"accountId"`
		AccountName string  `json:"accountName"`
		AccountType string  `json:"accountType"`
		Currency    string  `json:"currency"`
		Balance     float64 `json:"balance"`
		Equity      float64 `json:"equity"`
		Margin      float64 `json:"margin"`
		FreeMargin  float64 `json:"freeMargin"`
	}

	url := platform.APIBaseURL + "/v1/account"
	if err := c.http.DoJSON(ctx, platform.Code, http.MethodGet, url, bearerHeader(session), nil, &resp); err != nil {
		return nil, newError(platform.Code, PhaseFetchAccount, err)
	}

	return &AccountInfo{
		AccountNumber: resp.AccountID,
		AccountName:   resp.AccountName,
		AccountType:   normalizeAccountType(resp.AccountType),
		Currency:      resp.Currency,
		Balance:       resp.Balance,
		Equity:        resp.Equity,
		MarginUsed:    resp.Margin,
		FreeMargin:    resp.FreeMargin,
	}, nil
}

// FetchTrades получает позиции аккаунта
func (c *APIKeyConnector) FetchTrades(ctx context.Context, platform *models.Platform, session *Session) ([]*TradeInfo, error) {
	var resp struct {
		Positions []struct {
			PositionID string  `json:"positionId"`
			Instrument string  `json:"instrument"`
			Direction  string  `json:"direction"`
			Volume     float64 `json:"volume"`
			OpenPrice  float64 `json:"openPrice"`
			ClosePrice float64 `json:"closePrice"`
			Profit     float64 `json:"profit"`
			State      string  `json:"state"`
			OpenedAt   int64   `json:"openedAt"` // unix миллисекунды
			ClosedAt   int64   `json:"closedAt"` // unix миллисекунды, 0 для открытых
		} `json:"positions"`
	}

	url := platform.APIBaseURL + "/v1/positions"
	if err := c.http.DoJSON(ctx, platform.Code, http.MethodGet, url, bearerHeader(session), nil, &resp); err != nil {
		return nil, newError(platform.Code, PhaseFetchTrades, err)
	}

	trades := make([]*TradeInfo, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		trade := &TradeInfo{
			TradeID:    p.PositionID,
			Symbol:     p.Instrument,
			Side:       normalizeSide(p.Direction),
			Volume:     p.Volume,
			OpenPrice:  p.OpenPrice,
			ClosePrice: p.ClosePrice,
			Profit:     p.Profit,
			Status:     normalizeTradeStatus(p.State),
			OpenedAt:   time.UnixMilli(p.OpenedAt).UTC(),
		}

		if p.ClosedAt > 0 {
			closedAt := time.UnixMilli(p.ClosedAt).UTC()
			trade.ClosedAt = &closedAt
		}

		trades = append(trades, trade)
	}

	return trades, nil
}
