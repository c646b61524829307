package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"brokerlink/internal/models"
)

// Ошибки аутентификации по логину/паролю
var (
	ErrEmptyLoginCredentials = errors.New("username and password are required")
	ErrNoSessionToken        = errors.New("login response contains no session token")
)

// SessionLoginConnector обслуживает площадки с входом по логину/паролю
// (TradeLocker и совместимые). Токен сессии из ответа логина используется
// как bearer для всех последующих вызовов.
type SessionLoginConnector struct {
	http *HTTPClient
}

// NewSessionLoginConnector создает коннектор session_login
func NewSessionLoginConnector(client *HTTPClient) *SessionLoginConnector {
	return &SessionLoginConnector{http: client}
}

// Type возвращает обслуживаемый тип площадки
func (c *SessionLoginConnector) Type() string {
	return models.PlatformTypeSessionLogin
}

// Authenticate выполняет POST на login endpoint площадки
func (c *SessionLoginConnector) Authenticate(ctx context.Context, platform *models.Platform, creds Credentials) (*Session, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, newError(platform.Code, PhaseAuth, ErrEmptyLoginCredentials)
	}

	reqBody := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Server   string `json:"server,omitempty"`
		Demo     bool   `json:"demo"`
	}{
		Email:    creds.Username,
		Password: creds.Password,
		Server:   creds.Server,
		Demo:     creds.Demo,
	}

	var resp struct {
		AccessToken string `json:"accessToken"`
	}

	url := platform.APIBaseURL + "/auth/jwt/token"
	if err := c.http.DoJSON(ctx, platform.Code, http.MethodPost, url, nil, reqBody, &resp); err != nil {
		return nil, newError(platform.Code, PhaseAuth, err)
	}

	if resp.AccessToken == "" {
		return nil, newError(platform.Code, PhaseAuth, ErrNoSessionToken)
	}

	return &Session{AccessToken: resp.AccessToken}, nil
}

// FetchAccount получает первый торговый аккаунт и нормализует его
func (c *SessionLoginConnector) FetchAccount(ctx context.Context, platform *models.Platform, session *Session) (*AccountInfo, error) {
	var resp struct {
		Accounts []struct {
			ID             string  `json:"id"`
			Name           string  `json:"name"`
			AccountType    string  `json:"accountType"`
			Currency       string  `json:"currency"`
			AccountBalance float64 `json:"accountBalance"`
			Equity         float64 `json:"equity"`
			MarginUsed     float64 `json:"marginUsed"`
			FreeMargin     float64 `json:"freeMargin"`
		} `json:"accounts"`
	}

	url := platform.APIBaseURL + "/trade/accounts"
	if err := c.http.DoJSON(ctx, platform.Code, http.MethodGet, url, bearerHeader(session), nil, &resp); err != nil {
		return nil, newError(platform.Code, PhaseFetchAccount, err)
	}

	if len(resp.Accounts) == 0 {
		return nil, newError(platform.Code, PhaseFetchAccount, fmt.Errorf("venue returned no accounts"))
	}

	acc := resp.Accounts[0]
	return &AccountInfo{
		AccountNumber: acc.ID,
		AccountName:   acc.Name,
		AccountType:   normalizeAccountType(acc.AccountType),
		Currency:      acc.Currency,
		Balance:       acc.AccountBalance,
		Equity:        acc.Equity,
		MarginUsed:    acc.MarginUsed,
		FreeMargin:    acc.FreeMargin,
	}, nil
}

// FetchTrades получает позиции аккаунта и нормализует их
func (c *SessionLoginConnector) FetchTrades(ctx context.Context, platform *models.Platform, session *Session) ([]*TradeInfo, error) {
	var resp struct {
		Positions []struct {
			ID         string  `json:"id"`
			Symbol     string  `json:"symbol"`
			Side       string  `json:"side"`
			Qty        float64 `json:"qty"`
			OpenPrice  float64 `json:"openPrice"`
			ClosePrice float64 `json:"closePrice"`
			Pnl        float64 `json:"pnl"`
			Status     string  `json:"status"`
			OpenTime   string  `json:"openTime"`  // RFC3339
			CloseTime  string  `json:"closeTime"` // RFC3339, пусто для открытых
		} `json:"positions"`
	}

	url := platform.APIBaseURL + "/trade/positions"
	if err := c.http.DoJSON(ctx, platform.Code, http.MethodGet, url, bearerHeader(session), nil, &resp); err != nil {
		return nil, newError(platform.Code, PhaseFetchTrades, err)
	}

	trades := make([]*TradeInfo, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		openedAt, err := time.Parse(time.RFC3339, p.OpenTime)
		if err != nil {
			return nil, newError(platform.Code, PhaseFetchTrades, fmt.Errorf("malformed openTime %q: %w", p.OpenTime, err))
		}

		trade := &TradeInfo{
			TradeID:    p.ID,
			Symbol:     p.Symbol,
			Side:       normalizeSide(p.Side),
			Volume:     p.Qty,
			OpenPrice:  p.OpenPrice,
			ClosePrice: p.ClosePrice,
			Profit:     p.Pnl,
			Status:     normalizeTradeStatus(p.Status),
			OpenedAt:   openedAt,
		}

		if p.CloseTime != "" {
			closedAt, err := time.Parse(time.RFC3339, p.CloseTime)
			if err != nil {
				return nil, newError(platform.Code, PhaseFetchTrades, fmt.Errorf("malformed closeTime %q: %w", p.CloseTime, err))
			}
			trade.ClosedAt = &closedAt
		}

		trades = append(trades, trade)
	}

	return trades, nil
}

// bearerHeader формирует заголовок авторизации для токена сессии
func bearerHeader(session *Session) map[string]string {
	return map[string]string{"Authorization": "Bearer " + session.AccessToken}
}
