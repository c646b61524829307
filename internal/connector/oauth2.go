package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"brokerlink/internal/models"
)

// Ошибки oauth2 коннектора
var (
	ErrEmptyOAuthCredentials = errors.New("username/password or client credentials are required")
	ErrNoOAuthToken          = errors.New("token endpoint returned no access token")
	ErrNoRefreshToken        = errors.New("session has no refresh token")
)

// refreshSkew - запас до истечения токена, после которого выполняется
// проактивный refresh. Без запаса токен может истечь между проверкой
// и реальным вызовом площадки.
const refreshSkew = 60 * time.Second

// OAuth2Connector обслуживает площадки со стандартным token endpoint
// (cTrader и совместимые). Единственный тип, требующий проактивного
// refresh до истечения: refresh вызывается синхронизатором через
// интерфейс TokenRefresher под per-connection single-flight.
type OAuth2Connector struct {
	http *HTTPClient
}

// NewOAuth2Connector создает коннектор oauth2
func NewOAuth2Connector(client *HTTPClient) *OAuth2Connector {
	return &OAuth2Connector{http: client}
}

// Type возвращает обслуживаемый тип площадки
func (c *OAuth2Connector) Type() string {
	return models.PlatformTypeOAuth2
}

// tokenResponse - ответ token endpoint (и password grant, и refresh)
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // секунды
	TokenType    string `json:"token_type"`
}

// Authenticate выполняет password или client-credentials grant.
// client_id/client_secret площадки берутся из ее конфигурации.
func (c *OAuth2Connector) Authenticate(ctx context.Context, platform *models.Platform, creds Credentials) (*Session, error) {
	form := url.Values{}
	form.Set("client_id", platform.Config["client_id"])
	form.Set("client_secret", platform.Config["client_secret"])

	switch {
	case creds.Username != "" && creds.Password != "":
		form.Set("grant_type", "password")
		form.Set("username", creds.Username)
		form.Set("password", creds.Password)
	case creds.APIKey != "" && creds.APISecret != "":
		// Пользовательские client credentials перекрывают платформенные
		form.Set("grant_type", "client_credentials")
		form.Set("client_id", creds.APIKey)
		form.Set("client_secret", creds.APISecret)
	default:
		return nil, newError(platform.Code, PhaseAuth, ErrEmptyOAuthCredentials)
	}

	session, err := c.requestToken(ctx, platform, form)
	if err != nil {
		return nil, newError(platform.Code, PhaseAuth, err)
	}

	return session, nil
}

// NeedsRefresh сообщает, истекает ли токен сессии в пределах refreshSkew
func (c *OAuth2Connector) NeedsRefresh(session *Session) bool {
	if session.ExpiresAt.IsZero() {
		return false
	}
	return time.Until(session.ExpiresAt) < refreshSkew
}

// RefreshSession обменивает refresh-токен на новую пару токенов
func (c *OAuth2Connector) RefreshSession(ctx context.Context, platform *models.Platform, session *Session) (*Session, error) {
	if session.RefreshToken == "" {
		return nil, newError(platform.Code, PhaseAuth, ErrNoRefreshToken)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", session.RefreshToken)
	form.Set("client_id", platform.Config["client_id"])
	form.Set("client_secret", platform.Config["client_secret"])

	refreshed, err := c.requestToken(ctx, platform, form)
	if err != nil {
		return nil, newError(platform.Code, PhaseAuth, fmt.Errorf("token refresh failed: %w", err))
	}

	// Площадка может не вернуть новый refresh-токен - старый остается в силе
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = session.RefreshToken
	}

	return refreshed, nil
}

// requestToken выполняет вызов token endpoint и строит сессию
func (c *OAuth2Connector) requestToken(ctx context.Context, platform *models.Platform, form url.Values) (*Session, error) {
	var resp tokenResponse

	tokenURL := platform.APIBaseURL + "/v1/oauth/token"
	if err := c.http.DoForm(ctx, platform.Code, tokenURL, form, &resp); err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		return nil, ErrNoOAuthToken
	}

	session := &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if resp.ExpiresIn > 0 {
		session.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	return session, nil
}

// FetchAccount получает состояние аккаунта
func (c *OAuth2Connector) FetchAccount(ctx context.Context, platform *models.Platform, session *Session) (*AccountInfo, error) {
	var resp struct {
		Data []struct {
			AccountNumber   string  `json:"accountNumber"`
			Label           string  `json:"label"`
			Live            bool    `json:"live"`
			DepositCurrency string  `json:"depositCurrency"`
			Balance         float64 `json:"balance"`
			Equity          float64 `json:"equity"`
			UsedMargin      float64 `json:"usedMargin"`
			FreeMargin      float64 `json:"freeMargin"`
		} `json:"data"`
	}

	accountURL := platform.APIBaseURL + "/v1/accounts"
	if err := c.http.DoJSON(ctx, platform.Code, http.MethodGet, accountURL, bearerHeader(session), nil, &resp); err != nil {
		return nil, newError(platform.Code, PhaseFetchAccount, err)
	}

	if len(resp.Data) == 0 {
		return nil, newError(platform.Code, PhaseFetchAccount, fmt.Errorf("venue returned no accounts"))
	}

	acc := resp.Data[0]
	accountType := models.AccountTypeDemo
	if acc.Live {
		accountType = models.AccountTypeLive
	}

	return &AccountInfo{
		AccountNumber: acc.AccountNumber,
		AccountName:   acc.Label,
		AccountType:   accountType,
		Currency:      acc.DepositCurrency,
		Balance:       acc.Balance,
		Equity:        acc.Equity,
		MarginUsed:    acc.UsedMargin,
		FreeMargin:    acc.FreeMargin,
	}, nil
}

// FetchTrades получает сделки аккаунта
func (c *OAuth2Connector) FetchTrades(ctx context.Context, platform *models.Platform, session *Session) ([]*TradeInfo, error) {
	var resp struct {
		Data []struct {
			DealID          string  `json:"dealId"`
			SymbolName      string  `json:"symbolName"`
			TradeSide       string  `json:"tradeSide"`
			Volume          float64 `json:"volume"`
			ExecutionPrice  float64 `json:"executionPrice"`
			ClosePrice      float64 `json:"closePrice"`
			GrossProfit     float64 `json:"grossProfit"`
			Status          string  `json:"status"`
			CreateTimestamp int64   `json:"createTimestamp"` // unix миллисекунды
			CloseTimestamp  int64   `json:"closeTimestamp"`  // unix миллисекунды, 0 для открытых
		} `json:"data"`
	}

	dealsURL := platform.APIBaseURL + "/v1/deals"
	if err := c.http.DoJSON(ctx, platform.Code, http.MethodGet, dealsURL, bearerHeader(session), nil, &resp); err != nil {
		return nil, newError(platform.Code, PhaseFetchTrades, err)
	}

	trades := make([]*TradeInfo, 0, len(resp.Data))
	for _, d := range resp.Data {
		trade := &TradeInfo{
			TradeID:    d.DealID,
			Symbol:     d.SymbolName,
			Side:       normalizeSide(d.TradeSide),
			Volume:     d.Volume,
			OpenPrice:  d.ExecutionPrice,
			ClosePrice: d.ClosePrice,
			Profit:     d.GrossProfit,
			Status:     normalizeTradeStatus(d.Status),
			OpenedAt:   time.UnixMilli(d.CreateTimestamp).UTC(),
		}

		if d.CloseTimestamp > 0 {
			closedAt := time.UnixMilli(d.CloseTimestamp).UTC()
			trade.ClosedAt = &closedAt
		}

		trades = append(trades, trade)
	}

	return trades, nil
}
