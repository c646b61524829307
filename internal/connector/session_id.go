package connector

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"brokerlink/internal/models"
)

// Ошибки session_id коннектора
var (
	ErrEmptySessionCredentials = errors.New("username, password and server are required")
	ErrNoSessionID             = errors.New("login response contains no session id")
)

// sessionIDHeader - заголовок, в котором площадка ждет идентификатор сессии
const sessionIDHeader = "MT-Session-Id"

// SessionIDConnector обслуживает площадки с session-id протоколом
// (мост MetaTrader 5 и совместимые): логин возвращает идентификатор
// сессии, который возвращается заголовком на все последующие вызовы.
// Bearer-токена здесь нет.
type SessionIDConnector struct {
	http *HTTPClient
}

// NewSessionIDConnector создает коннектор session_id
func NewSessionIDConnector(client *HTTPClient) *SessionIDConnector {
	return &SessionIDConnector{http: client}
}

// Type возвращает обслуживаемый тип площадки
func (c *SessionIDConnector) Type() string {
	return models.PlatformTypeSessionID
}

// Authenticate выполняет вход по логину/паролю/серверу
func (c *SessionIDConnector) Authenticate(ctx context.Context, platform *models.Platform, creds Credentials) (*Session, error) {
	if creds.Username == "" || creds.Password == "" || creds.Server == "" {
		return nil, newError(platform.Code, PhaseAuth, ErrEmptySessionCredentials)
	}

	reqBody := struct {
		Login    string `json:"login"`
		Password string `json:"password"`
		Server   string `json:"server"`
	}{
		Login:    creds.Username,
		Password: creds.Password,
		Server:   creds.Server,
	}

	var resp struct {
		SessionID string `json:"sessionId"`
	}

	url := platform.APIBaseURL + "/api/auth/start"
	if err := c.http.DoJSON(ctx, platform.Code, http.MethodPost, url, nil, reqBody, &resp); err != nil {
		return nil, newError(platform.Code, PhaseAuth, err)
	}

	if resp.SessionID == "" {
		return nil, newError(platform.Code, PhaseAuth, ErrNoSessionID)
	}

	return &Session{
		SessionID: resp.SessionID,
		Metadata:  map[string]string{"server": creds.Server},
	}, nil
}

// FetchAccount получает состояние счета.
// Номер счета у MT числовой, margin_free вместо free margin - все
// приводится к единой форме.
func (c *SessionIDConnector) FetchAccount(ctx context.Context, platform *models.Platform, session *Session) (*AccountInfo, error) {
	var resp struct {
		Login      int64   `json:"login"`
		Name       string  `json:"name"`
		TradeMode  string  `json:"trade_mode"` // demo, contest, real
		Currency   string  `json:"currency"`
		Balance    float64 `json:"balance"`
		Equity     float64 `json:"equity"`
		Margin     float64 `json:"margin"`
		MarginFree float64 `json:"margin_free"`
	}

	url := platform.APIBaseURL + "/api/account"
	if err := c.http.DoJSON(ctx, platform.Code, http.MethodGet, url, c.sessionHeader(session), nil, &resp); err != nil {
		return nil, newError(platform.Code, PhaseFetchAccount, err)
	}

	accountType := normalizeAccountType(resp.TradeMode)
	if resp.TradeMode == "contest" {
		accountType = models.AccountTypeProp
	}

	return &AccountInfo{
		AccountNumber: strconv.FormatInt(resp.Login, 10),
		AccountName:   resp.Name,
		AccountType:   accountType,
		Currency:      resp.Currency,
		Balance:       resp.Balance,
		Equity:        resp.Equity,
		MarginUsed:    resp.Margin,
		FreeMargin:    resp.MarginFree,
	}, nil
}

// FetchTrades получает сделки счета.
// Тикеты числовые, направление кодируется DEAL_TYPE_*, время - unix секунды.
func (c *SessionIDConnector) FetchTrades(ctx context.Context, platform *models.Platform, session *Session) ([]*TradeInfo, error) {
	var resp struct {
		Trades []struct {
			Ticket     int64   `json:"ticket"`
			Symbol     string  `json:"symbol"`
			Type       string  `json:"type"` // DEAL_TYPE_BUY / DEAL_TYPE_SELL
			Volume     float64 `json:"volume"`
			PriceOpen  float64 `json:"price_open"`
			PriceClose float64 `json:"price_close"`
			Profit     float64 `json:"profit"`
			State      string  `json:"state"` // open / closed
			TimeOpen   int64   `json:"time_open"`  // unix секунды
			TimeClose  int64   `json:"time_close"` // unix секунды, 0 для открытых
		} `json:"trades"`
	}

	url := platform.APIBaseURL + "/api/trades"
	if err := c.http.DoJSON(ctx, platform.Code, http.MethodGet, url, c.sessionHeader(session), nil, &resp); err != nil {
		return nil, newError(platform.Code, PhaseFetchTrades, err)
	}

	trades := make([]*TradeInfo, 0, len(resp.Trades))
	for _, tr := range resp.Trades {
		trade := &TradeInfo{
			TradeID:    strconv.FormatInt(tr.Ticket, 10),
			Symbol:     tr.Symbol,
			Side:       normalizeSide(tr.Type),
			Volume:     tr.Volume,
			OpenPrice:  tr.PriceOpen,
			ClosePrice: tr.PriceClose,
			Profit:     tr.Profit,
			Status:     normalizeTradeStatus(tr.State),
			OpenedAt:   time.Unix(tr.TimeOpen, 0).UTC(),
		}

		if tr.TimeClose > 0 {
			closedAt := time.Unix(tr.TimeClose, 0).UTC()
			trade.ClosedAt = &closedAt
		}

		trades = append(trades, trade)
	}

	return trades, nil
}

// sessionHeader формирует заголовок с идентификатором сессии
func (c *SessionIDConnector) sessionHeader(session *Session) map[string]string {
	return map[string]string{sessionIDHeader: session.SessionID}
}
