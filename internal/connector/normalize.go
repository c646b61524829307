package connector

import (
	"strings"

	"brokerlink/internal/models"
)

// Нормализация строковых перечислений удаленных API.
// Каждая площадка называет одно и то же по-своему; зеркало хранит
// только канонические значения из internal/models.

// normalizeAccountType приводит тип аккаунта площадки к demo/live/prop
func normalizeAccountType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "demo", "practice", "paper", "simulated":
		return models.AccountTypeDemo
	case "prop", "funded", "evaluation", "challenge":
		return models.AccountTypeProp
	default:
		// Площадки чаще всего не помечают боевые аккаунты явно
		return models.AccountTypeLive
	}
}

// normalizeSide приводит направление сделки к buy/sell
func normalizeSide(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sell", "short", "deal_type_sell", "1":
		return models.TradeSideSell
	default:
		return models.TradeSideBuy
	}
}

// normalizeTradeStatus приводит статус сделки к open/closed
func normalizeTradeStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "closed", "close", "filled_closed", "done":
		return models.TradeStatusClosed
	default:
		return models.TradeStatusOpen
	}
}
