package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"brokerlink/internal/models"
)

// ============ PlatformHandler Tests ============

func TestPlatformHandler_GetPlatforms(t *testing.T) {
	t.Run("returns empty list when registry is empty", func(t *testing.T) {
		mockSvc := NewMockPlatformService()
		handler := NewPlatformHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/platforms", nil)
		w := httptest.NewRecorder()

		handler.GetPlatforms(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response []PlatformResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if len(response) != 0 {
			t.Errorf("expected 0 platforms, got %d", len(response))
		}
	})

	t.Run("returns seeded platforms", func(t *testing.T) {
		mockSvc := NewMockPlatformService()
		handler := NewPlatformHandler(mockSvc)

		mockSvc.AddPlatform(&models.Platform{
			ID:                 1,
			Code:               "tradelocker",
			Name:               "TradeLocker",
			Type:               "session_login",
			SupportsAPI:        true,
			SupportsWebTrading: true,
			WebTradingURL:      "https://web.tradelocker.com",
		})
		mockSvc.AddPlatform(&models.Platform{
			ID:          2,
			Code:        "metatrader5",
			Name:        "MetaTrader 5",
			Type:        "session_id",
			SupportsAPI: true,
		})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/platforms", nil)
		w := httptest.NewRecorder()

		handler.GetPlatforms(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response []PlatformResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if len(response) != 2 {
			t.Fatalf("expected 2 platforms, got %d", len(response))
		}

		if response[0].Code != "tradelocker" {
			t.Errorf("expected code tradelocker, got %q", response[0].Code)
		}
		if response[0].WebTradingURL != "https://web.tradelocker.com" {
			t.Errorf("unexpected web trading url: %q", response[0].WebTradingURL)
		}
		if response[1].Type != "session_id" {
			t.Errorf("expected type session_id, got %q", response[1].Type)
		}
		if response[1].SupportsWebTrading {
			t.Error("metatrader5 should not support web trading")
		}
	})

	t.Run("returns 500 on service error", func(t *testing.T) {
		mockSvc := NewMockPlatformService()
		handler := NewPlatformHandler(mockSvc)

		mockSvc.listErr = ErrMockDatabase

		req := httptest.NewRequest(http.MethodGet, "/api/v1/platforms", nil)
		w := httptest.NewRecorder()

		handler.GetPlatforms(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var response ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Error == "" {
			t.Error("expected non-empty error message")
		}
	})
}
