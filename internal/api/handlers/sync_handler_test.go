package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"brokerlink/internal/connector"
	"brokerlink/internal/repository"
	"brokerlink/internal/service"
)

func syncRequest(connectionID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/"+connectionID, nil)
	return mux.SetURLVars(req, map[string]string{"connectionId": connectionID})
}

// ============ SyncHandler Tests ============

func TestSyncHandler_Sync(t *testing.T) {
	t.Run("successfully syncs connection", func(t *testing.T) {
		mockSvc := NewMockSyncService()
		handler := NewSyncHandler(mockSvc)

		req := syncRequest("7")
		w := httptest.NewRecorder()

		handler.Sync(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}

		var response SuccessResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Message == "" {
			t.Error("expected non-empty message")
		}

		if mockSvc.syncCalls != 1 {
			t.Errorf("expected 1 sync call, got %d", mockSvc.syncCalls)
		}
		if mockSvc.lastID != 7 {
			t.Errorf("expected sync of connection 7, got %d", mockSvc.lastID)
		}
	})

	t.Run("returns 400 for invalid connection id", func(t *testing.T) {
		mockSvc := NewMockSyncService()
		handler := NewSyncHandler(mockSvc)

		req := syncRequest("abc")
		w := httptest.NewRecorder()

		handler.Sync(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
		if mockSvc.syncCalls != 0 {
			t.Errorf("expected 0 sync calls, got %d", mockSvc.syncCalls)
		}
	})

	t.Run("returns 400 for non-positive connection id", func(t *testing.T) {
		mockSvc := NewMockSyncService()
		handler := NewSyncHandler(mockSvc)

		req := syncRequest("0")
		w := httptest.NewRecorder()

		handler.Sync(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("returns 404 for missing connection", func(t *testing.T) {
		mockSvc := NewMockSyncService()
		handler := NewSyncHandler(mockSvc)

		mockSvc.syncErr = &service.SyncError{
			ConnectionID: 99,
			Venue:        "",
			Cause:        repository.ErrConnectionNotFound,
		}

		req := syncRequest("99")
		w := httptest.NewRecorder()

		handler.Sync(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})

	t.Run("returns 409 for inactive connection", func(t *testing.T) {
		mockSvc := NewMockSyncService()
		handler := NewSyncHandler(mockSvc)

		mockSvc.syncErr = service.ErrConnectionInactive

		req := syncRequest("7")
		w := httptest.NewRecorder()

		handler.Sync(w, req)

		if w.Code != http.StatusConflict {
			t.Errorf("expected status %d, got %d", http.StatusConflict, w.Code)
		}
	})

	t.Run("returns 502 when venue fails", func(t *testing.T) {
		mockSvc := NewMockSyncService()
		handler := NewSyncHandler(mockSvc)

		mockSvc.syncErr = &service.SyncError{
			ConnectionID: 7,
			Venue:        "ctrader",
			Cause: &connector.ConnectorError{
				Venue: "ctrader",
				Phase: connector.PhaseFetchAccount,
				Cause: errors.New("connection refused"),
			},
		}

		req := syncRequest("7")
		w := httptest.NewRecorder()

		handler.Sync(w, req)

		if w.Code != http.StatusBadGateway {
			t.Errorf("expected status %d, got %d", http.StatusBadGateway, w.Code)
		}
	})

	t.Run("returns 500 on storage error", func(t *testing.T) {
		mockSvc := NewMockSyncService()
		handler := NewSyncHandler(mockSvc)

		mockSvc.syncErr = &service.SyncError{
			ConnectionID: 7,
			Venue:        "tradelocker",
			Cause:        ErrMockDatabase,
		}

		req := syncRequest("7")
		w := httptest.NewRecorder()

		handler.Sync(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}
