package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/username/callrecon/backend/src/logger"
	"github.com/username/callrecon/backend/src/models"
	"github.com/username/callrecon/backend/src/security"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

type fakeReconciliationService struct {
	lastWindow   models.DateWindow
	lastCategory models.Category
	lastLimit    int
	summary      *models.RunSummary
	runs         []models.RunSummary
	unmatched    []models.UnmatchedCall
}

func (f *fakeReconciliationService) RunReconciliation(ctx context.Context, window models.DateWindow, category models.Category) (*models.RunSummary, error) {
	f.lastWindow = window
	f.lastCategory = category
	return f.summary, nil
}

func (f *fakeReconciliationService) RecentRuns(limit int) ([]models.RunSummary, error) {
	f.lastLimit = limit
	return f.runs, nil
}

func (f *fakeReconciliationService) RecentUnmatched(limit int) ([]models.UnmatchedCall, error) {
	f.lastLimit = limit
	return f.unmatched, nil
}

func TestHandleTriggerReconciliation(t *testing.T) {
	svc := &fakeReconciliationService{summary: &models.RunSummary{RunID: "r1", MatchedCount: 3}}
	handler := NewReconciliationHandler(svc)

	body := `{"start_date":"2025-12-15","end_date":"2025-12-17","category":"inbound"}`
	req := httptest.NewRequest(http.MethodPost, "/api/reconcile", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.HandleTriggerReconciliation(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, models.CategoryInbound, svc.lastCategory)
	require.Equal(t, time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC), svc.lastWindow.Start)

	var summary models.RunSummary
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&summary))
	require.Equal(t, "r1", summary.RunID)
	require.Equal(t, 3, summary.MatchedCount)
}

func TestHandleTriggerReconciliationValidation(t *testing.T) {
	handler := NewReconciliationHandler(&fakeReconciliationService{})

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{`},
		{name: "bad start date", body: `{"start_date":"12/15/2025","end_date":"2025-12-17","category":"inbound"}`},
		{name: "bad end date", body: `{"start_date":"2025-12-15","end_date":"","category":"inbound"}`},
		{name: "end before start", body: `{"start_date":"2025-12-17","end_date":"2025-12-15","category":"inbound"}`},
		{name: "unknown category", body: `{"start_date":"2025-12-15","end_date":"2025-12-17","category":"billboard"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/reconcile", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			handler.HandleTriggerReconciliation(rr, req)
			require.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestHandleGetRunsEmptyIsJSONArray(t *testing.T) {
	handler := NewReconciliationHandler(&fakeReconciliationService{})

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rr := httptest.NewRecorder()
	handler.HandleGetRuns(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))
}

func TestListLimit(t *testing.T) {
	svc := &fakeReconciliationService{}
	handler := NewReconciliationHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/unmatched?limit=25", nil)
	handler.HandleGetUnmatched(httptest.NewRecorder(), req)
	require.Equal(t, 25, svc.lastLimit)

	// Out-of-range and junk values fall back to the default.
	for _, raw := range []string{"0", "-5", "5000", "abc", ""} {
		req := httptest.NewRequest(http.MethodGet, "/api/unmatched?limit="+raw, nil)
		handler.HandleGetUnmatched(httptest.NewRecorder(), req)
		require.Equal(t, defaultListLimit, svc.lastLimit, "limit=%q", raw)
	}
}

func TestAuthMiddleware(t *testing.T) {
	authService := security.NewAuthService("test-secret-key-that-is-long-enough!")
	next := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }
	protected := AuthMiddleware(authService, next)

	t.Run("missing header", func(t *testing.T) {
		rr := httptest.NewRecorder()
		protected(rr, httptest.NewRequest(http.MethodPost, "/api/reconcile", nil))
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/reconcile", nil)
		req.Header.Set("Authorization", "Bearer not.a.jwt")
		rr := httptest.NewRecorder()
		protected(rr, req)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := authService.GenerateToken("ops", time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/reconcile", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		protected(rr, req)
		require.Equal(t, http.StatusNoContent, rr.Code)
	})
}
