package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/username/callrecon/backend/src/models"
	"github.com/username/callrecon/backend/src/services"
	"github.com/username/callrecon/backend/src/utils"
)

const defaultListLimit = 100

type ReconciliationHandler struct {
	service services.ReconciliationService
}

func NewReconciliationHandler(service services.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{service: service}
}

type reconcileRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Category  string `json:"category"`
}

// HandleTriggerReconciliation runs a reconciliation for the requested window
// and category and returns the run summary.
func (h *ReconciliationHandler) HandleTriggerReconciliation(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid start_date %q, expected YYYY-MM-DD", req.StartDate), http.StatusBadRequest)
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid end_date %q, expected YYYY-MM-DD", req.EndDate), http.StatusBadRequest)
		return
	}
	if end.Before(start) {
		utils.SendJSONError(w, "end_date must not be before start_date", http.StatusBadRequest)
		return
	}
	category, ok := models.ResolveCategory(req.Category)
	if !ok {
		utils.SendJSONError(w, fmt.Sprintf("unknown category %q", req.Category), http.StatusBadRequest)
		return
	}

	summary, err := h.service.RunReconciliation(r.Context(), models.DateWindow{Start: start, End: end}, category)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("reconciliation failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// HandleGetRuns returns the most recent run summaries.
func (h *ReconciliationHandler) HandleGetRuns(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.RecentRuns(listLimit(r))
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("error fetching run summaries: %v", err), http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []models.RunSummary{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// HandleGetUnmatched returns the most recent unmatched records with their
// reasons.
func (h *ReconciliationHandler) HandleGetUnmatched(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.RecentUnmatched(listLimit(r))
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("error fetching unmatched records: %v", err), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []models.UnmatchedCall{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func listLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 && limit <= 1000 {
			return limit
		}
	}
	return defaultListLimit
}
