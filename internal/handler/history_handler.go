package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/realjules/SpeakWise/internal/repository"
	"github.com/realjules/SpeakWise/pkg/logger"
	"go.uber.org/zap"
)

// defaultHistoryWindow bounds ListRecentCallRecords when no window is given.
const defaultHistoryWindow = 24 * time.Hour

// HistoryHandler serves persisted call and SMS records. All endpoints
// require a configured repository.
type HistoryHandler struct {
	repo repository.RepositoryManager
}

// NewHistoryHandler creates a new history handler. The repository may be
// nil when persistence is not configured.
func NewHistoryHandler(repo repository.RepositoryManager) *HistoryHandler {
	return &HistoryHandler{repo: repo}
}

func (h *HistoryHandler) requireRepo(w http.ResponseWriter) bool {
	if h.repo == nil {
		http.Error(w, "call history is not configured", http.StatusNotImplemented)
		return false
	}
	return true
}

// GetCallRecord returns the persisted record for one call
func (h *HistoryHandler) GetCallRecord(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	callID := mux.Vars(r)["call_id"]

	record, err := h.repo.CallRecords().GetByCallID(r.Context(), callID)
	if err != nil {
		logger.Base().Error("Failed to load call record",
			zap.String("call_id", callID),
			zap.Error(err))
		http.Error(w, "failed to load call record", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "call record not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// ListCallRecords returns persisted call records, filtered by phone
// number when the phone query parameter is set and by recency otherwise.
func (h *HistoryHandler) ListCallRecords(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	phone := r.URL.Query().Get("phone")
	limit := parseLimit(r.URL.Query().Get("limit"))

	var (
		records interface{}
		err     error
	)
	if phone != "" {
		records, err = h.repo.CallRecords().ListByPhone(r.Context(), phone, limit)
	} else {
		records, err = h.repo.CallRecords().ListRecent(r.Context(), time.Now().Add(-defaultHistoryWindow), limit)
	}
	if err != nil {
		logger.Base().Error("Failed to list call records", zap.Error(err))
		http.Error(w, "failed to list call records", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

// ListSMSRecords returns persisted SMS records for a recipient
func (h *HistoryHandler) ListSMSRecords(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	recipient := r.URL.Query().Get("recipient")
	if recipient == "" {
		http.Error(w, "recipient is required", http.StatusBadRequest)
		return
	}

	records, err := h.repo.SMSRecords().ListByRecipient(r.Context(), recipient, parseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		logger.Base().Error("Failed to list sms records",
			zap.String("recipient", recipient),
			zap.Error(err))
		http.Error(w, "failed to list sms records", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
