package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/realjules/SpeakWise/internal/domain"
	"github.com/realjules/SpeakWise/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCallRecordRepo struct {
	records []*domain.CallRecord
}

func (r *memoryCallRecordRepo) Create(_ context.Context, record *domain.CallRecord) error {
	r.records = append(r.records, record)
	return nil
}

func (r *memoryCallRecordRepo) GetByCallID(_ context.Context, callID string) (*domain.CallRecord, error) {
	for _, record := range r.records {
		if record.CallID == callID {
			return record, nil
		}
	}
	return nil, nil
}

func (r *memoryCallRecordRepo) ListByPhone(_ context.Context, phone string, _ int) ([]*domain.CallRecord, error) {
	var out []*domain.CallRecord
	for _, record := range r.records {
		if record.PhoneNumber == phone {
			out = append(out, record)
		}
	}
	return out, nil
}

func (r *memoryCallRecordRepo) ListRecent(_ context.Context, since time.Time, _ int) ([]*domain.CallRecord, error) {
	var out []*domain.CallRecord
	for _, record := range r.records {
		if !record.StartedAt.Before(since) {
			out = append(out, record)
		}
	}
	return out, nil
}

type memorySMSRecordRepo struct {
	records []*domain.SMSRecord
}

func (r *memorySMSRecordRepo) Create(_ context.Context, record *domain.SMSRecord) error {
	r.records = append(r.records, record)
	return nil
}

func (r *memorySMSRecordRepo) ListByRecipient(_ context.Context, recipient string, _ int) ([]*domain.SMSRecord, error) {
	var out []*domain.SMSRecord
	for _, record := range r.records {
		if record.Recipient == recipient {
			out = append(out, record)
		}
	}
	return out, nil
}

type memoryRepoManager struct {
	calls *memoryCallRecordRepo
	sms   *memorySMSRecordRepo
}

func newMemoryRepoManager() *memoryRepoManager {
	return &memoryRepoManager{
		calls: &memoryCallRecordRepo{},
		sms:   &memorySMSRecordRepo{},
	}
}

func (m *memoryRepoManager) CallRecords() repository.CallRecordRepository { return m.calls }
func (m *memoryRepoManager) SMSRecords() repository.SMSRecordRepository   { return m.sms }
func (m *memoryRepoManager) Close() error                                 { return nil }

func newHistoryRouter(repo repository.RepositoryManager) *mux.Router {
	handler := NewHistoryHandler(repo)
	router := mux.NewRouter()
	router.HandleFunc("/telephony/history/calls", handler.ListCallRecords).Methods("GET")
	router.HandleFunc("/telephony/history/calls/{call_id}", handler.GetCallRecord).Methods("GET")
	router.HandleFunc("/telephony/history/sms", handler.ListSMSRecords).Methods("GET")
	return router
}

func decodeRecordList(t *testing.T, rec *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var resp struct {
		Records []map[string]interface{} `json:"records"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Records
}

func TestGetCallRecordEndpoint(t *testing.T) {
	repo := newMemoryRepoManager()
	started := time.Now().Add(-2 * time.Minute)
	repo.calls.Create(context.Background(), &domain.CallRecord{
		CallID:          "c1",
		PhoneNumber:     "+250788000000",
		Status:          domain.CallStatusCompleted,
		StartedAt:       started,
		EndedAt:         started.Add(95 * time.Second),
		DurationSeconds: 95,
	})
	router := newHistoryRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/telephony/history/calls/c1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var record domain.CallRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&record))
	assert.Equal(t, "c1", record.CallID)
	assert.Equal(t, 95, record.DurationSeconds)

	req = httptest.NewRequest(http.MethodGet, "/telephony/history/calls/missing", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCallRecordsEndpoint(t *testing.T) {
	repo := newMemoryRepoManager()
	now := time.Now()
	repo.calls.Create(context.Background(), &domain.CallRecord{
		CallID: "c1", PhoneNumber: "+250788000000", StartedAt: now.Add(-10 * time.Minute),
	})
	repo.calls.Create(context.Background(), &domain.CallRecord{
		CallID: "c2", PhoneNumber: "+250788111111", StartedAt: now.Add(-5 * time.Minute),
	})
	router := newHistoryRouter(repo)

	// Filtered by phone number.
	req := httptest.NewRequest(http.MethodGet, "/telephony/history/calls?phone=%2B250788000000", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decodeRecordList(t, rec)
	require.Len(t, records, 1)
	assert.Equal(t, "c1", records[0]["call_id"])

	// No filter falls back to the recent window.
	req = httptest.NewRequest(http.MethodGet, "/telephony/history/calls", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeRecordList(t, rec), 2)
}

func TestListSMSRecordsEndpoint(t *testing.T) {
	repo := newMemoryRepoManager()
	repo.sms.Create(context.Background(), &domain.SMSRecord{
		SMSID: "s1", Recipient: "+250788000000", Status: "delivered",
	})
	router := newHistoryRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/telephony/history/sms?recipient=%2B250788000000", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decodeRecordList(t, rec)
	require.Len(t, records, 1)
	assert.Equal(t, "s1", records[0]["sms_id"])

	req = httptest.NewRequest(http.MethodGet, "/telephony/history/sms", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryEndpointsWithoutRepository(t *testing.T) {
	router := newHistoryRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/telephony/history/calls", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
