package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type stubExportService struct {
	before time.Time
	orders int64
	audit  int64
	err    error
}

func (s *stubExportService) Run(_ context.Context, before time.Time) (int64, int64, error) {
	s.before = before
	return s.orders, s.audit, s.err
}

func TestTriggerArchive(t *testing.T) {
	svc := &stubExportService{orders: 12, audit: 40}
	h := NewArchiveHandler(svc, testLogger())

	body := `{"before":"2026-07-01T00:00:00Z"}`
	r := httptest.NewRequest(http.MethodPost, "/api/archive/trigger", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.TriggerArchive(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !svc.before.Equal(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("before = %v", svc.before)
	}

	var resp map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["orders_archived"] != 12 || resp["audit_archived"] != 40 {
		t.Errorf("response = %v", resp)
	}
}

func TestTriggerArchiveEmptyBodyUsesDefaultCutoff(t *testing.T) {
	svc := &stubExportService{}
	h := NewArchiveHandler(svc, testLogger())

	r := httptest.NewRequest(http.MethodPost, "/api/archive/trigger", nil)
	rec := httptest.NewRecorder()
	h.TriggerArchive(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !svc.before.IsZero() {
		t.Errorf("before = %v, want zero for service default", svc.before)
	}
}

func TestTriggerArchiveBadCutoff(t *testing.T) {
	h := NewArchiveHandler(&stubExportService{}, testLogger())

	r := httptest.NewRequest(http.MethodPost, "/api/archive/trigger", strings.NewReader(`{"before":"yesterday"}`))
	rec := httptest.NewRecorder()
	h.TriggerArchive(rec, r)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
