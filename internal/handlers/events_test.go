package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fancontrol/internal/models"
	"fancontrol/internal/service"
)

func getWithAuth(t *testing.T, s *service.Service, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	r := newTestRouter(s)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, vv := range authHeader(token) {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	r.ServeHTTP(w, req)
	return w
}

func TestEventsHandler_ListAndValidation(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	events := []models.ControlEvent{
		{EventID: "e1", OccurredAt: now, Type: models.EventStart, Description: "start"},
		{EventID: "e2", OccurredAt: now.Add(time.Second), Type: models.EventDutyChange, Description: "duty 30 -> 45"},
	}
	logs := &mockEventLog{resp: events}
	s := &service.Service{
		Authorization: &mockAuth{subject: "ops"},
		EventLog:      logs,
	}

	w := getWithAuth(t, s, "/api/v1/events?from=notatime", "valid")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 invalid 'from', got %d", w.Code)
	}

	w = getWithAuth(t, s, "/api/v1/events?to=yesterday", "valid")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 invalid 'to', got %d", w.Code)
	}

	w = getWithAuth(t, s, "/api/v1/events?from=2026-10-02&to=2026-10-01", "valid")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for reversed range, got %d", w.Code)
	}

	q := "/api/v1/events?from=" + now.Format(time.RFC3339) + "&to=" + now.Add(2*time.Second).Format(time.RFC3339) + "&type=duty_change"
	w = getWithAuth(t, s, q, "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("events status=%d, body=%s", w.Code, w.Body.String())
	}
	var out struct {
		Count  int                   `json:"count"`
		Events []models.ControlEvent `json:"events"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Count != 2 || len(out.Events) != 2 {
		t.Fatalf("unexpected response: %+v", out)
	}
	if logs.lastType != models.EventDutyChange {
		t.Fatalf("expected lastType DUTY_CHANGE, got %q", logs.lastType)
	}
	if !logs.lastFrom.Equal(now) {
		t.Fatalf("from = %v, want %v", logs.lastFrom, now)
	}
}

func TestEventsHandler_DateOnlyToCoversDay(t *testing.T) {
	logs := &mockEventLog{}
	s := &service.Service{EventLog: logs}

	w := getWithAuth(t, s, "/api/v1/events?to=2026-10-15", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	want := time.Date(2026, 10, 15, 23, 59, 59, int(999*time.Millisecond), time.UTC)
	if !logs.lastTo.Equal(want) {
		t.Fatalf("to = %v, want %v", logs.lastTo, want)
	}
}

func TestEventsHandler_RequiresTokenWhenAuthEnabled(t *testing.T) {
	s := &service.Service{
		Authorization: &mockAuth{},
		EventLog:      &mockEventLog{},
	}
	if w := getWithAuth(t, s, "/api/v1/events", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestEventsHandler_ServiceError(t *testing.T) {
	s := &service.Service{EventLog: &mockEventLog{err: errors.New("db down")}}
	w := getWithAuth(t, s, "/api/v1/events", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestParseQueryTime(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2026-10-15T10:00:00Z", time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC), true},
		{"2026-10-15T12:00:00+02:00", time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC), true},
		{"2026-10-15 10:00:00", time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC), true},
		{"2026-10-15", time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), true},
		{"15/10/2026", time.Time{}, false},
	}
	for _, tc := range cases {
		got, err := parseQueryTime(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("%q: err=%v, want ok=%v", tc.in, err, tc.ok)
		}
		if tc.ok && !got.Equal(tc.want) {
			t.Fatalf("%q: got %v, want %v", tc.in, got, tc.want)
		}
	}
}
