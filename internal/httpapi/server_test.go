package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pzrelay/internal/notifier"
	rtsup "pzrelay/internal/runtime/supervisor"
	"pzrelay/internal/status"
	logx "pzrelay/pkg/logx"
)

type fakeStatus struct {
	snap status.Snapshot
	ok   bool
}

func (f *fakeStatus) Last() (status.Snapshot, bool) { return f.snap, f.ok }

type fakeTrigger struct{ busy bool }

func (f *fakeTrigger) Trigger(ctx context.Context, reason string) bool { return !f.busy }

type fakeTasks []rtsup.TaskStats

func (f fakeTasks) Tasks() []rtsup.TaskStats { return f }

type fakeHistory []notifier.HistoryItem

func (f fakeHistory) History() []notifier.HistoryItem { return f }

func do(t *testing.T, s *Server, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s := New("", Deps{Tasks: fakeTasks{{Name: "scheduler", Running: true}}}, logx.Nop())
	rec, body := do(t, s, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("code = %d, body = %v", rec.Code, body)
	}

	s = New("", Deps{Tasks: fakeTasks{{Name: "socket", Panics: 1}}}, logx.Nop())
	if _, body := do(t, s, http.MethodGet, "/healthz"); body["ok"] != false {
		t.Fatalf("panicked task reported healthy: %v", body)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	src := &fakeStatus{}
	s := New("", Deps{Status: src}, logx.Nop())

	if rec, _ := do(t, s, http.MethodGet, "/status"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code before first cycle = %d", rec.Code)
	}

	src.snap = status.Snapshot{
		Status: status.ServerStatus{State: status.StateRunning, Label: status.LabelRunning, PowerState: "running"},
		Key:    "running",
		At:     time.Unix(1700000000, 0),
	}
	src.ok = true
	rec, body := do(t, s, http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if body["key"] != "running" || body["accent"] != "#2ECC71" {
		t.Fatalf("body = %v", body)
	}
	st, _ := body["status"].(map[string]any)
	if st["state"] != "running" {
		t.Fatalf("status = %v", st)
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()
	trig := &fakeTrigger{}
	s := New("", Deps{Status: &fakeStatus{ok: true}, Trigger: trig}, logx.Nop())
	if rec, _ := do(t, s, http.MethodPost, "/status/check"); rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	trig.busy = true
	if rec, _ := do(t, s, http.MethodPost, "/status/check"); rec.Code != http.StatusConflict {
		t.Fatalf("busy code = %d", rec.Code)
	}
}

func TestRoutesDisabledWithoutDeps(t *testing.T) {
	t.Parallel()
	s := New("", Deps{}, logx.Nop())
	for _, path := range []string{"/status", "/notifications"} {
		if rec, _ := do(t, s, http.MethodGet, path); rec.Code != http.StatusNotFound {
			t.Fatalf("%s code = %d, want 404", path, rec.Code)
		}
	}
}

func TestNotifications(t *testing.T) {
	t.Parallel()
	s := New("", Deps{History: fakeHistory{{Channel: "telegram", Text: "hi"}}}, logx.Nop())
	rec, body := do(t, s, http.MethodGet, "/notifications")
	items, _ := body["items"].([]any)
	if rec.Code != http.StatusOK || len(items) != 1 {
		t.Fatalf("code = %d, body = %v", rec.Code, body)
	}
}

func TestCheckRequiresToken(t *testing.T) {
	t.Parallel()
	s := New("", Deps{Status: &fakeStatus{ok: true}, Trigger: &fakeTrigger{}}, logx.Nop(), WithToken("s3cret"))
	if rec, _ := do(t, s, http.MethodPost, "/status/check"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token code = %d, want 401", rec.Code)
	}
	if rec, _ := do(t, s, http.MethodPost, "/status/check?token=s3cret"); rec.Code != http.StatusOK {
		t.Fatalf("query token code = %d, want 200", rec.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/status/check", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer code = %d, want 200", rec.Code)
	}
	// Read-only routes stay open.
	if rec, _ := do(t, s, http.MethodGet, "/status"); rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
}

func TestPprof(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		addr string
		opts []Option
		want int
	}{
		{"off", "", nil, http.StatusNotFound},
		{"loopback", "127.0.0.1:8089", []Option{WithPprof(true)}, http.StatusOK},
		{"public without token", "0.0.0.0:8089", []Option{WithPprof(true)}, http.StatusNotFound},
		{"public with token", "0.0.0.0:8089", []Option{WithPprof(true), WithToken("t")}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := New(tt.addr, Deps{}, logx.Nop(), tt.opts...)
			if rec, _ := do(t, s, http.MethodGet, "/debug/pprof/goroutine?debug=1"); rec.Code != tt.want {
				t.Fatalf("code = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
