package panel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	logx "pzrelay/pkg/logx"
)

type chanHandler struct {
	power   chan string
	console chan string
}

func (h *chanHandler) OnPowerState(s string)  { h.power <- s }
func (h *chanHandler) OnConsoleLine(s string) { h.console <- s }

func TestSocketSessionFlow(t *testing.T) {
	t.Parallel()

	var issued atomic.Int32
	auths := make(chan string, 4)
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/api/client/servers/srv1/websocket", func(w http.ResponseWriter, r *http.Request) {
		n := issued.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{
			"token":  "tok" + string(rune('0'+n)),
			"socket": "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		}})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Origin") != srv.URL {
			t.Errorf("Origin = %q", r.Header.Get("Origin"))
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		readAuth := func() {
			var m struct {
				Event string   `json:"event"`
				Args  []string `json:"args"`
			}
			if err := conn.ReadJSON(&m); err != nil || m.Event != "auth" || len(m.Args) != 1 {
				t.Errorf("auth frame = %+v, %v", m, err)
				return
			}
			auths <- m.Args[0]
		}
		readAuth()
		_ = conn.WriteJSON(map[string]any{"event": "auth success"})
		_ = conn.WriteJSON(map[string]any{"event": "status", "args": []string{"starting"}})
		_ = conn.WriteJSON(map[string]any{"event": "console output", "args": []string{"Server restart in 5 minutes"}})
		_ = conn.WriteJSON(map[string]any{"event": "stats", "args": []string{`{"memory_bytes":1}`}})
		_ = conn.WriteJSON(map[string]any{"event": "token expiring"})
		readAuth()
		// Hold the connection until the client goes away.
		_, _, _ = conn.ReadMessage()
	})

	c, err := New(srv.URL, "key", "srv1", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	h := &chanHandler{power: make(chan string, 1), console: make(chan string, 1)}
	s := NewSocket(c, h, logx.Nop(), SocketOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	expect := func(ch <-chan string, want string) {
		t.Helper()
		select {
		case got := <-ch:
			if got != want {
				t.Fatalf("got %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
	expect(auths, "tok1")
	expect(h.power, "starting")
	expect(h.console, "Server restart in 5 minutes")
	expect(auths, "tok2")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSocketRetriesAfterCredentialFailure(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/client/servers/srv1/websocket", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := New(srv.URL, "key", "srv1", time.Second)
	s := NewSocket(c, &chanHandler{}, logx.Nop(), SocketOptions{CredentialsRetry: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)
	if calls.Load() < 2 {
		t.Fatalf("credential fetches = %d, want retries", calls.Load())
	}
}
