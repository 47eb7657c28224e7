// Package httpapi serves a small local JSON API over the relay state.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"pzrelay/internal/notifier"
	"pzrelay/internal/render"
	rtsup "pzrelay/internal/runtime/supervisor"
	"pzrelay/internal/status"
	logx "pzrelay/pkg/logx"
)

const DefaultAddr = "127.0.0.1:8089"

var ginMode sync.Once

type StatusSource interface {
	Last() (status.Snapshot, bool)
}

type Trigger interface {
	Trigger(ctx context.Context, reason string) bool
}

type TaskSource interface {
	Tasks() []rtsup.TaskStats
}

type HistorySource interface {
	History() []notifier.HistoryItem
}

// Deps are the read sides the API exposes. Nil fields disable their routes.
type Deps struct {
	Status  StatusSource
	Trigger Trigger
	Tasks   TaskSource
	History HistorySource
}

type Server struct {
	addr    string
	log     logx.Logger
	deps    Deps
	engine  *gin.Engine
	started time.Time

	token string
	pprof bool

	srv *http.Server
}

type Option func(*Server)

// WithToken requires "Authorization: Bearer <token>" (or ?token=) on the
// routes that act or expose internals.
func WithToken(token string) Option {
	return func(s *Server) { s.token = strings.TrimSpace(token) }
}

// WithPprof mounts net/http/pprof under /debug/pprof/.
func WithPprof(enabled bool) Option {
	return func(s *Server) { s.pprof = enabled }
}

func New(addr string, deps Deps, log logx.Logger, opts ...Option) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	ginMode.Do(func() { gin.SetMode(gin.ReleaseMode) })
	s := &Server{addr: addr, log: log, deps: deps, engine: gin.New(), started: time.Now()}
	for _, o := range opts {
		o(s)
	}
	s.engine.Use(gin.Recovery(), s.accessLog())
	s.routes()
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/healthz", s.health)
	if s.deps.Status != nil {
		s.engine.GET("/status", s.status)
	}
	if s.deps.Trigger != nil {
		s.engine.POST("/status/check", s.auth(), s.check)
	}
	if s.deps.History != nil {
		s.engine.GET("/notifications", s.history)
	}
	s.mountPprof()
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.FullPath()),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)))
	}
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{"ok": true, "uptime": time.Since(s.started).Round(time.Second).String()}
	if s.deps.Tasks != nil {
		tasks := s.deps.Tasks.Tasks()
		body["tasks"] = tasks
		for _, t := range tasks {
			if t.Panics > 0 {
				body["ok"] = false
			}
		}
	}
	c.JSON(http.StatusOK, body)
}

type statusResponse struct {
	status.Snapshot
	Display  render.Display `json:"display"`
	Accent   string         `json:"accent"`
	Presence string         `json:"presence,omitempty"`
}

func (s *Server) status(c *gin.Context) {
	snap, ok := s.deps.Status.Last()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no status resolved yet"})
		return
	}
	d := render.DisplayFor(snap.Status)
	c.JSON(http.StatusOK, statusResponse{Snapshot: snap, Display: d, Accent: d.AccentHex()})
}

func (s *Server) check(c *gin.Context) {
	if !s.deps.Trigger.Trigger(c.Request.Context(), "http") {
		c.JSON(http.StatusConflict, gin.H{"error": "status check already running"})
		return
	}
	if s.deps.Status == nil {
		c.JSON(http.StatusAccepted, gin.H{"ok": true})
		return
	}
	snap, _ := s.deps.Status.Last()
	c.JSON(http.StatusOK, snap)
}

func (s *Server) history(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": s.deps.History.History()})
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.srv = &http.Server{Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	s.log.Info("http api listening", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(sctx)
		<-errCh
		return nil
	}
}
