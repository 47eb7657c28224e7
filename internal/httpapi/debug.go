package httpapi

import (
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	"github.com/gin-gonic/gin"

	logx "pzrelay/pkg/logx"
)

const pprofPrefix = "/debug/pprof"

// mountPprof refuses a tokenless non-loopback bind so profiles are never
// exposed by accident.
func (s *Server) mountPprof() {
	if !s.pprof {
		return
	}
	if s.token == "" && !isLoopbackAddr(s.addr) {
		s.log.Error("pprof not mounted: non-loopback addr requires http.token", logx.String("addr", s.addr))
		return
	}
	g := s.engine.Group(pprofPrefix, s.auth())
	g.GET("/", gin.WrapF(hpprof.Index))
	g.GET("/cmdline", gin.WrapF(hpprof.Cmdline))
	g.GET("/profile", gin.WrapF(hpprof.Profile))
	g.GET("/symbol", gin.WrapF(hpprof.Symbol))
	g.POST("/symbol", gin.WrapF(hpprof.Symbol))
	g.GET("/trace", gin.WrapF(hpprof.Trace))
	g.GET("/:profile", func(c *gin.Context) {
		hpprof.Handler(c.Param("profile")).ServeHTTP(c.Writer, c.Request)
	})
	s.log.Info("pprof mounted", logx.String("prefix", pprofPrefix+"/"), logx.Bool("token_set", s.token != ""))
}

// auth accepts "Authorization: Bearer <token>" or ?token=<token>. Without a
// configured token every request passes.
func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token == "" {
			c.Next()
			return
		}
		got := c.Query("token")
		if got == "" {
			const p = "Bearer "
			if ah := c.GetHeader("Authorization"); strings.HasPrefix(ah, p) {
				got = strings.TrimSpace(strings.TrimPrefix(ah, p))
			}
		}
		if got != s.token {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
