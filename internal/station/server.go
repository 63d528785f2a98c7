package station

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/nearwire/tether/internal/auth"
	"github.com/nearwire/tether/internal/link"
	"github.com/nearwire/tether/internal/observability"
)

const version = "0.1.0"

const defaultPingTimeout = 5 * time.Second

// ServerOptions configure the admin HTTP surface.
type ServerOptions struct {
	Addr        string
	CorsOrigins []string
	// AuthToken guards the /v1 routes when set. Health, readiness and
	// metrics stay open either way.
	AuthToken string
}

// Server is the admin HTTP surface over one station.
type Server struct {
	station *Service
	router  *gin.Engine
	addr    string
	token   string

	http *http.Server
}

func NewServer(st *Service, opts ServerOptions) *Server {
	observability.RegisterMetrics()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, "/health", "/ready", "/metrics"))
	r.Use(observability.RequestMetricsMiddleware(st.Name()))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		station: st,
		router:  r,
		addr:    opts.Addr,
		token:   opts.AuthToken,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine { return s.router }

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"station": s.station.Name(),
			"uptime":  time.Since(s.station.Started()).String(),
			"version": version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":   true,
			"station": s.station.Name(),
			"link":    s.station.LinkState().String(),
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/v1")
	if s.token != "" {
		v1.Use(auth.Middleware(auth.StaticToken{Token: s.token}))
	}

	v1.GET("/link", func(c *gin.Context) {
		st := s.station.LinkStatus()
		c.JSON(http.StatusOK, gin.H{
			"state":    st.State.String(),
			"endpoint": st.Endpoint,
		})
	})

	v1.POST("/link/connect", func(c *gin.Context) {
		var req struct {
			Endpoint string `json:"endpoint"`
			Secure   bool   `json:"secure"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Endpoint == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
			return
		}
		s.station.Connect(req.Endpoint, req.Secure)
		c.JSON(http.StatusAccepted, gin.H{"state": s.station.LinkState().String()})
	})

	v1.POST("/link/listen", func(c *gin.Context) {
		var req struct {
			Secure bool `json:"secure"`
		}
		// An empty body means an insecure listener.
		if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.station.Listen(req.Secure)
		c.JSON(http.StatusAccepted, gin.H{"state": s.station.LinkState().String()})
	})

	v1.POST("/link/stop", func(c *gin.Context) {
		s.station.StopLink()
		c.JSON(http.StatusOK, gin.H{"state": s.station.LinkState().String()})
	})

	v1.POST("/messages", func(c *gin.Context) {
		var req struct {
			Text string `json:"text"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		msg, err := s.station.SendText(req.Text)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, link.ErrNotConnected) {
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": msg.ID, "at": msg.At})
	})

	v1.GET("/messages", func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
				return
			}
			limit = n
		}
		msgs := s.station.History(limit)
		c.JSON(http.StatusOK, gin.H{
			"messages": msgs,
			"count":    len(msgs),
		})
	})

	v1.POST("/ping", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), defaultPingTimeout)
		defer cancel()

		rtt, err := s.station.Ping(ctx)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, link.ErrNotConnected):
				status = http.StatusConflict
			case errors.Is(err, ErrPingTimeout):
				status = http.StatusGatewayTimeout
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rtt_ms": float64(rtt.Microseconds()) / 1000.0})
	})
}

// Serve blocks running the admin API until Shutdown or a listener error.
func (s *Server) Serve() error {
	s.http = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", s.addr).Msg("admin api listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
