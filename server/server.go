package server

import (
	"context"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trashdrop/config"
	"trashdrop/db"
	"trashdrop/events"
	"trashdrop/request"
	"trashdrop/websocket"
)

const (
	EndPointHelp    = "/help"
	EndPointHealth  = "/health"
	EndPointMetrics = "/metrics"
	EndPointListen  = "/ws"

	EndPointRequests = "/requests"
	EndPointRequest  = "/requests/:id"
	EndPointLegacy   = "/requests/legacy"
	EndPointValidate = "/requests/validate"
	EndPointAccept   = "/requests/:id/accept"
	EndPointStart    = "/requests/:id/start"
	EndPointComplete = "/requests/:id/complete"
	EndPointCancel   = "/requests/:id/cancel"
	EndPointDispose  = "/requests/:id/dispose"
	EndPointNearby   = "/nearby"
	EndPointMap      = "/map"
	EndPointEarnings = "/earnings"
)

// Reader is the read side of the request store.
type Reader interface {
	Get(ctx context.Context, id string) (*request.Request, error)
	List(ctx context.Context, f db.Filter) ([]*request.Request, error)
}

// Server exposes the lifecycle engine over HTTP.
type Server struct {
	cfg     *config.Config
	engine  *request.Engine
	store   Reader
	events  events.Publisher
	limiter Limiter
	hub     *websocket.Hub
	checks  map[string]func() bool
	now     func() time.Time
}

type Option func(*Server)

func WithEvents(p events.Publisher) Option {
	return func(s *Server) { s.events = p }
}

func WithLimiter(l Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithHub enables the notification websocket.
func WithHub(h *websocket.Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithHealthCheck reports a dependency as up or down on /health.
func WithHealthCheck(name string, up func() bool) Option {
	return func(s *Server) {
		if s.checks == nil {
			s.checks = make(map[string]func() bool)
		}
		s.checks[name] = up
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func New(cfg *config.Config, engine *request.Engine, store Reader, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		engine: engine,
		store:  store,
		events: events.Nop{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", headerCollectorID},
		MaxAge:          12 * time.Hour,
	}))
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{EndPointListen})))

	router.GET(EndPointHelp, Help)
	router.GET(EndPointHealth, s.Health)
	router.GET(EndPointMetrics, gin.WrapH(promhttp.Handler()))
	auth := AuthMiddleware(s.cfg.JWTSecret, s.cfg.MockAuth)
	if s.hub != nil {
		router.GET(EndPointListen, auth, s.hub.Handler(currentUser))
	}

	api := router.Group("/api/v1", auth)
	{
		api.GET(EndPointRequests, s.ListRequests)
		api.GET(EndPointRequest, s.GetRequest)
		api.POST(EndPointRequests, s.CreateRequest)
		api.POST(EndPointLegacy, s.ImportLegacy)
		api.POST(EndPointValidate, s.ValidateRequest)
		api.POST(EndPointAccept, RateLimitMiddleware(s.limiter), s.AcceptRequest)
		api.POST(EndPointStart, s.StartPickup)
		api.POST(EndPointComplete, s.CompletePickup)
		api.POST(EndPointCancel, s.CancelRequest)
		api.POST(EndPointDispose, s.DisposeRequest)
		api.GET(EndPointNearby, s.Nearby)
		api.GET(EndPointMap, s.Map)
		api.GET(EndPointEarnings, s.Earnings)
	}

	return router
}

func Help(c *gin.Context) {
	c.String(http.StatusOK, `
	TrashDrop collector API:
	collection request lifecycle server, version 1.0.
	`)
}

func (s *Server) Health(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"service": "trashdrop",
		"time":    s.now().UTC().Format(time.RFC3339),
	}
	if s.hub != nil {
		resp["websocket_clients"] = s.hub.ClientCount()
	}
	if len(s.checks) > 0 {
		deps := make(gin.H, len(s.checks))
		for name, up := range s.checks {
			if up() {
				deps[name] = "up"
				continue
			}
			deps[name] = "down"
			resp["status"] = "degraded"
		}
		resp["dependencies"] = deps
	}
	c.JSON(http.StatusOK, resp)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("Request served")
	}
}
