package debugserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"client-telemetry/pkg/baseline"
	"client-telemetry/pkg/liveness"
	"client-telemetry/pkg/logging"
	"client-telemetry/pkg/regression"
	"client-telemetry/pkg/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Service is the telemetry surface exposed over HTTP. *telemetry.Aggregator
// satisfies it.
type Service interface {
	telemetry.TelemetryReader
	Liveness() liveness.NetworkStatus
	LivenessState() liveness.State
	ForceDesync(durationMs int64)
	ClearForcedDesync()
	SetThreshold(ms int64)
	Baselines() []baseline.Entry
	CaptureBaseline(label string) baseline.Entry
	Evaluate(label string) (regression.Report, error)
}

type Config struct {
	ListenAddr     string
	StreamInterval time.Duration
}

type Server struct {
	cfg    Config
	svc    Service
	log    logrus.FieldLogger
	router *gin.Engine
	http   *http.Server

	done     chan struct{}
	stopOnce sync.Once
}

func New(svc Service, cfg Config, log logrus.FieldLogger) *Server {
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = time.Second
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg: cfg,
		svc: svc,
		log:  logging.Component(log, "debugserver"),
		done: make(chan struct{}),
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.log))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/telemetry", GetTelemetryHandler(svc))
	router.GET("/diagnostics", GetDiagnosticsHandler(svc))

	live := router.Group("/liveness")
	{
		live.GET("", GetLivenessHandler(svc))
		live.POST("/force", ForceDesyncHandler(svc))
		live.DELETE("/force", ClearForcedDesyncHandler(svc))
		live.PUT("/threshold", SetThresholdHandler(svc))
	}

	router.GET("/baselines", GetBaselinesHandler(svc))
	router.POST("/baselines", CaptureBaselineHandler(svc))
	router.GET("/regression", GetRegressionHandler(svc))
	router.GET("/stream", StreamHandler(svc, cfg.StreamInterval, s.done, s.log))

	s.router = router
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Start binds the listen address and serves in the background. The bound
// address is returned so ":0" can be used.
func (s *Server) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("debug server stopped")
		}
	}()
	s.log.WithField("addr", ln.Addr().String()).Info("debug server listening")
	return ln.Addr(), nil
}

// Shutdown ends open streams and then stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.done) })
	return s.http.Shutdown(ctx)
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("request")
	}
}
