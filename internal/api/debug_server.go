// Package api отладочный HTTP сервер: диагностика для оверлея, пауза и
// возобновление конвейеров, метрики Prometheus.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/annel0/chunkstream/internal/lod"
	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/metrics"
	"github.com/annel0/chunkstream/internal/middleware"
	"github.com/annel0/chunkstream/internal/storage"
	"github.com/annel0/chunkstream/internal/streamer"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// StreamerView то, что сервер использует у стримера. RequestPause
// безопасен из горутины обработчика.
type StreamerView interface {
	Diagnostics() streamer.Diagnostics
	RequestPause(paused bool)
	Paused() bool
}

// LODView то же для менеджера LOD
type LODView interface {
	Diagnostics() lod.Diagnostics
	RequestPause(paused bool)
	Paused() bool
}

// Config содержит зависимости отладочного сервера
type Config struct {
	Addr     string // адрес прослушивания, например ":8090"
	Streamer StreamerView
	LOD      LODView // nil, если LOD выключен
	Cache    metrics.CacheSource
	Process  *metrics.ProcessStats
	Exporter *metrics.Exporter // nil отключает /metrics
	Logger   *logging.Logger
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// DiagnosticsResponse снимок всех конвейеров
type DiagnosticsResponse struct {
	Streamer streamer.Diagnostics     `json:"streamer"`
	LOD      *lod.Diagnostics         `json:"lod,omitempty"`
	Cache    *storage.CacheStats      `json:"cache,omitempty"`
	Process  *metrics.ProcessSnapshot `json:"process,omitempty"`
}

// DebugServer отладочный сервер на gin
type DebugServer struct {
	router *gin.Engine
	cfg    Config
	logger *logging.Logger
	start  time.Time
	srv    *http.Server
}

// NewDebugServer создаёт сервер и маршруты, но не начинает слушать
func NewDebugServer(cfg Config) *DebugServer {
	if cfg.Addr == "" {
		cfg.Addr = ":8090"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetServerLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	router.Use(middleware.NewRequestLogger(cfg.Logger).Handler())
	router.Use(otelgin.Middleware("debug_api"))

	var reg prometheus.Registerer = prometheus.NewRegistry()
	if cfg.Exporter != nil {
		reg = cfg.Exporter.Registry()
	}
	router.Use(middleware.NewPrometheusMiddleware("debug_api", reg).Handler())

	s := &DebugServer{
		router: router,
		cfg:    cfg,
		logger: cfg.Logger,
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *DebugServer) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	debug := s.router.Group("/debug")
	{
		debug.GET("/diagnostics", s.handleDiagnostics)
		debug.POST("/pause", s.handlePause(true))
		debug.POST("/resume", s.handlePause(false))
	}

	if s.cfg.Exporter != nil {
		s.router.GET("/metrics", gin.WrapH(s.cfg.Exporter.Handler()))
	}
}

// Handler HTTP обработчик сервера (тесты, встраивание)
func (s *DebugServer) Handler() http.Handler {
	return s.router
}

// Start начинает слушать в отдельной горутине
func (s *DebugServer) Start() {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.logger.Info("🔧 Отладочный сервер на %s", s.cfg.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Ошибка отладочного сервера: %v", err)
		}
	}()
}

// Shutdown останавливает сервер
func (s *DebugServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *DebugServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": metrics.FormatUptime(time.Since(s.start)),
		"paused": s.cfg.Streamer != nil && s.cfg.Streamer.Paused(),
	})
}

func (s *DebugServer) handleDiagnostics(c *gin.Context) {
	if s.cfg.Streamer == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Message: "стример не запущен"})
		return
	}

	resp := DiagnosticsResponse{Streamer: s.cfg.Streamer.Diagnostics()}
	if s.cfg.LOD != nil {
		d := s.cfg.LOD.Diagnostics()
		resp.LOD = &d
	}
	if s.cfg.Cache != nil {
		st := s.cfg.Cache.Stats()
		resp.Cache = &st
	}
	if s.cfg.Process != nil {
		ps := s.cfg.Process.Snapshot()
		resp.Process = &ps
	}
	c.JSON(http.StatusOK, resp)
}

// handlePause запрашивает паузу; она применяется в начале следующего тика
// основного цикла, поэтому ответ 202
func (s *DebugServer) handlePause(paused bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.Streamer == nil {
			c.JSON(http.StatusServiceUnavailable, GenericResponse{Message: "стример не запущен"})
			return
		}
		s.cfg.Streamer.RequestPause(paused)
		if s.cfg.LOD != nil {
			s.cfg.LOD.RequestPause(paused)
		}

		msg := "возобновление запрошено"
		if paused {
			msg = "пауза запрошена"
		}
		s.logger.Info("%s (trace=%s)", msg, c.GetString(middleware.TraceIDKey))
		c.JSON(http.StatusAccepted, GenericResponse{
			Success: true,
			Message: msg,
			Data:    gin.H{"paused": paused},
		})
	}
}
