package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lk2023060901/agent-bridge/internal/conf"
	apperrors "github.com/lk2023060901/agent-bridge/internal/pkg/errors"
	"github.com/lk2023060901/agent-bridge/internal/pkg/logger"
	"github.com/lk2023060901/agent-bridge/internal/pkg/metrics"
	"github.com/lk2023060901/agent-bridge/internal/pkg/response"
)

// RouteRegistrar 注册业务路由
type RouteRegistrar interface {
	RegisterRoutes(r gin.IRouter)
}

// HealthChecker 依赖检查，返回 nil 表示正常
type HealthChecker func(ctx context.Context) error

type HTTPServer struct {
	server *http.Server
	engine *gin.Engine
	logger *logger.Logger
}

// NewHTTPServer 创建 gin 服务并挂载 /health、/metrics 与业务路由
func NewHTTPServer(
	config *conf.ServerConfig,
	log *logger.Logger,
	m *metrics.Metrics,
	health HealthChecker,
	registrars ...RouteRegistrar,
) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(logger.GinRecovery(log))
	router.Use(logger.GinLogger(log, "/health", "/metrics"))

	router.GET("/health", func(c *gin.Context) {
		if health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unavailable",
					"error":  err.Error(),
				})
				return
			}
		}
		response.Success(c, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	if m != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))
	}

	for _, r := range registrars {
		r.RegisterRoutes(router)
	}

	router.NoRoute(func(c *gin.Context) {
		response.ErrorWithCode(c, apperrors.ErrNotFound, c.Request.URL.Path)
	})

	return &HTTPServer{
		server: &http.Server{
			Addr:              config.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: router,
		logger: log,
	}
}

// Handler 用于测试
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}
