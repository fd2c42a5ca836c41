package injector

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/lk2023060901/agent-bridge/internal/botframework"
	"github.com/lk2023060901/agent-bridge/internal/conf"
	"github.com/lk2023060901/agent-bridge/internal/conversation/biz"
	"github.com/lk2023060901/agent-bridge/internal/conversation/service"
	"github.com/lk2023060901/agent-bridge/internal/data"
	"github.com/lk2023060901/agent-bridge/internal/pkg/logger"
	"github.com/lk2023060901/agent-bridge/internal/pkg/metrics"
	"github.com/lk2023060901/agent-bridge/internal/pkg/workerpool"
	"github.com/lk2023060901/agent-bridge/internal/server"
	"github.com/lk2023060901/agent-bridge/internal/serving"
)

// App encapsulates all application dependencies
type App struct {
	Config     *conf.Config
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
	Data       *data.Data
	Pool       *workerpool.Pool
	Bot        *service.BotService
	HTTPServer *server.HTTPServer
}

// Shutdown 停止接收请求，等待已受理的轮次，超时后取消剩余轮次
func (a *App) Shutdown(ctx context.Context) {
	if err := a.HTTPServer.Stop(ctx); err != nil {
		a.Logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	if err := a.Pool.Shutdown(ctx); err != nil {
		a.Logger.Warn("worker pool did not drain in time", zap.Error(err))
	}
	a.Bot.Close()

	stats := a.Pool.Stats()
	a.Logger.Info("turn statistics",
		zap.Int64("completed", stats.Completed),
		zap.Int64("failed", stats.Failed),
		zap.Int64("rejected", stats.Rejected),
	)
}

func provideStateConfig(c *conf.Config) *conf.StateConfig {
	return &c.State
}

func provideBotConfig(c *conf.Config) *botframework.Config {
	return &c.Bot
}

func provideServingClient(c *conf.Config, log *logger.Logger, m *metrics.Metrics) (*serving.Client, error) {
	return serving.New(&c.Serving, log, serving.WithMetrics(m))
}

// provideBotHTTPClient connector 与 token 服务共用带 bot 身份的客户端
func provideBotHTTPClient(cfg *botframework.Config) *http.Client {
	return botframework.NewHTTPClient(cfg, nil)
}

func provideOrchestrator(c *conf.Config, state *biz.State, client *serving.Client, log *logger.Logger, m *metrics.Metrics) *biz.Orchestrator {
	return biz.NewOrchestrator(
		biz.OrchestratorConfig{
			Mode:          c.Serving.Mode,
			SignInTimeout: c.Bot.SignInTimeout,
		},
		state,
		client,
		client,
		log,
		m,
	)
}

func providePool(c *conf.Config, log *logger.Logger) (*workerpool.Pool, error) {
	return workerpool.New(&c.Worker.Config, log.Logger)
}

func provideBotService(
	c *conf.Config,
	orchestrator *biz.Orchestrator,
	pool *workerpool.Pool,
	connector *botframework.Client,
	tokens *botframework.TokenService,
	log *logger.Logger,
	m *metrics.Metrics,
) *service.BotService {
	return service.NewBotService(
		service.Config{
			TurnTimeout: c.Worker.TurnTimeout,
			SignInText:  c.Bot.SignInText,
			SignInTitle: c.Bot.SignInTitle,
		},
		orchestrator,
		pool,
		connector,
		tokens,
		log,
		m,
	)
}

func provideHTTPServer(c *conf.Config, log *logger.Logger, m *metrics.Metrics, d *data.Data, bot *service.BotService) *server.HTTPServer {
	return server.NewHTTPServer(&c.Server, log, m, d.HealthCheck, bot)
}
