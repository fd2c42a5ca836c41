//go:build wireinject
// +build wireinject

package injector

import (
	"github.com/google/wire"

	"github.com/lk2023060901/agent-bridge/internal/botframework"
	"github.com/lk2023060901/agent-bridge/internal/conf"
	"github.com/lk2023060901/agent-bridge/internal/conversation/biz"
	convdata "github.com/lk2023060901/agent-bridge/internal/conversation/data"
	"github.com/lk2023060901/agent-bridge/internal/data"
	"github.com/lk2023060901/agent-bridge/internal/pkg/logger"
	"github.com/lk2023060901/agent-bridge/internal/pkg/metrics"
)

// ProviderSet is the Wire provider set for all dependencies
var ProviderSet = wire.NewSet(
	// Config
	provideStateConfig,
	provideBotConfig,

	// Infrastructure
	metrics.New,
	data.NewData,

	// State
	convdata.NewStore,
	biz.NewState,

	// Bot Framework
	provideBotHTTPClient,
	botframework.NewClient,
	botframework.NewTokenService,

	// Conversation
	provideServingClient,
	provideOrchestrator,
	providePool,
	provideBotService,

	// Server
	provideHTTPServer,
	wire.Struct(new(App), "*"),
)

// InitializeApp builds the application with all dependencies
func InitializeApp(config *conf.Config, log *logger.Logger) (*App, func(), error) {
	panic(wire.Build(ProviderSet))
}
