package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lk2023060901/agent-bridge/internal/botframework"
	"github.com/lk2023060901/agent-bridge/internal/conversation/biz"
	"github.com/lk2023060901/agent-bridge/internal/conversation/data"
	"github.com/lk2023060901/agent-bridge/internal/conversation/types"
	"github.com/lk2023060901/agent-bridge/internal/pkg/logger"
	"github.com/lk2023060901/agent-bridge/internal/pkg/metrics"
	"github.com/lk2023060901/agent-bridge/internal/pkg/workerpool"
)

type echoEndpoint struct {
	mu     sync.Mutex
	tokens []string
}

func (e *echoEndpoint) Invoke(_ context.Context, utterance string, _ []types.Message, token string) ([]types.Message, error) {
	e.mu.Lock()
	e.tokens = append(e.tokens, token)
	e.mu.Unlock()
	return []types.Message{types.AssistantMessage("echo: " + utterance)}, nil
}

// channelServer 模拟 connector 与 token 服务
type channelServer struct {
	mu    sync.Mutex
	texts []string
	token string
}

func (s *channelServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v3/conversations/{conv}/activities/{reply}", func(w http.ResponseWriter, r *http.Request) {
		var act botframework.Activity
		_ = json.NewDecoder(r.Body).Decode(&act)
		s.mu.Lock()
		s.texts = append(s.texts, act.Text)
		s.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"out-1"}`))
	})
	mux.HandleFunc("GET /api/usertoken/GetToken", func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(botframework.TokenResponse{Token: s.token})
	})
	return mux
}

func TestEndToEndSignedInTurn(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	channel := &channelServer{token: "aad-token"}
	srv := httptest.NewServer(channel.handler())
	defer srv.Close()

	cfg := botframework.DefaultConfig()
	cfg.ConnectionName = "databricks"
	cfg.TokenServiceURL = srv.URL

	connector := botframework.NewClient(srv.Client(), logger.NewNop())
	tokens := botframework.NewTokenService(cfg, srv.Client(), logger.NewNop())

	store := data.NewMemoryStore(0)
	state := biz.NewState(store)
	require.NoError(t, state.LoginFlag.Set(ctx, biz.UserScope("msteams", "user-1"), true))

	m := metrics.New()
	endpoint := &echoEndpoint{}
	orch := biz.NewOrchestrator(biz.OrchestratorConfig{}, state, endpoint, nil, logger.NewNop(), m)

	pool, err := workerpool.New(workerpool.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	svc := NewBotService(Config{TurnTimeout: time.Minute}, orch, pool, connector, tokens, logger.NewNop(), m)
	defer svc.Close()

	router := gin.New()
	svc.RegisterRoutes(router)

	h := &harness{router: router}
	for _, text := range []string{"  Hello ", "Second"} {
		w := h.post(t, inbound(botframework.ActivityTypeMessage, "msteams", text), "application/json")
		require.Equal(t, http.StatusAccepted, w.Code)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(shutdownCtx))

	assert.Equal(t, []string{"echo: hello", "echo: second"}, channel.texts)
	assert.Equal(t, []string{"aad-token", "aad-token"}, endpoint.tokens)

	history, err := state.History.Get(ctx, biz.ConversationScope("msteams", "conv-1"))
	require.NoError(t, err)
	assert.Equal(t, []types.Message{
		types.UserMessage("hello"),
		types.AssistantMessage("echo: hello"),
		types.UserMessage("second"),
		types.AssistantMessage("echo: second"),
	}, history)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ActivitiesTotal.WithLabelValues(botframework.ActivityTypeMessage)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.TurnsTotal.WithLabelValues(metrics.OutcomeAnswered)))
}
