package serving

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/agent-bridge/internal/conversation/types"
	apperrors "github.com/lk2023060901/agent-bridge/internal/pkg/errors"
	"github.com/lk2023060901/agent-bridge/internal/pkg/logger"
	"github.com/lk2023060901/agent-bridge/internal/pkg/metrics"
)

const maxErrorBody = 512

// Client 调用 serving endpoint 并把响应规范化为 []types.Message
type Client struct {
	config     *Config
	exchanger  TokenExchanger
	httpClient *http.Client
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

// Option Client 选项
type Option func(*Client)

// WithExchanger 替换 token 交换器
func WithExchanger(e TokenExchanger) Option {
	return func(c *Client) { c.exchanger = e }
}

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics 注入指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New 创建 Client
func New(cfg *Config, log *logger.Logger, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("serving config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.L()
	}

	c := &Client{
		config:     cfg,
		httpClient: &http.Client{},
		logger:     log.Named("serving"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.exchanger == nil {
		c.exchanger = NewOAuthExchanger(cfg, c.httpClient)
	}
	return c, nil
}

// Config 返回配置
func (c *Client) Config() *Config {
	return c.config
}

// Invoke 用 history + 当前问题调用 endpoint，返回本轮新增的消息
func (c *Client) Invoke(ctx context.Context, utterance string, history []types.Message, platformToken string) ([]types.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	token, err := c.exchanger.Exchange(ctx, platformToken)
	if err != nil {
		return nil, err
	}

	dialect := c.probe(ctx, token)
	messages := types.History(history).Append(types.UserMessage(utterance))

	log := c.logger.WithContext(ctx)
	log.Debug("invoking serving endpoint",
		zap.String("endpoint", c.config.EndpointName),
		zap.Stringer("dialect", dialect),
		zap.Int("history_len", len(history)),
	)

	start := time.Now()
	var out []types.Message
	switch dialect {
	case DialectStructuredTurn:
		out, err = c.queryStructuredTurn(ctx, token, messages)
	default:
		out, err = c.queryCompletion(ctx, token, messages)
	}
	c.metrics.RecordBackendRequest(dialect.String(), err, time.Since(start))
	if err != nil {
		return nil, err
	}

	if len(out) == 0 {
		return nil, apperrors.New(apperrors.ErrBackendProtocol,
			"this app can only run against ChatModel, ChatAgent, or ResponsesAgent endpoints")
	}

	log.Info("serving endpoint replied",
		zap.Stringer("dialect", dialect),
		zap.Int("messages", len(out)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// doJSON 发送带 bearer token 的 JSON 请求，状态码 >= 400 视为传输错误
func (c *Client) doJSON(ctx context.Context, method, url, token string, payload interface{}) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "marshal request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrBackendTransport, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrBackendTransport, "%s %s", method, url)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrBackendTransport, "read response of %s %s", method, url)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, apperrors.Newf(apperrors.ErrBackendTransport, "%s %s: status %d: %s",
			method, url, resp.StatusCode, truncate(body, maxErrorBody))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
