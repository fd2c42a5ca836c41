package botframework

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	apperrors "github.com/lk2023060901/agent-bridge/internal/pkg/errors"
	"github.com/lk2023060901/agent-bridge/internal/pkg/logger"
)

// NewHTTPClient 返回带 bot 身份的 HTTP 客户端；未配置 app id 时（本地 emulator）直接返回 base
func NewHTTPClient(cfg *Config, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.AppID == "" {
		return base
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.AppID,
		ClientSecret: cfg.AppPassword,
		TokenURL:     cfg.TokenURL(),
		Scopes:       []string{cfg.OAuthScope},
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	hc := cc.Client(ctx)
	hc.Timeout = cfg.Timeout
	return hc
}

// Client Bot Connector 客户端
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient 创建 connector 客户端
func NewClient(httpClient *http.Client, log *logger.Logger) *Client {
	if log == nil {
		log = logger.L()
	}
	return &Client{httpClient: httpClient, logger: log.Named("connector")}
}

// ResourceResponse 发送结果
type ResourceResponse struct {
	ID string `json:"id"`
}

// SendActivity 回复到会话，返回新 activity id
func (c *Client) SendActivity(ctx context.Context, act *Activity) (string, error) {
	if act.ServiceURL == "" || act.Conversation.ID == "" {
		return "", apperrors.New(apperrors.ErrInvalidParams, "activity is missing serviceUrl or conversation id")
	}

	endpoint := strings.TrimRight(act.ServiceURL, "/") + "/v3/conversations/" + url.PathEscape(act.Conversation.ID) + "/activities"
	if act.ReplyToID != "" {
		endpoint += "/" + url.PathEscape(act.ReplyToID)
	}

	data, err := json.Marshal(act)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrInternalServer, "marshal activity")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrChannelSend, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrChannelSend, endpoint)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return "", apperrors.Newf(apperrors.ErrChannelSend, "send activity: status %d: %s", resp.StatusCode, string(body))
	}

	var rr ResourceResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &rr); err != nil {
			c.logger.Debug("unexpected send activity response", zap.ByteString("body", body))
		}
	}

	c.logger.WithContext(ctx).Debug("activity sent",
		zap.String("type", act.Type),
		zap.String("activity_id", rr.ID),
	)
	return rr.ID, nil
}
