package botframework

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/lk2023060901/agent-bridge/internal/pkg/errors"
	"github.com/lk2023060901/agent-bridge/internal/pkg/logger"
)

// TokenResponse token 服务返回的用户 token
type TokenResponse struct {
	ChannelID      string `json:"channelId"`
	ConnectionName string `json:"connectionName"`
	Token          string `json:"token"`
	Expiration     string `json:"expiration"`
}

// TokenService Bot Framework token 服务
type TokenService struct {
	baseURL        string
	connectionName string
	appID          string
	httpClient     *http.Client
	logger         *logger.Logger
}

// NewTokenService 创建 token 服务客户端
func NewTokenService(cfg *Config, httpClient *http.Client, log *logger.Logger) *TokenService {
	if log == nil {
		log = logger.L()
	}
	return &TokenService{
		baseURL:        strings.TrimRight(cfg.TokenServiceURL, "/"),
		connectionName: cfg.ConnectionName,
		appID:          cfg.AppID,
		httpClient:     httpClient,
		logger:         log.Named("token_service"),
	}
}

// ConnectionName OAuth connection 名称
func (s *TokenService) ConnectionName() string {
	return s.connectionName
}

// GetUserToken 读取缓存的用户 token；code 为 magic code，可为空。没有 token 时返回 nil
func (s *TokenService) GetUserToken(ctx context.Context, ref ConversationReference, code string) (*TokenResponse, error) {
	q := url.Values{}
	q.Set("userId", ref.User.ID)
	q.Set("connectionName", s.connectionName)
	q.Set("channelId", ref.ChannelID)
	if code != "" {
		q.Set("code", code)
	}

	body, status, err := s.do(ctx, http.MethodGet, "/api/usertoken/GetToken?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || len(body) == 0 {
		s.logger.WithContext(ctx).Debug("no cached user token",
			zap.String("channel_id", ref.ChannelID),
			zap.Bool("with_code", code != ""),
		)
		return nil, nil
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrAuthenticationFailed, "decode token response")
	}
	if tr.Token == "" {
		return nil, nil
	}
	return &tr, nil
}

// tokenExchangeState GetSignInUrl 的 state
type tokenExchangeState struct {
	ConnectionName string                `json:"connectionName"`
	Conversation   ConversationReference `json:"conversation"`
	MsAppID        string                `json:"msAppId"`
}

// GetSignInURL 获取登录链接
func (s *TokenService) GetSignInURL(ctx context.Context, ref ConversationReference) (string, error) {
	state, err := json.Marshal(tokenExchangeState{
		ConnectionName: s.connectionName,
		Conversation:   ref,
		MsAppID:        s.appID,
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrInternalServer, "marshal sign-in state")
	}

	q := url.Values{}
	q.Set("state", base64.StdEncoding.EncodeToString(state))

	body, status, err := s.do(ctx, http.MethodGet, "/api/botsignin/GetSignInUrl?"+q.Encode())
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", apperrors.Newf(apperrors.ErrAuthenticationFailed, "GetSignInUrl: status %d", status)
	}

	link := strings.TrimSpace(string(body))
	if strings.HasPrefix(link, `"`) {
		if err := json.Unmarshal(body, &link); err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrAuthenticationFailed, "decode sign-in url")
		}
	}
	return link, nil
}

// SignOut 注销用户在该 connection 下的 token
func (s *TokenService) SignOut(ctx context.Context, ref ConversationReference) error {
	q := url.Values{}
	q.Set("userId", ref.User.ID)
	q.Set("connectionName", s.connectionName)
	q.Set("channelId", ref.ChannelID)

	_, status, err := s.do(ctx, http.MethodDelete, "/api/usertoken/SignOut?"+q.Encode())
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest && status != http.StatusNotFound {
		return apperrors.Newf(apperrors.ErrAuthenticationFailed, "SignOut: status %d", status)
	}
	s.logger.WithContext(ctx).Info("user signed out", zap.String("channel_id", ref.ChannelID))
	return nil
}

func (s *TokenService) do(ctx context.Context, method, pathAndQuery string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+pathAndQuery, nil)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.ErrInternalServer, "create token service request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.ErrAuthenticationFailed, fmt.Sprintf("%s %s", method, s.baseURL))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, apperrors.Wrap(err, apperrors.ErrAuthenticationFailed, "read token service response")
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, resp.StatusCode, apperrors.Newf(apperrors.ErrAuthenticationFailed, "%s: status %d", method, resp.StatusCode)
	}
	return body, resp.StatusCode, nil
}
