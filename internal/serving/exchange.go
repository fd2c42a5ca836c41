package serving

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	apperrors "github.com/lk2023060901/agent-bridge/internal/pkg/errors"
)

const (
	grantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"
	subjectTokenTypeJWT    = "urn:ietf:params:oauth:token-type:jwt"
)

// TokenExchanger 把平台 token 换成 workspace token
type TokenExchanger interface {
	Exchange(ctx context.Context, subjectToken string) (string, error)
}

// OAuthExchanger RFC 8693 token exchange，每次调用都重新交换，不缓存
type OAuthExchanger struct {
	tokenURL   string
	scope      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewOAuthExchanger 创建 token 交换器
func NewOAuthExchanger(cfg *Config, httpClient *http.Client) *OAuthExchanger {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OAuthExchanger{
		tokenURL:   cfg.BaseURL() + cfg.TokenPath,
		scope:      cfg.Scope,
		timeout:    cfg.ExchangeTimeout,
		httpClient: httpClient,
	}
}

// Exchange 执行交换，返回 access_token
func (e *OAuthExchanger) Exchange(ctx context.Context, subjectToken string) (string, error) {
	if subjectToken == "" {
		return "", apperrors.New(apperrors.ErrAuthenticationFailed, "empty subject token")
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)

	cc := &clientcredentials.Config{
		TokenURL:  e.tokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
		EndpointParams: url.Values{
			"grant_type":         {grantTypeTokenExchange},
			"subject_token_type": {subjectTokenTypeJWT},
			"subject_token":      {subjectToken},
		},
	}
	if e.scope != "" {
		cc.Scopes = []string{e.scope}
	}

	tok, err := cc.Token(ctx)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrTokenExchange, e.tokenURL)
	}
	return tok.AccessToken, nil
}
