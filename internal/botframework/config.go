package botframework

import (
	"errors"
	"strings"
	"time"
)

// App 类型
const (
	AppTypeMultiTenant  = "MultiTenant"
	AppTypeSingleTenant = "SingleTenant"
)

// Config Bot Framework 配置
type Config struct {
	AppID          string `mapstructure:"app_id"`
	AppPassword    string `mapstructure:"app_password"`
	AppType        string `mapstructure:"app_type"`
	TenantID       string `mapstructure:"tenant_id"`
	ConnectionName string `mapstructure:"connection_name"` // OAuth connection

	TokenServiceURL string        `mapstructure:"token_service_url"`
	LoginURL        string        `mapstructure:"login_url"`
	OAuthScope      string        `mapstructure:"oauth_scope"`
	Timeout         time.Duration `mapstructure:"timeout"`

	SignInText    string        `mapstructure:"sign_in_text"`
	SignInTitle   string        `mapstructure:"sign_in_title"`
	SignInTimeout time.Duration `mapstructure:"sign_in_timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		AppType:         AppTypeMultiTenant,
		TokenServiceURL: "https://token.botframework.com",
		LoginURL:        "https://login.microsoftonline.com",
		OAuthScope:      "https://api.botframework.com/.default",
		Timeout:         30 * time.Second,
		SignInText:      "Sign into Databricks to chat with agents.",
		SignInTitle:     "Sign In",
		SignInTimeout:   5 * time.Minute,
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.ConnectionName == "" {
		return errors.New("bot: connection_name is required")
	}

	switch c.AppType {
	case "", AppTypeMultiTenant:
	case AppTypeSingleTenant:
		if c.TenantID == "" {
			return errors.New("bot: tenant_id is required for SingleTenant apps")
		}
	default:
		return errors.New("bot: app_type must be MultiTenant or SingleTenant")
	}

	if c.AppID != "" && c.AppPassword == "" {
		return errors.New("bot: app_password is required when app_id is set")
	}
	if c.SignInTimeout <= 0 {
		return errors.New("bot: sign_in_timeout must be > 0")
	}
	return nil
}

// TokenURL bot 自身 client credentials 的 token 端点
func (c *Config) TokenURL() string {
	tenant := "botframework.com"
	if c.AppType == AppTypeSingleTenant {
		tenant = c.TenantID
	}
	return strings.TrimRight(c.LoginURL, "/") + "/" + tenant + "/oauth2/v2.0/token"
}
