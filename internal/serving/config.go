package serving

import (
	"errors"
	"strings"
	"time"
)

// Mode 对话模式
type Mode string

const (
	ModeChat  Mode = "chat"  // serving endpoint
	ModeSpace Mode = "space" // agent space (Genie)
)

// Config serving endpoint 配置
type Config struct {
	Host         string `mapstructure:"host"`          // workspace host，如 https://xxx.cloud.databricks.com
	EndpointName string `mapstructure:"endpoint_name"` // serving endpoint 名称
	SpaceID      string `mapstructure:"space_id"`      // Genie space ID
	Mode         Mode   `mapstructure:"mode"`

	RequestTimeout  time.Duration `mapstructure:"request_timeout"`  // 单次调用总超时
	ExchangeTimeout time.Duration `mapstructure:"exchange_timeout"` // token 交换超时
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`

	SpacePollInterval time.Duration `mapstructure:"space_poll_interval"`
	SpaceTimeout      time.Duration `mapstructure:"space_timeout"`

	TokenPath string `mapstructure:"token_path"`
	Scope     string `mapstructure:"scope"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Mode:              ModeChat,
		RequestTimeout:    300 * time.Second,
		ExchangeTimeout:   10 * time.Second,
		ProbeTimeout:      10 * time.Second,
		SpacePollInterval: 2 * time.Second,
		SpaceTimeout:      5 * time.Minute,
		TokenPath:         "/oidc/v1/token",
		Scope:             "all-apis",
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("serving: host is required")
	}

	switch c.Mode {
	case ModeChat, "":
		if c.EndpointName == "" {
			return errors.New("serving: endpoint_name is required in chat mode")
		}
	case ModeSpace:
		if c.SpaceID == "" {
			return errors.New("serving: space_id is required in space mode")
		}
	default:
		return errors.New("serving: mode must be one of: chat, space")
	}

	if c.RequestTimeout <= 0 {
		return errors.New("serving: request_timeout must be > 0")
	}
	if c.ExchangeTimeout <= 0 {
		return errors.New("serving: exchange_timeout must be > 0")
	}
	return nil
}

// BaseURL 规范化后的 host，缺少 scheme 时补 https
func (c *Config) BaseURL() string {
	h := strings.TrimRight(strings.TrimSpace(c.Host), "/")
	if h != "" && !strings.Contains(h, "://") {
		h = "https://" + h
	}
	return h
}
