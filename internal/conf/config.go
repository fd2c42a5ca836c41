package conf

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lk2023060901/agent-bridge/internal/botframework"
	"github.com/lk2023060901/agent-bridge/internal/pkg/database"
	"github.com/lk2023060901/agent-bridge/internal/pkg/logger"
	"github.com/lk2023060901/agent-bridge/internal/pkg/redis"
	"github.com/lk2023060901/agent-bridge/internal/pkg/workerpool"
	"github.com/lk2023060901/agent-bridge/internal/serving"
)

// State 存储驱动
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Config struct {
	Server  ServerConfig        `mapstructure:"server"`
	Log     logger.Config       `mapstructure:"log"`
	Bot     botframework.Config `mapstructure:"bot"`
	Serving serving.Config      `mapstructure:"serving"`
	State   StateConfig         `mapstructure:"state"`
	Worker  WorkerConfig        `mapstructure:"worker"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr 监听地址
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type StateConfig struct {
	Driver   string          `mapstructure:"driver"` // memory, redis, postgres
	TTL      time.Duration   `mapstructure:"ttl"`    // 0 表示不过期
	Redis    redis.Config    `mapstructure:"redis"`
	Database database.Config `mapstructure:"database"`
}

type WorkerConfig struct {
	workerpool.Config `mapstructure:",squash"`
	TurnTimeout       time.Duration `mapstructure:"turn_timeout"`
}

// envBindings 兼容原有部署使用的环境变量名
var envBindings = map[string][]string{
	"bot.app_id":            {"MicrosoftAppId"},
	"bot.app_password":      {"MicrosoftAppPassword"},
	"bot.app_type":          {"MicrosoftAppType"},
	"bot.tenant_id":         {"MicrosoftTenantId"},
	"bot.connection_name":   {"ConnectionName"},
	"serving.host":          {"DATABRICKS_HOST"},
	"serving.endpoint_name": {"SERVING_ENDPOINT_NAME"},
	"serving.space_id":      {"GENIE_SPACE_ID"},
	"server.port":           {"PORT"},
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: 30 * time.Second,
		},
		Log:     *logger.DefaultConfig(),
		Bot:     *botframework.DefaultConfig(),
		Serving: *serving.DefaultConfig(),
		State: StateConfig{
			Driver:   DriverMemory,
			Redis:    *redis.DefaultConfig(),
			Database: *database.DefaultConfig(),
		},
		Worker: WorkerConfig{
			Config:      *workerpool.DefaultConfig(),
			TurnTimeout: 6 * time.Minute,
		},
	}
}

// LoadConfig 读取配置文件（可为空）并叠加环境变量
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AGENT_BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv 只对已知 key 生效，先把默认值全部注册
	registerDefaults(v, "", reflect.ValueOf(Default()).Elem())

	for key, names := range envBindings {
		args := append([]string{key, "AGENT_BRIDGE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	config := Default()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return config, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.Bot.Validate(); err != nil {
		return err
	}
	if err := c.Serving.Validate(); err != nil {
		return err
	}
	if c.Worker.Workers <= 0 {
		return errors.New("worker: workers must be > 0")
	}

	switch c.State.Driver {
	case DriverMemory:
	case DriverRedis:
		return c.State.Redis.Validate()
	case DriverPostgres:
		return c.State.Database.Validate()
	default:
		return fmt.Errorf("state: unknown driver %q", c.State.Driver)
	}
	return nil
}

// registerDefaults 按 mapstructure tag 把结构体的叶子字段注册为 viper 默认值
func registerDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}

		name, opts, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		fv := val.Field(i)
		if fv.Kind() == reflect.Struct && opts == "squash" {
			registerDefaults(v, prefix, fv)
			continue
		}
		if name == "" || name == "-" {
			continue
		}

		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		if fv.Kind() == reflect.Struct {
			registerDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}
