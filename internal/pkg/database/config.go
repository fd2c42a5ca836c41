package database

import (
	"errors"
	"fmt"
	"time"
)

// Config PostgreSQL 连接配置
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"` // disable, require, verify-ca, verify-full
	Timezone string `mapstructure:"timezone"`

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	LogLevel      string        `mapstructure:"log_level"` // silent, error, warn, info
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
	AutoMigrate   bool          `mapstructure:"auto_migrate"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		DBName:          "agent_bridge",
		SSLMode:         "disable",
		Timezone:        "UTC",
		MaxIdleConns:    5,
		MaxOpenConns:    20,
		ConnMaxLifetime: time.Hour,
		LogLevel:        "warn",
		SlowThreshold:   200 * time.Millisecond,
		AutoMigrate:     true,
	}
}

var (
	validSSLModes  = []string{"disable", "require", "verify-ca", "verify-full"}
	validLogLevels = []string{"silent", "error", "warn", "info"}
)

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("database host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("database port must be between 1 and 65535")
	}
	if c.User == "" {
		return errors.New("database user is required")
	}
	if c.DBName == "" {
		return errors.New("database name is required")
	}
	if !contains(validSSLModes, c.SSLMode) {
		return errors.New("invalid SSL mode, must be one of: disable, require, verify-ca, verify-full")
	}
	if !contains(validLogLevels, c.LogLevel) {
		return errors.New("invalid log level, must be one of: silent, error, warn, info")
	}
	if c.MaxIdleConns < 0 || c.MaxOpenConns < 0 {
		return errors.New("connection pool sizes must be >= 0")
	}
	if c.MaxOpenConns > 0 && c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max idle connections cannot exceed max open connections")
	}
	return nil
}

// DSN 返回 PostgreSQL DSN
func (c *Config) DSN() string {
	tz := c.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode, tz)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
