package logger

import (
	"errors"
	"strings"
)

// Config 日志配置
type Config struct {
	Level            string     `mapstructure:"level"`  // debug, info, warn, error
	Format           string     `mapstructure:"format"` // json, console
	Output           string     `mapstructure:"output"` // console, file, both
	File             FileConfig `mapstructure:"file"`
	EnableCaller     bool       `mapstructure:"enable_caller"`
	EnableStacktrace bool       `mapstructure:"enable_stacktrace"` // stacktrace on error level
}

// FileConfig 文件输出配置（lumberjack 轮转）
type FileConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`    // MB
	MaxAge     int    `mapstructure:"max_age"`     // days
	MaxBackups int    `mapstructure:"max_backups"` // files
	Compress   bool   `mapstructure:"compress"`
}

var validLevels = []string{"debug", "info", "warn", "error", "dpanic", "panic", "fatal"}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Level:            "info",
		Format:           "json",
		Output:           "console",
		EnableCaller:     true,
		EnableStacktrace: true,
		File: FileConfig{
			Filename:   "logs/agent-bridge.log",
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 10,
			Compress:   true,
		},
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	level := strings.ToLower(c.Level)
	ok := false
	for _, l := range validLevels {
		if level == l {
			ok = true
			break
		}
	}
	if !ok {
		return errors.New("invalid log level, must be one of: " + strings.Join(validLevels, ", "))
	}

	if c.Format != "json" && c.Format != "console" {
		return errors.New("invalid log format, must be 'json' or 'console'")
	}

	switch c.Output {
	case "console":
	case "file", "both":
		if c.File.Filename == "" {
			return errors.New("log file filename is required when output is 'file' or 'both'")
		}
		if c.File.MaxSize <= 0 {
			return errors.New("log file max_size must be greater than 0")
		}
		if c.File.MaxAge <= 0 {
			return errors.New("log file max_age must be greater than 0")
		}
		if c.File.MaxBackups < 0 {
			return errors.New("log file max_backups must be greater than or equal to 0")
		}
	default:
		return errors.New("invalid log output, must be 'console', 'file' or 'both'")
	}

	return nil
}
