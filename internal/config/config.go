// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var globalConfig *Config

// Config 应用程序配置结构
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Dialog     DialogConfig     `yaml:"dialog"`
	Scripts    ScriptsConfig    `yaml:"scripts"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Redis      RedisConfig      `yaml:"redis"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
}

// ServerConfig HTTP服务器配置
type ServerConfig struct {
	Host            string        `yaml:"host"`             // 服务器监听地址
	Port            int           `yaml:"port"`             // 服务器监听端口
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // 优雅退出等待时间
}

// Addr 监听地址
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ScriptsConfig 话术服务配置
type ScriptsConfig struct {
	BaseURL string        `yaml:"base_url"` // 话术服务地址，为空时只使用本地脚本
	APIKey  string        `yaml:"api_key"`  // 访问令牌
	Timeout time.Duration `yaml:"timeout"`  // 请求超时
	File    string        `yaml:"file"`     // 本地脚本文件，为空时使用内置脚本
}

// SchedulingConfig 排期服务配置
type SchedulingConfig struct {
	BaseURL string        `yaml:"base_url"` // 排期服务地址，为空时不在通话中预约
	APIKey  string        `yaml:"api_key"`  // 访问令牌
	Timeout time.Duration `yaml:"timeout"`  // 请求超时
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string        `yaml:"host"`     // Redis主机地址，为空时不保存检查点
	Port     int           `yaml:"port"`     // Redis端口
	Password string        `yaml:"password"` // Redis密码
	DB       int           `yaml:"db"`       // Redis数据库编号
	TTL      time.Duration `yaml:"ttl"`      // 检查点过期时间
	Prefix   string        `yaml:"prefix"`   // 键前缀
}

// Enabled 是否配置了Redis
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Addr Redis地址
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WebSocketConfig 媒体WebSocket配置
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size"`  // 读缓冲区大小
	WriteBufferSize int           `yaml:"write_buffer_size"` // 写缓冲区大小
	PingPeriod      time.Duration `yaml:"ping_period"`       // 心跳间隔
	PongWait        time.Duration `yaml:"pong_wait"`         // 等待Pong响应的超时时间
}

// GetConfig 获取全局配置实例
func GetConfig() *Config {
	return globalConfig
}

// Load 从文件加载配置
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	config, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// 设置全局配置
	globalConfig = config
	return config, nil
}

// Parse 解析YAML配置，补全默认值并校验
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 环境变量优先于配置文件
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.Realtime.APIKey = key
	}

	setDefaults(&config)

	// 验证配置
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return &config, nil
}

// setDefaults 设置默认值
func setDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 10 * time.Second
	}

	config.Realtime.setDefaults()
	config.Dialog.setDefaults()

	if config.Scripts.Timeout == 0 {
		config.Scripts.Timeout = 5 * time.Second
	}
	if config.Scheduling.Timeout == 0 {
		config.Scheduling.Timeout = 5 * time.Second
	}
	if config.Redis.Enabled() && config.Redis.Port == 0 {
		config.Redis.Port = 6379
	}
	if config.Redis.TTL == 0 {
		config.Redis.TTL = 2 * time.Hour
	}
	if config.Redis.Prefix == "" {
		config.Redis.Prefix = "ai_call_agent"
	}

	if config.WebSocket.ReadBufferSize == 0 {
		config.WebSocket.ReadBufferSize = 1024
	}
	if config.WebSocket.WriteBufferSize == 0 {
		config.WebSocket.WriteBufferSize = 1024
	}
	if config.WebSocket.PingPeriod == 0 {
		config.WebSocket.PingPeriod = 30 * time.Second
	}
	if config.WebSocket.PongWait == 0 {
		config.WebSocket.PongWait = 60 * time.Second
	}
}

// validateConfig 验证配置是否有效
func validateConfig(config *Config) error {
	// 验证服务器配置
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return ErrInvalidPort
	}

	if err := config.Realtime.Validate(); err != nil {
		return err
	}
	if err := config.Dialog.Validate(); err != nil {
		return err
	}

	if config.WebSocket.PongWait <= config.WebSocket.PingPeriod {
		return ErrInvalidPongWait
	}
	return nil
}
