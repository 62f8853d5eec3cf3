package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"

	"AxiomHive-Agent/pkg/logger"
)

// Config 描述了服务在启动阶段需要加载的核心配置。
// 加载顺序：JSON 文件 -> 默认值 -> AXIOMHIVE_* 环境变量覆盖。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Agent     AgentConfig     `json:"agent"`
	LLM       LLMConfig       `json:"llm"`
	Pricing   PricingConfig   `json:"pricing"`
	TaskQueue TaskQueueConfig `json:"task_queue"`
	Logger    logger.Config   `json:"logger"`
}

// ServerConfig 控制 API 服务与指标服务的监听地址。
type ServerConfig struct {
	Address        string `json:"address" envconfig:"SERVER_ADDRESS"`
	MetricsAddress string `json:"metrics_address" envconfig:"METRICS_ADDRESS"`
}

// AgentConfig 控制执行器的名称与预算参数。
type AgentConfig struct {
	Name                    string  `json:"name" envconfig:"AGENT_NAME"`
	MaxTokens               int     `json:"max_tokens" envconfig:"AGENT_MAX_TOKENS"`
	BudgetLimit             float64 `json:"budget_limit" envconfig:"AGENT_BUDGET_LIMIT"`
	TrackUsage              *bool   `json:"track_usage" envconfig:"AGENT_TRACK_USAGE"`
	DefaultPromptTokens     int     `json:"default_prompt_tokens" envconfig:"AGENT_DEFAULT_PROMPT_TOKENS"`
	DefaultCompletionTokens int     `json:"default_completion_tokens" envconfig:"AGENT_DEFAULT_COMPLETION_TOKENS"`
	Model                   string  `json:"model" envconfig:"AGENT_MODEL"`
}

// LLMConfig 选择补全服务提供方。
type LLMConfig struct {
	Provider string `json:"provider" envconfig:"LLM_PROVIDER"`
}

// PricingConfig 指定单价表文件位置。
type PricingConfig struct {
	Path string `json:"path" envconfig:"PRICING_PATH"`
}

// TaskQueueConfig 选择队列驱动及其连接参数。
type TaskQueueConfig struct {
	Driver   string         `json:"driver" envconfig:"QUEUE_DRIVER"`
	Workers  int            `json:"workers" envconfig:"QUEUE_WORKERS"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列的连接参数。
type RedisConfig struct {
	Address   string        `json:"address" envconfig:"REDIS_ADDRESS"`
	Password  string        `json:"password" envconfig:"REDIS_PASSWORD"`
	DB        int           `json:"db" envconfig:"REDIS_DB"`
	Queue     string        `json:"queue" envconfig:"REDIS_QUEUE"`
	BlockWait time.Duration `json:"block_wait" envconfig:"REDIS_BLOCK_WAIT"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL      string `json:"url" envconfig:"RABBITMQ_URL"`
	Queue    string `json:"queue" envconfig:"RABBITMQ_QUEUE"`
	Prefetch int    `json:"prefetch" envconfig:"RABBITMQ_PREFETCH"`
	Durable  bool   `json:"durable" envconfig:"RABBITMQ_DURABLE"`
}

// Load 解析 JSON 配置文件，补齐默认值，再用环境变量覆盖。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	if err := envconfig.Process("axiomhive", &cfg); err != nil {
		return nil, fmt.Errorf("读取环境变量覆盖失败: %w", err)
	}

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.MetricsAddress == "" {
		c.Server.MetricsAddress = ":9090"
	}

	if c.Agent.Name == "" {
		c.Agent.Name = "axiomhive"
	}
	if c.Agent.MaxTokens <= 0 {
		c.Agent.MaxTokens = 5000
	}
	if c.Agent.Model == "" {
		c.Agent.Model = "axiom-local"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "local"
	}

	if c.Pricing.Path != "" && !filepath.IsAbs(c.Pricing.Path) {
		c.Pricing.Path = filepath.Join(baseDir, c.Pricing.Path)
	}

	if c.TaskQueue.Driver == "" {
		c.TaskQueue.Driver = "memory"
	}
	if c.TaskQueue.Workers <= 0 {
		c.TaskQueue.Workers = 4
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "json"
	}
}
