package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"AxiomHive-Agent/internal/agent"
	"AxiomHive-Agent/internal/api"
	"AxiomHive-Agent/internal/config"
	xerrors "AxiomHive-Agent/internal/errors"
	"AxiomHive-Agent/internal/llm"
	"AxiomHive-Agent/internal/llm/local"
	"AxiomHive-Agent/internal/observability/alerting"
	"AxiomHive-Agent/internal/observability/metrics"
	"AxiomHive-Agent/internal/task"
	"AxiomHive-Agent/internal/usage"
	"AxiomHive-Agent/pkg/logger"
)

// main 是 AxiomHive 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("axiomd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("AXIOMHIVE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "axiomhive.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logger); err != nil {
		return err
	}
	defer logger.Sync()

	// 加载单价表，缺省时使用内置默认单价。
	pricing := &usage.Pricing{}
	if cfg.Pricing.Path != "" {
		loaded, err := usage.LoadPricing(cfg.Pricing.Path)
		if err != nil {
			return err
		}
		pricing = loaded
	}

	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return err
	}

	taskStore := task.NewMemoryStore()
	defer taskStore.Close()

	taskQueue, err := createTaskQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := taskQueue.Close(); err != nil {
			logger.L().Error("关闭任务队列失败", slog.Any("error", err))
		}
	}()

	alerter := alerting.NewFanout(&alerting.LogNotifier{})

	opts := []agent.Option{
		agent.WithMaxTokens(cfg.Agent.MaxTokens),
		agent.WithCostPer1KTokens(pricing.CostPer1K(cfg.Agent.Model)),
	}
	if cfg.Agent.BudgetLimit > 0 {
		opts = append(opts, agent.WithBudgetLimit(cfg.Agent.BudgetLimit))
	}
	if cfg.Agent.TrackUsage != nil {
		opts = append(opts, agent.WithUsageTracking(*cfg.Agent.TrackUsage))
	}
	if cfg.Agent.DefaultPromptTokens > 0 || cfg.Agent.DefaultCompletionTokens > 0 {
		opts = append(opts, agent.WithDefaultUsage(cfg.Agent.DefaultPromptTokens, cfg.Agent.DefaultCompletionTokens))
	}
	ag := agent.New(cfg.Agent.Name, opts...)
	ag.SetBudgetCallback(func(snapshot usage.Snapshot) {
		metrics.ObserveBudgetHalt()
		_ = alerter.Notify(context.Background(), alerting.Event{
			Code:          xerrors.CodeBudgetExhausted,
			Message:       "预算耗尽，剩余任务已停止",
			Severity:      xerrors.AttributesOf(xerrors.CodeBudgetExhausted).Severity,
			AgentName:     cfg.Agent.Name,
			EstimatedCost: snapshot.EstimatedCost,
			BudgetLimit:   snapshot.BudgetLimit,
			OccurredAt:    time.Now(),
		})
	})

	taskService := task.NewService(taskStore, taskQueue)
	model := cfg.Agent.Model
	factory := func(sub *task.Submission) (agent.Task, error) {
		return task.NewCompletionTask(sub, llmClient, model), nil
	}
	processor := task.NewProcessor(ag, taskStore, taskQueue, factory,
		task.WithWorkerCount(cfg.TaskQueue.Workers),
		task.WithProcessorLogger(logger.L()),
		task.WithAlertDispatcher(alerter),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("任务处理器异常退出", slog.Any("error", err))
		}
	}()

	if cfg.Server.MetricsAddress != "" && cfg.Server.MetricsAddress != cfg.Server.Address {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, taskService, ag)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "", "local":
		return local.NewClient(cfg.Agent.Model), nil
	default:
		return nil, fmt.Errorf("未知的补全 provider: %s", cfg.LLM.Provider)
	}
}

func createTaskQueue(cfg *config.Config) (task.Queue, error) {
	switch cfg.TaskQueue.Driver {
	case "", "memory":
		return task.NewMemoryQueue(1024), nil
	case "redis":
		return task.NewRedisQueue(task.RedisQueueConfig{
			Address:   cfg.TaskQueue.Redis.Address,
			Password:  cfg.TaskQueue.Redis.Password,
			DB:        cfg.TaskQueue.Redis.DB,
			Queue:     cfg.TaskQueue.Redis.Queue,
			BlockWait: cfg.TaskQueue.Redis.BlockWait,
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:      cfg.TaskQueue.RabbitMQ.URL,
			Queue:    cfg.TaskQueue.RabbitMQ.Queue,
			Prefetch: cfg.TaskQueue.RabbitMQ.Prefetch,
			Durable:  cfg.TaskQueue.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.TaskQueue.Driver)
	}
}
