package task

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"AxiomHive-Agent/internal/agent"
	xerrors "AxiomHive-Agent/internal/errors"
	"AxiomHive-Agent/pkg/logger"
)

// SubmissionRequest 描述一次任务提交。零值字段使用任务配置的默认值。
type SubmissionRequest struct {
	ID           string             `json:"id,omitempty"`
	Description  string             `json:"description"`
	Params       map[string]any     `json:"params,omitempty"`
	MaxTokens    int                `json:"max_tokens,omitempty"`
	Temperature  *float64           `json:"temperature,omitempty"`
	OutputFormat agent.OutputFormat `json:"output_format,omitempty"`
	TrackUsage   *bool              `json:"track_usage,omitempty"`
}

// Service 负责任务申请的创建与查询。
type Service struct {
	store    Store
	producer Producer
}

// NewService 构造任务服务。
func NewService(store Store, producer Producer) *Service {
	return &Service{store: store, producer: producer}
}

// Submit 校验并保存一条任务申请，随后推送到队列。
// 携带已存在 ID 的重复提交是幂等的：直接返回已有记录。
func (s *Service) Submit(ctx context.Context, req SubmissionRequest) (*Submission, error) {
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化")
	}

	submissionID := strings.TrimSpace(req.ID)
	if submissionID != "" {
		existing, err := s.store.Get(ctx, submissionID)
		if err == nil {
			return existing, nil
		}
		if !stdErrors.Is(err, ErrTaskNotFound) {
			return nil, err
		}
	} else {
		submissionID = uuid.NewString()
	}

	conf := agent.NewTaskConfig(submissionID, req.Description)
	if req.MaxTokens > 0 {
		conf.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		conf.Temperature = *req.Temperature
	}
	if req.OutputFormat != "" {
		conf.OutputFormat = req.OutputFormat
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	trackUsage := true
	if req.TrackUsage != nil {
		trackUsage = *req.TrackUsage
	}

	sub := &Submission{
		ID:           submissionID,
		Description:  conf.Description,
		Params:       cloneParams(req.Params),
		MaxTokens:    conf.MaxTokens,
		Temperature:  conf.Temperature,
		OutputFormat: conf.OutputFormat,
		TrackUsage:   trackUsage,
		Status:       StatusPending,
	}
	if err := s.store.Create(ctx, sub); err != nil {
		if stdErrors.Is(err, ErrTaskConflict) {
			existing, getErr := s.store.Get(ctx, submissionID)
			if getErr == nil {
				return existing, nil
			}
			if !stdErrors.Is(getErr, ErrTaskNotFound) {
				return nil, getErr
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, submissionID); err != nil {
		logger.L().Error("任务入队失败", slog.Any("error", err), slog.String("task_id", submissionID))
		wrapped := xerrors.Wrap(CodeTaskPublish, err, "发布任务到队列失败")
		// 单次执行策略：入队失败直接置为终态，由调用方决定是否重新提交。
		_ = s.store.MarkFailed(ctx, submissionID, string(CodeTaskPublish), wrapped.Error())
		return nil, wrapped
	}
	logger.Audit().Info("任务入队成功",
		slog.String("task_id", submissionID),
		slog.String("description", sub.Description),
		slog.Int("max_tokens", sub.MaxTokens),
	)
	return sub, nil
}

// Get 返回指定任务申请。
func (s *Service) Get(ctx context.Context, id string) (*Submission, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的任务申请列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Submission, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.List(ctx, opts...)
}

// Stats 返回各状态的任务数量统计。
func (s *Service) Stats(ctx context.Context) (*SubmissionStats, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Stats(ctx)
}

// WaitUntilCompleted 以固定间隔轮询任务申请，直到其进入终态或 ctx 取消。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Submission, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sub, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if sub.Status == StatusSucceeded || sub.Status == StatusFailed {
			return sub, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close 释放存储与队列资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}
