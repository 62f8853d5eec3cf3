package task

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore 是进程内的 Store 实现，适用于单机部署与测试。
type MemoryStore struct {
	mu          sync.RWMutex
	submissions map[string]*Submission
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建空的内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{submissions: make(map[string]*Submission)}
}

func (s *MemoryStore) Create(ctx context.Context, sub *Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.submissions[sub.ID]; exists {
		return ErrTaskConflict
	}
	now := time.Now().Unix()
	stored := cloneSubmission(sub)
	stored.Status = StatusPending
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.submissions[sub.ID] = stored

	sub.Status = stored.Status
	sub.CreatedAt = stored.CreatedAt
	sub.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, exists := s.submissions[id]
	if !exists {
		return nil, ErrTaskNotFound
	}
	return cloneSubmission(stored), nil
}

func (s *MemoryStore) Claim(ctx context.Context, id string) (*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.submissions[id]
	if !exists {
		return nil, ErrTaskNotFound
	}
	switch stored.Status {
	case StatusSucceeded:
		return nil, ErrTaskCompleted
	case StatusFailed:
		return nil, ErrTaskTerminal
	case StatusRunning:
		return nil, ErrTaskConflict
	}
	stored.Status = StatusRunning
	stored.UpdatedAt = time.Now().Unix()
	return cloneSubmission(stored), nil
}

func (s *MemoryStore) MarkSucceeded(ctx context.Context, id string, record *ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.submissions[id]
	if !exists {
		return ErrTaskNotFound
	}
	if stored.Status != StatusRunning {
		return ErrTaskConflict
	}
	stored.Status = StatusSucceeded
	stored.Result = record
	stored.LastError = ""
	stored.ErrorCode = ""
	stored.UpdatedAt = time.Now().Unix()
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id string, code string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.submissions[id]
	if !exists {
		return ErrTaskNotFound
	}
	switch stored.Status {
	case StatusSucceeded:
		return ErrTaskCompleted
	case StatusFailed:
		return ErrTaskTerminal
	}
	stored.Status = StatusFailed
	stored.ErrorCode = code
	stored.LastError = message
	stored.UpdatedAt = time.Now().Unix()
	return nil
}

func (s *MemoryStore) List(ctx context.Context, opts ...ListOption) ([]*Submission, error) {
	options := buildListOptions(opts)

	s.mu.RLock()
	all := make([]*Submission, 0, len(s.submissions))
	for _, stored := range s.submissions {
		if options.Status != "" && stored.Status != options.Status {
			continue
		}
		all = append(all, cloneSubmission(stored))
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt != all[j].CreatedAt {
			return all[i].CreatedAt > all[j].CreatedAt
		}
		return all[i].ID > all[j].ID
	})

	if options.Offset >= len(all) {
		return []*Submission{}, nil
	}
	all = all[options.Offset:]
	if len(all) > options.Limit {
		all = all[:options.Limit]
	}
	return all, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (*SubmissionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &SubmissionStats{}
	for _, stored := range s.submissions {
		stats.add(stored.Status)
	}
	return stats, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func cloneSubmission(sub *Submission) *Submission {
	cloned := *sub
	cloned.Params = cloneParams(sub.Params)
	if sub.Result != nil {
		record := *sub.Result
		cloned.Result = &record
	}
	return &cloned
}
