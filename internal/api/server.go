package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	xerrors "AxiomHive-Agent/internal/errors"
	"AxiomHive-Agent/internal/observability/metrics"
	"AxiomHive-Agent/internal/task"
	"AxiomHive-Agent/internal/usage"
)

// UsageProvider 暴露执行器当前的用量信息。
type UsageProvider interface {
	Usage() usage.Snapshot
	UsageHistory() []usage.Event
}

// Server 负责暴露 REST 接口，供外部提交任务并查询执行情况。
type Server struct {
	addr    string
	service *task.Service
	usage   UsageProvider
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, service *task.Service, usageProvider UsageProvider) *Server {
	return &Server{addr: addr, service: service, usage: usageProvider}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/tasks", instrument("tasks", http.HandlerFunc(s.handleTasks)))
	mux.Handle("/api/v1/tasks/stats", instrument("task_stats", http.HandlerFunc(s.handleStats)))
	mux.Handle("/api/v1/usage", instrument("usage", http.HandlerFunc(s.handleUsage)))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitTask(w, r)
	case http.MethodGet:
		if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
			s.handleGetTask(w, r, id)
			return
		}
		s.handleListTasks(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, xerrors.CodeInvalidArgument, "仅支持 GET/POST")
	}
}

// handleSubmitTask 接收任务提交并入队。
func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	if s.service == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.CodeInitializationFailure, "任务服务未初始化")
		return
	}
	var req task.SubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "请求体解析失败")
		return
	}
	sub, err := s.service.Submit(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sub)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request, id string) {
	sub, err := s.service.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	opts := make([]task.ListOption, 0, 3)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, task.WithLimit(parsed))
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, task.WithOffset(parsed))
		}
	}
	if raw := task.Status(r.URL.Query().Get("status")); raw != "" {
		if !task.IsValidStatus(raw) {
			writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "不支持的任务状态")
			return
		}
		opts = append(opts, task.WithStatus(raw))
	}

	subs, err := s.service.List(r.Context(), opts...)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, xerrors.CodeInvalidArgument, "仅支持 GET")
		return
	}
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleUsage 返回执行器的累计用量与逐笔记账历史。
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, xerrors.CodeInvalidArgument, "仅支持 GET")
		return
	}
	if s.usage == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.CodeInitializationFailure, "用量信息不可用")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"usage":  s.usage.Usage(),
		"events": s.usage.UsageHistory(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code xerrors.Code, message string) {
	writeJSON(w, status, errorBody{Code: string(code), Message: message})
}

// writeDomainError 将领域错误映射为 HTTP 状态码。
func writeDomainError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case xerrors.CodeInvalidArgument, xerrors.CodeTaskValidation, xerrors.CodeInvalidUsage:
		status = http.StatusBadRequest
	case task.CodeTaskNotFound, xerrors.CodeNotFound:
		status = http.StatusNotFound
	case task.CodeTaskConflict, xerrors.CodeConflict:
		status = http.StatusConflict
	case xerrors.CodeInitializationFailure:
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, code, err.Error())
}

// instrument 记录每个请求的时延指标。
func instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, http.StatusServiceUnavailable, xerrors.CodeInitializationFailure, "服务已关闭")
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
