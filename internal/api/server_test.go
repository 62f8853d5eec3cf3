package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"AxiomHive-Agent/internal/agent"
	"AxiomHive-Agent/internal/task"
)

func newTestServer(t *testing.T) (*Server, *task.Service) {
	t.Helper()
	store := task.NewMemoryStore()
	queue := task.NewMemoryQueue(64)
	t.Cleanup(func() {
		_ = queue.Close()
	})
	service := task.NewService(store, queue)
	executor := agent.New("api-test")
	return NewServer(":0", service, executor), service
}

func TestSubmitAndGetTask(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.routes()

	body, _ := json.Marshal(task.SubmissionRequest{Description: "通过 API 提交"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("期望 202，实际 %d: %s", rec.Code, rec.Body.String())
	}
	var created task.Submission
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if created.ID == "" || created.Status != task.StatusPending {
		t.Fatalf("创建响应错误: %+v", created)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tasks?id="+created.ID, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", rec.Code)
	}
	var fetched task.Submission
	if err := json.Unmarshal(rec.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if fetched.ID != created.ID {
		t.Fatalf("查询结果不一致: %+v", fetched)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks?id=missing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("期望 404，实际 %d", rec.Code)
	}
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("错误响应应为 JSON: %v", err)
	}
	if body.Code != "TASK_NOT_FOUND" || body.Message == "" {
		t.Fatalf("错误响应结构错误: %+v", body)
	}
}

func TestSubmitTaskRejectsBadRequest(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.routes()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader([]byte("{不是 JSON")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("非法 JSON 应返回 400，实际 %d", rec.Code)
	}

	body, _ := json.Marshal(task.SubmissionRequest{Description: ""})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("空描述应返回 400，实际 %d", rec.Code)
	}
}

func TestListTasksAndStats(t *testing.T) {
	server, service := newTestServer(t)
	handler := server.routes()
	ctx := context.Background()

	for _, desc := range []string{"第一", "第二", "第三"} {
		if _, err := service.Submit(ctx, task.SubmissionRequest{Description: desc}); err != nil {
			t.Fatalf("提交失败: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks?limit=2", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", rec.Code)
	}
	var listed []task.Submission
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("limit=2 应返回 2 条，实际 %d", len(listed))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tasks?status=unknown", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("非法状态过滤应返回 400，实际 %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tasks/stats", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", rec.Code)
	}
	var stats task.SubmissionStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 3 {
		t.Fatalf("统计错误: %+v", stats)
	}
}

func TestUsageEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", rec.Code)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if _, ok := body["usage"]; !ok {
		t.Fatalf("响应缺少 usage 字段: %s", rec.Body.String())
	}
	if _, ok := body["events"]; !ok {
		t.Fatalf("响应缺少 events 字段: %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/usage", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /usage 应返回 405，实际 %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.routes()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", rec.Code)
	}
}

func TestMethodNotAllowedOnTasks(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.routes()

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/tasks", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("期望 405，实际 %d", rec.Code)
	}
}
