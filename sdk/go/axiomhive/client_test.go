package axiomhive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitTask(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/tasks" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var payload TaskSubmission
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload.Description != "sdk 提交" {
			t.Errorf("unexpected description: %s", payload.Description)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(TaskView{ID: "task-1", Description: payload.Description, Status: "pending"})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	view, err := client.SubmitTask(context.Background(), TaskSubmission{Description: "sdk 提交"})
	if err != nil {
		t.Fatalf("submit task: %v", err)
	}
	if view.ID != "task-1" || view.Status != "pending" {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestGetTaskUsesQueryParam(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != "task-9" {
			t.Errorf("unexpected id: %s", got)
		}
		_ = json.NewEncoder(w).Encode(TaskView{ID: "task-9", Status: "succeeded"})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	view, err := client.GetTask(context.Background(), "task-9")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !view.Terminal() {
		t.Fatalf("succeeded task should be terminal: %+v", view)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"TASK_NOT_FOUND","message":"task not found"}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	_, err = client.GetTask(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "TASK_NOT_FOUND" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestUsageSummary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/usage" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"usage":{"total_tokens":150,"prompt_tokens":100,"completion_tokens":50,"estimated_cost":0.0003,"calls":1,"budget_limit":null,"budget_remaining":null},"events":[{"tokens":150,"cost":0.0003,"label":"t1","timestamp":"2025-01-02T03:04:05Z"}]}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	summary, err := client.Usage(context.Background())
	if err != nil {
		t.Fatalf("fetch usage: %v", err)
	}
	if summary.Usage.TotalTokens != 150 || summary.Usage.BudgetLimit != nil {
		t.Fatalf("unexpected usage: %+v", summary.Usage)
	}
	if len(summary.Events) != 1 || summary.Events[0].Label != "t1" {
		t.Fatalf("unexpected events: %+v", summary.Events)
	}
}

func TestWaitForTaskPollsUntilTerminal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := "running"
		if calls.Add(1) >= 3 {
			status = "succeeded"
		}
		_ = json.NewEncoder(w).Encode(TaskView{ID: "task-2", Status: status})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	view, err := client.WaitForTask(ctx, "task-2", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait for task: %v", err)
	}
	if view.Status != "succeeded" {
		t.Fatalf("unexpected status: %s", view.Status)
	}
	if calls.Load() < 3 {
		t.Fatalf("expected at least 3 polls, got %d", calls.Load())
	}
}
