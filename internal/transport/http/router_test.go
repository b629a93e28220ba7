package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/mediadash/backend/internal/config"
	"github.com/mediadash/backend/internal/core/services"
	"github.com/mediadash/backend/internal/domain"
	"github.com/mediadash/backend/internal/infrastructure/db"
)

type testServer struct {
	app      *fiber.App
	feed     *services.StatusFeed
	registry *services.WorkerRegistry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{}
	cfg.Auth.AdminAPIKey = "admin"
	cfg.Auth.WorkerToken = "worker"

	registry := services.NewWorkerRegistry(services.WorkerRegistryConfig{})
	history := services.NewHistoryService(services.HistoryServiceConfig{Repo: db.NewMemoryHistoryRepository(nil)})
	feed := services.NewStatusFeed(services.StatusFeedConfig{
		Workers:                registry,
		History:                history,
		WorkersInterval:        50 * time.Millisecond,
		CompletedTasksInterval: time.Second,
	})

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	SetupRoutes(app, RouterConfig{
		Config:  cfg,
		Workers: registry,
		History: history,
		Feed:    feed,
	})
	return &testServer{app: app, feed: feed, registry: registry}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func TestRoutes_HealthAndUpgradeGuard(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, "GET", "/health", "", nil)
	if code != fiber.StatusOK || body["server_id"] != s.feed.ServerID() {
		t.Fatalf("unexpected health %d %v", code, body)
	}

	code, _ = s.do(t, "GET", "/dashws", "", nil)
	if code != fiber.StatusUpgradeRequired {
		t.Fatalf("expected 426 for plain GET, got %d", code)
	}
}

func TestRoutes_WorkerLifecycle(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, "POST", "/api/v1/workers/status", "", map[string]interface{}{"id": "1"})
	if code != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}

	code, body := s.do(t, "POST", "/api/v1/workers/status", "worker", map[string]interface{}{
		"id":           1,
		"current_file": "/media/film.mkv",
		"percent":      12.5,
		"log_lines":    []string{"frame=1"},
	})
	if code != fiber.StatusOK || body["success"] != true {
		t.Fatalf("unexpected status response %d %v", code, body)
	}

	code, _ = s.do(t, "POST", "/api/v1/workers/status", "worker", map[string]interface{}{"id": "2", "percent": 150})
	if code != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for bad percent, got %d", code)
	}

	code, body = s.do(t, "GET", "/api/v1/workers", "admin", nil)
	workers, _ := body["workers"].([]interface{})
	if code != fiber.StatusOK || len(workers) != 1 {
		t.Fatalf("unexpected worker list %d %v", code, body)
	}

	code, _ = s.do(t, "DELETE", "/api/v1/workers/9", "admin", nil)
	if code != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	code, _ = s.do(t, "DELETE", "/api/v1/workers/1", "admin", nil)
	if code != fiber.StatusOK || len(s.registry.Snapshot()) != 0 {
		t.Fatalf("expected worker removed, got %d", code)
	}
}

func TestRoutes_PendingList(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, "POST", "/api/v1/workers/status", "worker", map[string]interface{}{
		"id":      "1",
		"idle":    true,
		"pending": []string{"/in/a.mkv", "/in/b.mkv", "/in/c.mkv"},
	})
	if code != fiber.StatusOK {
		t.Fatalf("unexpected status response %d", code)
	}

	code, _ = s.do(t, "GET", "/api/v1/pending/list", "", nil)
	if code != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}

	code, body := s.do(t, "GET", "/api/v1/pending/list?start=1&length=1", "admin", nil)
	results, _ := body["results"].([]interface{})
	if code != fiber.StatusOK || body["recordsTotal"] != float64(3) || len(results) != 1 {
		t.Fatalf("unexpected pending page %d %v", code, body)
	}
	if row, _ := results[0].(map[string]interface{}); row["label"] != "/in/b.mkv" {
		t.Fatalf("unexpected row %v", results[0])
	}

	code, body = s.do(t, "GET", "/api/v1/pending/list?start=10", "admin", nil)
	results, _ = body["results"].([]interface{})
	if code != fiber.StatusOK || len(results) != 0 {
		t.Fatalf("expected empty page past the end, got %d %v", code, body)
	}

	code, _ = s.do(t, "GET", "/api/v1/pending/list?length=-1", "admin", nil)
	if code != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for negative length, got %d", code)
	}
}

func TestRoutes_HistoryLifecycle(t *testing.T) {
	s := newTestServer(t)
	now := float64(time.Now().Unix())

	for i, ok := range []bool{true, false, true} {
		code, _ := s.do(t, "POST", "/api/v1/history/record", "worker", map[string]interface{}{
			"label":       fmt.Sprintf("episode-%d.mkv", i),
			"success":     ok,
			"finish_time": now - float64(i*60),
		})
		if code != fiber.StatusCreated {
			t.Fatalf("record %d: expected 201, got %d", i, code)
		}
	}

	code, _ := s.do(t, "POST", "/api/v1/history/record", "worker", map[string]interface{}{"label": ""})
	if code != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for empty label, got %d", code)
	}

	code, body := s.do(t, "POST", "/api/v1/history/list", "admin", map[string]interface{}{
		"start":        0,
		"length":       2,
		"search_value": "episode",
		"order":        []map[string]string{{"column": "finish_time", "dir": "desc"}},
	})
	if code != fiber.StatusOK || body["success"] != true {
		t.Fatalf("unexpected list response %d %v", code, body)
	}
	if body["recordsTotal"] != float64(3) || body["successCount"] != float64(2) || body["failedCount"] != float64(1) {
		t.Fatalf("unexpected counts %v", body)
	}
	results, _ := body["results"].([]interface{})
	if len(results) != 2 {
		t.Fatalf("expected a page of 2, got %d", len(results))
	}
	first := results[0].(map[string]interface{})
	if first["label"] != "episode-0.mkv" {
		t.Fatalf("expected newest first, got %v", first)
	}

	code, body = s.do(t, "DELETE", "/api/v1/history", "admin", map[string]interface{}{"id_list": []uint{1, 2}})
	if code != fiber.StatusOK || body["deleted"] != float64(2) {
		t.Fatalf("unexpected delete response %d %v", code, body)
	}
	code, _ = s.do(t, "DELETE", "/api/v1/history", "admin", map[string]interface{}{"id_list": []uint{}})
	if code != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for empty id_list, got %d", code)
	}
}

func TestRoutes_DashFeed(t *testing.T) {
	s := newTestServer(t)
	s.registry.Upsert(domain.WorkerReport{ID: "1", Idle: true})

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go s.app.Listener(ln)
	defer s.app.Shutdown()

	url := fmt.Sprintf("ws://%s/dashws", ln.Addr().String())
	conn, resp, err := websocket.DefaultDialer.Dial(url, nethttp.Header{})
	if err != nil {
		t.Fatalf("dial %s: %v (resp=%v)", url, err, resp)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteMessage(websocket.TextMessage, []byte("start_workers_info")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var env struct {
		Success  bool                  `json:"success"`
		ServerID string                `json:"server_id"`
		Type     string                `json:"type"`
		Data     []domain.WorkerStatus `json:"data"`
	}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !env.Success || env.Type != string(domain.MessageWorkersInfo) || env.ServerID != s.feed.ServerID() {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if len(env.Data) != 1 || env.Data[0].ID != "1" {
		t.Fatalf("unexpected workers %+v", env.Data)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("stop_workers_info")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not_a_command")); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		var reply struct {
			Success bool   `json:"success"`
			Type    string `json:"type"`
		}
		if err := conn.ReadJSON(&reply); err != nil {
			t.Fatalf("read: %v", err)
		}
		if reply.Type == "" {
			if reply.Success {
				t.Fatalf("expected unsuccessful reply to unknown command")
			}
			break
		}
	}
}
