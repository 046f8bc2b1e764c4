package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mattjoyce/monitor-relay/internal/config"
	"github.com/mattjoyce/monitor-relay/internal/telegram"
)

// mockHandler records updates passed to Handle.
type mockHandler struct {
	mu      sync.Mutex
	updates []telegram.Update
	ctxErrs []error
	handled chan struct{}
}

func newMockHandler() *mockHandler {
	return &mockHandler{handled: make(chan struct{}, 16)}
}

func (m *mockHandler) Handle(ctx context.Context, update telegram.Update) {
	m.mu.Lock()
	m.updates = append(m.updates, update)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	m.mu.Unlock()
	m.handled <- struct{}{}
}

func (m *mockHandler) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.updates)
}

func testConfig() Config {
	return Config{
		Listen:       "127.0.0.1:0",
		Path:         "/telegram/webhook",
		HealthPath:   "/healthz",
		Secret:       "test-secret",
		SecretHeader: DefaultSecretHeader,
		MaxBodySize:  1048576,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func doRequest(server *Server, method, path, secret string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if secret != "" {
		req.Header.Set(DefaultSecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleUpdate_Accepted(t *testing.T) {
	handler := newMockHandler()
	server := New(testConfig(), handler, nil, testLogger())

	body := []byte(`{"update_id":77,"message":{"message_id":1,"chat":{"id":1001},"text":"/status"}}`)
	rec := doRequest(server, http.MethodPost, "/telegram/webhook", "test-secret", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp AckResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.OK {
		t.Errorf("OK = false, want true")
	}

	select {
	case <-handler.handled:
	case <-time.After(2 * time.Second):
		t.Fatal("update was not handled")
	}
	server.Wait()

	if handler.updates[0].UpdateID != 77 {
		t.Errorf("UpdateID = %d, want 77", handler.updates[0].UpdateID)
	}
	if got := *handler.updates[0].Message.Text; got != "/status" {
		t.Errorf("Text = %q, want /status", got)
	}
	if handler.ctxErrs[0] != nil {
		t.Errorf("handler context already done: %v", handler.ctxErrs[0])
	}
}

func TestHandleUpdate_WrongSecret(t *testing.T) {
	handler := newMockHandler()
	preflightCalled := false
	preflight := func() error {
		preflightCalled = true
		return nil
	}
	server := New(testConfig(), handler, preflight, testLogger())

	for _, secret := range []string{"wrong-secret", ""} {
		rec := doRequest(server, http.MethodPost, "/telegram/webhook", secret, []byte(`{"update_id":1}`))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("secret %q: status = %d, want %d", secret, rec.Code, http.StatusUnauthorized)
		}
	}

	server.Wait()
	if handler.calls() != 0 {
		t.Errorf("handler called %d times, want 0", handler.calls())
	}
	if preflightCalled {
		t.Error("preflight should not run before the secret check")
	}
}

func TestHandleUpdate_NoSecretConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Secret = ""
	handler := newMockHandler()
	server := New(cfg, handler, nil, testLogger())

	rec := doRequest(server, http.MethodPost, "/telegram/webhook", "", []byte(`{"update_id":1}`))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	server.Wait()
	if handler.calls() != 1 {
		t.Errorf("handler called %d times, want 1", handler.calls())
	}
}

func TestHandleUpdate_PreflightFailure(t *testing.T) {
	handler := newMockHandler()
	preflight := func() error { return errors.New("missing configuration: github.token") }
	server := New(testConfig(), handler, preflight, testLogger())

	rec := doRequest(server, http.MethodPost, "/telegram/webhook", "test-secret", []byte(`{"update_id":1}`))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if strings.Contains(resp.Error, "github.token") {
		t.Errorf("Error leaks configuration detail: %q", resp.Error)
	}

	server.Wait()
	if handler.calls() != 0 {
		t.Errorf("handler called %d times, want 0", handler.calls())
	}
}

func TestHandleUpdate_MalformedBody(t *testing.T) {
	handler := newMockHandler()
	server := New(testConfig(), handler, nil, testLogger())

	rec := doRequest(server, http.MethodPost, "/telegram/webhook", "test-secret", []byte(`{"update_id":`))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	server.Wait()
	if handler.calls() != 0 {
		t.Errorf("handler called %d times, want 0", handler.calls())
	}
}

func TestHandleUpdate_BodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodySize = 64
	handler := newMockHandler()
	server := New(cfg, handler, nil, testLogger())

	body := []byte(`{"update_id":1,"message":{"chat":{"id":1},"text":"` + strings.Repeat("a", 128) + `"}}`)
	rec := doRequest(server, http.MethodPost, "/telegram/webhook", "test-secret", body)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
	server.Wait()
	if handler.calls() != 0 {
		t.Errorf("handler called %d times, want 0", handler.calls())
	}
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	server := New(testConfig(), newMockHandler(), nil, testLogger())

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"health", http.MethodGet, "/healthz", http.StatusOK},
		{"unknown path", http.MethodPost, "/webhook/unknown", http.StatusNotFound},
		{"get on webhook path", http.MethodGet, "/telegram/webhook", http.StatusNotFound},
		{"post on health path", http.MethodPost, "/healthz", http.StatusNotFound},
		{"root", http.MethodGet, "/", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(server, tt.method, tt.path, "", nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	server := New(Config{Path: "/hook"}, newMockHandler(), nil, nil)

	if server.config.MaxBodySize != DefaultMaxBodySize {
		t.Errorf("MaxBodySize = %d, want %d", server.config.MaxBodySize, DefaultMaxBodySize)
	}
	if server.config.SecretHeader != DefaultSecretHeader {
		t.Errorf("SecretHeader = %v, want %v", server.config.SecretHeader, DefaultSecretHeader)
	}
}

func TestFromGlobalConfig(t *testing.T) {
	wc := config.Defaults().Webhook
	wc.Secret = "s"
	wc.MaxBodySize = "512KB"

	cfg, err := FromGlobalConfig(wc)
	if err != nil {
		t.Fatalf("FromGlobalConfig() error = %v", err)
	}
	if cfg.MaxBodySize != 512*1024 {
		t.Errorf("MaxBodySize = %d, want %d", cfg.MaxBodySize, 512*1024)
	}
	if cfg.Path != "/telegram/webhook" || cfg.HealthPath != "/healthz" || cfg.Secret != "s" {
		t.Errorf("unexpected config: %+v", cfg)
	}

	wc.MaxBodySize = "lots"
	if _, err := FromGlobalConfig(wc); err == nil {
		t.Error("expected error for invalid max_body_size")
	}
}

func TestParseMaxBodySize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", DefaultMaxBodySize, false},
		{"2048", 2048, false},
		{"1mb", 1024 * 1024, false},
		{"4 KB", 4096, false},
		{"1GB", 1024 * 1024 * 1024, false},
		{"0", 0, true},
		{"-5KB", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseMaxBodySize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseMaxBodySize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseMaxBodySize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	server := New(testConfig(), newMockHandler(), nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Start() error = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
