package api

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/goclaw/memkeeper/config"
	"github.com/goclaw/memkeeper/pkg/logger"
)

func TestNewHTTPServer(t *testing.T) {
	cfg := config.DefaultConfig()
	h, _ := createTestHandlers(t)

	server := NewHTTPServer(cfg, logger.NewNop(), h)
	if server == nil {
		t.Fatal("NewHTTPServer returned nil")
	}
	if server.srv.Addr != "127.0.0.1:8765" {
		t.Errorf("Addr = %v, want 127.0.0.1:8765", server.srv.Addr)
	}
	if server.srv.ReadTimeout != cfg.Server.ReadTimeout {
		t.Errorf("ReadTimeout = %v, want %v", server.srv.ReadTimeout, cfg.Server.ReadTimeout)
	}
	if server.Handler() == nil {
		t.Error("Router not initialized")
	}
}

func TestHTTPServer_ServeAndShutdown(t *testing.T) {
	h, _ := createTestHandlers(t)
	server := NewHTTPServer(config.DefaultConfig(), logger.NewNop(), h)

	if server.Addr() != nil {
		t.Errorf("Addr() before Serve = %v, want nil", server.Addr())
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Serve() error = %v", err)
	}
	if got := server.Addr(); got == nil || got.String() != ln.Addr().String() {
		t.Errorf("Addr() = %v, want %v", got, ln.Addr())
	}
}

func TestHTTPServer_RequestContextCarriesLogger(t *testing.T) {
	h, _ := createTestHandlers(t)
	log := logger.NewNop()
	server := NewHTTPServer(config.DefaultConfig(), log, h)

	ctx := server.srv.BaseContext(nil)
	if got := logger.FromContext(ctx); got == logger.Global() {
		t.Error("request context should carry the server logger, got the global one")
	}
}

func TestHTTPServer_StartReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	cfg := config.DefaultConfig()
	h, _ := createTestHandlers(t)
	server := NewHTTPServer(cfg, logger.NewNop(), h)
	server.srv.Addr = ln.Addr().String()

	if err := server.Start(); err == nil {
		t.Fatal("Start() on a busy port should fail")
	}
}
