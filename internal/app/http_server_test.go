package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/wholesale/internal/health"
	"github.com/vladislavdragonenkov/wholesale/internal/version"
)

func TestStartMetricsServer_Endpoints(t *testing.T) {
	logger := log.WithField("test", "http")
	port := findFreePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	srv := startMetricsServer(ctx, fmt.Sprintf("127.0.0.1:%d", port), logger, healthHandler)
	if srv == nil {
		t.Fatal("startMetricsServer should not return nil")
	}
	waitForServer(t, port)

	cases := []struct {
		path     string
		wantBody string
	}{
		{path: "/metrics"},
		{path: "/healthz"},
		{path: "/livez", wantBody: "ok"},
		{path: "/readyz", wantBody: "ready"},
	}
	for _, tc := range cases {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d%s", port, tc.path))
		if err != nil {
			t.Fatalf("GET %s: %v", tc.path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s returned status %d, expected 200", tc.path, resp.StatusCode)
		}
		if len(body) == 0 {
			t.Errorf("%s returned empty body", tc.path)
		}
		if tc.wantBody != "" && string(body) != tc.wantBody {
			t.Errorf("%s returned %q, expected %q", tc.path, body, tc.wantBody)
		}
	}
}

func TestStartMetricsServer_ReadyzReflectsStorage(t *testing.T) {
	logger := log.WithField("test", "http-readyz")
	port := findFreePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.Register("storage", healthcheck.NewPingChecker(healthcheck.PingFunc(func(context.Context) error {
		return errors.New("connection refused")
	})))
	startMetricsServer(ctx, fmt.Sprintf("127.0.0.1:%d", port), logger, healthHandler)
	waitForServer(t, port)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/readyz", port))
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while storage is down, got %d", resp.StatusCode)
	}
}

func TestStartMetricsServer_ShutdownOnCancel(t *testing.T) {
	logger := log.WithField("test", "http-shutdown")
	port := findFreePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	startMetricsServer(ctx, fmt.Sprintf("127.0.0.1:%d", port), logger, healthcheck.NewHandler(version.GetVersion()))
	waitForServer(t, port)

	cancel()
	time.Sleep(200 * time.Millisecond)

	if _, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/livez", port)); err == nil {
		t.Error("server should be stopped after context cancellation")
	}
}

func TestShutdownHTTP_NilServer(_ *testing.T) {
	shutdownHTTP(nil, log.WithField("test", "http-nil"))
}

func TestShutdownWorkers(t *testing.T) {
	logger := log.WithField("test", "shutdown")

	cancelCalled := false
	done := make(chan struct{})
	close(done)
	shutdownWorkers(func() { cancelCalled = true }, done, logger)
	if !cancelCalled {
		t.Fatal("expected worker cancel func to be called")
	}

	shutdownWorkers(nil, nil, logger)
}

func waitForServer(t *testing.T, port int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server on port %d did not start", port)
}

// findFreePort находит свободный порт для тестов.
func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}
