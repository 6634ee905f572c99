// Package health отдаёт состояние сервиса и его зависимостей для probe-запросов.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const probeTimeout = 2 * time.Second

// Component — результат проверки одной зависимости.
type Component struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Report — тело ответа /healthz. Компоненты отсортированы по имени.
type Report struct {
	Status     Status      `json:"status"`
	Version    string      `json:"version,omitempty"`
	CheckedAt  time.Time   `json:"checked_at"`
	Uptime     string      `json:"uptime"`
	Components []Component `json:"components"`
}

// Checker проверяет одну зависимость.
type Checker interface {
	Check(ctx context.Context) Component
}

// Pinger — зависимость с методом Ping (хранилище, Redis).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler агрегирует проверки зависимостей.
type Handler struct {
	version string
	started time.Time
	timeout time.Duration

	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewHandler(version string) *Handler {
	return &Handler{
		version:  version,
		started:  time.Now(),
		timeout:  probeTimeout,
		checkers: make(map[string]Checker),
	}
}

// Register добавляет проверку; повторная регистрация имени заменяет прежнюю.
func (h *Handler) Register(name string, checker Checker) {
	h.mu.Lock()
	h.checkers[name] = checker
	h.mu.Unlock()
}

// Run опрашивает все зависимости параллельно в пределах общего таймаута.
func (h *Handler) Run(ctx context.Context) Report {
	h.mu.RLock()
	registered := make(map[string]Checker, len(h.checkers))
	for name, checker := range h.checkers {
		registered[name] = checker
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	components := make([]Component, 0, len(registered))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, checker := range registered {
		wg.Add(1)
		go func(name string, checker Checker) {
			defer wg.Done()
			component := checker.Check(ctx)
			component.Name = name
			mu.Lock()
			components = append(components, component)
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()

	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	return Report{
		Status:     worst(components),
		Version:    h.version,
		CheckedAt:  time.Now().UTC(),
		Uptime:     time.Since(h.started).Truncate(time.Second).String(),
		Components: components,
	}
}

func worst(components []Component) Status {
	status := StatusHealthy
	for _, c := range components {
		switch c.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// ServeHTTP отдаёт Report в JSON. Код 503, только если упала обязательная зависимость.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Run(r.Context())

	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// Ready — readiness probe: degraded сервис продолжает принимать трафик.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Run(r.Context()).Status == StatusUnhealthy {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ready"))
}

// LivenessHandler отвечает 200, пока процесс обслуживает HTTP.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// PingChecker проверяет зависимость вызовом Ping. Отказ необязательной
// зависимости понижает статус до degraded.
type PingChecker struct {
	pinger  Pinger
	failure Status
}

func NewPingChecker(pinger Pinger) *PingChecker {
	return &PingChecker{pinger: pinger, failure: StatusUnhealthy}
}

func NewOptionalPingChecker(pinger Pinger) *PingChecker {
	return &PingChecker{pinger: pinger, failure: StatusDegraded}
}

func (c *PingChecker) Check(ctx context.Context) Component {
	started := time.Now()
	err := c.pinger.Ping(ctx)
	component := Component{Status: StatusHealthy, LatencyMs: time.Since(started).Milliseconds()}
	if err != nil {
		component.Status = c.failure
		component.Error = err.Error()
	}
	return component
}

// PingFunc адаптирует функцию к Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }
