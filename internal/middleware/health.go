package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const checkTimeout = 5 * time.Second

// HealthChecker is implemented by the record store and the report archive.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
}

type CheckStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// runChecks calls every checker concurrently, each under the shared deadline.
func runChecks(ctx context.Context, checkers map[string]HealthChecker) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	health := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]CheckStatus, len(checkers)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, checker := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := checker.Check(ctx)
			cs := CheckStatus{Status: "healthy", LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				cs.Status, cs.Message = "unhealthy", err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			health.Checks[name] = cs
			if err != nil {
				health.Status = "unhealthy"
			}
		}()
	}
	wg.Wait()
	return health
}

// HealthHandler reports every check; any failure turns the response into 503.
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := runChecks(r.Context(), checkers)
		statusCode := http.StatusOK
		if health.Status != "healthy" {
			statusCode = http.StatusServiceUnavailable
		}
		writeStatus(w, statusCode, health)
	}
}

// ReadinessHandler answers 200 once the required checks pass, so traffic is
// not routed to an instance whose record store cannot be opened.
func ReadinessHandler(checkers map[string]HealthChecker, required ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subset := make(map[string]HealthChecker, len(required))
		for _, name := range required {
			if c, ok := checkers[name]; ok {
				subset[name] = c
			}
		}
		health := runChecks(r.Context(), subset)

		body := map[string]any{"status": "ready", "timestamp": health.Timestamp}
		statusCode := http.StatusOK
		if health.Status != "healthy" {
			statusCode = http.StatusServiceUnavailable
			var failing []string
			for name, cs := range health.Checks {
				if cs.Status != "healthy" {
					failing = append(failing, name)
				}
			}
			body["status"], body["failing"] = "not_ready", failing
		}
		writeStatus(w, statusCode, body)
	}
}

// LivenessHandler only proves the process serves HTTP.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
