// Package health provides readiness checks for the fusion pipeline's
// dependencies: upstream API endpoints, the snapshot store directory, and
// the optional Redis event bus.
package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status constants represent the operational state of a dependency.
const (
	// StatusHealthy indicates the dependency is fully operational.
	StatusHealthy = "healthy"

	// StatusDegraded indicates the dependency is reachable but impaired.
	StatusDegraded = "degraded"

	// StatusUnhealthy indicates the dependency is not operational.
	StatusUnhealthy = "unhealthy"
)

// Status represents the health state of a single dependency.
type Status struct {
	// Status is the current health state (healthy, degraded, or unhealthy).
	Status string `json:"status"`

	// Message provides a human-readable description of the state.
	Message string `json:"message,omitempty"`

	// Details contains additional diagnostic context.
	Details map[string]any `json:"details,omitempty"`
}

// IsHealthy returns true if the status is StatusHealthy.
func (s Status) IsHealthy() bool { return s.Status == StatusHealthy }

// IsDegraded returns true if the status is StatusDegraded.
func (s Status) IsDegraded() bool { return s.Status == StatusDegraded }

// IsUnhealthy returns true if the status is StatusUnhealthy.
func (s Status) IsUnhealthy() bool { return s.Status == StatusUnhealthy }

// Healthy creates a healthy status with an optional message.
func Healthy(message string) Status {
	return Status{Status: StatusHealthy, Message: message}
}

// Degraded creates a degraded status with a message and optional details.
func Degraded(message string, details map[string]any) Status {
	return Status{Status: StatusDegraded, Message: message, Details: details}
}

// Unhealthy creates an unhealthy status with a message and optional details.
func Unhealthy(message string, details map[string]any) Status {
	return Status{Status: StatusUnhealthy, Message: message, Details: details}
}

// EndpointCheck verifies that an API source endpoint responds within the
// timeout. Any HTTP response below 500 counts as reachable; a 4xx likely
// means bad credentials rather than an outage, so it reports degraded.
func EndpointCheck(ctx context.Context, url string, timeout time.Duration) Status {
	if url == "" {
		return Unhealthy("endpoint url cannot be empty", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return Unhealthy("invalid endpoint url", map[string]any{
			"url":   url,
			"error": err.Error(),
		})
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Unhealthy(fmt.Sprintf("endpoint %s unreachable", url), map[string]any{
			"url":   url,
			"error": err.Error(),
		})
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return Unhealthy(fmt.Sprintf("endpoint %s returned %d", url, resp.StatusCode),
			map[string]any{"url": url, "status_code": resp.StatusCode})
	case resp.StatusCode >= 400:
		return Degraded(fmt.Sprintf("endpoint %s returned %d", url, resp.StatusCode),
			map[string]any{"url": url, "status_code": resp.StatusCode})
	default:
		return Healthy(fmt.Sprintf("endpoint %s reachable", url))
	}
}

// StoreDirCheck verifies that the snapshot store directory exists and is
// writable. A missing directory is degraded rather than unhealthy since the
// store creates it on open.
func StoreDirCheck(path string) Status {
	if path == "" {
		return Healthy("store is in-memory")
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Degraded(fmt.Sprintf("store directory %s does not exist yet", path),
			map[string]any{"path": path})
	}
	if err != nil {
		return Unhealthy(fmt.Sprintf("cannot stat store directory %s", path),
			map[string]any{"path": path, "error": err.Error()})
	}
	if !info.IsDir() {
		return Unhealthy(fmt.Sprintf("store path %s is not a directory", path),
			map[string]any{"path": path})
	}

	probe, err := os.CreateTemp(path, ".health-*")
	if err != nil {
		return Unhealthy(fmt.Sprintf("store directory %s is not writable", path),
			map[string]any{"path": path, "error": err.Error()})
	}
	probe.Close()
	os.Remove(probe.Name())

	return Healthy(fmt.Sprintf("store directory %s writable", path))
}

// RedisCheck verifies connectivity to the Redis event bus.
func RedisCheck(ctx context.Context, redisURL string, timeout time.Duration) Status {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return Unhealthy("invalid redis url", map[string]any{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := redis.NewClient(opts)
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return Unhealthy("redis unreachable", map[string]any{
			"addr":  opts.Addr,
			"error": err.Error(),
		})
	}
	return Healthy(fmt.Sprintf("redis %s reachable", opts.Addr))
}

// Combine merges multiple statuses into one. The result is the worst of the
// inputs, with the messages of every non-healthy check collected in Details.
func Combine(checks ...Status) Status {
	if len(checks) == 0 {
		return Healthy("no checks performed")
	}

	worst := StatusHealthy
	var problems []string
	for _, c := range checks {
		switch c.Status {
		case StatusUnhealthy:
			worst = StatusUnhealthy
		case StatusDegraded:
			if worst == StatusHealthy {
				worst = StatusDegraded
			}
		}
		if !c.IsHealthy() {
			problems = append(problems, c.Message)
		}
	}

	switch worst {
	case StatusHealthy:
		return Healthy(fmt.Sprintf("all %d checks passed", len(checks)))
	case StatusDegraded:
		return Degraded(fmt.Sprintf("%d of %d checks degraded", len(problems), len(checks)),
			map[string]any{"problems": problems})
	default:
		return Unhealthy(fmt.Sprintf("%d of %d checks failing", len(problems), len(checks)),
			map[string]any{"problems": problems})
	}
}
