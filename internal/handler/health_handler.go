package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"sitedash/internal/apiclient"
	"sitedash/internal/messaging"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Checker checks one dependency.
type Checker func(ctx context.Context) HealthCheckResult

// Ready returns readiness check with dependencies
func Ready(checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		// Check dependencies in parallel
		var (
			mu      sync.Mutex
			wg      sync.WaitGroup
			results = make(map[string]HealthCheckResult, len(checks))
		)
		for name, check := range checks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res := check(ctx)
				mu.Lock()
				results[name] = res
				mu.Unlock()
			}()
		}
		wg.Wait()

		allHealthy := true
		for _, res := range results {
			if res.Status != "up" {
				allHealthy = false
			}
		}

		response := map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    results,
		}

		w.Header().Set("Content-Type", "application/json")
		if allHealthy {
			response["status"] = "ready"
			w.WriteHeader(http.StatusOK)
		} else {
			response["status"] = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(response)
	}
}

func result(start time.Time, err error) HealthCheckResult {
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return HealthCheckResult{Status: "down", LatencyMs: latency, Error: err.Error()}
	}
	return HealthCheckResult{Status: "up", LatencyMs: latency}
}

// CheckDatabase verifies database connectivity
func CheckDatabase(db *sql.DB) Checker {
	return func(ctx context.Context) HealthCheckResult {
		start := time.Now()
		err := db.PingContext(ctx)
		res := result(start, err)
		if err == nil {
			stats := db.Stats()
			res.Metadata = map[string]interface{}{
				"connections_open":   stats.OpenConnections,
				"connections_in_use": stats.InUse,
				"connections_idle":   stats.Idle,
				"max_open":           stats.MaxOpenConnections,
			}
		}
		return res
	}
}

// CheckRedis verifies the state store's redis connection.
func CheckRedis(client redis.UniversalClient) Checker {
	return func(ctx context.Context) HealthCheckResult {
		start := time.Now()
		return result(start, client.Ping(ctx).Err())
	}
}

// CheckRabbitMQ verifies RabbitMQ connectivity
func CheckRabbitMQ(rmq *messaging.RabbitMQ) Checker {
	return func(ctx context.Context) HealthCheckResult {
		if rmq.IsClosed() {
			return HealthCheckResult{
				Status: "down",
				Error:  "connection closed",
			}
		}
		return HealthCheckResult{Status: "up"}
	}
}

// CheckBackend calls the backend's health endpoint.
func CheckBackend(client *apiclient.Client) Checker {
	return func(ctx context.Context) HealthCheckResult {
		start := time.Now()
		return result(start, client.Request(ctx, http.MethodGet, "/health", nil, nil, nil))
	}
}
