package health

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type HealthChecker struct {
	db  *pgxpool.Pool
	rdb *redis.Client // optional
}

type HealthStatus struct {
	Status   string           `json:"status"`
	Database ComponentHealth  `json:"database"`
	Redis    *ComponentHealth `json:"redis,omitempty"`
}

type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime int64  `json:"response_time_ms"`
}

func NewHealthChecker(db *pgxpool.Pool, rdb *redis.Client) *HealthChecker {
	return &HealthChecker{db: db, rdb: rdb}
}

// CheckBasic reports overall health. Redis is optional infrastructure; a
// dead redis degrades the report but does not mark the service unhealthy.
func (h *HealthChecker) CheckBasic() HealthStatus {
	dbHealth := h.check(func(ctx context.Context) error { return h.db.Ping(ctx) })

	status := "healthy"
	if dbHealth.Status != "healthy" {
		status = "unhealthy"
	}

	out := HealthStatus{Status: status, Database: dbHealth}
	if h.rdb != nil {
		redisHealth := h.check(func(ctx context.Context) error { return h.rdb.Ping(ctx).Err() })
		out.Redis = &redisHealth
	}
	return out
}

func (h *HealthChecker) check(ping func(context.Context) error) ComponentHealth {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	err := ping(ctx)
	responseTime := time.Since(start).Milliseconds()

	status := "healthy"
	if err != nil {
		status = "unhealthy"
	}
	return ComponentHealth{Status: status, ResponseTime: responseTime}
}
