package cache

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// Init initializes the Redis connection. Redis is optional: on failure the
// client stays nil and callers degrade to uncached behavior.
func Init() error {
	// K8s sets REDIS_SERVICE_HOST and REDIS_SERVICE_PORT for services
	host := os.Getenv("REDIS_SERVICE_HOST")
	if host == "" {
		host = "redis" // fallback to service name
	}
	port := os.Getenv("REDIS_SERVICE_PORT")
	if port == "" {
		port = "6379"
	}

	client = redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		client = nil
		return err
	}
	return nil
}

// GetClient returns the Redis client, nil when redis is unavailable.
func GetClient() *redis.Client {
	return client
}

// IsHealthy returns true if the Redis connection is working.
func IsHealthy() bool {
	if client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err() == nil
}

// KeyCache adapts the shared client to the gateway's key cache: the
// provider's RSA public key is identical across instances, so one fetch
// serves the whole fleet until the TTL lapses.
type KeyCache struct{}

func (KeyCache) Get(ctx context.Context, key string) (string, bool) {
	if client == nil {
		return "", false
	}
	val, err := client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (KeyCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if client == nil {
		return
	}
	client.Set(ctx, key, value, ttl)
}
