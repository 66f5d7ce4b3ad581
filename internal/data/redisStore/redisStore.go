package redisStore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/akolanti/BidExtract/internal/config"
	"github.com/akolanti/BidExtract/pkg/logger_i"
	"github.com/redis/go-redis/v9"
)

var (
	instances = make(map[string]*Store)
	mu        sync.RWMutex
	logger    = logger_i.NewLogger("redis_store")
)

type Store struct {
	client *redis.Client
	Type   int
}

// GetRedisStore returns the shared store for addr/db, connecting on first use.
// The client is closed when ctx is done.
func GetRedisStore(ctx context.Context, addr string, dbType int) (*Store, error) {
	key := addr + "/" + strconv.Itoa(dbType)

	mu.RLock()
	instance, exists := instances[key]
	mu.RUnlock()
	if exists {
		return instance, nil
	}

	mu.Lock()
	defer mu.Unlock()
	if instance, exists = instances[key]; exists {
		return instance, nil
	}

	s, err := createNewStore(ctx, addr, dbType)
	if err != nil {
		return nil, err
	}
	instances[key] = s
	go closeOnDone(ctx, key, s)
	return s, nil
}

func createNewStore(ctx context.Context, addr string, dbType int) (*Store, error) {
	newClient := redis.NewClient(&redis.Options{
		Addr:                  addr,
		DB:                    dbType,
		ContextTimeoutEnabled: true,
		DialTimeout:           config.RedisDialTimeout,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := newClient.Ping(pingCtx).Err(); err != nil {
		_ = newClient.Close()
		logger.Warn("Redis is offline", "addr", addr, "error", err)
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}

	logger.Info("Redis store initialised", "addr", addr, "db", dbType)
	return &Store{client: newClient, Type: dbType}, nil
}

func closeOnDone(ctx context.Context, key string, s *Store) {
	<-ctx.Done()
	mu.Lock()
	delete(instances, key)
	mu.Unlock()
	if err := s.client.Close(); err != nil {
		logger.Error("Error closing redis client", "error", err)
		return
	}
	logger.Info("Redis store closed", "key", key)
}

func NewTestStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}
