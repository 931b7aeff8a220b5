package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/charging-platform/charge-station-simulator/internal/config"
)

// FleetRegistry 车队注册表：站点向共享存储上报自身存活与注册状态
type FleetRegistry interface {
	// SetStation 注册或刷新站点状态，TTL到期自动消失
	SetStation(ctx context.Context, stationID string, status string, ttl time.Duration) error
	// GetStation 读取站点状态
	GetStation(ctx context.Context, stationID string) (string, error)
	// DeleteStation 注销站点
	DeleteStation(ctx context.Context, stationID string) error
	// Close 关闭注册表连接
	Close() error
}

// RedisRegistry 使用Redis实现车队注册表
type RedisRegistry struct {
	Client *redis.Client
	Prefix string
}

// NewRedisRegistry 创建Redis注册表并验证连通性
func NewRedisRegistry(cfg config.RegistryConfig) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return &RedisRegistry{Client: client, Prefix: "station:"}, nil
}

// SetStation 实现FleetRegistry接口
func (r *RedisRegistry) SetStation(ctx context.Context, stationID string, status string, ttl time.Duration) error {
	key := fmt.Sprintf("%s%s", r.Prefix, stationID)
	return r.Client.Set(ctx, key, status, ttl).Err()
}

// GetStation 实现FleetRegistry接口
func (r *RedisRegistry) GetStation(ctx context.Context, stationID string) (string, error) {
	key := fmt.Sprintf("%s%s", r.Prefix, stationID)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", redis.Nil
	}
	return val, err
}

// DeleteStation 实现FleetRegistry接口
func (r *RedisRegistry) DeleteStation(ctx context.Context, stationID string) error {
	key := fmt.Sprintf("%s%s", r.Prefix, stationID)
	return r.Client.Del(ctx, key).Err()
}

// Close 实现FleetRegistry接口
func (r *RedisRegistry) Close() error {
	return r.Client.Close()
}
