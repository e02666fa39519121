package database

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix  = "session:"
	recoveryKeyPrefix = "recovery:"
)

type RedisClient struct {
	client *redis.Client
}

func GetRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisClient{client: client}, nil
}

// Raw exposes the underlying client for pub/sub consumers.
func (r *RedisClient) Raw() *redis.Client {
	return r.client
}

func (r *RedisClient) SetSession(ctx context.Context, token string, userID uint, ttl time.Duration) error {
	return r.client.Set(ctx, sessionKeyPrefix+token, strconv.FormatUint(uint64(userID), 10), ttl).Err()
}

func (r *RedisClient) GetSession(ctx context.Context, token string) (uint, error) {
	v, err := r.client.Get(ctx, sessionKeyPrefix+token).Result()
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func (r *RedisClient) DeleteSession(ctx context.Context, token string) error {
	return r.client.Del(ctx, sessionKeyPrefix+token).Err()
}

func (r *RedisClient) SetRecoveryCode(ctx context.Context, code string, userID uint, ttl time.Duration) error {
	return r.client.Set(ctx, recoveryKeyPrefix+code, strconv.FormatUint(uint64(userID), 10), ttl).Err()
}

func (r *RedisClient) GetRecoveryCode(ctx context.Context, code string) (uint, error) {
	v, err := r.client.Get(ctx, recoveryKeyPrefix+code).Result()
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func (r *RedisClient) DeleteRecoveryCode(ctx context.Context, code string) error {
	return r.client.Del(ctx, recoveryKeyPrefix+code).Err()
}
