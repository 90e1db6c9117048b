// Package cache guarda orçamentos para leitura rápida na borda HTTP.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
)

// RedisCache implementa domain.BudgetCache sobre Redis, serializando os
// valores em JSON.
type RedisCache struct {
	client *redis.Client
}

var _ domain.BudgetCache = (*RedisCache)(nil)

// NewRedisCache conecta e valida com ping.
func NewRedisCache(ctx context.Context, addr string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("conectar no redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ler do redis: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("desserializar valor do cache: %w", err)
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, val interface{}, ttlSecs int) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("serializar valor para o cache: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, time.Duration(ttlSecs)*time.Second).Err(); err != nil {
		return fmt.Errorf("gravar no redis: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("remover do redis: %w", err)
	}
	return nil
}

// Close libera a conexão.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
