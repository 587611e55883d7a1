package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jaennil/tileproxy/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// TieredStore puts a Redis hot tier in front of a primary store. Reads
// check Redis first, writes go through to both. The primary remains
// authoritative: stats come from it, and clears purge both tiers.
type TieredStore struct {
	primary TileStore
	client  *redis.Client
	ttl     time.Duration
	logger  logger.Logger
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

var _ TileStore = (*TieredStore)(nil)

func NewTieredStore(primary TileStore, cfg RedisConfig, l logger.Logger) (*TieredStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour // default TTL
	}

	l.Info("redis hot tier initialized", "addr", cfg.Addr, "ttl", ttl)

	return &TieredStore{
		primary: primary,
		client:  client,
		ttl:     ttl,
		logger:  l,
	}, nil
}

func (s *TieredStore) keyFor(k TileKey) string {
	return fmt.Sprintf("tile:%d:%d:%d", k.Z, k.X, k.Y)
}

func (s *TieredStore) Get(k TileKey) (TileData, bool, error) {
	ctx := context.Background()

	data, err := s.client.Get(ctx, s.keyFor(k)).Bytes()
	if err == nil {
		return data, true, nil
	}
	if err != redis.Nil {
		// Redis trouble must not take the cache down; fall back to the
		// primary store.
		s.logger.Warn("redis get failed, falling back to primary", "error", err)
	}

	data, exists, err := s.primary.Get(k)
	if err != nil || !exists {
		return nil, exists, err
	}

	if err := s.client.Set(ctx, s.keyFor(k), []byte(data), s.ttl).Err(); err != nil {
		s.logger.Warn("failed to populate redis tier", "error", err)
	}

	return data, true, nil
}

func (s *TieredStore) Put(k TileKey, v TileData) error {
	if err := s.primary.Put(k, v); err != nil {
		return err
	}

	if err := s.client.Set(context.Background(), s.keyFor(k), []byte(v), s.ttl).Err(); err != nil {
		s.logger.Warn("failed to write tile to redis tier", "error", err)
	}

	return nil
}

func (s *TieredStore) Stats() (Stats, error) {
	return s.primary.Stats()
}

func (s *TieredStore) Clear() error {
	if err := s.primary.Clear(); err != nil {
		return err
	}
	return s.purge("tile:*")
}

func (s *TieredStore) ClearZoom(zoom int) error {
	if err := s.primary.ClearZoom(zoom); err != nil {
		return err
	}
	return s.purge(fmt.Sprintf("tile:%d:*", zoom))
}

func (s *TieredStore) purge(pattern string) error {
	ctx := context.Background()

	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			s.logger.Warn("failed to delete redis key", "key", iter.Val(), "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan error: %w", err)
	}

	return nil
}

func (s *TieredStore) Close() error {
	return s.client.Close()
}
