package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"slotcal/internal/config"
	"slotcal/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	eventKeyPrefix = "events/"
	eventIndexKey  = "events:index"
	eventChannel   = "events:changed"
)

// RedisStore keeps one JSON document per booking under events/{id}, an index
// ZSET ordered by start date, and publishes a change signal after every
// mutation so subscribers can refresh.
type RedisStore struct {
	client *redis.Client
}

// NewRedisClient creates a Redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) PutEvent(ctx context.Context, doc *models.Document) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("document id is required")
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	score := float64(0)
	if start, err := time.Parse(time.RFC3339, doc.Start); err == nil {
		score = float64(start.Unix())
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, eventKeyPrefix+doc.ID, data, 0)
	pipe.ZAdd(ctx, eventIndexKey, redis.Z{Score: score, Member: doc.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write document %s: %w", doc.ID, err)
	}

	s.notify(ctx)
	return nil
}

func (s *RedisStore) GetEvent(ctx context.Context, id string) (*models.Document, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := s.client.Get(ctx, eventKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", id, err)
	}

	var doc models.Document
	if err := json.Unmarshal([]byte(val), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document %s: %w", id, err)
	}
	return &doc, nil
}

func (s *RedisStore) DeleteEvent(ctx context.Context, id string) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, eventKeyPrefix+id)
	pipe.ZRem(ctx, eventIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}

	s.notify(ctx)
	return nil
}

func (s *RedisStore) ListEvents(ctx context.Context) ([]*models.Document, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	ids, err := s.client.ZRange(ctx, eventIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = eventKeyPrefix + id
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}

	docs := make([]*models.Document, 0, len(vals))
	for _, val := range vals {
		raw, ok := val.(string)
		if !ok {
			// Index entry without a document; skip, the next write heals it.
			continue
		}
		var doc models.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			continue
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

// Subscribe delivers a signal after every mutation. Signals are coalesced:
// a slow consumer sees at least one signal for any burst of writes.
func (s *RedisStore) Subscribe(ctx context.Context) (<-chan struct{}, func(), error) {
	if s.client == nil {
		return nil, nil, fmt.Errorf("redis client is nil")
	}

	pubsub := s.client.Subscribe(ctx, eventChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for range pubsub.Channel() {
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()

	stop := func() { _ = pubsub.Close() }
	return out, stop, nil
}

func (s *RedisStore) notify(ctx context.Context) {
	// Best effort; subscribers also re-read on their own schedule.
	_ = s.client.Publish(ctx, eventChannel, "changed").Err()
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}
