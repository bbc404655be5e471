package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"courier-dispatch/internal/dispatch/domain/models"
	"courier-dispatch/internal/xpkg/config"
)

// Store is the client-local key-value state: asserted identity, the last
// resync stamp and the cached unclaimed snapshot. Its contract is small:
// survive a client restart, be clearable on logout.
type Store struct {
	rdb    *redis.Client
	prefix string
}

func New(cfg config.RedisConfig, clientID string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{rdb: rdb, prefix: "dispatch:client:" + clientID + ":"}, nil
}

type Identity struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

func (s *Store) SaveIdentity(ctx context.Context, id Identity) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.prefix+"identity", raw, 0).Err()
}

func (s *Store) LoadIdentity(ctx context.Context) (Identity, bool, error) {
	raw, err := s.rdb.Get(ctx, s.prefix+"identity").Bytes()
	if errors.Is(err, redis.Nil) {
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, err
	}
	var id Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return Identity{}, false, err
	}
	return id, true, nil
}

func (s *Store) SetLastResync(ctx context.Context, at time.Time) error {
	return s.rdb.Set(ctx, s.prefix+"last_resync", at.UTC().Format(time.RFC3339), 0).Err()
}

func (s *Store) LastResync(ctx context.Context) (time.Time, bool, error) {
	raw, err := s.rdb.Get(ctx, s.prefix+"last_resync").Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

// CacheUnclaimed stores the latest authoritative unclaimed snapshot so a
// restarted client has something to render before its first resync.
func (s *Store) CacheUnclaimed(ctx context.Context, orders []models.Order) error {
	raw, err := json.Marshal(orders)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.prefix+"unclaimed", raw, 0).Err()
}

func (s *Store) CachedUnclaimed(ctx context.Context) ([]models.Order, error) {
	raw, err := s.rdb.Get(ctx, s.prefix+"unclaimed").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var orders []models.Order
	if err := json.Unmarshal(raw, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Clear wipes all client-local state on logout.
func (s *Store) Clear(ctx context.Context) error {
	keys := []string{
		s.prefix + "identity",
		s.prefix + "last_resync",
		s.prefix + "unclaimed",
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
