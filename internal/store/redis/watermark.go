package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
)

// DefaultKey is the hash holding one field per subscription name.
const DefaultKey = "monitor:watermarks"

// setMax writes ARGV[2] into field ARGV[1] unless the stored value is larger.
var setMax = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if cur and tonumber(cur) and tonumber(cur) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// Store keeps watermarks as fields of a Redis hash. Durability follows the
// server's persistence settings; run Redis with appendfsync always for the
// at-least-once guarantee to survive a server crash.
type Store struct {
	client *redis.Client
	key    string
}

func New(ctx context.Context, url, key string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(client, key), nil
}

func NewWithClient(client *redis.Client, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{client: client, key: key}
}

func (s *Store) Get(ctx context.Context, name string) (model.Round, error) {
	v, err := s.client.HGet(ctx, s.key, name).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get watermark %s: %w", name, err)
	}
	return parseRound(name, v)
}

func (s *Store) Set(ctx context.Context, name string, round model.Round) error {
	if err := setMax.Run(ctx, s.client, []string{s.key}, name, strconv.FormatUint(uint64(round), 10)).Err(); err != nil {
		return fmt.Errorf("set watermark %s: %w", name, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func parseRound(name, v string) (model.Round, error) {
	r, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("watermark %s holds %q: %w", name, v, model.ErrCorruptWatermark)
	}
	return model.Round(r), nil
}
