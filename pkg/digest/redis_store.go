package digest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	windowKeyPrefix   = "courier:digest:window:"
	eventsKeyPrefix   = "courier:digest:events:"
	activityKeyPrefix = "courier:digest:activity:"
	dueSetKey         = "courier:digest:due"

	// Buffered state outlives the boundary by a grace period so a slow
	// flusher still finds its events; after that the keys self-expire.
	retentionGrace = 24 * time.Hour
)

// closeScript removes the window metadata, its events and its due-set entry
// in one step and returns them. A second close finds no metadata and returns
// nil, which is how exactly-once flushing is enforced.
var closeScript = redis.NewScript(`
local meta = redis.call("GET", KEYS[1])
if not meta then
  return nil
end
local events = redis.call("LRANGE", KEYS[2], 0, -1)
redis.call("DEL", KEYS[1], KEYS[2])
redis.call("ZREM", KEYS[3], ARGV[1])
local result = {meta}
for i = 1, #events do
  result[i + 1] = events[i]
end
return result
`)

// RedisStore coordinates digest windows across worker instances through a
// shared redis.
type RedisStore struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewRedisStore(ctx context.Context, url string, logger *slog.Logger) (*RedisStore, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to redis digest store", "addr", options.Addr, "db", options.DB)

	return &RedisStore{
		client: client,
		logger: logger.With("module", "digest_redis_store"),
	}, nil
}

func (s *RedisStore) Open(ctx context.Context, window *Window, event map[string]any) (bool, error) {
	meta, err := json.Marshal(window)
	if err != nil {
		return false, fmt.Errorf("failed to encode window: %w", err)
	}

	retention := time.Until(window.ClosesAt) + retentionGrace

	created, err := s.client.SetNX(ctx, windowKeyPrefix+window.ID, meta, retention).Result()
	if err != nil {
		return false, fmt.Errorf("failed to create window: %w", err)
	}

	if !created {
		return false, nil
	}

	if _, err := s.push(ctx, window.ID, event, retention); err != nil {
		return false, err
	}

	err = s.client.ZAdd(ctx, dueSetKey, redis.Z{
		Score:  float64(window.ClosesAt.UnixMilli()),
		Member: window.ID,
	}).Err()
	if err != nil {
		return false, fmt.Errorf("failed to schedule window boundary: %w", err)
	}

	return true, nil
}

func (s *RedisStore) Append(ctx context.Context, windowID string, event map[string]any) (int, error) {
	exists, err := s.client.Exists(ctx, windowKeyPrefix+windowID).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to check window: %w", err)
	}

	if exists == 0 {
		return 0, ErrWindowNotFound
	}

	return s.push(ctx, windowID, event, retentionGrace)
}

func (s *RedisStore) push(ctx context.Context, windowID string, event map[string]any, retention time.Duration) (int, error) {
	encoded, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to encode event: %w", err)
	}

	key := eventsKeyPrefix + windowID

	length, err := s.client.RPush(ctx, key, encoded).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to buffer event: %w", err)
	}

	if err := s.client.Expire(ctx, key, retention).Err(); err != nil {
		s.logger.WarnContext(ctx, "Failed to set event buffer expiry", "window_id", windowID, "error", err)
	}

	return int(length), nil
}

func (s *RedisStore) Close(ctx context.Context, windowID string) (*ClosedWindow, bool, error) {
	keys := []string{windowKeyPrefix + windowID, eventsKeyPrefix + windowID, dueSetKey}

	raw, err := closeScript.Run(ctx, s.client, keys, windowID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("failed to close window: %w", err)
	}

	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return nil, false, nil
	}

	closed := &ClosedWindow{}

	meta, ok := items[0].(string)
	if !ok {
		return nil, false, fmt.Errorf("unexpected window metadata type %T", items[0])
	}

	if err := json.Unmarshal([]byte(meta), &closed.Window); err != nil {
		return nil, false, fmt.Errorf("failed to decode window metadata: %w", err)
	}

	for _, item := range items[1:] {
		encoded, ok := item.(string)
		if !ok {
			continue
		}

		var event map[string]any
		if err := json.Unmarshal([]byte(encoded), &event); err != nil {
			s.logger.WarnContext(ctx, "Dropping undecodable buffered event", "window_id", windowID, "error", err)

			continue
		}

		closed.Events = append(closed.Events, event)
	}

	return closed, true, nil
}

func (s *RedisStore) Due(ctx context.Context, now time.Time) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, dueSetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list due windows: %w", err)
	}

	return ids, nil
}

func (s *RedisStore) LastEventAt(ctx context.Context, scope string) (time.Time, bool, error) {
	value, err := s.client.Get(ctx, activityKeyPrefix+scope).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}

		return time.Time{}, false, fmt.Errorf("failed to read activity marker: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt activity marker %q: %w", value, err)
	}

	return at, true, nil
}

func (s *RedisStore) Touch(ctx context.Context, scope string, at time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}

	err := s.client.Set(ctx, activityKeyPrefix+scope, at.Format(time.RFC3339Nano), ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to record activity marker: %w", err)
	}

	return nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Shutdown closes the underlying client.
func (s *RedisStore) Shutdown() error {
	return s.client.Close()
}
