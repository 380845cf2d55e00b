package counter

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// WebhookOutcomesKey holds one field per webhook outcome.
const WebhookOutcomesKey = "billing:counters:webhook_outcomes"

// Hash counts named events in a single Redis hash. Counters survive restarts
// and are shared by every instance using the same cache server.
type Hash struct {
	client *redis.Client
	key    string
}

func NewHash(client *redis.Client, key string) *Hash {
	return &Hash{client: client, key: key}
}

// Incr adds one to field.
func (h *Hash) Incr(ctx context.Context, field string) error {
	return h.client.HIncrBy(ctx, h.key, field, 1).Err()
}

// Snapshot returns all counters. Fields holding garbage are skipped.
func (h *Hash) Snapshot(ctx context.Context) (map[string]int64, error) {
	data, err := h.client.HGetAll(ctx, h.key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for k, v := range data {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

// Reset drops every counter in the hash.
func (h *Hash) Reset(ctx context.Context) error {
	return h.client.Del(ctx, h.key).Err()
}
