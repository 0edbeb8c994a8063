package purchaseflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/auravox/core/pkg/types"
)

// RedisTracker is a cross-process Tracker backed by Redis, for multi-instance
// deployments. It implements the same (sessionID)-keyed contract as
// [Tracker]; the teacher-style in-memory map remains the default, this is an
// additional implementation for horizontal scaling, not a replacement.
type RedisTracker struct {
	rdb *redis.Client
	now func() time.Time
}

// Compile-time interface check.
var _ StateTracker = (*RedisTracker)(nil)

// NewRedisTracker wraps an existing Redis client.
func NewRedisTracker(rdb *redis.Client) *RedisTracker {
	return &RedisTracker{rdb: rdb, now: time.Now}
}

func redisKeyForSession(sessionID string) string {
	return fmt.Sprintf("purchaseflow:session:%s", sessionID)
}

// Set merges dataPartial into sessionID's data bag, updates its status and
// timestamp, and — if status is purchase-completed — sets a Redis TTL so
// the entry expires after completedClearDelay instead of being cleared by
// a local timer.
func (t *RedisTracker) Set(ctx context.Context, sessionID string, status types.PurchaseStatus, dataPartial map[string]string) error {
	key := redisKeyForSession(sessionID)

	state, err := t.get(ctx, key)
	if err != nil {
		return err
	}
	state.Status = status
	state.UpdatedAt = t.now()
	if len(dataPartial) > 0 {
		if state.Data == nil {
			state.Data = make(map[string]string, len(dataPartial))
		}
		for k, v := range dataPartial {
			state.Data[k] = v
		}
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("purchaseflow: marshal state: %w", err)
	}

	ttl := time.Duration(0)
	if status == types.PurchaseCompleted {
		ttl = completedClearDelay
	}
	if err := t.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("purchaseflow: set %q: %w", sessionID, err)
	}
	return nil
}

// Get returns sessionID's current state, defaulting to {Status: idle} when
// no entry exists (expired, cleared, or never set).
func (t *RedisTracker) Get(ctx context.Context, sessionID string) (types.PurchaseFlowState, error) {
	return t.get(ctx, redisKeyForSession(sessionID))
}

func (t *RedisTracker) get(ctx context.Context, key string) (types.PurchaseFlowState, error) {
	data, err := t.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.PurchaseFlowState{Status: types.PurchaseIdle}, nil
	}
	if err != nil {
		return types.PurchaseFlowState{}, fmt.Errorf("purchaseflow: get: %w", err)
	}
	var state types.PurchaseFlowState
	if err := json.Unmarshal(data, &state); err != nil {
		return types.PurchaseFlowState{}, fmt.Errorf("purchaseflow: unmarshal state: %w", err)
	}
	return state, nil
}

// Clear removes sessionID's entry.
func (t *RedisTracker) Clear(ctx context.Context, sessionID string) error {
	if err := t.rdb.Del(ctx, redisKeyForSession(sessionID)).Err(); err != nil {
		return fmt.Errorf("purchaseflow: clear %q: %w", sessionID, err)
	}
	return nil
}
