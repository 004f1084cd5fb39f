package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"omvstack.control/internal/core/domain"
	"omvstack.control/internal/core/logger"
)

const (
	EventChannel  = "omvstack:events"
	LockKeyPrefix = "omvstack:lock:"
)

// releaseScript deletes the lock only while it still holds the caller's
// owner token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript moves the expiry forward only while the caller still owns the
// lock.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type RedisAdapter struct {
	client  *redis.Client
	lockTTL time.Duration

	mu       sync.Mutex
	renewals map[string]context.CancelFunc
}

// NewRedisAdapter connects to url and returns the adapter, which serves as
// both the event bus and the action lock, plus the raw client for health
// checks.
func NewRedisAdapter(url string, lockTTL time.Duration) (*RedisAdapter, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	return NewFromClient(client, lockTTL), client, nil
}

func NewFromClient(client *redis.Client, lockTTL time.Duration) *RedisAdapter {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &RedisAdapter{
		client:   client,
		lockTTL:  lockTTL,
		renewals: make(map[string]context.CancelFunc),
	}
}

// EventBus implementation
func (r *RedisAdapter) Publish(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, EventChannel, data).Err()
}

func (r *RedisAdapter) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	pubsub := r.client.Subscribe(ctx, EventChannel)
	// Wait for the subscription so events published right after Subscribe
	// returns are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	ch := make(chan domain.Event)
	go func() {
		defer close(ch)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logger.Warn("Dropping malformed event", "error", err)
					continue
				}
				select {
				case ch <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// ActionLock implementation. A held lock is renewed every third of lockTTL
// until Release, so it only expires when its engine stops renewing it.
func (r *RedisAdapter) Acquire(ctx context.Context, key, owner string) (bool, error) {
	ok, err := r.client.SetNX(ctx, LockKeyPrefix+key, owner, r.lockTTL).Result()
	if err != nil || !ok {
		return ok, err
	}
	r.keepAlive(key, owner)
	return true, nil
}

func (r *RedisAdapter) Release(ctx context.Context, key, owner string) error {
	r.stopKeepAlive(key, owner)
	return releaseScript.Run(ctx, r.client, []string{LockKeyPrefix + key}, owner).Err()
}

func (r *RedisAdapter) keepAlive(key, owner string) {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.renewals[key+"\x00"+owner] = cancel
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(r.lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := extendScript.Run(ctx, r.client, []string{LockKeyPrefix + key}, owner, r.lockTTL.Milliseconds()).Int()
				if err != nil {
					if ctx.Err() == nil {
						logger.Warn("Failed to extend action lock", "key", key, "owner", owner, "error", err)
					}
					continue
				}
				if n == 0 {
					logger.Warn("Action lock lost before release", "key", key, "owner", owner)
					r.stopKeepAlive(key, owner)
					return
				}
			}
		}
	}()
}

func (r *RedisAdapter) stopKeepAlive(key, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.renewals[key+"\x00"+owner]; ok {
		cancel()
		delete(r.renewals, key+"\x00"+owner)
	}
}

func (r *RedisAdapter) Holder(ctx context.Context, key string) (string, error) {
	holder, err := r.client.Get(ctx, LockKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return holder, err
}
