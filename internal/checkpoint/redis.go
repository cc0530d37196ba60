package checkpoint

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLockTTL bounds how long a crashed run can hold the Redis lock.
const DefaultLockTTL = 2 * time.Minute

// releaseScript deletes the lock only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisStore keeps the checkpoint in Redis so backfills on several hosts
// share progress. Completed windows live in a hash; the run lock is a key
// with a TTL that a live run keeps extending.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedis returns a RedisStore under the key prefix, e.g. "vra:backfill".
func NewRedis(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: DefaultLockTTL, now: time.Now}
}

// OpenRedis connects to a redis:// URL.
func OpenRedis(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing checkpoint redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to checkpoint redis: %w", err)
	}
	return NewRedis(client, prefix), nil
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) lockKey() string    { return r.prefix + ":lock" }
func (r *RedisStore) windowsKey() string { return r.prefix + ":windows" }

// Location returns the redis address and key prefix.
func (r *RedisStore) Location() string {
	return fmt.Sprintf("redis://%s/%s", r.client.Options().Addr, r.prefix)
}

// Lock sets the lock key if absent and refreshes its TTL until released.
func (r *RedisStore) Lock(ctx context.Context) (func() error, error) {
	token, err := lockToken()
	if err != nil {
		return nil, err
	}
	ok, err := r.client.SetNX(ctx, r.lockKey(), token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("taking checkpoint lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, r.Location())
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				r.client.Expire(context.Background(), r.lockKey(), r.ttl)
			}
		}
	}()

	return func() error {
		close(done)
		if err := releaseScript.Run(context.Background(), r.client, []string{r.lockKey()}, token).Err(); err != nil {
			return fmt.Errorf("releasing checkpoint lock: %w", err)
		}
		return nil
	}, nil
}

// Load reads every completed window.
func (r *RedisStore) Load(ctx context.Context) (*State, error) {
	fields, err := r.client.HGetAll(ctx, r.windowsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	st := &State{Version: stateVersion}
	for field, raw := range fields {
		var w Window
		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			return nil, fmt.Errorf("parsing checkpoint window %s: %w", field, err)
		}
		st.Windows = append(st.Windows, w)
	}
	st.sort()
	return st, nil
}

// MarkDone records [from, to). The first completion of a window wins.
func (r *RedisStore) MarkDone(ctx context.Context, from, to time.Time, runID string) error {
	w := completed(from, to, r.now(), runID)
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshaling checkpoint window: %w", err)
	}
	field := w.From.Format(time.RFC3339) + "/" + w.To.Format(time.RFC3339)
	if err := r.client.HSetNX(ctx, r.windowsKey(), field, data).Err(); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	return nil
}

func lockToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
