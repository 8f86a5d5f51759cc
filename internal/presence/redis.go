package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis key patterns:
// chat:presence:user:{user_id}   STRING<conn_id>  - user -> live connection
// chat:presence:online           SET<user_id>     - users currently online

const onlineSetKey = "chat:presence:online"

func userConnKey(userID int64) string {
	return fmt.Sprintf("chat:presence:user:%d", userID)
}

// unregisterScript removes the entry only when connID still owns it,
// atomically with the online-set cleanup.
var unregisterScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    redis.call("DEL", KEYS[1])
    redis.call("SREM", KEYS[2], ARGV[2])
    return 1
end
return 0`)

// RedisRegistry is a Registry shared across service instances. Entries are
// still ephemeral: they carry a TTL and are rewritten on every register, so
// a crashed instance's entries age out instead of pinning users online.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRegistry connects and verifies the Redis backend.
func NewRedisRegistry(client *redis.Client, ttl time.Duration) (*RedisRegistry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisRegistry{client: client, ttl: ttl}, nil
}

func (r *RedisRegistry) Register(userID int64, connID string) {
	ctx, cancel := r.opCtx()
	defer cancel()
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, userConnKey(userID), connID, r.ttl)
	pipe.SAdd(ctx, onlineSetKey, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("presence register failed")
	}
}

func (r *RedisRegistry) Unregister(userID int64, connID string) bool {
	ctx, cancel := r.opCtx()
	defer cancel()
	removed, err := unregisterScript.Run(ctx, r.client,
		[]string{userConnKey(userID), onlineSetKey},
		connID, userID).Int()
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("presence unregister failed")
		return false
	}
	return removed == 1
}

func (r *RedisRegistry) Lookup(userID int64) (string, bool) {
	ctx, cancel := r.opCtx()
	defer cancel()
	connID, err := r.client.Get(ctx, userConnKey(userID)).Result()
	if err != nil {
		return "", false
	}
	return connID, true
}

func (r *RedisRegistry) ListOnline() []int64 {
	ctx, cancel := r.opCtx()
	defer cancel()
	members, err := r.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		log.Error().Err(err).Msg("presence list failed")
		return nil
	}
	online := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		online = append(online, id)
	}
	return online
}

func (r *RedisRegistry) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 3*time.Second)
}
