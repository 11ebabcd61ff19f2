package policy

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/scbe-labs/gate/pkg/contracts"
)

// emaScript applies the trust EMA atomically in Redis so concurrent updaters
// on the same route serialize server-side.
// KEYS[1] = trust key
// ARGV[1] = alpha, ARGV[2] = validity, ARGV[3] = default trust
var emaScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if not cur then
    cur = ARGV[3]
end
local alpha = tonumber(ARGV[1])
local validity = tonumber(ARGV[2])
local next = alpha * tonumber(cur) + (1 - alpha) * validity
if next < 0 then next = 0 end
if next > 1 then next = 1 end
redis.call("SET", KEYS[1], tostring(next))
return tostring(next)
`)

// RedisRegistry implements Registry on top of Redis for deployments where
// several gate nodes must share one trust table. Keys are independent, so
// per-route atomicity through the Lua script is all the serialization needed.
type RedisRegistry struct {
	client *redis.Client
	alpha  float64
	prefix string
}

// NewRedisRegistry creates a registry backed by the given Redis instance.
func NewRedisRegistry(addr, password string, db int) *RedisRegistry {
	return &RedisRegistry{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		alpha:  DefaultAlpha,
		prefix: "gate",
	}
}

// WithAlpha overrides the EMA memory factor.
func (r *RedisRegistry) WithAlpha(alpha float64) *RedisRegistry {
	if alpha <= 0 || alpha >= 1 {
		panic(fmt.Sprintf("policy: alpha must be in (0,1), got %v", alpha))
	}
	r.alpha = alpha
	return r
}

func (r *RedisRegistry) intentKey(key contracts.IntentKey) string {
	return fmt.Sprintf("%s:intent:%s|%s|%d", r.prefix, key.Primary, key.Modifier, key.Harmonic)
}

func (r *RedisRegistry) trustKey(route string) string {
	return fmt.Sprintf("%s:trust:%s", r.prefix, route)
}

// RegisterIntent replaces the allow-list set for key.
func (r *RedisRegistry) RegisterIntent(ctx context.Context, key contracts.IntentKey, routes []string) error {
	k := r.intentKey(key)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		if len(routes) > 0 {
			members := make([]any, len(routes))
			for i, route := range routes {
				members[i] = route
			}
			pipe.SAdd(ctx, k, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("policy: register intent: %w", err)
	}
	return nil
}

// Allowed reports set membership for route under key.
func (r *RedisRegistry) Allowed(ctx context.Context, key contracts.IntentKey, route string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.intentKey(key), route).Result()
	if err != nil {
		return false, fmt.Errorf("policy: allowed lookup: %w", err)
	}
	return ok, nil
}

// Trust returns the stored score or DefaultTrust for unseen routes.
func (r *RedisRegistry) Trust(ctx context.Context, route string) (float64, error) {
	val, err := r.client.Get(ctx, r.trustKey(route)).Result()
	if err == redis.Nil {
		return DefaultTrust, nil
	}
	if err != nil {
		return 0, fmt.Errorf("policy: trust lookup: %w", err)
	}
	score, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("policy: corrupt trust value %q for %s: %w", val, route, err)
	}
	return score, nil
}

// SetTrust overrides the score, clamped to [0,1].
func (r *RedisRegistry) SetTrust(ctx context.Context, route string, score float64) error {
	err := r.client.Set(ctx, r.trustKey(route), strconv.FormatFloat(clamp01(score), 'f', -1, 64), 0).Err()
	if err != nil {
		return fmt.Errorf("policy: set trust: %w", err)
	}
	return nil
}

// UpdateTrust applies the EMA rule atomically and returns the new score.
func (r *RedisRegistry) UpdateTrust(ctx context.Context, route string, validity float64) (float64, error) {
	res, err := emaScript.Run(ctx, r.client,
		[]string{r.trustKey(route)},
		strconv.FormatFloat(r.alpha, 'f', -1, 64),
		strconv.FormatFloat(clamp01(validity), 'f', -1, 64),
		strconv.FormatFloat(DefaultTrust, 'f', -1, 64),
	).Text()
	if err != nil {
		return 0, fmt.Errorf("policy: update trust: %w", err)
	}
	score, err := strconv.ParseFloat(res, 64)
	if err != nil {
		return 0, fmt.Errorf("policy: corrupt ema result %q: %w", res, err)
	}
	return score, nil
}

// Snapshot scans the full keyspace. Intended for checkpoint tooling, not the
// request path.
func (r *RedisRegistry) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Trust: make(map[string]float64)}

	iter := r.client.Scan(ctx, 0, r.prefix+":trust:*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		route := key[len(r.prefix+":trust:"):]
		score, err := r.Trust(ctx, route)
		if err != nil {
			return nil, err
		}
		snap.Trust[route] = score
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("policy: snapshot scan: %w", err)
	}

	iter = r.client.Scan(ctx, 0, r.prefix+":intent:*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		suffix := key[len(r.prefix+":intent:"):]
		ik, err := parseIntentKey(suffix)
		if err != nil {
			return nil, err
		}
		routes, err := r.client.SMembers(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("policy: snapshot members: %w", err)
		}
		snap.Intents = append(snap.Intents, IntentPolicy{Key: ik, Routes: routes})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("policy: snapshot scan: %w", err)
	}

	return snap, nil
}

func parseIntentKey(s string) (contracts.IntentKey, error) {
	var key contracts.IntentKey
	first := -1
	last := -1
	for i, c := range s {
		if c == '|' {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 || first == last {
		return key, fmt.Errorf("policy: malformed intent key %q", s)
	}
	harmonic, err := strconv.Atoi(s[last+1:])
	if err != nil {
		return key, fmt.Errorf("policy: malformed intent key %q: %w", s, err)
	}
	key.Primary = s[:first]
	key.Modifier = s[first+1 : last]
	key.Harmonic = harmonic
	return key, nil
}
