// Package policy holds the gate's allow-list of (intent → route) mappings and
// the live trust-score table.
//
// The trust table is the one piece of shared mutable state in the system. It
// is owned exclusively by this package and mutated only through SetTrust and
// the exponential-moving-average UpdateTrust rule; verification reads it
// through the narrow Registry interface and never writes.
package policy

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/scbe-labs/gate/pkg/contracts"
)

const (
	// DefaultTrust is the score assumed for routes never seen before.
	DefaultTrust = 0.5

	// DefaultAlpha is the EMA memory factor. It is intentionally slow: one
	// bad outcome cannot collapse trust, but sustained bad validity drives a
	// route below the exclusion threshold over repeated updates.
	DefaultAlpha = 0.9

	// DefaultMinTrust is the auto-exclusion threshold used by the swarm gate.
	DefaultMinTrust = 0.3
)

// Snapshot is a point-in-time copy of registry state, used for checkpointing
// and bootstrap. Route lists are sorted for deterministic serialization.
type Snapshot struct {
	Intents []IntentPolicy     `json:"intents"`
	Trust   map[string]float64 `json:"trust"`
}

// IntentPolicy is one allow-list entry in a snapshot.
type IntentPolicy struct {
	Key    contracts.IntentKey `json:"key"`
	Routes []string            `json:"routes"`
}

// Registry is the narrow interface the verification pipeline consumes. All
// implementations must allow concurrent readers; writers are serialized per
// key, not globally.
type Registry interface {
	// RegisterIntent replaces the allow-list for the given key.
	RegisterIntent(ctx context.Context, key contracts.IntentKey, routes []string) error

	// Allowed reports whether route is in the permitted set for key.
	// An unregistered key permits nothing.
	Allowed(ctx context.Context, key contracts.IntentKey, route string) (bool, error)

	// Trust returns the route's trust score, or DefaultTrust if unseen.
	Trust(ctx context.Context, route string) (float64, error)

	// SetTrust overrides a route's score directly (bootstrap/admin use).
	SetTrust(ctx context.Context, route string, score float64) error

	// UpdateTrust applies trust' = alpha*trust + (1-alpha)*validity and
	// returns the new score. This is the sole mutation path during normal
	// operation; validity is the caller-observed outcome in [0,1].
	UpdateTrust(ctx context.Context, route string, validity float64) (float64, error)

	// Snapshot copies the full registry state.
	Snapshot(ctx context.Context) (*Snapshot, error)
}

const trustShards = 16

type trustShard struct {
	mu     sync.RWMutex
	scores map[string]float64
}

// InMemory is the default Registry: pure in-memory state, rebuildable from
// the bootstrap interface. The trust table is striped across shards so
// writers on independent routes do not contend.
type InMemory struct {
	alpha float64

	intentMu sync.RWMutex
	intents  map[contracts.IntentKey]map[string]struct{}

	trust [trustShards]trustShard
}

// NewInMemory creates an empty registry with the default EMA factor.
func NewInMemory() *InMemory {
	r := &InMemory{
		alpha:   DefaultAlpha,
		intents: make(map[contracts.IntentKey]map[string]struct{}),
	}
	for i := range r.trust {
		r.trust[i].scores = make(map[string]float64)
	}
	return r
}

// WithAlpha overrides the EMA memory factor. Values outside (0,1) panic:
// that is a programming error, not a runtime condition.
func (r *InMemory) WithAlpha(alpha float64) *InMemory {
	if alpha <= 0 || alpha >= 1 {
		panic(fmt.Sprintf("policy: alpha must be in (0,1), got %v", alpha))
	}
	r.alpha = alpha
	return r
}

func (r *InMemory) shard(route string) *trustShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(route))
	return &r.trust[h.Sum32()%trustShards]
}

// RegisterIntent replaces the allow-list for key.
func (r *InMemory) RegisterIntent(_ context.Context, key contracts.IntentKey, routes []string) error {
	set := make(map[string]struct{}, len(routes))
	for _, route := range routes {
		set[route] = struct{}{}
	}

	r.intentMu.Lock()
	r.intents[key] = set
	r.intentMu.Unlock()
	return nil
}

// Allowed reports whether route is permitted for key.
func (r *InMemory) Allowed(_ context.Context, key contracts.IntentKey, route string) (bool, error) {
	r.intentMu.RLock()
	defer r.intentMu.RUnlock()

	set, ok := r.intents[key]
	if !ok {
		return false, nil
	}
	_, ok = set[route]
	return ok, nil
}

// Trust returns the current score for route, defaulting unseen routes.
func (r *InMemory) Trust(_ context.Context, route string) (float64, error) {
	s := r.shard(route)
	s.mu.RLock()
	defer s.mu.RUnlock()

	score, ok := s.scores[route]
	if !ok {
		return DefaultTrust, nil
	}
	return score, nil
}

// SetTrust overrides the score for route, clamped to [0,1].
func (r *InMemory) SetTrust(_ context.Context, route string, score float64) error {
	s := r.shard(route)
	s.mu.Lock()
	s.scores[route] = clamp01(score)
	s.mu.Unlock()
	return nil
}

// UpdateTrust applies the EMA rule and returns the new score.
func (r *InMemory) UpdateTrust(_ context.Context, route string, validity float64) (float64, error) {
	validity = clamp01(validity)

	s := r.shard(route)
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.scores[route]
	if !ok {
		old = DefaultTrust
	}
	next := clamp01(r.alpha*old + (1-r.alpha)*validity)
	s.scores[route] = next
	return next, nil
}

// Snapshot copies the registry state for checkpointing.
func (r *InMemory) Snapshot(_ context.Context) (*Snapshot, error) {
	snap := &Snapshot{Trust: make(map[string]float64)}

	r.intentMu.RLock()
	for key, set := range r.intents {
		routes := make([]string, 0, len(set))
		for route := range set {
			routes = append(routes, route)
		}
		sort.Strings(routes)
		snap.Intents = append(snap.Intents, IntentPolicy{Key: key, Routes: routes})
	}
	r.intentMu.RUnlock()

	sort.Slice(snap.Intents, func(i, j int) bool {
		a, b := snap.Intents[i].Key, snap.Intents[j].Key
		if a.Primary != b.Primary {
			return a.Primary < b.Primary
		}
		if a.Modifier != b.Modifier {
			return a.Modifier < b.Modifier
		}
		return a.Harmonic < b.Harmonic
	})

	for i := range r.trust {
		s := &r.trust[i]
		s.mu.RLock()
		for route, score := range s.scores {
			snap.Trust[route] = score
		}
		s.mu.RUnlock()
	}

	return snap, nil
}

// Restore replaces registry state from a snapshot.
func (r *InMemory) Restore(ctx context.Context, snap *Snapshot) error {
	for _, p := range snap.Intents {
		if err := r.RegisterIntent(ctx, p.Key, p.Routes); err != nil {
			return err
		}
	}
	for route, score := range snap.Trust {
		if err := r.SetTrust(ctx, route, score); err != nil {
			return err
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
