package policy

import (
	"context"
	"sync"
	"testing"

	"github.com/scbe-labs/gate/pkg/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(primary, modifier string, harmonic int) contracts.IntentKey {
	return contracts.IntentKey{Primary: primary, Modifier: modifier, Harmonic: harmonic}
}

func TestUnseenRouteDefaultsToHalfTrust(t *testing.T) {
	r := NewInMemory()
	score, err := r.Trust(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, DefaultTrust, score)
}

func TestSetTrustClamps(t *testing.T) {
	r := NewInMemory()
	ctx := context.Background()

	require.NoError(t, r.SetTrust(ctx, "a", 1.7))
	score, err := r.Trust(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	require.NoError(t, r.SetTrust(ctx, "a", -0.4))
	score, err = r.Trust(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestRegisterIntentReplacesAllowList(t *testing.T) {
	r := NewInMemory()
	ctx := context.Background()
	k := key("fetch", "catalog", 2)

	require.NoError(t, r.RegisterIntent(ctx, k, []string{"github-api", "anthropic"}))
	ok, err := r.Allowed(ctx, k, "github-api")
	require.NoError(t, err)
	assert.True(t, ok)

	// Re-registering replaces, never merges.
	require.NoError(t, r.RegisterIntent(ctx, k, []string{"anthropic"}))
	ok, err = r.Allowed(ctx, k, "github-api")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnregisteredIntentPermitsNothing(t *testing.T) {
	r := NewInMemory()
	ok, err := r.Allowed(context.Background(), key("fetch", "catalog", 2), "github-api")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEMADrivesSustainedBadValidityBelowThreshold(t *testing.T) {
	r := NewInMemory()
	ctx := context.Background()
	require.NoError(t, r.SetTrust(ctx, "flaky", 0.85))

	var score float64
	var err error
	for i := 0; i < 20; i++ {
		score, err = r.UpdateTrust(ctx, "flaky", 0.0)
		require.NoError(t, err)
	}

	// 0.85 * 0.9^20 ≈ 0.103
	assert.Less(t, score, DefaultMinTrust)
}

func TestEMASingleBadOutcomeDoesNotCollapseTrust(t *testing.T) {
	r := NewInMemory()
	ctx := context.Background()
	require.NoError(t, r.SetTrust(ctx, "solid", 0.9))

	score, err := r.UpdateTrust(ctx, "solid", 0.0)
	require.NoError(t, err)
	assert.InDelta(t, 0.81, score, 1e-9)
	assert.Greater(t, score, DefaultMinTrust)
}

func TestEMAPerfectValidityIsMonotoneAndBounded(t *testing.T) {
	r := NewInMemory()
	ctx := context.Background()
	require.NoError(t, r.SetTrust(ctx, "good", 0.6))

	prev := 0.6
	for i := 0; i < 100; i++ {
		score, err := r.UpdateTrust(ctx, "good", 1.0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, score, prev)
		assert.LessOrEqual(t, score, 1.0)
		prev = score
	}
	assert.Greater(t, prev, 0.99)
}

func TestUpdateTrustClampsValidity(t *testing.T) {
	r := NewInMemory()
	ctx := context.Background()
	require.NoError(t, r.SetTrust(ctx, "r", 0.5))

	score, err := r.UpdateTrust(ctx, "r", 5.0)
	require.NoError(t, err)
	assert.InDelta(t, 0.55, score, 1e-9) // validity treated as 1.0
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	r := NewInMemory()
	ctx := context.Background()
	require.NoError(t, r.RegisterIntent(ctx, key("process", "analyze", 3), []string{"anthropic", "github-api"}))
	require.NoError(t, r.SetTrust(ctx, "anthropic", 0.9))
	require.NoError(t, r.SetTrust(ctx, "github-api", 0.4))

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Intents, 1)
	assert.Equal(t, []string{"anthropic", "github-api"}, snap.Intents[0].Routes)

	restored := NewInMemory()
	require.NoError(t, restored.Restore(ctx, snap))

	ok, err := restored.Allowed(ctx, key("process", "analyze", 3), "anthropic")
	require.NoError(t, err)
	assert.True(t, ok)
	score, err := restored.Trust(ctx, "github-api")
	require.NoError(t, err)
	assert.Equal(t, 0.4, score)
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	r := NewInMemory()
	ctx := context.Background()
	routes := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup
	for _, route := range routes {
		wg.Add(2)
		go func(route string) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_, _ = r.UpdateTrust(ctx, route, 1.0)
			}
		}(route)
		go func(route string) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_, _ = r.Trust(ctx, route)
			}
		}(route)
	}
	wg.Wait()

	for _, route := range routes {
		score, err := r.Trust(ctx, route)
		require.NoError(t, err)
		assert.Greater(t, score, DefaultTrust)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestParseIntentKey(t *testing.T) {
	k, err := parseIntentKey("fetch|catalog|2")
	require.NoError(t, err)
	assert.Equal(t, key("fetch", "catalog", 2), k)

	_, err = parseIntentKey("garbage")
	assert.Error(t, err)
}
