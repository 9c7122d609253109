package dedupe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"paperscout/internal/dedupe"
)

func TestCacheSeenDuplicate(t *testing.T) {
	cache := dedupe.NewCache(10, time.Minute)
	require.False(t, cache.Seen("chunk-a"))
	cache.Add("chunk-a")
	require.True(t, cache.Seen("chunk-a"))
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := dedupe.NewCache(10, 20*time.Millisecond)
	cache.Add("chunk-b")
	time.Sleep(25 * time.Millisecond)
	require.False(t, cache.Seen("chunk-b"))
}

func TestCacheCapacityEvictsOldest(t *testing.T) {
	cache := dedupe.NewCache(1, time.Minute)
	cache.Add("first")
	cache.Add("second")

	require.False(t, cache.Seen("first"))
	require.True(t, cache.Seen("second"))
}
