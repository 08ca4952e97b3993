package realtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisPresence(t *testing.T) *RedisPresence {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping: REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rdb, err := NewRedisClient(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		t.Skipf("Skipping: could not connect to redis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisPresence(rdb, time.Minute)
}

func TestRedisPresence_TrackListUntrack(t *testing.T) {
	p := newTestRedisPresence(t)
	ctx := context.Background()
	channel := PresenceTopic(uuid.NewString())
	now := time.Now()

	require.NoError(t, p.Track(ctx, channel, PresenceRecord{ConnID: "c1", UserID: "buyer", Typing: true, OnlineAt: now}, now))
	require.NoError(t, p.Track(ctx, channel, PresenceRecord{ConnID: "c2", UserID: "seller", OnlineAt: now}, now))

	recs, err := p.List(ctx, channel)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	require.NoError(t, p.Untrack(ctx, channel, "c1"))
	recs, err = p.List(ctx, channel)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "seller", recs[0].UserID)

	require.NoError(t, p.Untrack(ctx, channel, "c2"))
}

func TestRedisPresence_SweepDropsStaleConnections(t *testing.T) {
	p := newTestRedisPresence(t)
	ctx := context.Background()
	channel := PresenceTopic(uuid.NewString())
	now := time.Now()

	require.NoError(t, p.Track(ctx, channel, PresenceRecord{ConnID: "old", UserID: "buyer"}, now.Add(-time.Hour)))
	require.NoError(t, p.Track(ctx, channel, PresenceRecord{ConnID: "fresh", UserID: "seller"}, now))

	changed, err := p.Sweep(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Contains(t, changed, channel)

	recs, err := p.List(ctx, channel)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "fresh", recs[0].ConnID)

	require.NoError(t, p.Untrack(ctx, channel, "fresh"))
}

func TestRedisPresence_SweepForgetsOnlyEmptyChannels(t *testing.T) {
	p := newTestRedisPresence(t)
	ctx := context.Background()
	emptied := PresenceTopic(uuid.NewString())
	retracked := PresenceTopic(uuid.NewString())
	now := time.Now()

	require.NoError(t, p.Track(ctx, emptied, PresenceRecord{ConnID: "gone", UserID: "buyer"}, now.Add(-time.Hour)))
	require.NoError(t, p.Track(ctx, retracked, PresenceRecord{ConnID: "gone", UserID: "buyer"}, now.Add(-time.Hour)))
	require.NoError(t, p.Track(ctx, retracked, PresenceRecord{ConnID: "back", UserID: "buyer"}, now))

	changed, err := p.Sweep(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Contains(t, changed, emptied)
	assert.Contains(t, changed, retracked)

	member, err := p.rdb.SIsMember(ctx, redisChannelsKey, emptied).Result()
	require.NoError(t, err)
	assert.False(t, member)
	member, err = p.rdb.SIsMember(ctx, redisChannelsKey, retracked).Result()
	require.NoError(t, err)
	assert.True(t, member)

	// An emptied channel comes back into the sweep set as soon as it is tracked again.
	require.NoError(t, p.Track(ctx, emptied, PresenceRecord{ConnID: "new", UserID: "seller"}, now))
	member, err = p.rdb.SIsMember(ctx, redisChannelsKey, emptied).Result()
	require.NoError(t, err)
	assert.True(t, member)

	require.NoError(t, p.Untrack(ctx, emptied, "new"))
	require.NoError(t, p.Untrack(ctx, retracked, "back"))
}

func TestRedisPresence_AnnounceReachesListener(t *testing.T) {
	p := newTestRedisPresence(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	channel := PresenceTopic(uuid.NewString())

	got := make(chan string, 8)
	go func() {
		_ = p.Listen(ctx, func(ch string) {
			select {
			case got <- ch:
			default:
			}
		})
	}()

	// The subscription may not be live yet; keep announcing until it is.
	require.Eventually(t, func() bool {
		if err := p.Announce(ctx, channel); err != nil {
			return false
		}
		select {
		case ch := <-got:
			return ch == channel
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSweeper_Register(t *testing.T) {
	s := NewSweeper(NewGateway(GatewayConfig{}), time.Minute, nil)
	assert.Error(t, s.Register("not a schedule"))
	assert.NoError(t, s.Register("@every 30s"))
}
