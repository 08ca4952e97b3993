package realtime

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	redisChannelsKey = "presence:channels"
	redisEventsTopic = "presence:events"
)

// RedisPresence shares presence between gateway instances. Each channel keeps
// a hash of connection id to record and a sorted set of last-seen times.
type RedisPresence struct {
	rdb *redis.Client
	// TTL expires a whole channel that nobody heartbeats anymore.
	TTL time.Duration
}

func NewRedisPresence(rdb *redis.Client, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisPresence{rdb: rdb, TTL: ttl}
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func recordsKey(channel string) string { return "presence:" + channel + ":records" }
func seenKey(channel string) string    { return "presence:" + channel + ":seen" }

func (p *RedisPresence) Track(ctx context.Context, channel string, rec PresenceRecord, now time.Time) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := p.rdb.TxPipeline()
	pipe.HSet(ctx, recordsKey(channel), rec.ConnID, payload)
	pipe.ZAdd(ctx, seenKey(channel), redis.Z{Score: score(now), Member: rec.ConnID})
	pipe.SAdd(ctx, redisChannelsKey, channel)
	pipe.Expire(ctx, recordsKey(channel), p.TTL)
	pipe.Expire(ctx, seenKey(channel), p.TTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (p *RedisPresence) Untrack(ctx context.Context, channel, connID string) error {
	pipe := p.rdb.TxPipeline()
	pipe.HDel(ctx, recordsKey(channel), connID)
	pipe.ZRem(ctx, seenKey(channel), connID)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *RedisPresence) Heartbeat(ctx context.Context, channel, connID string, now time.Time) error {
	// XX: only refresh connections that are still tracked.
	err := p.rdb.ZAddXX(ctx, seenKey(channel), redis.Z{Score: score(now), Member: connID}).Err()
	if err != nil {
		return err
	}
	pipe := p.rdb.Pipeline()
	pipe.Expire(ctx, recordsKey(channel), p.TTL)
	pipe.Expire(ctx, seenKey(channel), p.TTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (p *RedisPresence) List(ctx context.Context, channel string) ([]PresenceRecord, error) {
	raw, err := p.rdb.HGetAll(ctx, recordsKey(channel)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]PresenceRecord, 0, len(raw))
	for _, v := range raw {
		var rec PresenceRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (p *RedisPresence) Sweep(ctx context.Context, cutoff time.Time) ([]string, error) {
	channels, err := p.rdb.SMembers(ctx, redisChannelsKey).Result()
	if err != nil {
		return nil, err
	}
	var changed []string
	for _, channel := range channels {
		stale, err := p.rdb.ZRangeByScore(ctx, seenKey(channel), &redis.ZRangeBy{
			Min: "-inf",
			Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
		}).Result()
		if err != nil {
			return changed, err
		}
		if len(stale) > 0 {
			members := make([]any, len(stale))
			for i, id := range stale {
				members[i] = id
			}
			pipe := p.rdb.TxPipeline()
			pipe.HDel(ctx, recordsKey(channel), stale...)
			pipe.ZRem(ctx, seenKey(channel), members...)
			if _, err := pipe.Exec(ctx); err != nil {
				return changed, err
			}
			changed = append(changed, channel)
		}
		if err := p.forgetIfEmpty(ctx, channel); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// forgetEmptyChannel drops a channel from the sweep set only while it has no
// records, so a concurrent Track cannot be lost between the check and the removal.
var forgetEmptyChannel = redis.NewScript(`
if redis.call('HLEN', KEYS[1]) == 0 then
	return redis.call('SREM', KEYS[2], ARGV[1])
end
return 0
`)

func (p *RedisPresence) forgetIfEmpty(ctx context.Context, channel string) error {
	err := forgetEmptyChannel.Run(ctx, p.rdb, []string{recordsKey(channel), redisChannelsKey}, channel).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("presence forget %s: %w", channel, err)
	}
	return nil
}

func (p *RedisPresence) Announce(ctx context.Context, channel string) error {
	return p.rdb.Publish(ctx, redisEventsTopic, channel).Err()
}

func (p *RedisPresence) Listen(ctx context.Context, fn func(channel string)) error {
	pubsub := p.rdb.Subscribe(ctx, redisEventsTopic)
	defer func() {
		_ = pubsub.Close()
	}()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("presence subscribe: %w", err)
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("presence subscription closed")
			}
			fn(msg.Payload)
		}
	}
}

func score(t time.Time) float64 { return float64(t.UnixMilli()) }
