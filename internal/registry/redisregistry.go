package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jark-labs/freezerd/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	appKeyPrefix = "freezerd:app:"
	appSetKey    = "freezerd:apps"
	homeKey      = "freezerd:home_package"
)

// client wraps *redis.Client with the dial/timeout tuning and connectivity
// logging the teacher applies to every Redis connection it opens.
type client struct {
	*redis.Client
	log *zap.Logger
}

func newClient(addr string, log *zap.Logger) *client {
	opts := &redis.Options{
		Addr:         addr,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	}

	c := &client{Client: redis.NewClient(opts), log: log.Named("redis")}
	c.log.Info("redis client initialized", zap.String("addr", addr))
	c.ping(context.Background())
	return c
}

func (c *client) ping(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.Client.Ping(ctx).Err()
	elapsed := time.Since(start)

	if err != nil {
		c.log.Warn("connection failed", zap.Error(err), zap.Duration("ping_rtt", elapsed))
		return
	}
	c.log.Info("connection established", zap.Duration("ping_rtt", elapsed))
}

// wireSnapshot is Snapshot's JSON wire form; FreezeMode is serialized as its
// numeric value, as policy authoring happens in an external tool that knows
// the enum, not through this struct.
type wireSnapshot struct {
	UID        int    `json:"uid"`
	Package    string `json:"package"`
	Label      string `json:"label"`
	FreezeMode int    `json:"freeze_mode"`
	IsTolerant bool   `json:"is_tolerant"`
}

func toWire(s Snapshot) wireSnapshot {
	return wireSnapshot{s.UID, s.Package, s.Label, int(s.FreezeMode), s.IsTolerant}
}

func fromWire(w wireSnapshot) Snapshot {
	return Snapshot{w.UID, w.Package, w.Label, model.FreezeMode(w.FreezeMode), w.IsTolerant}
}

// Redis is a Registry backed by Redis, for deployments that manage policy
// out-of-process. Reads hit a local cache refreshed by Refresh; the cache
// keeps Lookup/Whitelisted on the scheduler's hot path off the network.
type Redis struct {
	c     *client
	log   *zap.Logger
	cache *Memory
}

// NewRedis dials addr and returns a Redis registry with an empty cache;
// call Refresh before first use.
func NewRedis(addr string, log *zap.Logger) *Redis {
	log = log.Named("registry.redis")
	return &Redis{
		c:     newClient(addr, log),
		log:   log,
		cache: NewMemory(nil),
	}
}

func appKey(uid int) string {
	return appKeyPrefix + strconv.Itoa(uid)
}

// Upsert persists a single app and indexes its uid.
func (r *Redis) Upsert(ctx context.Context, s Snapshot) error {
	payload, err := json.Marshal(toWire(s))
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	pipe := r.c.TxPipeline()
	pipe.Set(ctx, appKey(s.UID), payload, 0)
	pipe.SAdd(ctx, appSetKey, s.UID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	r.cache.Upsert(s)
	return nil
}

// Refresh reloads every app from Redis into the local cache. Call this
// periodically (e.g. from the scheduler's 1s chores) to pick up policy
// changes made by an external tool.
func (r *Redis) Refresh(ctx context.Context) error {
	uids, err := r.c.SMembers(ctx, appSetKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("smembers: %w", err)
	}
	if len(uids) == 0 {
		return nil
	}

	keys := make([]string, len(uids))
	for i, u := range uids {
		keys[i] = appKeyPrefix + u
	}

	vals, err := r.c.MGet(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("mget: %w", err)
	}

	fresh := NewMemory(nil)
	for i, v := range vals {
		if v == nil {
			r.log.Warn("dangling app index entry", zap.String("key", keys[i]))
			continue
		}
		s, ok := v.(string)
		if !ok {
			r.log.Warn("unexpected value type", zap.String("key", keys[i]))
			continue
		}
		var w wireSnapshot
		if err := json.Unmarshal([]byte(s), &w); err != nil {
			r.log.Warn("decode app failed", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		fresh.Upsert(fromWire(w))
	}

	if home, err := r.c.Get(ctx, homeKey).Result(); err == nil {
		fresh.SetHomePackage(home)
	} else if !errors.Is(err, redis.Nil) {
		r.log.Warn("get home package failed", zap.Error(err))
	}

	r.cache = fresh
	return nil
}

func (r *Redis) Lookup(uid int) (Snapshot, bool) { return r.cache.Lookup(uid) }
func (r *Redis) All() []Snapshot                 { return r.cache.All() }
func (r *Redis) Whitelisted(uid int) bool        { return r.cache.Whitelisted(uid) }
func (r *Redis) HomePackage() (string, bool)     { return r.cache.HomePackage() }

// SetHomePackage updates both the local cache and Redis, best-effort: a
// failed write is logged, not returned, since callers treat the home
// package as advisory (spec.md §4.4).
func (r *Redis) SetHomePackage(pkg string) {
	r.cache.SetHomePackage(pkg)
	if err := r.c.Set(context.Background(), homeKey, pkg, 0).Err(); err != nil {
		r.log.Warn("persist home package failed", zap.Error(err))
	}
}
