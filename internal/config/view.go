package config

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Snapshot is a consistent, immutable view of the config tree as of one
// revision. Consumers MUST read a single Snapshot for the duration of a
// request (spec.md section 5), never re-querying View mid-request.
type Snapshot struct {
	Tree Tree
}

func (s *Snapshot) ETag() string { return s.Tree.Revision }

// View caches Source behind a soft TTL, mirroring the atomic config swap in
// dex's server.go (an atomic.Value holding the current connector set) but
// generalized to a full registry snapshot. A Redis client may be supplied
// to publish the latest known revision for other replicas: whenever a
// refresh stores a new snapshot, its revision is written to Redis. View
// never reads that key back; every replica still calls Source.Fetch
// itself once its soft TTL has passed.
type View struct {
	source Source
	ttl    time.Duration
	logger logrus.FieldLogger
	redis  *redis.Client

	current atomic.Pointer[Snapshot]

	mu        sync.Mutex
	lastFetch time.Time

	stop chan struct{}
}

// NewView constructs a View. redisClient may be nil to disable the shared
// cache.
func NewView(source Source, ttl time.Duration, logger logrus.FieldLogger, redisClient *redis.Client) *View {
	return &View{
		source: source,
		ttl:    ttl,
		logger: logger,
		redis:  redisClient,
		stop:   make(chan struct{}),
	}
}

const redisRevisionKey = "diracx:config:revision"

// Start performs an initial synchronous fetch (returning an error if the
// Source cannot produce a tree, per spec.md section 6's health-check
// contract) and then refreshes in the background every ttl.
func (v *View) Start(ctx context.Context) error {
	if err := v.refresh(ctx); err != nil {
		return err
	}
	go v.loop()
	return nil
}

func (v *View) loop() {
	ticker := time.NewTicker(v.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), v.ttl)
			if err := v.refresh(ctx); err != nil {
				v.logger.WithError(err).Warn("config: background refresh failed, keeping stale snapshot")
			}
			cancel()
		case <-v.stop:
			return
		}
	}
}

// Stop ends the background refresh loop.
func (v *View) Stop() { close(v.stop) }

func (v *View) refresh(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if cur := v.current.Load(); cur != nil && time.Since(v.lastFetch) < v.ttl {
		return nil
	}

	tree, err := v.source.Fetch(ctx)
	if err != nil {
		return err
	}
	v.lastFetch = time.Now()

	if cur := v.current.Load(); cur != nil && cur.Tree.Revision == tree.Revision {
		return nil
	}

	v.current.Store(&Snapshot{Tree: tree})
	if v.redis != nil {
		if err := v.redis.Set(ctx, redisRevisionKey, tree.Revision, 0).Err(); err != nil {
			v.logger.WithError(err).Warn("config: failed to publish revision to redis")
		}
	}
	return nil
}

// Current returns the latest known Snapshot, or nil if none has ever been
// fetched (callers must treat that as "config not yet loaded", spec.md
// section 7 Unavailable).
func (v *View) Current() *Snapshot {
	return v.current.Load()
}

// Refresh forces an immediate fetch, bypassing the soft TTL. Used by tests
// and by an explicit "reload config" admin action.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	v.lastFetch = time.Time{}
	v.mu.Unlock()
	return v.refresh(ctx)
}
