// Package repository holds per-driver assessment history in memory.
package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/riskgate/internal/domain/model"
	"github.com/okian/riskgate/internal/domain/trend"
	"github.com/okian/riskgate/pkg/metrics"
)

// Defaults for the history store.
const (
	defaultShardCount            = 64
	defaultMetricsUpdateInterval = 5 * time.Second
)

var _ trend.Store = (*HistoryStore)(nil)

// entry is one driver's series guarded by a one-slot channel lock, so
// acquisition can time out.
type entry struct {
	lock   chan struct{}
	series *model.HistorySeries
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// HistoryStore is a sharded map of driver series. Shard mutexes guard only
// the driver index; each driver has its own lock, so updates for different
// drivers never wait on each other beyond a map lookup.
type HistoryStore struct {
	shards     []*shard
	shardCount int
	drivers    atomic.Int64

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	stopOnce              sync.Once
}

// NewHistoryStore constructs a history store and starts its metrics updater,
// which runs until ctx is done or Close is called.
func NewHistoryStore(ctx context.Context, opts ...Option) *HistoryStore {
	s := &HistoryStore{
		shardCount:            defaultShardCount,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*entry)}
	}

	metrics.UpdateHistoryShardCount(s.shardCount)
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the metrics updater.
func (s *HistoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *HistoryStore) shardFor(driverID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(driverID))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// lookup returns the driver's entry, creating it when create is set.
func (s *HistoryStore) lookup(driverID string, create bool) *entry {
	sh := s.shardFor(driverID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[driverID]
	if !ok && create {
		e = &entry{lock: make(chan struct{}, 1)}
		sh.entries[driverID] = e
	}
	return e
}

func acquire(ctx context.Context, e *entry, driverID string, wait time.Duration) error {
	select {
	case e.lock <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case e.lock <- struct{}{}:
		return nil
	case <-timer.C:
		metrics.RecordHistoryLockTimeout()
		return fmt.Errorf("%w: driver %q after %s", ErrLockTimeout, driverID, wait)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func release(e *entry) { <-e.lock }

// Update implements trend.Store.
func (s *HistoryStore) Update(ctx context.Context, driverID string, capacity int, wait time.Duration, fn func(*model.HistorySeries)) error {
	if driverID == "" {
		return ErrEmptyDriverID
	}
	start := time.Now()
	e := s.lookup(driverID, true)
	if err := acquire(ctx, e, driverID, wait); err != nil {
		return err
	}
	defer release(e)

	if e.series == nil {
		e.series = model.NewHistorySeries(capacity)
		metrics.UpdateTrackedDrivers(int(s.drivers.Add(1)))
	}
	fn(e.series)
	metrics.RecordHistoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
	return nil
}

// View implements trend.Store. Unknown drivers are not created.
func (s *HistoryStore) View(ctx context.Context, driverID string, wait time.Duration, fn func(*model.HistorySeries)) error {
	if driverID == "" {
		return ErrEmptyDriverID
	}
	e := s.lookup(driverID, false)
	if e == nil {
		fn(nil)
		return nil
	}
	if err := acquire(ctx, e, driverID, wait); err != nil {
		return err
	}
	defer release(e)
	fn(e.series)
	return nil
}

// Count returns the number of drivers with recorded history.
func (s *HistoryStore) Count(_ context.Context) int {
	return int(s.drivers.Load())
}

// ShardCount returns the number of shards.
func (s *HistoryStore) ShardCount() int { return len(s.shards) }

func (s *HistoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *HistoryStore) updateMetrics() {
	for i, sh := range s.shards {
		sh.mu.Lock()
		n := len(sh.entries)
		sh.mu.Unlock()
		metrics.UpdateHistoryDriversPerShard("shard_"+strconv.Itoa(i), n)
	}
	metrics.UpdateTrackedDrivers(s.Count(context.Background()))
}
