// Package service wires the gating engine, driver history and result
// publication into the operations the HTTP API depends on.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	eventqueue "github.com/okian/riskgate/internal/adapters/mq/queue"
	workerpool "github.com/okian/riskgate/internal/adapters/mq/worker"
	"github.com/okian/riskgate/internal/adapters/publish"
	"github.com/okian/riskgate/internal/adapters/repository"
	"github.com/okian/riskgate/internal/config"
	"github.com/okian/riskgate/internal/domain/advice"
	"github.com/okian/riskgate/internal/domain/dedupe"
	"github.com/okian/riskgate/internal/domain/ensemble"
	"github.com/okian/riskgate/internal/domain/experts"
	"github.com/okian/riskgate/internal/domain/model"
	"github.com/okian/riskgate/internal/domain/trend"
	"github.com/okian/riskgate/pkg/logger"
	"github.com/okian/riskgate/pkg/metrics"
)

// ErrNotStarted is returned by operations invoked before Start.
var ErrNotStarted = errors.New("service not started")

// BatchItem is the outcome of one input of a batch. Exactly one of Result
// and Err is set.
type BatchItem struct {
	Result *model.EnsembleResult
	Err    error
}

// Service implements the API dependencies for the gating system.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	engine    *ensemble.Engine
	tracker   *trend.Tracker
	history   *repository.HistoryStore
	deduper   dedupe.Deduper
	queue     *eventqueue.InMemoryQueue
	pool      *workerpool.Pool
	publisher workerpool.Publisher
	audit     *publish.AuditLog
	experts   []experts.Expert

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration the components are built from.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPublisher replaces the publishers built from configuration.
func WithPublisher(p workerpool.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithExperts sets the experts consulted by AssessTrip.
func WithExperts(es ...experts.Expert) Option {
	return func(s *Service) { s.experts = es }
}

// New constructs a Service. Components are built by Start.
func New(opts ...Option) *Service {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg == nil {
		s.cfg = config.New(context.Background())
	}
	return s
}

// Start validates the configuration and starts the service components. A
// configuration error leaves the service stopped.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	cfg := s.cfg

	s.logger.Info(ctx, "starting gating service...")

	advisor, err := advice.New(cfg.Rules())
	if err != nil {
		return fmt.Errorf("recommendations: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	history := repository.NewHistoryStore(runCtx, repository.WithShardCount(cfg.History.ShardCount))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))

	tracker, err := trend.New(history, cfg.TrendConfig(),
		trend.WithDeduper(countingDeduper{s.deduper}),
		trend.WithRetry(cfg.History.RetryAttempts, cfg.History.RetryBackoff(), cfg.History.LockTimeout()),
	)
	if err != nil {
		cancel()
		_ = history.Close()
		return fmt.Errorf("trend: %w", err)
	}

	engine, err := ensemble.NewEngine(cfg.Ensemble(),
		ensemble.WithTrendObserver(tracker),
		ensemble.WithAdvisor(advisor),
	)
	if err != nil {
		cancel()
		_ = history.Close()
		return err
	}

	if s.publisher == nil {
		if s.publisher, err = s.buildPublishers(ctx); err != nil {
			cancel()
			_ = history.Close()
			return err
		}
	}

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(cfg.Publish.QueueSize))
	s.pool = workerpool.NewPool(cfg.Publish.WorkerCount, s.queue, s.publisher)
	s.pool.Start(runCtx)

	s.history = history
	s.tracker = tracker
	s.engine = engine
	s.cancel = cancel
	s.started = true

	s.logger.Info(ctx, "gating service started",
		logger.Int("workers", cfg.Publish.WorkerCount),
		logger.Int("queueSize", cfg.Publish.QueueSize),
		logger.Int("dedupeSize", cfg.DedupeSize),
		logger.Int("shards", history.ShardCount()),
		logger.String("publisher", s.publisher.Name()),
	)
	return nil
}

func (s *Service) buildPublishers(ctx context.Context) (workerpool.Publisher, error) {
	p := s.cfg.Publish
	var pubs []workerpool.Publisher

	if p.AuditLog != "" {
		audit, err := publish.NewAuditLog(p.AuditLog, publish.WithRotation(p.AuditMaxSizeMB, p.AuditMaxBackups))
		if err != nil {
			return nil, fmt.Errorf("audit log: %w", err)
		}
		s.audit = audit
		pubs = append(pubs, audit)
	}
	if p.WebhookURL != "" {
		hook, err := publish.NewWebhook(p.WebhookURL, publish.WithTimeout(p.WebhookTimeout()))
		if err != nil {
			return nil, fmt.Errorf("webhook: %w", err)
		}
		pubs = append(pubs, hook)
	}
	if len(pubs) == 0 {
		s.logger.Info(ctx, "no publishers configured; results are not published")
	}
	return publish.NewMulti(pubs...), nil
}

// Stop drains pending publications and shuts down the service.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(ctx, "stopping gating service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "publication drain incomplete", logger.Error(err))
	}
	s.cancel()
	_ = s.history.Close()
	if s.audit != nil {
		if err := s.audit.Close(); err != nil {
			s.logger.Warn(ctx, "closing audit log", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "gating service stopped")
}

// countingDeduper counts duplicate trips seen by the tracker.
type countingDeduper struct {
	dedupe.Deduper
}

func (d countingDeduper) SeenAndRecord(ctx context.Context, key string) bool {
	seen := d.Deduper.SeenAndRecord(ctx, key)
	if seen {
		metrics.RecordDuplicateTrip()
	}
	return seen
}

// run holds the components of one Start cycle.
type run struct {
	engine  *ensemble.Engine
	tracker *trend.Tracker
	queue   *eventqueue.InMemoryQueue
}

// running returns the components of the current run together, so an
// assessment never mixes components from two Start cycles.
func (s *Service) running() (run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return run{}, ErrNotStarted
	}
	return run{engine: s.engine, tracker: s.tracker, queue: s.queue}, nil
}

// Assess gates one input, records it in the driver's history and queues it
// for publication.
func (s *Service) Assess(ctx context.Context, in model.EnsembleInput) (model.EnsembleResult, error) {
	r, err := s.running()
	if err != nil {
		return model.EnsembleResult{}, err
	}

	start := time.Now()
	res, err := r.engine.Assess(ctx, in)
	if err != nil {
		kind := failureKind(err)
		metrics.RecordAssessmentFailure(kind)
		if kind == "conflict" {
			metrics.RecordHistoryConflict()
		}
		return model.EnsembleResult{}, err
	}

	metrics.RecordAssessmentLatency(float64(time.Since(start).Microseconds()) / 1000)
	metrics.RecordAssessment(res.Tier)
	metrics.RecordFinalScore(res.FinalScore)
	metrics.RecordTrend(string(res.Trend.Direction))
	for _, d := range res.Diagnostics {
		if d.Kind == model.DiagnosticInvalidScore {
			metrics.RecordInvalidScore(string(d.Expert))
		}
		s.logger.Warn(ctx, "expert score adjusted",
			logger.String("driver_id", in.DriverID),
			logger.String("kind", d.Kind),
			logger.String("expert", string(d.Expert)),
			logger.String("detail", d.Message))
	}

	s.publish(ctx, r.queue, &res)
	return res, nil
}

func (s *Service) publish(ctx context.Context, q *eventqueue.InMemoryQueue, res *model.EnsembleResult) {
	pub := model.Publication{
		ID:          uuid.NewString(),
		PublishedAt: time.Now().UTC(),
		Result:      *res,
	}
	if err := q.Enqueue(context.WithoutCancel(ctx), pub); err != nil {
		s.logger.Warn(ctx, "publication dropped",
			logger.String("driver_id", res.DriverID),
			logger.String("trip_id", res.TripID),
			logger.Error(err))
	}
}

// AssessBatch gates inputs concurrently, at most batch_concurrency at a
// time. Items are returned in input order.
func (s *Service) AssessBatch(ctx context.Context, inputs []model.EnsembleInput) ([]BatchItem, error) {
	if _, err := s.running(); err != nil {
		return nil, err
	}

	out := make([]BatchItem, len(inputs))
	var g errgroup.Group
	g.SetLimit(s.cfg.BatchConcurrency)
	for i := range inputs {
		g.Go(func() error {
			res, err := s.Assess(ctx, inputs[i])
			if err != nil {
				out[i] = BatchItem{Err: err}
				return nil
			}
			out[i] = BatchItem{Result: &res}
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// AssessTrip asks the configured experts for their scores and gates the
// answers. Experts that fail or time out are treated as missing.
func (s *Service) AssessTrip(ctx context.Context, trip experts.Trip, basePremium float64) (model.EnsembleResult, error) {
	if _, err := s.running(); err != nil {
		return model.EnsembleResult{}, err
	}

	g := experts.Gather(ctx, s.cfg.GatherTimeout(), trip, s.experts...)
	for id, err := range g.Failures {
		metrics.RecordErrorByComponent("expert", string(id))
		s.logger.Warn(ctx, "expert unavailable",
			logger.String("driver_id", trip.DriverID),
			logger.String("trip_id", trip.TripID),
			logger.String("expert", string(id)),
			logger.Error(err))
	}

	return s.Assess(ctx, model.EnsembleInput{
		DriverID:    trip.DriverID,
		TripID:      trip.TripID,
		Scores:      g.Scores,
		BasePremium: basePremium,
	})
}

// Trend returns the current trend of a driver.
func (s *Service) Trend(ctx context.Context, driverID string) (model.TrendSnapshot, error) {
	r, err := s.running()
	if err != nil {
		return model.TrendSnapshot{}, err
	}
	return r.tracker.Classify(ctx, driverID)
}

// Tiers returns the active tier table.
func (s *Service) Tiers() []ensemble.Tier {
	r, err := s.running()
	if err != nil {
		return ensemble.DefaultTiers()
	}
	return r.engine.Tiers().Tiers()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.cfg.Publish.WorkerCount,
		"queueSize":   s.cfg.Publish.QueueSize,
		"dedupeSize":  s.cfg.DedupeSize,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		drivers := s.history.Count(ctx)

		stats["queueLength"] = queueLen
		stats["trackedDrivers"] = drivers
		stats["recordedTrips"] = s.deduper.Size()
		stats["activeWorkers"] = s.pool.Active()
		stats["publisher"] = s.publisher.Name()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateTrackedDrivers(drivers)
	}

	return stats
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, model.ErrDataInsufficient):
		return "data_insufficient"
	case errors.Is(err, model.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, model.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}
