package telemetry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mailwave/platform/telemetry-core-go/pkg/interfaces"
	"github.com/mailwave/platform/telemetry-core-go/pkg/models"
)

// StoreConfig controls metric store buffering, retention and the
// record-path side effects.
type StoreConfig struct {
	FlushInterval        time.Duration
	FlushHighWater       int
	Retention            time.Duration
	SweepInterval        time.Duration
	SlowRequestThreshold time.Duration
}

// DefaultStoreConfig matches the production deployment: 10s flush ticks,
// a 100-item high-water mark, 30-day retention swept daily, and a 2s
// slow-request threshold.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		FlushInterval:        10 * time.Second,
		FlushHighWater:       100,
		Retention:            30 * 24 * time.Hour,
		SweepInterval:        24 * time.Hour,
		SlowRequestThreshold: 2 * time.Second,
	}
}

// MetricStore buffers telemetry events in memory and periodically flushes
// them to the durable store. Record calls never block on the datastore
// and never fail the request they instrument.
type MetricStore struct {
	repo     interfaces.MetricRepository
	counters *Counters
	logger   *logrus.Logger
	config   StoreConfig

	mu     sync.Mutex
	buffer []interface{}

	flushCh chan struct{}
	stopFn  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMetricStore creates a metric store over the given repository and
// counter view. Background loops start only when Start is called.
func NewMetricStore(repo interfaces.MetricRepository, counters *Counters, cfg StoreConfig, logger *logrus.Logger) *MetricStore {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultStoreConfig().FlushInterval
	}
	if cfg.FlushHighWater <= 0 {
		cfg.FlushHighWater = DefaultStoreConfig().FlushHighWater
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultStoreConfig().Retention
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultStoreConfig().SweepInterval
	}
	if cfg.SlowRequestThreshold <= 0 {
		cfg.SlowRequestThreshold = DefaultStoreConfig().SlowRequestThreshold
	}

	return &MetricStore{
		repo:     repo,
		counters: counters,
		logger:   logger,
		config:   cfg,
		flushCh:  make(chan struct{}, 1),
	}
}

// RecordPerformance buffers one completed-request event. Latency above
// the slow-request threshold is flagged with a structured warning without
// blocking the record path.
func (s *MetricStore) RecordPerformance(ctx context.Context, event *models.PerformanceEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if event.LatencyMs > float64(s.config.SlowRequestThreshold.Milliseconds()) {
		s.logger.WithFields(logrus.Fields{
			"endpoint":   event.Endpoint,
			"method":     event.HTTPMethod,
			"latency_ms": event.LatencyMs,
			"tenant_id":  event.TenantID,
		}).Warn("Slow request detected")
	}

	s.counters.IncrementDaily(ctx, counterNamespaceMetric, "requests", event.Timestamp)
	s.append(event)
}

// RecordBusiness buffers one domain counter event.
func (s *MetricStore) RecordBusiness(ctx context.Context, event *models.BusinessEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	s.counters.IncrementDaily(ctx, counterNamespaceBusiness, event.Name, event.Timestamp)
	s.append(event)
}

// RecordError buffers one error event.
func (s *MetricStore) RecordError(ctx context.Context, event *models.ErrorEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if !event.Severity.IsValid() {
		event.Severity = models.ErrorSeverityError
	}

	s.counters.IncrementErrors(ctx, event.Timestamp)
	s.append(event)
}

// RecordPoint buffers one generic metric point.
func (s *MetricStore) RecordPoint(ctx context.Context, point *models.MetricPoint) {
	if point.Timestamp.IsZero() {
		point.Timestamp = time.Now()
	}
	if !point.Kind.IsValid() {
		point.Kind = models.MetricKindGauge
	}

	s.counters.IncrementDaily(ctx, counterNamespaceMetric, point.Name, point.Timestamp)
	s.append(point)
}

func (s *MetricStore) append(event interface{}) {
	s.mu.Lock()
	s.buffer = append(s.buffer, event)
	over := len(s.buffer) >= s.config.FlushHighWater
	s.mu.Unlock()

	if over {
		// Nudge the background flusher; drop the signal if one is
		// already pending.
		select {
		case s.flushCh <- struct{}{}:
		default:
		}
	}
}

// BufferLen reports how many events are waiting to be flushed. Sustained
// growth is the back-pressure signal for a datastore outage.
func (s *MetricStore) BufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.buffer)
}

// Flush drains the buffer and writes it to the durable store. On failure
// the unwritten events are requeued at the front of the buffer for retry
// on the next tick; nothing is dropped.
func (s *MetricStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	var (
		perf     []*models.PerformanceEvent
		business []*models.BusinessEvent
		errs     []*models.ErrorEvent
		points   []*models.MetricPoint
	)

	for _, item := range batch {
		switch event := item.(type) {
		case *models.PerformanceEvent:
			perf = append(perf, event)
		case *models.BusinessEvent:
			business = append(business, event)
		case *models.ErrorEvent:
			errs = append(errs, event)
		case *models.MetricPoint:
			points = append(points, event)
		}
	}

	failed := make(map[interface{}]bool)
	var firstErr error

	markFailed := func(err error, kind string, count int) {
		if firstErr == nil {
			firstErr = err
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"kind":  kind,
			"count": count,
		}).Error("Flush failed, requeueing batch")
	}

	if err := s.repo.InsertPerformanceBatch(ctx, perf); err != nil {
		markFailed(err, "performance", len(perf))
		for _, e := range perf {
			failed[e] = true
		}
	}
	if err := s.repo.InsertBusinessBatch(ctx, business); err != nil {
		markFailed(err, "business", len(business))
		for _, e := range business {
			failed[e] = true
		}
	}
	if err := s.repo.InsertErrorBatch(ctx, errs); err != nil {
		markFailed(err, "error", len(errs))
		for _, e := range errs {
			failed[e] = true
		}
	}
	if err := s.repo.InsertPointBatch(ctx, points); err != nil {
		markFailed(err, "point", len(points))
		for _, e := range points {
			failed[e] = true
		}
	}

	if len(failed) > 0 {
		requeue := make([]interface{}, 0, len(failed))
		for _, item := range batch {
			if failed[item] {
				requeue = append(requeue, item)
			}
		}

		s.mu.Lock()
		s.buffer = append(requeue, s.buffer...)
		s.mu.Unlock()

		return firstErr
	}

	s.logger.WithField("count", len(batch)).Debug("Flushed telemetry batch")

	return nil
}

// RetentionSweep deletes events of all kinds older than the configured
// retention. Failures are logged by the caller, not fatal.
func (s *MetricStore) RetentionSweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.config.Retention)
	return s.repo.DeleteOlderThan(ctx, cutoff)
}

// Start launches the flush and retention loops. They stop when ctx is
// canceled or Stop is called; a final flush runs on shutdown.
func (s *MetricStore) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.stopFn = cancel

	s.wg.Add(2)
	go s.flushLoop(ctx)
	go s.sweepLoop(ctx)

	s.logger.WithFields(logrus.Fields{
		"flush_interval": s.config.FlushInterval,
		"high_water":     s.config.FlushHighWater,
		"retention":      s.config.Retention,
	}).Info("Metric store started")
}

// Stop cancels the background loops and waits for them to drain.
func (s *MetricStore) Stop() {
	if s.stopFn != nil {
		s.stopFn()
	}
	s.wg.Wait()
}

func (s *MetricStore) flushLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final drain with a fresh deadline; ctx is already dead.
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := s.Flush(flushCtx); err != nil {
				s.logger.WithError(err).Error("Final flush failed on shutdown")
			}
			cancel()
			return
		case <-ticker.C:
		case <-s.flushCh:
		}

		if err := s.Flush(ctx); err != nil {
			s.logger.WithFields(logrus.Fields{
				"buffer_len": s.BufferLen(),
			}).Warn("Flush will be retried next tick")
		}
	}
}

func (s *MetricStore) sweepLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RetentionSweep(ctx); err != nil {
				s.logger.WithError(err).Error("Retention sweep failed")
			}
		}
	}
}

// Query reads metric points by name and range, ascending and capped.
func (s *MetricStore) Query(ctx context.Context, query models.MetricQuery) ([]*models.MetricPoint, error) {
	return s.repo.QueryPoints(ctx, query)
}

// Aggregate groups metric values by time bucket. Names in the business
// namespace read from business metrics, everything else from generic
// points.
func (s *MetricStore) Aggregate(ctx context.Context, query models.AggregateQuery) ([]models.AggregatedPoint, error) {
	if name, ok := strings.CutPrefix(query.Name, "business:"); ok {
		query.Name = name
		return s.repo.AggregateBusiness(ctx, query)
	}
	query.Name = strings.TrimPrefix(query.Name, "metric:")
	return s.repo.AggregatePoints(ctx, query)
}

// ErrorRate returns error-level error events divided by total requests in
// range, 0 when no requests occurred.
func (s *MetricStore) ErrorRate(ctx context.Context, start, end time.Time) (float64, error) {
	requests, err := s.repo.PerformanceCount(ctx, start, end)
	if err != nil {
		return 0, err
	}
	if requests == 0 {
		return 0, nil
	}

	errorCount, err := s.repo.ErrorCount(ctx, start, end, models.ErrorSeverityError)
	if err != nil {
		return 0, err
	}

	return float64(errorCount) / float64(requests), nil
}

// AverageLatency returns the mean request latency in range, 0 when no
// requests occurred.
func (s *MetricStore) AverageLatency(ctx context.Context, start, end time.Time) (float64, error) {
	return s.repo.AverageLatency(ctx, start, end)
}

// RequestCount returns the number of requests in range.
func (s *MetricStore) RequestCount(ctx context.Context, start, end time.Time) (int64, error) {
	return s.repo.PerformanceCount(ctx, start, end)
}

// BusinessSummary sums business metrics per name in range, optionally
// scoped to a tenant.
func (s *MetricStore) BusinessSummary(ctx context.Context, start, end time.Time, tenantID string) (map[string]float64, error) {
	return s.repo.BusinessSummary(ctx, start, end, tenantID)
}
