package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/telos/pkg/core"
)

// Sweeper periodically executes tasks tagged "queue" whose update
// interval has elapsed. Tasks without a registered worker are stalled:
// the sweeper logs and skips them until the worker returns.
type Sweeper struct {
	service  *Service
	rt       core.Runtime
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// SweeperOption configures the sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets the tick cadence.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSweepTimeout bounds a single sweep pass.
func WithSweepTimeout(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.timeout = d }
}

// WithSweeperLogger sets the sweeper logger.
func WithSweeperLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = logger }
}

// NewSweeper creates a sweeper over the task service.
func NewSweeper(service *Service, rt core.Runtime, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		service:  service,
		rt:       rt,
		interval: time.Second,
		timeout:  30 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop. Calling Start on a running sweeper
// restarts it.
func (s *Sweeper) Start(ctx context.Context) {
	if s.cancel != nil {
		s.Stop()
	}
	initSweepMetrics()

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.logger.Info("task.sweeper.start", slog.Duration("interval", s.interval))
		for {
			select {
			case <-loopCtx.Done():
				s.logger.Info("task.sweeper.stop")
				return
			case <-ticker.C:
				s.sweep(loopCtx)
			}
		}
	}()
}

// Stop halts the sweep loop and waits for the current pass to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	if s.done != nil {
		<-s.done
	}
	s.cancel = nil
	s.done = nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	sweepStart := time.Now()
	sweepCtx := ctx
	var cancel context.CancelFunc
	if s.timeout > 0 {
		sweepCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	sweepCtx, span := otel.Tracer("telos/task").Start(sweepCtx, "task.sweep")
	defer span.End()

	tasks, err := s.service.Tasks(sweepCtx, core.TaskQuery{Tags: []string{core.TagQueue}})
	if err != nil {
		sweepErrorCounter.Add(ctx, 1)
		span.RecordError(err)
		s.logger.Warn("task.sweep.list.error", slog.String("error", err.Error()))
		return
	}

	executed := 0
	for i := range tasks {
		t := tasks[i]
		if !intervalElapsed(&t) {
			continue
		}
		worker, ok := s.service.Worker(t.Name)
		if !ok {
			s.logger.Warn("task.sweep.stalled",
				slog.String("task", t.Name),
				slog.String("id", t.ID.String()),
			)
			continue
		}

		taskCtx, taskSpan := otel.Tracer("telos/task").Start(sweepCtx, "task.execute",
			trace.WithAttributes(attribute.String("task", t.Name)),
		)
		start := time.Now()
		err := worker.Execute(taskCtx, s.rt, nil, &t)
		durationMs := float64(time.Since(start).Seconds() * 1000)
		taskCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("task", t.Name)))
		taskLatencyMs.Record(ctx, durationMs, metric.WithAttributes(attribute.String("task", t.Name)))
		if err != nil {
			taskErrorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("task", t.Name)))
			taskSpan.RecordError(err)
			s.logger.Warn("task.sweep.execute.error",
				slog.String("task", t.Name),
				slog.String("id", t.ID.String()),
				slog.Float64("duration_ms", durationMs),
				slog.String("error", err.Error()),
			)
			taskSpan.End()
			continue
		}
		taskSpan.SetAttributes(attribute.Float64("duration_ms", durationMs))
		taskSpan.End()
		executed++

		// Executing workers may delete their own task; only touch the
		// record when it still exists.
		if current, err := s.service.GetTask(sweepCtx, t.ID); err == nil && current != nil {
			current.UpdatedAt = time.Now().UTC()
			if err := s.service.UpdateTask(sweepCtx, current); err != nil {
				s.logger.Warn("task.sweep.update.error",
					slog.String("task", t.Name),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if executed > 0 {
		s.logger.Info("task.sweep.complete",
			slog.Int("executed", executed),
			slog.Int("queued", len(tasks)),
		)
	}
	sweepLatencyMs.Record(ctx, float64(time.Since(sweepStart).Seconds()*1000))
}

// intervalElapsed reports whether the task is due: its UpdateInterval has
// passed since the last execution. A zero interval means every tick.
func intervalElapsed(t *core.Task) bool {
	if t.Metadata.UpdateInterval <= 0 {
		return true
	}
	return time.Since(t.UpdatedAt) >= t.Metadata.UpdateInterval
}

var (
	sweepMetricsOnce  sync.Once
	taskCounter       metric.Int64Counter
	taskErrorCounter  metric.Int64Counter
	sweepErrorCounter metric.Int64Counter
	taskLatencyMs     metric.Float64Histogram
	sweepLatencyMs    metric.Float64Histogram
)

func initSweepMetrics() {
	sweepMetricsOnce.Do(func() {
		meter := otel.Meter("telos/task")
		taskCounter, _ = meter.Int64Counter("telos.task.sweep.executed.count")
		taskErrorCounter, _ = meter.Int64Counter("telos.task.sweep.error.count")
		sweepErrorCounter, _ = meter.Int64Counter("telos.task.sweep.list_error.count")
		taskLatencyMs, _ = meter.Float64Histogram("telos.task.sweep.task_latency_ms")
		sweepLatencyMs, _ = meter.Float64Histogram("telos.task.sweep.latency_ms")
	})
}
