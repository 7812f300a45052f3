package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vk/tilegate/internal/ctxlog"
	apperrors "github.com/vk/tilegate/internal/errors"
	"github.com/vk/tilegate/internal/layer"
	"github.com/vk/tilegate/internal/metrics"
	"github.com/vk/tilegate/internal/render"
	"github.com/vk/tilegate/internal/tile"
)

// DefaultWorkers is the pool size used when Options.Workers is not positive.
const DefaultWorkers = 4

// Options configures a Dispatcher.
type Options struct {
	// Workers is the number of renders that may execute at once.
	Workers int
	// QueueSize bounds the number of waiting renders. 0 means unbounded.
	QueueSize int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Metrics may be nil.
	Metrics *metrics.DispatchMetrics
	// Clock defaults to the real clock.
	Clock clockwork.Clock
}

// Stats is a point-in-time view of the dispatcher.
type Stats struct {
	Workers   int    `json:"workers"`
	QueueSize int    `json:"queue_size"`
	Queued    int64  `json:"queued"`
	Running   int64  `json:"running"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Cancelled uint64 `json:"cancelled"`
	Rejected  uint64 `json:"rejected"`
	Closed    bool   `json:"closed"`
}

// Dispatcher owns the worker pool. It is created once per process and
// shared by every request handler.
type Dispatcher struct {
	workers   int
	queueSize int
	logger    *slog.Logger
	metrics   *metrics.DispatchMetrics
	clock     clockwork.Clock

	// ready is what workers range over. In bounded mode it is the queue
	// itself; in unbounded mode the feeder moves work from pending into it.
	ready chan *Future

	mu      sync.Mutex
	pending []*Future
	closed  bool
	wake    chan struct{}

	lifetime context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup

	queued    atomic.Int64
	running   atomic.Int64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
	rejected  atomic.Uint64
}

// New creates a dispatcher and starts its workers.
func New(opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	lifetime, stop := context.WithCancel(context.Background())
	d := &Dispatcher{
		workers:   opts.Workers,
		queueSize: opts.QueueSize,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		clock:     opts.Clock,
		lifetime:  lifetime,
		stop:      stop,
	}

	if d.queueSize > 0 {
		d.ready = make(chan *Future, d.queueSize)
	} else {
		d.ready = make(chan *Future)
		d.wake = make(chan struct{}, 1)
		d.wg.Add(1)
		go d.feed()
	}

	d.wg.Add(d.workers)
	for i := 1; i <= d.workers; i++ {
		go d.worker(i)
	}

	d.logger.Debug("Dispatcher started.", "workers", d.workers, "queueSize", d.queueSize)
	return d
}

// Submit enqueues a render and returns its Future without waiting for it.
// It fails only with errors.ErrQueueFull or errors.ErrClosed.
//
// The render runs with a context that carries ctx's values (logger,
// correlation id) but not its cancellation: it ends only when the dispatcher
// is forcibly shut down.
func (d *Dispatcher) Submit(ctx context.Context, r render.Renderer, cfg layer.Config, coord tile.Coordinate, ext string) (*Future, error) {
	f := &Future{
		done:      make(chan struct{}),
		d:         d,
		ctx:       context.WithoutCancel(ctx),
		renderer:  r,
		cfg:       cfg,
		coord:     coord,
		ext:       ext,
		submitted: d.clock.Now(),
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, apperrors.ErrClosed
	}

	// Counted before the hand-off so a fast worker never drives it negative.
	d.addQueued(1)
	if d.queueSize > 0 {
		select {
		case d.ready <- f:
		default:
			d.addQueued(-1)
			d.rejected.Add(1)
			if d.metrics != nil {
				d.metrics.Outcomes.WithLabelValues(metrics.OutcomeRejected).Inc()
			}
			return nil, apperrors.ErrQueueFull
		}
	} else {
		d.pending = append(d.pending, f)
		d.signal()
	}
	return f, nil
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()

	return Stats{
		Workers:   d.workers,
		QueueSize: d.queueSize,
		Queued:    d.queued.Load(),
		Running:   d.running.Load(),
		Succeeded: d.succeeded.Load(),
		Failed:    d.failed.Load(),
		Cancelled: d.cancelled.Load(),
		Rejected:  d.rejected.Load(),
		Closed:    closed,
	}
}

// Close stops accepting work and waits for queued and running renders to
// finish. If ctx ends first, running renders see their context cancelled and
// Close returns ctx.Err() without waiting further.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		if d.queueSize > 0 {
			close(d.ready)
		} else {
			d.signal()
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.stop()
		d.logger.Debug("Dispatcher stopped.")
		return nil
	case <-ctx.Done():
		d.stop()
		d.logger.Warn("Dispatcher did not drain before shutdown deadline.", "queued", d.queued.Load(), "running", d.running.Load())
		return ctx.Err()
	}
}

// signal wakes the feeder. Callers hold d.mu.
func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// feed moves pending work to the workers in FIFO order. It closes ready once
// the dispatcher is closed and nothing is pending.
func (d *Dispatcher) feed() {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(d.pending) == 0 {
			closed := d.closed
			d.mu.Unlock()
			if closed {
				close(d.ready)
				return
			}
			<-d.wake
			continue
		}
		f := d.pending[0]
		d.pending[0] = nil
		d.pending = d.pending[1:]
		d.mu.Unlock()

		d.ready <- f
	}
}

// worker is the processing loop for a single concurrent worker. A failing or
// panicking render never ends the loop.
func (d *Dispatcher) worker(workerID int) {
	defer d.wg.Done()
	logger := d.logger.With("workerID", workerID)
	logger.Debug("Worker started.")

	for f := range d.ready {
		d.addQueued(-1)

		if !f.begin() {
			logger.Debug("Skipping cancelled render.", "tile", f.coord.String())
			continue
		}
		d.run(f, logger)
	}
	logger.Debug("Worker finished.")
}

func (d *Dispatcher) run(f *Future, logger *slog.Logger) {
	d.running.Add(1)
	started := d.clock.Now()
	if d.metrics != nil {
		d.metrics.Running.Inc()
		d.metrics.QueueWait.Observe(started.Sub(f.submitted).Seconds())
	}

	ctx, cancel := context.WithCancel(f.ctx)
	stopAfter := context.AfterFunc(d.lifetime, cancel)
	res, err := d.execute(ctx, f)
	stopAfter()
	cancel()

	elapsed := d.clock.Since(started)
	d.running.Add(-1)
	if d.metrics != nil {
		d.metrics.Running.Dec()
		d.metrics.RenderDuration.WithLabelValues(f.cfg.ProviderName()).Observe(elapsed.Seconds())
	}

	if err != nil {
		ctxlog.FromContext(f.ctx).ErrorContext(f.ctx, "Tile render failed.",
			"layer", f.cfg.Name(), "provider", f.cfg.ProviderName(), "tile", f.coord.String(), "error", err)
		d.failed.Add(1)
		if d.metrics != nil {
			d.metrics.Outcomes.WithLabelValues(metrics.OutcomeFailed).Inc()
		}
		f.finish(nil, apperrors.RenderFailed(err))
		return
	}

	logger.Debug("Tile rendered.", "layer", f.cfg.Name(), "tile", f.coord.String(), "duration", elapsed.Round(time.Microsecond))
	d.succeeded.Add(1)
	if d.metrics != nil {
		d.metrics.Outcomes.WithLabelValues(metrics.OutcomeSucceeded).Inc()
	}
	f.finish(res, nil)
}

// execute calls the renderer, turning a panic into an error.
func (d *Dispatcher) execute(ctx context.Context, f *Future) (res *tile.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).ErrorContext(ctx, "Renderer panicked.", "panic", r, "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("renderer panicked: %v", r)
		}
	}()
	return f.renderer.Render(ctx, f.cfg, f.coord, f.ext)
}

func (d *Dispatcher) addQueued(delta int64) {
	d.queued.Add(delta)
	if d.metrics != nil {
		d.metrics.Queued.Add(float64(delta))
	}
}

func (d *Dispatcher) observeCancelled() {
	d.cancelled.Add(1)
	if d.metrics != nil {
		d.metrics.Outcomes.WithLabelValues(metrics.OutcomeCancelled).Inc()
	}
}
