package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	apperrors "github.com/vk/tilegate/internal/errors"
	"github.com/vk/tilegate/internal/layer"
	"github.com/vk/tilegate/internal/render"
	"github.com/vk/tilegate/internal/tile"
)

// State represents the lifecycle of a dispatched render.
type State int32

const (
	// Queued indicates the render is waiting for a worker.
	Queued State = iota
	// Running indicates a worker is executing the render.
	Running
	// Succeeded indicates the render returned a result.
	Succeeded
	// Failed indicates the render returned an error or panicked.
	Failed
	// Cancelled indicates the submitter gave up before a worker started it.
	Cancelled
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Future is the pending result of a submitted render.
type Future struct {
	state atomic.Int32
	done  chan struct{}

	// Set once before done is closed.
	result *tile.Result
	err    error

	d         *Dispatcher
	ctx       context.Context
	renderer  render.Renderer
	cfg       layer.Config
	coord     tile.Coordinate
	ext       string
	submitted time.Time
}

// State returns the current state of the render.
func (f *Future) State() State {
	return State(f.state.Load())
}

// Done is closed once the future has a result, an error or was cancelled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the render completes or ctx ends.
//
// A render error or panic is returned as *errors.RenderFailedError. If ctx
// hits its deadline first the error matches errors.ErrDispatchTimeout; other
// cancellations return ctx.Err(). Either way, work that has not started yet is
// cancelled.
func (f *Future) Await(ctx context.Context) (*tile.Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
	}

	// The result may have landed at the same moment; prefer it.
	select {
	case <-f.done:
		return f.result, f.err
	default:
	}

	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		err = apperrors.DispatchTimeout(err)
	}
	if f.state.CompareAndSwap(int32(Queued), int32(Cancelled)) {
		f.err = err
		close(f.done)
		f.d.observeCancelled()
	}
	return nil, err
}

// begin moves the future to Running. It fails if the submitter already
// cancelled it.
func (f *Future) begin() bool {
	return f.state.CompareAndSwap(int32(Queued), int32(Running))
}

func (f *Future) finish(res *tile.Result, err error) {
	f.result, f.err = res, err
	if err != nil {
		f.state.Store(int32(Failed))
	} else {
		f.state.Store(int32(Succeeded))
	}
	close(f.done)
}
