// Package asyncbridge lets a host function invoked from guest code suspend
// on a deferred host computation without the guest ever observing the
// suspension. The guest's call runs on its own goroutine (Go's stackful
// coroutine), parked on an unbuffered channel whenever the host function
// blocks; the embedder-facing CallFuture is polled by the outer async
// driver and resumes the goroutine when the awaited work completes. From
// the guest's perspective the host call was synchronous.
package asyncbridge

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/wasmforge/wasmforge/internal/obs"
)

var log = obs.For("asyncbridge")

// ErrYieldOutsideAsyncContext is returned by BlockOnHostFuture when no
// enclosing coroutine exists and the future is not immediately ready.
var ErrYieldOutsideAsyncContext = errors.New("asyncbridge: blocking host future outside an async call context")

// HostFuture is one deferred host computation. The zero value is invalid;
// construct with NewHostFuture or Ready.
type HostFuture struct {
	fn      func(context.Context) (any, error)
	done    chan struct{}
	result  any
	err     error
	started atomic.Bool
}

// NewHostFuture wraps a host computation to be started by the driver when
// the coroutine first suspends on it.
func NewHostFuture(fn func(context.Context) (any, error)) *HostFuture {
	return &HostFuture{fn: fn, done: make(chan struct{})}
}

// Ready returns an already-completed future carrying v.
func Ready(v any) *HostFuture {
	f := &HostFuture{done: make(chan struct{}), result: v}
	f.started.Store(true)
	close(f.done)
	return f
}

// startVia launches the computation once under the driver's errgroup;
// subsequent calls are no-ops. The future's own error stays on the future
// (it belongs to the suspended host function, not the driver).
func (f *HostFuture) startVia(g *errgroup.Group, ctx context.Context) {
	if !f.started.CompareAndSwap(false, true) {
		return
	}
	g.Go(func() error {
		f.result, f.err = f.fn(ctx)
		close(f.done)
		return nil
	})
}

// startInline is the no-coroutine fallback path.
func (f *HostFuture) startInline(ctx context.Context) {
	if !f.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		f.result, f.err = f.fn(ctx)
		close(f.done)
	}()
}

// poll reports completion without blocking.
func (f *HostFuture) poll() (any, error, bool) {
	select {
	case <-f.done:
		return f.result, f.err, true
	default:
		return nil, nil, false
	}
}

// resumeMsg is what the driver sends into the coroutine.
type resumeMsg struct {
	futureResult any
	futureErr    error
}

// yieldMsg is what the coroutine sends back out.
type yieldMsg struct {
	future *HostFuture // non-nil while suspended on host work

	finished bool
	result   any
	err      error
}

// dropped is the panic payload that unwinds a coroutine whose CallFuture
// was abandoned before completion.
type dropped struct{}

// Yielder is the coroutine-side handle used by BlockOnHostFuture to park
// the guest stack. It is carried through context.Context so host functions
// reached through arbitrarily deep re-entrant calls (guest -> host ->
// guest -> host) still find the innermost enclosing coroutine.
type Yielder struct {
	resume chan resumeMsg
	yield  chan yieldMsg
	drop   chan struct{}

	parent    *Yielder
	liveChild atomic.Int32
}

type yielderKey struct{}

// ContextWithYielder returns ctx carrying y; installed by the driver when
// starting the coroutine body.
func ContextWithYielder(ctx context.Context, y *Yielder) context.Context {
	return context.WithValue(ctx, yielderKey{}, y)
}

// YielderFrom recovers the innermost enclosing Yielder, if any.
func YielderFrom(ctx context.Context) *Yielder {
	y, _ := ctx.Value(yielderKey{}).(*Yielder)
	return y
}

// BlockOnHostFuture suspends the current coroutine until fut completes,
// returning its result to the host function as if it had blocked.
//
// Outside any coroutine it degrades to a single non-blocking poll: an
// already-ready future still works (so host functions remain usable from
// the synchronous call path), anything else fails with
// ErrYieldOutsideAsyncContext.
func BlockOnHostFuture(ctx context.Context, fut *HostFuture) (any, error) {
	y := YielderFrom(ctx)
	if y == nil {
		fut.startInline(ctx)
		if r, err, ok := fut.poll(); ok {
			return r, err
		}
		return nil, ErrYieldOutsideAsyncContext
	}
	y.yield <- yieldMsg{future: fut}
	select {
	case msg := <-y.resume:
		return msg.futureResult, msg.futureErr
	case <-y.drop:
		panic(dropped{})
	}
}

// CallFuture is the embedder-facing handle for one in-flight async call.
// It must be polled from the goroutine that created it and is not safe for
// concurrent use.
type CallFuture struct {
	ctx      context.Context
	yielder  *Yielder
	pending  *HostFuture
	group    *errgroup.Group
	finished bool
	result   any
	err      error
}

// AsyncCall starts fn on a fresh coroutine. fn is the synchronous guest
// call; it makes no progress except inside Poll/Await.
func AsyncCall(ctx context.Context, fn func(context.Context) (any, error)) *CallFuture {
	y := &Yielder{
		resume: make(chan resumeMsg),
		// Buffered so a finishing or yielding coroutine never deadlocks
		// against a driver that was dropped between cycles.
		yield:  make(chan yieldMsg, 1),
		drop:   make(chan struct{}),
		parent: YielderFrom(ctx),
	}
	if y.parent != nil {
		y.parent.liveChild.Add(1)
	}
	g, gctx := errgroup.WithContext(ctx)
	cf := &CallFuture{ctx: gctx, yielder: y, group: g}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(dropped); ok {
					// Abandoned mid-call: unwind silently, freeing the
					// guest stack without delivering any cancellation to
					// guest code.
					if y.parent != nil {
						y.parent.liveChild.Add(-1)
					}
					return
				}
				panic(r)
			}
		}()
		select {
		case <-y.resume: // wait for the first Poll before running anything
		case <-y.drop:
			if y.parent != nil {
				y.parent.liveChild.Add(-1)
			}
			return
		}
		result, err := fn(ContextWithYielder(gctx, y))
		if y.liveChild.Load() != 0 {
			panic("asyncbridge: active coroutine stack corrupted")
		}
		if y.parent != nil {
			y.parent.liveChild.Add(-1)
		}
		y.yield <- yieldMsg{finished: true, result: result, err: err}
	}()
	return cf
}

// Poll advances the call without blocking: it polls any pending host
// future, resumes the coroutine when that future is ready, and reports
// whether the call finished. Polling after completion panics.
func (c *CallFuture) Poll() (done bool, result any, err error) {
	if c.finished {
		panic("asyncbridge: polled after completion")
	}

	var resume resumeMsg
	if c.pending != nil {
		r, ferr, ok := c.pending.poll()
		if !ok {
			return false, nil, nil
		}
		c.pending = nil
		resume = resumeMsg{futureResult: r, futureErr: ferr}
	}

	c.yielder.resume <- resume
	msg := <-c.yielder.yield
	if msg.finished {
		c.finished = true
		c.result, c.err = msg.result, msg.err
		return true, c.result, c.err
	}
	c.pending = msg.future
	c.pending.startVia(c.group, c.ctx)
	return false, nil, nil
}

// Await drives the call to completion, blocking on the pending host future
// between resume cycles rather than spinning. The embedded errgroup
// propagates ctx cancellation to every host future started on behalf of
// this call and synchronizes their goroutines before returning.
func (c *CallFuture) Await(ctx context.Context) (any, error) {
	for {
		done, result, err := c.Poll()
		if done {
			if werr := c.group.Wait(); werr != nil && err == nil {
				err = werr
			}
			return result, err
		}
		if c.pending == nil {
			continue
		}
		select {
		case <-ctx.Done():
			log.Debug("async call cancelled while awaiting host future")
			c.Drop()
			return nil, ctx.Err()
		case <-c.pending.done:
		}
	}
}

// Drop abandons an unfinished call: the coroutine unwinds (freeing the
// guest stack) without delivering any guest-visible cancellation. Safe to
// call at most once, and never after the call completed.
func (c *CallFuture) Drop() {
	if c.finished {
		return
	}
	c.finished = true
	close(c.yielder.drop)
}
