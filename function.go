package wasmforge

import (
	"context"

	"github.com/wasmforge/wasmforge/api"
	"github.com/wasmforge/wasmforge/internal/asyncbridge"
	"github.com/wasmforge/wasmforge/internal/memview"
	"github.com/wasmforge/wasmforge/internal/wasm"
)

// Function is an exported guest function ready to be called.
type Function struct {
	r    *Runtime
	inst *wasm.Instance
	fn   wasm.Function
}

// Sig returns the function's signature.
func (f *Function) Sig() (api.FuncSig, error) {
	return f.fn.Sig(f.r.store.AsStoreRef())
}

// Call invokes the function synchronously. A guest trap or a cross-store
// handle surfaces as a *trap.RuntimeError carrying the guest backtrace.
func (f *Function) Call(ctx context.Context, args ...api.Value) ([]api.Value, error) {
	results, rerr := f.fn.Call(ctx, f.r.store.AsStoreMut(), f.inst, args)
	if rerr != nil {
		return nil, rerr
	}
	return results, nil
}

// CallAsync invokes the function on a coroutine so host functions it calls
// may suspend on host futures; the returned AsyncResult completes when the
// guest returns. The result must be driven from the calling goroutine.
func (f *Function) CallAsync(ctx context.Context, args ...api.Value) *AsyncResult {
	fut := asyncbridge.AsyncCall(ctx, func(ctx context.Context) (any, error) {
		results, rerr := f.fn.Call(ctx, f.r.store.AsStoreMut(), f.inst, args)
		if rerr != nil {
			return nil, rerr
		}
		return results, nil
	})
	return &AsyncResult{fut: fut}
}

// AsyncResult is the completion handle for one CallAsync invocation.
type AsyncResult struct {
	fut *asyncbridge.CallFuture
}

// Poll advances the call without blocking, reporting whether it finished.
func (a *AsyncResult) Poll() (done bool, results []api.Value, err error) {
	done, v, err := a.fut.Poll()
	if !done || err != nil {
		return done, nil, err
	}
	results, _ = v.([]api.Value)
	return true, results, nil
}

// Await drives the call to completion.
func (a *AsyncResult) Await(ctx context.Context) ([]api.Value, error) {
	v, err := a.fut.Await(ctx)
	if err != nil {
		return nil, err
	}
	results, _ := v.([]api.Value)
	return results, nil
}

// Drop abandons an unfinished call, unwinding the guest coroutine.
func (a *AsyncResult) Drop() { a.fut.Drop() }

// BlockOn suspends the calling host function on fut, resuming when it
// completes. Outside an async call it degrades to a single poll, so
// already-ready futures still work from the synchronous path.
func BlockOn(caller wasm.Caller, fut *asyncbridge.HostFuture) (any, error) {
	return asyncbridge.BlockOnHostFuture(caller.Context(), fut)
}

// Memory is an exported guest memory.
type Memory struct {
	r   *Runtime
	mem wasm.Memory
}

// Handle exposes the underlying object-model handle.
func (m *Memory) Handle() wasm.Memory { return m.mem }

// Size returns the current size in pages.
func (m *Memory) Size() (uint32, error) {
	return m.mem.Size(m.r.store.AsStoreRef())
}

// Grow adds delta pages, returning the previous page count. Any view
// derived before a successful Grow is stale; derive a fresh one.
func (m *Memory) Grow(delta uint32) (uint32, error) {
	return m.mem.Grow(m.r.store.AsStoreMut(), delta)
}

// View captures a bounds-checked window onto the memory's current bytes.
func (m *Memory) View() (memview.View, error) {
	return memview.New(m.r.store.AsStoreRef(), m.mem)
}
