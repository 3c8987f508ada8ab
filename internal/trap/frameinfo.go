package trap

import "sync/atomic"

// FrameInfo maps a captured program-counter-equivalent back to a
// (module, function, wasm-offset) triple.
type FrameInfo struct {
	ModuleName   string
	FunctionName string
	FunctionIndex uint32
	ModuleOffset uint32
}

// moduleRecord is one loaded artifact's registered address range.
type moduleRecord struct {
	start, end uintptr
	moduleName string
	resolve    func(pc uintptr) (FrameInfo, bool)
}

// registry is an append-only, copy-on-write table of moduleRecords,
// published via an atomic pointer swap so the async-signal-unsafe parts of
// a mutex are never on the read path.
type registry struct {
	records atomic.Pointer[[]*moduleRecord]
}

var global registry

func init() {
	empty := make([]*moduleRecord, 0, 8)
	global.records.Store(&empty)
}

// Register publishes a new address range. resolve is called with PCs in
// [start,end) to produce a FrameInfo; it must be safe to call without
// holding any lock (it runs from a context a real signal handler would
// reach, hence the copy-on-write design here).
func Register(start, end uintptr, moduleName string, resolve func(pc uintptr) (FrameInfo, bool)) (deregister func()) {
	rec := &moduleRecord{start: start, end: end, moduleName: moduleName, resolve: resolve}
	for {
		old := global.records.Load()
		next := make([]*moduleRecord, len(*old), len(*old)+1)
		copy(next, *old)
		next = append(next, rec)
		if global.records.CompareAndSwap(old, &next) {
			break
		}
	}
	return func() { deregisterRecord(rec) }
}

func deregisterRecord(rec *moduleRecord) {
	for {
		old := global.records.Load()
		next := make([]*moduleRecord, 0, len(*old))
		for _, r := range *old {
			if r != rec {
				next = append(next, r)
			}
		}
		if global.records.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Resolve looks up pc against every registered range, returning the
// matching FrameInfo, or ok=false if pc lies outside all registered Wasm
// code.
func Resolve(pc uintptr) (FrameInfo, bool) {
	for _, rec := range *global.records.Load() {
		if pc >= rec.start && pc < rec.end {
			return rec.resolve(pc)
		}
	}
	return FrameInfo{}, false
}

// InRegisteredRange reports whether pc falls within any registered module's
// code range, without resolving a full FrameInfo.
func InRegisteredRange(pc uintptr) bool {
	for _, rec := range *global.records.Load() {
		if pc >= rec.start && pc < rec.end {
			return true
		}
	}
	return false
}
