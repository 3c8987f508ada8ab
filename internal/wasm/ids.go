package wasm

import "sync/atomic"

// StoreID uniquely identifies a Store for the lifetime of the process.
// Every handle embeds the StoreID of the Store that created it; any
// operation where handle.StoreID != store.ID() is a cross-store use and
// must fault rather than corrupt memory.
type StoreID uint64

var nextStoreID uint64

func newStoreID() StoreID {
	return StoreID(atomic.AddUint64(&nextStoreID, 1))
}
