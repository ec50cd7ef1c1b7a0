package txn

import (
	"sync/atomic"
	"unsafe"
)

// atomicLoadUint64/atomicStoreUint64 give the ring buffer's seqlock atomic
// access to an 8-byte field inside a byte slice backed by mmap'd, possibly
// cross-process shared memory - the same reinterpret-the-slice-as-a-pointer
// idiom used for shared-memory ring buffers generally (see
// other_examples' feeder/seqlock sample mined for this pattern).
func atomicLoadUint64(b []byte) uint64 {
	ptr := (*uint64)(unsafe.Pointer(&b[0]))
	return atomic.LoadUint64(ptr)
}

func atomicStoreUint64(b []byte, v uint64) {
	ptr := (*uint64)(unsafe.Pointer(&b[0]))
	atomic.StoreUint64(ptr, v)
}

func atomicLoadUint32(b []byte) uint32 {
	ptr := (*uint32)(unsafe.Pointer(&b[0]))
	return atomic.LoadUint32(ptr)
}

func atomicStoreUint32(b []byte, v uint32) {
	ptr := (*uint32)(unsafe.Pointer(&b[0]))
	atomic.StoreUint32(ptr, v)
}
