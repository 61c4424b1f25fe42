package stealpool

import "sync"

// =============================================================================
// Global WorkerPool helper (singleton), mirroring the teacher's
// InitGlobalThreadPool/GetGlobalThreadPool/ShutdownGlobalThreadPool trio.
// =============================================================================

var (
	globalPool *WorkerPool
	globalMu   sync.Mutex
)

// InitGlobalPool initializes and starts the global WorkerPool with the
// given number of workers. A second call while one is already
// initialized is a no-op.
func InitGlobalPool(workers int) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool != nil {
		return
	}
	globalPool = NewWorkerPool(workers, nil)
	globalPool.Start()
}

// GetGlobalPool returns the global WorkerPool. It panics if
// InitGlobalPool has not been called.
func GetGlobalPool() *WorkerPool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool == nil {
		panic("stealpool: global pool not initialized, call InitGlobalPool() first")
	}
	return globalPool
}

// ShutdownGlobalPool stops the global WorkerPool, if any, and clears it
// so a later InitGlobalPool call starts fresh.
func ShutdownGlobalPool() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool != nil {
		globalPool.Stop()
		globalPool = nil
	}
}
