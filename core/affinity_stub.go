//go:build !linux

// Package core: no-op CPU pinning dispatcher for platforms without an
// affinity implementation, selected by build tag over affinity_linux.go,
// matching the dispatch pattern in
// momentics-hioload-ws/internal/concurrency/pin.go.

package core

// pinCurrentThread is a no-op outside Linux.
func pinCurrentThread(cpuID int) {}
