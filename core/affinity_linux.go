//go:build linux

// Package core: CPU pinning dispatcher for Linux.
//
// Grounded on momentics-hioload-ws/internal/concurrency/pin.go's
// build-tag dispatch pattern, reimplemented cgo-free against
// golang.org/x/sys/unix.SchedSetaffinity instead of the teacher's cgo
// sched_setaffinity/libnuma binding, so the module never requires CGO.

package core

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinCurrentThread locks the calling goroutine to its current OS
// thread and restricts that thread to cpuID modulo the number of
// logical CPUs. Errors are swallowed: affinity is a scheduling hint,
// not a correctness requirement, and an unsupported cpuID should
// degrade to "unpinned" rather than crash a worker.
func pinCurrentThread(cpuID int) {
	runtime.LockOSThread()

	n := runtime.NumCPU()
	if n <= 0 {
		return
	}
	cpuID = cpuID % n

	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	_ = unix.SchedSetaffinity(0, &set)
}
