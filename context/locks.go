// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package context

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Locker is the per-register lock contract. Basic holds one Locker per
// register so that contention on one register never blocks another.
type Locker interface {
	Lock()
	Unlock()
}

// LockBackend selects which Locker implementation Basic allocates per
// register.
type LockBackend uint8

const (
	// StandardMutex allocates a sync.Mutex per register. This is the
	// right default: it parks contending goroutines instead of burning
	// CPU, and the stdlib scheduler already handles the fairness and
	// futex-wake tradeoffs well.
	StandardMutex LockBackend = iota
	// SpinPark allocates a lightweight spin-then-park lock per register,
	// approximating a priority-inheriting real-time mutex with no
	// equivalent Go primitive: cheap acquisition when the register is
	// only briefly held, by spinning a bounded number of iterations
	// before falling back to runtime.Gosched. It trades fairness for
	// latency and should only be chosen for registers with very short,
	// very hot critical sections.
	SpinPark
)

func newLocker(b LockBackend) Locker {
	switch b {
	case SpinPark:
		return &spinParkMutex{}
	default:
		return &sync.Mutex{}
	}
}

// spinParkMutex is a simple compare-and-swap spinlock that yields the
// processor to the Go scheduler after a bounded number of failed attempts,
// rather than spinning indefinitely.
type spinParkMutex struct {
	state atomic.Bool
}

const spinParkAttempts = 64

func (m *spinParkMutex) Lock() {
	for {
		for i := 0; i < spinParkAttempts; i++ {
			if m.state.CompareAndSwap(false, true) {
				return
			}
		}
		runtime.Gosched()
	}
}

func (m *spinParkMutex) Unlock() {
	m.state.Store(false)
}
