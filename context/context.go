// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package context implements the rpdo shared context: a fixed-count bank of
// independently locked, byte-addressable registers that remote clients read
// and write through the host dispatcher.
package context

import (
	"code.hybscloud.com/rpdo/rpdoerr"
)

// Context is the capability the host dispatcher needs: byte-range read and
// write access to a numbered register bank. Implementations may back it
// with an in-memory array (Basic, below), a memory-mapped file, or a
// hardware register window — the host never assumes more than this.
type Context interface {
	GetBytes(register, offset, size uint32) ([]byte, error)
	SetBytes(register, offset uint32, data []byte) error
}

// register holds one byte vector and the lock that serializes access to it.
// Each register has its own lock so that concurrent access to different
// registers never contends.
type register struct {
	mu   Locker
	data []byte
}

// Basic is the reference Context: an array of length N of independently
// locked byte vectors, all initialized to the same register_size. Basic is
// safe for concurrent use from multiple goroutines.
type Basic struct {
	registers []register
	flexible  bool
}

// Option configures a Basic context at construction time.
type Option func(*basicConfig)

type basicConfig struct {
	backend LockBackend
}

// WithLockBackend selects the per-register lock implementation. The default
// is StandardMutex.
func WithLockBackend(b LockBackend) Option {
	return func(c *basicConfig) { c.backend = b }
}

// NewBasic builds a Basic context with registerCount registers, each
// initialized to registerSize zero bytes. flexible governs out-of-range
// behavior on get/set, as documented on GetBytes and SetBytes.
func NewBasic(registerCount, registerSize int, flexible bool, opts ...Option) *Basic {
	cfg := basicConfig{backend: StandardMutex}
	for _, fn := range opts {
		fn(&cfg)
	}
	regs := make([]register, registerCount)
	for i := range regs {
		regs[i] = register{
			mu:   newLocker(cfg.backend),
			data: make([]byte, registerSize),
		}
	}
	return &Basic{registers: regs, flexible: flexible}
}

// GetBytes reads size bytes starting at offset from register. size == 0
// means "read to the end of the register." When the requested range runs
// past the register's current length, a non-flexible context fails with
// InvalidOffset; a flexible one zero-fills the missing bytes up to size.
func (b *Basic) GetBytes(registerIdx, offset, size uint32) ([]byte, error) {
	if int(registerIdx) >= len(b.registers) {
		return nil, rpdoerr.ErrInvalidRegister
	}
	reg := &b.registers[registerIdx]
	reg.mu.Lock()
	defer reg.mu.Unlock()

	regLen := uint32(len(reg.data))
	want := size
	if want == 0 {
		if offset > regLen {
			want = 0
		} else {
			want = regLen - offset
		}
	}

	if offset > regLen {
		if !b.flexible {
			return nil, rpdoerr.ErrInvalidOffset
		}
		return make([]byte, want), nil
	}

	end := offset + want
	if end > regLen {
		end = regLen
	}
	result := make([]byte, end-offset)
	copy(result, reg.data[offset:end])

	if uint32(len(result)) < want {
		if !b.flexible {
			return nil, rpdoerr.ErrInvalidOffset
		}
		padded := make([]byte, want)
		copy(padded, result)
		result = padded
	}
	return result, nil
}

// SetBytes writes data starting at offset into register, growing the
// register with zero padding first if needed and flexible is set.
func (b *Basic) SetBytes(registerIdx, offset uint32, data []byte) error {
	if int(registerIdx) >= len(b.registers) {
		return rpdoerr.ErrInvalidRegister
	}
	reg := &b.registers[registerIdx]
	reg.mu.Lock()
	defer reg.mu.Unlock()

	need := uint64(offset) + uint64(len(data))
	if need > uint64(len(reg.data)) {
		if !b.flexible {
			return rpdoerr.ErrInvalidOffset
		}
		grown := make([]byte, need)
		copy(grown, reg.data)
		reg.data = grown
	}
	copy(reg.data[offset:], data)
	return nil
}

// RegisterCount reports N, the number of registers in the bank.
func (b *Basic) RegisterCount() int { return len(b.registers) }
