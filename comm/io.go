// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package comm

import (
	"io"
	"runtime"
	"time"

	"code.hybscloud.com/iox"
)

// These are re-exported so callers can recognize the non-blocking
// control-flow signals a wrapped transport may surface without importing
// iox directly.
var (
	// ErrWouldBlock means the transport made no further progress and the
	// caller should retry later. Any partial progress already made is real.
	ErrWouldBlock = iox.ErrWouldBlock
	// ErrMore means the current read/write is not finished; more bytes of
	// the same logical unit will follow on a subsequent call.
	ErrMore = iox.ErrMore
)

// RetryPolicy controls how readFull/writeFull react to ErrWouldBlock from
// the underlying transport. Ordinary blocking sockets never produce
// ErrWouldBlock, so this only matters for callers who deliberately wrap a
// non-blocking net.Conn.
type RetryPolicy time.Duration

const (
	// Nonblock returns ErrWouldBlock to the caller immediately.
	Nonblock RetryPolicy = -1
	// Yield cooperatively reschedules and retries (runtime.Gosched).
	Yield RetryPolicy = 0
)

func (p RetryPolicy) wait() bool {
	if p < 0 {
		return false
	}
	if p == 0 {
		runtime.Gosched()
		return true
	}
	time.Sleep(time.Duration(p))
	return true
}

// readFull reads exactly len(buf) bytes from r, retrying on ErrWouldBlock
// per policy and treating ErrMore as "keep reading, this call isn't done
// yet." A short read terminated by io.EOF with zero bytes consumed so far
// returns io.EOF unchanged; any other short read returns
// io.ErrUnexpectedEOF.
func readFull(r io.Reader, buf []byte, policy RetryPolicy) error {
	got := 0
	for got < len(buf) {
		n, err := r.Read(buf[got:])
		got += n
		if err != nil {
			switch err {
			case ErrWouldBlock:
				if policy.wait() {
					continue
				}
				return err
			case ErrMore:
				continue
			case io.EOF:
				if got == 0 {
					return io.EOF
				}
				return io.ErrUnexpectedEOF
			default:
				return err
			}
		}
		if n == 0 && err == nil {
			return io.ErrNoProgress
		}
	}
	return nil
}

// writeFull writes all of buf to w, retrying on ErrWouldBlock per policy.
func writeFull(w io.Writer, buf []byte, policy RetryPolicy) error {
	off := 0
	for off < len(buf) {
		n, err := w.Write(buf[off:])
		off += n
		if err != nil {
			switch err {
			case ErrWouldBlock:
				if policy.wait() {
					continue
				}
				return err
			case ErrMore:
				continue
			default:
				return err
			}
		}
		if n == 0 && err == nil {
			return io.ErrShortWrite
		}
	}
	return nil
}
