// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package udpstream adapts a UDP net.PacketConn into the io.ReadWriter
// shape client.StreamClient and server.ServerProcessor expect, buffering
// exactly one datagram per logical read and deferring writes until Flush,
// so one rpdo packet maps to exactly one UDP datagram.
//
// Callers must construct their client.StreamClient/server.ServerProcessor
// with WithAlwaysFlush(true) over a Stream: without it, a payload at or
// below the zero-copy threshold would never trigger Flush and its
// datagram would never be sent.
package udpstream

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
)

// MaxPacketSize is the largest UDP datagram this adapter will read or send.
// rpdo payloads must fit within one datagram; there is no reassembly.
const MaxPacketSize = 16384

// Stream adapts conn (already bound) into an io.ReadWriter that reads one
// whole datagram per refill and buffers writes until Flush. It is not safe
// for concurrent use by multiple goroutines.
type Stream struct {
	conn   net.PacketConn
	peer   net.Addr
	mtu    int
	logger *slog.Logger

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer
	scratch  [MaxPacketSize]byte
}

// Option configures a Stream at construction time.
type Option func(*Stream)

// WithMTU caps the size of a single outgoing datagram. Values above
// MaxPacketSize are clamped to MaxPacketSize.
func WithMTU(mtu int) Option {
	return func(s *Stream) { s.mtu = mtu }
}

// WithPeer fixes the remote address every Flush sends to. Without it, the
// peer address from the most recently received datagram is used, matching
// a server that replies to whoever it last heard from.
func WithPeer(peer net.Addr) Option {
	return func(s *Stream) { s.peer = peer }
}

// WithLogger installs the logger used to report peer-address changes and
// other diagnostics. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stream) { s.logger = logger }
}

// New builds a Stream over conn.
func New(conn net.PacketConn, opts ...Option) (*Stream, error) {
	s := &Stream{conn: conn, mtu: MaxPacketSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.mtu > MaxPacketSize {
		s.mtu = MaxPacketSize
	}
	return s, nil
}

// Read implements io.Reader. It refills from one datagram at a time: if the
// internal buffer is empty, it blocks on ReadFrom for exactly one datagram
// before satisfying the read from it.
func (s *Stream) Read(p []byte) (int, error) {
	if s.readBuf.Len() == 0 {
		n, addr, err := s.conn.ReadFrom(s.scratch[:])
		if err != nil {
			return 0, err
		}
		if s.peer != nil && addr.String() != s.peer.String() {
			s.logger.Debug("udpstream: peer address changed", "old", s.peer, "new", addr)
		}
		s.readBuf.Write(s.scratch[:n])
		s.peer = addr
	}
	return s.readBuf.Read(p)
}

// Write implements io.Writer. Bytes are accumulated in an internal buffer
// and not actually sent until Flush, so that a multi-call packet write (the
// zero-copy-path header+frame, then payload, sequence used by client and
// server) ends up as exactly one datagram.
func (s *Stream) Write(p []byte) (int, error) {
	return s.writeBuf.Write(p)
}

type flushWriter interface {
	Flush() error
}

var _ flushWriter = (*Stream)(nil)

// Flush sends the accumulated write buffer as one datagram to the fixed
// peer (WithPeer) or the most recently observed sender, then clears it.
func (s *Stream) Flush() error {
	if s.writeBuf.Len() == 0 {
		return nil
	}
	if s.peer == nil {
		return errors.New("udpstream: no peer address")
	}
	if s.writeBuf.Len() > s.mtu {
		return errors.New("udpstream: datagram exceeds mtu")
	}
	data := s.writeBuf.Bytes()
	_, err := s.conn.WriteTo(data, s.peer)
	s.writeBuf.Reset()
	return err
}

// Peer reports the address writes will be sent to, or nil if none is known
// yet.
func (s *Stream) Peer() net.Addr { return s.peer }

// Close closes the underlying connection.
func (s *Stream) Close() error { return s.conn.Close() }
