// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wsstream adapts a WebSocket connection into the io.ReadWriter
// shape client.StreamClient and server.ServerProcessor expect. Like
// udpstream, it maps one rpdo packet to exactly one WebSocket message:
// boundaries are preserved by the transport, so callers must construct
// their client/server with WithAlwaysFlush(true). The same 16 KiB MTU
// ceiling udpstream enforces on outgoing datagrams applies here to
// outgoing messages.
package wsstream

import (
	"bytes"
	"errors"
	"log/slog"

	"github.com/gorilla/websocket"
)

// MaxMessageSize is the largest outgoing WebSocket message this adapter
// will send, matching udpstream's MaxPacketSize ceiling.
const MaxMessageSize = 16384

// Stream adapts a *websocket.Conn into an io.ReadWriter that reads one
// whole message per refill and buffers writes until Flush. It is not safe
// for concurrent use by multiple goroutines on either the read or the
// write side (gorilla/websocket itself requires at most one concurrent
// reader and one concurrent writer).
type Stream struct {
	conn   *websocket.Conn
	logger *slog.Logger
	mtu    int

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer
}

// Option configures a Stream at construction time.
type Option func(*Stream)

// WithLogger installs the logger used to report dropped non-binary
// messages. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stream) { s.logger = logger }
}

// WithMTU caps the size of a single outgoing message. Values above
// MaxMessageSize are clamped to MaxMessageSize.
func WithMTU(mtu int) Option {
	return func(s *Stream) { s.mtu = mtu }
}

// New builds a Stream over an already-established WebSocket connection
// (client dial or server upgrade).
func New(conn *websocket.Conn, opts ...Option) *Stream {
	s := &Stream{conn: conn, logger: slog.Default(), mtu: MaxMessageSize}
	for _, opt := range opts {
		opt(s)
	}
	if s.mtu > MaxMessageSize {
		s.mtu = MaxMessageSize
	}
	return s
}

// Read implements io.Reader. If the internal buffer is empty, it blocks for
// exactly one binary WebSocket message before satisfying the read from it.
// Non-binary messages (ping/pong/text/close, surfaced here only as an
// unexpected message type since gorilla handles control frames internally)
// are logged and skipped.
func (s *Stream) Read(p []byte) (int, error) {
	for s.readBuf.Len() == 0 {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if mt != websocket.BinaryMessage {
			s.logger.Debug("wsstream: dropping non-binary message", "message_type", mt)
			continue
		}
		s.readBuf.Write(data)
	}
	return s.readBuf.Read(p)
}

// Write implements io.Writer, accumulating bytes until Flush sends them as
// one binary WebSocket message.
func (s *Stream) Write(p []byte) (int, error) {
	return s.writeBuf.Write(p)
}

// Flush sends the accumulated write buffer as one binary WebSocket message,
// then clears it.
func (s *Stream) Flush() error {
	if s.writeBuf.Len() == 0 {
		return nil
	}
	if s.writeBuf.Len() > s.mtu {
		return errors.New("wsstream: message exceeds mtu")
	}
	err := s.conn.WriteMessage(websocket.BinaryMessage, s.writeBuf.Bytes())
	s.writeBuf.Reset()
	return err
}

// Close closes the underlying WebSocket connection.
func (s *Stream) Close() error { return s.conn.Close() }
