// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package client implements the rpdo stream client: Communicate and its
// Ping/ReadRegister/WriteRegister conveniences, against any io.ReadWriter.
package client

import (
	"errors"
	"io"
	"sync/atomic"

	"code.hybscloud.com/rpdo/comm"
	"code.hybscloud.com/rpdo/rpdoerr"
)

// zeroCopyDefaultThreshold mirrors the server's default: payloads at or
// below this size are copied into one contiguous write; larger payloads are
// written as a second, separate write so large buffers are never copied.
const zeroCopyDefaultThreshold = 4096

// StreamClient issues requests over a single io.ReadWriter and correlates
// replies by frame id. It is not safe for concurrent use by multiple
// goroutines: a stream carries one in-flight request at a time.
type StreamClient struct {
	stream   io.ReadWriter
	targetID uint32
	nextID   atomic.Uint32

	zeroCopyThreshold int
	alwaysFlush       bool
	policy            comm.RetryPolicy
	codec             *rpdoerr.Codec

	dataBuf []byte
}

// Option configures a StreamClient at construction time.
type Option func(*StreamClient)

// WithZeroCopyThreshold sets the payload size above which Communicate
// writes the payload as its own write (avoiding a copy into an internal
// buffer) instead of concatenating it with the header+frame.
func WithZeroCopyThreshold(n int) Option {
	return func(c *StreamClient) { c.zeroCopyThreshold = n }
}

// WithAlwaysFlush forces a flush (for a stream that implements an
// interface with a Flush method upstream of io.Writer, e.g. a buffered
// writer) after every write, not just zero-copy writes.
func WithAlwaysFlush(always bool) Option {
	return func(c *StreamClient) { c.alwaysFlush = always }
}

// WithRetryPolicy sets how the client reacts to comm.ErrWouldBlock from a
// non-blocking stream. The default is comm.Yield.
func WithRetryPolicy(policy comm.RetryPolicy) Option {
	return func(c *StreamClient) { c.policy = policy }
}

// WithCodec selects the wire error-code table used to decode Error replies.
// The default is rpdoerr.CompactTable.
func WithCodec(codec *rpdoerr.Codec) Option {
	return func(c *StreamClient) { c.codec = codec }
}

// New builds a StreamClient that addresses requests to targetID over stream.
func New(stream io.ReadWriter, targetID uint32, opts ...Option) *StreamClient {
	c := &StreamClient{
		stream:            stream,
		targetID:          targetID,
		zeroCopyThreshold: zeroCopyDefaultThreshold,
		policy:            comm.Yield,
		codec:             rpdoerr.NewCodec(rpdoerr.CompactTable),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type flusher interface {
	Flush() error
}

func (c *StreamClient) flush() error {
	if f, ok := c.stream.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// Communicate sends one request frame carrying data under command, and —
// if waitReply is true — blocks for the correlated reply and returns its
// payload. Passing waitReply=false is for WriteSharedContextUnconfirmed and
// similar fire-and-forget commands; it returns (nil, nil) immediately after
// the write.
func (c *StreamClient) Communicate(command comm.Command, data []byte, waitReply bool) ([]byte, error) {
	id := c.nextID.Add(1) - 1
	frame := comm.Frame{Source: 0, Target: c.targetID, ID: id, InReplyTo: 0, Command: command}
	pkt := comm.NewPacket(frame, len(data))

	if len(data) > c.zeroCopyThreshold {
		// Zero-copy path: write header+frame and the payload as two
		// separate writes, never copying the (large) payload.
		if err := pkt.WriteTo(c.stream, c.policy); err != nil {
			return nil, wrapIOErr(err)
		}
		if err := comm.WriteFull(c.stream, data, c.policy); err != nil {
			return nil, wrapIOErr(err)
		}
	} else {
		// Amortized path: concatenate header+frame+payload into one
		// buffer and perform a single write, trading a small payload
		// copy for one fewer syscall.
		buf, err := pkt.AppendHeaderFrame(make([]byte, 0, comm.FrameSize+len(data)))
		if err != nil {
			return nil, wrapIOErr(err)
		}
		buf = append(buf, data...)
		if err := comm.WriteFull(c.stream, buf, c.policy); err != nil {
			return nil, wrapIOErr(err)
		}
	}
	if c.alwaysFlush || len(data) > c.zeroCopyThreshold {
		if err := c.flush(); err != nil {
			return nil, wrapIOErr(err)
		}
	}

	if !waitReply {
		return nil, nil
	}

	reply, err := comm.ReadPacket(c.stream, c.policy)
	if err != nil {
		return nil, wrapIOErr(err)
	}
	if cap(c.dataBuf) < reply.DataLen {
		c.dataBuf = make([]byte, reply.DataLen)
	}
	payload := c.dataBuf[:reply.DataLen]
	if reply.DataLen > 0 {
		if err := comm.ReadFull(c.stream, payload, c.policy); err != nil {
			return nil, wrapIOErr(err)
		}
	}

	if reply.Frame.Target != 0 || reply.Frame.InReplyTo != id {
		return nil, rpdoerr.ErrInvalidReply
	}
	if reply.Frame.Command == comm.Error {
		return nil, c.codec.Decode(payload)
	}

	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// Ping sends a Ping request and waits for its (empty) reply.
func (c *StreamClient) Ping() error {
	_, err := c.Communicate(comm.Ping, nil, true)
	return err
}

// ReadRegister reads size bytes at offset from register. size == 0 reads to
// the end of the register.
func (c *StreamClient) ReadRegister(register, offset, size uint32) ([]byte, error) {
	hdr := comm.EncodeRawDataHeader(nil, comm.RawDataHeader{Register: register, Offset: offset, Size: size})
	v, err := c.Communicate(comm.ReadSharedContext, hdr, true)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, rpdoerr.ErrInvalidReply
	}
	return v, nil
}

// WriteRegister writes data at offset into register and waits for
// confirmation.
func (c *StreamClient) WriteRegister(register, offset uint32, data []byte) error {
	hdr := comm.EncodeRawDataHeader(make([]byte, 0, comm.RawDataHeaderSize+len(data)), comm.RawDataHeader{
		Register: register, Offset: offset, Size: uint32(len(data)),
	})
	hdr = append(hdr, data...)
	_, err := c.Communicate(comm.WriteSharedContext, hdr, true)
	return err
}

// WriteRegisterUnconfirmed writes data at offset into register without
// waiting for a reply. On success the host sends nothing back, so the
// stream stays in sync for the next request; on failure the host still
// sends an Error reply (see host.Host.ProcessFrame), which this call does
// not read — a caller that cannot tolerate that stray reply arriving ahead
// of its next response should use WriteRegister instead.
func (c *StreamClient) WriteRegisterUnconfirmed(register, offset uint32, data []byte) error {
	hdr := comm.EncodeRawDataHeader(make([]byte, 0, comm.RawDataHeaderSize+len(data)), comm.RawDataHeader{
		Register: register, Offset: offset, Size: uint32(len(data)),
	})
	hdr = append(hdr, data...)
	_, err := c.Communicate(comm.WriteSharedContextUnconfirmed, hdr, false)
	return err
}

// IsInvalidReply reports whether err is the reply-correlation-mismatch
// error InvalidReply.
func IsInvalidReply(err error) bool {
	return errors.Is(err, rpdoerr.ErrInvalidReply)
}

// wrapIOErr passes a *rpdoerr.Error through unchanged (so, e.g.,
// ErrUnsupportedVersion from ReadPacket keeps its Kind) and otherwise wraps
// err as Kind IO.
func wrapIOErr(err error) error {
	var re *rpdoerr.Error
	if errors.As(err, &re) {
		return re
	}
	return rpdoerr.IOError(err)
}
