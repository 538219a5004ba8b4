// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package host implements the rpdo dispatcher: the piece that turns one
// decoded request Frame+payload into zero or one reply Frame+payload,
// against a shared Context and an optional custom command handler.
package host

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"code.hybscloud.com/rpdo/comm"
	rpdocontext "code.hybscloud.com/rpdo/context"
	"code.hybscloud.com/rpdo/rpdoerr"
)

// CustomCommandHandler handles any command not natively understood by Host
// (anything other than Reply, Error, Ping, ReadSharedContext,
// WriteSharedContext, WriteSharedContextUnconfirmed). Returning (nil, nil)
// means "no reply"; a non-nil []byte (possibly empty) means "reply with
// this payload"; an error means "reply with an Error frame encoding err."
type CustomCommandHandler interface {
	Handle(ctx context.Context, frame comm.Frame, data []byte) ([]byte, error)
}

// CustomCommandHandlerFunc adapts a plain function to CustomCommandHandler.
type CustomCommandHandlerFunc func(ctx context.Context, frame comm.Frame, data []byte) ([]byte, error)

func (f CustomCommandHandlerFunc) Handle(ctx context.Context, frame comm.Frame, data []byte) ([]byte, error) {
	return f(ctx, frame, data)
}

// Host dispatches decoded frames against a shared Context. A Host value is
// cheap to copy: its mutable state (the frame-id counter) lives behind a
// pointer, so copies share the same counter and the same identity.
type Host struct {
	id      uint32
	inner   *hostInner
	handler CustomCommandHandler
	codec   *rpdoerr.Codec
	logger  *slog.Logger
}

type hostInner struct {
	nextFrameID atomic.Uint32
	ctx         rpdocontext.Context
}

// Option configures a Host at construction time.
type Option func(*Host)

// WithCustomCommandHandler installs the handler invoked for any command
// outside the standard six. Without one, unrecognized commands reply with
// an InvalidCommand error.
func WithCustomCommandHandler(h CustomCommandHandler) Option {
	return func(host *Host) { host.handler = h }
}

// WithCodec selects the wire error-code table used to encode Error replies.
// The default is rpdoerr.CompactTable.
func WithCodec(codec *rpdoerr.Codec) Option {
	return func(host *Host) { host.codec = codec }
}

// WithLogger installs the logger used for swallowed stray Reply/Error
// frames and other diagnostics. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(host *Host) { host.logger = logger }
}

// New builds a Host identified by id, dispatching ReadSharedContext and
// WriteSharedContext(Unconfirmed) requests against ctx.
func New(id uint32, ctx rpdocontext.Context, opts ...Option) *Host {
	h := &Host{
		id:     id,
		inner:  &hostInner{ctx: ctx},
		codec:  rpdoerr.NewCodec(rpdoerr.CompactTable),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ID reports this host's address.
func (h *Host) ID() uint32 { return h.id }

// nextFrame builds a frame addressed from this host to target, correlated
// to inReplyTo, with a freshly allocated id.
func (h *Host) nextFrame(target, inReplyTo uint32, command comm.Command) comm.Frame {
	id := h.inner.nextFrameID.Add(1) - 1
	return comm.Frame{
		Source:    h.id,
		Target:    target,
		ID:        id,
		InReplyTo: inReplyTo,
		Command:   command,
	}
}

func (h *Host) hostIDMatches(frame comm.Frame) bool {
	return frame.Target == h.id || frame.Target == 0
}

func (h *Host) errorFrame(frame comm.Frame, err *rpdoerr.Error) (comm.Frame, []byte) {
	reply := h.nextFrame(frame.Source, frame.ID, comm.Error)
	return reply, h.codec.Encode(nil, err)
}

// ProcessFrame applies the dispatch algorithm to one decoded frame+payload
// and returns the reply frame+payload to send, or (Frame{}, nil, false) if
// no reply is warranted (stray Reply/Error frames, or a successful
// WriteSharedContextUnconfirmed).
func (h *Host) ProcessFrame(ctx context.Context, frame comm.Frame, data []byte) (reply comm.Frame, payload []byte, hasReply bool) {
	switch frame.Command {
	case comm.Reply:
		return comm.Frame{}, nil, false
	case comm.Error:
		h.logger.Debug("host: stray error frame", "host_id", h.id, "from", frame.Source, "err", h.codec.Decode(data))
		return comm.Frame{}, nil, false
	}

	if !h.hostIDMatches(frame) {
		rf, rp := h.errorFrame(frame, rpdoerr.ErrUnknownHost)
		return rf, rp, true
	}

	switch frame.Command {
	case comm.Ping:
		return h.nextFrame(frame.Source, frame.ID, comm.Reply), []byte{}, true

	case comm.ReadSharedContext:
		hdr, err := comm.DecodeRawDataHeader(data)
		if err != nil {
			rf, rp := h.errorFrame(frame, asRpdoError(err))
			return rf, rp, true
		}
		v, gerr := h.inner.ctx.GetBytes(hdr.Register, hdr.Offset, hdr.Size)
		if gerr != nil {
			rf, rp := h.errorFrame(frame, asRpdoError(gerr))
			return rf, rp, true
		}
		return h.nextFrame(frame.Source, frame.ID, comm.Reply), v, true

	case comm.WriteSharedContext, comm.WriteSharedContextUnconfirmed:
		hdr, err := comm.DecodeRawDataHeader(data)
		if err != nil {
			rf, rp := h.errorFrame(frame, asRpdoError(err))
			return rf, rp, true
		}
		raw := data[comm.RawDataHeaderSize:]
		if hdr.Size != uint32(len(raw)) {
			rf, rp := h.errorFrame(frame, rpdoerr.ErrInvalidData)
			return rf, rp, true
		}
		if serr := h.inner.ctx.SetBytes(hdr.Register, hdr.Offset, raw); serr != nil {
			rf, rp := h.errorFrame(frame, asRpdoError(serr))
			return rf, rp, true
		}
		if frame.Command == comm.WriteSharedContext {
			return h.nextFrame(frame.Source, frame.ID, comm.Reply), []byte{}, true
		}
		return comm.Frame{}, nil, false

	default:
		if h.handler == nil {
			rf, rp := h.errorFrame(frame, rpdoerr.ErrInvalidCommand)
			return rf, rp, true
		}
		v, herr := h.handler.Handle(ctx, frame, data)
		if herr != nil {
			rf, rp := h.errorFrame(frame, asRpdoError(herr))
			return rf, rp, true
		}
		if v == nil {
			return comm.Frame{}, nil, false
		}
		return h.nextFrame(frame.Source, frame.ID, comm.Reply), v, true
	}
}

func asRpdoError(err error) *rpdoerr.Error {
	var re *rpdoerr.Error
	if errors.As(err, &re) {
		return re
	}
	return rpdoerr.Failedf("%s", err.Error())
}
