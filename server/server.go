// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package server implements the rpdo stream server side: reading one
// request packet, dispatching it through a host.Host, and writing back
// whatever reply (if any) the dispatch produces.
package server

import (
	"context"
	"io"
	"log/slog"

	"code.hybscloud.com/rpdo/comm"
	"code.hybscloud.com/rpdo/host"
)

// zeroCopyDefaultThreshold mirrors the client's default.
const zeroCopyDefaultThreshold = 4096

// ServerProcessor serves requests from a single io.ReadWriter against one
// Host. One ProcessNext call processes at most one request; callers
// typically loop ProcessNext (see Serve) in its own goroutine per
// connection.
type ServerProcessor struct {
	host   *host.Host
	stream io.ReadWriter
	logger *slog.Logger

	zeroCopyThreshold int
	alwaysFlush       bool
	policy            comm.RetryPolicy

	dataBuf []byte
}

// Option configures a ServerProcessor at construction time.
type Option func(*ServerProcessor)

// WithZeroCopyThreshold sets the payload size above which a reply is
// written as its own write instead of being copied into an internal
// buffer alongside the header+frame.
func WithZeroCopyThreshold(n int) Option {
	return func(s *ServerProcessor) { s.zeroCopyThreshold = n }
}

// WithAlwaysFlush forces a flush after every reply, not just zero-copy ones.
func WithAlwaysFlush(always bool) Option {
	return func(s *ServerProcessor) { s.alwaysFlush = always }
}

// WithRetryPolicy sets how the processor reacts to comm.ErrWouldBlock from
// a non-blocking stream. The default is comm.Yield.
func WithRetryPolicy(policy comm.RetryPolicy) Option {
	return func(s *ServerProcessor) { s.policy = policy }
}

// WithLogger installs the logger used to report why Serve's loop stopped.
// The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *ServerProcessor) { s.logger = logger }
}

// NewProcessor builds a ServerProcessor that serves h over stream.
func NewProcessor(h *host.Host, stream io.ReadWriter, opts ...Option) *ServerProcessor {
	s := &ServerProcessor{
		host:              h,
		stream:            stream,
		zeroCopyThreshold: zeroCopyDefaultThreshold,
		policy:            comm.Yield,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type flusher interface {
	Flush() error
}

func (s *ServerProcessor) flush() error {
	if f, ok := s.stream.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// ProcessNext reads one request packet, dispatches it, and writes back the
// reply packet if the dispatch produced one. It returns io.EOF when the
// peer has closed the stream cleanly between requests.
func (s *ServerProcessor) ProcessNext(ctx context.Context) error {
	pkt, err := comm.ReadPacket(s.stream, s.policy)
	if err != nil {
		return err
	}
	if cap(s.dataBuf) < pkt.DataLen {
		s.dataBuf = make([]byte, pkt.DataLen)
	}
	data := s.dataBuf[:pkt.DataLen]
	if pkt.DataLen > 0 {
		if err := comm.ReadFull(s.stream, data, s.policy); err != nil {
			return err
		}
	}

	reply, payload, ok := s.host.ProcessFrame(ctx, pkt.Frame, data)
	if !ok {
		return nil
	}

	replyPkt := comm.NewPacket(reply, len(payload))
	if len(payload) > s.zeroCopyThreshold {
		// Zero-copy path: header+frame and payload as separate writes.
		if err := replyPkt.WriteTo(s.stream, s.policy); err != nil {
			return err
		}
		if err := comm.WriteFull(s.stream, payload, s.policy); err != nil {
			return err
		}
	} else {
		// Amortized path: one concatenated write.
		buf, err := replyPkt.AppendHeaderFrame(make([]byte, 0, comm.FrameSize+len(payload)))
		if err != nil {
			return err
		}
		buf = append(buf, payload...)
		if err := comm.WriteFull(s.stream, buf, s.policy); err != nil {
			return err
		}
	}
	if s.alwaysFlush || len(payload) > s.zeroCopyThreshold {
		return s.flush()
	}
	return nil
}

// Serve loops ProcessNext until it returns an error (typically io.EOF when
// the peer closes the connection). errHandler, if non-nil, is invoked for
// any error other than io.EOF before Serve returns. Serve also returns,
// without invoking errHandler, when ctx is done before the next request is
// read; a request already being read is not interrupted by ctx.
func Serve(ctx context.Context, p *ServerProcessor, errHandler func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := p.ProcessNext(ctx); err != nil {
			if err == io.EOF {
				p.logger.Debug("server: connection closed")
			} else {
				p.logger.Debug("server: processing loop stopped", "err", err)
				if errHandler != nil {
					errHandler(err)
				}
			}
			return
		}
	}
}
