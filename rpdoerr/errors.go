// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rpdoerr defines the closed error taxonomy shared by every rpdo
// component: a stable 16-bit wire code per failure kind, and a codec that
// turns an Error payload (as carried by comm.Error frames) into a typed
// *Error and back.
//
// Two code tables exist in the wild (see CompactTable and LegacyTable); a
// Codec picks one so a peer can interoperate with either without changing
// any other part of the stack.
package rpdoerr

import (
	"errors"
	"fmt"
)

// Code is a wire error code, as carried in the first two bytes of an Error
// frame's payload.
type Code uint16

// Kind identifies one member of the closed error taxonomy, independent of
// which wire code table maps it to a Code.
type Kind uint8

const (
	KindFailed Kind = iota
	KindUnknownHost
	KindInvalidCommand
	KindInvalidRegister
	KindInvalidOffset
	KindInvalidReply
	KindOverflow
	KindUnsupportedVersion
	KindIO
	KindInvalidData
	KindPacker
)

func (k Kind) String() string {
	switch k {
	case KindFailed:
		return "failed"
	case KindUnknownHost:
		return "unknown host"
	case KindInvalidCommand:
		return "invalid command"
	case KindInvalidRegister:
		return "invalid register"
	case KindInvalidOffset:
		return "invalid offset"
	case KindInvalidReply:
		return "invalid reply"
	case KindOverflow:
		return "overflow"
	case KindUnsupportedVersion:
		return "unsupported version"
	case KindIO:
		return "i/o"
	case KindInvalidData:
		return "invalid data"
	case KindPacker:
		return "packer"
	default:
		return fmt.Sprintf("unknown kind(%d)", uint8(k))
	}
}

// Error is the concrete error type returned by rpdo components. It carries
// the taxonomy Kind, the wire Code it was (or will be) encoded with, and an
// optional advisory message. Message text is never meant to be inspected by
// callers for control flow — only Kind/Code are stable.
type Error struct {
	Kind Kind
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("rpdo: %s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("rpdo: %s", e.Kind)
}

// Is reports whether target is a sentinel for the same Kind, so that
// errors.Is(err, rpdoerr.ErrUnknownHost) works regardless of message text or
// which code table produced err.
func (e *Error) Is(target error) bool {
	var te *Error
	if !errors.As(target, &te) {
		return false
	}
	return e.Kind == te.Kind
}

// Sentinel values for errors.Is comparisons. None of these carry a message;
// construct a message-bearing *Error with Failedf/IOError/PackerError for that.
var (
	ErrUnknownHost        = &Error{Kind: KindUnknownHost}
	ErrInvalidCommand     = &Error{Kind: KindInvalidCommand}
	ErrInvalidRegister    = &Error{Kind: KindInvalidRegister}
	ErrInvalidOffset      = &Error{Kind: KindInvalidOffset}
	ErrInvalidReply       = &Error{Kind: KindInvalidReply}
	ErrOverflow           = &Error{Kind: KindOverflow}
	ErrUnsupportedVersion = &Error{Kind: KindUnsupportedVersion}
	ErrInvalidData        = &Error{Kind: KindInvalidData}
	ErrPacker             = &Error{Kind: KindPacker}
)

// Failedf builds an open-ended *Error (Kind Failed) with a formatted
// message.
func Failedf(format string, args ...any) *Error {
	return &Error{Kind: KindFailed, Msg: fmt.Sprintf(format, args...)}
}

// IOError wraps a transport-level error as Kind IO, preserving its message.
func IOError(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindIO, Msg: err.Error()}
}

// PackerError wraps a codec/encoding error as Kind Packer.
func PackerError(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindPacker, Msg: err.Error()}
}
