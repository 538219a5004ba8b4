// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package comm implements the rpdo wire protocol: the fixed-layout
// PacketHeader, Frame, and RawDataHeader records, and the composite Packet
// that glues a declared payload length to a parsed Frame.
//
// Wire format (all integers little-endian, no padding beyond what is
// documented below):
//
//	Packet:
//	  PacketHeader (7 B): 'R' 'D' version(1) size(4)
//	  Frame        (19 B): source(4) target(4) id(4) in_reply_to(4) command(2) reserved(1)
//	  Payload      (size - 19 B)
//
// The trailing reserved byte of Frame is always zero on write and ignored on
// read; see FrameSize in wire.go.
package comm

import "fmt"

// Command is the 16-bit operation code carried by every Frame.
type Command uint16

const (
	// Reply carries an optional payload in response to any request.
	Reply Command = 0x0000
	// Error carries a 2-byte error code followed by an optional UTF-8 message.
	Error Command = 0x0001
	// Ping carries no payload and elicits an empty Reply.
	Ping Command = 0x0002
	// ReadSharedContext carries a RawDataHeader describing a register read.
	ReadSharedContext Command = 0x0100
	// WriteSharedContext carries a RawDataHeader plus raw bytes; replies.
	WriteSharedContext Command = 0x0101
	// WriteSharedContextUnconfirmed is WriteSharedContext without a reply on success.
	WriteSharedContextUnconfirmed Command = 0x0102
)

// CustomCommandRangeStart is the conventional first code of the user-defined
// command range. Codes below it that are not one of the standard commands
// above are still dispatched as custom commands; this constant is advisory.
const CustomCommandRangeStart Command = 0x8000

// IsStandard reports whether c is one of the six commands the core
// understands natively (as opposed to one delegated to a custom handler).
func (c Command) IsStandard() bool {
	switch c {
	case Reply, Error, Ping, ReadSharedContext, WriteSharedContext, WriteSharedContextUnconfirmed:
		return true
	default:
		return false
	}
}

func (c Command) String() string {
	switch c {
	case Reply:
		return "Reply"
	case Error:
		return "Error"
	case Ping:
		return "Ping"
	case ReadSharedContext:
		return "ReadSharedContext"
	case WriteSharedContext:
		return "WriteSharedContext"
	case WriteSharedContextUnconfirmed:
		return "WriteSharedContextUnconfirmed"
	default:
		return fmt.Sprintf("Command(0x%04X)", uint16(c))
	}
}
