// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpdoerr

import "unicode/utf8"

// Table names a wire code table. Two are defined: see CompactTable and
// LegacyTable. New deployments should use CompactTable; LegacyTable exists
// purely to let a peer interoperate with implementations built against the
// older layout without forking the rest of the stack.
type Table uint8

const (
	// CompactTable is the table documented as stable: a dense
	// 0x0000..0x0010 range, one code per Kind.
	CompactTable Table = iota
	// LegacyTable mirrors a historical layout seen in the wild, with
	// Overflow/UnsupportedVersion/IO/InvalidData/Packer pushed into the
	// 0x00F0-0x00FF band and Failed at 0xFFFF.
	LegacyTable
)

var compactCodes = map[Kind]Code{
	KindFailed:             0x0000,
	KindUnknownHost:        0x0001,
	KindInvalidCommand:     0x0002,
	KindInvalidRegister:    0x0003,
	KindInvalidOffset:      0x0004,
	KindInvalidReply:       0x0005,
	KindOverflow:           0x0006,
	KindUnsupportedVersion: 0x0007,
	KindIO:                 0x0008,
	KindInvalidData:        0x0009,
	KindPacker:             0x0010,
}

var legacyCodes = map[Kind]Code{
	KindUnknownHost:        0x0001,
	KindInvalidCommand:     0x0002,
	KindInvalidRegister:    0x0003,
	KindInvalidOffset:      0x0004,
	KindInvalidReply:       0x0005,
	KindOverflow:           0x00FC,
	KindUnsupportedVersion: 0x00F0,
	KindIO:                 0x00F1,
	KindInvalidData:        0x00F2,
	KindPacker:             0x00F3,
	KindFailed:             0xFFFF,
}

func tableFor(t Table) map[Kind]Code {
	if t == LegacyTable {
		return legacyCodes
	}
	return compactCodes
}

func reverseOf(t Table) map[Code]Kind {
	fwd := tableFor(t)
	rev := make(map[Code]Kind, len(fwd))
	for k, c := range fwd {
		rev[c] = k
	}
	return rev
}

// Codec encodes and decodes Error wire payloads (code_code(2,LE) + optional
// UTF-8 message) against one Table.
type Codec struct {
	table Table
	fwd   map[Kind]Code
	rev   map[Code]Kind
}

// NewCodec returns a Codec bound to the given Table.
func NewCodec(t Table) *Codec {
	return &Codec{table: t, fwd: tableFor(t), rev: reverseOf(t)}
}

// Table reports which wire table this codec uses.
func (c *Codec) Table() Table { return c.table }

// CodeOf returns the wire Code for kind under this codec's table.
func (c *Codec) CodeOf(kind Kind) Code {
	if code, ok := c.fwd[kind]; ok {
		return code
	}
	return c.fwd[KindFailed]
}

// Encode appends err's wire payload (code + optional message) to dst and
// returns the extended slice.
func (c *Codec) Encode(dst []byte, err *Error) []byte {
	code := c.CodeOf(err.Kind)
	dst = append(dst, byte(code), byte(code>>8))
	if err.Msg != "" {
		dst = append(dst, err.Msg...)
	}
	return dst
}

// Decode parses an Error wire payload. A payload shorter than 2 bytes
// decodes to a message-less Failed error rather than panicking.
func (c *Codec) Decode(payload []byte) *Error {
	if len(payload) < 2 {
		return &Error{Kind: KindFailed}
	}
	code := Code(uint16(payload[0]) | uint16(payload[1])<<8)
	msg := ""
	if len(payload) > 2 {
		raw := payload[2:]
		if utf8.Valid(raw) {
			msg = string(raw)
		}
	}
	kind, ok := c.rev[code]
	if !ok {
		if msg == "" {
			return Failedf("unknown error code: 0x%04X", uint16(code))
		}
		return &Error{Kind: KindFailed, Code: code, Msg: msg}
	}
	e := &Error{Kind: kind, Code: code, Msg: msg}
	return e
}
