// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package comm

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	"code.hybscloud.com/rpdo/rpdoerr"
)

const (
	magic0 = 'R'
	magic1 = 'D'

	// Version is the only wire version this package understands.
	Version byte = 0x00

	packetHeaderSize = 7

	// frameFieldsSize is the byte count of Frame's five documented fields
	// (source, target, id, in_reply_to, command): 4+4+4+4+2.
	frameFieldsSize = 18

	// FrameSize is the wire size of the frame region: 18 field bytes plus
	// one trailing reserved byte that is always zero on write and ignored
	// on read. Peers that omit this byte will not interoperate.
	FrameSize = frameFieldsSize + 1

	// RawDataHeaderSize is the wire size of RawDataHeader.
	RawDataHeaderSize = 12
)

// Frame is the fixed addressing+correlation header every packet carries.
type Frame struct {
	Source    uint32
	Target    uint32
	ID        uint32
	InReplyTo uint32
	Command   Command
}

// ToReply builds the reply frame for f: source/target are swapped, id is
// the caller-supplied next frame id, in_reply_to is f.ID, and command is
// Error or Reply depending on isError.
func (f Frame) ToReply(id uint32, isError bool) Frame {
	cmd := Reply
	if isError {
		cmd = Error
	}
	return Frame{
		Source:    f.Target,
		Target:    f.Source,
		ID:        id,
		InReplyTo: f.ID,
		Command:   cmd,
	}
}

// PacketHeader is the 7-byte envelope preceding every Frame.
type PacketHeader struct {
	Version byte
	Size    uint32 // length in bytes of Frame + payload, i.e. >= FrameSize
}

// RawDataHeader describes a register access: which register, at what byte
// offset, and how many bytes (0 on a read means "to the end of the register").
type RawDataHeader struct {
	Register uint32
	Offset   uint32
	Size     uint32
}

// Packet pairs a parsed Frame with the payload length declared by its
// PacketHeader; the payload bytes themselves are read separately by the
// caller once this much is known, so the caller can size its buffer exactly.
type Packet struct {
	Frame   Frame
	DataLen int
}

// NewPacket builds a Packet for a frame whose payload is dataLen bytes long.
func NewPacket(frame Frame, dataLen int) Packet {
	return Packet{Frame: frame, DataLen: dataLen}
}

var headerFrameBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, packetHeaderSize+FrameSize)
		return &b
	},
}

// WriteTo writes this packet's header+frame (but not its payload) to w as a
// single write. The caller is responsible for writing DataLen bytes of
// payload afterward (and flushing, if w buffers). This is the zero-copy
// path: the payload itself is never copied into an intermediate buffer.
func (p Packet) WriteTo(w io.Writer, policy RetryPolicy) error {
	bp := headerFrameBufPool.Get().(*[]byte)
	buf := (*bp)[:packetHeaderSize+FrameSize]
	defer headerFrameBufPool.Put(bp)

	if err := p.encodeHeaderFrame(buf); err != nil {
		return err
	}
	return writeFull(w, buf, policy)
}

// AppendHeaderFrame appends this packet's 26-byte header+frame encoding to
// dst and returns the extended slice. Callers on the amortized write path
// use this to build one contiguous header+frame+payload buffer for a
// single write, trading a payload copy for one fewer syscall.
func (p Packet) AppendHeaderFrame(dst []byte) ([]byte, error) {
	start := len(dst)
	dst = append(dst, make([]byte, packetHeaderSize+FrameSize)...)
	if err := p.encodeHeaderFrame(dst[start:]); err != nil {
		return dst[:start], err
	}
	return dst, nil
}

func (p Packet) encodeHeaderFrame(buf []byte) error {
	if p.DataLen < 0 || uint64(p.DataLen)+uint64(FrameSize) > math.MaxUint32 {
		return rpdoerr.ErrOverflow
	}
	buf[0] = magic0
	buf[1] = magic1
	buf[2] = Version
	binary.LittleEndian.PutUint32(buf[3:7], uint32(p.DataLen)+FrameSize)
	encodeFrame(buf[packetHeaderSize:], p.Frame)
	return nil
}

// ReadPacket reads a PacketHeader and Frame from r (7 + 19 bytes) and
// returns a Packet carrying the declared payload length. The payload itself
// is not read; call ReadFull(r, buf[:pkt.DataLen]) (or equivalent) next.
func ReadPacket(r io.Reader, policy RetryPolicy) (Packet, error) {
	var hdr [packetHeaderSize]byte
	if err := readFull(r, hdr[:], policy); err != nil {
		return Packet{}, err
	}
	if hdr[0] != magic0 || hdr[1] != magic1 {
		return Packet{}, rpdoerr.ErrInvalidData
	}
	if hdr[2] != Version {
		return Packet{}, rpdoerr.ErrUnsupportedVersion
	}
	size := binary.LittleEndian.Uint32(hdr[3:7])
	if size < FrameSize {
		return Packet{}, rpdoerr.ErrInvalidData
	}

	var frameBuf [FrameSize]byte
	if err := readFull(r, frameBuf[:], policy); err != nil {
		return Packet{}, err
	}
	frame := decodeFrame(frameBuf[:])

	return Packet{Frame: frame, DataLen: int(size - FrameSize)}, nil
}

// ReadFull reads exactly len(buf) payload bytes for a packet previously
// returned by ReadPacket.
func ReadFull(r io.Reader, buf []byte, policy RetryPolicy) error {
	return readFull(r, buf, policy)
}

// WriteFull writes all of buf (typically a packet's payload) to w.
func WriteFull(w io.Writer, buf []byte, policy RetryPolicy) error {
	return writeFull(w, buf, policy)
}

func encodeFrame(dst []byte, f Frame) {
	binary.LittleEndian.PutUint32(dst[0:4], f.Source)
	binary.LittleEndian.PutUint32(dst[4:8], f.Target)
	binary.LittleEndian.PutUint32(dst[8:12], f.ID)
	binary.LittleEndian.PutUint32(dst[12:16], f.InReplyTo)
	binary.LittleEndian.PutUint16(dst[16:18], uint16(f.Command))
	dst[18] = 0 // reserved, always zero on write
}

func decodeFrame(src []byte) Frame {
	return Frame{
		Source:    binary.LittleEndian.Uint32(src[0:4]),
		Target:    binary.LittleEndian.Uint32(src[4:8]),
		ID:        binary.LittleEndian.Uint32(src[8:12]),
		InReplyTo: binary.LittleEndian.Uint32(src[12:16]),
		Command:   Command(binary.LittleEndian.Uint16(src[16:18])),
		// src[18] (reserved) is intentionally ignored on read.
	}
}

// EncodeRawDataHeader appends h's 12-byte wire encoding to dst.
func EncodeRawDataHeader(dst []byte, h RawDataHeader) []byte {
	var b [RawDataHeaderSize]byte
	binary.LittleEndian.PutUint32(b[0:4], h.Register)
	binary.LittleEndian.PutUint32(b[4:8], h.Offset)
	binary.LittleEndian.PutUint32(b[8:12], h.Size)
	return append(dst, b[:]...)
}

// DecodeRawDataHeader parses a RawDataHeader from the first 12 bytes of src.
// A header whose offset+size cannot be represented without overflowing a
// uint32 is a malformed encoding (Packer), distinct from a buffer simply too
// short to hold one (InvalidData).
func DecodeRawDataHeader(src []byte) (RawDataHeader, error) {
	if len(src) < RawDataHeaderSize {
		return RawDataHeader{}, rpdoerr.ErrInvalidData
	}
	h := RawDataHeader{
		Register: binary.LittleEndian.Uint32(src[0:4]),
		Offset:   binary.LittleEndian.Uint32(src[4:8]),
		Size:     binary.LittleEndian.Uint32(src[8:12]),
	}
	if uint64(h.Offset)+uint64(h.Size) > math.MaxUint32 {
		return RawDataHeader{}, rpdoerr.PackerError(fmt.Errorf("raw data header offset %d + size %d overflows uint32", h.Offset, h.Size))
	}
	return h, nil
}
