// Package pkwire implements the pK wire protocol: an 8-byte fixed header
// followed by a type-specific, naturally aligned payload.
package pkwire

import "encoding/binary"

// Type identifies a frame's message kind.
type Type uint8

const (
	TypeOpenPortRequest   Type = 1
	TypeOpenPortResponse  Type = 2
	TypeClosePortRequest  Type = 3
	TypeClosePortResponse Type = 4
	TypeSendMessage       Type = 5
	TypeSendChunk         Type = 6 // reserved, unused
	TypeDeliverMessage    Type = 7
	TypeDeliverChunk      Type = 8 // reserved, unused
	TypeReboot            Type = 9
	TypeShutdown          Type = 10
)

func (t Type) String() string {
	switch t {
	case TypeOpenPortRequest:
		return "OpenPortRequest"
	case TypeOpenPortResponse:
		return "OpenPortResponse"
	case TypeClosePortRequest:
		return "ClosePortRequest"
	case TypeClosePortResponse:
		return "ClosePortResponse"
	case TypeSendMessage:
		return "SendMessage"
	case TypeSendChunk:
		return "SendChunk"
	case TypeDeliverMessage:
		return "DeliverMessage"
	case TypeDeliverChunk:
		return "DeliverChunk"
	case TypeReboot:
		return "Reboot"
	case TypeShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Version is the only wire version this codec speaks.
const Version = 1

// HeaderLength is the fixed size of a frame header in bytes.
const HeaderLength = 8

// Header is the 8-byte frame header common to every message on the wire.
//
//	version:u8 | header_length:u8 | type:u8 | reserved:u8 | length:u32
//
// Length counts the entire frame, header included.
type Header struct {
	Version      uint8
	HeaderLength uint8
	Type         Type
	Reserved     uint8
	Length       uint32
}

func putHeader(buf []byte, typ Type, length uint32) {
	buf[0] = Version
	buf[1] = HeaderLength
	buf[2] = byte(typ)
	buf[3] = 0
	binary.BigEndian.PutUint32(buf[4:8], length)
}

// peekHeader parses the first 8 bytes of buf into a Header without
// validating it. Callers must ensure len(buf) >= HeaderLength.
func peekHeader(buf []byte) Header {
	return Header{
		Version:      buf[0],
		HeaderLength: buf[1],
		Type:         Type(buf[2]),
		Reserved:     buf[3],
		Length:       binary.BigEndian.Uint32(buf[4:8]),
	}
}

// align rounds offset up to the next multiple of width.
func align(offset, width int) int {
	rem := offset % width
	if rem == 0 {
		return offset
	}
	return offset + (width - rem)
}
