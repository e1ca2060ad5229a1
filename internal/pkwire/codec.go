package pkwire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNeedMore indicates the buffer does not yet hold a complete frame.
// Decode never consumes input when it returns ErrNeedMore.
var ErrNeedMore = errors.New("pkwire: need more bytes")

// ErrMalformed indicates the buffer cannot be decoded as a valid frame:
// bad version, bad header length, an implausible length field, a size
// mismatch between the declared length and the payload, or an
// unrecognized type code.
var ErrMalformed = errors.New("pkwire: malformed frame")

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformed, reason)
}

// Encode renders msg as a complete frame. It is total for every Message
// implementation in this package; passing an unrecognized type is a
// programmer error and panics, since Message is a closed interface within
// this package.
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case OpenPortRequest:
		return encodeOpenPortRequest(m), nil
	case OpenPortResponse:
		return encodeOpenPortResponse(m), nil
	case ClosePortRequest:
		return encodeClosePortRequest(m), nil
	case ClosePortResponse:
		return encodeClosePortResponse(m), nil
	case SendMessage:
		return encodeDataMessage(TypeSendMessage, m.Source, m.Destination, m.Payload)
	case DeliverMessage:
		return encodeDataMessage(TypeDeliverMessage, m.Source, m.Destination, m.Payload)
	case ReservedFrame:
		return encodeReservedFrame(m), nil
	case Reboot:
		return encodeEmpty(TypeReboot), nil
	case Shutdown:
		return encodeEmpty(TypeShutdown), nil
	default:
		panic(fmt.Sprintf("pkwire: Encode: unhandled message type %T", msg))
	}
}

// Decode attempts to parse one frame from the front of buf. It returns:
//
//   - (msg, n, nil) when a complete, well-formed frame was decoded; n is
//     the number of bytes consumed (always equal to the frame's Length).
//   - (nil, 0, ErrNeedMore) when buf does not yet hold a complete frame.
//   - (nil, 0, err) wrapping ErrMalformed when the bytes present cannot
//     ever decode to a valid frame, regardless of what follows.
//
// Decode never consumes bytes on ErrNeedMore.
func Decode(buf []byte) (Message, int, error) {
	if len(buf) < HeaderLength {
		return nil, 0, ErrNeedMore
	}

	h := peekHeader(buf)
	if h.Version != Version {
		return nil, 0, malformed(fmt.Sprintf("unsupported version %d", h.Version))
	}
	if h.HeaderLength != HeaderLength {
		return nil, 0, malformed(fmt.Sprintf("unsupported header_length %d", h.HeaderLength))
	}
	if h.Length < HeaderLength {
		return nil, 0, malformed(fmt.Sprintf("length %d shorter than header", h.Length))
	}
	if len(buf) < int(h.Length) {
		return nil, 0, ErrNeedMore
	}
	frame := buf[:h.Length]

	msg, err := decodeBody(h, frame)
	if err != nil {
		return nil, 0, err
	}
	return msg, int(h.Length), nil
}

func decodeBody(h Header, frame []byte) (Message, error) {
	switch h.Type {
	case TypeOpenPortRequest:
		return decodeOpenPortRequest(frame)
	case TypeOpenPortResponse:
		return decodeOpenPortResponse(frame)
	case TypeClosePortRequest:
		return decodeClosePortRequest(frame)
	case TypeClosePortResponse:
		return decodeClosePortResponse(frame)
	case TypeSendMessage:
		return decodeDataMessage[SendMessage](frame)
	case TypeDeliverMessage:
		return decodeDataMessage[DeliverMessage](frame)
	case TypeSendChunk, TypeDeliverChunk:
		// Reserved for streaming; carried opaquely rather than rejected so
		// a peer speaking a future revision doesn't get disconnected.
		body := make([]byte, len(frame)-HeaderLength)
		copy(body, frame[HeaderLength:])
		return ReservedFrame{Kind: h.Type, Body: body}, nil
	case TypeReboot:
		if len(frame) != HeaderLength {
			return nil, malformed("Reboot carries a non-empty payload")
		}
		return Reboot{}, nil
	case TypeShutdown:
		if len(frame) != HeaderLength {
			return nil, malformed("Shutdown carries a non-empty payload")
		}
		return Shutdown{}, nil
	default:
		return nil, malformed(fmt.Sprintf("unknown type %d", h.Type))
	}
}

// --- fixed-shape request/response messages ---
//
// Layout shared by OpenPortRequest/ClosePortRequest:
//
//	request_id:u32 @8 | pad | port:u64 @16   (length 24)
//
// Layout shared by OpenPortResponse/ClosePortResponse:
//
//	request_id:u32 @8 | result:u8 @12 | pad | port:u64 @16   (length 24)

const requestResponseLength = 24

func encodeOpenPortRequest(m OpenPortRequest) []byte {
	buf := make([]byte, requestResponseLength)
	putHeader(buf, TypeOpenPortRequest, requestResponseLength)
	binary.BigEndian.PutUint32(buf[8:12], m.RequestID)
	binary.BigEndian.PutUint64(buf[16:24], m.RequestedPort)
	return buf
}

func decodeOpenPortRequest(frame []byte) (Message, error) {
	if len(frame) != requestResponseLength {
		return nil, malformed("OpenPortRequest has wrong length")
	}
	return OpenPortRequest{
		RequestID:     binary.BigEndian.Uint32(frame[8:12]),
		RequestedPort: binary.BigEndian.Uint64(frame[16:24]),
	}, nil
}

func encodeClosePortRequest(m ClosePortRequest) []byte {
	buf := make([]byte, requestResponseLength)
	putHeader(buf, TypeClosePortRequest, requestResponseLength)
	binary.BigEndian.PutUint32(buf[8:12], m.RequestID)
	binary.BigEndian.PutUint64(buf[16:24], m.Port)
	return buf
}

func decodeClosePortRequest(frame []byte) (Message, error) {
	if len(frame) != requestResponseLength {
		return nil, malformed("ClosePortRequest has wrong length")
	}
	return ClosePortRequest{
		RequestID: binary.BigEndian.Uint32(frame[8:12]),
		Port:      binary.BigEndian.Uint64(frame[16:24]),
	}, nil
}

func encodeOpenPortResponse(m OpenPortResponse) []byte {
	buf := make([]byte, requestResponseLength)
	putHeader(buf, TypeOpenPortResponse, requestResponseLength)
	binary.BigEndian.PutUint32(buf[8:12], m.RequestID)
	buf[12] = m.Result
	binary.BigEndian.PutUint64(buf[16:24], m.Port)
	return buf
}

func decodeOpenPortResponse(frame []byte) (Message, error) {
	if len(frame) != requestResponseLength {
		return nil, malformed("OpenPortResponse has wrong length")
	}
	return OpenPortResponse{
		RequestID: binary.BigEndian.Uint32(frame[8:12]),
		Result:    frame[12],
		Port:      binary.BigEndian.Uint64(frame[16:24]),
	}, nil
}

func encodeClosePortResponse(m ClosePortResponse) []byte {
	buf := make([]byte, requestResponseLength)
	putHeader(buf, TypeClosePortResponse, requestResponseLength)
	binary.BigEndian.PutUint32(buf[8:12], m.RequestID)
	buf[12] = m.Result
	binary.BigEndian.PutUint64(buf[16:24], m.Port)
	return buf
}

func decodeClosePortResponse(frame []byte) (Message, error) {
	if len(frame) != requestResponseLength {
		return nil, malformed("ClosePortResponse has wrong length")
	}
	return ClosePortResponse{
		RequestID: binary.BigEndian.Uint32(frame[8:12]),
		Result:    frame[12],
		Port:      binary.BigEndian.Uint64(frame[16:24]),
	}, nil
}

func encodeEmpty(typ Type) []byte {
	buf := make([]byte, HeaderLength)
	putHeader(buf, typ, HeaderLength)
	return buf
}

func encodeReservedFrame(m ReservedFrame) []byte {
	buf := make([]byte, HeaderLength+len(m.Body))
	putHeader(buf, m.Kind, uint32(HeaderLength+len(m.Body)))
	copy(buf[HeaderLength:], m.Body)
	return buf
}

// --- SendMessage / DeliverMessage ---
//
//	source:u64 @8 | destination:u64 @16 | payload_length:u32 @24 | payload @28, padded to 4

const dataMessageHeaderLength = 28

func encodeDataMessage(typ Type, source, destination uint64, payload []byte) ([]byte, error) {
	if len(payload) > int(^uint32(0)) {
		return nil, fmt.Errorf("pkwire: payload too large")
	}
	padded := align(len(payload), 4)
	length := dataMessageHeaderLength + padded
	buf := make([]byte, length)
	putHeader(buf, typ, uint32(length))
	binary.BigEndian.PutUint64(buf[8:16], source)
	binary.BigEndian.PutUint64(buf[16:24], destination)
	binary.BigEndian.PutUint32(buf[24:28], uint32(len(payload)))
	copy(buf[28:28+len(payload)], payload)
	return buf, nil
}

// dataMessage is implemented by SendMessage and DeliverMessage so
// decodeDataMessage can construct either from the identical wire shape.
type dataMessage interface {
	SendMessage | DeliverMessage
}

func decodeDataMessage[M dataMessage](frame []byte) (Message, error) {
	if len(frame) < dataMessageHeaderLength {
		return nil, malformed("data message shorter than its fixed header")
	}
	source := binary.BigEndian.Uint64(frame[8:16])
	destination := binary.BigEndian.Uint64(frame[16:24])
	payloadLen := binary.BigEndian.Uint32(frame[24:28])
	padded := align(int(payloadLen), 4)
	if len(frame) != dataMessageHeaderLength+padded {
		return nil, malformed("data message length does not match payload_length")
	}
	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		copy(payload, frame[28:28+payloadLen])
	}

	var zero M
	switch any(zero).(type) {
	case SendMessage:
		return any(SendMessage{Source: source, Destination: destination, Payload: payload}).(Message), nil
	case DeliverMessage:
		return any(DeliverMessage{Source: source, Destination: destination, Payload: payload}).(Message), nil
	default:
		panic("unreachable")
	}
}
