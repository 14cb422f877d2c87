// Package frame reads and writes the fixed-header frames that carry worker
// requests and replies over a stream connection.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic          uint32 = 0x50525657
	Version        uint16 = 1
	FixedHeaderLen uint16 = 32

	FlagIsResponse uint32 = 0x02
	FlagIsError    uint32 = 0x04
)

var (
	ErrShortHeader        = errors.New("frame: short fixed header")
	ErrBadMagic           = errors.New("frame: bad magic")
	ErrUnsupportedVersion = errors.New("frame: unsupported version")
	ErrHeaderLenMismatch  = errors.New("frame: header_len does not match fixed header")
	ErrPayloadTooLarge    = errors.New("frame: payload too large")
)

// Header is the fixed wire header.
type Header struct {
	Magic       uint32
	Version     uint16
	HeaderLen   uint16
	MessageID   uint64
	MessageType uint32
	Flags       uint32
	PayloadLen  uint64
}

func (h Header) IsResponse() bool { return h.Flags&FlagIsResponse != 0 }
func (h Header) IsError() bool    { return h.Flags&FlagIsError != 0 }

// Frame is one complete wire message.
type Frame struct {
	Header  Header
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint64
}

// DefaultLimits allows payloads up to 16MiB; serialized proofs and
// deployment bodies stay well under that.
func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 16 * 1024 * 1024}
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if h.Magic != Magic {
		return Frame{}, fmt.Errorf("%w: 0x%08x", ErrBadMagic, h.Magic)
	}
	if h.Version != Version {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if h.HeaderLen != FixedHeaderLen {
		return Frame{}, ErrHeaderLenMismatch
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}

	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

// WriteFrame fills magic, version, header_len and payload_len before writing
// header and payload in one call.
func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	payloadLen := uint64(len(f.Payload))
	if payloadLen > limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}

	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.HeaderLen = FixedHeaderLen
	h.PayloadLen = payloadLen

	buf := make([]byte, 0, int(FixedHeaderLen)+len(f.Payload))
	buf = append(buf, EncodeHeader(h)...)
	buf = append(buf, f.Payload...)
	_, err := w.Write(buf)
	return err
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.HeaderLen)
	binary.BigEndian.PutUint64(buf[8:16], h.MessageID)
	binary.BigEndian.PutUint32(buf[16:20], h.MessageType)
	binary.BigEndian.PutUint32(buf[20:24], h.Flags)
	binary.BigEndian.PutUint64(buf[24:32], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != int(FixedHeaderLen) {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	return Header{
		Magic:       binary.BigEndian.Uint32(b[0:4]),
		Version:     binary.BigEndian.Uint16(b[4:6]),
		HeaderLen:   binary.BigEndian.Uint16(b[6:8]),
		MessageID:   binary.BigEndian.Uint64(b[8:16]),
		MessageType: binary.BigEndian.Uint32(b[16:20]),
		Flags:       binary.BigEndian.Uint32(b[20:24]),
		PayloadLen:  binary.BigEndian.Uint64(b[24:32]),
	}, nil
}
