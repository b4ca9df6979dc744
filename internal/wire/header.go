// Package wire implements the byte-exact little-endian codec for request and
// response headers and per-opcode payloads. It depends only on the protocol
// package's constants; it knows nothing of the dispatcher, the store, or the
// network.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/gharra/filed/internal/protocol"
)

// RequestHeader is the fixed 23-byte frame every request begins with.
type RequestHeader struct {
	ClientID    [protocol.ClientIDSize]byte
	Version     uint8
	Code        uint16
	PayloadSize uint32
}

// DecodeRequestHeader parses the fixed-size request header. buf must be
// exactly protocol.RequestHeaderSize bytes.
func DecodeRequestHeader(buf []byte) (RequestHeader, error) {
	var h RequestHeader
	if len(buf) != protocol.RequestHeaderSize {
		return h, fmt.Errorf("wire: request header must be %d bytes, got %d", protocol.RequestHeaderSize, len(buf))
	}
	copy(h.ClientID[:], buf[0:16])
	h.Version = buf[16]
	h.Code = binary.LittleEndian.Uint16(buf[17:19])
	h.PayloadSize = binary.LittleEndian.Uint32(buf[19:23])
	return h, nil
}

// Encode renders the header back to its 23-byte wire form.
func (h RequestHeader) Encode() []byte {
	buf := make([]byte, protocol.RequestHeaderSize)
	copy(buf[0:16], h.ClientID[:])
	buf[16] = h.Version
	binary.LittleEndian.PutUint16(buf[17:19], h.Code)
	binary.LittleEndian.PutUint32(buf[19:23], h.PayloadSize)
	return buf
}

// ResponseHeader is the fixed 7-byte frame every response begins with.
type ResponseHeader struct {
	Version     uint8
	Code        uint16
	PayloadSize uint32
}

// Encode renders the response header to its 7-byte wire form.
func (h ResponseHeader) Encode() []byte {
	buf := make([]byte, protocol.ResponseHeaderSize)
	buf[0] = h.Version
	binary.LittleEndian.PutUint16(buf[1:3], h.Code)
	binary.LittleEndian.PutUint32(buf[3:7], h.PayloadSize)
	return buf
}

// DecodeResponseHeader parses a 7-byte response header. Used by tests and by
// any client-side tooling exercising the wire format; the server itself only
// encodes responses.
func DecodeResponseHeader(buf []byte) (ResponseHeader, error) {
	var h ResponseHeader
	if len(buf) != protocol.ResponseHeaderSize {
		return h, fmt.Errorf("wire: response header must be %d bytes, got %d", protocol.ResponseHeaderSize, len(buf))
	}
	h.Version = buf[0]
	h.Code = binary.LittleEndian.Uint16(buf[1:3])
	h.PayloadSize = binary.LittleEndian.Uint32(buf[3:7])
	return h, nil
}
