package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// Distributed Tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Protocol & Operation
	KeyOpcode    = "opcode"
	KeyResponse  = "response"
	KeyStatusMsg = "status_msg"

	// Client / file identification
	KeyClientID   = "client_id"
	KeyClientIP   = "client_ip"
	KeyFilename   = "filename"
	KeyPath       = "path"
	KeyPacket     = "packet"
	KeyPacketsAll = "total_packets"

	// I/O
	KeyBytesRead    = "bytes_read"
	KeyBytesWritten = "bytes_written"
	KeySize         = "size"
	KeyCRC          = "crc32"

	// Storage backend
	KeyStoreType = "store_type"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// TraceID returns a slog.Attr for the connection's correlation id
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for one request's correlation id
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Opcode returns a slog.Attr for the protocol opcode
func Opcode(code uint16) slog.Attr {
	return slog.Int(KeyOpcode, int(code))
}

// Response returns a slog.Attr for the response code
func Response(code uint16) slog.Attr {
	return slog.Int(KeyResponse, int(code))
}

// StatusMsg returns a slog.Attr for a human-readable status message
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyStatusMsg, msg)
}

// ClientID returns a slog.Attr for a client id already hex-rendered
func ClientID(hex string) slog.Attr {
	return slog.String(KeyClientID, hex)
}

// ClientIDBytes returns a slog.Attr for a raw client id, hex-encoded
func ClientIDBytes(id []byte) slog.Attr {
	return slog.String(KeyClientID, fmt.Sprintf("%x", id))
}

// ClientIP returns a slog.Attr for the remote address of a connection
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// Filename returns a slog.Attr for a file name
func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

// Path returns a slog.Attr for an on-disk path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Packet returns a slog.Attr for a fragment's packet number out of total
func Packet(n, total uint16) slog.Attr {
	return slog.Group("fragment", slog.Int(KeyPacket, int(n)), slog.Int(KeyPacketsAll, int(total)))
}

// BytesRead returns a slog.Attr for actual bytes read
func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

// BytesWritten returns a slog.Attr for actual bytes written
func BytesWritten(n int) slog.Attr {
	return slog.Int(KeyBytesWritten, n)
}

// Size returns a slog.Attr for a byte size
func Size(s uint64) slog.Attr {
	return slog.Uint64(KeySize, s)
}

// CRC returns a slog.Attr for a CRC-32 checksum
func CRC(crc uint32) slog.Attr {
	return slog.Uint64(KeyCRC, uint64(crc))
}

// StoreType returns a slog.Attr for the active persistent-state backend
func StoreType(t string) slog.Attr {
	return slog.String(KeyStoreType, t)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
