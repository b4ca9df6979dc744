package wire

import "bytes"

// decodeField truncates a fixed-width zero-padded byte block at the first
// zero byte and returns the remainder decoded as UTF-8.
func decodeField(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// encodeField writes s into a zero-padded block of exactly size bytes,
// truncating s if it does not fit (including its terminating zero byte).
func encodeField(s string, size int) []byte {
	buf := make([]byte, size)
	n := copy(buf, s)
	if n == size {
		// No room for the implicit terminator; decodeField will read the
		// full block as the name. Truncate by one byte so a zero
		// terminator always fits, matching the "up to 254 bytes plus one
		// terminating zero" contract for a 255-byte field.
		buf[size-1] = 0
	}
	return buf
}
