package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for one protocol request.
type LogContext struct {
	TraceID     string    // correlation id for one accepted connection
	SpanID      string    // correlation id for one request within that connection
	Opcode      uint16    // protocol opcode being handled
	ClientIDHex string    // client id, hex-rendered
	FileName    string    // file name involved, if any
	ClientIP    string    // remote address of the connection
	StartTime   time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a freshly accepted connection.
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithOpcode returns a copy with the opcode set
func (lc *LogContext) WithOpcode(opcode uint16) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Opcode = opcode
	}
	return clone
}

// WithClient returns a copy with the client id set
func (lc *LogContext) WithClient(clientIDHex string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ClientIDHex = clientIDHex
	}
	return clone
}

// WithFile returns a copy with the file name set
func (lc *LogContext) WithFile(fileName string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.FileName = fileName
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
