// Package server implements the connection server (component F): a TCP
// accept loop handing each connection to its own goroutine, where requests
// are read and dispatched one at a time until the peer disconnects or a
// transport error occurs.
//
// Built around a Serve/Stop pair over a net.Listener, a sync.WaitGroup
// tracking in-flight connection goroutines, and a shutdown channel closed
// exactly once via sync.Once. This server is TCP-only (no UDP side) and
// sets no fixed per-request read deadline, per this protocol's concurrency
// model.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gharra/filed/internal/dispatcher"
	"github.com/gharra/filed/internal/logger"
	"github.com/gharra/filed/internal/metrics"
	"github.com/gharra/filed/internal/protocol"
	"github.com/gharra/filed/internal/wire"
	"github.com/gharra/filed/pkg/bufpool"
)

// Server accepts TCP connections and drives each one through the
// dispatcher, one request at a time, until the connection closes.
type Server struct {
	addr            string
	dispatcher      *dispatcher.Dispatcher
	maxFragmentSize int
	pool            *bufpool.Pool
	metrics         *metrics.Metrics

	mu           sync.Mutex
	listener     net.Listener
	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// New constructs a Server that will listen on addr and route requests
// through d. maxFragmentSize bounds the payload_size the server will read
// for a single request; a declared size larger than this closes the
// connection rather than allocating an attacker-controlled buffer. m may
// be nil to disable metrics collection.
func New(addr string, d *dispatcher.Dispatcher, maxFragmentSize int, m *metrics.Metrics) *Server {
	return &Server{
		addr:            addr,
		dispatcher:      d,
		maxFragmentSize: maxFragmentSize,
		pool:            bufpool.NewPool(nil),
		metrics:         m,
		shutdown:        make(chan struct{}),
	}
}

// Serve binds the listener and blocks, accepting and serving connections,
// until the context is cancelled or Stop is called.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	logger.Info("connection server listening", slog.String("address", listener.Addr().String()))
	s.metrics.SetReady(true)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop(context.Background())
		case <-s.shutdown:
		}
	}()

	s.acceptLoop(ctx)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				logger.Debug("accept error", logger.Err(err))
				return
			}
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConn(ctx, c)
		}(conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	lc := logger.NewLogContext(conn.RemoteAddr().String())
	lc.TraceID = newCorrelationID()
	connCtx := logger.WithContext(ctx, lc)
	logger.InfoCtx(connCtx, "connection accepted")
	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()
	defer logger.InfoCtx(connCtx, "connection closed")

	for {
		header, ok := s.readHeader(connCtx, conn)
		if !ok {
			return
		}

		reqLC := lc.WithOpcode(header.Code).WithClient(hex.EncodeToString(header.ClientID[:]))
		reqLC.SpanID = newCorrelationID()
		reqLC.StartTime = time.Now()
		reqCtx := logger.WithContext(ctx, reqLC)

		if header.PayloadSize > uint32(s.maxFragmentSize) {
			logger.WarnCtx(reqCtx, "payload exceeds configured maximum, closing connection",
				slog.Uint64("payload_size", uint64(header.PayloadSize)))
			return
		}

		payload, ok := s.readPayload(reqCtx, conn, header.PayloadSize)
		if !ok {
			return
		}
		s.metrics.RecordBytesReceived(len(payload))

		resp, err := s.dispatcher.Handle(reqCtx, header, payload)
		s.pool.Put(payload)
		if err != nil {
			logger.ErrorCtx(reqCtx, "dispatcher error, closing connection", logger.Err(err))
			return
		}
		if resp == nil {
			continue
		}
		s.metrics.RecordRequest(header.Code, resp.Code)

		if _, err := conn.Write(resp.Bytes()); err != nil {
			logger.DebugCtx(reqCtx, "write response error", logger.Err(err))
			return
		}
		logger.InfoCtx(reqCtx, "request handled", logger.Response(resp.Code),
			logger.DurationMs(reqLC.DurationMs()))
	}
}

func (s *Server) readHeader(ctx context.Context, conn net.Conn) (wire.RequestHeader, bool) {
	buf := s.pool.Get(protocol.RequestHeaderSize)
	defer s.pool.Put(buf)

	if _, err := io.ReadFull(conn, buf); err != nil {
		if !errors.Is(err, io.EOF) {
			logger.DebugCtx(ctx, "read header error", logger.Err(err))
		}
		return wire.RequestHeader{}, false
	}

	header, err := wire.DecodeRequestHeader(buf)
	if err != nil {
		logger.DebugCtx(ctx, "malformed header", logger.Err(err))
		return wire.RequestHeader{}, false
	}
	return header, true
}

func (s *Server) readPayload(ctx context.Context, conn net.Conn, size uint32) ([]byte, bool) {
	buf := s.pool.Get(int(size))
	if _, err := io.ReadFull(conn, buf); err != nil {
		logger.DebugCtx(ctx, "read payload error", logger.Err(err))
		s.pool.Put(buf)
		return nil, false
	}
	return buf, true
}

// Stop closes the listener and waits, bounded by ctx, for every connection
// goroutine to return. It does not close open connections, so each one ends
// only when its peer disconnects or a transport error occurs.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.metrics.SetReady(false)
		close(s.shutdown)
		s.mu.Lock()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the bound listener address, or empty if not yet listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func newCorrelationID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(b[:])
}
