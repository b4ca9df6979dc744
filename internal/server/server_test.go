package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gharra/filed/internal/dispatcher"
	"github.com/gharra/filed/internal/filestore"
	"github.com/gharra/filed/internal/protocol"
	"github.com/gharra/filed/internal/server"
	"github.com/gharra/filed/internal/store/memory"
	"github.com/gharra/filed/internal/wire"
)

func startServer(t *testing.T) (*server.Server, func()) {
	t.Helper()
	d := dispatcher.New(memory.New(), filestore.New(t.TempDir()), nil)
	s := server.New("127.0.0.1:0", d, 1<<20, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(ctx)
	}()

	require.Eventually(t, func() bool { return s.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	return s, func() {
		cancel()
		<-done
	}
}

func TestServerRoundTripsRegisterRequest(t *testing.T) {
	s, stop := startServer(t)
	defer stop()

	conn, err := net.DialTimeout("tcp", s.Addr(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	payload := make([]byte, protocol.NameFieldSize)
	copy(payload, "alice")
	header := wire.RequestHeader{Version: protocol.Version, Code: protocol.OpRegister, PayloadSize: uint32(len(payload))}
	_, err = conn.Write(header.Encode())
	require.NoError(t, err)
	_, err = conn.Write(payload)
	require.NoError(t, err)

	respHeaderBuf := make([]byte, protocol.ResponseHeaderSize)
	_, err = readFull(conn, respHeaderBuf)
	require.NoError(t, err)
	respHeader, err := wire.DecodeResponseHeader(respHeaderBuf)
	require.NoError(t, err)
	assert.Equal(t, protocol.RespRegisterSuccess, respHeader.Code)
	assert.Equal(t, uint32(protocol.ClientIDSize), respHeader.PayloadSize)

	idBuf := make([]byte, protocol.ClientIDSize)
	_, err = readFull(conn, idBuf)
	require.NoError(t, err)
}

func TestServerKeepsConnectionOpenOnMalformedFrame(t *testing.T) {
	s, stop := startServer(t)
	defer stop()

	conn, err := net.DialTimeout("tcp", s.Addr(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	header := wire.RequestHeader{Version: protocol.Version, Code: 9999, PayloadSize: 0}
	_, err = conn.Write(header.Encode())
	require.NoError(t, err)

	respHeaderBuf := make([]byte, protocol.ResponseHeaderSize)
	_, err = readFull(conn, respHeaderBuf)
	require.NoError(t, err)
	respHeader, err := wire.DecodeResponseHeader(respHeaderBuf)
	require.NoError(t, err)
	assert.Equal(t, protocol.RespGenericFailure, respHeader.Code)

	// the connection must still be usable for a second, well-formed request
	payload := make([]byte, protocol.NameFieldSize)
	copy(payload, "bob")
	header2 := wire.RequestHeader{Version: protocol.Version, Code: protocol.OpRegister, PayloadSize: uint32(len(payload))}
	_, err = conn.Write(header2.Encode())
	require.NoError(t, err)
	_, err = conn.Write(payload)
	require.NoError(t, err)

	_, err = readFull(conn, respHeaderBuf)
	require.NoError(t, err)
	respHeader2, err := wire.DecodeResponseHeader(respHeaderBuf)
	require.NoError(t, err)
	assert.Equal(t, protocol.RespRegisterSuccess, respHeader2.Code)
}

func TestServerClosesConnectionOnOversizedPayload(t *testing.T) {
	d := dispatcher.New(memory.New(), filestore.New(t.TempDir()), nil)
	s := server.New("127.0.0.1:0", d, 16, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()
	require.Eventually(t, func() bool { return s.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	conn, err := net.DialTimeout("tcp", s.Addr(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	header := wire.RequestHeader{Version: protocol.Version, Code: protocol.OpRegister, PayloadSize: protocol.NameFieldSize}
	_, err = conn.Write(header.Encode())
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(t, err) // server closed the connection without responding
}

func TestServeReturnsWhenContextCancelled(t *testing.T) {
	_, stop := startServer(t)
	stop()
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
