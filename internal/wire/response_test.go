package wire

import (
	"testing"

	"github.com/gharra/filed/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClientID() (id [protocol.ClientIDSize]byte) {
	copy(id[:], []byte("0123456789abcdef"))
	return id
}

func TestAcceptedFileWireLayout(t *testing.T) {
	id := testClientID()
	resp := AcceptedFile(id, 1024, "report.bin", 0xDEADBEEF)

	frame := resp.Bytes()
	header, err := DecodeResponseHeader(frame[:protocol.ResponseHeaderSize])
	require.NoError(t, err)
	assert.Equal(t, protocol.RespAcceptedFile, header.Code)
	assert.Equal(t, protocol.Version, header.Version)

	payload := frame[protocol.ResponseHeaderSize:]
	require.Len(t, payload, protocol.ClientIDSize+4+protocol.NameFieldSize+4)
	assert.Equal(t, id[:], payload[:protocol.ClientIDSize])

	name := decodeField(payload[protocol.ClientIDSize+4 : protocol.ClientIDSize+4+protocol.NameFieldSize])
	assert.Equal(t, "report.bin", name)
}

func TestRegisterFailureHasEmptyPayload(t *testing.T) {
	frame := RegisterFailure().Bytes()
	header, err := DecodeResponseHeader(frame[:protocol.ResponseHeaderSize])
	require.NoError(t, err)
	assert.Equal(t, protocol.RespRegisterFailure, header.Code)
	assert.Equal(t, uint32(0), header.PayloadSize)
	assert.Len(t, frame, protocol.ResponseHeaderSize)
}

func TestSendAESCarriesWrappedKey(t *testing.T) {
	id := testClientID()
	wrapped := []byte{1, 2, 3, 4, 5}
	frame := SendAES(id, wrapped).Bytes()
	payload := frame[protocol.ResponseHeaderSize:]
	assert.Equal(t, id[:], payload[:protocol.ClientIDSize])
	assert.Equal(t, wrapped, payload[protocol.ClientIDSize:])
}
