package wire

import (
	"encoding/binary"

	"github.com/gharra/filed/internal/protocol"
)

// Response is a fully-built response frame ready to write to the socket.
type Response struct {
	Code    uint16
	Payload []byte
}

// Bytes renders the response header plus payload as one contiguous frame.
func (r Response) Bytes() []byte {
	h := ResponseHeader{Version: protocol.Version, Code: r.Code, PayloadSize: uint32(len(r.Payload))}
	return append(h.Encode(), r.Payload...)
}

// RegisterSuccess builds a 1600 response: client_id[16].
func RegisterSuccess(clientID [protocol.ClientIDSize]byte) Response {
	return Response{Code: protocol.RespRegisterSuccess, Payload: clientID[:]}
}

// RegisterFailure builds a 1601 response with no payload.
func RegisterFailure() Response {
	return Response{Code: protocol.RespRegisterFailure}
}

// SendAES builds a 1602 response: client_id[16] ‖ encrypted_aes_key[...].
func SendAES(clientID [protocol.ClientIDSize]byte, wrappedKey []byte) Response {
	payload := make([]byte, 0, protocol.ClientIDSize+len(wrappedKey))
	payload = append(payload, clientID[:]...)
	payload = append(payload, wrappedKey...)
	return Response{Code: protocol.RespSendAES, Payload: payload}
}

// AcceptedFile builds a 1603 response: client_id[16] ‖ content_size:u32 ‖
// file_name[255] ‖ crc:u32.
func AcceptedFile(clientID [protocol.ClientIDSize]byte, contentSize uint32, fileName string, crc uint32) Response {
	payload := make([]byte, 0, protocol.ClientIDSize+4+protocol.NameFieldSize+4)
	payload = append(payload, clientID[:]...)
	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], contentSize)
	payload = append(payload, sizeBuf[:]...)
	payload = append(payload, encodeField(fileName, protocol.NameFieldSize)...)
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc)
	payload = append(payload, crcBuf[:]...)
	return Response{Code: protocol.RespAcceptedFile, Payload: payload}
}

// MessageConfirm builds a 1604 response: client_id[16].
func MessageConfirm(clientID [protocol.ClientIDSize]byte) Response {
	return Response{Code: protocol.RespMessageConfirm, Payload: clientID[:]}
}

// ReconnectSuccess builds a 1605 response: client_id[16] ‖ encrypted_aes_key[...].
func ReconnectSuccess(clientID [protocol.ClientIDSize]byte, wrappedKey []byte) Response {
	payload := make([]byte, 0, protocol.ClientIDSize+len(wrappedKey))
	payload = append(payload, clientID[:]...)
	payload = append(payload, wrappedKey...)
	return Response{Code: protocol.RespReconnectSuccess, Payload: payload}
}

// ReconnectFailure builds a 1606 response: client_id[16].
func ReconnectFailure(clientID [protocol.ClientIDSize]byte) Response {
	return Response{Code: protocol.RespReconnectFailure, Payload: clientID[:]}
}

// GenericFailure builds a 1607 response with no payload.
func GenericFailure() Response {
	return Response{Code: protocol.RespGenericFailure}
}
