package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/gharra/filed/internal/protocol"
)

// RegisterPayload is the decoded body of a register (825) request.
type RegisterPayload struct {
	Name string
}

// DecodeRegisterPayload decodes a register payload: name[255].
func DecodeRegisterPayload(b []byte) (RegisterPayload, error) {
	if len(b) < protocol.NameFieldSize {
		return RegisterPayload{}, fmt.Errorf("wire: register payload too short: %d", len(b))
	}
	return RegisterPayload{Name: decodeField(b[:protocol.NameFieldSize])}, nil
}

// SendPublicKeyPayload is the decoded body of a send-public-key (826) request.
type SendPublicKeyPayload struct {
	Name      string
	PublicKey []byte
}

// DecodeSendPublicKeyPayload decodes name[255] ‖ public_key[160].
func DecodeSendPublicKeyPayload(b []byte) (SendPublicKeyPayload, error) {
	const want = protocol.NameFieldSize + protocol.PublicKeySize
	if len(b) < want {
		return SendPublicKeyPayload{}, fmt.Errorf("wire: send-public-key payload too short: %d", len(b))
	}
	pub := make([]byte, protocol.PublicKeySize)
	copy(pub, b[protocol.NameFieldSize:want])
	return SendPublicKeyPayload{
		Name:      decodeField(b[:protocol.NameFieldSize]),
		PublicKey: pub,
	}, nil
}

// ReconnectPayload is the decoded body of a reconnect (827) request.
type ReconnectPayload struct {
	Name string
}

// DecodeReconnectPayload decodes a reconnect payload: name[255].
func DecodeReconnectPayload(b []byte) (ReconnectPayload, error) {
	if len(b) < protocol.NameFieldSize {
		return ReconnectPayload{}, fmt.Errorf("wire: reconnect payload too short: %d", len(b))
	}
	return ReconnectPayload{Name: decodeField(b[:protocol.NameFieldSize])}, nil
}

// SendFilePayload is the decoded body of a send-file (828) request.
type SendFilePayload struct {
	ContentSize      uint32
	OriginalFileSize uint32
	PacketNumber     uint16
	TotalPackets     uint16
	FileName         string
	Ciphertext       []byte
}

// DecodeSendFilePayload decodes:
//
//	content_size:u32 ‖ original_file_size:u32 ‖ packet_number:u16 ‖
//	total_packets:u16 ‖ file_name[255] ‖ ciphertext[payload_size-267]
func DecodeSendFilePayload(b []byte) (SendFilePayload, error) {
	if len(b) < protocol.SendFileFixedSize {
		return SendFilePayload{}, fmt.Errorf("wire: send-file payload too short: %d", len(b))
	}
	p := SendFilePayload{
		ContentSize:      binary.LittleEndian.Uint32(b[0:4]),
		OriginalFileSize: binary.LittleEndian.Uint32(b[4:8]),
		PacketNumber:     binary.LittleEndian.Uint16(b[8:10]),
		TotalPackets:     binary.LittleEndian.Uint16(b[10:12]),
		FileName:         decodeField(b[12:protocol.SendFileFixedSize]),
	}
	p.Ciphertext = append([]byte(nil), b[protocol.SendFileFixedSize:]...)
	return p, nil
}

// FileNamePayload is the decoded body of crc-ok (900), crc-not-ok (901) and
// crc-terminate (902) requests, which all carry only a file name.
type FileNamePayload struct {
	FileName string
}

// DecodeFileNamePayload decodes a file_name[255] payload.
func DecodeFileNamePayload(b []byte) (FileNamePayload, error) {
	if len(b) < protocol.NameFieldSize {
		return FileNamePayload{}, fmt.Errorf("wire: file-name payload too short: %d", len(b))
	}
	return FileNamePayload{FileName: decodeField(b[:protocol.NameFieldSize])}, nil
}

// MinPayloadSize returns the minimum valid payload_size for a given opcode,
// or false if the opcode is not recognized. The dispatcher uses this to
// reject malformed frames before attempting to decode them.
func MinPayloadSize(opcode uint16) (int, bool) {
	switch opcode {
	case protocol.OpRegister, protocol.OpReconnect:
		return protocol.NameFieldSize, true
	case protocol.OpSendPublicKey:
		return protocol.NameFieldSize + protocol.PublicKeySize, true
	case protocol.OpSendFile:
		return protocol.SendFileFixedSize, true
	case protocol.OpCRCOk, protocol.OpCRCNotOk, protocol.OpCRCTerminate:
		return protocol.NameFieldSize, true
	default:
		return 0, false
	}
}
