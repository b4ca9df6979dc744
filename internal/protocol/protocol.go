// Package protocol defines the wire-level constants of the file-transfer
// protocol: its version, opcodes, response codes, and fixed field widths.
// Nothing in this package depends on the codec, the dispatcher, or the
// server — it is the bottom of the dependency graph.
package protocol

// Version is the server protocol version echoed in every response header.
const Version uint8 = 3

// Request opcodes.
const (
	OpRegister      uint16 = 825
	OpSendPublicKey uint16 = 826
	OpReconnect     uint16 = 827
	OpSendFile      uint16 = 828
	OpCRCOk         uint16 = 900
	OpCRCNotOk      uint16 = 901
	OpCRCTerminate  uint16 = 902
)

// Response codes.
const (
	RespRegisterSuccess  uint16 = 1600
	RespRegisterFailure  uint16 = 1601
	RespSendAES          uint16 = 1602
	RespAcceptedFile     uint16 = 1603
	RespMessageConfirm   uint16 = 1604
	RespReconnectSuccess uint16 = 1605
	RespReconnectFailure uint16 = 1606
	RespGenericFailure   uint16 = 1607
)

// Fixed field widths on the wire.
const (
	ClientIDSize       = 16
	NameFieldSize      = 255
	PublicKeySize      = 160
	RequestHeaderSize  = 23
	ResponseHeaderSize = 7

	// SendFileFixedSize is the size of the send-file payload excluding the
	// trailing ciphertext: content_size(4) + original_file_size(4) +
	// packet_number(2) + total_packets(2) + file_name(255).
	SendFileFixedSize = 4 + 4 + 2 + 2 + NameFieldSize
)

// OpcodeName returns a human-readable name for a request opcode, for logging.
func OpcodeName(op uint16) string {
	switch op {
	case OpRegister:
		return "register"
	case OpSendPublicKey:
		return "send-public-key"
	case OpReconnect:
		return "reconnect"
	case OpSendFile:
		return "send-file"
	case OpCRCOk:
		return "crc-ok"
	case OpCRCNotOk:
		return "crc-not-ok"
	case OpCRCTerminate:
		return "crc-terminate"
	default:
		return "unknown"
	}
}
