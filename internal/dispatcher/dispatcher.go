// Package dispatcher implements the per-opcode state machine (component E):
// it decodes a request payload via the wire codec, drives the business
// logic against crypto, filestore and store, and produces a wire response.
//
// Opcodes are routed through a switch over handler functions rather than a
// polymorphic Request/Response class tree: one function per opcode instead
// of one subtype per opcode.
package dispatcher

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/gharra/filed/internal/crypto"
	"github.com/gharra/filed/internal/filestore"
	"github.com/gharra/filed/internal/logger"
	"github.com/gharra/filed/internal/metrics"
	"github.com/gharra/filed/internal/protocol"
	"github.com/gharra/filed/internal/store"
	"github.com/gharra/filed/internal/wire"
)

// Dispatcher routes decoded requests to their business logic.
type Dispatcher struct {
	store   store.Store
	files   *filestore.Store
	metrics *metrics.Metrics
	clock   func() time.Time
}

// New constructs a Dispatcher over the given persistent-state backend and
// file store. m may be nil to disable metrics collection.
func New(s store.Store, files *filestore.Store, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{store: s, files: files, metrics: m, clock: time.Now}
}

// Handle decodes and executes one request. A nil *wire.Response with a nil
// error means the opcode's contract is to produce no response (send-file's
// intermediate fragments, crc-not-ok).
func (d *Dispatcher) Handle(ctx context.Context, header wire.RequestHeader, payload []byte) (*wire.Response, error) {
	logger.InfoCtx(ctx, "dispatching request", logger.Opcode(header.Code))

	minSize, known := wire.MinPayloadSize(header.Code)
	if !known || len(payload) < minSize {
		logger.InfoCtx(ctx, "malformed or unknown frame", logger.Opcode(header.Code))
		resp := wire.GenericFailure()
		return &resp, nil
	}

	switch header.Code {
	case protocol.OpRegister:
		return d.handleRegister(ctx, payload)
	case protocol.OpSendPublicKey:
		return d.handleSendPublicKey(ctx, header, payload)
	case protocol.OpReconnect:
		return d.handleReconnect(ctx, header, payload)
	case protocol.OpSendFile:
		return d.handleSendFile(ctx, header, payload)
	case protocol.OpCRCOk:
		return d.handleCRCOk(ctx, header, payload)
	case protocol.OpCRCNotOk:
		return d.handleCRCNotOk(ctx, header, payload)
	case protocol.OpCRCTerminate:
		return d.handleCRCTerminate(ctx, header, payload)
	default:
		resp := wire.GenericFailure()
		return &resp, nil
	}
}

func (d *Dispatcher) now() string {
	return d.clock().Format("2006-01-02 15:04:05")
}

func (d *Dispatcher) handleRegister(ctx context.Context, payload []byte) (*wire.Response, error) {
	req, err := wire.DecodeRegisterPayload(payload)
	if err != nil {
		resp := wire.GenericFailure()
		return &resp, nil
	}

	id, ok, err := d.store.Register(ctx, req.Name, d.now())
	if err != nil {
		return nil, fmt.Errorf("dispatcher: register: %w", err)
	}
	if !ok {
		logger.InfoCtx(ctx, "registration rejected, name already taken", logger.Filename(req.Name))
		resp := wire.RegisterFailure()
		return &resp, nil
	}

	logger.InfoCtx(ctx, "client registered", logger.Filename(req.Name))
	resp := wire.RegisterSuccess(id)
	return &resp, nil
}

func (d *Dispatcher) handleSendPublicKey(ctx context.Context, header wire.RequestHeader, payload []byte) (*wire.Response, error) {
	req, err := wire.DecodeSendPublicKeyPayload(payload)
	if err != nil {
		resp := wire.GenericFailure()
		return &resp, nil
	}

	idHex := hexID(header.ClientID)
	client, err := d.store.Find(ctx, idHex, req.Name)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: find client: %w", err)
	}
	if client == nil {
		logger.InfoCtx(ctx, "send-public-key: unknown client/name pair")
		resp := wire.RegisterFailure()
		return &resp, nil
	}

	if err := d.store.Touch(ctx, idHex, d.now()); err != nil {
		return nil, fmt.Errorf("dispatcher: touch: %w", err)
	}

	aesKey, err := crypto.NewSymmetricKey()
	if err != nil {
		return nil, fmt.Errorf("dispatcher: generate symmetric key: %w", err)
	}

	wrapped, err := crypto.Wrap(req.PublicKey, aesKey)
	if err != nil {
		logger.WarnCtx(ctx, "rsa wrap failed", logger.Err(err))
		resp := wire.RegisterFailure()
		return &resp, nil
	}

	if err := d.store.SetPublicKey(ctx, idHex, req.PublicKey); err != nil {
		return nil, fmt.Errorf("dispatcher: set public key: %w", err)
	}
	if err := d.store.SetSymmetricKey(ctx, idHex, aesKey); err != nil {
		return nil, fmt.Errorf("dispatcher: set symmetric key: %w", err)
	}

	resp := wire.SendAES(header.ClientID, wrapped)
	return &resp, nil
}

func (d *Dispatcher) handleReconnect(ctx context.Context, header wire.RequestHeader, payload []byte) (*wire.Response, error) {
	req, err := wire.DecodeReconnectPayload(payload)
	if err != nil {
		resp := wire.GenericFailure()
		return &resp, nil
	}

	idHex := hexID(header.ClientID)
	client, err := d.store.Find(ctx, idHex, req.Name)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: find client: %w", err)
	}
	if client == nil || len(client.PublicKey) == 0 {
		logger.InfoCtx(ctx, "reconnect rejected: unknown client or no stored public key")
		resp := wire.ReconnectFailure(header.ClientID)
		return &resp, nil
	}

	if err := d.store.Touch(ctx, idHex, d.now()); err != nil {
		return nil, fmt.Errorf("dispatcher: touch: %w", err)
	}

	aesKey, err := crypto.NewSymmetricKey()
	if err != nil {
		return nil, fmt.Errorf("dispatcher: generate symmetric key: %w", err)
	}

	wrapped, err := crypto.Wrap(client.PublicKey, aesKey)
	if err != nil {
		logger.WarnCtx(ctx, "rsa wrap failed on reconnect", logger.Err(err))
		resp := wire.ReconnectFailure(header.ClientID)
		return &resp, nil
	}

	if err := d.store.SetSymmetricKey(ctx, idHex, aesKey); err != nil {
		return nil, fmt.Errorf("dispatcher: set symmetric key: %w", err)
	}

	resp := wire.ReconnectSuccess(header.ClientID, wrapped)
	return &resp, nil
}

func (d *Dispatcher) handleSendFile(ctx context.Context, header wire.RequestHeader, payload []byte) (*wire.Response, error) {
	req, err := wire.DecodeSendFilePayload(payload)
	if err != nil {
		resp := wire.GenericFailure()
		return &resp, nil
	}

	idHex := hexID(header.ClientID)
	if err := d.store.Touch(ctx, idHex, d.now()); err != nil {
		return nil, fmt.Errorf("dispatcher: touch: %w", err)
	}

	if int32(req.ContentSize) <= 0 {
		logger.InfoCtx(ctx, "send-file rejected: non-positive content size")
		resp := wire.GenericFailure()
		return &resp, nil
	}

	firstFragment := req.PacketNumber == 1
	if err := d.files.AppendOrTruncate(idHex, req.FileName, req.Ciphertext, firstFragment); err != nil {
		return nil, fmt.Errorf("dispatcher: write fragment: %w", err)
	}

	if req.PacketNumber != req.TotalPackets {
		return nil, nil // intermediate fragment: no response
	}

	client, err := d.store.FindByID(ctx, idHex)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: find client by id: %w", err)
	}
	if client == nil {
		logger.WarnCtx(ctx, "send-file: final fragment from unknown client")
		resp := wire.GenericFailure()
		return &resp, nil
	}

	path := d.files.PathOf(idHex, req.FileName)
	plain, err := d.files.DecryptInPlace(path, client.AESKey)
	if err != nil {
		logger.WarnCtx(ctx, "file decryption failed", logger.Err(err))
		resp := wire.GenericFailure()
		return &resp, nil
	}

	if _, err := d.store.RecordFile(ctx, idHex, req.FileName, path); err != nil {
		return nil, fmt.Errorf("dispatcher: record file: %w", err)
	}

	crc := crc32.ChecksumIEEE(plain)
	logger.InfoCtx(ctx, "file received", logger.Filename(req.FileName), logger.CRC(crc))
	d.metrics.RecordFileAccepted()
	resp := wire.AcceptedFile(header.ClientID, req.ContentSize, req.FileName, crc)
	return &resp, nil
}

func (d *Dispatcher) handleCRCOk(ctx context.Context, header wire.RequestHeader, payload []byte) (*wire.Response, error) {
	req, err := wire.DecodeFileNamePayload(payload)
	if err != nil {
		resp := wire.GenericFailure()
		return &resp, nil
	}

	idHex := hexID(header.ClientID)
	if err := d.store.Touch(ctx, idHex, d.now()); err != nil {
		return nil, fmt.Errorf("dispatcher: touch: %w", err)
	}

	path := d.files.PathOf(idHex, req.FileName)
	if err := d.store.MarkVerified(ctx, path); err != nil {
		return nil, fmt.Errorf("dispatcher: mark verified: %w", err)
	}

	logger.InfoCtx(ctx, "file verified", logger.Filename(req.FileName))
	d.metrics.RecordFileVerified()
	resp := wire.MessageConfirm(header.ClientID)
	return &resp, nil
}

func (d *Dispatcher) handleCRCNotOk(ctx context.Context, header wire.RequestHeader, payload []byte) (*wire.Response, error) {
	if _, err := wire.DecodeFileNamePayload(payload); err != nil {
		resp := wire.GenericFailure()
		return &resp, nil
	}

	idHex := hexID(header.ClientID)
	if err := d.store.Touch(ctx, idHex, d.now()); err != nil {
		return nil, fmt.Errorf("dispatcher: touch: %w", err)
	}

	logger.InfoCtx(ctx, "client reported CRC mismatch, expecting retry")
	return nil, nil
}

func (d *Dispatcher) handleCRCTerminate(ctx context.Context, header wire.RequestHeader, payload []byte) (*wire.Response, error) {
	if _, err := wire.DecodeFileNamePayload(payload); err != nil {
		resp := wire.GenericFailure()
		return &resp, nil
	}

	idHex := hexID(header.ClientID)
	if err := d.store.Touch(ctx, idHex, d.now()); err != nil {
		return nil, fmt.Errorf("dispatcher: touch: %w", err)
	}

	logger.InfoCtx(ctx, "client terminated transfer")
	resp := wire.MessageConfirm(header.ClientID)
	return &resp, nil
}

func hexID(id [protocol.ClientIDSize]byte) string {
	return hex.EncodeToString(id[:])
}
