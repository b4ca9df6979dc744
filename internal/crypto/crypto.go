// Package crypto implements the named cryptographic primitives of the
// file-transfer protocol: random id/key generation, RSA-OAEP key wrapping,
// and AES-256-CBC file decryption.
//
// No suitable third-party library in the reference corpus implements a
// zero-IV AES-CBC decryptor or an undeterministic RSA-OAEP wrap matching
// this wire format (the one OAEP example in the corpus is intentionally
// deterministic, for a different protocol); both primitives are built
// directly on crypto/rsa, crypto/aes, crypto/cipher and crypto/sha256, the
// standard library's own implementations of these well-known algorithms.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"

	"github.com/gharra/filed/internal/protocol"
)

// SymmetricKeySize is the AES-256 key size in bytes.
const SymmetricKeySize = 32

// zeroIV is the AES-CBC initialization vector mandated for file payloads.
//
// This is a known weakness: a fixed, zero IV leaks information about
// plaintext patterns across files encrypted under the same key and is never
// appropriate for new protocols. It is preserved here exactly because the
// existing client hard-codes it; do not "fix" this without changing the
// wire protocol on both ends.
var zeroIV = make([]byte, aes.BlockSize)

// NewClientID returns 16 uniformly random bytes.
func NewClientID() ([protocol.ClientIDSize]byte, error) {
	var id [protocol.ClientIDSize]byte
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("crypto: generate client id: %w", err)
	}
	return id, nil
}

// NewSymmetricKey returns 32 uniformly random bytes (AES-256).
func NewSymmetricKey() ([]byte, error) {
	key := make([]byte, SymmetricKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("crypto: generate symmetric key: %w", err)
	}
	return key, nil
}

// Wrap RSA-OAEP-encrypts key under the public key encoded in pubDER, using
// SHA-256 as the OAEP hash. pubDER is the public-key bytes the client
// supplied in the fixed-width public_key wire field (PKIX or PKCS1,
// DER-encoded, zero-padded to the field's width like every other
// fixed-width field on the wire).
func Wrap(pubDER []byte, key []byte) ([]byte, error) {
	pub, err := parsePublicKey(pubDER)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse public key: %w", err)
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: wrap key: %w", err)
	}
	return wrapped, nil
}

func parsePublicKey(der []byte) (*rsa.PublicKey, error) {
	der = bytes.TrimRight(der, "\x00")
	if key, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return key, nil
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaPub, nil
}

// UnwrapFile decrypts ciphertext with AES-256 in CBC mode using the
// mandatory zero IV, then removes PKCS#7 padding.
func UnwrapFile(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: build AES cipher: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("crypto: ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, zeroIV).CryptBlocks(plain, ciphertext)

	return removePKCS7Padding(plain)
}

func removePKCS7Padding(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("crypto: empty plaintext")
	}
	pad := int(b[len(b)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(b) {
		return nil, fmt.Errorf("crypto: invalid PKCS#7 padding")
	}
	if !bytes.Equal(b[len(b)-pad:], bytes.Repeat([]byte{byte(pad)}, pad)) {
		return nil, fmt.Errorf("crypto: malformed PKCS#7 padding")
	}
	return b[:len(b)-pad], nil
}
