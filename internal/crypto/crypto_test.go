package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientIDIsRandomAndCorrectSize(t *testing.T) {
	a, err := NewClientID()
	require.NoError(t, err)
	b, err := NewClientID()
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}

func TestNewSymmetricKeySize(t *testing.T) {
	key, err := NewSymmetricKey()
	require.NoError(t, err)
	assert.Len(t, key, SymmetricKeySize)
}

func TestWrapAndUnwrapRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)

	key, err := NewSymmetricKey()
	require.NoError(t, err)

	wrapped, err := Wrap(pubDER, key)
	require.NoError(t, err)
	assert.NotEqual(t, key, wrapped)

	recovered, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	require.NoError(t, err)
	assert.Equal(t, key, recovered)
}

func TestUnwrapFileRejectsNonBlockMultiple(t *testing.T) {
	_, err := UnwrapFile([]byte{1, 2, 3}, make([]byte, SymmetricKeySize))
	assert.Error(t, err)
}

func TestUnwrapFileDecryptsZeroIVCBC(t *testing.T) {
	key := make([]byte, SymmetricKeySize)
	for i := range key {
		key[i] = byte(i)
	}
	plain := pkcs7Pad([]byte("hello, fragment reassembly"), aes.BlockSize)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	ciphertext := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(ciphertext, plain)

	decrypted, err := UnwrapFile(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, "hello, fragment reassembly", string(decrypted))
}

func TestUnwrapFileRejectsBadPadding(t *testing.T) {
	key := make([]byte, SymmetricKeySize)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	ciphertext := make([]byte, aes.BlockSize)
	cipher.NewCBCEncrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(ciphertext, make([]byte, aes.BlockSize))

	_, err = UnwrapFile(ciphertext, key)
	assert.Error(t, err)
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	pad := blockSize - len(b)%blockSize
	padded := make([]byte, len(b)+pad)
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = byte(pad)
	}
	return padded
}
