package filestore

import (
	"crypto/aes"
	"crypto/cipher"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathOfStripsDirectoryComponents(t *testing.T) {
	s := New(t.TempDir())
	path := s.PathOf("deadbeef", "../../../etc/passwd")
	assert.Equal(t, filepath.Join(s.root, "deadbeef", "passwd"), path)
	assert.True(t, filepath.IsAbs(path) == filepath.IsAbs(s.root))
}

func TestAppendOrTruncateFirstFragmentTruncates(t *testing.T) {
	s := New(t.TempDir())
	path := s.PathOf("deadbeef", "report.bin")

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("stale content from a previous upload"), 0o644))

	require.NoError(t, s.AppendOrTruncate("deadbeef", "report.bin", []byte("first"), true))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(content))
}

func TestAppendOrTruncateAppendsSubsequentFragments(t *testing.T) {
	s := New(t.TempDir())

	require.NoError(t, s.AppendOrTruncate("deadbeef", "report.bin", []byte("one-"), true))
	require.NoError(t, s.AppendOrTruncate("deadbeef", "report.bin", []byte("two-"), false))
	require.NoError(t, s.AppendOrTruncate("deadbeef", "report.bin", []byte("three"), false))

	content, err := os.ReadFile(s.PathOf("deadbeef", "report.bin"))
	require.NoError(t, err)
	assert.Equal(t, "one-two-three", string(content))
}

func TestDecryptInPlaceOverwritesWithPlaintext(t *testing.T) {
	s := New(t.TempDir())
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	plain := pkcs7Pad([]byte("decrypted file contents"), aes.BlockSize)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	ciphertext := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(ciphertext, plain)

	require.NoError(t, s.AppendOrTruncate("deadbeef", "secret.bin", ciphertext, true))

	decrypted, err := s.DecryptInPlace(s.PathOf("deadbeef", "secret.bin"), key)
	require.NoError(t, err)
	assert.Equal(t, "decrypted file contents", string(decrypted))

	onDisk, err := os.ReadFile(s.PathOf("deadbeef", "secret.bin"))
	require.NoError(t, err)
	assert.Equal(t, decrypted, onDisk)
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
