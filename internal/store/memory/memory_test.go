package memory

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRejectsDuplicateName(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, ok, err := s.Register(ctx, "alice", "t0")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = s.Register(ctx, "alice", "t1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegisterReturnsDistinctIDs(t *testing.T) {
	s := New()
	ctx := context.Background()

	idA, ok, err := s.Register(ctx, "alice", "t0")
	require.NoError(t, err)
	require.True(t, ok)

	idB, ok, err := s.Register(ctx, "bob", "t0")
	require.NoError(t, err)
	require.True(t, ok)

	assert.NotEqual(t, idA, idB)
}

func TestFindRequiresBothIDAndName(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, _, err := s.Register(ctx, "alice", "t0")
	require.NoError(t, err)
	idHex := hex.EncodeToString(id[:])

	found, err := s.Find(ctx, idHex, "alice")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "alice", found.Name)

	notFound, err := s.Find(ctx, idHex, "mallory")
	require.NoError(t, err)
	assert.Nil(t, notFound)
}

func TestSetPublicKeyIsNoopForUnknownID(t *testing.T) {
	s := New()
	assert.NoError(t, s.SetPublicKey(context.Background(), "unknown", []byte("pub")))
}

func TestSetSymmetricKeyAndFindByID(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, _, err := s.Register(ctx, "alice", "t0")
	require.NoError(t, err)
	idHex := hex.EncodeToString(id[:])

	require.NoError(t, s.SetSymmetricKey(ctx, idHex, []byte("aes-key")))

	c, err := s.FindByID(ctx, idHex)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, []byte("aes-key"), c.AESKey)
}

func TestTouchUpdatesLastSeen(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, _, err := s.Register(ctx, "alice", "t0")
	require.NoError(t, err)
	idHex := hex.EncodeToString(id[:])

	require.NoError(t, s.Touch(ctx, idHex, "t1"))

	c, err := s.FindByID(ctx, idHex)
	require.NoError(t, err)
	assert.Equal(t, "t1", c.LastSeen)
}

func TestRecordFileFailsForUnknownClient(t *testing.T) {
	s := New()
	ok, err := s.RecordFile(context.Background(), "unknown", "report.bin", "/tmp/report.bin")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordFileOverwritesPreviousRowAtSamePath(t *testing.T) {
	s := New()
	ctx := context.Background()
	id, _, err := s.Register(ctx, "alice", "t0")
	require.NoError(t, err)
	idHex := hex.EncodeToString(id[:])
	path := "/data/" + idHex + "/report.bin"

	ok, err := s.RecordFile(ctx, idHex, "report.bin", path)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.MarkVerified(ctx, path))

	ok, err = s.RecordFile(ctx, idHex, "report.bin", path)
	require.NoError(t, err)
	require.True(t, ok)

	clients, files, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, clients)
	assert.Equal(t, 1, files)
}

func TestMarkVerifiedGatesOnCRCOk(t *testing.T) {
	s := New()
	ctx := context.Background()
	id, _, err := s.Register(ctx, "alice", "t0")
	require.NoError(t, err)
	idHex := hex.EncodeToString(id[:])
	path := "/data/" + idHex + "/report.bin"

	_, err = s.RecordFile(ctx, idHex, "report.bin", path)
	require.NoError(t, err)

	require.NoError(t, s.MarkVerified(ctx, path))

	s.mu.RLock()
	f := s.files[path]
	s.mu.RUnlock()
	assert.True(t, f.Verified)
}
