// Package storetest holds a backend-agnostic conformance suite that every
// store.Store implementation (memory, badger, sqlite, postgres) runs
// against: one set of assertions, one factory function per backend under
// test.
package storetest

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gharra/filed/internal/store"
)

// Factory constructs a fresh, empty store.Store for a single test run.
type Factory func(t *testing.T) store.Store

// RunConformanceSuite exercises the behaviors every backend must agree on.
func RunConformanceSuite(t *testing.T, newStore Factory) {
	t.Run("RegisterRejectsDuplicateName", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, ok, err := s.Register(ctx, "alice", "t0")
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = s.Register(ctx, "alice", "t1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("FindRequiresBothIDAndName", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, ok, err := s.Register(ctx, "alice", "t0")
		require.NoError(t, err)
		require.True(t, ok)
		idHex := toHex(id)

		found, err := s.Find(ctx, idHex, "alice")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "alice", found.Name)

		notFound, err := s.Find(ctx, idHex, "mallory")
		require.NoError(t, err)
		assert.Nil(t, notFound)
	})

	t.Run("FindByIDUnknownReturnsNil", func(t *testing.T) {
		s := newStore(t)
		c, err := s.FindByID(context.Background(), "0000000000000000")
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("SetPublicKeyThenFindByIDRoundtrips", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, _, err := s.Register(ctx, "alice", "t0")
		require.NoError(t, err)
		idHex := toHex(id)

		pub := []byte("der-encoded-public-key")
		require.NoError(t, s.SetPublicKey(ctx, idHex, pub))

		c, err := s.FindByID(ctx, idHex)
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, pub, c.PublicKey)
	})

	t.Run("SetSymmetricKeyThenFindByIDRoundtrips", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, _, err := s.Register(ctx, "alice", "t0")
		require.NoError(t, err)
		idHex := toHex(id)

		key := []byte("0123456789abcdef0123456789abcdef")
		require.NoError(t, s.SetSymmetricKey(ctx, idHex, key))

		c, err := s.FindByID(ctx, idHex)
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, key, c.AESKey)
	})

	t.Run("TouchUpdatesLastSeen", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, _, err := s.Register(ctx, "alice", "t0")
		require.NoError(t, err)
		idHex := toHex(id)

		require.NoError(t, s.Touch(ctx, idHex, "t1"))

		c, err := s.FindByID(ctx, idHex)
		require.NoError(t, err)
		assert.Equal(t, "t1", c.LastSeen)
	})

	t.Run("TouchUnknownIDIsNoop", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Touch(context.Background(), "unknown", "t1"))
	})

	t.Run("RecordFileFailsForUnknownClient", func(t *testing.T) {
		s := newStore(t)
		ok, err := s.RecordFile(context.Background(), "unknown", "report.bin", "/tmp/report.bin")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("RecordFileThenMarkVerified", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, _, err := s.Register(ctx, "alice", "t0")
		require.NoError(t, err)
		idHex := toHex(id)
		path := "/data/" + idHex + "/report.bin"

		ok, err := s.RecordFile(ctx, idHex, "report.bin", path)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, s.MarkVerified(ctx, path))

		clients, files, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, clients)
		assert.Equal(t, 1, files)
	})

	t.Run("StatsCountsMultipleClientsAndFiles", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		idA, _, err := s.Register(ctx, "alice", "t0")
		require.NoError(t, err)
		idB, _, err := s.Register(ctx, "bob", "t0")
		require.NoError(t, err)

		_, err = s.RecordFile(ctx, toHex(idA), "a.bin", "/data/"+toHex(idA)+"/a.bin")
		require.NoError(t, err)
		_, err = s.RecordFile(ctx, toHex(idB), "b.bin", "/data/"+toHex(idB)+"/b.bin")
		require.NoError(t, err)

		clients, files, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, clients)
		assert.Equal(t, 2, files)
	})

	t.Run("ListClientsAndListFilesReturnEveryRow", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		idA, _, err := s.Register(ctx, "alice", "t0")
		require.NoError(t, err)
		idB, _, err := s.Register(ctx, "bob", "t0")
		require.NoError(t, err)

		_, err = s.RecordFile(ctx, toHex(idA), "a.bin", "/data/"+toHex(idA)+"/a.bin")
		require.NoError(t, err)
		_, err = s.RecordFile(ctx, toHex(idB), "b.bin", "/data/"+toHex(idB)+"/b.bin")
		require.NoError(t, err)

		clients, err := s.ListClients(ctx)
		require.NoError(t, err)
		assert.Len(t, clients, 2)

		files, err := s.ListFiles(ctx)
		require.NoError(t, err)
		assert.Len(t, files, 2)
	})
}

func toHex(id [16]byte) string {
	return hex.EncodeToString(id[:])
}
