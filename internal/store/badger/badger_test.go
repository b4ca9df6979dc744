package badger_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gharra/filed/internal/store"
	"github.com/gharra/filed/internal/store/badger"
	"github.com/gharra/filed/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) store.Store {
		dir := filepath.Join(t.TempDir(), "badger")
		s, err := badger.Open(dir)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}
