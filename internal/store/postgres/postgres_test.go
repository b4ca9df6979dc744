//go:build integration

package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gharra/filed/internal/store"
	"github.com/gharra/filed/internal/store/postgres"
	"github.com/gharra/filed/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	dsn := os.Getenv("FILED_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FILED_TEST_POSTGRES_DSN not set, skipping PostgreSQL conformance tests")
	}

	storetest.RunConformanceSuite(t, func(t *testing.T) store.Store {
		s, err := postgres.Open(context.Background(), dsn)
		require.NoError(t, err)
		t.Cleanup(func() {
			s.Close()
		})
		return s
	})
}
