package main

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"},
		{"migrate"},
		{"leads", "sync"},
		{"leads", "import"},
		{"leads", "recalc"},
		{"commissions", "regenerate"},
		{"commissions", "export"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestMigrate_RequiresPostgres(t *testing.T) {
	cfg = &config.Config{StoreDriver: config.DriverSupabase}
	logger = zap.NewNop()

	err := migrateCmd.RunE(migrateCmd, nil)
	assert.ErrorContains(t, err, "STORE_DRIVER=postgres")
}

func TestBuildApp_SupabaseMemory(t *testing.T) {
	c := &config.Config{
		StoreDriver:              config.DriverSupabase,
		SupabaseURL:              "http://localhost:54321",
		SupabaseServiceKey:       "key",
		CacheBackend:             config.CacheMemory,
		CacheTTL:                 time.Minute,
		HTTPTimeout:              time.Second,
		MaxConcurrency:           2,
		DefaultCommissionPercent: 10,
		DefaultSDRPercent:        1,
	}

	a, err := buildApp(context.Background(), c, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.store)
	assert.NotNil(t, a.revenue)
	assert.NotNil(t, a.commissions)
	assert.NotNil(t, a.sdr)
	assert.NotNil(t, a.leads)
	assert.Len(t, a.closers, 2)
}
