package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/huolala/internal/config"
	"github.com/tournevent/huolala/pkg/huolala/tokenstore/memory"
)

func TestStoreHelp_NamesCgoRequirement(t *testing.T) {
	for _, cmd := range []string{serveCmd.Long, tokenCmd.Long} {
		assert.Contains(t, cmd, "CGO_ENABLED=0")
		assert.Contains(t, cmd, "TOKEN_STORE=memory")
	}
}

func TestInitTokenStore_Memory(t *testing.T) {
	store, closeStore, err := initTokenStore(&config.Config{TokenStore: config.StoreMemory})
	require.NoError(t, err)
	defer closeStore(context.Background())

	assert.IsType(t, &memory.Store{}, store)
}

func TestInitTokenStore_SQLiteFailureHints(t *testing.T) {
	_, _, err := initTokenStore(&config.Config{
		TokenStore: config.StoreSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "missing", "tokens.db"),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN_STORE=memory")
}
