package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/huolala/pkg/huolala"
	"github.com/tournevent/huolala/pkg/huolala/tokenstore/memory"
)

func TestStore_GetMissing(t *testing.T) {
	store := memory.New()

	_, err := store.Get(context.Background(), huolala.TokenKey{AppKey: "AK1"})
	assert.ErrorIs(t, err, huolala.ErrTokenNotFound)
}

func TestStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	key := huolala.TokenKey{AppKey: "AK1"}
	expires := time.Now().Add(time.Hour)

	require.NoError(t, store.Set(ctx, key, &huolala.TokenRecord{AccessToken: "AT1", RefreshToken: "RT1", ExpiresAt: expires}))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "AT1", got.AccessToken)
	assert.Equal(t, "RT1", got.RefreshToken)
	assert.True(t, expires.Equal(got.ExpiresAt))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, huolala.ErrTokenNotFound)

	// deleting again is a no-op
	assert.NoError(t, store.Delete(ctx, key))
}

func TestStore_KeepsExpiredRecords(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	key := huolala.TokenKey{AppKey: "AK1"}

	require.NoError(t, store.Set(ctx, key, &huolala.TokenRecord{AccessToken: "AT1", RefreshToken: "RT1", ExpiresAt: time.Now().Add(-time.Hour)}))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "RT1", got.RefreshToken)
}

func TestStore_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	prod := huolala.TokenKey{AppKey: "AK1", Sandbox: false}
	sandbox := huolala.TokenKey{AppKey: "AK1", Sandbox: true}

	require.NoError(t, store.Set(ctx, prod, &huolala.TokenRecord{AccessToken: "PROD"}))
	require.NoError(t, store.Set(ctx, sandbox, &huolala.TokenRecord{AccessToken: "SANDBOX"}))

	got, err := store.Get(ctx, prod)
	require.NoError(t, err)
	assert.Equal(t, "PROD", got.AccessToken)

	got, err = store.Get(ctx, sandbox)
	require.NoError(t, err)
	assert.Equal(t, "SANDBOX", got.AccessToken)
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	key := huolala.TokenKey{AppKey: "AK1"}
	record := &huolala.TokenRecord{AccessToken: "AT1"}

	require.NoError(t, store.Set(ctx, key, record))
	record.AccessToken = "MUTATED"

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "AT1", got.AccessToken)

	got.AccessToken = "MUTATED"
	again, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "AT1", again.AccessToken)
}
