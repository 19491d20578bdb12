package apikey_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolekits/core/internal/auth/apikey"
	"github.com/rolekits/core/internal/cache"
	"github.com/rolekits/core/internal/store/core"
	"github.com/rolekits/core/internal/store/memory"
)

func newMemCache(t *testing.T) cache.Client {
	t.Helper()
	c, err := cache.New(cache.Config{Driver: "memory", DefaultTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestIssue_Format(t *testing.T) {
	svc := apikey.NewService(memory.New())

	plaintext, k, err := svc.Issue(context.Background(), "owner-1", "ci", 0)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(plaintext, "rk_"))
	require.Len(t, plaintext, 3+64)
	// el sufijo es hex minúscula
	for _, r := range plaintext[3:] {
		require.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'), "char %q", r)
	}

	assert.NotEmpty(t, k.ID)
	assert.Equal(t, "owner-1", k.OwnerID)
	assert.Equal(t, "ci", k.Name)
	assert.True(t, k.Active)
	assert.Nil(t, k.ExpiresAt)
	assert.Nil(t, k.LastUsedAt)
	assert.Equal(t, apikey.HashSecret(plaintext), k.SecretHash)
}

func TestIssue_TwoKeysDiffer(t *testing.T) {
	svc := apikey.NewService(memory.New())

	p1, _, err := svc.Issue(context.Background(), "owner-1", "a", 0)
	require.NoError(t, err)
	p2, _, err := svc.Issue(context.Background(), "owner-1", "b", 0)
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
}

func TestIssue_ExpiresInDays(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := apikey.NewService(memory.New(), apikey.WithClock(func() time.Time { return base }))

	_, k, err := svc.Issue(context.Background(), "owner-1", "temp", 7)
	require.NoError(t, err)
	require.NotNil(t, k.ExpiresAt)
	assert.Equal(t, base.Add(7*24*time.Hour), *k.ExpiresAt)
}

func TestValidate_HappyPath(t *testing.T) {
	store := memory.New()
	svc := apikey.NewService(store)

	plaintext, issued, err := svc.Issue(context.Background(), "owner-1", "ci", 0)
	require.NoError(t, err)

	got, err := svc.Validate(context.Background(), plaintext)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, got.ID)
	assert.Equal(t, "owner-1", got.OwnerID)

	// el touch de last_used corre en background
	require.Eventually(t, func() bool {
		k, err := store.GetAPIKeyByID(context.Background(), issued.ID, "owner-1")
		return err == nil && k.LastUsedAt != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestValidate_ShapeRejectedWithoutStore(t *testing.T) {
	svc := apikey.NewService(memory.New())

	for _, candidate := range []string{
		"",
		"rk_",
		"rk_corta",
		"Bearer abc",
		"sk_" + strings.Repeat("a", 64),
		"rk_" + strings.Repeat("a", 63), // un char menos
		"rk_" + strings.Repeat("a", 65), // un char más
	} {
		_, err := svc.Validate(context.Background(), candidate)
		assert.ErrorIs(t, err, apikey.ErrKeyNotFound, "candidate %q", candidate)
	}
}

func TestValidate_UnknownKey(t *testing.T) {
	svc := apikey.NewService(memory.New())

	_, err := svc.Validate(context.Background(), "rk_"+strings.Repeat("0", 64))
	assert.ErrorIs(t, err, apikey.ErrKeyNotFound)
}

func TestValidate_RevokedKey(t *testing.T) {
	svc := apikey.NewService(memory.New())

	plaintext, k, err := svc.Issue(context.Background(), "owner-1", "ci", 0)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(context.Background(), k.ID, "owner-1"))

	_, err = svc.Validate(context.Background(), plaintext)
	assert.ErrorIs(t, err, apikey.ErrKeyNotFound)
}

func TestValidate_ExpiredKey(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc := apikey.NewService(memory.New(), apikey.WithClock(clock))

	// vence en 1 día; dos días después ya no valida
	plaintext, _, err := svc.Issue(context.Background(), "owner-1", "temp", 1)
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), plaintext)
	require.NoError(t, err)

	now = now.Add(48 * time.Hour)
	_, err = svc.Validate(context.Background(), plaintext)
	assert.ErrorIs(t, err, apikey.ErrKeyNotFound)
}

func TestValidate_CacheHitAndInvalidation(t *testing.T) {
	store := memory.New()
	svc := apikey.NewService(store, apikey.WithCache(newMemCache(t), time.Minute))

	plaintext, k, err := svc.Issue(context.Background(), "owner-1", "ci", 0)
	require.NoError(t, err)

	// primer Validate puebla el cache
	_, err = svc.Validate(context.Background(), plaintext)
	require.NoError(t, err)

	// segundo Validate resuelve desde cache
	got, err := svc.Validate(context.Background(), plaintext)
	require.NoError(t, err)
	assert.Equal(t, k.ID, got.ID)

	// revoke invalida: el próximo Validate no puede servir el valor viejo
	require.NoError(t, svc.Revoke(context.Background(), k.ID, "owner-1"))
	_, err = svc.Validate(context.Background(), plaintext)
	assert.ErrorIs(t, err, apikey.ErrKeyNotFound)
}

func TestListByOwner_StripsHash(t *testing.T) {
	svc := apikey.NewService(memory.New())

	_, _, err := svc.Issue(context.Background(), "owner-1", "a", 0)
	require.NoError(t, err)
	_, _, err = svc.Issue(context.Background(), "owner-1", "b", 0)
	require.NoError(t, err)
	_, _, err = svc.Issue(context.Background(), "owner-2", "ajena", 0)
	require.NoError(t, err)

	keys, err := svc.ListByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	for _, k := range keys {
		assert.Empty(t, k.SecretHash)
		assert.Equal(t, "owner-1", k.OwnerID)
	}
}

func TestRevoke_Idempotencia(t *testing.T) {
	svc := apikey.NewService(memory.New())

	_, k, err := svc.Issue(context.Background(), "owner-1", "ci", 0)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), k.ID, "owner-1"))
	// revocar de nuevo no es error: la key existe y sigue inactiva
	require.NoError(t, svc.Revoke(context.Background(), k.ID, "owner-1"))
}

func TestRevoke_OwnerAjeno(t *testing.T) {
	svc := apikey.NewService(memory.New())

	_, k, err := svc.Issue(context.Background(), "owner-1", "ci", 0)
	require.NoError(t, err)

	err = svc.Revoke(context.Background(), k.ID, "owner-2")
	assert.ErrorIs(t, err, apikey.ErrKeyNotFound)

	// la key del owner real sigue activa
	got, err := svc.ListByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Active)
}

func TestDelete_RemovesKey(t *testing.T) {
	svc := apikey.NewService(memory.New())

	plaintext, k, err := svc.Issue(context.Background(), "owner-1", "ci", 0)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), k.ID, "owner-1"))

	_, err = svc.Validate(context.Background(), plaintext)
	assert.ErrorIs(t, err, apikey.ErrKeyNotFound)

	err = svc.Delete(context.Background(), k.ID, "owner-1")
	assert.ErrorIs(t, err, apikey.ErrKeyNotFound)
}

func TestExpired_NilExpiryNeverExpires(t *testing.T) {
	k := core.APIKey{Active: true}
	assert.False(t, k.Expired(time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)))
}
