package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolekits/core/internal/auth"
	"github.com/rolekits/core/internal/auth/apikey"
	"github.com/rolekits/core/internal/auth/token"
	"github.com/rolekits/core/internal/store/memory"
)

func newGate(t *testing.T) (*auth.Gate, *token.Verifier, *apikey.Service) {
	t.Helper()
	v := token.New([]byte("un-secreto-de-al-menos-32-bytes!!"), "")
	svc := apikey.NewService(memory.New())
	return auth.NewGate(v, svc), v, svc
}

func TestAuthenticate_Bearer(t *testing.T) {
	gate, v, _ := newGate(t)

	raw, err := v.Mint("user-42", "Ada", time.Hour)
	require.NoError(t, err)

	for _, header := range []string{
		"Bearer " + raw,
		"bearer " + raw,
		"  Bearer " + raw + "  ",
		raw, // sin scheme también vale
	} {
		p, err := gate.Authenticate(context.Background(), header)
		require.NoError(t, err, "header %q", header)
		assert.Equal(t, "user-42", p.SubjectID)
		assert.Equal(t, "Ada", p.DisplayName)
	}
}

func TestAuthenticate_APIKeyFallback(t *testing.T) {
	gate, _, svc := newGate(t)

	plaintext, _, err := svc.Issue(context.Background(), "owner-7", "ci-deploy", 0)
	require.NoError(t, err)

	// la key viaja en el mismo header, con o sin scheme Bearer
	for _, header := range []string{plaintext, "Bearer " + plaintext} {
		p, err := gate.Authenticate(context.Background(), header)
		require.NoError(t, err, "header %q", header)
		assert.Equal(t, "owner-7", p.SubjectID)
		assert.Equal(t, "ci-deploy", p.DisplayName)
	}
}

func TestAuthenticate_OpaqueFailure(t *testing.T) {
	gate, v, svc := newGate(t)

	expired, err := v.Mint("user-42", "", -5*time.Minute)
	require.NoError(t, err)

	plaintext, k, err := svc.Issue(context.Background(), "owner-7", "ci", 0)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(context.Background(), k.ID, "owner-7"))

	// firma rota, token vencido, key desconocida y key revocada: todas
	// devuelven exactamente el mismo error
	for _, header := range []string{
		"",
		"Bearer ",
		"Bearer basura",
		"Bearer " + expired,
		"rk_" + strings.Repeat("0", 64),
		plaintext,
	} {
		_, err := gate.Authenticate(context.Background(), header)
		assert.ErrorIs(t, err, auth.ErrUnauthenticated, "header %q", header)
	}
}

func TestAuthenticate_NilKeystore(t *testing.T) {
	v := token.New([]byte("un-secreto-de-al-menos-32-bytes!!"), "")
	gate := auth.NewGate(v, nil)

	raw, err := v.Mint("user-42", "", time.Hour)
	require.NoError(t, err)

	p, err := gate.Authenticate(context.Background(), "Bearer "+raw)
	require.NoError(t, err)
	assert.Equal(t, "user-42", p.SubjectID)

	// con pinta de API key pero sin keystore: opaco igual
	_, err = gate.Authenticate(context.Background(), "rk_"+strings.Repeat("a", 64))
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}
