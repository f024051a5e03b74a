package invitation_test

import (
	"context"
	"testing"

	"github.com/sitelink/go-client-auth/autherr"
	"github.com/sitelink/go-client-auth/clients"
	"github.com/sitelink/go-client-auth/clients/backendfake"
	"github.com/sitelink/go-client-auth/invitation"
	"github.com/sitelink/go-client-auth/vault"
	"github.com/sitelink/go-client-auth/vault/storagefake"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	backend   *backendfake.FakeBackend
	storage   *storagefake.FakeStorage
	vault     *vault.Vault
	exchanger *invitation.Exchanger
	token     string
	ctx       context.Context
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	backend := backendfake.NewFakeBackend()
	token := backend.SeedInvitedClient(clients.Client{
		FirstName:   "Dana",
		LastName:    "Whitmore",
		Email:       "dana.whitmore@example.com",
		ProjectName: "Harbourview Duplex",
	})

	storage := storagefake.NewFakeStorage()
	credentialVault, err := vault.New(storage)
	require.NoError(t, err)

	exchanger, err := invitation.New(backend, credentialVault)
	require.NoError(t, err)

	return &testFixture{
		backend:   backend,
		storage:   storage,
		vault:     credentialVault,
		exchanger: exchanger,
		token:     token,
		ctx:       context.Background(),
	}
}

func TestExchangeMalformedTokenNoBackendCall(t *testing.T) {
	f := setupTestFixture(t)

	for _, token := range []string{"", "   ", "short", "has space-in-it", "bad/chars+here="} {
		_, err := f.exchanger.Exchange(f.ctx, token)
		require.ErrorIs(t, err, autherr.TokenInvalidFormatErr, "token %q", token)
	}
	require.Zero(t, f.backend.ExchangeCalls, "malformed tokens must never reach the backend")
}

func TestExchangeSuccess(t *testing.T) {
	f := setupTestFixture(t)

	sess, err := f.exchanger.Exchange(f.ctx, f.token)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ClientID)
	require.Equal(t, sess.ClientID, sess.Client.ID)
	require.Equal(t, clients.InvitationAccepted, sess.Client.InvitationStatus)
	require.NotNil(t, sess.Client.AcceptedAt)
	require.False(t, sess.IssuedAt.IsZero())

	artifact, ok := f.vault.LoadArtifact()
	require.True(t, ok, "exchange must persist the remember-me artifact")
	require.NotEmpty(t, artifact)
}

func TestExchangeSameTokenTwice(t *testing.T) {
	f := setupTestFixture(t)

	first, err := f.exchanger.Exchange(f.ctx, f.token)
	require.NoError(t, err)

	second, err := f.exchanger.Exchange(f.ctx, f.token)
	require.ErrorIs(t, err, autherr.TokenAlreadyUsedErr, "repeat exchange must fail definitively, not return stale data")
	require.Nil(t, second)
	require.NotEmpty(t, first.ClientID)
}

func TestExchangeUnknownToken(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.exchanger.Exchange(f.ctx, "unknown-token-123")
	require.ErrorIs(t, err, autherr.TokenNotFoundErr)
}

func TestExchangeDisabledAccount(t *testing.T) {
	f := setupTestFixture(t)

	backend := backendfake.NewFakeBackend()
	token := backend.SeedInvitedClient(clients.Client{ID: "blocked-client", FirstName: "Rex"})
	backend.DisableClient("blocked-client")

	exchanger, err := invitation.New(backend, f.vault)
	require.NoError(t, err)

	_, err = exchanger.Exchange(f.ctx, token)
	require.ErrorIs(t, err, autherr.AccountDisabledErr)
}

func TestExchangeBackendOutage(t *testing.T) {
	f := setupTestFixture(t)

	f.backend.FailNextWith(clients.NewBackendError(clients.CodeUnavailable, "simulated outage"))

	_, err := f.exchanger.Exchange(f.ctx, f.token)
	require.ErrorIs(t, err, autherr.NetworkErr)
}

func TestExchangeSucceedsWhenArtifactWriteFails(t *testing.T) {
	f := setupTestFixture(t)

	f.storage.FailWrites(vault.ErrNotFound)

	sess, err := f.exchanger.Exchange(f.ctx, f.token)
	require.NoError(t, err, "the session is valid even if the artifact cannot be persisted")
	require.NotNil(t, sess)
}

func TestValidTokenFormat(t *testing.T) {
	valid := []string{"abcdefgh", "A1b2-C3d_4e5F6", "VALID123"}
	for _, token := range valid {
		require.True(t, invitation.ValidTokenFormat(token), "token %q", token)
	}

	invalid := []string{"", "abc", "with space", "semi;colon", "slash/y", "plus+pad=="}
	for _, token := range invalid {
		require.False(t, invitation.ValidTokenFormat(token), "token %q", token)
	}
}
