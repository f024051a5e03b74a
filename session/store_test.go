package session_test

import (
	"context"
	"sync"
	"testing"

	"github.com/sitelink/go-client-auth/autherr"
	"github.com/sitelink/go-client-auth/clients"
	"github.com/sitelink/go-client-auth/clients/backendfake"
	"github.com/sitelink/go-client-auth/invitation"
	"github.com/sitelink/go-client-auth/pinauth"
	"github.com/sitelink/go-client-auth/session"
	"github.com/sitelink/go-client-auth/vault"
	"github.com/sitelink/go-client-auth/vault/storagefake"
	"github.com/stretchr/testify/require"
)

const testPIN = "4271"

type testFixture struct {
	backend *backendfake.FakeBackend
	storage *storagefake.FakeStorage
	vault   *vault.Vault
	store   *session.Store
	token   string
	ctx     context.Context
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	backend := backendfake.NewFakeBackend()
	token := backend.SeedInvitedClient(clients.Client{
		FirstName:   "Dana",
		LastName:    "Whitmore",
		ProjectName: "Harbourview Duplex",
	})

	storage := storagefake.NewFakeStorage()
	credentialVault, err := vault.New(storage)
	require.NoError(t, err)

	exchanger, err := invitation.New(backend, credentialVault)
	require.NoError(t, err)
	authenticator, err := pinauth.New(backend, credentialVault)
	require.NoError(t, err)

	store, err := session.NewStore(session.Deps{
		Backend:       backend,
		Vault:         credentialVault,
		Exchanger:     exchanger,
		Authenticator: authenticator,
	})
	require.NoError(t, err)

	return &testFixture{
		backend: backend,
		storage: storage,
		vault:   credentialVault,
		store:   store,
		token:   token,
		ctx:     context.Background(),
	}
}

// login exchanges the fixture invitation and asserts success.
func (f *testFixture) login(t *testing.T) *session.Session {
	t.Helper()
	require.True(t, f.store.AuthenticateWithInvitation(f.ctx, f.token), f.store.LastError())
	sess := f.store.Snapshot().Session
	require.NotNil(t, sess)
	return sess
}

func TestNewStoreValidatesDeps(t *testing.T) {
	f := setupTestFixture(t)

	_, err := session.NewStore(session.Deps{})
	require.Error(t, err)

	_, err = session.NewStore(session.Deps{Backend: f.backend, Vault: f.vault})
	require.Error(t, err)
}

func TestFreshInstallResolvesUnauthenticated(t *testing.T) {
	f := setupTestFixture(t)

	require.False(t, f.store.Restore(f.ctx))

	state := f.store.Snapshot()
	require.Equal(t, session.Unauthenticated, state.State)
	require.False(t, state.Loading)
	require.False(t, state.RequiresPIN)
	require.False(t, state.IsAuthenticated())
	require.Zero(t, f.backend.SignInCalls, "no artifact means no network attempt")
}

func TestInvitationLoginPublishesAuthenticated(t *testing.T) {
	f := setupTestFixture(t)

	sess := f.login(t)
	state := f.store.Snapshot()
	require.Equal(t, session.Authenticated, state.State)
	require.True(t, state.IsAuthenticated())
	require.False(t, state.Loading)
	require.False(t, state.RequiresPIN)
	require.Equal(t, sess.ClientID, sess.Client.ID)
	require.Empty(t, f.store.LastError())
}

func TestSecondExchangeOfSameTokenFailsDefinitively(t *testing.T) {
	f := setupTestFixture(t)

	first := f.login(t)
	require.False(t, f.store.AuthenticateWithInvitation(f.ctx, f.token))

	state := f.store.Snapshot()
	require.Equal(t, session.Authenticated, state.State, "a failed re-exchange must not tear down the session")
	require.Equal(t, first.ClientID, state.Session.ClientID, "two exchanges must never yield two identities")
	require.Equal(t, autherr.Reason(autherr.TokenAlreadyUsedErr), f.store.LastError())
}

func TestRestoreWithArtifactSilentlyAuthenticates(t *testing.T) {
	f := setupTestFixture(t)
	sess := f.login(t)

	require.True(t, f.store.Restore(f.ctx))
	state := f.store.Snapshot()
	require.Equal(t, session.Authenticated, state.State)
	require.Equal(t, sess.ClientID, state.Session.ClientID)
}

func TestRestoreNetworkFailurePrefersPIN(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	require.True(t, f.store.CreatePIN(testPIN))

	f.backend.FailNextWith(clients.NewBackendError(clients.CodeUnavailable, "simulated outage"))
	require.False(t, f.store.Restore(f.ctx))

	state := f.store.Snapshot()
	require.Equal(t, session.PINRequired, state.State, "local credential material must win over forcing a full re-login")
	require.True(t, state.RequiresPIN)
	require.False(t, state.IsAuthenticated())
	require.False(t, state.Loading)
}

func TestRestoreNetworkFailureWithoutPIN(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	f.backend.FailNextWith(clients.NewBackendError(clients.CodeUnavailable, "simulated outage"))
	require.False(t, f.store.Restore(f.ctx))
	require.Equal(t, session.Unauthenticated, f.store.Snapshot().State)
}

func TestPINLoginRestoresSession(t *testing.T) {
	f := setupTestFixture(t)
	sess := f.login(t)
	require.True(t, f.store.CreatePIN(testPIN))

	// Relaunch with the backend briefly unreachable: restore falls back to
	// the PIN prompt, then the PIN unlocks the persisted session.
	f.backend.FailNextWith(clients.NewBackendError(clients.CodeUnavailable, "simulated outage"))
	f.store.Restore(f.ctx)
	require.Equal(t, session.PINRequired, f.store.CurrentState())

	require.True(t, f.store.LoginWithPIN(f.ctx, testPIN), f.store.LastError())
	state := f.store.Snapshot()
	require.Equal(t, session.Authenticated, state.State)
	require.Equal(t, sess.ClientID, state.Session.ClientID)
}

func TestPINLoginWrongLengthMakesZeroVaultCalls(t *testing.T) {
	f := setupTestFixture(t)
	before := f.storage.Calls()

	require.False(t, f.store.LoginWithPIN(f.ctx, "12"))
	require.Equal(t, autherr.Reason(autherr.PINInvalidFormatErr), f.store.LastError())
	require.Equal(t, before, f.storage.Calls())
}

func TestWrongPINKeepsPINRequired(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	require.True(t, f.store.CreatePIN(testPIN))
	f.backend.FailNextWith(clients.NewBackendError(clients.CodeUnavailable, "simulated outage"))
	f.store.Restore(f.ctx)

	require.False(t, f.store.LoginWithPIN(f.ctx, "0000"))
	state := f.store.Snapshot()
	require.Equal(t, session.PINRequired, state.State)
	require.True(t, state.RequiresPIN)
	require.False(t, state.Loading, "loading must clear exactly once, even on error")
	require.Equal(t, autherr.Reason(autherr.WrongPINErr), f.store.LastError())
}

func TestCreatePINRequiresSession(t *testing.T) {
	f := setupTestFixture(t)

	require.False(t, f.store.CreatePIN(testPIN))
	require.Equal(t, autherr.Reason(autherr.NoActiveSessionErr), f.store.LastError())
	require.False(t, f.store.HasPIN())
}

func TestLogoutKeepsPIN(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	require.True(t, f.store.CreatePIN(testPIN))

	require.True(t, f.store.Logout(f.ctx))

	state := f.store.Snapshot()
	require.Equal(t, session.Unauthenticated, state.State)
	require.True(t, state.RequiresPIN)
	require.True(t, f.store.HasPIN(), "logout clears the artifact but not the PIN")
	_, ok := f.storage.Raw("remember_me_artifact")
	require.False(t, ok)
}

func TestLogoutWithoutSession(t *testing.T) {
	f := setupTestFixture(t)

	require.False(t, f.store.Logout(f.ctx))
	require.Equal(t, autherr.Reason(autherr.NoActiveSessionErr), f.store.LastError())
}

func TestDeleteAccountClearsEverything(t *testing.T) {
	f := setupTestFixture(t)
	sess := f.login(t)
	require.True(t, f.store.CreatePIN(testPIN))

	require.True(t, f.store.DeleteAccount(f.ctx))

	require.False(t, f.backend.HasRecord(sess.ClientID))
	require.False(t, f.store.HasPIN())
	_, ok := f.storage.Raw("remember_me_artifact")
	require.False(t, ok)

	state := f.store.Snapshot()
	require.Equal(t, session.Unauthenticated, state.State)
	require.False(t, state.RequiresPIN)
}

func TestDeleteAccountRemoteFailureKeepsLocalState(t *testing.T) {
	f := setupTestFixture(t)
	sess := f.login(t)
	require.True(t, f.store.CreatePIN(testPIN))

	f.backend.FailNextWith(clients.NewBackendError(clients.CodeUnavailable, "simulated outage"))
	require.False(t, f.store.DeleteAccount(f.ctx))

	state := f.store.Snapshot()
	require.Equal(t, session.Authenticated, state.State, "local state is cleared only after remote confirmation")
	require.Equal(t, sess.ClientID, state.Session.ClientID)
	require.True(t, f.store.HasPIN())
	require.True(t, f.backend.HasRecord(sess.ClientID))
	require.Equal(t, autherr.Reason(autherr.NetworkErr), f.store.LastError())
}

func TestRefreshReplacesSnapshotImmutably(t *testing.T) {
	f := setupTestFixture(t)
	before := f.login(t)

	updated := before.Client
	updated.ProjectName = "Harbourview Duplex - Stage 2"
	f.backend.PutRecord(updated)

	require.True(t, f.store.Refresh(f.ctx))

	after := f.store.Snapshot().Session
	require.Equal(t, before.ClientID, after.ClientID)
	require.Equal(t, before.IssuedAt, after.IssuedAt)
	require.Equal(t, "Harbourview Duplex - Stage 2", after.Client.ProjectName)
	require.Equal(t, "Harbourview Duplex", before.Client.ProjectName, "refresh must replace the session, not mutate it")
}

func TestRefreshWithoutSession(t *testing.T) {
	f := setupTestFixture(t)

	require.False(t, f.store.Refresh(f.ctx))
	require.Equal(t, autherr.Reason(autherr.NoActiveSessionErr), f.store.LastError())
}

func TestLaterStartedOperationWinsEpochRace(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t) // stores the artifact the restore will present

	second := f.backend.SeedInvitedClient(clients.Client{
		FirstName:   "Marco",
		LastName:    "Petridis",
		ProjectName: "Ridgeline Townhouses",
	})

	started := make(chan struct{})
	release := make(chan struct{})
	f.backend.SignInHook = func() {
		close(started)
		<-release
		f.backend.SignInHook = nil
	}

	var wg sync.WaitGroup
	var restored bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		restored = f.store.Restore(f.ctx)
	}()
	<-started

	// A deep-linked invitation arrives while the restore is still in flight.
	// It starts later, so by the epoch rule it wins regardless of which
	// network call resolves first.
	require.True(t, f.store.AuthenticateWithInvitation(f.ctx, second))
	marcoID := f.store.Snapshot().Session.ClientID

	close(release)
	wg.Wait()

	require.False(t, restored, "the superseded restore must report failure")
	state := f.store.Snapshot()
	require.Equal(t, session.Authenticated, state.State)
	require.Equal(t, marcoID, state.Session.ClientID, "the stale restore completion must not clobber the newer login")
	require.Equal(t, "Marco Petridis", state.Session.Client.FullName())
}

func TestSubscribersSeeEveryTransitionInOrder(t *testing.T) {
	f := setupTestFixture(t)

	var states []session.AuthState
	unsubscribe := f.store.Subscribe(func(state session.AuthState) {
		states = append(states, state)
	})
	defer unsubscribe()

	f.login(t)

	require.GreaterOrEqual(t, len(states), 3)
	require.Equal(t, session.Unauthenticated, states[0].State, "subscription starts with the current snapshot")
	require.True(t, states[1].Loading, "the in-flight operation is observable")
	last := states[len(states)-1]
	require.Equal(t, session.Authenticated, last.State)
	require.False(t, last.Loading)

	for _, state := range states {
		require.Equal(t, state.Session != nil, state.IsAuthenticated())
		if state.RequiresPIN {
			require.Nil(t, state.Session, "requiresPIN is only meaningful without a session")
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	f := setupTestFixture(t)

	calls := 0
	unsubscribe := f.store.Subscribe(func(session.AuthState) {
		calls++
	})
	unsubscribe()
	before := calls

	f.login(t)
	require.Equal(t, before, calls)
}
