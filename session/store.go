package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sitelink/go-client-auth/autherr"
	"github.com/sitelink/go-client-auth/clients"
	"github.com/sitelink/go-client-auth/vault"
)

// InvitationExchanger redeems an invitation token for a Session.
type InvitationExchanger interface {
	Exchange(ctx context.Context, token string) (*Session, error)
}

// PINAuthenticator restores a persisted Session from a locally verified PIN.
type PINAuthenticator interface {
	Login(ctx context.Context, pin string) (*Session, error)
}

// Deps holds all collaborator dependencies for the Store.
type Deps struct {
	Backend       clients.Backend
	Vault         *vault.Vault
	Exchanger     InvitationExchanger
	Authenticator PINAuthenticator
}

// Store owns the authentication state machine. State-mutating operations are
// serialized by supersession: starting an operation bumps an epoch, and a
// completion is applied only if its epoch is still current. A restore that
// resolves after the user has already exchanged a fresh invitation is dropped
// silently instead of clobbering the newer identity.
type Store struct {
	mu       sync.Mutex
	deps     Deps
	state    AuthState
	epoch    uint64
	lastErr  string
	pending  []AuthState
	subs     map[int]func(AuthState)
	nextSub  int
	draining bool

	nowTime func() time.Time
	log     zerolog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// WithLogger sets the logger transitions are reported to.
func WithLogger(log zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.log = log
	}
}

// NewStore initializes a Store with required collaborators. The store starts
// Unauthenticated; the auto-login orchestrator moves it from there.
func NewStore(deps Deps, options ...StoreOption) (*Store, error) {
	if deps.Backend == nil {
		return nil, errors.New("[NewStore] Backend is required")
	}
	if deps.Vault == nil {
		return nil, errors.New("[NewStore] Vault is required")
	}
	if deps.Exchanger == nil {
		return nil, errors.New("[NewStore] Exchanger is required")
	}
	if deps.Authenticator == nil {
		return nil, errors.New("[NewStore] Authenticator is required")
	}

	store := &Store{
		deps:    deps,
		state:   AuthState{State: Unauthenticated},
		subs:    make(map[int]func(AuthState)),
		nowTime: time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(store)
	}
	return store, nil
}

// Snapshot returns the currently published AuthState.
func (s *Store) Snapshot() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentState returns the state machine position.
func (s *Store) CurrentState() State {
	return s.Snapshot().State
}

// LastError returns the human-facing reason string for the most recent
// failed operation, or "" if the last operation succeeded.
func (s *Store) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Subscribe registers fn to receive every published AuthState, starting with
// the current one. The returned function unsubscribes.
func (s *Store) Subscribe(fn func(AuthState)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	snapshot := s.state
	s.mu.Unlock()

	fn(snapshot)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// AuthenticateWithInvitation exchanges an invitation token for a session.
func (s *Store) AuthenticateWithInvitation(ctx context.Context, token string) bool {
	epoch := s.begin("invitation", true, nil)
	sess, err := s.deps.Exchanger.Exchange(ctx, token)
	return s.completeLogin(epoch, "invitation", sess, err)
}

// LoginWithPIN restores the persisted session after verifying pin locally.
func (s *Store) LoginWithPIN(ctx context.Context, pin string) bool {
	epoch := s.begin("pin-login", true, nil)
	sess, err := s.deps.Authenticator.Login(ctx, pin)
	return s.completeLogin(epoch, "pin-login", sess, err)
}

// Restore attempts the silent session restore. Any failure along the way
// resolves to PINRequired when a PIN credential exists, Unauthenticated
// otherwise - a network error never leaves the store stuck in Restoring.
func (s *Store) Restore(ctx context.Context) bool {
	restoring := Restoring
	epoch := s.begin("restore", true, &restoring)

	artifact, ok := s.deps.Vault.LoadArtifact()
	if !ok {
		return s.completeRestoreFallback(epoch, nil)
	}

	clientID, err := s.deps.Backend.SignInWithArtifact(ctx, artifact)
	if err != nil {
		return s.completeRestoreFallback(epoch, err)
	}

	record, err := s.deps.Backend.GetClientRecord(ctx, clientID)
	if err != nil {
		return s.completeRestoreFallback(epoch, err)
	}

	return s.completeLogin(epoch, "restore", New(*record, s.nowTime()), nil)
}

// Refresh re-fetches the record snapshot for the current session. The
// session identity never changes; a successful refresh publishes a new
// Authenticated state carrying a new Session value.
func (s *Store) Refresh(ctx context.Context) bool {
	s.mu.Lock()
	current := s.state.Session
	if current == nil {
		s.lastErr = autherr.Reason(autherr.NoActiveSessionErr)
		s.mu.Unlock()
		return false
	}
	s.epoch++
	epoch := s.epoch
	s.lastErr = ""
	s.mu.Unlock()

	record, err := s.deps.Backend.GetClientRecord(ctx, current.ClientID)
	if err != nil {
		return s.fail(epoch, "refresh", translateBackend(err))
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		s.log.Debug().Str("op", "refresh").Msg("stale completion dropped")
		return false
	}
	s.state = AuthState{
		State:   Authenticated,
		Session: current.WithClient(*record),
	}
	s.publishLocked()
	s.mu.Unlock()
	s.notify()
	return true
}

// Logout ends the current session and clears the remember-me artifact. The
// PIN credential is kept, so the next launch asks for the PIN.
func (s *Store) Logout(ctx context.Context) bool {
	s.mu.Lock()
	if s.state.Session == nil {
		s.lastErr = autherr.Reason(autherr.NoActiveSessionErr)
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	epoch := s.begin("logout", true, nil)

	if err := s.deps.Vault.ClearArtifact(); err != nil {
		// Fail closed: an unreadable artifact is as good as a cleared one.
		s.log.Warn().Err(err).Msg("artifact clear failed during logout")
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return false
	}
	s.transitionLocked("logout", AuthState{
		State:       Unauthenticated,
		RequiresPIN: s.deps.Vault.HasPIN(),
	})
	s.mu.Unlock()
	s.notify()
	return true
}

// DeleteAccount removes the client record on the backend and then clears all
// local credentials. Remote deletion must succeed first: a failed remote
// delete leaves the device signed in, never logged-out with a live account.
func (s *Store) DeleteAccount(ctx context.Context) bool {
	s.mu.Lock()
	current := s.state.Session
	if current == nil {
		s.lastErr = autherr.Reason(autherr.NoActiveSessionErr)
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	epoch := s.begin("delete-account", true, nil)

	if err := s.deps.Backend.DeleteClientRecord(ctx, current.ClientID); err != nil {
		return s.fail(epoch, "delete-account", translateBackend(err))
	}

	if err := s.deps.Vault.Clear(); err != nil {
		s.log.Warn().Err(err).Msg("vault clear failed during account deletion")
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return false
	}
	s.transitionLocked("delete-account", AuthState{State: Unauthenticated})
	s.mu.Unlock()
	s.notify()
	return true
}

// CreatePIN stores a PIN credential scoped to the current session's client.
// Requires an authenticated session; the PIN unlocks this client only.
func (s *Store) CreatePIN(pin string) bool {
	s.mu.Lock()
	current := s.state.Session
	s.mu.Unlock()

	if current == nil {
		s.setLastError(autherr.NoActiveSessionErr)
		return false
	}
	if !vault.ValidPINFormat(pin) {
		s.setLastError(autherr.PINInvalidFormatErr)
		return false
	}
	if err := s.deps.Vault.SetPIN(current.ClientID, pin); err != nil {
		s.log.Warn().Err(err).Msg("pin store failed")
		s.setLastError(err)
		return false
	}
	s.setLastError(nil)
	return true
}

// HasPIN reports whether a PIN credential exists on this device.
func (s *Store) HasPIN() bool {
	return s.deps.Vault.HasPIN()
}

// begin starts a state-mutating operation: bumps the epoch, optionally moves
// to a transient state, asserts Loading, and publishes.
func (s *Store) begin(op string, loading bool, transient *State) uint64 {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.lastErr = ""
	if transient != nil {
		s.state = AuthState{State: *transient}
	}
	s.state.Loading = loading
	s.publishLocked()
	s.mu.Unlock()
	s.notify()

	s.log.Debug().Str("op", op).Uint64("epoch", epoch).Msg("operation started")
	return epoch
}

// completeLogin applies the result of an operation that produces a session
// on success. Stale completions are dropped.
func (s *Store) completeLogin(epoch uint64, op string, sess *Session, err error) bool {
	if err != nil {
		return s.fail(epoch, op, err)
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		s.log.Debug().Str("op", op).Uint64("epoch", epoch).Msg("stale completion dropped")
		return false
	}
	s.transitionLocked(op, AuthState{
		State:   Authenticated,
		Session: sess,
	})
	s.mu.Unlock()
	s.notify()
	return true
}

// completeRestoreFallback resolves a failed silent restore: PINRequired when
// a PIN credential exists, Unauthenticated otherwise.
func (s *Store) completeRestoreFallback(epoch uint64, cause error) bool {
	if cause != nil {
		s.log.Warn().Err(cause).Msg("silent restore failed, falling back to interactive auth")
	}
	hasPIN := s.deps.Vault.HasPIN()

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		s.log.Debug().Str("op", "restore").Uint64("epoch", epoch).Msg("stale completion dropped")
		return false
	}
	next := AuthState{State: Unauthenticated}
	if hasPIN {
		next = AuthState{State: PINRequired, RequiresPIN: true}
	}
	s.transitionLocked("restore", next)
	s.mu.Unlock()
	s.notify()
	return false
}

// fail records a failed operation: Loading is cleared, the state machine
// position is kept, and the reason string is published for the UI.
func (s *Store) fail(epoch uint64, op string, err error) bool {
	hasPIN := s.deps.Vault.HasPIN()

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		s.log.Debug().Str("op", op).Uint64("epoch", epoch).Msg("stale failure dropped")
		return false
	}
	s.lastErr = autherr.Reason(err)
	if s.state.State == Restoring {
		// A failed operation must not strand the transient state.
		s.state.State = Unauthenticated
		if hasPIN {
			s.state.State = PINRequired
		}
	}
	s.state.Loading = false
	s.state.RequiresPIN = s.state.Session == nil && hasPIN
	s.publishLocked()
	s.mu.Unlock()
	s.notify()

	s.log.Warn().Str("op", op).Err(err).Msg("operation failed")
	return false
}

// transitionLocked replaces the published state. Caller holds s.mu.
func (s *Store) transitionLocked(op string, next AuthState) {
	next.Loading = false
	if next.Session == nil && next.State != Restoring {
		next.RequiresPIN = next.RequiresPIN || next.State == PINRequired
	}
	s.log.Info().
		Str("op", op).
		Str("from", s.state.State.String()).
		Str("to", next.State.String()).
		Msg("auth state transition")
	s.state = next
	s.lastErr = ""
	s.publishLocked()
}

func (s *Store) setLastError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = autherr.Reason(err)
}

// publishLocked queues the current state for subscriber delivery. Caller
// holds s.mu; delivery happens in notify, outside the lock.
func (s *Store) publishLocked() {
	s.pending = append(s.pending, s.state)
}

// notify drains queued snapshots to subscribers in publish order. A publish
// triggered from inside a subscriber callback is queued and picked up by the
// drain already in progress, so delivery order always matches publish order.
func (s *Store) notify() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.draining = false
		again := len(s.pending) > 0
		s.mu.Unlock()
		if again {
			s.notify()
		}
	}()

	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		snapshot := s.pending[0]
		s.pending = s.pending[1:]

		ids := make([]int, 0, len(s.subs))
		for id := range s.subs {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		fns := make([]func(AuthState), 0, len(ids))
		for _, id := range ids {
			fns = append(fns, s.subs[id])
		}
		s.mu.Unlock()

		for _, fn := range fns {
			fn(snapshot)
		}
	}
}

// translateBackend maps backend error codes into the autherr taxonomy.
func translateBackend(err error) error {
	switch clients.Code(err) {
	case clients.CodeAccountDisabled:
		return autherr.AccountDisabledErr
	case clients.CodeTokenNotFound:
		return autherr.TokenNotFoundErr
	case clients.CodeTokenConsumed:
		return autherr.TokenAlreadyUsedErr
	case clients.CodeRecordNotFound, clients.CodeInvalidArtifact:
		return autherr.NoActiveSessionErr
	default:
		return autherr.NetworkErr
	}
}
