package backendfake

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sitelink/go-client-auth/clients"
	"github.com/sitelink/go-client-auth/internal/utils"
)

var _ clients.Backend = (*FakeBackend)(nil)

// FakeBackend is an in-memory Backend. Remember-me artifacts are minted as
// HS256 JWTs with a per-instance random key, so presenting an artifact from a
// different instance (or a revoked one) is rejected the way a real transport
// would reject it.
type FakeBackend struct {
	lock      sync.Mutex
	records   map[string]*clients.Client
	tokens    map[string]string // invitation token -> client ID
	consumed  map[string]bool   // invitation token -> already exchanged
	revoked   map[string]bool   // artifact jti -> revoked
	signKey   []byte
	nextErr   error // returned by the next backend call, then cleared

	// SignInHook, when set, runs inside SignInWithArtifact before any work.
	// Tests use it to hold a silent restore in flight.
	SignInHook func()

	// Call counters for assertions.
	ExchangeCalls int
	SignInCalls   int
	GetCalls      int
	DeleteCalls   int
}

// NewFakeBackend creates an empty fake backend with a fresh signing key.
func NewFakeBackend() *FakeBackend {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(errors.Wrap(err, "[NewFakeBackend] rand.Read"))
	}
	return &FakeBackend{
		records:  make(map[string]*clients.Client),
		tokens:   make(map[string]string),
		consumed: make(map[string]bool),
		revoked:  make(map[string]bool),
		signKey:  key,
	}
}

// SeedInvitedClient stores a client record and returns a fresh invitation
// token for it.
func (b *FakeBackend) SeedInvitedClient(c clients.Client) string {
	b.lock.Lock()
	defer b.lock.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = clients.StatusActive
	}
	if c.InvitationStatus == "" {
		c.InvitationStatus = clients.InvitationPending
	}
	b.records[c.ID] = &c

	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		panic(errors.Wrap(err, "[SeedInvitedClient] rand.Read"))
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	b.tokens[token] = c.ID
	return token
}

// FailNextWith arranges for the next backend call to fail with err.
func (b *FakeBackend) FailNextWith(err error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.nextErr = err
}

// DisableClient marks a record as disabled, as a project manager would from
// the admin console.
func (b *FakeBackend) DisableClient(clientID string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if c, ok := b.records[clientID]; ok {
		c.Status = clients.StatusDisabled
	}
}

func (b *FakeBackend) takeNextErr() error {
	err := b.nextErr
	b.nextErr = nil
	return err
}

func (b *FakeBackend) ExchangeInvitationToken(ctx context.Context, token string) (*clients.Client, clients.Artifact, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.ExchangeCalls++

	if err := b.takeNextErr(); err != nil {
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", clients.NewBackendError(clients.CodeUnavailable, err.Error())
	}

	clientID, ok := b.tokens[token]
	if !ok {
		return nil, "", clients.NewBackendError(clients.CodeTokenNotFound, "unknown invitation token")
	}
	if b.consumed[token] {
		return nil, "", clients.NewBackendError(clients.CodeTokenConsumed, "invitation token already exchanged")
	}

	record, ok := b.records[clientID]
	if !ok {
		return nil, "", clients.NewBackendError(clients.CodeRecordNotFound, "client record missing")
	}
	if record.Disabled() {
		return nil, "", clients.NewBackendError(clients.CodeAccountDisabled, "client is disabled")
	}

	b.consumed[token] = true
	record.InvitationStatus = clients.InvitationAccepted
	record.AcceptedAt = utils.Ptr(time.Now())

	artifact, err := b.mintArtifact(clientID)
	if err != nil {
		return nil, "", clients.NewBackendError(clients.CodeUnavailable, err.Error())
	}

	snapshot := *record
	return &snapshot, artifact, nil
}

func (b *FakeBackend) SignInWithArtifact(ctx context.Context, artifact clients.Artifact) (string, error) {
	if hook := b.SignInHook; hook != nil {
		hook()
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	b.SignInCalls++

	if err := b.takeNextErr(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", clients.NewBackendError(clients.CodeUnavailable, err.Error())
	}

	clientID, jti, err := b.verifyArtifact(artifact)
	if err != nil {
		return "", clients.NewBackendError(clients.CodeInvalidArtifact, err.Error())
	}
	if b.revoked[jti] {
		return "", clients.NewBackendError(clients.CodeInvalidArtifact, "artifact revoked")
	}
	record, ok := b.records[clientID]
	if !ok {
		return "", clients.NewBackendError(clients.CodeRecordNotFound, "client record missing")
	}
	if record.Disabled() {
		return "", clients.NewBackendError(clients.CodeAccountDisabled, "client is disabled")
	}
	return clientID, nil
}

func (b *FakeBackend) GetClientRecord(ctx context.Context, clientID string) (*clients.Client, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.GetCalls++

	if err := b.takeNextErr(); err != nil {
		return nil, err
	}
	record, ok := b.records[clientID]
	if !ok {
		return nil, clients.NewBackendError(clients.CodeRecordNotFound, "client record missing")
	}
	if record.Disabled() {
		return nil, clients.NewBackendError(clients.CodeAccountDisabled, "client is disabled")
	}
	snapshot := *record
	return &snapshot, nil
}

func (b *FakeBackend) DeleteClientRecord(ctx context.Context, clientID string) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.DeleteCalls++

	if err := b.takeNextErr(); err != nil {
		return err
	}
	if _, ok := b.records[clientID]; !ok {
		return clients.NewBackendError(clients.CodeRecordNotFound, "client record missing")
	}
	delete(b.records, clientID)
	for token, id := range b.tokens {
		if id == clientID {
			delete(b.tokens, token)
		}
	}
	return nil
}

// PutRecord stores or replaces a client record without issuing an invitation
// token, the way a project manager editing the record would.
func (b *FakeBackend) PutRecord(c clients.Client) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.records[c.ID] = &c
}

// HasRecord reports whether a client record still exists.
func (b *FakeBackend) HasRecord(clientID string) bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	_, ok := b.records[clientID]
	return ok
}

func (b *FakeBackend) mintArtifact(clientID string) (clients.Artifact, error) {
	jti := uuid.New().String()
	claims := jwt.RegisteredClaims{
		Subject:  clientID,
		ID:       jti,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.signKey)
	if err != nil {
		return "", errors.Wrap(err, "[mintArtifact] SignedString")
	}
	return clients.Artifact(signed), nil
}

func (b *FakeBackend) verifyArtifact(artifact clients.Artifact) (clientID, jti string, err error) {
	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(string(artifact), claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return b.signKey, nil
	})
	if err != nil {
		return "", "", errors.Wrap(err, "[verifyArtifact] ParseWithClaims")
	}
	if claims.Subject == "" {
		return "", "", errors.New("[verifyArtifact] artifact has no subject")
	}
	return claims.Subject, claims.ID, nil
}
