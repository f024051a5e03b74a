// Package autologin decides, once per process start, how the app wakes up:
// silently restored, asking for a PIN, or back at the login screen.
package autologin

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sitelink/go-client-auth/session"
)

// SessionRestorer is the slice of the session store the orchestrator drives.
type SessionRestorer interface {
	Restore(ctx context.Context) bool
	Snapshot() session.AuthState
}

// Orchestrator runs the silent-restore decision exactly once. Repeat Run
// calls return the already-resolved outcome.
type Orchestrator struct {
	store   SessionRestorer
	timeout time.Duration
	log     zerolog.Logger

	once     sync.Once
	restored bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout bounds the silent restore. A restore that exceeds it fails
// toward interactive auth, never toward an indefinite spinner.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = log
	}
}

// New initializes an Orchestrator.
func New(store SessionRestorer, options ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("[autologin.New] store is required")
	}
	o := &Orchestrator{
		store:   store,
		timeout: 15 * time.Second,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(o)
	}
	return o, nil
}

// Run performs the auto-login decision: silent restore when an artifact
// exists, PINRequired when restore fails but a PIN is set, Unauthenticated
// otherwise. It returns true when a session was silently restored.
func (o *Orchestrator) Run(ctx context.Context) bool {
	o.once.Do(func() {
		restoreCtx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()

		o.restored = o.store.Restore(restoreCtx)
		o.log.Info().
			Bool("restored", o.restored).
			Str("state", o.store.Snapshot().State.String()).
			Msg("auto-login resolved")
	})
	return o.restored
}
