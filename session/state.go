package session

// State is the authentication state machine position.
type State string

const (
	// Unauthenticated - no session, no locally remembered credential path.
	Unauthenticated State = "unauthenticated"

	// Restoring - transient, while the auto-login silent restore is in
	// flight at process start.
	Restoring State = "restoring"

	// PINRequired - no session, but a PIN credential exists on this device.
	PINRequired State = "pin_required"

	// Authenticated - exactly one current session.
	Authenticated State = "authenticated"
)

func (s State) String() string {
	return string(s)
}

// AuthState is the snapshot the Store publishes to subscribers. Each
// transition produces a new value; consumers never mutate a shared object.
type AuthState struct {
	State       State
	Session     *Session // nil unless State == Authenticated
	Loading     bool     // true while a transition-producing operation is in flight
	RequiresPIN bool     // true only when Session == nil and a PIN credential exists
}

// IsAuthenticated reports whether a session is current. It is derived from
// Session so the two can never disagree.
func (a AuthState) IsAuthenticated() bool {
	return a.Session != nil
}
