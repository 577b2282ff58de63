package model

// SessionState represents the lifecycle state of the client session.
type SessionState string

const (
	SessionAnonymous      SessionState = "anonymous"
	SessionAuthenticating SessionState = "authenticating"
	SessionAuthenticated  SessionState = "authenticated"
	SessionSigningOut     SessionState = "signing-out"
)

// String returns the string representation of the session state.
func (s SessionState) String() string {
	return string(s)
}

// IsSignedIn returns true if the session holds a usable identity.
func (s SessionState) IsSignedIn() bool {
	return s == SessionAuthenticated
}

// ValidSessionTransitions defines the allowed state transitions for a session.
// Authenticated may transition to itself on background re-validation.
// Any state may enter signing-out on a forced sign-out; a user sign-out
// starts only from authenticated.
var ValidSessionTransitions = map[SessionState][]SessionState{
	SessionAnonymous:      {SessionAuthenticating, SessionAuthenticated, SessionSigningOut},
	SessionAuthenticating: {SessionAuthenticated, SessionAnonymous, SessionSigningOut},
	SessionAuthenticated:  {SessionAuthenticated, SessionSigningOut},
	SessionSigningOut:     {SessionAnonymous},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	for _, allowed := range ValidSessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
