package model

import "testing"

func TestSessionState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  SessionState
		to    SessionState
		valid bool
	}{
		// Valid transitions
		{SessionAnonymous, SessionAuthenticating, true},
		{SessionAnonymous, SessionAuthenticated, true},
		{SessionAuthenticating, SessionAuthenticated, true},
		{SessionAuthenticating, SessionAnonymous, true},
		{SessionAuthenticated, SessionAuthenticated, true},
		{SessionAuthenticated, SessionSigningOut, true},
		{SessionSigningOut, SessionAnonymous, true},
		{SessionAnonymous, SessionSigningOut, true},
		{SessionAuthenticating, SessionSigningOut, true},

		// Invalid transitions
		{SessionAuthenticated, SessionAnonymous, false},
		{SessionAuthenticated, SessionAuthenticating, false},
		{SessionSigningOut, SessionAuthenticated, false},
		{SessionSigningOut, SessionAuthenticating, false},
		{SessionAnonymous, SessionAnonymous, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("SessionState(%q).CanTransitionTo(%q) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestSessionState_IsSignedIn(t *testing.T) {
	tests := []struct {
		state SessionState
		want  bool
	}{
		{SessionAnonymous, false},
		{SessionAuthenticating, false},
		{SessionAuthenticated, true},
		{SessionSigningOut, false},
	}
	for _, tt := range tests {
		if got := tt.state.IsSignedIn(); got != tt.want {
			t.Errorf("SessionState(%q).IsSignedIn() = %v, want %v", tt.state, got, tt.want)
		}
	}
}
