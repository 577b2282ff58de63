package httpclient

import (
	"net/http"
	"strings"
)

func isSignIn(path string) bool  { return strings.Contains(path, "/auth/signin") }
func isSignUp(path string) bool  { return strings.Contains(path, "/auth/signup") }
func isLogout(path string) bool  { return strings.Contains(path, "/auth/logout") }
func isProfile(path string) bool { return strings.Contains(path, "/profile") }

// isLookup matches the account standing and username availability checks,
// which answer without a session.
func isLookup(path string) bool {
	return strings.HasSuffix(path, "/auth/check-status") || strings.HasSuffix(path, "/user/check-username")
}

// isAnonymousForm matches contact submissions and email verification, which
// are used before an account exists or is confirmed.
func isAnonymousForm(path string) bool {
	return strings.HasSuffix(path, "/contact/submit") || strings.Contains(path, "/verification/")
}

// isAuthEndpoint reports whether path belongs to the auth API, whose replies
// may carry a fresh token and whose 401s mean bad credentials, not expiry.
func isAuthEndpoint(path string) bool {
	return strings.Contains(path, "/auth/")
}

// IsPublic reports whether a call may go out without a valid session.
func IsPublic(method, path string) bool {
	switch {
	case isSignIn(path), isSignUp(path), isLookup(path), isAnonymousForm(path):
		return true
	case strings.Contains(path, "/public/"):
		return true
	case method == http.MethodPost && strings.HasSuffix(strings.TrimSuffix(path, "/"), "/users"):
		return true
	}
	return false
}

// requiresValidToken reports whether the auth interceptor must validate the
// token before sending. Logout is checked even though it is an auth call.
func requiresValidToken(method, path string) bool {
	return !IsPublic(method, path) || isLogout(path)
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
