package auth

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken is returned when a token is not a three-segment JWT with
// a decodable JSON payload.
var ErrMalformedToken = errors.New("malformed session token")

// Claims are the advisory fields carried in the session token's payload.
// The signature is never verified client-side; the backend remains the
// authority and these fields only drive local decisions.
type Claims struct {
	jwt.RegisteredClaims
	Role     string `json:"role,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Banned   bool   `json:"banned,omitempty"`
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

var segmentParser = jwt.NewParser()

// ParseClaims decodes the middle segment of a token without verifying it.
func ParseClaims(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedToken
	}
	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, ErrMalformedToken
	}
	var c Claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, ErrMalformedToken
	}
	return &c, nil
}
