package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Well-known role names issued by the Trid backend.
const (
	RoleAdmin  = "ROLE_ADMIN"
	RoleSeller = "ROLE_SELLER"
	RoleUser   = "ROLE_USER"
)

// ErrIncomplete is returned when an identity is missing a required field.
var ErrIncomplete = errors.New("identity is incomplete")

// Identity is the authenticated user's profile and tokens as held by the web tier.
type Identity struct {
	Email        string   `json:"email"`
	FullName     string   `json:"fullName"`
	Roles        []string `json:"roles"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

// Validate reports whether every required field is present. Roles may be empty.
func (i Identity) Validate() error {
	switch {
	case strings.TrimSpace(i.Email) == "":
		return fmt.Errorf("%w: email", ErrIncomplete)
	case strings.TrimSpace(i.FullName) == "":
		return fmt.Errorf("%w: full name", ErrIncomplete)
	case i.AccessToken == "":
		return fmt.Errorf("%w: access token", ErrIncomplete)
	case i.RefreshToken == "":
		return fmt.Errorf("%w: refresh token", ErrIncomplete)
	}
	return nil
}

// HasAnyRole reports whether the identity holds at least one of the required roles.
func (i Identity) HasAnyRole(required ...string) bool {
	for _, want := range required {
		for _, have := range i.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Clone returns a copy that shares no slices with the receiver.
func (i Identity) Clone() Identity {
	out := i
	if i.Roles != nil {
		out.Roles = append([]string(nil), i.Roles...)
	}
	return out
}

// AccessTokenExpiry decodes the exp claim of a JWT access token. The signature is
// not checked; the backend remains the authority on token validity. Opaque tokens
// and tokens without exp report ok=false.
func (i Identity) AccessTokenExpiry() (time.Time, bool) {
	if strings.Count(i.AccessToken, ".") != 2 {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(i.AccessToken, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Expired reports whether the access token carries an exp claim that is not after now.
func (i Identity) Expired(now time.Time) bool {
	exp, ok := i.AccessTokenExpiry()
	if !ok {
		return false
	}
	return !now.Before(exp)
}

// Public is the projection of an identity that is safe to hand to the browser.
type Public struct {
	Email    string   `json:"email"`
	FullName string   `json:"fullName"`
	Roles    []string `json:"roles"`
}

// Public strips the tokens.
func (i Identity) Public() Public {
	roles := i.Roles
	if roles == nil {
		roles = []string{}
	}
	return Public{Email: i.Email, FullName: i.FullName, Roles: roles}
}
