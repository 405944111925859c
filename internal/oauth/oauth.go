package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// GooglePath is the backend entry point that starts the Google round-trip.
const GooglePath = "/login/code/google"

// CallbackPath is where the backend sends the browser back with tokens.
const CallbackPath = "/auth/oauth2/redirect"

// ErrInvalidState is returned for a state parameter that cannot be decoded.
var ErrInvalidState = errors.New("invalid oauth state")

// Initiator builds the URL that sends the browser to the backend's Google login.
type Initiator struct {
	config *oauth2.Config
}

// NewInitiator creates an Initiator for the given backend and public frontend base URLs.
func NewInitiator(backendURL, frontendURL, clientID string) *Initiator {
	backendURL = strings.TrimSuffix(backendURL, "/")
	frontendURL = strings.TrimSuffix(frontendURL, "/")

	return &Initiator{
		config: &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: frontendURL + CallbackPath,
			Endpoint: oauth2.Endpoint{
				AuthURL: backendURL + GooglePath,
			},
			Scopes: []string{"email", "profile"},
		},
	}
}

// AuthURL returns the backend login URL carrying state.
func (i *Initiator) AuthURL(state string) string {
	return i.config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// GenerateState generates a cryptographically secure random state string.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// State is the payload carried through the round-trip: the CSRF nonce and an optional return path.
type State struct {
	Nonce      string `json:"s"`
	RedirectTo string `json:"r,omitempty"`
}

// Encode renders the state as base64 JSON. An unsafe RedirectTo is dropped.
func (s State) Encode() string {
	if !ValidRedirectPath(s.RedirectTo) {
		s.RedirectTo = ""
	}
	raw, _ := json.Marshal(s)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeState parses a state parameter produced by Encode.
func DecodeState(param string) (State, error) {
	raw, err := base64.RawURLEncoding.DecodeString(param)
	if err != nil {
		return State{}, fmt.Errorf("%w: encoding", ErrInvalidState)
	}

	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, fmt.Errorf("%w: payload", ErrInvalidState)
	}
	if s.Nonce == "" {
		return State{}, fmt.Errorf("%w: missing nonce", ErrInvalidState)
	}
	if !ValidRedirectPath(s.RedirectTo) {
		s.RedirectTo = ""
	}
	return s, nil
}

// ValidRedirectPath reports whether path is a safe relative redirect: a single leading slash,
// no scheme or host, including after URL decoding.
func ValidRedirectPath(path string) bool {
	if path == "" {
		return false
	}

	decoded, err := url.QueryUnescape(path)
	if err != nil {
		return false
	}
	if !strings.HasPrefix(decoded, "/") || strings.HasPrefix(decoded, "//") || strings.Contains(decoded, `\`) {
		return false
	}

	parsed, err := url.Parse(decoded)
	if err != nil {
		return false
	}
	return parsed.Scheme == "" && parsed.Host == ""
}
