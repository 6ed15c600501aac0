package authorization

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/timely-app/timelyd/internal/storage"
	"go.uber.org/zap/zapcore"
)

var (
	ErrNoToken      = errors.New("no stored API token")
	ErrTokenExpired = errors.New("stored API token is expired")
)

type Log interface {
	Info(string, ...zapcore.Field)
	Warn(string, ...zapcore.Field)
}

type Store interface {
	Get(string) (string, error)
	Set(string, string) error
}

// TokenSource reads the stored API JWT and attaches it to outgoing requests.
// The server owns the signature; the client only checks the expiry claim to
// avoid sending requests doomed to a 401.
type TokenSource struct {
	store Store
	log   Log
}

func NewTokenSource(store Store, log Log) *TokenSource {
	return &TokenSource{
		store: store,
		log:   log,
	}
}

// Token returns the stored token after an expiry check.
func (t *TokenSource) Token() (string, error) {
	raw, err := t.store.Get(storage.KeyAuthToken)
	if err != nil {
		return "", ErrNoToken
	}

	claims := jwt.MapClaims{}

	parser := new(jwt.Parser)
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		// not a JWT at all: pass it through, the server decides
		return raw, nil
	}

	if !claims.VerifyExpiresAt(time.Now().Unix(), false) {
		t.log.Warn("stored API token is expired, re-authentication required")
		return "", ErrTokenExpired
	}

	return raw, nil
}

// SetToken stores a fresh token.
func (t *TokenSource) SetToken(raw string) error {
	if raw == "" {
		return ErrNoToken
	}

	return t.store.Set(storage.KeyAuthToken, raw)
}

// Authorize attaches the bearer token to an outgoing request.
func (t *TokenSource) Authorize(r *http.Request) error {
	token, err := t.Token()
	if err != nil {
		return err
	}

	r.Header.Set("Authorization", "Bearer "+token)

	return nil
}
