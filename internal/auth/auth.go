// Package auth holds the session's bearer credential and answers the two
// auth questions the sync layer asks: is there a usable credential locally,
// and does the backend still accept it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dropdeck/dropdeck/internal/prefs"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrUnauthorized is what a Verifier returns when the backend rejects the
// credential.
var ErrUnauthorized = errors.New("credential rejected")

// Verifier checks a credential with the backend.
type Verifier interface {
	Verify(ctx context.Context) error
}

// CredentialStore persists the credential across restarts.
type CredentialStore interface {
	LoadCredential(ctx context.Context) (prefs.Credential, bool, error)
	SaveCredential(ctx context.Context, c prefs.Credential) error
	ClearCredential(ctx context.Context) error
}

// Authenticator is safe for concurrent use.
type Authenticator struct {
	mu       sync.RWMutex
	cred     prefs.Credential
	store    CredentialStore
	verifier Verifier
	isAuth   func(error) bool
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// WithUnauthorizedMatcher sets how verifier errors are recognized as a
// rejected credential. The default matches ErrUnauthorized.
func WithUnauthorizedMatcher(fn func(error) bool) Option {
	return func(a *Authenticator) { a.isAuth = fn }
}

// New creates an Authenticator. Call Load to pick up a stored credential.
func New(store CredentialStore, verifier Verifier, logger *zap.Logger, opts ...Option) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Authenticator{
		store:    store,
		verifier: verifier,
		isAuth:   func(err error) bool { return errors.Is(err, ErrUnauthorized) },
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetVerifier sets the remote verifier after construction, for callers
// whose verifier itself needs the Authenticator's token.
func (a *Authenticator) SetVerifier(v Verifier) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.verifier = v
}

// Load reads the stored credential, if any.
func (a *Authenticator) Load(ctx context.Context) error {
	c, ok, err := a.store.LoadCredential(ctx)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if ok {
		a.cred = c
	} else {
		a.cred = prefs.Credential{}
	}
	return nil
}

// Token returns the bearer credential, or "" when signed out.
func (a *Authenticator) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cred.Token
}

// Credential returns the current credential.
func (a *Authenticator) Credential() prefs.Credential {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cred
}

// HasCredential is the cheap local check: a token is present and, if it
// is a JWT with an expiry, that expiry has not passed. It never touches
// the network.
func (a *Authenticator) HasCredential() bool {
	tok := a.Token()
	if tok == "" {
		return false
	}
	exp, ok := tokenExpiry(tok)
	if !ok {
		return true
	}
	return a.now().Before(exp)
}

// tokenExpiry reads the exp claim without verifying the signature; the
// backend is the authority, this only avoids sending a token that is
// certainly dead.
func tokenExpiry(tok string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Verify asks the backend whether the credential is still valid. A
// rejection clears the credential and returns false with no error.
// Transport failures return the error and leave the credential alone.
func (a *Authenticator) Verify(ctx context.Context) (bool, error) {
	if !a.HasCredential() {
		return false, nil
	}
	a.mu.RLock()
	v := a.verifier
	a.mu.RUnlock()
	if v == nil {
		return false, errors.New("no verifier configured")
	}
	err := v.Verify(ctx)
	switch {
	case err == nil:
		return true, nil
	case a.isAuth(err):
		a.logger.Info("credential rejected by backend, signing out")
		if err := a.SignOut(ctx); err != nil {
			return false, err
		}
		return false, nil
	default:
		return false, fmt.Errorf("verify credential: %w", err)
	}
}

// SignIn stores a new credential.
func (a *Authenticator) SignIn(ctx context.Context, c prefs.Credential) error {
	if c.Token == "" {
		return errors.New("empty token")
	}
	if c.UserID == "" {
		c.UserID = subjectOf(c.Token)
	}
	if err := a.store.SaveCredential(ctx, c); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	a.mu.Lock()
	a.cred = c
	a.mu.Unlock()
	return nil
}

// SignOut forgets the credential locally and in the store.
func (a *Authenticator) SignOut(ctx context.Context) error {
	a.mu.Lock()
	a.cred = prefs.Credential{}
	a.mu.Unlock()
	if err := a.store.ClearCredential(ctx); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

// subjectOf extracts a user id from common JWT claim shapes.
func subjectOf(tok string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return ""
	}
	for _, key := range []string{"user_id", "userId", "sub"} {
		switch v := claims[key].(type) {
		case string:
			return v
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
