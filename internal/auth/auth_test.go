package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dropdeck/dropdeck/internal/prefs"
	"github.com/golang-jwt/jwt/v5"
)

type mockVerifier struct {
	err   error
	calls int
}

func (m *mockVerifier) Verify(context.Context) error {
	m.calls++
	return m.err
}

func signed(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func newAuth(t *testing.T, v Verifier, opts ...Option) (*Authenticator, *prefs.Preferences) {
	t.Helper()
	p := prefs.New(prefs.NewMemory())
	return New(p, v, nil, opts...), p
}

func TestHasCredential(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"none", "", false},
		{"opaque token", "abc123", true},
		{"jwt not expired", signed(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}), true},
		{"jwt expired", signed(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))}), false},
		{"jwt without exp", signed(t, jwt.RegisteredClaims{Subject: "7"}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newAuth(t, nil, WithClock(func() time.Time { return now }))
			if tt.token != "" {
				if err := a.SignIn(context.Background(), prefs.Credential{Token: tt.token}); err != nil {
					t.Fatal(err)
				}
			}
			if got := a.HasCredential(); got != tt.want {
				t.Errorf("HasCredential() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifyRejectedSignsOut(t *testing.T) {
	v := &mockVerifier{err: ErrUnauthorized}
	a, p := newAuth(t, v)
	ctx := context.Background()
	_ = a.SignIn(ctx, prefs.Credential{Token: "abc"})

	ok, err := a.Verify(ctx)
	if err != nil || ok {
		t.Fatalf("Verify = %v, %v; want false, nil", ok, err)
	}
	if a.HasCredential() {
		t.Error("credential survived rejection")
	}
	if _, stored, _ := p.LoadCredential(ctx); stored {
		t.Error("stored credential survived rejection")
	}
}

func TestVerifyTransportErrorKeepsCredential(t *testing.T) {
	v := &mockVerifier{err: errors.New("connection refused")}
	a, _ := newAuth(t, v)
	ctx := context.Background()
	_ = a.SignIn(ctx, prefs.Credential{Token: "abc"})

	ok, err := a.Verify(ctx)
	if err == nil || ok {
		t.Fatalf("Verify = %v, %v; want false, error", ok, err)
	}
	if !a.HasCredential() {
		t.Error("transport error must not sign out")
	}
}

func TestVerifySkipsNetworkWithoutCredential(t *testing.T) {
	v := &mockVerifier{}
	a, _ := newAuth(t, v)
	if ok, err := a.Verify(context.Background()); ok || err != nil {
		t.Errorf("Verify = %v, %v", ok, err)
	}
	if v.calls != 0 {
		t.Errorf("verifier called %d times", v.calls)
	}
}

func TestCustomUnauthorizedMatcher(t *testing.T) {
	sentinel := errors.New("401")
	v := &mockVerifier{err: sentinel}
	a, _ := newAuth(t, v, WithUnauthorizedMatcher(func(err error) bool { return errors.Is(err, sentinel) }))
	_ = a.SignIn(context.Background(), prefs.Credential{Token: "abc"})
	if ok, err := a.Verify(context.Background()); ok || err != nil {
		t.Errorf("Verify = %v, %v", ok, err)
	}
}

func TestLoadRestoresCredential(t *testing.T) {
	a, p := newAuth(t, nil)
	ctx := context.Background()
	_ = p.SaveCredential(ctx, prefs.Credential{Token: "stored", UserID: "9"})

	if err := a.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if a.Token() != "stored" || a.Credential().UserID != "9" {
		t.Errorf("credential = %+v", a.Credential())
	}
}

func TestSignInFillsUserIDFromToken(t *testing.T) {
	a, _ := newAuth(t, nil)
	tok := signed(t, jwt.MapClaims{"user_id": 42})
	if err := a.SignIn(context.Background(), prefs.Credential{Token: tok}); err != nil {
		t.Fatal(err)
	}
	if got := a.Credential().UserID; got != "42" {
		t.Errorf("UserID = %q, want 42", got)
	}
}
