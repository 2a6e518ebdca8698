package auth

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/Dan9191/digital-banking/internal/models"
	"github.com/Dan9191/digital-banking/internal/repository"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestGate(t *testing.T) (*Gate, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	g := NewGate(repository.NewMemoryUserStore(), []byte("test-secret"), quietLogger(),
		WithClock(clock.Now), WithHashCost(bcrypt.MinCost))
	ctx := context.Background()
	if err := g.SeedUser(ctx, "user1", "1234", models.RoleUser); err != nil {
		t.Fatalf("seed user1: %v", err)
	}
	if err := g.SeedUser(ctx, "admin", "1234", models.RoleUser, models.RoleAdmin); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	return g, clock
}

func TestLogin(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"valid", "user1", "1234", nil},
		{"wrong password", "user1", "nope", models.ErrInvalidCredentials},
		{"unknown user", "ghost", "1234", models.ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := g.Login(ctx, tt.username, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && token == "" {
				t.Fatal("expected a token")
			}
		})
	}
}

func TestAuthorizeScopes(t *testing.T) {
	g, clock := newTestGate(t)
	ctx := context.Background()
	userToken, _ := g.Login(ctx, "user1", "1234")
	adminToken, _ := g.Login(ctx, "admin", "1234")

	if _, err := g.Authorize(userToken, models.RoleAdmin); !errors.Is(err, models.ErrInsufficientScope) {
		t.Fatalf("user token with ADMIN: err=%v", err)
	}
	p, err := g.Authorize(adminToken, models.RoleAdmin)
	if err != nil {
		t.Fatalf("admin token with ADMIN: %v", err)
	}
	if p.Subject != "admin" || !p.Has(models.RoleUser) {
		t.Fatalf("principal=%+v", p)
	}
	if _, err := g.Authorize(userToken, models.RoleUser, models.RoleAdmin); err != nil {
		t.Fatalf("user token with USER|ADMIN: %v", err)
	}
	if !p.ExpiresAt.Equal(clock.Now().Add(DefaultTTL)) {
		t.Fatalf("expires=%v", p.ExpiresAt)
	}
}

func TestAuthorizeOnlyAdminScope(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()
	if err := g.SeedUser(ctx, "ops", "pw", models.RoleAdmin); err != nil {
		t.Fatal(err)
	}
	token, err := g.Login(ctx, "ops", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Authorize(token, models.RoleAdmin); err != nil {
		t.Fatalf("ADMIN scope: %v", err)
	}
	if _, err := g.Authorize(token, models.RoleUser); !errors.Is(err, models.ErrInsufficientScope) {
		t.Fatalf("USER scope: err=%v", err)
	}
}

func TestAuthorizeExpired(t *testing.T) {
	g, clock := newTestGate(t)
	token, _ := g.Login(context.Background(), "admin", "1234")

	clock.Advance(9 * time.Minute)
	if _, err := g.Authorize(token, models.RoleAdmin); err != nil {
		t.Fatalf("before expiry: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if _, err := g.Authorize(token, models.RoleAdmin); !errors.Is(err, models.ErrTokenExpired) {
		t.Fatalf("after expiry: err=%v", err)
	}
}

func TestAuthorizeExpiryBoundary(t *testing.T) {
	g, clock := newTestGate(t)
	clock.Advance(500 * time.Millisecond)
	issued := clock.Now()
	token, err := g.Login(context.Background(), "user1", "1234")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		at      time.Time
		expired bool
	}{
		{"300ms before ttl ends", issued.Add(DefaultTTL - 300*time.Millisecond), false},
		{"exactly at ttl", issued.Add(DefaultTTL), false},
		{"1ms after ttl", issued.Add(DefaultTTL + time.Millisecond), false},
		{"just past recorded expiry", issued.Add(DefaultTTL + 500*time.Millisecond + time.Nanosecond), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.t = tt.at
			_, err := g.Authorize(token)
			if got := errors.Is(err, models.ErrTokenExpired); got != tt.expired {
				t.Fatalf("expired=%v err=%v", got, err)
			}
		})
	}

	clock.t = issued
	p, err := g.Authorize(token)
	if err != nil {
		t.Fatal(err)
	}
	clock.t = p.ExpiresAt
	if _, err := g.Authorize(token); err != nil {
		t.Fatalf("at recorded expiry: %v", err)
	}
}

func TestAuthorizeInvalidSignature(t *testing.T) {
	g, clock := newTestGate(t)
	token, _ := g.Login(context.Background(), "admin", "1234")

	other := NewGate(repository.NewMemoryUserStore(), []byte("other-secret"), quietLogger(), WithClock(clock.Now))
	if _, err := other.Authorize(token); !errors.Is(err, models.ErrInvalidSignature) {
		t.Fatalf("foreign key: err=%v", err)
	}

	parts := strings.Split(token, ".")
	parts[2] = strings.Repeat("A", len(parts[2]))
	if _, err := g.Authorize(strings.Join(parts, ".")); !errors.Is(err, models.ErrInvalidSignature) {
		t.Fatalf("tampered: err=%v", err)
	}
	if _, err := g.Authorize(""); !errors.Is(err, models.ErrInvalidSignature) {
		t.Fatalf("empty: err=%v", err)
	}
	if _, err := g.Authorize("not-a-jwt"); !errors.Is(err, models.ErrInvalidSignature) {
		t.Fatalf("garbage: err=%v", err)
	}
}

func TestAuthorizeRejectsOtherAlgorithms(t *testing.T) {
	g, clock := newTestGate(t)
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Scope: "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "mallory",
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Minute)),
		},
	})
	s, err := forged.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Authorize(s, models.RoleAdmin); !errors.Is(err, models.ErrInvalidSignature) {
		t.Fatalf("HS256 token: err=%v", err)
	}
}

func TestChangePassword(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()
	issued, _ := g.Login(ctx, "user1", "1234")

	if err := g.ChangePassword(ctx, "user1", "wrong", "5678"); !errors.Is(err, models.ErrInvalidCredentials) {
		t.Fatalf("wrong old password: err=%v", err)
	}
	if err := g.ChangePassword(ctx, "user1", "1234", "5678"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, err := g.Login(ctx, "user1", "1234"); !errors.Is(err, models.ErrInvalidCredentials) {
		t.Fatalf("old password still works: %v", err)
	}
	if _, err := g.Login(ctx, "user1", "5678"); err != nil {
		t.Fatalf("new password: %v", err)
	}
	// already issued tokens survive until expiry
	if _, err := g.Authorize(issued, models.RoleUser); err != nil {
		t.Fatalf("issued token: %v", err)
	}
	if err := g.ChangePassword(ctx, "ghost", "a", "b"); !errors.Is(err, models.ErrUserNotFound) {
		t.Fatalf("unknown user: err=%v", err)
	}
}

func TestSeedUserKeepsExisting(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()
	if err := g.SeedUser(ctx, "user1", "other", models.RoleAdmin); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Login(ctx, "user1", "1234"); err != nil {
		t.Fatalf("seed overwrote existing user: %v", err)
	}
}

func TestTokenContext(t *testing.T) {
	ctx := WithToken(context.Background(), "abc")
	if got := TokenFrom(ctx); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if got := TokenFrom(context.Background()); got != "" {
		t.Fatalf("got %q", got)
	}
}
