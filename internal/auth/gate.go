// Package auth authenticates users and checks token scopes.
//
// Tokens are HS512 JWTs carrying the subject, a space separated "scope"
// claim derived from the user's roles, and iat/exp. They are not stored;
// every call re-verifies signature and expiry.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/Dan9191/digital-banking/internal/models"
	"github.com/Dan9191/digital-banking/internal/repository"
)

// DefaultTTL is the lifetime of an issued token
const DefaultTTL = 10 * time.Minute

// Claims is the JWT payload
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Principal is the verified identity behind a token
type Principal struct {
	Subject   string        `json:"subject"`
	Scopes    []models.Role `json:"scopes"`
	IssuedAt  time.Time     `json:"issued_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Has reports whether the principal carries scope
func (p *Principal) Has(scope models.Role) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Gate issues and verifies tokens
type Gate struct {
	users  repository.UserStore
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
	log    *logrus.Logger
}

// Option customizes a Gate
type Option func(*Gate)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithTTL overrides DefaultTTL
func WithTTL(ttl time.Duration) Option {
	return func(g *Gate) { g.ttl = ttl }
}

// WithHashCost sets the bcrypt cost used for new password hashes
func WithHashCost(cost int) Option {
	return func(g *Gate) { g.cost = cost }
}

// NewGate initializes a gate signing with secret
func NewGate(users repository.UserStore, secret []byte, log *logrus.Logger, opts ...Option) *Gate {
	g := &Gate{
		users:  users,
		secret: secret,
		ttl:    DefaultTTL,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		log:    log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// HashPassword hashes a password with the gate's bcrypt cost
func (g *Gate) HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("empty password: %w", models.ErrInvalidArgument)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), g.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// SeedUser creates a user unless one with that name already exists
func (g *Gate) SeedUser(ctx context.Context, username, password string, roles ...models.Role) error {
	_, err := g.users.FindUser(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrUserNotFound) {
		return err
	}
	hash, err := g.HashPassword(password)
	if err != nil {
		return err
	}
	if err := g.users.SaveUser(ctx, &models.User{Username: username, PasswordHash: hash, Roles: roles}); err != nil {
		return err
	}
	g.log.Infof("User seeded: %s", username)
	return nil
}

// Login authenticates a user and returns a signed token
func (g *Gate) Login(ctx context.Context, username, password string) (string, error) {
	user, err := g.users.FindUser(ctx, username)
	if errors.Is(err, models.ErrUserNotFound) {
		return "", models.ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", models.ErrInvalidCredentials
	}

	scopes := make([]string, len(user.Roles))
	for i, r := range user.Roles {
		scopes[i] = string(r)
	}
	now := g.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		Scope: strings.Join(scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(ceilSecond(now.Add(g.ttl))),
		},
	})
	tokenString, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	g.log.Infof("User logged in: %s", user.Username)
	return tokenString, nil
}

// ceilSecond rounds t up to a whole second, the resolution of JWT dates
func ceilSecond(t time.Time) time.Time {
	if r := t.Truncate(time.Second); !r.Equal(t) {
		return r.Add(time.Second)
	}
	return t
}

// Authorize verifies token and, when required is non-empty, checks that
// the token carries at least one of the required scopes. It has no side
// effects.
func (g *Gate) Authorize(token string, required ...models.Role) (*Principal, error) {
	if token == "" {
		return nil, fmt.Errorf("missing bearer token: %w", models.ErrInvalidSignature)
	}
	claims := &Claims{}
	// Expiry is checked below: a token is still valid at exactly its
	// expiry instant, which jwt's own validation rejects.
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return g.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, models.ErrInvalidSignature)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("token has no expiry: %w", models.ErrInvalidSignature)
	}
	if g.now().After(claims.ExpiresAt.Time) {
		return nil, models.ErrTokenExpired
	}

	p := &Principal{
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	for _, s := range strings.Fields(claims.Scope) {
		p.Scopes = append(p.Scopes, models.Role(s))
	}

	if len(required) == 0 {
		return p, nil
	}
	for _, r := range required {
		if p.Has(r) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%s lacks %v: %w", p.Subject, required, models.ErrInsufficientScope)
}

// ChangePassword replaces the stored hash after checking oldPassword.
// Tokens issued before the change stay valid until they expire.
func (g *Gate) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	user, err := g.users.FindUser(ctx, username)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return models.ErrInvalidCredentials
	}
	hash, err := g.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := g.users.UpdatePasswordHash(ctx, username, hash); err != nil {
		return err
	}
	g.log.Infof("Password changed: %s", username)
	return nil
}
