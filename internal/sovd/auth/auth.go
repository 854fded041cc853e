// Package auth verifies operator bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/util"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/options"
)

// RoleAdmin may manage vehicles in addition to running commands.
const RoleAdmin = "admin"

// Claims are the token claims understood by the server.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator turns a bearer token into an active user.
type Authenticator struct {
	secret []byte
	issuer string
	users  core.UserRepository
	now    func() time.Time
}

// NewAuthenticator creates an HS256 Authenticator.
func NewAuthenticator(opts *options.JWTOptions, users core.UserRepository) (*Authenticator, error) {
	if opts == nil || opts.Secret == "" {
		return nil, errors.New("auth: HS256 requires a secret")
	}
	return &Authenticator{
		secret: []byte(opts.Secret),
		issuer: opts.Issuer,
		users:  users,
		now:    time.Now,
	}, nil
}

// Authenticate verifies token and returns its subject. The subject must be an
// existing, active user. Every failure wraps util.ErrUnauthorized.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*model.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("missing token: %w", util.ErrUnauthorized)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %v: %w", err, util.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject: %w", util.ErrUnauthorized)
	}

	user, err := a.users.Get(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return nil, fmt.Errorf("unknown user %s: %w", claims.Subject, util.ErrUnauthorized)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, fmt.Errorf("user %s is inactive: %w", user.ID, util.ErrUnauthorized)
	}
	return user, nil
}

// IssueToken signs an HS256 token for subject that expires after ttl.
func IssueToken(secret, issuer, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
