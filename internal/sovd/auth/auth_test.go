package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/util"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/options"
)

const testSecret = "0123456789abcdef0123"

type userStore map[string]*model.User

func (s userStore) Get(_ context.Context, id string) (*model.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, util.ErrNotFound
}

func (s userStore) Create(_ context.Context, u *model.User) error {
	s[u.ID] = u
	return nil
}

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	users := userStore{
		"alice": {ID: "alice", Username: "alice", Role: "engineer", IsActive: true},
		"root":  {ID: "root", Username: "root", Role: RoleAdmin, IsActive: true},
		"bob":   {ID: "bob", Username: "bob", Role: "engineer", IsActive: false},
	}
	a, err := NewAuthenticator(&options.JWTOptions{Secret: testSecret, Issuer: "sovd"}, users)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	return a
}

func mustToken(t *testing.T, secret, issuer, sub string, ttl time.Duration) string {
	t.Helper()
	tok, err := IssueToken(secret, issuer, sub, "", ttl)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return tok
}

func TestAuthenticate(t *testing.T) {
	a := newTestAuthenticator(t)

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    "sovd",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid", mustToken(t, testSecret, "sovd", "alice", time.Hour), false},
		{"empty", "", true},
		{"garbage", "not.a.jwt", true},
		{"wrong secret", mustToken(t, "another-secret-value", "sovd", "alice", time.Hour), true},
		{"wrong issuer", mustToken(t, testSecret, "other", "alice", time.Hour), true},
		{"expired", mustToken(t, testSecret, "sovd", "alice", -time.Minute), true},
		{"unknown user", mustToken(t, testSecret, "sovd", "mallory", time.Hour), true},
		{"inactive user", mustToken(t, testSecret, "sovd", "bob", time.Hour), true},
		{"alg none", none, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := a.Authenticate(context.Background(), tt.token)
			if tt.wantErr {
				if !errors.Is(err, util.ErrUnauthorized) {
					t.Fatalf("error = %v, want ErrUnauthorized", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if user.ID != "alice" {
				t.Errorf("user = %+v", user)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	a := newTestAuthenticator(t)
	var seen string
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := UserFrom(r.Context())
		seen = u.ID
		w.WriteHeader(http.StatusNoContent)
	})
	protected := a.Middleware(ok)
	adminOnly := a.Middleware(RequireRole(RoleAdmin)(ok))

	tests := []struct {
		name    string
		handler http.Handler
		header  string
		want    int
	}{
		{"no header", protected, "", http.StatusUnauthorized},
		{"basic scheme", protected, "Basic abc", http.StatusUnauthorized},
		{"bearer", protected, "Bearer " + mustToken(t, testSecret, "sovd", "alice", time.Hour), http.StatusNoContent},
		{"lowercase scheme", protected, "bearer " + mustToken(t, testSecret, "sovd", "alice", time.Hour), http.StatusNoContent},
		{"admin route as engineer", adminOnly, "Bearer " + mustToken(t, testSecret, "sovd", "alice", time.Hour), http.StatusForbidden},
		{"admin route as admin", adminOnly, "Bearer " + mustToken(t, testSecret, "sovd", "root", time.Hour), http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/commands", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	if seen == "" {
		t.Error("handler never saw an authenticated user")
	}
}
