// ABOUTME: Tests for admin sessions, login, and the HTTP auth middleware
// ABOUTME: Covers token round-trips, expiry, bad credentials, and header handling

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-for-sessions")

func TestSessionRoundTrip(t *testing.T) {
	issuer := NewSessionIssuer(testSecret, time.Hour)

	tok, err := issuer.Issue("admin")
	require.NoError(t, err)

	subject, err := issuer.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "admin", subject)
}

func TestSessionExpired(t *testing.T) {
	issuer := NewSessionIssuer(testSecret, -time.Minute)

	tok, err := issuer.Issue("admin")
	require.NoError(t, err)

	_, err = issuer.Verify(tok)
	assert.ErrorIs(t, err, ErrExpiredSession)
}

func TestSessionWrongSecret(t *testing.T) {
	issuer := NewSessionIssuer(testSecret, time.Hour)
	other := NewSessionIssuer([]byte("different-secret"), time.Hour)

	tok, err := issuer.Issue("admin")
	require.NoError(t, err)

	_, err = other.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSessionGarbage(t *testing.T) {
	issuer := NewSessionIssuer(testSecret, time.Hour)
	_, err := issuer.Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestLogin(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	issuer := NewSessionIssuer(testSecret, time.Hour)
	authn := NewAuthenticator(hash, issuer)

	tok, err := authn.Login("hunter2")
	require.NoError(t, err)

	subject, err := issuer.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, AdminSubject, subject)
}

func TestLoginBadPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	authn := NewAuthenticator(hash, NewSessionIssuer(testSecret, time.Hour))

	_, err = authn.Login("hunter3")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestLoginNoHashConfigured(t *testing.T) {
	authn := NewAuthenticator("", NewSessionIssuer(testSecret, time.Hour))
	_, err := authn.Login("anything")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestRequireSession(t *testing.T) {
	issuer := NewSessionIssuer(testSecret, time.Hour)
	tok, err := issuer.Issue("admin")
	require.NoError(t, err)

	var gotSubject string
	handler := RequireSession(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer " + tok, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"garbage token", "Bearer garbage", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/servers", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
	assert.Equal(t, "admin", gotSubject)
}
