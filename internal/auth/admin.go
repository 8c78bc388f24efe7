// ABOUTME: Admin login with bcrypt password verification
// ABOUTME: Successful login yields a JWT session for the admin API

package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned for any failed login attempt.
var ErrBadCredentials = errors.New("invalid credentials")

// AdminSubject is the subject claim minted for the admin operator.
const AdminSubject = "admin"

// Authenticator checks the admin password and issues sessions.
type Authenticator struct {
	passwordHash []byte
	sessions     *SessionIssuer
}

// NewAuthenticator creates an authenticator. passwordHash is a bcrypt hash
// of the admin password, supplied via configuration.
func NewAuthenticator(passwordHash string, sessions *SessionIssuer) *Authenticator {
	return &Authenticator{
		passwordHash: []byte(passwordHash),
		sessions:     sessions,
	}
}

// Login verifies the password and returns a session token. Any failure
// mode collapses to ErrBadCredentials so responses do not reveal whether
// a hash is configured.
func (a *Authenticator) Login(password string) (string, error) {
	if len(a.passwordHash) == 0 || password == "" {
		return "", ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", ErrBadCredentials
	}
	return a.sessions.Issue(AdminSubject)
}

// HashPassword produces a bcrypt hash suitable for the config file.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
