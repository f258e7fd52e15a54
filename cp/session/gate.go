package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/bertrandmartel/hydraconsent/cp/identity"
)

// AuthenticationError is returned when the submitted credentials match no user.
type AuthenticationError struct {
	Email string
	Err   error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for %q: %v", e.Email, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Gate checks login credentials and marks sessions as authenticated.
type Gate struct {
	identities identity.Store
}

func NewGate(identities identity.Store) *Gate {
	return &Gate{identities: identities}
}

// Authenticate looks up the user for email and password and marks s as authenticated.
// On a mismatch s is left untouched and an *AuthenticationError is returned.
func (g *Gate) Authenticate(ctx context.Context, s *Session, email string, password string) (*identity.User, error) {
	if s == nil {
		return nil, errors.New("session is nil")
	}
	user, err := g.identities.FindByCredentials(ctx, email, password)
	if err != nil {
		return nil, &AuthenticationError{Email: email, Err: err}
	}
	MarkAuthenticated(s, *user)
	return user, nil
}
