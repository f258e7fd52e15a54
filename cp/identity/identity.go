package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
)

// ErrInvalidCredentials is returned when no user matches the given email and password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// User is the authenticated principal. SubjectID is the stable identifier sent to the authorization server.
type User struct {
	SubjectID     string `json:"subject_id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Nickname      string `json:"nickname"`
}

// Store looks up users by their login credentials.
type Store interface {
	FindByCredentials(ctx context.Context, email string, password string) (*User, error)
}

// Account is a user together with the password it logs in with.
type Account struct {
	User
	Password string
}

// MemoryStore is a fixed set of accounts kept in memory.
type MemoryStore struct {
	accounts []Account
}

// NewMemoryStore returns a store holding the given accounts.
func NewMemoryStore(accounts ...Account) *MemoryStore {
	return &MemoryStore{accounts: accounts}
}

// DefaultAccount is the demo user served when no users are configured.
func DefaultAccount() Account {
	return Account{
		User: User{
			SubjectID:     "user:12345:dandean",
			Email:         "dan@acme.com",
			EmailVerified: true,
			Name:          "Dan Dean",
			Nickname:      "Danny",
		},
		Password: "secret",
	}
}

func (m *MemoryStore) FindByCredentials(_ context.Context, email string, password string) (*User, error) {
	for i := range m.accounts {
		account := m.accounts[i]
		if !strings.EqualFold(account.Email, email) {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(account.Password), []byte(password)) != 1 {
			return nil, ErrInvalidCredentials
		}
		user := account.User
		return &user, nil
	}
	return nil, ErrInvalidCredentials
}
