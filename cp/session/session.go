package session

import (
	"github.com/bertrandmartel/hydraconsent/cp/identity"
)

const SessionCookie = "CONSENT"

// Session is the state kept for one user agent between requests.
type Session struct {
	ID            string        `json:"id"`
	Authenticated bool          `json:"is_authenticated"`
	User          identity.User `json:"user"`
}

// IsAuthenticated reports whether the user behind s logged in.
func IsAuthenticated(s *Session) bool {
	return s != nil && s.Authenticated && s.User.SubjectID != ""
}

// MarkAuthenticated records that user logged in on s.
func MarkAuthenticated(s *Session, user identity.User) {
	s.Authenticated = true
	s.User = user
}
