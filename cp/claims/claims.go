package claims

import (
	"github.com/bertrandmartel/hydraconsent/cp/identity"
)

const (
	ScopeProfile = "profile"
	ScopeEmail   = "email"
)

// Build returns the claims disclosed to the client for the granted scopes.
// profile discloses name and nickname, email discloses email and emailVerified.
// Any other scope discloses nothing.
func Build(user identity.User, scopes []string) map[string]interface{} {
	data := make(map[string]interface{})
	if Contains(scopes, ScopeProfile) {
		data["name"] = user.Name
		data["nickname"] = user.Nickname
	}
	if Contains(scopes, ScopeEmail) {
		data["email"] = user.Email
		data["emailVerified"] = user.EmailVerified
	}
	return data
}
