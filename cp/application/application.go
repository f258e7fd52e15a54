package application

import (
	"context"

	"github.com/bertrandmartel/hydraconsent/cp/authserver"
	"github.com/bertrandmartel/hydraconsent/cp/config"
	"github.com/bertrandmartel/hydraconsent/cp/identity"
	"github.com/bertrandmartel/hydraconsent/cp/metrics"
	"github.com/bertrandmartel/hydraconsent/cp/session"
)

// AuthServer is the part of the authorization server the consent flow talks to.
type AuthServer interface {
	VerifyChallenge(ctx context.Context, reference string) (*authserver.ConsentChallenge, error)
	SubmitDecision(ctx context.Context, reference string, decision authserver.ConsentDecision) (*authserver.RedirectTarget, error)
}

// ConsentApp gives the handlers access to the collaborators owned by the web layer:
// session storage, cookies, rendering and redirects. The context argument is the
// framework's request context.
type ConsentApp interface {
	GetConfig() *config.Config
	GetAuthServer() AuthServer
	GetIdentityStore() identity.Store
	GetMetrics() *metrics.Metrics
	RequestContext(c interface{}) context.Context
	SetSession(c interface{}, s *session.Session) (id string, e error)
	GetSessionFromStore(c interface{}, id string) (s *session.Session, e error)
	DeleteSession(c interface{}, id string) error
	ClaimReference(c interface{}, reference string) (bool, error)
	ReleaseReference(c interface{}, reference string) error
	GetCookie(c interface{}, name string) (string, error)
	DeleteCookie(c interface{}, name string)
	SetSessionCookie(c interface{}, name string, value string)
	SetSessionContext(c interface{}, s *session.Session)
	RedirectLogin(c interface{}, reference string, message string) error
	RedirectConsent(c interface{}, reference string) error
	RenderLogin(c interface{}, reference string, message string) error
	RenderConsent(c interface{}, s *session.Session, challenge *authserver.ConsentChallenge) error
	RenderError(c interface{}, status int, name string, description string) error
	Redirect(c interface{}, location string) error
}
