// Package apptest provides in-memory implementations of the application interfaces for handler tests.
package apptest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bertrandmartel/hydraconsent/cp/application"
	"github.com/bertrandmartel/hydraconsent/cp/authserver"
	"github.com/bertrandmartel/hydraconsent/cp/config"
	"github.com/bertrandmartel/hydraconsent/cp/identity"
	"github.com/bertrandmartel/hydraconsent/cp/metrics"
	"github.com/bertrandmartel/hydraconsent/cp/session"
)

// Submission is one recorded call to SubmitDecision.
type Submission struct {
	Reference string
	Decision  authserver.ConsentDecision
}

// FakeAuthServer returns canned answers and records every call.
type FakeAuthServer struct {
	mu          sync.Mutex
	Challenge   *authserver.ConsentChallenge
	VerifyErr   error
	Target      *authserver.RedirectTarget
	SubmitErr   error
	VerifyCalls []string
	Submissions []Submission
}

func (f *FakeAuthServer) VerifyChallenge(_ context.Context, reference string) (*authserver.ConsentChallenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.VerifyCalls = append(f.VerifyCalls, reference)
	if f.VerifyErr != nil {
		return nil, f.VerifyErr
	}
	challenge := *f.Challenge
	challenge.Reference = reference
	challenge.RequestedScopes = append([]string{}, f.Challenge.RequestedScopes...)
	return &challenge, nil
}

func (f *FakeAuthServer) SubmitDecision(_ context.Context, reference string, decision authserver.ConsentDecision) (*authserver.RedirectTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Submissions = append(f.Submissions, Submission{Reference: reference, Decision: decision})
	if f.SubmitErr != nil {
		return nil, f.SubmitErr
	}
	return f.Target, nil
}

// FakeApp is an application.ConsentApp keeping everything in memory and recording
// what the handlers asked it to render or redirect to.
type FakeApp struct {
	Config     *config.Config
	AuthServer application.AuthServer
	Identities identity.Store
	Metrics    *metrics.Metrics
	Store      *session.MemoryStore
	Cookies    map[string]string
	SaveErr    error

	ContextSession *session.Session

	Location         string
	LoginRedirect    bool
	LoginReference   string
	LoginMessage     string
	ConsentRedirect  bool
	ConsentReference string
	Rendered         string
	RenderedStatus   int
	ErrorName        string
	ErrorDescription string
	Challenge        *authserver.ConsentChallenge
}

// NewFakeApp returns a FakeApp with the default config and the default demo account.
func NewFakeApp(authServer application.AuthServer) *FakeApp {
	cfg := config.Default()
	cfg.AuthServer.AdminURL = "http://hydra:4445"
	cfg.AuthServer.ClientID = "consent-app"
	return &FakeApp{
		Config:     &cfg,
		AuthServer: authServer,
		Identities: identity.NewMemoryStore(identity.DefaultAccount()),
		Store:      session.NewMemoryStore(time.Hour),
		Cookies:    map[string]string{},
	}
}

func (a *FakeApp) GetConfig() *config.Config {
	return a.Config
}
func (a *FakeApp) GetAuthServer() application.AuthServer {
	return a.AuthServer
}
func (a *FakeApp) GetIdentityStore() identity.Store {
	return a.Identities
}
func (a *FakeApp) GetMetrics() *metrics.Metrics {
	return a.Metrics
}
func (a *FakeApp) RequestContext(c interface{}) context.Context {
	return context.Background()
}
func (a *FakeApp) SetSession(c interface{}, s *session.Session) (string, error) {
	if a.SaveErr != nil {
		return "", a.SaveErr
	}
	return a.Store.Save(context.Background(), s)
}
func (a *FakeApp) GetSessionFromStore(c interface{}, id string) (*session.Session, error) {
	return a.Store.Load(context.Background(), id)
}
func (a *FakeApp) DeleteSession(c interface{}, id string) error {
	return a.Store.Delete(context.Background(), id)
}
func (a *FakeApp) ClaimReference(c interface{}, reference string) (bool, error) {
	return a.Store.ClaimReference(context.Background(), reference, a.Config.Consent.DecisionTTL)
}
func (a *FakeApp) ReleaseReference(c interface{}, reference string) error {
	return a.Store.ReleaseReference(context.Background(), reference)
}
func (a *FakeApp) GetCookie(c interface{}, name string) (string, error) {
	value, ok := a.Cookies[name]
	if !ok {
		return "", errors.New("http: named cookie not present")
	}
	return value, nil
}
func (a *FakeApp) DeleteCookie(c interface{}, name string) {
	delete(a.Cookies, name)
}
func (a *FakeApp) SetSessionCookie(c interface{}, name string, value string) {
	a.Cookies[name] = value
}
func (a *FakeApp) SetSessionContext(c interface{}, s *session.Session) {
	a.ContextSession = s
}
func (a *FakeApp) RedirectLogin(c interface{}, reference string, message string) error {
	a.LoginRedirect = true
	a.LoginReference = reference
	a.LoginMessage = message
	return nil
}
func (a *FakeApp) RedirectConsent(c interface{}, reference string) error {
	a.ConsentRedirect = true
	a.ConsentReference = reference
	return nil
}
func (a *FakeApp) RenderLogin(c interface{}, reference string, message string) error {
	a.Rendered = "login"
	a.LoginReference = reference
	a.LoginMessage = message
	return nil
}
func (a *FakeApp) RenderConsent(c interface{}, s *session.Session, challenge *authserver.ConsentChallenge) error {
	a.Rendered = "consent"
	a.Challenge = challenge
	return nil
}
func (a *FakeApp) RenderError(c interface{}, status int, name string, description string) error {
	a.Rendered = "error"
	a.RenderedStatus = status
	a.ErrorName = name
	a.ErrorDescription = description
	return nil
}
func (a *FakeApp) Redirect(c interface{}, location string) error {
	a.Location = location
	return nil
}
