package main

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/bertrandmartel/hydraconsent/cp/application"
	"github.com/bertrandmartel/hydraconsent/cp/authserver"
	"github.com/bertrandmartel/hydraconsent/cp/config"
	"github.com/bertrandmartel/hydraconsent/cp/identity"
	"github.com/bertrandmartel/hydraconsent/cp/metrics"
	"github.com/bertrandmartel/hydraconsent/cp/session"
	"github.com/labstack/echo/v4"
)

// CustomConsentApp implements application.ConsentApp on top of echo.
type CustomConsentApp struct {
	Config     *config.Config
	AuthServer application.AuthServer
	Identities identity.Store
	Metrics    *metrics.Metrics
	Store      session.Store
}

var scopeDescriptions = map[string]string{
	"openid":  "Sign you in",
	"profile": "Read your name and nickname",
	"email":   "Read your email address",
	"offline": "Keep access while you are away",
}

func (app *CustomConsentApp) GetConfig() *config.Config {
	return app.Config
}
func (app *CustomConsentApp) GetAuthServer() application.AuthServer {
	return app.AuthServer
}
func (app *CustomConsentApp) GetIdentityStore() identity.Store {
	return app.Identities
}
func (app *CustomConsentApp) GetMetrics() *metrics.Metrics {
	return app.Metrics
}
func (app *CustomConsentApp) RequestContext(c interface{}) context.Context {
	return c.(echo.Context).Request().Context()
}
func (app *CustomConsentApp) SetSession(c interface{}, s *session.Session) (string, error) {
	return app.Store.Save(app.RequestContext(c), s)
}
func (app *CustomConsentApp) GetSessionFromStore(c interface{}, id string) (*session.Session, error) {
	return app.Store.Load(app.RequestContext(c), id)
}
func (app *CustomConsentApp) DeleteSession(c interface{}, id string) error {
	return app.Store.Delete(app.RequestContext(c), id)
}
func (app *CustomConsentApp) ClaimReference(c interface{}, reference string) (bool, error) {
	return app.Store.ClaimReference(app.RequestContext(c), reference, app.Config.Consent.DecisionTTL)
}
func (app *CustomConsentApp) ReleaseReference(c interface{}, reference string) error {
	// the request may already be cancelled when the submission failed
	return app.Store.ReleaseReference(context.WithoutCancel(app.RequestContext(c)), reference)
}
func (app *CustomConsentApp) GetCookie(c interface{}, name string) (string, error) {
	cookie, err := c.(echo.Context).Cookie(name)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}
func (app *CustomConsentApp) DeleteCookie(c interface{}, name string) {
	cookie, err := c.(echo.Context).Cookie(name)
	if err != nil {
		return
	}
	cookie.Value = ""
	cookie.Path = "/"
	cookie.Expires = time.Unix(0, 0)
	cookie.MaxAge = -1
	cookie.HttpOnly = true
	c.(echo.Context).SetCookie(cookie)
}
func (app *CustomConsentApp) SetSessionCookie(c interface{}, name string, value string) {
	cookie := new(http.Cookie)
	cookie.Name = name
	cookie.Value = value
	cookie.Path = "/"
	cookie.Expires = time.Now().Add(app.Config.Session.Timeout)
	cookie.HttpOnly = true
	cookie.SameSite = http.SameSiteLaxMode
	c.(echo.Context).SetCookie(cookie)
}
func (app *CustomConsentApp) SetSessionContext(c interface{}, s *session.Session) {
	c.(echo.Context).Set("session", s)
}
func (app *CustomConsentApp) RedirectLogin(c interface{}, reference string, message string) error {
	q := url.Values{}
	if message != "" {
		q.Set("error", message)
	}
	if reference != "" {
		q.Set("reference", reference)
	}
	location := "/login"
	if len(q) > 0 {
		location += "?" + q.Encode()
	}
	return c.(echo.Context).Redirect(http.StatusFound, location)
}
func (app *CustomConsentApp) RedirectConsent(c interface{}, reference string) error {
	q := url.Values{}
	q.Set("reference", reference)
	return c.(echo.Context).Redirect(http.StatusFound, "/consent?"+q.Encode())
}
func (app *CustomConsentApp) RenderLogin(c interface{}, reference string, message string) error {
	return c.(echo.Context).Render(http.StatusOK, "login.html", map[string]interface{}{
		"reference": reference,
		"message":   message,
	})
}
func (app *CustomConsentApp) RenderConsent(c interface{}, s *session.Session, challenge *authserver.ConsentChallenge) error {
	scopes := make([]map[string]string, 0, len(challenge.RequestedScopes))
	for _, scope := range challenge.RequestedScopes {
		scopes = append(scopes, map[string]string{
			"name":        scope,
			"description": scopeDescriptions[scope],
		})
	}
	return c.(echo.Context).Render(http.StatusOK, "consent.html", map[string]interface{}{
		"reference": challenge.Reference,
		"client_id": challenge.ClientID,
		"scopes":    scopes,
		"name":      s.User.Name,
		"email":     s.User.Email,
	})
}
func (app *CustomConsentApp) RenderError(c interface{}, status int, name string, description string) error {
	return c.(echo.Context).Render(status, "error.html", map[string]interface{}{
		"error":             name,
		"error_description": description,
	})
}
func (app *CustomConsentApp) Redirect(c interface{}, location string) error {
	return c.(echo.Context).Redirect(http.StatusFound, location)
}
