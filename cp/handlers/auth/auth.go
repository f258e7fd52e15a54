package auth

import (
	"errors"

	"github.com/bertrandmartel/hydraconsent/cp/application"
	"github.com/bertrandmartel/hydraconsent/cp/logging"
	"github.com/bertrandmartel/hydraconsent/cp/middleware"
	"github.com/bertrandmartel/hydraconsent/cp/session"
)

const (
	wrongCredentials = "Wrong credentials provided"
	missingSession   = "Your session has expired, please try again"
)

// LoginPage is the query of GET /login.
type LoginPage struct {
	Reference string `query:"reference"`
	Error     string `query:"error"`
}

// LoginRequest is the form posted by the login page.
type LoginRequest struct {
	Email     string `form:"email" validate:"required"`
	Password  string `form:"password" validate:"required"`
	Reference string `form:"reference"`
}

func renderFailedLogin(context interface{}, message string, app application.ConsentApp, reference string) error {
	return app.RedirectLogin(context, reference, message)
}

// RenderLogin shows the login page. The consent reference is carried along so the flow
// can resume once the user logged in.
func RenderLogin(context interface{}, request *LoginPage, app application.ConsentApp, s *session.Session) error {
	if request == nil {
		return app.RenderLogin(context, "", "")
	}
	if session.IsAuthenticated(s) && request.Reference != "" && request.Error == "" {
		return app.RedirectConsent(context, request.Reference)
	}
	return app.RenderLogin(context, request.Reference, request.Error)
}

// Login checks the posted credentials against the identity store. On success the session
// becomes authenticated and the user is sent back to the consent page.
func Login(context interface{}, request *LoginRequest, app application.ConsentApp, s *session.Session) error {
	if request == nil {
		return renderFailedLogin(context, wrongCredentials, app, "")
	}
	if s == nil {
		return renderFailedLogin(context, missingSession, app, request.Reference)
	}
	gate := session.NewGate(app.GetIdentityStore())
	user, err := gate.Authenticate(app.RequestContext(context), s, request.Email, request.Password)
	if err != nil {
		var authErr *session.AuthenticationError
		if errors.As(err, &authErr) {
			logging.Log().WithField("email", authErr.Email).Info("login rejected")
		} else {
			logging.Log().WithError(err).Error("login failed")
		}
		return renderFailedLogin(context, wrongCredentials, app, request.Reference)
	}
	sessionVal, err := app.SetSession(context, s)
	if err != nil {
		logging.Log().WithError(err).Error("unable to store session")
		return renderFailedLogin(context, missingSession, app, request.Reference)
	}
	app.SetSessionCookie(context, session.SessionCookie, sessionVal)
	app.SetSessionContext(context, s)
	logging.Log().WithField("subject", user.SubjectID).Info("user logged in")

	if request.Reference == "" {
		return app.Redirect(context, "/")
	}
	return app.RedirectConsent(context, request.Reference)
}

// Logout drops the session and goes back to the login page.
func Logout(context interface{}, app application.ConsentApp) error {
	middleware.UseClearSession(context, app)
	return app.RedirectLogin(context, "", "")
}
