package middleware

import (
	"errors"

	"github.com/bertrandmartel/hydraconsent/cp/application"
	"github.com/bertrandmartel/hydraconsent/cp/logging"
	"github.com/bertrandmartel/hydraconsent/cp/session"
	uuid "github.com/satori/go.uuid"
)

// UseSession loads the session named by the session cookie into the request context,
// starting a new one when there is no cookie or the stored session is gone.
func UseSession(context interface{}, app application.ConsentApp) {
	cookie, err := app.GetCookie(context, session.SessionCookie)
	if err == nil {
		s, err := app.GetSessionFromStore(context, cookie)
		if err == nil {
			app.SetSessionContext(context, s)
			return
		}
		if !errors.Is(err, session.ErrNotFound) {
			logging.Log().WithError(err).Warn("unable to load session, starting a new one")
		}
	}
	s := &session.Session{
		ID: uuid.NewV4().String(),
	}
	sessionVal, err := app.SetSession(context, s)
	if err != nil {
		logging.Log().WithError(err).Error("unable to store session")
	} else {
		app.SetSessionCookie(context, session.SessionCookie, sessionVal)
	}
	app.SetSessionContext(context, s)
}

// UseClearSession drops the current session from the store and expires its cookie.
func UseClearSession(context interface{}, app application.ConsentApp) {
	cookie, err := app.GetCookie(context, session.SessionCookie)
	if err == nil {
		if err := app.DeleteSession(context, cookie); err != nil {
			logging.Log().WithError(err).Warn("unable to delete session")
		}
	}
	app.DeleteCookie(context, session.SessionCookie)
}
