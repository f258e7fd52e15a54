package consent

import (
	"net/http"

	"github.com/bertrandmartel/hydraconsent/cp/application"
	"github.com/bertrandmartel/hydraconsent/cp/authserver"
	"github.com/bertrandmartel/hydraconsent/cp/claims"
	"github.com/bertrandmartel/hydraconsent/cp/logging"
	"github.com/bertrandmartel/hydraconsent/cp/session"
)

const loginMessage = "Please log in"

// Request starts or resumes a consent flow. The authorization server sends the user here
// with the reference of the pending request, or with an error.
type Request struct {
	Reference        string `query:"reference"`
	Error            string `query:"error"`
	ErrorDescription string `query:"error_description"`
}

// DecisionRequest carries the scopes the user chose on the consent screen.
type DecisionRequest struct {
	Reference     string
	GrantedScopes claims.ScopeInput
}

// Initiate verifies the pending consent request and shows it to the user, or resolves it
// right away when the challenge asks for forced consent and the policy allows it.
func Initiate(context interface{}, request *Request, app application.ConsentApp, s *session.Session) error {
	if request == nil {
		return fail(context, app, "", failureMissing, nil)
	}
	if !session.IsAuthenticated(s) {
		enter(app, request.Reference, StateUnauthenticated)
		return app.RedirectLogin(context, request.Reference, loginMessage)
	}
	if request.Error != "" {
		enter(app, request.Reference, StateFailed)
		logging.Log().WithField("reference", request.Reference).WithField("error", request.Error).Info("authorization server reported an error")
		return app.RenderError(context, http.StatusBadRequest, request.Error, request.ErrorDescription)
	}
	if request.Reference == "" {
		return fail(context, app, "", failureMissing, nil)
	}

	enter(app, request.Reference, StateAwaitingChallengeVerification)
	challenge, err := app.GetAuthServer().VerifyChallenge(app.RequestContext(context), request.Reference)
	if err != nil {
		return fail(context, app, request.Reference, describe(err), err)
	}
	if challenge.ForceConsent && app.GetConfig().Consent.ForceConsentEnabled {
		enter(app, request.Reference, StateAutoResolving)
		return resolve(context, app, s, challenge, claims.Normalize(claims.Sequence(challenge.RequestedScopes)))
	}
	enter(app, request.Reference, StatePromptingUser)
	return app.RenderConsent(context, s, challenge)
}

// Decide submits the user's choice. The reference is verified again, so a decision is only
// ever sent for a consent request that was checked in the same flow.
func Decide(context interface{}, request *DecisionRequest, app application.ConsentApp, s *session.Session) error {
	if request == nil {
		return fail(context, app, "", failureMissing, nil)
	}
	if !session.IsAuthenticated(s) {
		enter(app, request.Reference, StateUnauthenticated)
		return app.RedirectLogin(context, request.Reference, loginMessage)
	}
	if request.Reference == "" {
		return fail(context, app, "", failureMissing, nil)
	}
	granted := claims.Normalize(request.GrantedScopes)

	enter(app, request.Reference, StateAwaitingChallengeVerification)
	challenge, err := app.GetAuthServer().VerifyChallenge(app.RequestContext(context), request.Reference)
	if err != nil {
		return fail(context, app, request.Reference, describe(err), err)
	}
	if missing := claims.Missing(granted, challenge.RequestedScopes); len(missing) > 0 {
		logging.Log().WithField("reference", request.Reference).WithField("scopes", missing).Warn("granted scopes were not requested")
		return fail(context, app, request.Reference, failureScope, nil)
	}
	return resolve(context, app, s, challenge, granted)
}

func resolve(context interface{}, app application.ConsentApp, s *session.Session, challenge *authserver.ConsentChallenge, granted []string) error {
	reference := challenge.Reference
	claimed, err := app.ClaimReference(context, reference)
	if err != nil {
		return fail(context, app, reference, failureInternal, err)
	}
	if !claimed {
		return fail(context, app, reference, failureReplay, nil)
	}

	enter(app, reference, StateSubmitting)
	decision := authserver.ConsentDecision{
		Subject:       s.User.SubjectID,
		GrantedScopes: granted,
		Claims:        claims.Build(s.User, granted),
	}
	target, err := app.GetAuthServer().SubmitDecision(app.RequestContext(context), reference, decision)
	if err != nil {
		if releaseErr := app.ReleaseReference(context, reference); releaseErr != nil {
			logging.Log().WithError(releaseErr).WithField("reference", reference).Error("unable to release consent reference")
		}
		return fail(context, app, reference, describe(err), err)
	}
	redirect := authserver.RedirectTarget{}
	if target != nil {
		redirect = *target
	}
	if redirect.URL == "" {
		redirect.URL = challenge.RedirectContext
	}
	location, err := redirect.Location()
	if err != nil {
		return fail(context, app, reference, failureDecision, err)
	}
	enter(app, reference, StateRedirected)
	logging.Log().WithField("reference", reference).WithField("scopes", granted).Info("consent granted")
	return app.Redirect(context, location)
}
