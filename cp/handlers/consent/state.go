package consent

import (
	"errors"
	"net/http"

	"github.com/bertrandmartel/hydraconsent/cp/application"
	"github.com/bertrandmartel/hydraconsent/cp/authserver"
	"github.com/bertrandmartel/hydraconsent/cp/logging"
)

// State is a step of the consent flow.
type State string

const (
	StateUnauthenticated               State = "Unauthenticated"
	StateAwaitingChallengeVerification State = "AwaitingChallengeVerification"
	StatePromptingUser                 State = "PromptingUser"
	StateAutoResolving                 State = "AutoResolving"
	StateSubmitting                    State = "Submitting"
	StateRedirected                    State = "Redirected"
	StateFailed                        State = "Failed"
)

func enter(app application.ConsentApp, reference string, state State) {
	app.GetMetrics().FlowTransition(string(state))
	logging.Log().WithField("reference", reference).WithField("state", state).Debug("consent flow transition")
}

// failure is what the user gets to see about an error: a name and a fixed description.
type failure struct {
	status      int
	name        string
	description string
}

var (
	failureTransport  = failure{http.StatusBadGateway, string(authserver.ErrorTransport), "The authorization server could not be reached, please try again later"}
	failureCredential = failure{http.StatusServiceUnavailable, string(authserver.ErrorCredential), "The consent service is not able to talk to the authorization server"}
	failureChallenge  = failure{http.StatusBadRequest, string(authserver.ErrorChallenge), "The consent request is invalid or has expired"}
	failureDecision   = failure{http.StatusBadRequest, string(authserver.ErrorDecision), "The authorization server did not accept the consent decision"}
	failureInternal   = failure{http.StatusInternalServerError, "server_error", "An unexpected error occurred"}
	failureMissing    = failure{http.StatusBadRequest, "invalid_request", "The consent reference is missing"}
	failureScope      = failure{http.StatusBadRequest, "invalid_scope", "The selected permissions were not requested by the application"}
	failureReplay     = failure{http.StatusConflict, "consent_already_submitted", "A decision was already submitted for this consent request"}
)

func describe(err error) failure {
	var e *authserver.Error
	if !errors.As(err, &e) {
		return failureInternal
	}
	switch e.Type {
	case authserver.ErrorTransport:
		return failureTransport
	case authserver.ErrorCredential:
		return failureCredential
	case authserver.ErrorChallenge:
		return failureChallenge
	case authserver.ErrorDecision:
		return failureDecision
	}
	return failureInternal
}

func fail(context interface{}, app application.ConsentApp, reference string, f failure, err error) error {
	enter(app, reference, StateFailed)
	entry := logging.Log().WithField("reference", reference).WithField("error_name", f.name)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn("consent flow failed")
	return app.RenderError(context, f.status, f.name, f.description)
}
