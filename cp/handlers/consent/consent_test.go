package consent

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/bertrandmartel/hydraconsent/cp/application/apptest"
	"github.com/bertrandmartel/hydraconsent/cp/authserver"
	"github.com/bertrandmartel/hydraconsent/cp/claims"
	"github.com/bertrandmartel/hydraconsent/cp/identity"
	"github.com/bertrandmartel/hydraconsent/cp/metrics"
	"github.com/bertrandmartel/hydraconsent/cp/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reference = "some-reference"

func authenticatedSession() *session.Session {
	s := &session.Session{ID: "some id"}
	session.MarkAuthenticated(s, identity.DefaultAccount().User)
	return s
}

func newAuthServer(scopes ...string) *apptest.FakeAuthServer {
	return &apptest.FakeAuthServer{
		Challenge: &authserver.ConsentChallenge{
			RequestedScopes: scopes,
			ClientID:        "some client id",
		},
		Target: &authserver.RedirectTarget{
			URL:     "http://hydra/oauth2/auth?client_id=app",
			Consent: "consent-id",
		},
	}
}

func assertRedirectedToAuthServer(t *testing.T, app *apptest.FakeApp) {
	u, err := url.Parse(app.Location)
	require.NoError(t, err)
	assert.Equal(t, "hydra", u.Host)
	assert.Equal(t, "/oauth2/auth", u.Path)
	assert.Equal(t, "app", u.Query().Get("client_id"))
	assert.Equal(t, "consent-id", u.Query().Get("consent"))
}

func TestInitiate(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		authServer := newAuthServer("openid")
		app := apptest.NewFakeApp(authServer)

		err := Initiate(nil, &Request{Reference: reference}, app, &session.Session{ID: "some id"})
		assert.NoError(t, err)
		assert.True(t, app.LoginRedirect)
		assert.Equal(t, reference, app.LoginReference)
		assert.Equal(t, "Please log in", app.LoginMessage)
		assert.Empty(t, authServer.VerifyCalls)
	})
	t.Run("nil session", func(t *testing.T) {
		authServer := newAuthServer("openid")
		app := apptest.NewFakeApp(authServer)

		err := Initiate(nil, &Request{Reference: reference}, app, nil)
		assert.NoError(t, err)
		assert.True(t, app.LoginRedirect)
		assert.Empty(t, authServer.VerifyCalls)
	})
	t.Run("upstream error", func(t *testing.T) {
		authServer := newAuthServer("openid")
		app := apptest.NewFakeApp(authServer)

		err := Initiate(nil, &Request{Reference: reference, Error: "access_denied", ErrorDescription: "The client was denied"}, app, authenticatedSession())
		assert.NoError(t, err)
		assert.Equal(t, "error", app.Rendered)
		assert.Equal(t, "access_denied", app.ErrorName)
		assert.Equal(t, "The client was denied", app.ErrorDescription)
		assert.Empty(t, authServer.VerifyCalls)
	})
	t.Run("missing reference", func(t *testing.T) {
		authServer := newAuthServer("openid")
		app := apptest.NewFakeApp(authServer)

		err := Initiate(nil, &Request{}, app, authenticatedSession())
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, app.RenderedStatus)
		assert.Equal(t, "invalid_request", app.ErrorName)
		assert.Empty(t, authServer.VerifyCalls)
	})
	t.Run("prompt", func(t *testing.T) {
		authServer := newAuthServer("openid", "profile", "email")
		app := apptest.NewFakeApp(authServer)

		err := Initiate(nil, &Request{Reference: reference}, app, authenticatedSession())
		assert.NoError(t, err)
		assert.Equal(t, "consent", app.Rendered)
		require.NotNil(t, app.Challenge)
		assert.Equal(t, []string{"openid", "profile", "email"}, app.Challenge.RequestedScopes)
		assert.Equal(t, []string{reference}, authServer.VerifyCalls)
		assert.Empty(t, authServer.Submissions)
	})
	t.Run("forced consent", func(t *testing.T) {
		authServer := newAuthServer("openid")
		authServer.Challenge.ForceConsent = true
		app := apptest.NewFakeApp(authServer)
		app.Config.Consent.ForceConsentEnabled = true

		err := Initiate(nil, &Request{Reference: reference}, app, authenticatedSession())
		assert.NoError(t, err)
		assert.Empty(t, app.Rendered)
		require.Len(t, authServer.Submissions, 1)
		submission := authServer.Submissions[0]
		assert.Equal(t, reference, submission.Reference)
		assert.Equal(t, []string{"openid"}, submission.Decision.GrantedScopes)
		assert.Equal(t, "user:12345:dandean", submission.Decision.Subject)
		assert.Empty(t, submission.Decision.Claims)
		assertRedirectedToAuthServer(t, app)
	})
	t.Run("forced consent disabled by policy", func(t *testing.T) {
		authServer := newAuthServer("openid")
		authServer.Challenge.ForceConsent = true
		app := apptest.NewFakeApp(authServer)

		err := Initiate(nil, &Request{Reference: reference}, app, authenticatedSession())
		assert.NoError(t, err)
		assert.Equal(t, "consent", app.Rendered)
		assert.Empty(t, authServer.Submissions)
	})
	t.Run("challenge error", func(t *testing.T) {
		authServer := newAuthServer("openid")
		authServer.VerifyErr = &authserver.Error{Type: authserver.ErrorChallenge, Operation: authserver.OperationVerify, StatusCode: 404, Err: authserver.ErrChallengeNotFound}
		app := apptest.NewFakeApp(authServer)

		err := Initiate(nil, &Request{Reference: reference}, app, authenticatedSession())
		assert.NoError(t, err)
		assert.Equal(t, "error", app.Rendered)
		assert.Equal(t, http.StatusBadRequest, app.RenderedStatus)
		assert.Equal(t, "challenge_error", app.ErrorName)
		assert.NotContains(t, app.ErrorDescription, "not found")
		assert.Empty(t, authServer.Submissions)
	})
	t.Run("transport error", func(t *testing.T) {
		authServer := newAuthServer("openid")
		authServer.VerifyErr = &authserver.Error{Type: authserver.ErrorTransport, Operation: authserver.OperationVerify, Err: errors.New("dial tcp: connection refused")}
		app := apptest.NewFakeApp(authServer)

		err := Initiate(nil, &Request{Reference: reference}, app, authenticatedSession())
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadGateway, app.RenderedStatus)
		assert.Equal(t, "transport_error", app.ErrorName)
		assert.NotContains(t, app.ErrorDescription, "dial tcp")
	})
	t.Run("credential error", func(t *testing.T) {
		authServer := newAuthServer("openid")
		authServer.VerifyErr = &authserver.Error{Type: authserver.ErrorCredential, Operation: authserver.OperationVerify, Err: authserver.ErrCredentialRejected}
		app := apptest.NewFakeApp(authServer)

		err := Initiate(nil, &Request{Reference: reference}, app, authenticatedSession())
		assert.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, app.RenderedStatus)
		assert.Equal(t, "credential_error", app.ErrorName)
	})
	t.Run("unexpected error", func(t *testing.T) {
		authServer := newAuthServer("openid")
		authServer.VerifyErr = errors.New("boom")
		app := apptest.NewFakeApp(authServer)

		err := Initiate(nil, &Request{Reference: reference}, app, authenticatedSession())
		assert.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, app.RenderedStatus)
		assert.Equal(t, "server_error", app.ErrorName)
	})
}

func TestDecide(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		authServer := newAuthServer("openid")
		app := apptest.NewFakeApp(authServer)

		err := Decide(nil, &DecisionRequest{Reference: reference, GrantedScopes: claims.Scalar("openid")}, app, &session.Session{ID: "expired"})
		assert.NoError(t, err)
		assert.True(t, app.LoginRedirect)
		assert.Equal(t, reference, app.LoginReference)
		assert.Empty(t, authServer.VerifyCalls)
		assert.Empty(t, authServer.Submissions)
	})
	t.Run("grant subset", func(t *testing.T) {
		authServer := newAuthServer("profile", "email")
		app := apptest.NewFakeApp(authServer)

		err := Decide(nil, &DecisionRequest{Reference: reference, GrantedScopes: claims.Scalar("email")}, app, authenticatedSession())
		assert.NoError(t, err)
		assert.Equal(t, []string{reference}, authServer.VerifyCalls)
		require.Len(t, authServer.Submissions, 1)
		decision := authServer.Submissions[0].Decision
		assert.Equal(t, []string{"email"}, decision.GrantedScopes)
		assert.Equal(t, map[string]interface{}{"email": "dan@acme.com", "emailVerified": true}, decision.Claims)
		assert.NotContains(t, decision.Claims, "name")
		assert.NotContains(t, decision.Claims, "nickname")
		assertRedirectedToAuthServer(t, app)
	})
	t.Run("grant all", func(t *testing.T) {
		authServer := newAuthServer("openid", "profile", "email")
		app := apptest.NewFakeApp(authServer)

		err := Decide(nil, &DecisionRequest{Reference: reference, GrantedScopes: claims.Sequence{"openid", "profile", "email"}}, app, authenticatedSession())
		assert.NoError(t, err)
		require.Len(t, authServer.Submissions, 1)
		decision := authServer.Submissions[0].Decision
		assert.Equal(t, []string{"openid", "profile", "email"}, decision.GrantedScopes)
		assert.Len(t, decision.Claims, 4)
	})
	t.Run("grant nothing", func(t *testing.T) {
		authServer := newAuthServer("openid", "profile")
		app := apptest.NewFakeApp(authServer)

		err := Decide(nil, &DecisionRequest{Reference: reference}, app, authenticatedSession())
		assert.NoError(t, err)
		require.Len(t, authServer.Submissions, 1)
		assert.Equal(t, []string{}, authServer.Submissions[0].Decision.GrantedScopes)
		assert.Empty(t, authServer.Submissions[0].Decision.Claims)
	})
	t.Run("scope not requested", func(t *testing.T) {
		authServer := newAuthServer("openid", "email")
		app := apptest.NewFakeApp(authServer)

		err := Decide(nil, &DecisionRequest{Reference: reference, GrantedScopes: claims.Sequence{"email", "profile"}}, app, authenticatedSession())
		assert.NoError(t, err)
		assert.Equal(t, "invalid_scope", app.ErrorName)
		assert.Equal(t, http.StatusBadRequest, app.RenderedStatus)
		assert.Empty(t, authServer.Submissions)
	})
	t.Run("challenge error", func(t *testing.T) {
		authServer := newAuthServer("openid")
		authServer.VerifyErr = &authserver.Error{Type: authserver.ErrorChallenge, Operation: authserver.OperationVerify, Err: authserver.ErrChallengeExpired}
		app := apptest.NewFakeApp(authServer)

		err := Decide(nil, &DecisionRequest{Reference: reference, GrantedScopes: claims.Scalar("openid")}, app, authenticatedSession())
		assert.NoError(t, err)
		assert.Equal(t, "challenge_error", app.ErrorName)
		assert.Empty(t, authServer.Submissions)
	})
	t.Run("submitted once", func(t *testing.T) {
		authServer := newAuthServer("openid")
		app := apptest.NewFakeApp(authServer)
		request := &DecisionRequest{Reference: reference, GrantedScopes: claims.Scalar("openid")}

		assert.NoError(t, Decide(nil, request, app, authenticatedSession()))
		assert.NoError(t, Decide(nil, request, app, authenticatedSession()))

		assert.Len(t, authServer.Submissions, 1)
		assert.Equal(t, http.StatusConflict, app.RenderedStatus)
		assert.Equal(t, "consent_already_submitted", app.ErrorName)
	})
	t.Run("decision error", func(t *testing.T) {
		authServer := newAuthServer("openid")
		authServer.SubmitErr = &authserver.Error{Type: authserver.ErrorDecision, Operation: authserver.OperationSubmit, StatusCode: 400, Err: errors.New("received incorrect status : 400")}
		app := apptest.NewFakeApp(authServer)
		request := &DecisionRequest{Reference: reference, GrantedScopes: claims.Scalar("openid")}

		assert.NoError(t, Decide(nil, request, app, authenticatedSession()))
		assert.Equal(t, "decision_error", app.ErrorName)
		assert.Equal(t, http.StatusBadRequest, app.RenderedStatus)
		assert.Empty(t, app.Location)

		// a failed submission leaves nothing behind
		authServer.SubmitErr = nil
		assert.NoError(t, Decide(nil, request, app, authenticatedSession()))
		assert.Len(t, authServer.Submissions, 2)
		assertRedirectedToAuthServer(t, app)
	})
	t.Run("accepted without redirect", func(t *testing.T) {
		authServer := newAuthServer("openid", "email")
		authServer.Challenge.RedirectContext = "http://hydra/oauth2/auth?client_id=app&consent=" + reference
		authServer.Target = &authserver.RedirectTarget{}
		app := apptest.NewFakeApp(authServer)

		err := Decide(nil, &DecisionRequest{Reference: reference, GrantedScopes: claims.Scalar("email")}, app, authenticatedSession())
		assert.NoError(t, err)
		require.Len(t, authServer.Submissions, 1)
		assert.Equal(t, "http://hydra/oauth2/auth?client_id=app&consent="+reference, app.Location)
		assert.Empty(t, authServer.Target.URL)
	})
	t.Run("no redirect at all", func(t *testing.T) {
		authServer := newAuthServer("openid")
		authServer.Target = &authserver.RedirectTarget{}
		app := apptest.NewFakeApp(authServer)

		err := Decide(nil, &DecisionRequest{Reference: reference, GrantedScopes: claims.Scalar("openid")}, app, authenticatedSession())
		assert.NoError(t, err)
		assert.Equal(t, "decision_error", app.ErrorName)
		assert.Empty(t, app.Location)
	})
	t.Run("invalid redirect", func(t *testing.T) {
		authServer := newAuthServer("openid")
		authServer.Target = &authserver.RedirectTarget{URL: "http://[::1", Consent: "consent-id"}
		app := apptest.NewFakeApp(authServer)

		err := Decide(nil, &DecisionRequest{Reference: reference, GrantedScopes: claims.Scalar("openid")}, app, authenticatedSession())
		assert.NoError(t, err)
		assert.Equal(t, "decision_error", app.ErrorName)
		assert.Empty(t, app.Location)
	})
}

func TestGrantedScopesAreSubsetOfRequested(t *testing.T) {
	requested := []string{"openid", "profile", "email"}
	inputs := []claims.ScopeInput{
		claims.Scalar("openid"),
		claims.Scalar("email"),
		claims.Sequence{"profile", "email"},
		claims.Sequence{"email", "email", " openid "},
		claims.Sequence{"openid", "admin"},
		claims.Sequence{"photos"},
		claims.Sequence{},
	}
	for _, input := range inputs {
		authServer := newAuthServer(requested...)
		app := apptest.NewFakeApp(authServer)

		assert.NoError(t, Decide(nil, &DecisionRequest{Reference: reference, GrantedScopes: input}, app, authenticatedSession()))
		for _, submission := range authServer.Submissions {
			assert.Empty(t, claims.Missing(submission.Decision.GrantedScopes, requested))
		}
	}
}

func TestMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	authServer := newAuthServer("openid")
	app := apptest.NewFakeApp(authServer)
	app.Metrics = m

	assert.NoError(t, Initiate(nil, &Request{Reference: reference}, app, authenticatedSession()))
	assert.NoError(t, Decide(nil, &DecisionRequest{Reference: reference, GrantedScopes: claims.Scalar("openid")}, app, authenticatedSession()))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.FlowTransitions.WithLabelValues(string(StateAwaitingChallengeVerification))))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FlowTransitions.WithLabelValues(string(StatePromptingUser))))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FlowTransitions.WithLabelValues(string(StateSubmitting))))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FlowTransitions.WithLabelValues(string(StateRedirected))))
}
