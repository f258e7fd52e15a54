package authserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/avast/retry-go/v4"
	"github.com/bertrandmartel/hydraconsent/cp/asmodel"
	"github.com/bertrandmartel/hydraconsent/cp/logging"
	"github.com/bertrandmartel/hydraconsent/cp/metrics"
	"golang.org/x/oauth2"
)

const (
	OperationVerify = "verify"
	OperationSubmit = "submit"

	consentRequestsPath = "/oauth2/consent/requests/"
	maxReferenceLength  = 512
	maxErrorBodyLength  = 4096
)

// Client talks to the consent API of the authorization server. Every call is authenticated
// with the service credential; a call rejected with 401 is retried once with a fresh credential.
type Client struct {
	httpClient   *http.Client
	adminURL     string
	credentials  *CredentialHolder
	forceConsent string
	metrics      *metrics.Metrics
	now          func() time.Time
}

// NewClient creates a client for the authorization server admin API at adminURL.
// forceConsentScope is the scope marker that flags a challenge for silent consent, empty disables it.
func NewClient(httpClient *http.Client, adminURL string, credentials *CredentialHolder, forceConsentScope string, m *metrics.Metrics) *Client {
	return &Client{
		httpClient:   httpClient,
		adminURL:     strings.TrimSuffix(adminURL, "/"),
		credentials:  credentials,
		forceConsent: forceConsentScope,
		metrics:      m,
		now:          time.Now,
	}
}

// VerifyChallenge fetches the consent request identified by reference.
func (c *Client) VerifyChallenge(ctx context.Context, reference string) (*ConsentChallenge, error) {
	start := time.Now()
	challenge, err := c.verifyChallenge(ctx, reference)
	c.metrics.ObserveOutbound(OperationVerify, outcome(err), start)
	return challenge, err
}

// SubmitDecision accepts the consent request identified by reference with decision.
func (c *Client) SubmitDecision(ctx context.Context, reference string, decision ConsentDecision) (*RedirectTarget, error) {
	start := time.Now()
	target, err := c.submitDecision(ctx, reference, decision)
	c.metrics.ObserveOutbound(OperationSubmit, outcome(err), start)
	return target, err
}

func (c *Client) verifyChallenge(ctx context.Context, reference string) (*ConsentChallenge, error) {
	if err := checkReference(reference); err != nil {
		return nil, &Error{Type: ErrorChallenge, Operation: OperationVerify, Err: err}
	}
	request := new(asmodel.ConsentRequest)
	if err := c.do(ctx, OperationVerify, http.MethodGet, consentRequestsPath+url.PathEscape(reference), nil, request); err != nil {
		return nil, err
	}
	if request.ID != "" && request.ID != reference {
		return nil, &Error{Type: ErrorChallenge, Operation: OperationVerify, Err: fmt.Errorf("consent request id %q does not match reference", request.ID)}
	}
	if !request.ExpiresAt.IsZero() && !c.now().Before(request.ExpiresAt) {
		return nil, &Error{Type: ErrorChallenge, Operation: OperationVerify, Err: ErrChallengeExpired}
	}
	challenge := &ConsentChallenge{
		Reference:       reference,
		RequestedScopes: []string{},
		ClientID:        request.ClientID,
		RedirectContext: request.RedirectURL,
		ExpiresAt:       request.ExpiresAt,
	}
	for _, scope := range request.RequestedScopes {
		if c.forceConsent != "" && scope == c.forceConsent {
			challenge.ForceConsent = true
			continue
		}
		challenge.RequestedScopes = append(challenge.RequestedScopes, scope)
	}
	return challenge, nil
}

func (c *Client) submitDecision(ctx context.Context, reference string, decision ConsentDecision) (*RedirectTarget, error) {
	if err := checkReference(reference); err != nil {
		return nil, &Error{Type: ErrorDecision, Operation: OperationSubmit, Err: err}
	}
	if decision.Subject == "" {
		return nil, &Error{Type: ErrorDecision, Operation: OperationSubmit, Err: errors.New("subject is required")}
	}
	body := asmodel.AcceptConsentRequest{
		Subject:          decision.Subject,
		GrantScopes:      decision.GrantedScopes,
		AccessTokenExtra: map[string]interface{}{},
		IDTokenExtra:     decision.Claims,
	}
	if body.GrantScopes == nil {
		body.GrantScopes = []string{}
	}
	if body.IDTokenExtra == nil {
		body.IDTokenExtra = map[string]interface{}{}
	}
	response := new(asmodel.ConsentResponse)
	path := consentRequestsPath + url.PathEscape(reference) + "/accept"
	if err := c.do(ctx, OperationSubmit, http.MethodPatch, path, body, response); err != nil {
		return nil, err
	}
	// an accept answered with no body resumes at the consent request's own redirect url
	return &RedirectTarget{URL: response.RedirectTo, Consent: response.Consent}, nil
}

func (c *Client) do(ctx context.Context, operation string, method string, path string, body interface{}, target interface{}) error {
	errorType := ErrorChallenge
	if operation == OperationSubmit {
		errorType = ErrorDecision
	}
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return &Error{Type: errorType, Operation: operation, Err: err}
		}
	}
	err := retry.Do(
		func() error {
			token, err := c.credentials.Get(ctx)
			if err != nil {
				return err
			}
			err = c.send(ctx, token, method, path, payload, errorType, operation, target)
			if errors.Is(err, ErrCredentialRejected) {
				c.credentials.Invalidate(token)
			}
			return err
		},
		retry.Attempts(2),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrCredentialRejected)
		}),
		retry.OnRetry(func(_ uint, err error) {
			logging.Log().WithError(err).WithField("operation", operation).Warn("service credential rejected, refreshing it")
		}),
	)
	if err == nil {
		return nil
	}
	var protocolErr *Error
	if errors.As(err, &protocolErr) {
		return protocolErr
	}
	return &Error{Type: ErrorTransport, Operation: operation, Err: err}
}

func (c *Client) send(ctx context.Context, token *oauth2.Token, method string, path string, payload []byte, errorType ErrorType, operation string, target interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.adminURL+path, body)
	if err != nil {
		return &Error{Type: errorType, Operation: operation, Err: err}
	}
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %v", token.AccessToken))
	if payload != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	r, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Type: ErrorTransport, Operation: operation, Err: err}
	}
	defer r.Body.Close()

	switch {
	case r.StatusCode == http.StatusUnauthorized:
		return &Error{Type: ErrorCredential, Operation: operation, StatusCode: r.StatusCode, Err: ErrCredentialRejected}
	case r.StatusCode == http.StatusNotFound:
		return &Error{Type: errorType, Operation: operation, StatusCode: r.StatusCode, Err: ErrChallengeNotFound}
	case r.StatusCode == http.StatusConflict || r.StatusCode == http.StatusGone:
		return &Error{Type: errorType, Operation: operation, StatusCode: r.StatusCode, Err: ErrChallengeExpired}
	case r.StatusCode < 200 || r.StatusCode > 299:
		return &Error{Type: errorType, Operation: operation, StatusCode: r.StatusCode, Err: statusError(r)}
	}
	if target == nil || r.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &Error{Type: errorType, Operation: operation, StatusCode: r.StatusCode, Err: fmt.Errorf("invalid response body: %w", err)}
	}
	return nil
}

func statusError(r *http.Response) error {
	providerErr := new(asmodel.ErrorResponse)
	if err := json.NewDecoder(io.LimitReader(r.Body, maxErrorBodyLength)).Decode(providerErr); err == nil && providerErr.Error != "" {
		return fmt.Errorf("received incorrect status : %d (%v)", r.StatusCode, providerErr.Error)
	}
	return fmt.Errorf("received incorrect status : %d", r.StatusCode)
}

func checkReference(reference string) error {
	if reference == "" || len(reference) > maxReferenceLength {
		return ErrMalformedReference
	}
	if strings.ContainsAny(reference, "/?#") {
		return ErrMalformedReference
	}
	for _, r := range reference {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ErrMalformedReference
		}
	}
	return nil
}

func outcome(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return string(e.Type)
	}
	if err != nil {
		return outcomeError
	}
	return outcomeOK
}
