package authserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bertrandmartel/hydraconsent/cp/jwt"
	"github.com/bertrandmartel/hydraconsent/cp/logging"
	"github.com/bertrandmartel/hydraconsent/cp/metrics"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const (
	refreshKey        = "service-credential"
	defaultExpirySkew = 10 * time.Second
	operationRefresh  = "refresh"
	outcomeOK         = "ok"
	outcomeError      = "error"
)

// TokenFetcher obtains a fresh access token. *clientcredentials.Config satisfies it.
type TokenFetcher interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

type clientCredentialsFetcher struct {
	config     *clientcredentials.Config
	httpClient *http.Client
}

func (f *clientCredentialsFetcher) Token(ctx context.Context) (*oauth2.Token, error) {
	if f.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	}
	return f.config.Token(ctx)
}

// NewClientCredentials returns a fetcher running the client credentials grant against tokenURL.
func NewClientCredentials(httpClient *http.Client, tokenURL string, clientID string, clientSecret string, scopes []string) TokenFetcher {
	return &clientCredentialsFetcher{
		config: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient: httpClient,
	}
}

// CredentialHolder caches the service credential shared by all requests.
// Readers holding a valid token never wait for a refresh; concurrent refreshes are collapsed into one.
type CredentialHolder struct {
	fetcher TokenFetcher
	metrics *metrics.Metrics
	skew    time.Duration
	now     func() time.Time

	group singleflight.Group
	mu    sync.RWMutex
	token *oauth2.Token
}

func NewCredentialHolder(fetcher TokenFetcher, m *metrics.Metrics) *CredentialHolder {
	return &CredentialHolder{
		fetcher: fetcher,
		metrics: m,
		skew:    defaultExpirySkew,
		now:     time.Now,
	}
}

// Get returns the cached credential if it is still valid, refreshing it otherwise.
func (h *CredentialHolder) Get(ctx context.Context) (*oauth2.Token, error) {
	h.mu.RLock()
	token := h.token
	h.mu.RUnlock()
	if h.valid(token) {
		return token, nil
	}
	return h.Refresh(ctx)
}

// Refresh fetches a new credential and caches it. Callers arriving while a refresh is
// in flight share its result; each caller stops waiting when its own ctx is done.
func (h *CredentialHolder) Refresh(ctx context.Context) (*oauth2.Token, error) {
	result := h.group.DoChan(refreshKey, func() (interface{}, error) {
		return h.fetch(context.WithoutCancel(ctx))
	})
	select {
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth2.Token), nil
	case <-ctx.Done():
		return nil, &Error{Type: ErrorTransport, Operation: operationRefresh, Err: ctx.Err()}
	}
}

// Invalidate drops stale from the cache. A credential stored by a newer refresh is kept.
func (h *CredentialHolder) Invalidate(stale *oauth2.Token) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.token == stale {
		h.token = nil
	}
}

func (h *CredentialHolder) fetch(ctx context.Context) (*oauth2.Token, error) {
	token, err := h.fetcher.Token(ctx)
	if err != nil {
		h.metrics.CredentialRefresh(outcomeError)
		logging.Log().WithError(err).Error("unable to obtain service credential")
		return nil, &Error{Type: ErrorCredential, Operation: operationRefresh, Err: err}
	}
	if token.Expiry.IsZero() {
		if expiry, err := jwt.Expiry(token.AccessToken); err == nil {
			withExpiry := *token
			withExpiry.Expiry = expiry
			token = &withExpiry
		}
	}
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
	h.metrics.CredentialRefresh(outcomeOK)
	logging.Log().WithField("expiry", token.Expiry).Debug("service credential refreshed")
	return token, nil
}

func (h *CredentialHolder) valid(token *oauth2.Token) bool {
	if token == nil || token.AccessToken == "" {
		return false
	}
	if token.Expiry.IsZero() {
		return true
	}
	return h.now().Add(h.skew).Before(token.Expiry)
}
