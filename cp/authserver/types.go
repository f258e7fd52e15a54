package authserver

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// ConsentChallenge is a verified consent request. RequestedScopes never contains the
// force-consent marker; its presence is reported by ForceConsent instead.
type ConsentChallenge struct {
	Reference       string
	RequestedScopes []string
	ClientID        string
	RedirectContext string
	ForceConsent    bool
	ExpiresAt       time.Time
}

// ConsentDecision is what the user agreed to disclose.
type ConsentDecision struct {
	Subject       string
	GrantedScopes []string
	Claims        map[string]interface{}
}

// RedirectTarget is where the user resumes the authorization flow. URL is empty when the
// authorization server answered the decision without one.
type RedirectTarget struct {
	URL     string
	Consent string
}

// Location returns URL with the consent outcome appended as the consent query parameter.
// The existing query is kept as sent by the authorization server. Without a consent outcome
// URL is returned unchanged.
func (t RedirectTarget) Location() (string, error) {
	if t.URL == "" {
		return "", errors.New("redirect url is missing")
	}
	if _, err := url.Parse(t.URL); err != nil {
		return "", err
	}
	if t.Consent == "" {
		return t.URL, nil
	}
	base, fragment := t.URL, ""
	if i := strings.IndexByte(base, '#'); i >= 0 {
		base, fragment = base[:i], base[i:]
	}
	separator := "?"
	if strings.Contains(base, "?") {
		separator = "&"
		if strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&") {
			separator = ""
		}
	}
	return base + separator + "consent=" + url.QueryEscape(t.Consent) + fragment, nil
}
