package asmodel

import "time"

// ConsentRequest is a consent request pending at the authorization server.
type ConsentRequest struct {
	ID              string    `json:"id"`
	RequestedScopes []string  `json:"requestedScopes"`
	ClientID        string    `json:"clientId"`
	ExpiresAt       time.Time `json:"expiresAt"`
	RedirectURL     string    `json:"redirectUrl"`
}

// AcceptConsentRequest is the body sent to accept a consent request.
type AcceptConsentRequest struct {
	Subject          string                 `json:"subject"`
	GrantScopes      []string               `json:"grantScopes"`
	AccessTokenExtra map[string]interface{} `json:"accessTokenExtra"`
	IDTokenExtra     map[string]interface{} `json:"idTokenExtra"`
}

// ConsentResponse tells where to send the user once the consent request is accepted.
type ConsentResponse struct {
	RedirectTo string `json:"redirectTo"`
	Consent    string `json:"consent"`
}

// ErrorResponse is the error body returned by the authorization server.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	StatusCode       int    `json:"status_code"`
}
