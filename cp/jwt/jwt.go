package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
)

const (
	JwtErrorTokenParse = "JWT_TOKEN_PARSE_ERROR"
	JwtErrorNoExpiry   = "JWT_EXPIRY_MISSING"
)

// TokenError describes why a token could not be inspected.
type TokenError struct {
	ErrorType string
	Err       error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("%v: %v", e.ErrorType, e.Err)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// Expiry reads the exp claim of a JWT without verifying its signature.
// It is meant for tokens this process received directly from the token endpoint,
// to learn when to refresh them; it is not an authorization check.
func Expiry(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	_, _, err := new(jwt.Parser).ParseUnverified(raw, claims)
	if err != nil {
		return time.Time{}, &TokenError{ErrorType: JwtErrorTokenParse, Err: err}
	}
	exp, ok := claims["exp"]
	if !ok {
		return time.Time{}, &TokenError{ErrorType: JwtErrorNoExpiry, Err: errors.New("exp field is missing")}
	}
	expiration, ok := exp.(float64)
	if !ok {
		return time.Time{}, &TokenError{ErrorType: JwtErrorNoExpiry, Err: fmt.Errorf("error reading exp %v", exp)}
	}
	return time.Unix(int64(expiration), 0), nil
}
