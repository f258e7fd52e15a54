package jwt

import (
	"errors"
	"testing"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
)

func sign(t *testing.T, claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("some secret"))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestExpiry(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		exp := time.Now().Add(time.Hour).Unix()
		expiry, err := Expiry(sign(t, jwt.MapClaims{"sub": "consent-app", "exp": exp}))
		assert.NoError(t, err)
		assert.Equal(t, exp, expiry.Unix())
	})
	t.Run("expired token is still inspected", func(t *testing.T) {
		exp := time.Now().Add(-time.Hour).Unix()
		expiry, err := Expiry(sign(t, jwt.MapClaims{"exp": exp}))
		assert.NoError(t, err)
		assert.Equal(t, exp, expiry.Unix())
	})
	t.Run("missing exp", func(t *testing.T) {
		_, err := Expiry(sign(t, jwt.MapClaims{"sub": "consent-app"}))
		var tokenErr *TokenError
		if assert.True(t, errors.As(err, &tokenErr)) {
			assert.Equal(t, JwtErrorNoExpiry, tokenErr.ErrorType)
		}
	})
	t.Run("exp is not a number", func(t *testing.T) {
		_, err := Expiry(sign(t, jwt.MapClaims{"exp": "tomorrow"}))
		var tokenErr *TokenError
		if assert.True(t, errors.As(err, &tokenErr)) {
			assert.Equal(t, JwtErrorNoExpiry, tokenErr.ErrorType)
		}
	})
	t.Run("opaque token", func(t *testing.T) {
		_, err := Expiry("2YotnFZFEjr1zCsicMWpAA")
		var tokenErr *TokenError
		if assert.True(t, errors.As(err, &tokenErr)) {
			assert.Equal(t, JwtErrorTokenParse, tokenErr.ErrorType)
		}
	})
}
