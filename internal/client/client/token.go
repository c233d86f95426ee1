package client

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// CheckToken fails early with ErrUnauthorized when the API token is a JWT
// whose exp has passed. The signature is not verified; the server does
// that. Opaque tokens are accepted as is.
func (c *HTTPClient) CheckToken() error {
	if c.token == "" {
		return fmt.Errorf("%w: no api token configured", ErrUnauthorized)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if c.now().After(exp.Time) {
		return fmt.Errorf("%w: api token expired at %s", ErrUnauthorized, exp.Time.UTC().Format("2006-01-02 15:04:05"))
	}
	return nil
}
