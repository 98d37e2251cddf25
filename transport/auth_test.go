package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthentication_Header(t *testing.T) {
	assert.Equal(t, "", Authentication{}.Header())
	assert.Equal(t, "Bearer tok123", Authentication{Bearer: &BearerAuth{Token: "tok123"}}.Header())
	assert.Equal(t, "Basic dXNlcjpwYXNz", Authentication{Basic: &BasicAuth{Username: "user", Password: "pass"}}.Header())
}

func TestAuthentication_HeaderPrefersBearer(t *testing.T) {
	auth := Authentication{
		Basic:  &BasicAuth{Username: "user", Password: "pass"},
		Bearer: &BearerAuth{Token: "tok123"},
	}
	assert.Equal(t, "Bearer tok123", auth.Header())
}

func TestAuthentication_RedactedNeverLeaksSecrets(t *testing.T) {
	basic := Authentication{Basic: &BasicAuth{Username: "user", Password: "hunter2"}}
	assert.NotContains(t, basic.Redacted(), "hunter2")
	assert.Contains(t, basic.Redacted(), "user")

	bearer := Authentication{Bearer: &BearerAuth{Token: "secret-token"}}
	assert.NotContains(t, bearer.Redacted(), "secret-token")

	assert.Equal(t, "none", Authentication{}.Redacted())
}
