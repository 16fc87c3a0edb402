// Package config resolves Buildkite API credentials from environment-like
// configuration sources. Lookup is abstracted behind the Provider interface so
// the client can be tested without touching the process environment.
package config

import (
	"os"
)

// Environment variables supplying the bearer token, in priority order.
const (
	// EnvAPIKey is the primary token variable, set on CI agents.
	EnvAPIKey = "BUILDKITE_CI_API_KEY"

	// EnvToken is the fallback token variable for local usage.
	EnvToken = "BUILDKITE_TOKEN"
)

// Provider supplies read-only access to named configuration variables.
type Provider interface {
	// Lookup returns the value of the named variable and whether it was set.
	Lookup(key string) (string, bool)
}

// Env reads variables from the process environment.
type Env struct{}

// Lookup implements Provider via os.LookupEnv.
func (Env) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Static is a fixed variable mapping, used for deterministic tests.
type Static map[string]string

// Lookup implements Provider.
func (s Static) Lookup(key string) (string, bool) {
	value, ok := s[key]
	return value, ok
}

// ResolveToken returns the bearer token from the first variable that is set
// and non-empty, checking EnvAPIKey before EnvToken. Returns "" when neither
// supplies a token; absence is not an error, requests are then sent
// unauthenticated.
func ResolveToken(p Provider) string {
	for _, key := range []string{EnvAPIKey, EnvToken} {
		if value, ok := p.Lookup(key); ok && value != "" {
			return value
		}
	}
	return ""
}
