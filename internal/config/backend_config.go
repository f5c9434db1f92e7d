package config

import "strings"

type Backend struct{}

var _ BackendConfig = Backend{}

// GetProviderURL returns the base URL of the hosted auth provider.
func (Backend) GetProviderURL() string {
	return GetEnv("AUTH_PROVIDER_URL", "")
}

// GetProviderAPIKey returns the provider project key sent on every request.
func (Backend) GetProviderAPIKey() string {
	return GetEnv("AUTH_PROVIDER_API_KEY", "")
}

// GetOIDCIssuer returns the issuer used for ID-token verification. Empty
// disables verification.
func (Backend) GetOIDCIssuer() string {
	return GetEnv("OIDC_ISSUER", "")
}

func (Backend) GetOIDCClientID() string {
	return GetEnv("OIDC_CLIENT_ID", "")
}

// UseDevBackend selects the in-process dev backend instead of the hosted
// provider. Defaults to true when no provider URL is configured.
func (Backend) UseDevBackend() bool {
	v := GetEnv("USE_DEV_BACKEND", "")
	if v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return Backend{}.GetProviderURL() == ""
}

// GetDevSecret returns the signing secret for dev backend tokens.
func (Backend) GetDevSecret() string {
	return GetEnv("DEV_BACKEND_SECRET", "dev-secret-not-for-production")
}
