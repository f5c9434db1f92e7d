package config

type Config interface {
	EnvConfig
	BackendConfig
	StoresConfig
	SessionConfig
	CorsConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
}

type BackendConfig interface {
	GetProviderURL() string
	GetProviderAPIKey() string
	GetOIDCIssuer() string
	GetOIDCClientID() string
	UseDevBackend() bool
	GetDevSecret() string
}

type StoresConfig interface {
	GetPostgresDSN() string
	GetRedisAddr() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Backend
	Stores
	Session
	Cors
}

func New() Config {
	return mainConfig{}
}
