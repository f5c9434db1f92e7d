package config

type Stores struct{}

var _ StoresConfig = Stores{}

// GetPostgresDSN returns the DSN for the profiles database. Empty means the
// gateway runs with the in-memory profile repo.
func (Stores) GetPostgresDSN() string {
	return GetEnv("POSTGRES_DSN", "")
}

// GetRedisAddr returns the Redis address for remember-me and refresh-token
// persistence. Empty means in-memory stores.
func (Stores) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "")
}
