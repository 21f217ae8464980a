package app

import (
	"log/slog"

	"stockbot/internal/aggregate"
	"stockbot/internal/cache"
	"stockbot/internal/resolve"
	"stockbot/internal/rhood"
)

// ProvideConfig loads config from environment (for Wire).
func ProvideConfig() (*Config, error) {
	return Load()
}

// ProvideCache creates the response cache from config (for Wire).
func ProvideCache(cfg *Config) (*cache.Cache, error) {
	return cache.New(cfg.CacheMaxCost, cfg.CacheTTL)
}

// ProvideAuthenticator builds the token authenticator (for Wire).
// Returns a ConfigError if required credential material is missing.
func ProvideAuthenticator(cfg *Config) (*rhood.Authenticator, error) {
	creds, err := cfg.Credentials()
	if err != nil {
		return nil, err
	}
	return rhood.NewAuthenticator(rhood.AuthConfig{
		Credentials:     creds,
		TokenURL:        cfg.BaseURL + rhood.TokenPath,
		HTTP:            rhood.NewHTTPClient(),
		RefreshMargin:   cfg.RefreshMargin,
		RefreshInterval: cfg.RefreshInterval,
		Attempts:        cfg.RetryAttempts,
		Logger:          slog.Default(),
	})
}

// ProvideClient builds the upstream API client (for Wire).
func ProvideClient(cfg *Config, store *cache.Cache, auth *rhood.Authenticator) *rhood.Client {
	return rhood.NewClient(rhood.ClientConfig{
		BaseURL:  cfg.BaseURL,
		Cache:    store,
		Auth:     auth,
		Attempts: cfg.RetryAttempts,
		Logger:   slog.Default(),
	})
}

// ProvideResolver builds the instrument resolver (for Wire).
func ProvideResolver(cfg *Config, client *rhood.Client, store *cache.Cache) *resolve.Resolver {
	return resolve.New(client, store, cfg.ResolverPoolSize, slog.Default())
}

// ProvideAggregator builds the quote/historicals aggregator (for Wire).
func ProvideAggregator(client *rhood.Client, resolver *resolve.Resolver) *aggregate.Aggregator {
	return aggregate.New(client, resolver, slog.Default())
}
