//go:build wireinject
// +build wireinject

package main

import (
	"stockbot/internal/aggregate"
	"stockbot/internal/app"
	"stockbot/internal/resolve"

	"github.com/google/wire"
)

// App holds application dependencies built by Wire.
type App struct {
	Config     *app.Config
	Resolver   *resolve.Resolver
	Aggregator *aggregate.Aggregator
}

// InitializeApp builds App (Config + Resolver + Aggregator) via Wire.
func InitializeApp() (*App, error) {
	wire.Build(
		app.ProvideConfig,
		app.ProvideCache,
		app.ProvideAuthenticator,
		app.ProvideClient,
		app.ProvideResolver,
		app.ProvideAggregator,
		wire.Struct(new(App), "Config", "Resolver", "Aggregator"),
	)
	return nil, nil
}
