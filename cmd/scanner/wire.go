//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"SignalScanner/internal/app"
)

// InitializeApp builds the App from the config file via wire.
// Caller must call the returned cleanup when done.
func InitializeApp(path app.ConfigPath) (*app.App, func(), error) {
	wire.Build(
		app.ProvideConfig,
		app.ProvideLogger,
		app.ProvideStore,
		app.ProvideBarProvider,
		app.ProvideRSICache,
		app.ProvideDetectorConfig,
		app.ProvideOrchestrator,
		app.ProvideNotifier,
		wire.Struct(new(app.App), "*"),
	)
	return nil, nil, nil
}
