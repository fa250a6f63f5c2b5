//go:build wireinject
// +build wireinject

package di

import (
	"CovDash/pkg/config"
	"CovDash/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,

		// Infrastructure
		ProvideCache,
		ProvideSnapshotSource,
		ProvideExportPublisher,
		ProvideKafkaConsumer,

		// Repositories
		ProvideArtifactCache,
		ProvideSessionStore,

		// Use cases
		ProvideDashboard,
		ProvideSnapshotListener,

		// Transport
		ProvideLimiter,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
