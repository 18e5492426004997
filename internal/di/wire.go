//go:build wireinject
// +build wireinject

package di

import (
	"Indicium/pkg/config"
	"Indicium/pkg/queue"
	"Indicium/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideMetrics,
	ProvideKV,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		infraSet,

		// Repositories
		ProvideSignalSource,
		ProvidePublisher,
		ProvideSnapshotStore,

		// Services
		ProvideValidator,
		ProvideLimiter,

		// Use cases
		ProvideRefresher,
		ProvideRefreshQueue,

		// Transport
		ProvideSignalsHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeRefreshRequester builds a producer-only handle on the refresh queue.
func InitializeRefreshRequester(cfg *config.Config) (queue.Publisher, func(), error) {
	wire.Build(
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideKV,
		ProvideRefreshRequester,
	)
	return nil, nil, nil
}
