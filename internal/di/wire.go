//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"FinCast/pkg/config"
	"FinCast/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application and
// a cleanup function that closes infrastructure clients.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideChartStore,
		ProvideEventPublisher,

		// Use cases
		ProvideEstimator,
		ProvideKafkaConsumer,
		ProvideKafkaChartHandler,

		// Transport
		ProvideEstimatorHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil, nil
}
