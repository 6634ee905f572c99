package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/metrics"
	"github.com/vladislavdragonenkov/wholesale/internal/service/catalog"
	"github.com/vladislavdragonenkov/wholesale/internal/service/idempotency"
	"github.com/vladislavdragonenkov/wholesale/internal/service/ledger"
	"github.com/vladislavdragonenkov/wholesale/internal/service/orders"
)

// services — прикладной слой, общий для HTTP и gRPC.
type services struct {
	catalog *catalog.Service
	ledger  *ledger.Service
	orders  *orders.Engine
	guard   *idempotency.Guard
}

func newServices(deps *runtimeDependencies, cfg Config, logger *log.Entry, orderMetrics *metrics.OrderMetrics) *services {
	return &services{
		catalog: catalog.NewService(deps.store, logger.WithField("layer", "catalog")),
		ledger:  ledger.NewService(deps.store, logger.WithField("layer", "ledger")),
		orders: orders.NewEngine(deps.store,
			orders.WithLogger(logger.WithField("layer", "order-engine")),
			orders.WithMetrics(orderMetrics),
			orders.WithStrictStatusTransitions(cfg.StrictStatusTransitions),
		),
		guard: idempotency.NewGuard(deps.idempotencyRepo, cfg.IdempotencyTTL, logger.WithField("layer", "idempotency")),
	}
}
