package biz

import "github.com/google/wire"

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewBillingConfig,
	NewPricingCatalog,
	NewNotifier,
	NewCreditLedger,
	NewStageProgressTracker,
	NewConsumptionGateway,
	NewGrantManager,
	NewRemixVersionManager,
	NewStatsUseCase,
)
