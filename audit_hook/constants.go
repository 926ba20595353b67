package audithook

// Action constants for audit events.
const (
	// Registry actions
	ActionSaleCreated = "sale.created"

	// Purchase actions
	ActionTokensPurchased  = "purchase.completed"
	ActionPurchaseRejected = "purchase.rejected"
	ActionThrottleTripped  = "throttle.tripped"
	ActionHardCapReached   = "hard_cap.reached"

	// Pricing actions
	ActionPriceUpdated = "price.updated"

	// Settlement actions
	ActionFundsWithdrawn = "funds.withdrawn"
	ActionTokensReturned = "tokens.returned"
)

// Resource constants for audit events.
const (
	ResourceSale       = "sale"
	ResourcePurchase   = "purchase"
	ResourceLimit      = "limit"
	ResourceWithdrawal = "withdrawal"
)

// Category constants for audit events.
const (
	CategoryRegistry   = "registry"
	CategoryPurchase   = "purchase"
	CategoryPricing    = "pricing"
	CategorySettlement = "settlement"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
