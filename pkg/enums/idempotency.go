package enums

// EffectType scopes an idempotency key to the side effect it protects.
type EffectType string

const (
	EffectPaymentConfirmation EffectType = "payment_confirmation"
	EffectPaymentFailure      EffectType = "payment_failure"
	EffectDeliveryUpdate      EffectType = "delivery_update"
	EffectSettlement          EffectType = "settlement"
	EffectRefund              EffectType = "refund"
)

// EffectOutcome is recorded once a guarded effect finishes.
type EffectOutcome string

const (
	EffectOutcomeClaimed EffectOutcome = "claimed"
	EffectOutcomeApplied EffectOutcome = "applied"
	EffectOutcomeNoop    EffectOutcome = "noop"
)
