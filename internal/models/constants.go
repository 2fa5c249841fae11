package models

const (
	BookingConfirmed = "CONFIRMED"
	BookingCancelled = "CANCELLED"
	BookingCompleted = "COMPLETED"
)

// Flow steps of the reservation state machine. Hold acquisition and
// booking confirmation are chained, so there is no separate holding
// step: a session is selecting, confirming (hold live, confirm retry
// possible), confirmed, or stuck in error after a failed operation.
const (
	StepSelecting  = "selecting"
	StepConfirming = "confirming"
	StepConfirmed  = "confirmed"
	StepError      = "error"
)

// Payment states per booking. Only PaymentBackendConfirmed counts as
// paid; a processor-side success alone is not durable.
const (
	PaymentNoIntent           = "NO_INTENT"
	PaymentIntentCreated      = "INTENT_CREATED"
	PaymentProcessorConfirmed = "PROCESSOR_CONFIRMED"
	PaymentBackendConfirmed   = "BACKEND_CONFIRMED"
)

const (
	ProcessorStatusSucceeded             = "succeeded"
	ProcessorStatusRequiresPaymentMethod = "requires_payment_method"
)

const (
	// DefaultRedisTTL lifetime of a draft in Redis, in seconds. Long
	// enough to outlive any hold TTL by a wide margin.
	DefaultRedisTTL = 24 * 60 * 60

	// DefaultCacheTTLSeconds caches availability responses briefly;
	// holds and bookings are never cached.
	DefaultCacheTTLSeconds = 30

	DefaultCurrency = "COP"
)

// AllowedDurations are the bookable lengths in minutes. The server may
// still reject 90/120 near closing time.
var AllowedDurations = []int{60, 90, 120}

func DurationAllowed(min int) bool {
	for _, d := range AllowedDurations {
		if d == min {
			return true
		}
	}
	return false
}
