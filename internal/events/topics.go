package events

// Topic constants for domain events emitted by the storefront.
const (
	TopicOrderCreated          = "order.created"
	TopicPaymentCaptured       = "payment.captured"
	TopicPaymentDeclined       = "payment.declined"
	TopicCheckoutChargeOrphan  = "checkout.charge_orphaned"
	TopicCheckoutChargeVoided  = "checkout.charge_voided"
	TopicCheckoutChargeUnknown = "checkout.charge_unknown"
)

// Critical reports whether a topic needs operator attention.
func Critical(topic string) bool {
	switch topic {
	case TopicCheckoutChargeOrphan, TopicCheckoutChargeUnknown:
		return true
	default:
		return false
	}
}
