package events

// Topic constants for domain events emitted by the platform.
const (
	TopicInvoiceFinalized  = "invoice.finalized"
	TopicInvoicePaid       = "invoice.paid"
	TopicInvoicePartPaid   = "invoice.partial_paid"
	TopicInvoiceCancelled  = "invoice.cancelled"
	TopicInvoiceVoided     = "invoice.voided"
	TopicInvoiceRefunded   = "invoice.refunded"
	TopicInvoiceWrittenOff = "invoice.written_off"
	TopicStockBackordered  = "stock.backordered"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicInvoiceFinalized,
		TopicInvoicePaid,
		TopicInvoicePartPaid,
		TopicInvoiceCancelled,
		TopicInvoiceVoided,
		TopicInvoiceRefunded,
		TopicInvoiceWrittenOff,
		TopicStockBackordered,
	}
}
