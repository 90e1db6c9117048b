package domain

// Tipos de evento (tags usadas para roteamento de topic).
const (
	EventOsCreated               = "OsCreated"
	EventOsCanceled              = "OsCanceled"
	EventOsCompensationRequested = "OsCompensationRequested"
	EventBudgetGenerated         = "BudgetGenerated"
	EventBudgetApproved          = "BudgetApproved"
	EventBudgetRejected          = "BudgetRejected"
	EventPaymentPending          = "PaymentPending"
	EventPaymentConfirmed        = "PaymentConfirmed"
	EventPaymentFailed           = "PaymentFailed"
	EventPaymentReversed         = "PaymentReversed"
)

const (
	// TopicoOs é o topic consumido (eventos do serviço de ordens).
	TopicoOs = "os-events"
	// TopicoBilling é o topic onde publicamos os eventos de cobrança.
	TopicoBilling = "billing-events"
)

// AggregateOrderService identifica o agregado dono dos eventos publicados.
const AggregateOrderService = "OrderService"

// NewRoutingTable monta a tabela estática EventType -> topic usada pelo
// outbox worker. Tipo fora da tabela é erro fatal para a mensagem.
func NewRoutingTable() map[string]string {
	return map[string]string{
		EventBudgetGenerated:  TopicoBilling,
		EventBudgetApproved:   TopicoBilling,
		EventBudgetRejected:   TopicoBilling,
		EventPaymentPending:   TopicoBilling,
		EventPaymentConfirmed: TopicoBilling,
		EventPaymentFailed:    TopicoBilling,
		EventPaymentReversed:  TopicoBilling,
	}
}
