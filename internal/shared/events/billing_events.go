package events

import (
	"time"

	"github.com/google/uuid"
)

// Contratos de eventos trocados com o serviço de ordens.
// Os nomes de campo seguem o formato publicado pelos demais serviços.

// OsCreated é consumido quando uma ordem de serviço é criada.
// Valor é opcional por compatibilidade retroativa: se ausente ou <= 0,
// o orçamento usa o valor padrão.
type OsCreated struct {
	OsID        uuid.UUID `json:"osId"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	Valor       *float64  `json:"valor,omitempty"`
}

// OsCanceled dispara a compensação do fluxo de cobrança.
type OsCanceled struct {
	OsID       uuid.UUID `json:"osId"`
	Reason     string    `json:"reason"`
	CanceledAt time.Time `json:"canceledAt"`
}

// OsCompensationRequested pede estorno explícito (saga de compensação).
type OsCompensationRequested struct {
	OsID        uuid.UUID `json:"osId"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requestedAt"`
}

type BudgetGenerated struct {
	OsID     uuid.UUID `json:"osId"`
	BudgetID uuid.UUID `json:"budgetId"`
	Amount   float64   `json:"amount"`
	Status   string    `json:"status"`
}

type BudgetApproved struct {
	OsID     uuid.UUID `json:"osId"`
	BudgetID uuid.UUID `json:"budgetId"`
	Status   string    `json:"status"`
}

type BudgetRejected struct {
	OsID     uuid.UUID `json:"osId"`
	BudgetID uuid.UUID `json:"budgetId"`
	Status   string    `json:"status"`
	Reason   string    `json:"reason"`
}

type PaymentPending struct {
	OsID              uuid.UUID `json:"osId"`
	PaymentID         uuid.UUID `json:"paymentId"`
	Status            string    `json:"status"`
	Amount            float64   `json:"amount"`
	ProviderPaymentID string    `json:"providerPaymentId,omitempty"`
	PaymentMethod     string    `json:"paymentMethod"`
}

type PaymentConfirmed struct {
	OsID              uuid.UUID `json:"osId"`
	PaymentID         uuid.UUID `json:"paymentId"`
	Status            string    `json:"status"`
	Amount            float64   `json:"amount"`
	ProviderPaymentID string    `json:"providerPaymentId,omitempty"`
}

type PaymentFailed struct {
	OsID      uuid.UUID `json:"osId"`
	PaymentID uuid.UUID `json:"paymentId"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason"`
}

type PaymentReversed struct {
	OsID      uuid.UUID `json:"osId"`
	PaymentID uuid.UUID `json:"paymentId"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason"`
}
