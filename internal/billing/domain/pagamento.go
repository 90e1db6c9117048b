package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type StatusPagamento string

const (
	PagamentoPendente   StatusPagamento = "Pendente"
	PagamentoConfirmado StatusPagamento = "Confirmado"
	PagamentoFalhou     StatusPagamento = "Falhou"
)

// Pagamento é a tentativa de cobrança de um orçamento aprovado.
// Criado sempre em Pendente; estados terminais são imutáveis.
type Pagamento struct {
	ID                uuid.UUID       `json:"id"`
	OsID              uuid.UUID       `json:"osId"`
	OrcamentoID       uuid.UUID       `json:"orcamentoId"`
	Valor             float64         `json:"valor"`
	Metodo            string          `json:"metodo"`
	Status            StatusPagamento `json:"status"`
	ProviderPaymentID string          `json:"providerPaymentId,omitempty"`
	CorrelationID     uuid.UUID       `json:"correlationId"`
	CausationID       uuid.UUID       `json:"causationId"`
	CriadoEm          time.Time       `json:"criadoEm"`
	AtualizadoEm      time.Time       `json:"atualizadoEm"`
}

// Terminal indica se o pagamento já chegou a um estado final.
func (p *Pagamento) Terminal() bool {
	return p.Status == PagamentoConfirmado || p.Status == PagamentoFalhou
}

// MetodoAssincrono indica métodos cuja confirmação só chega por
// notificação do provedor (o aceite do gateway não confirma).
func MetodoAssincrono(metodo string) bool {
	switch strings.ToUpper(metodo) {
	case "PIX", "BOLETO":
		return true
	default:
		return false
	}
}

// MapProviderStatus traduz o vocabulário do provedor para o nosso.
// Qualquer status não reconhecido vira Pendente (no-op).
func MapProviderStatus(status string) StatusPagamento {
	switch strings.ToLower(status) {
	case "approved":
		return PagamentoConfirmado
	case "rejected", "cancelled", "refunded", "charged_back":
		return PagamentoFalhou
	default:
		return PagamentoPendente
	}
}
