package domain

import (
	"time"

	"github.com/google/uuid"
)

type StatusOrcamento string

const (
	OrcamentoPendente  StatusOrcamento = "Pendente"
	OrcamentoEnviado   StatusOrcamento = "Enviado"
	OrcamentoAprovado  StatusOrcamento = "Aprovado"
	OrcamentoRejeitado StatusOrcamento = "Rejeitado"
)

// ValorPadraoOrcamento é usado quando o evento OsCreated não traz valor
// válido. O fallback é sempre logado, porque muda o valor cobrado.
const ValorPadraoOrcamento = 100.00

// DetalheValorPadraoAplicado marca na trilha de auditoria que o
// orçamento foi gerado com o valor padrão, não com o valor do evento.
const DetalheValorPadraoAplicado = "valor-padrao-aplicado"

// Orcamento é o preço cotado para uma ordem de serviço, sujeito a
// aprovação antes do pagamento. No máximo um orçamento por OsId.
type Orcamento struct {
	ID            uuid.UUID       `json:"id"`
	OsID          uuid.UUID       `json:"osId"`
	Valor         float64         `json:"valor"`
	EmailCliente  string          `json:"emailCliente"`
	Status        StatusOrcamento `json:"status"`
	CorrelationID uuid.UUID       `json:"correlationId"`
	CausationID   uuid.UUID       `json:"causationId"`
	CriadoEm      time.Time       `json:"criadoEm"`
	AtualizadoEm  time.Time       `json:"atualizadoEm"`
}

// PodeAprovar indica se o orçamento aceita a transição para Aprovado.
// O status nunca regride (Aprovado não volta para Enviado).
func (o *Orcamento) PodeAprovar() bool {
	return o.Status == OrcamentoEnviado
}

// PodeRejeitar segue a mesma regra de avanço exclusivo.
func (o *Orcamento) PodeRejeitar() bool {
	return o.Status == OrcamentoEnviado
}

// CacheKeyOrcamento forma a chave de cache por OsId.
func CacheKeyOrcamento(osID uuid.UUID) string {
	return "orcamento:os:" + osID.String()
}
