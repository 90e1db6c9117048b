// Package application contém os casos de uso de cobrança: geração e
// aprovação de orçamento, orquestração de pagamento, reconciliação de
// webhook e compensação. Toda mudança de estado é gravada junto com o
// evento correspondente na mesma transação (outbox).
package application

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
	sharedDomain "github.com/marciocardozodev/oficina-billing/internal/shared/domain"
	"github.com/marciocardozodev/oficina-billing/internal/shared/events"
)

// novaMensagemOutbox serializa o payload e monta a linha de outbox com
// os ids de rastreabilidade do envelope.
func novaMensagemOutbox(osID uuid.UUID, eventType string, payload interface{}, env events.Envelope) (sharedDomain.OutboxMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return sharedDomain.OutboxMessage{}, fmt.Errorf("serializar payload de %s: %w", eventType, err)
	}
	return sharedDomain.OutboxMessage{
		ID:            uuid.New(),
		AggregateID:   osID.String(),
		AggregateType: domain.AggregateOrderService,
		EventType:     eventType,
		Payload:       body,
		CreatedAt:     time.Now().UTC(),
		CorrelationID: env.CorrelationID,
		CausationID:   env.CausationID,
	}, nil
}

// novaAuditoria monta a linha append-only da trilha de status.
func novaAuditoria(osID uuid.UUID, novoStatus, eventType string, env events.Envelope) domain.AtualizacaoStatusOs {
	return domain.AtualizacaoStatusOs{
		ID:            uuid.New(),
		OsID:          osID,
		NovoStatus:    novoStatus,
		EventType:     eventType,
		CorrelationID: env.CorrelationID,
		CausationID:   env.CausationID,
		AtualizadoEm:  time.Now().UTC(),
	}
}
