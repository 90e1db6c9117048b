package domain

import (
	"time"

	"github.com/google/uuid"
)

// AtualizacaoStatusOs é a trilha de auditoria append-only: cada
// transição de status é registrada com o evento que a disparou.
// Serve apenas para rastreabilidade, nunca para fluxo de controle.
type AtualizacaoStatusOs struct {
	ID            uuid.UUID `json:"id"`
	OsID          uuid.UUID `json:"osId"`
	NovoStatus    string    `json:"novoStatus"`
	EventType     string    `json:"eventType,omitempty"`
	Detalhe       string    `json:"detalhe,omitempty"`
	CorrelationID uuid.UUID `json:"correlationId"`
	CausationID   uuid.UUID `json:"causationId"`
	AtualizadoEm  time.Time `json:"atualizadoEm"`
}
