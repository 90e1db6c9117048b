package events

import (
	"time"

	"github.com/google/uuid"
)

// Envelope carrega os ids de rastreabilidade de qualquer evento trocado
// entre serviços. CorrelationId é estável ao longo de todo o fluxo de
// negócio; CausationId identifica o evento que disparou este.
type Envelope struct {
	CorrelationID uuid.UUID `json:"correlationId"`
	CausationID   uuid.UUID `json:"causationId"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewEnvelope cria um envelope raiz (correlation e causation novos).
func NewEnvelope() Envelope {
	return Envelope{
		CorrelationID: uuid.New(),
		CausationID:   uuid.New(),
		Timestamp:     time.Now().UTC(),
	}
}

// Child deriva um envelope para um evento causado por este:
// preserva o CorrelationId e gera um CausationId novo.
func (e Envelope) Child() Envelope {
	return Envelope{
		CorrelationID: e.CorrelationID,
		CausationID:   uuid.New(),
		Timestamp:     time.Now().UTC(),
	}
}
