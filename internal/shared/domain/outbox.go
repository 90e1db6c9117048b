package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxMessage representa um evento gravado na mesma transação da mudança
// de estado que o originou, pendente de publicação no broker.
type OutboxMessage struct {
	ID            uuid.UUID       `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"` // ex. "OrderService"
	EventType     string          `json:"event_type"`     // ex. "BudgetGenerated"
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	Published     bool            `json:"published"`
	PublishedAt   *time.Time      `json:"published_at,omitempty"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	CausationID   uuid.UUID       `json:"causation_id"`
}

// OutboxRepository define o contrato de acesso à tabela outbox.
// Interface pequena: apenas o que o relayer precisa.
type OutboxRepository interface {
	// FetchUnpublished retorna as mensagens com published=false,
	// ordenadas da mais antiga para a mais nova.
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxMessage, error)

	// MarkPublished atualiza somente published e published_at da mensagem.
	// Nunca sobrescreve a entidade inteira.
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
}
