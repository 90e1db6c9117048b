package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sharedDomain "github.com/marciocardozodev/oficina-billing/internal/shared/domain"
	"github.com/marciocardozodev/oficina-billing/internal/shared/infra/broker"
	"github.com/marciocardozodev/oficina-billing/internal/shared/infra/platform/bus"
	"github.com/marciocardozodev/oficina-billing/tests/mocks"
)

// brokerFalho falha as primeiras n publicações e depois delega.
type brokerFalho struct {
	bus.Broker
	falhasRestantes int
}

func (b *brokerFalho) Publish(ctx context.Context, topic string, body []byte, attrs map[string]string) error {
	if b.falhasRestantes > 0 {
		b.falhasRestantes--
		return errors.New("broker indisponível")
	}
	return b.Broker.Publish(ctx, topic, body, attrs)
}

func novaMensagem(eventType string) sharedDomain.OutboxMessage {
	return sharedDomain.OutboxMessage{
		ID:            uuid.New(),
		AggregateID:   uuid.New().String(),
		AggregateType: "OrderService",
		EventType:     eventType,
		Payload:       json.RawMessage(`{"osId":"1"}`),
		CreatedAt:     time.Now().UTC(),
		CorrelationID: uuid.New(),
		CausationID:   uuid.New(),
	}
}

func TestWorkerPublicaEMarca(t *testing.T) {
	repo := mocks.NewInMemoryBillingRepo()
	b := broker.NewInMemoryBroker("billing-events")
	rotas := map[string]string{"BudgetGenerated": "billing-events"}

	msg := novaMensagem("BudgetGenerated")
	repo.SemearOutbox(msg)

	w := NewOutboxWorker(repo, b, rotas, time.Second, time.Second, 10, zap.NewNop())
	require.NoError(t, w.ProcessBatch(context.Background()))

	assert.Equal(t, 1, b.Pending("billing-events"))
	pendentes, err := repo.FetchUnpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pendentes)
}

func TestWorkerPropagaAtributosDeRastreabilidade(t *testing.T) {
	repo := mocks.NewInMemoryBillingRepo()
	b := broker.NewInMemoryBroker("billing-events")
	rotas := map[string]string{"BudgetGenerated": "billing-events"}

	msg := novaMensagem("BudgetGenerated")
	repo.SemearOutbox(msg)

	w := NewOutboxWorker(repo, b, rotas, time.Second, time.Second, 10, zap.NewNop())
	require.NoError(t, w.ProcessBatch(context.Background()))

	recebidas, err := b.Receive(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recebidas, 1)
	assert.Equal(t, "BudgetGenerated", recebidas[0].Attributes[bus.AttrEventType])
	assert.Equal(t, msg.CorrelationID.String(), recebidas[0].Attributes[bus.AttrCorrelationID])
	assert.Equal(t, msg.CausationID.String(), recebidas[0].Attributes[bus.AttrCausationID])
}

func TestWorkerReentregaAposFalhaDoBroker(t *testing.T) {
	repo := mocks.NewInMemoryBillingRepo()
	interno := broker.NewInMemoryBroker("billing-events")
	b := &brokerFalho{Broker: interno, falhasRestantes: 1}
	rotas := map[string]string{"BudgetGenerated": "billing-events"}

	repo.SemearOutbox(novaMensagem("BudgetGenerated"))
	w := NewOutboxWorker(repo, b, rotas, time.Second, time.Second, 10, zap.NewNop())

	// Primeiro tick: publicação falha, mensagem continua pendente.
	require.NoError(t, w.ProcessBatch(context.Background()))
	pendentes, err := repo.FetchUnpublished(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pendentes, 1)
	assert.Equal(t, 0, interno.Pending("billing-events"))

	// Segundo tick: broker voltou, a mensagem sai e é marcada.
	require.NoError(t, w.ProcessBatch(context.Background()))
	pendentes, err = repo.FetchUnpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pendentes)
	assert.Equal(t, 1, interno.Pending("billing-events"))
}

func TestWorkerDescartaTipoSemRota(t *testing.T) {
	repo := mocks.NewInMemoryBillingRepo()
	b := broker.NewInMemoryBroker("billing-events")
	rotas := map[string]string{"BudgetGenerated": "billing-events"}

	repo.SemearOutbox(novaMensagem("EventoSemRota"))
	w := NewOutboxWorker(repo, b, rotas, time.Second, time.Second, 10, zap.NewNop())
	require.NoError(t, w.ProcessBatch(context.Background()))

	// Nada publicado, mas a mensagem sai do lote para não reprocessar
	// cegamente a cada tick.
	assert.Equal(t, 0, b.Pending("billing-events"))
	pendentes, err := repo.FetchUnpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pendentes)
}

func TestWorkerFalhaDeUmaMensagemNaoBloqueiaOLote(t *testing.T) {
	repo := mocks.NewInMemoryBillingRepo()
	interno := broker.NewInMemoryBroker("billing-events")
	b := &brokerFalho{Broker: interno, falhasRestantes: 1}
	rotas := map[string]string{"BudgetGenerated": "billing-events"}

	primeira := novaMensagem("BudgetGenerated")
	segunda := novaMensagem("BudgetGenerated")
	segunda.CreatedAt = primeira.CreatedAt.Add(time.Millisecond)
	repo.SemearOutbox(primeira)
	repo.SemearOutbox(segunda)

	w := NewOutboxWorker(repo, b, rotas, time.Second, time.Second, 10, zap.NewNop())
	require.NoError(t, w.ProcessBatch(context.Background()))

	// A primeira falhou e ficou pendente; a segunda passou.
	pendentes, err := repo.FetchUnpublished(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pendentes, 1)
	assert.Equal(t, primeira.ID, pendentes[0].ID)
	assert.Equal(t, 1, interno.Pending("billing-events"))
}
