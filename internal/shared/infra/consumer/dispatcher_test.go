package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marciocardozodev/oficina-billing/internal/shared/infra/broker"
	"github.com/marciocardozodev/oficina-billing/internal/shared/infra/platform/bus"
)

const topicoTeste = "os-events"

func publicar(t *testing.T, b *broker.InMemoryBroker, eventType string, body []byte) {
	t.Helper()
	require.NoError(t, b.Publish(context.Background(), topicoTeste, body,
		map[string]string{bus.AttrEventType: eventType}))
}

func TestDispatcherConfirmaAposSucesso(t *testing.T) {
	b := broker.NewInMemoryBroker(topicoTeste)
	publicar(t, b, "OsCreated", []byte(`{"osId":"1"}`))

	processadas := 0
	handlers := map[string]Handler{
		"OsCreated": func(context.Context, DecodedMessage) error {
			processadas++
			return nil
		},
	}
	d := NewDispatcher(b, handlers, 0, 10, zap.NewNop())

	d.ProcessBatch(context.Background())
	assert.Equal(t, 1, processadas)
	assert.Equal(t, 0, b.Pending(topicoTeste))
}

func TestDispatcherNaoConfirmaQuandoHandlerFalha(t *testing.T) {
	b := broker.NewInMemoryBroker(topicoTeste)
	publicar(t, b, "OsCreated", []byte(`{"osId":"1"}`))

	tentativas := 0
	handlers := map[string]Handler{
		"OsCreated": func(context.Context, DecodedMessage) error {
			tentativas++
			if tentativas == 1 {
				return errors.New("banco fora do ar")
			}
			return nil
		},
	}
	d := NewDispatcher(b, handlers, 0, 10, zap.NewNop())

	// Primeira passada falha: a mensagem fica na fila e é reentregue.
	d.ProcessBatch(context.Background())
	assert.Equal(t, 1, b.Pending(topicoTeste))

	d.ProcessBatch(context.Background())
	assert.Equal(t, 2, tentativas)
	assert.Equal(t, 0, b.Pending(topicoTeste))
}

func TestDispatcherDescartaMensagemSemTipo(t *testing.T) {
	b := broker.NewInMemoryBroker(topicoTeste)
	require.NoError(t, b.Publish(context.Background(), topicoTeste, []byte(`lixo`), nil))

	d := NewDispatcher(b, map[string]Handler{}, 0, 10, zap.NewNop())
	d.ProcessBatch(context.Background())

	// Mensagem envenenada não pode ficar em loop de reentrega.
	assert.Equal(t, 0, b.Pending(topicoTeste))
}

func TestDispatcherDescartaEventoSemHandler(t *testing.T) {
	b := broker.NewInMemoryBroker(topicoTeste)
	publicar(t, b, "EventoDesconhecido", []byte(`{}`))

	d := NewDispatcher(b, map[string]Handler{}, 0, 10, zap.NewNop())
	d.ProcessBatch(context.Background())

	assert.Equal(t, 0, b.Pending(topicoTeste))
}

func TestDispatcherIsolaPanicDoHandler(t *testing.T) {
	b := broker.NewInMemoryBroker(topicoTeste)
	publicar(t, b, "OsCreated", []byte(`{"osId":"1"}`))
	publicar(t, b, "OsCreated", []byte(`{"osId":"2"}`))

	processadas := 0
	handlers := map[string]Handler{
		"OsCreated": func(_ context.Context, dm DecodedMessage) error {
			processadas++
			if processadas == 1 {
				panic("payload inesperado")
			}
			return nil
		},
	}
	d := NewDispatcher(b, handlers, 0, 10, zap.NewNop())

	// O panic da primeira mensagem não derruba o lote: a segunda passa.
	assert.NotPanics(t, func() { d.ProcessBatch(context.Background()) })
	assert.Equal(t, 2, processadas)
	// A que entrou em panic continua na fila para reentrega.
	assert.Equal(t, 1, b.Pending(topicoTeste))
}
