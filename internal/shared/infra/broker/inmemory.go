package broker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/marciocardozodev/oficina-billing/internal/shared/infra/platform/bus"
)

type inMemoryMessage struct {
	id    int64
	body  []byte
	attrs map[string]string
}

// InMemoryBroker implementa bus.Broker com filas em memória, para
// deployment local e testes. Mensagens não deletadas continuam na fila
// e voltam no próximo Receive (semântica at-least-once).
type InMemoryBroker struct {
	mu     sync.Mutex
	seq    atomic.Int64
	source string                       // topic consumido pelo Receive
	queues map[string][]inMemoryMessage // por topic
}

func NewInMemoryBroker(sourceTopic string) *InMemoryBroker {
	return &InMemoryBroker{
		source: sourceTopic,
		queues: make(map[string][]inMemoryMessage),
	}
}

func (b *InMemoryBroker) Receive(ctx context.Context, max int) ([]bus.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := b.queues[b.source]
	if len(queue) == 0 {
		return nil, nil
	}
	if max > len(queue) {
		max = len(queue)
	}

	msgs := make([]bus.Message, 0, max)
	for _, m := range queue[:max] {
		msgs = append(msgs, bus.Message{
			Body:       m.body,
			Attributes: m.attrs,
			Receipt:    m.id,
		})
	}
	return msgs, nil
}

func (b *InMemoryBroker) Delete(ctx context.Context, msg bus.Message) error {
	id, ok := msg.Receipt.(int64)
	if !ok {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	queue := b.queues[b.source]
	for i, m := range queue {
		if m.id == id {
			b.queues[b.source] = append(queue[:i], queue[i+1:]...)
			return nil
		}
	}
	return nil
}

func (b *InMemoryBroker) Publish(ctx context.Context, topic string, body []byte, attrs map[string]string) error {
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.queues[topic] = append(b.queues[topic], inMemoryMessage{
		id:    b.seq.Add(1),
		body:  append([]byte(nil), body...),
		attrs: copied,
	})
	return nil
}

// Pending retorna quantas mensagens aguardam em um topic (para testes).
func (b *InMemoryBroker) Pending(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[topic])
}

// Verificação estática
var _ bus.Broker = (*InMemoryBroker)(nil)
