package bus

import "context"

// Nomes de atributos propagados em toda mensagem.
const (
	AttrEventType     = "EventType"
	AttrCorrelationID = "CorrelationId"
	AttrCausationID   = "CausationId"
)

// Message é uma mensagem opaca recebida do broker.
// Receipt é o handle interno usado no ack; cada adapter decide o tipo.
type Message struct {
	Body       []byte
	Attributes map[string]string
	Receipt    interface{}
}

// Broker define a fronteira com o broker de mensagens: entrega
// at-least-once, sem garantia de ordem, com possível duplicação.
type Broker interface {
	// Receive retorna zero ou mais mensagens (até max). Mensagens não
	// deletadas voltam a ser entregues pelo broker.
	Receive(ctx context.Context, max int) ([]Message, error)

	// Delete confirma (ack) uma mensagem específica.
	Delete(ctx context.Context, msg Message) error

	// Publish envia body para o destino com o mapa de atributos.
	Publish(ctx context.Context, topic string, body []byte, attrs map[string]string) error
}
