package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/marciocardozodev/oficina-billing/internal/shared/infra/platform/bus"
)

// KafkaBroker adapta um reader/writer de Kafka ao contrato bus.Broker.
// Delete vira commit de offset: o ack só acontece depois do handler
// processar a mensagem sem erro.
type KafkaBroker struct {
	reader   *kafka.Reader
	writer   *kafka.Writer
	waitTime time.Duration
	log      *zap.Logger
}

func NewKafkaBroker(reader *kafka.Reader, writer *kafka.Writer, log *zap.Logger) *KafkaBroker {
	return &KafkaBroker{
		reader:   reader,
		writer:   writer,
		waitTime: 2 * time.Second,
		log:      log,
	}
}

// Receive busca até max mensagens. Espera no máximo waitTime por lote;
// lote vazio não é erro.
func (b *KafkaBroker) Receive(ctx context.Context, max int) ([]bus.Message, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, b.waitTime)
	defer cancel()

	var msgs []bus.Message
	for len(msgs) < max {
		m, err := b.reader.FetchMessage(fetchCtx)
		if err != nil {
			// Deadline do lote esgotado: devolvemos o que temos.
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return msgs, nil
			}
			return msgs, err
		}

		attrs := make(map[string]string, len(m.Headers))
		for _, h := range m.Headers {
			attrs[h.Key] = string(h.Value)
		}

		msgs = append(msgs, bus.Message{
			Body:       m.Value,
			Attributes: attrs,
			Receipt:    m,
		})
	}
	return msgs, nil
}

// Delete confirma o offset da mensagem no consumer group.
func (b *KafkaBroker) Delete(ctx context.Context, msg bus.Message) error {
	m, ok := msg.Receipt.(kafka.Message)
	if !ok {
		return fmt.Errorf("receipt inválido para broker Kafka: %T", msg.Receipt)
	}
	return b.reader.CommitMessages(ctx, m)
}

// Publish envia body para o topic com os atributos como headers.
func (b *KafkaBroker) Publish(ctx context.Context, topic string, body []byte, attrs map[string]string) error {
	headers := make([]kafka.Header, 0, len(attrs))
	for k, v := range attrs {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msg := kafka.Message{
		Topic:   topic,
		Value:   body,
		Headers: headers,
	}
	if key, ok := attrs[bus.AttrCorrelationID]; ok {
		msg.Key = []byte(key)
	}

	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		b.log.Error("Erro ao publicar no Kafka", zap.String("topic", topic), zap.Error(err))
		return err
	}
	return nil
}

// Verificação estática
var _ bus.Broker = (*KafkaBroker)(nil)
