package relayer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	sharedDomain "github.com/marciocardozodev/oficina-billing/internal/shared/domain"
	"github.com/marciocardozodev/oficina-billing/internal/shared/infra/platform/bus"
)

// Worker drena a tabela outbox para o broker: busca mensagens não
// publicadas (da mais antiga para a mais nova), publica cada uma de
// forma independente e marca como publicada. Publicar e marcar não são
// atômicos, então a garantia é at-least-once; os consumidores precisam
// ser idempotentes.
type Worker struct {
	repo      sharedDomain.OutboxRepository
	broker    bus.Broker
	routes    map[string]string // EventType -> topic de destino
	interval  time.Duration
	backoff   time.Duration // espera extra após erro inesperado no tick
	batchSize int
	log       *zap.Logger
}

func NewOutboxWorker(
	repo sharedDomain.OutboxRepository,
	broker bus.Broker,
	routes map[string]string,
	interval time.Duration,
	backoff time.Duration,
	batchSize int,
	log *zap.Logger,
) *Worker {
	return &Worker{
		repo:      repo,
		broker:    broker,
		routes:    routes,
		interval:  interval,
		backoff:   backoff,
		batchSize: batchSize,
		log:       log,
	}
}

// Start inicia o loop de polling do worker.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.log.Info("🚀 Outbox worker iniciado", zap.Duration("interval", w.interval))

		for {
			select {
			case <-ctx.Done():
				w.log.Info("🛑 Outbox worker parado.")
				return
			case <-ticker.C:
				if err := w.safeProcessBatch(ctx); err != nil {
					w.log.Error("⚠️ Erro inesperado no tick do outbox, aplicando backoff",
						zap.Error(err),
						zap.Duration("backoff", w.backoff),
					)
					select {
					case <-ctx.Done():
						return
					case <-time.After(w.backoff):
					}
				}
			}
		}
	}()
}

// safeProcessBatch isola panics: um erro transitório do broker nunca
// derruba o processo.
func (w *Worker) safeProcessBatch(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic no processamento do outbox: %v", r)
		}
	}()
	return w.ProcessBatch(ctx)
}

// ProcessBatch publica um lote. A falha de uma mensagem não bloqueia as
// demais do mesmo lote.
func (w *Worker) ProcessBatch(ctx context.Context) error {
	msgs, err := w.repo.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("erro ao buscar mensagens pendentes: %w", err)
	}
	if len(msgs) > 0 {
		w.log.Info(fmt.Sprintf("📬 %d mensagens de outbox para publicar", len(msgs)))
	}

	for _, msg := range msgs {
		w.publishAndMark(ctx, msg)
	}
	return nil
}

func (w *Worker) publishAndMark(ctx context.Context, msg sharedDomain.OutboxMessage) {
	topic, ok := w.routes[msg.EventType]
	if !ok {
		// Tipo desconhecido é fatal para esta mensagem: marcamos como
		// publicada para não reprocessar cegamente a cada tick.
		w.log.Error("Tipo de evento sem rota, descartando mensagem de outbox",
			zap.String("event_type", msg.EventType),
			zap.String("message_id", msg.ID.String()),
		)
		if err := w.repo.MarkPublished(ctx, msg.ID, time.Now().UTC()); err != nil {
			w.log.Warn("⚠️ Não foi possível descartar mensagem sem rota", zap.Error(err))
		}
		return
	}

	attrs := map[string]string{
		bus.AttrEventType:     msg.EventType,
		bus.AttrCorrelationID: msg.CorrelationID.String(),
		bus.AttrCausationID:   msg.CausationID.String(),
	}

	if err := w.broker.Publish(ctx, topic, msg.Payload, attrs); err != nil {
		// Fica published=false e volta no próximo tick.
		w.log.Warn("⚠️ Não foi possível publicar mensagem de outbox",
			zap.String("message_id", msg.ID.String()),
			zap.String("topic", topic),
			zap.Error(err),
		)
		return
	}

	if err := w.repo.MarkPublished(ctx, msg.ID, time.Now().UTC()); err != nil {
		// Publicada mas não marcada: duplicação possível, aceitável
		// sob at-least-once.
		w.log.Warn("⚠️ Não foi possível marcar mensagem como publicada",
			zap.String("message_id", msg.ID.String()),
			zap.Error(err),
		)
		return
	}

	w.log.Info("✅ Mensagem de outbox publicada",
		zap.String("message_id", msg.ID.String()),
		zap.String("event_type", msg.EventType),
		zap.String("topic", topic),
	)
}
