package consumer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/marciocardozodev/oficina-billing/internal/shared/infra/platform/bus"
)

// Handler processa um evento já decodificado. Erro significa "não
// confirme a mensagem": o broker fará a reentrega.
type Handler func(ctx context.Context, dm DecodedMessage) error

// Dispatcher é o loop de consumo: busca lotes no broker, decodifica,
// roteia por tipo de evento e só confirma a mensagem depois do handler
// retornar sem erro.
type Dispatcher struct {
	broker    bus.Broker
	handlers  map[string]Handler
	interval  time.Duration
	batchSize int
	log       *zap.Logger
}

func NewDispatcher(broker bus.Broker, handlers map[string]Handler, interval time.Duration, batchSize int, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		broker:    broker,
		handlers:  handlers,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}
}

// Start inicia o loop de polling em uma goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.log.Info("🎧 Dispatcher de eventos iniciado", zap.Duration("interval", d.interval))

	go func() {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				d.log.Info("🛑 Dispatcher de eventos parado.")
				return
			case <-ticker.C:
				d.ProcessBatch(ctx)
			}
		}
	}()
}

// ProcessBatch consome um lote. Cada mensagem é processada de forma
// isolada: uma mensagem ruim nunca derruba o loop.
func (d *Dispatcher) ProcessBatch(ctx context.Context) {
	msgs, err := d.broker.Receive(ctx, d.batchSize)
	if err != nil {
		d.log.Warn("⚠️ Erro ao receber mensagens do broker", zap.Error(err))
		return
	}

	for _, msg := range msgs {
		d.processMessage(ctx, msg)
	}
}

func (d *Dispatcher) processMessage(ctx context.Context, msg bus.Message) {
	dm, ok := Decode(msg)
	if !ok {
		// Mensagem sem tipo roteável: descartar em vez de reentregar
		// para sempre. Fica no log para inspeção manual.
		d.log.Warn("Mensagem sem EventType determinável, descartando",
			zap.ByteString("body", msg.Body),
		)
		d.ack(ctx, msg)
		return
	}

	handler, ok := d.handlers[dm.EventType]
	if !ok {
		d.log.Warn("Evento sem handler registrado, descartando",
			zap.String("event_type", dm.EventType),
		)
		d.ack(ctx, msg)
		return
	}

	if err := d.invoke(ctx, handler, dm); err != nil {
		// Sem delete: o broker reentrega com o backoff dele.
		d.log.Warn("⚠️ Handler falhou, mensagem será reentregue",
			zap.String("event_type", dm.EventType),
			zap.String("correlation_id", dm.CorrelationID.String()),
			zap.Error(err),
		)
		return
	}

	d.ack(ctx, msg)
	d.log.Info("✅ Evento processado",
		zap.String("event_type", dm.EventType),
		zap.String("correlation_id", dm.CorrelationID.String()),
	)
}

// invoke isola panics do handler como erro comum.
func (d *Dispatcher) invoke(ctx context.Context, handler Handler, dm DecodedMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic no handler de %s: %v", dm.EventType, r)
		}
	}()
	return handler(ctx, dm)
}

func (d *Dispatcher) ack(ctx context.Context, msg bus.Message) {
	if err := d.broker.Delete(ctx, msg); err != nil {
		d.log.Warn("⚠️ Não foi possível confirmar mensagem no broker", zap.Error(err))
	}
}
