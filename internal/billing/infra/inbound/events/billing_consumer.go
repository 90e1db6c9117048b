// Package events liga os eventos do serviço de ordens aos casos de uso
// de cobrança. Os payloads chegam de produtores heterogêneos (formatos
// e tipos de campo variam), então o parse é tolerante por construção.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marciocardozodev/oficina-billing/internal/billing/application"
	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
	sharedEvents "github.com/marciocardozodev/oficina-billing/internal/shared/events"
	"github.com/marciocardozodev/oficina-billing/internal/shared/infra/consumer"
)

// BillingConsumer registra os handlers de evento do módulo de cobrança.
type BillingConsumer struct {
	flow        *application.BillingFlow
	compensacao *application.CompensacaoService
	log         *zap.SugaredLogger
}

func NewBillingConsumer(flow *application.BillingFlow, compensacao *application.CompensacaoService, log *zap.SugaredLogger) *BillingConsumer {
	return &BillingConsumer{flow: flow, compensacao: compensacao, log: log}
}

// Handlers devolve a tabela EventType -> handler usada pelo dispatcher.
func (c *BillingConsumer) Handlers() map[string]consumer.Handler {
	return map[string]consumer.Handler{
		domain.EventOsCreated:               c.handleOsCreated,
		domain.EventOsCanceled:              c.handleOsCanceled,
		domain.EventOsCompensationRequested: c.handleCompensacao,
	}
}

func (c *BillingConsumer) handleOsCreated(ctx context.Context, dm consumer.DecodedMessage) error {
	evt, err := parseOsCreated(dm.Payload)
	if err != nil {
		// Payload irrecuperável: erro aqui reentregaria para sempre.
		c.log.Warnw("⚠️ OsCreated com payload inválido, descartando",
			"erro", err, "correlationId", dm.CorrelationID)
		return nil
	}
	c.log.Infow("📬 OsCreated recebido", "osId", evt.OsID,
		"correlationId", dm.CorrelationID)
	return c.flow.HandleOsCreated(ctx, evt, envelopeDe(dm))
}

func (c *BillingConsumer) handleOsCanceled(ctx context.Context, dm consumer.DecodedMessage) error {
	osID, motivo, err := parseCompensacao(dm.Payload)
	if err != nil {
		c.log.Warnw("⚠️ OsCanceled com payload inválido, descartando",
			"erro", err, "correlationId", dm.CorrelationID)
		return nil
	}
	if motivo == "" {
		motivo = "OS cancelada"
	}
	c.log.Infow("📬 OsCanceled recebido", "osId", osID,
		"correlationId", dm.CorrelationID)
	return c.compensacao.Compensar(ctx, osID, motivo, envelopeDe(dm))
}

func (c *BillingConsumer) handleCompensacao(ctx context.Context, dm consumer.DecodedMessage) error {
	osID, motivo, err := parseCompensacao(dm.Payload)
	if err != nil {
		c.log.Warnw("⚠️ OsCompensationRequested com payload inválido, descartando",
			"erro", err, "correlationId", dm.CorrelationID)
		return nil
	}
	if motivo == "" {
		motivo = "compensação solicitada"
	}
	c.log.Infow("📬 OsCompensationRequested recebido", "osId", osID,
		"correlationId", dm.CorrelationID)
	return c.compensacao.Compensar(ctx, osID, motivo, envelopeDe(dm))
}

func envelopeDe(dm consumer.DecodedMessage) sharedEvents.Envelope {
	return sharedEvents.Envelope{
		CorrelationID: dm.CorrelationID,
		CausationID:   dm.CausationID,
		Timestamp:     time.Now().UTC(),
	}
}

// ---------- parse tolerante ----------

// campos normaliza as chaves do objeto para minúsculas e desce um nível
// quando o payload real vem aninhado em "Payload".
func campos(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("payload não é um objeto JSON: %w", err)
	}
	lower := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		lower[strings.ToLower(k)] = v
	}
	if nested, ok := lower["payload"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(nested, &inner); err == nil && len(inner) > 0 {
			return campos(nested)
		}
		// Payload pode vir como string com JSON dentro.
		var s string
		if err := json.Unmarshal(nested, &s); err == nil && s != "" {
			return campos(json.RawMessage(s))
		}
	}
	return lower, nil
}

// parseOsCreated extrai OsCreated de payloads heterogêneos: osId pode
// ser uuid ou numérico legado, valor pode ser número ou string.
func parseOsCreated(raw json.RawMessage) (sharedEvents.OsCreated, error) {
	f, err := campos(raw)
	if err != nil {
		return sharedEvents.OsCreated{}, err
	}

	rawID := primeiraString(f, "osid", "orderid", "id")
	if rawID == "" {
		return sharedEvents.OsCreated{}, fmt.Errorf("osId ausente no payload")
	}
	osID, err := domain.ParseOsID(rawID)
	if err != nil {
		return sharedEvents.OsCreated{}, err
	}

	evt := sharedEvents.OsCreated{
		OsID:        osID,
		Description: primeiraString(f, "description", "descricao"),
	}
	if v, ok := numero(f, "valor", "amount", "value"); ok {
		evt.Valor = &v
	}
	if ts := primeiraString(f, "createdat", "criadoem"); ts != "" {
		if t, terr := time.Parse(time.RFC3339, ts); terr == nil {
			evt.CreatedAt = t
		}
	}
	return evt, nil
}

// parseCompensacao extrai osId e motivo de OsCanceled/OsCompensationRequested.
func parseCompensacao(raw json.RawMessage) (uuid.UUID, string, error) {
	f, ferr := campos(raw)
	if ferr != nil {
		return uuid.Nil, "", ferr
	}
	rawID := primeiraString(f, "osid", "orderid", "id")
	if rawID == "" {
		return uuid.Nil, "", fmt.Errorf("osId ausente no payload")
	}
	id, perr := domain.ParseOsID(rawID)
	if perr != nil {
		return uuid.Nil, "", perr
	}
	return id, primeiraString(f, "reason", "motivo"), nil
}

// primeiraString devolve o primeiro campo presente, aceitando string ou
// número JSON (ids legados chegam como número).
func primeiraString(f map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := f[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n.String() != "" {
			return n.String()
		}
	}
	return ""
}

// numero devolve o primeiro campo numérico presente, aceitando número
// JSON ou string numérica.
func numero(f map[string]json.RawMessage, keys ...string) (float64, bool) {
	for _, k := range keys {
		raw, ok := f[k]
		if !ok {
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, true
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if v, perr := strconv.ParseFloat(s, 64); perr == nil {
				return v, true
			}
		}
	}
	return 0, false
}
