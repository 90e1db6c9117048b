package consumer

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/marciocardozodev/oficina-billing/internal/shared/infra/platform/bus"
)

// DecodedMessage é o resultado da extração de uma mensagem crua do broker.
type DecodedMessage struct {
	EventType     string
	CorrelationID uuid.UUID
	CausationID   uuid.UUID
	Payload       json.RawMessage
}

// Decode tenta extrair {EventType, CorrelationId, CausationId, Payload} de
// uma mensagem usando uma cadeia ordenada de decoders; o primeiro que
// resolver o EventType vence. Retorna ok=false quando nenhum decoder
// consegue determinar o tipo do evento (mensagem não roteável).
func Decode(msg bus.Message) (DecodedMessage, bool) {
	decoders := []func(bus.Message) (DecodedMessage, bool){
		decodeFromAttributes,
		decodeFromNotification,
		decodeFromPayload,
	}
	for _, d := range decoders {
		if dm, ok := d(msg); ok {
			return finalize(dm), true
		}
	}
	return DecodedMessage{}, false
}

// finalize garante ids de rastreabilidade: quando ausentes, são gerados.
func finalize(dm DecodedMessage) DecodedMessage {
	if dm.CorrelationID == uuid.Nil {
		dm.CorrelationID = uuid.New()
	}
	if dm.CausationID == uuid.Nil {
		dm.CausationID = uuid.New()
	}
	return dm
}

// decodeFromAttributes usa os atributos nativos da mensagem.
func decodeFromAttributes(msg bus.Message) (DecodedMessage, bool) {
	eventType := msg.Attributes[bus.AttrEventType]
	if eventType == "" {
		return DecodedMessage{}, false
	}
	return DecodedMessage{
		EventType:     eventType,
		CorrelationID: parseUUID(msg.Attributes[bus.AttrCorrelationID]),
		CausationID:   parseUUID(msg.Attributes[bus.AttrCausationID]),
		Payload:       msg.Body,
	}, true
}

// notificationEnvelope é o formato de notificação aninhada (estilo SNS):
// o corpo real vem em Message e os atributos em MessageAttributes.
type notificationEnvelope struct {
	Message           string `json:"Message"`
	MessageAttributes map[string]struct {
		Value string `json:"Value"`
	} `json:"MessageAttributes"`
}

func decodeFromNotification(msg bus.Message) (DecodedMessage, bool) {
	var env notificationEnvelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		return DecodedMessage{}, false
	}
	if len(env.MessageAttributes) == 0 {
		return DecodedMessage{}, false
	}

	eventType := env.MessageAttributes[bus.AttrEventType].Value
	if eventType == "" {
		return DecodedMessage{}, false
	}

	payload := msg.Body
	if env.Message != "" {
		payload = []byte(env.Message)
	}

	return DecodedMessage{
		EventType:     eventType,
		CorrelationID: parseUUID(env.MessageAttributes[bus.AttrCorrelationID].Value),
		CausationID:   parseUUID(env.MessageAttributes[bus.AttrCausationID].Value),
		Payload:       payload,
	}, true
}

// decodeFromPayload procura campos bem conhecidos no próprio corpo
// (EventType/Type/eventType, case-insensitive).
func decodeFromPayload(msg bus.Message) (DecodedMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg.Body, &fields); err != nil {
		return DecodedMessage{}, false
	}

	eventType := stringField(fields, "eventtype", "type")
	if eventType == "" {
		return DecodedMessage{}, false
	}

	return DecodedMessage{
		EventType:     eventType,
		CorrelationID: parseUUID(stringField(fields, "correlationid")),
		CausationID:   parseUUID(stringField(fields, "causationid")),
		Payload:       msg.Body,
	}, true
}

// stringField busca a primeira chave que casa (case-insensitive) e que
// contenha uma string JSON.
func stringField(fields map[string]json.RawMessage, names ...string) string {
	for key, raw := range fields {
		lower := strings.ToLower(key)
		for _, name := range names {
			if lower != name {
				continue
			}
			var v string
			if err := json.Unmarshal(raw, &v); err == nil && v != "" {
				return v
			}
		}
	}
	return ""
}

func parseUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}
