package consumer

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marciocardozodev/oficina-billing/internal/shared/infra/platform/bus"
)

func TestDecodePorAtributos(t *testing.T) {
	correlation := uuid.New()
	causation := uuid.New()
	msg := bus.Message{
		Body: []byte(`{"osId":"123"}`),
		Attributes: map[string]string{
			bus.AttrEventType:     "OsCreated",
			bus.AttrCorrelationID: correlation.String(),
			bus.AttrCausationID:   causation.String(),
		},
	}

	dm, ok := Decode(msg)
	require.True(t, ok)
	assert.Equal(t, "OsCreated", dm.EventType)
	assert.Equal(t, correlation, dm.CorrelationID)
	assert.Equal(t, causation, dm.CausationID)
	assert.JSONEq(t, `{"osId":"123"}`, string(dm.Payload))
}

func TestDecodeNotificacaoAninhada(t *testing.T) {
	correlation := uuid.New()
	body, err := json.Marshal(map[string]interface{}{
		"Message": `{"osId":"42"}`,
		"MessageAttributes": map[string]interface{}{
			bus.AttrEventType:     map[string]string{"Value": "OsCreated"},
			bus.AttrCorrelationID: map[string]string{"Value": correlation.String()},
		},
	})
	require.NoError(t, err)

	dm, ok := Decode(bus.Message{Body: body})
	require.True(t, ok)
	assert.Equal(t, "OsCreated", dm.EventType)
	assert.Equal(t, correlation, dm.CorrelationID)
	// O payload entregue é o Message interno, não o envelope.
	assert.JSONEq(t, `{"osId":"42"}`, string(dm.Payload))
}

func TestDecodeCampoNoPayload(t *testing.T) {
	casos := []string{
		`{"EventType":"OsCreated","osId":"1"}`,
		`{"eventType":"OsCreated","osId":"1"}`,
		`{"eventtype":"OsCreated","osId":"1"}`,
		`{"Type":"OsCreated","osId":"1"}`,
		`{"type":"OsCreated","osId":"1"}`,
	}
	for _, body := range casos {
		dm, ok := Decode(bus.Message{Body: []byte(body)})
		require.True(t, ok, "falhou para %s", body)
		assert.Equal(t, "OsCreated", dm.EventType)
	}
}

func TestDecodeGeraIdsQuandoAusentes(t *testing.T) {
	dm, ok := Decode(bus.Message{Body: []byte(`{"type":"OsCreated"}`)})
	require.True(t, ok)
	assert.NotEqual(t, uuid.Nil, dm.CorrelationID)
	assert.NotEqual(t, uuid.Nil, dm.CausationID)
}

func TestDecodeSemTipoFalha(t *testing.T) {
	casos := [][]byte{
		[]byte(`{"osId":"1"}`),
		[]byte(`nem json`),
		[]byte(`{"EventType":""}`),
		nil,
	}
	for _, body := range casos {
		_, ok := Decode(bus.Message{Body: body})
		assert.False(t, ok, "esperava falha para %q", body)
	}
}

func TestDecodeAtributosTemPrecedencia(t *testing.T) {
	msg := bus.Message{
		Body:       []byte(`{"type":"DoPayload"}`),
		Attributes: map[string]string{bus.AttrEventType: "DoAtributo"},
	}
	dm, ok := Decode(msg)
	require.True(t, ok)
	assert.Equal(t, "DoAtributo", dm.EventType)
}
