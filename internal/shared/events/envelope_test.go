package events

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestEnvelopeChildPreservaCorrelation(t *testing.T) {
	raiz := NewEnvelope()
	assert.NotEqual(t, uuid.Nil, raiz.CorrelationID)
	assert.NotEqual(t, uuid.Nil, raiz.CausationID)

	filho := raiz.Child()
	assert.Equal(t, raiz.CorrelationID, filho.CorrelationID)
	assert.NotEqual(t, raiz.CausationID, filho.CausationID)

	neto := filho.Child()
	assert.Equal(t, raiz.CorrelationID, neto.CorrelationID)
	assert.NotEqual(t, filho.CausationID, neto.CausationID)
}
