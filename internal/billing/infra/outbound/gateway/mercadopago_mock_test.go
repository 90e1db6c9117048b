package gateway

import (
	"context"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMockGatewayDeterministicoPorSeed(t *testing.T) {
	log := zap.NewNop().Sugar()
	ctx := context.Background()

	rodada := func() []string {
		g := NewMockGateway(rand.New(rand.NewSource(7)), 0.3, log)
		var ids []string
		for i := 0; i < 10; i++ {
			id, err := g.IniciarPagamento(ctx, uuid.New(), uuid.New(), 100, "CREDIT_CARD", "teste")
			require.NoError(t, err)
			ids = append(ids, id)
		}
		return ids
	}

	// Mesma seed, mesma sequência de aprovações e recusas.
	assert.Equal(t, rodada(), rodada())
}

func TestMockGatewayPixFicaPendente(t *testing.T) {
	g := NewMockGateway(rand.New(rand.NewSource(1)), 0, zap.NewNop().Sugar())
	ctx := context.Background()
	osID := uuid.New()

	id, err := g.IniciarPagamento(ctx, osID, uuid.New(), 100, "PIX", "teste")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	p, err := g.ConsultarPagamento(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "pending", p.Status)
	assert.Equal(t, osID.String(), p.OsID)

	// Simula o provedor aprovando depois.
	g.DefinirStatus(id, "approved", osID.String())
	p, err = g.ConsultarPagamento(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "approved", p.Status)
}

func TestMockGatewayConsultaInexistente(t *testing.T) {
	g := NewMockGateway(rand.New(rand.NewSource(1)), 0, zap.NewNop().Sugar())
	_, err := g.ConsultarPagamento(context.Background(), "MP-nope")
	assert.Error(t, err)
}
