package application_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marciocardozodev/oficina-billing/internal/billing/application"
	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
	"github.com/marciocardozodev/oficina-billing/internal/shared/events"
	"github.com/marciocardozodev/oficina-billing/tests/mocks"
)

func TestCompensarPagamentoPendenteCancelaLocalmente(t *testing.T) {
	repo := mocks.NewInMemoryBillingRepo()
	gw := &mocks.StubGateway{}
	osID, _, _ := semearPagamentoPendente(t, repo, gw)

	svc := application.NewCompensacaoService(repo, nil, zap.NewNop().Sugar())
	require.NoError(t, svc.Compensar(context.Background(), osID, "OS cancelada", events.NewEnvelope()))

	p, err := repo.PagamentoPorOsID(context.Background(), osID)
	require.NoError(t, err)
	assert.Equal(t, domain.PagamentoFalhou, p.Status)
	assert.Len(t, repo.OutboxPorTipo(domain.EventPaymentReversed), 1)
}

func TestCompensarPagamentoConfirmadoNaoRegrideStatus(t *testing.T) {
	repo := mocks.NewInMemoryBillingRepo()
	gw := &mocks.StubGateway{}
	osID, p, _ := semearPagamentoPendente(t, repo, gw)

	// Confirma via webhook antes da compensação.
	gw.ConsultarFn = func(string) (*domain.ProviderPayment, error) {
		return &domain.ProviderPayment{Status: "approved", OsID: osID.String()}, nil
	}
	webhooks := application.NewWebhookService(repo, gw, nil, nil, zap.NewNop().Sugar())
	require.NoError(t, webhooks.Processar(context.Background(), application.NotificacaoProvedor{
		Type: "payment", PaymentID: p.ProviderPaymentID,
	}))

	svc := application.NewCompensacaoService(repo, nil, zap.NewNop().Sugar())
	require.NoError(t, svc.Compensar(context.Background(), osID, "estorno solicitado", events.NewEnvelope()))

	// Status terminal intacto; o estorno vira evento para quem capturou.
	atual, err := repo.PagamentoPorOsID(context.Background(), osID)
	require.NoError(t, err)
	assert.Equal(t, domain.PagamentoConfirmado, atual.Status)
	assert.Len(t, repo.OutboxPorTipo(domain.EventPaymentReversed), 1)
}

func TestCompensarEhIdempotente(t *testing.T) {
	repo := mocks.NewInMemoryBillingRepo()
	gw := &mocks.StubGateway{}
	osID, p, _ := semearPagamentoPendente(t, repo, gw)

	gw.ConsultarFn = func(string) (*domain.ProviderPayment, error) {
		return &domain.ProviderPayment{Status: "approved", OsID: osID.String()}, nil
	}
	webhooks := application.NewWebhookService(repo, gw, nil, nil, zap.NewNop().Sugar())
	require.NoError(t, webhooks.Processar(context.Background(), application.NotificacaoProvedor{
		Type: "payment", PaymentID: p.ProviderPaymentID,
	}))

	svc := application.NewCompensacaoService(repo, nil, zap.NewNop().Sugar())
	require.NoError(t, svc.Compensar(context.Background(), osID, "estorno", events.NewEnvelope()))
	require.NoError(t, svc.Compensar(context.Background(), osID, "estorno", events.NewEnvelope()))

	assert.Len(t, repo.OutboxPorTipo(domain.EventPaymentReversed), 1)
}

func TestCompensarSemPagamentoEhNoOp(t *testing.T) {
	repo := mocks.NewInMemoryBillingRepo()
	svc := application.NewCompensacaoService(repo, nil, zap.NewNop().Sugar())

	require.NoError(t, svc.Compensar(context.Background(), uuid.New(), "OS cancelada", events.NewEnvelope()))
	assert.Empty(t, repo.Outbox())
}

func TestCompensarPagamentoJaFalhoEhNoOp(t *testing.T) {
	repo := mocks.NewInMemoryBillingRepo()
	gw := &mocks.StubGateway{}
	osID, _, _ := semearPagamentoPendente(t, repo, gw)

	svc := application.NewCompensacaoService(repo, nil, zap.NewNop().Sugar())
	require.NoError(t, svc.Compensar(context.Background(), osID, "cancelada", events.NewEnvelope()))
	require.NoError(t, svc.Compensar(context.Background(), osID, "cancelada", events.NewEnvelope()))

	assert.Len(t, repo.OutboxPorTipo(domain.EventPaymentReversed), 1)
}
