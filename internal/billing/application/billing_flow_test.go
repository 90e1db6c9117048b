package application_test

import (
	"context"
	"errors"
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

func novoAmbiente(gw *mocks.StubGateway) (*application.BillingFlow, *application.OrcamentoService, *application.PagamentoService, *mocks.InMemoryBillingRepo) {
	log := zap.NewNop().Sugar()
	repo := mocks.NewInMemoryBillingRepo()
	orcamentos := application.NewOrcamentoService(repo, nil, nil, "client@example.com", 300, log)
	pagamentos := application.NewPagamentoService(repo, gw, nil, "CREDIT_CARD", log)
	flow := application.NewBillingFlow(orcamentos, pagamentos, log)
	return flow, orcamentos, pagamentos, repo
}

func TestFluxoCompletoOsCreated(t *testing.T) {
	gw := &mocks.StubGateway{}
	flow, _, _, repo := novoAmbiente(gw)

	env := events.NewEnvelope()
	valor := 250.0
	osID := uuid.New()
	evt := events.OsCreated{OsID: osID, Description: "troca de óleo", Valor: &valor}

	require.NoError(t, flow.HandleOsCreated(context.Background(), evt, env))

	o, err := repo.OrcamentoPorOsID(context.Background(), osID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrcamentoAprovado, o.Status)
	assert.Equal(t, 250.0, o.Valor)

	p, err := repo.PagamentoPorOsID(context.Background(), osID)
	require.NoError(t, err)
	assert.Equal(t, domain.PagamentoConfirmado, p.Status)
	assert.NotEmpty(t, p.ProviderPaymentID)
	assert.Equal(t, 1, gw.Chamadas())

	// Um evento de cada etapa, todos com o CorrelationId do fluxo.
	for _, tipo := range []string{
		domain.EventBudgetGenerated, domain.EventBudgetApproved,
		domain.EventPaymentPending, domain.EventPaymentConfirmed,
	} {
		msgs := repo.OutboxPorTipo(tipo)
		require.Len(t, msgs, 1, "esperava exatamente um %s", tipo)
		assert.Equal(t, env.CorrelationID, msgs[0].CorrelationID)
	}
}

func TestOsCreatedSemValorUsaPadrao(t *testing.T) {
	gw := &mocks.StubGateway{}
	flow, _, _, repo := novoAmbiente(gw)

	osID := uuid.New()
	require.NoError(t, flow.HandleOsCreated(context.Background(),
		events.OsCreated{OsID: osID}, events.NewEnvelope()))

	o, err := repo.OrcamentoPorOsID(context.Background(), osID)
	require.NoError(t, err)
	assert.Equal(t, domain.ValorPadraoOrcamento, o.Valor)

	// O fallback fica marcado na trilha de auditoria, não só no log.
	trilha, err := repo.ListarAtualizacoesStatus(context.Background(), osID)
	require.NoError(t, err)
	require.NotEmpty(t, trilha)
	assert.Equal(t, domain.EventBudgetGenerated, trilha[0].EventType)
	assert.Equal(t, domain.DetalheValorPadraoAplicado, trilha[0].Detalhe)
	for _, a := range trilha[1:] {
		assert.Empty(t, a.Detalhe)
	}
}

func TestReentregaDeOsCreatedNaoDuplicaNada(t *testing.T) {
	gw := &mocks.StubGateway{}
	flow, _, _, repo := novoAmbiente(gw)

	env := events.NewEnvelope()
	osID := uuid.New()
	evt := events.OsCreated{OsID: osID}

	require.NoError(t, flow.HandleOsCreated(context.Background(), evt, env))
	antes := len(repo.Outbox())

	// Segunda entrega do mesmo evento: o fluxo retoma e constata que
	// não há nada a fazer. O gateway NÃO pode ser acionado de novo.
	require.NoError(t, flow.HandleOsCreated(context.Background(), evt, env))

	assert.Equal(t, antes, len(repo.Outbox()))
	assert.Equal(t, 1, gw.Chamadas())
	assert.Len(t, repo.OutboxPorTipo(domain.EventBudgetGenerated), 1)
}

func TestGatewayFalhaMarcaPagamentoComoFalhou(t *testing.T) {
	gw := &mocks.StubGateway{
		IniciarFn: func(uuid.UUID) (string, error) {
			return "", errors.New("timeout no provedor")
		},
	}
	flow, _, _, repo := novoAmbiente(gw)

	osID := uuid.New()
	require.NoError(t, flow.HandleOsCreated(context.Background(),
		events.OsCreated{OsID: osID}, events.NewEnvelope()))

	p, err := repo.PagamentoPorOsID(context.Background(), osID)
	require.NoError(t, err)
	assert.Equal(t, domain.PagamentoFalhou, p.Status)
	assert.Len(t, repo.OutboxPorTipo(domain.EventPaymentPending), 1)
	assert.Len(t, repo.OutboxPorTipo(domain.EventPaymentFailed), 1)
	assert.Empty(t, repo.OutboxPorTipo(domain.EventPaymentConfirmed))
}

func TestRecusaExplicitaDoProvedor(t *testing.T) {
	gw := &mocks.StubGateway{
		IniciarFn: func(uuid.UUID) (string, error) { return "", nil },
	}
	flow, _, _, repo := novoAmbiente(gw)

	osID := uuid.New()
	require.NoError(t, flow.HandleOsCreated(context.Background(),
		events.OsCreated{OsID: osID}, events.NewEnvelope()))

	p, err := repo.PagamentoPorOsID(context.Background(), osID)
	require.NoError(t, err)
	assert.Equal(t, domain.PagamentoFalhou, p.Status)
}

func TestMetodoAssincronoFicaPendente(t *testing.T) {
	log := zap.NewNop().Sugar()
	repo := mocks.NewInMemoryBillingRepo()
	gw := &mocks.StubGateway{}
	orcamentos := application.NewOrcamentoService(repo, nil, nil, "client@example.com", 300, log)
	pagamentos := application.NewPagamentoService(repo, gw, nil, "PIX", log)
	flow := application.NewBillingFlow(orcamentos, pagamentos, log)

	osID := uuid.New()
	require.NoError(t, flow.HandleOsCreated(context.Background(),
		events.OsCreated{OsID: osID}, events.NewEnvelope()))

	p, err := repo.PagamentoPorOsID(context.Background(), osID)
	require.NoError(t, err)
	// O aceite do gateway não confirma PIX: só o webhook confirma.
	assert.Equal(t, domain.PagamentoPendente, p.Status)
	assert.NotEmpty(t, p.ProviderPaymentID)
	assert.Empty(t, repo.OutboxPorTipo(domain.EventPaymentConfirmed))
}

func TestAprovacaoManualForaDeEnviadoConflita(t *testing.T) {
	gw := &mocks.StubGateway{}
	flow, orcamentos, _, _ := novoAmbiente(gw)

	osID := uuid.New()
	require.NoError(t, flow.HandleOsCreated(context.Background(),
		events.OsCreated{OsID: osID}, events.NewEnvelope()))

	// O auto-fluxo já aprovou; aprovar de novo viola o forward-only.
	_, err := orcamentos.AprovarOrcamento(context.Background(), osID, events.NewEnvelope())
	assert.ErrorIs(t, err, domain.ErrTransicaoInvalida)
}

func TestIniciarPagamentoExigeOrcamentoAprovado(t *testing.T) {
	log := zap.NewNop().Sugar()
	repo := mocks.NewInMemoryBillingRepo()
	gw := &mocks.StubGateway{}
	orcamentos := application.NewOrcamentoService(repo, nil, nil, "client@example.com", 300, log)
	pagamentos := application.NewPagamentoService(repo, gw, nil, "CREDIT_CARD", log)

	osID := uuid.New()
	_, err := orcamentos.GerarOrcamento(context.Background(),
		events.OsCreated{OsID: osID}, events.NewEnvelope())
	require.NoError(t, err)

	// Orçamento ainda Enviado: pagamento manual deve conflitar.
	_, err = pagamentos.IniciarPagamento(context.Background(), osID, events.NewEnvelope())
	assert.ErrorIs(t, err, domain.ErrTransicaoInvalida)
	assert.Equal(t, 0, gw.Chamadas())
}
