package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
	sharedDomain "github.com/marciocardozodev/oficina-billing/internal/shared/domain"
)

func novoRepo(t *testing.T) *BillingRepo {
	t.Helper()
	db, err := InitSQLite(filepath.Join(t.TempDir(), "billing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBillingRepo(db, zap.NewNop().Sugar())
}

func orcamentoTeste(osID uuid.UUID) *domain.Orcamento {
	agora := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Orcamento{
		ID:            uuid.New(),
		OsID:          osID,
		Valor:         100.0,
		EmailCliente:  "client@example.com",
		Status:        domain.OrcamentoEnviado,
		CorrelationID: uuid.New(),
		CausationID:   uuid.New(),
		CriadoEm:      agora,
		AtualizadoEm:  agora,
	}
}

func mensagemTeste(osID uuid.UUID, eventType string) sharedDomain.OutboxMessage {
	return sharedDomain.OutboxMessage{
		ID:            uuid.New(),
		AggregateID:   osID.String(),
		AggregateType: "OrderService",
		EventType:     eventType,
		Payload:       json.RawMessage(`{"osId":"` + osID.String() + `"}`),
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
		CorrelationID: uuid.New(),
		CausationID:   uuid.New(),
	}
}

func auditoriaTeste(osID uuid.UUID, status, eventType string) domain.AtualizacaoStatusOs {
	return domain.AtualizacaoStatusOs{
		ID:            uuid.New(),
		OsID:          osID,
		NovoStatus:    status,
		EventType:     eventType,
		CorrelationID: uuid.New(),
		CausationID:   uuid.New(),
		AtualizadoEm:  time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestCriarOrcamentoEDetectarDuplicado(t *testing.T) {
	repo := novoRepo(t)
	ctx := context.Background()
	osID := uuid.New()

	res, err := repo.CriarOrcamento(ctx, orcamentoTeste(osID),
		mensagemTeste(osID, "BudgetGenerated"), auditoriaTeste(osID, "Enviado", "BudgetGenerated"))
	require.NoError(t, err)
	assert.Equal(t, domain.Criado, res)

	// Mesmo OsId de novo: violação de unicidade vira valor, não erro.
	res, err = repo.CriarOrcamento(ctx, orcamentoTeste(osID),
		mensagemTeste(osID, "BudgetGenerated"), auditoriaTeste(osID, "Enviado", "BudgetGenerated"))
	require.NoError(t, err)
	assert.Equal(t, domain.JaExistia, res)

	// A tentativa duplicada não pode ter gravado outbox nem auditoria.
	pendentes, err := repo.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pendentes, 1)
	trilha, err := repo.ListarAtualizacoesStatus(ctx, osID)
	require.NoError(t, err)
	assert.Len(t, trilha, 1)
}

func TestOrcamentoPorOsIDInexistente(t *testing.T) {
	repo := novoRepo(t)
	_, err := repo.OrcamentoPorOsID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrOrcamentoNaoEncontrado)
}

func TestAtualizarStatusOrcamentoEhGuardado(t *testing.T) {
	repo := novoRepo(t)
	ctx := context.Background()
	osID := uuid.New()

	_, err := repo.CriarOrcamento(ctx, orcamentoTeste(osID),
		mensagemTeste(osID, "BudgetGenerated"), auditoriaTeste(osID, "Enviado", "BudgetGenerated"))
	require.NoError(t, err)

	require.NoError(t, repo.AtualizarStatusOrcamento(ctx, osID,
		domain.OrcamentoEnviado, domain.OrcamentoAprovado,
		mensagemTeste(osID, "BudgetApproved"), auditoriaTeste(osID, "Aprovado", "BudgetApproved")))

	o, err := repo.OrcamentoPorOsID(ctx, osID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrcamentoAprovado, o.Status)

	// Segunda transição a partir de Enviado: o guard barra a corrida.
	err = repo.AtualizarStatusOrcamento(ctx, osID,
		domain.OrcamentoEnviado, domain.OrcamentoRejeitado,
		mensagemTeste(osID, "BudgetRejected"), auditoriaTeste(osID, "Rejeitado", "BudgetRejected"))
	assert.ErrorIs(t, err, domain.ErrTransicaoInvalida)

	// OS desconhecida distingue not-found de transição inválida.
	err = repo.AtualizarStatusOrcamento(ctx, uuid.New(),
		domain.OrcamentoEnviado, domain.OrcamentoAprovado,
		mensagemTeste(osID, "BudgetApproved"), auditoriaTeste(osID, "Aprovado", "BudgetApproved"))
	assert.ErrorIs(t, err, domain.ErrOrcamentoNaoEncontrado)
}

// O pool do SQLite tem uma única conexão; a checagem que distingue
// not-found de transição inválida precisa rodar dentro da transação
// aberta, senão a leitura espera para sempre pela conexão que a própria
// transação segura. O deadline curto transforma regressão em falha.
func TestGuardasNaoDisputamOPoolDeUmaConexao(t *testing.T) {
	repo := novoRepo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	osID := uuid.New()

	_, err := repo.CriarOrcamento(ctx, orcamentoTeste(osID),
		mensagemTeste(osID, "BudgetGenerated"), auditoriaTeste(osID, "Enviado", "BudgetGenerated"))
	require.NoError(t, err)
	require.NoError(t, repo.AtualizarStatusOrcamento(ctx, osID,
		domain.OrcamentoEnviado, domain.OrcamentoAprovado,
		mensagemTeste(osID, "BudgetApproved"), auditoriaTeste(osID, "Aprovado", "BudgetApproved")))

	err = repo.AtualizarStatusOrcamento(ctx, osID,
		domain.OrcamentoEnviado, domain.OrcamentoRejeitado,
		mensagemTeste(osID, "BudgetRejected"), auditoriaTeste(osID, "Rejeitado", "BudgetRejected"))
	assert.ErrorIs(t, err, domain.ErrTransicaoInvalida)

	err = repo.AtualizarStatusPagamento(ctx, uuid.New(),
		domain.PagamentoConfirmado, "",
		mensagemTeste(osID, "PaymentConfirmed"), auditoriaTeste(osID, "Confirmado", "PaymentConfirmed"))
	assert.ErrorIs(t, err, domain.ErrPagamentoNaoEncontrado)

	require.NoError(t, ctx.Err())
}

func TestPagamentoCicloCompleto(t *testing.T) {
	repo := novoRepo(t)
	ctx := context.Background()
	osID := uuid.New()

	agora := time.Now().UTC().Truncate(time.Millisecond)
	p := &domain.Pagamento{
		ID:            uuid.New(),
		OsID:          osID,
		OrcamentoID:   uuid.New(),
		Valor:         100.0,
		Metodo:        "PIX",
		Status:        domain.PagamentoPendente,
		CorrelationID: uuid.New(),
		CausationID:   uuid.New(),
		CriadoEm:      agora,
		AtualizadoEm:  agora,
	}
	res, err := repo.CriarPagamento(ctx, p,
		mensagemTeste(osID, "PaymentPending"), auditoriaTeste(osID, "Pendente", "PaymentPending"))
	require.NoError(t, err)
	require.Equal(t, domain.Criado, res)

	require.NoError(t, repo.DefinirProviderPaymentID(ctx, p.ID, "MP-123"))

	porProvider, err := repo.PagamentoPorProviderID(ctx, "MP-123")
	require.NoError(t, err)
	assert.Equal(t, p.ID, porProvider.ID)

	require.NoError(t, repo.AtualizarStatusPagamento(ctx, p.ID,
		domain.PagamentoConfirmado, "MP-123",
		mensagemTeste(osID, "PaymentConfirmed"), auditoriaTeste(osID, "Confirmado", "PaymentConfirmed")))

	atual, err := repo.PagamentoPorOsID(ctx, osID)
	require.NoError(t, err)
	assert.Equal(t, domain.PagamentoConfirmado, atual.Status)
	assert.Equal(t, "MP-123", atual.ProviderPaymentID)

	// Terminal é imutável.
	err = repo.AtualizarStatusPagamento(ctx, p.ID,
		domain.PagamentoFalhou, "",
		mensagemTeste(osID, "PaymentFailed"), auditoriaTeste(osID, "Falhou", "PaymentFailed"))
	assert.ErrorIs(t, err, domain.ErrTransicaoInvalida)
}

func TestOutboxFetchEMark(t *testing.T) {
	repo := novoRepo(t)
	ctx := context.Background()
	osID := uuid.New()

	antiga := mensagemTeste(osID, "BudgetGenerated")
	antiga.CreatedAt = time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond)
	nova := mensagemTeste(osID, "BudgetApproved")

	require.NoError(t, repo.SalvarOutbox(ctx, nova, nil))
	require.NoError(t, repo.SalvarOutbox(ctx, antiga, nil))

	pendentes, err := repo.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pendentes, 2)
	// Da mais antiga para a mais nova.
	assert.Equal(t, antiga.ID, pendentes[0].ID)
	assert.Equal(t, nova.ID, pendentes[1].ID)
	assert.JSONEq(t, string(antiga.Payload), string(pendentes[0].Payload))

	require.NoError(t, repo.MarkPublished(ctx, antiga.ID, time.Now().UTC()))
	pendentes, err = repo.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pendentes, 1)
	assert.Equal(t, nova.ID, pendentes[0].ID)
}

func TestListarAtualizacoesStatusOrdenado(t *testing.T) {
	repo := novoRepo(t)
	ctx := context.Background()
	osID := uuid.New()

	primeira := auditoriaTeste(osID, "Enviado", "BudgetGenerated")
	primeira.AtualizadoEm = time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond)
	primeira.Detalhe = domain.DetalheValorPadraoAplicado
	segunda := auditoriaTeste(osID, "Aprovado", "BudgetApproved")

	require.NoError(t, repo.SalvarOutbox(ctx, mensagemTeste(osID, "BudgetGenerated"), &primeira))
	require.NoError(t, repo.SalvarOutbox(ctx, mensagemTeste(osID, "BudgetApproved"), &segunda))

	trilha, err := repo.ListarAtualizacoesStatus(ctx, osID)
	require.NoError(t, err)
	require.Len(t, trilha, 2)
	assert.Equal(t, "Enviado", trilha[0].NovoStatus)
	assert.Equal(t, domain.DetalheValorPadraoAplicado, trilha[0].Detalhe)
	assert.Equal(t, "Aprovado", trilha[1].NovoStatus)
	assert.Empty(t, trilha[1].Detalhe)
}
