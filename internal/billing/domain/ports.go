package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/marciocardozodev/oficina-billing/internal/shared/domain"
)

// ---------- Erros de domínio ----------
var (
	ErrOrcamentoNaoEncontrado = errors.New("orçamento não encontrado")
	ErrPagamentoNaoEncontrado = errors.New("pagamento não encontrado")
	// ErrTransicaoInvalida indica tentativa de transição fora da máquina
	// de estados (ex.: aprovar orçamento que não está Enviado, ou mutar
	// pagamento terminal).
	ErrTransicaoInvalida = errors.New("transição de status inválida")
)

// CreateResult modela o resultado de um insert com chave natural única.
// Violação de unicidade não é erro: é sinal de entrega duplicada, e o
// caller decide continuar o fluxo com o registro existente.
type CreateResult int

const (
	Criado CreateResult = iota
	JaExistia
)

// ---------- Interfaces (Ports) ----------

// BillingRepository persiste orçamentos, pagamentos, trilha de auditoria
// e as mensagens de outbox correspondentes. Toda mutação de estado grava
// o evento de outbox e a linha de auditoria NA MESMA transação local.
// Atualizações são sempre field-scoped, nunca sobrescrita da entidade.
type BillingRepository interface {
	// CriarOrcamento insere o orçamento com o evento de outbox. Retorna
	// JaExistia quando a restrição de unicidade em os_id é violada.
	CriarOrcamento(ctx context.Context, o *Orcamento, evt sharedDomain.OutboxMessage, audit AtualizacaoStatusOs) (CreateResult, error)

	// OrcamentoPorOsID retorna ErrOrcamentoNaoEncontrado se não existir.
	OrcamentoPorOsID(ctx context.Context, osID uuid.UUID) (*Orcamento, error)

	// AtualizarStatusOrcamento faz a transição de->para de forma
	// field-scoped e guardada: retorna ErrTransicaoInvalida quando o
	// status atual não é `de` (inclui corridas entre handlers).
	AtualizarStatusOrcamento(ctx context.Context, osID uuid.UUID, de, para StatusOrcamento, evt sharedDomain.OutboxMessage, audit AtualizacaoStatusOs) error

	// CriarPagamento insere o pagamento em Pendente com o evento de
	// outbox. Retorna JaExistia quando já há pagamento para a OS.
	CriarPagamento(ctx context.Context, p *Pagamento, evt sharedDomain.OutboxMessage, audit AtualizacaoStatusOs) (CreateResult, error)

	// PagamentoPorOsID retorna ErrPagamentoNaoEncontrado se não existir.
	PagamentoPorOsID(ctx context.Context, osID uuid.UUID) (*Pagamento, error)

	// PagamentoPorProviderID busca pelo id atribuído pelo provedor.
	PagamentoPorProviderID(ctx context.Context, providerPaymentID string) (*Pagamento, error)

	// AtualizarStatusPagamento move um pagamento Pendente para o status
	// terminal, gravando providerPaymentID (quando não vazio) e o evento
	// de outbox na mesma transação. Pagamento terminal é imutável:
	// retorna ErrTransicaoInvalida.
	AtualizarStatusPagamento(ctx context.Context, pagamentoID uuid.UUID, para StatusPagamento, providerPaymentID string, evt sharedDomain.OutboxMessage, audit AtualizacaoStatusOs) error

	// DefinirProviderPaymentID grava apenas o id do provedor em um
	// pagamento que segue Pendente (métodos assíncronos).
	DefinirProviderPaymentID(ctx context.Context, pagamentoID uuid.UUID, providerPaymentID string) error

	// SalvarOutbox grava um evento de outbox avulso (com auditoria
	// opcional) quando não há mutação de entidade associada.
	SalvarOutbox(ctx context.Context, evt sharedDomain.OutboxMessage, audit *AtualizacaoStatusOs) error

	// ListarAtualizacoesStatus devolve a trilha de auditoria de uma OS.
	ListarAtualizacoesStatus(ctx context.Context, osID uuid.UUID) ([]AtualizacaoStatusOs, error)

	sharedDomain.OutboxRepository
}

// ProviderPayment é a visão do provedor sobre um pagamento.
type ProviderPayment struct {
	Status string
	OsID   string
}

// PaymentGateway é a capacidade opaca do provedor de pagamentos.
// Falível, possivelmente lento e NÃO idempotente: o orquestrador garante
// no máximo uma chamada por tentativa lógica de pagamento.
type PaymentGateway interface {
	// IniciarPagamento retorna o id do provedor; id vazio com err nil
	// significa rejeição explícita.
	IniciarPagamento(ctx context.Context, osID, orcamentoID uuid.UUID, valor float64, metodo, descricao string) (string, error)

	// ConsultarPagamento busca o status atual no provedor.
	ConsultarPagamento(ctx context.Context, providerPaymentID string) (*ProviderPayment, error)
}

// BudgetCache acelera a leitura de orçamento por OsId.
type BudgetCache interface {
	// Get preenche dest (ponteiro) se houver hit; (false, nil) em miss.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, val interface{}, ttlSecs int) error
	Delete(ctx context.Context, key string) error
}

// NotificacaoWebhook é o registro de uma notificação recebida do
// provedor, para dedup best-effort por id de evento do provedor.
type NotificacaoWebhook struct {
	ProviderEventID string    `json:"providerEventId"`
	Action          string    `json:"action"`
	PaymentID       string    `json:"paymentId"`
	RecebidaEm      time.Time `json:"recebidaEm"`
}

// InboxStore deduplica notificações de webhook. Best-effort: a proteção
// real contra replays continua sendo o no-op por status igual.
type InboxStore interface {
	JaProcessada(ctx context.Context, providerEventID string) (bool, error)
	Registrar(ctx context.Context, n NotificacaoWebhook) error
}

// StatusAnalytics é o destino analítico das transições de status.
// Opcional e fora do caminho quente: erro é apenas logado.
type StatusAnalytics interface {
	RegistrarTransicao(ctx context.Context, a AtualizacaoStatusOs) error
}
