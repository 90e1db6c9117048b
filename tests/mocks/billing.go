// Package mocks reúne dublês de teste compartilhados: repositório de
// cobrança em memória e gateway de pagamento controlável.
package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
	sharedDomain "github.com/marciocardozodev/oficina-billing/internal/shared/domain"
)

// InMemoryBillingRepo implementa domain.BillingRepository em memória,
// com a mesma semântica dos adapters SQL: unicidade por OsId, updates
// guardados por status e outbox gravada junto com a mutação.
type InMemoryBillingRepo struct {
	mu          sync.Mutex
	orcamentos  map[uuid.UUID]*domain.Orcamento // por OsId
	pagamentos  map[uuid.UUID]*domain.Pagamento // por OsId
	outbox      []sharedDomain.OutboxMessage
	atualizacao []domain.AtualizacaoStatusOs
}

var _ domain.BillingRepository = (*InMemoryBillingRepo)(nil)

func NewInMemoryBillingRepo() *InMemoryBillingRepo {
	return &InMemoryBillingRepo{
		orcamentos: make(map[uuid.UUID]*domain.Orcamento),
		pagamentos: make(map[uuid.UUID]*domain.Pagamento),
	}
}

func (r *InMemoryBillingRepo) CriarOrcamento(_ context.Context, o *domain.Orcamento, evt sharedDomain.OutboxMessage, audit domain.AtualizacaoStatusOs) (domain.CreateResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orcamentos[o.OsID]; ok {
		return domain.JaExistia, nil
	}
	copia := *o
	r.orcamentos[o.OsID] = &copia
	r.outbox = append(r.outbox, evt)
	r.atualizacao = append(r.atualizacao, audit)
	return domain.Criado, nil
}

func (r *InMemoryBillingRepo) OrcamentoPorOsID(_ context.Context, osID uuid.UUID) (*domain.Orcamento, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orcamentos[osID]
	if !ok {
		return nil, domain.ErrOrcamentoNaoEncontrado
	}
	copia := *o
	return &copia, nil
}

func (r *InMemoryBillingRepo) AtualizarStatusOrcamento(_ context.Context, osID uuid.UUID, de, para domain.StatusOrcamento, evt sharedDomain.OutboxMessage, audit domain.AtualizacaoStatusOs) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orcamentos[osID]
	if !ok {
		return domain.ErrOrcamentoNaoEncontrado
	}
	if o.Status != de {
		return domain.ErrTransicaoInvalida
	}
	o.Status = para
	o.AtualizadoEm = time.Now().UTC()
	r.outbox = append(r.outbox, evt)
	r.atualizacao = append(r.atualizacao, audit)
	return nil
}

func (r *InMemoryBillingRepo) CriarPagamento(_ context.Context, p *domain.Pagamento, evt sharedDomain.OutboxMessage, audit domain.AtualizacaoStatusOs) (domain.CreateResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pagamentos[p.OsID]; ok {
		return domain.JaExistia, nil
	}
	copia := *p
	r.pagamentos[p.OsID] = &copia
	r.outbox = append(r.outbox, evt)
	r.atualizacao = append(r.atualizacao, audit)
	return domain.Criado, nil
}

func (r *InMemoryBillingRepo) PagamentoPorOsID(_ context.Context, osID uuid.UUID) (*domain.Pagamento, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pagamentos[osID]
	if !ok {
		return nil, domain.ErrPagamentoNaoEncontrado
	}
	copia := *p
	return &copia, nil
}

func (r *InMemoryBillingRepo) PagamentoPorProviderID(_ context.Context, providerPaymentID string) (*domain.Pagamento, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.pagamentos {
		if p.ProviderPaymentID == providerPaymentID && providerPaymentID != "" {
			copia := *p
			return &copia, nil
		}
	}
	return nil, domain.ErrPagamentoNaoEncontrado
}

func (r *InMemoryBillingRepo) AtualizarStatusPagamento(_ context.Context, pagamentoID uuid.UUID, para domain.StatusPagamento, providerPaymentID string, evt sharedDomain.OutboxMessage, audit domain.AtualizacaoStatusOs) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.pagamentoPorID(pagamentoID)
	if p == nil {
		return domain.ErrPagamentoNaoEncontrado
	}
	if p.Status != domain.PagamentoPendente {
		return domain.ErrTransicaoInvalida
	}
	p.Status = para
	if providerPaymentID != "" {
		p.ProviderPaymentID = providerPaymentID
	}
	p.AtualizadoEm = time.Now().UTC()
	r.outbox = append(r.outbox, evt)
	r.atualizacao = append(r.atualizacao, audit)
	return nil
}

func (r *InMemoryBillingRepo) DefinirProviderPaymentID(_ context.Context, pagamentoID uuid.UUID, providerPaymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.pagamentoPorID(pagamentoID)
	if p == nil {
		return domain.ErrPagamentoNaoEncontrado
	}
	if p.Status != domain.PagamentoPendente {
		return domain.ErrTransicaoInvalida
	}
	p.ProviderPaymentID = providerPaymentID
	p.AtualizadoEm = time.Now().UTC()
	return nil
}

func (r *InMemoryBillingRepo) SalvarOutbox(_ context.Context, evt sharedDomain.OutboxMessage, audit *domain.AtualizacaoStatusOs) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outbox = append(r.outbox, evt)
	if audit != nil {
		r.atualizacao = append(r.atualizacao, *audit)
	}
	return nil
}

func (r *InMemoryBillingRepo) ListarAtualizacoesStatus(_ context.Context, osID uuid.UUID) ([]domain.AtualizacaoStatusOs, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var trilha []domain.AtualizacaoStatusOs
	for _, a := range r.atualizacao {
		if a.OsID == osID {
			trilha = append(trilha, a)
		}
	}
	return trilha, nil
}

func (r *InMemoryBillingRepo) FetchUnpublished(_ context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pendentes []sharedDomain.OutboxMessage
	for _, m := range r.outbox {
		if !m.Published {
			pendentes = append(pendentes, m)
		}
	}
	sort.SliceStable(pendentes, func(i, j int) bool {
		return pendentes[i].CreatedAt.Before(pendentes[j].CreatedAt)
	})
	if limit < len(pendentes) {
		pendentes = pendentes[:limit]
	}
	return pendentes, nil
}

func (r *InMemoryBillingRepo) MarkPublished(_ context.Context, id uuid.UUID, publishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.outbox {
		if r.outbox[i].ID == id {
			r.outbox[i].Published = true
			t := publishedAt
			r.outbox[i].PublishedAt = &t
			return nil
		}
	}
	return nil
}

func (r *InMemoryBillingRepo) pagamentoPorID(id uuid.UUID) *domain.Pagamento {
	for _, p := range r.pagamentos {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// ---------- inspeção para asserts ----------

// Outbox devolve uma cópia de todas as linhas de outbox gravadas.
func (r *InMemoryBillingRepo) Outbox() []sharedDomain.OutboxMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sharedDomain.OutboxMessage(nil), r.outbox...)
}

// OutboxPorTipo filtra as linhas de outbox por EventType.
func (r *InMemoryBillingRepo) OutboxPorTipo(eventType string) []sharedDomain.OutboxMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	var filtradas []sharedDomain.OutboxMessage
	for _, m := range r.outbox {
		if m.EventType == eventType {
			filtradas = append(filtradas, m)
		}
	}
	return filtradas
}

// SemearOutbox injeta uma mensagem direto na outbox (para o relayer).
func (r *InMemoryBillingRepo) SemearOutbox(m sharedDomain.OutboxMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outbox = append(r.outbox, m)
}

// StubGateway implementa domain.PaymentGateway com comportamento
// programável por teste e contagem de chamadas.
type StubGateway struct {
	mu              sync.Mutex
	IniciarFn       func(osID uuid.UUID) (string, error)
	ConsultarFn     func(providerPaymentID string) (*domain.ProviderPayment, error)
	ChamadasIniciar int
}

var _ domain.PaymentGateway = (*StubGateway)(nil)

func (g *StubGateway) IniciarPagamento(_ context.Context, osID, _ uuid.UUID, _ float64, _, _ string) (string, error) {
	g.mu.Lock()
	g.ChamadasIniciar++
	fn := g.IniciarFn
	g.mu.Unlock()

	if fn != nil {
		return fn(osID)
	}
	return "MP-" + osID.String()[:8], nil
}

func (g *StubGateway) ConsultarPagamento(_ context.Context, providerPaymentID string) (*domain.ProviderPayment, error) {
	g.mu.Lock()
	fn := g.ConsultarFn
	g.mu.Unlock()

	if fn != nil {
		return fn(providerPaymentID)
	}
	return &domain.ProviderPayment{Status: "approved"}, nil
}

// Chamadas devolve quantas vezes IniciarPagamento foi invocado.
func (g *StubGateway) Chamadas() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ChamadasIniciar
}
