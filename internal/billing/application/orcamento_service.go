package application

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
	"github.com/marciocardozodev/oficina-billing/internal/shared/events"
)

// OrcamentoService gera e aprova orçamentos de ordens de serviço.
type OrcamentoService struct {
	repo         domain.BillingRepository
	cache        domain.BudgetCache
	analytics    domain.StatusAnalytics
	emailPadrao  string
	cacheTTLSecs int
	log          *zap.SugaredLogger
}

// NewOrcamentoService monta o serviço. cache e analytics podem ser nil.
func NewOrcamentoService(repo domain.BillingRepository, cache domain.BudgetCache, analytics domain.StatusAnalytics, emailPadrao string, cacheTTLSecs int, log *zap.SugaredLogger) *OrcamentoService {
	return &OrcamentoService{
		repo:         repo,
		cache:        cache,
		analytics:    analytics,
		emailPadrao:  emailPadrao,
		cacheTTLSecs: cacheTTLSecs,
		log:          log,
	}
}

// GerarOrcamento cria o orçamento da OS em Enviado, gravando o evento
// BudgetGenerated e a auditoria na mesma transação. Entrega duplicada
// de OsCreated devolve o orçamento já existente sem erro.
func (s *OrcamentoService) GerarOrcamento(ctx context.Context, evt events.OsCreated, env events.Envelope) (*domain.Orcamento, error) {
	valor := domain.ValorPadraoOrcamento
	detalhe := ""
	if evt.Valor != nil && *evt.Valor > 0 {
		valor = *evt.Valor
	} else {
		detalhe = domain.DetalheValorPadraoAplicado
		s.log.Warnw("⚠️ OsCreated sem valor válido, usando valor padrão",
			"osId", evt.OsID, "valorPadrao", domain.ValorPadraoOrcamento,
			"correlationId", env.CorrelationID)
	}

	agora := env.Timestamp
	o := &domain.Orcamento{
		ID:            uuid.New(),
		OsID:          evt.OsID,
		Valor:         valor,
		EmailCliente:  s.emailPadrao,
		Status:        domain.OrcamentoEnviado,
		CorrelationID: env.CorrelationID,
		CausationID:   env.CausationID,
		CriadoEm:      agora,
		AtualizadoEm:  agora,
	}

	child := env.Child()
	msg, err := novaMensagemOutbox(o.OsID, domain.EventBudgetGenerated, events.BudgetGenerated{
		OsID:     o.OsID,
		BudgetID: o.ID,
		Amount:   o.Valor,
		Status:   string(o.Status),
	}, child)
	if err != nil {
		return nil, err
	}
	audit := novaAuditoria(o.OsID, string(o.Status), domain.EventBudgetGenerated, child)
	// O uso do valor padrão fica registrado na trilha, não só no log.
	audit.Detalhe = detalhe

	res, err := s.repo.CriarOrcamento(ctx, o, msg, audit)
	if err != nil {
		return nil, err
	}
	if res == domain.JaExistia {
		s.log.Infow("📋 Orçamento já existia para a OS, seguindo com o registro atual",
			"osId", evt.OsID, "correlationId", env.CorrelationID)
		return s.repo.OrcamentoPorOsID(ctx, evt.OsID)
	}

	s.log.Infow("✅ Orçamento gerado", "osId", o.OsID, "orcamentoId", o.ID,
		"valor", o.Valor, "correlationId", env.CorrelationID)
	s.registrarTransicao(ctx, audit)
	s.guardarCache(ctx, o)
	return o, nil
}

// AprovarOrcamento move Enviado -> Aprovado. Retorna ErrTransicaoInvalida
// quando o orçamento não está Enviado (o status nunca regride).
func (s *OrcamentoService) AprovarOrcamento(ctx context.Context, osID uuid.UUID, env events.Envelope) (*domain.Orcamento, error) {
	o, err := s.repo.OrcamentoPorOsID(ctx, osID)
	if err != nil {
		return nil, err
	}
	if !o.PodeAprovar() {
		return nil, domain.ErrTransicaoInvalida
	}

	child := env.Child()
	msg, err := novaMensagemOutbox(osID, domain.EventBudgetApproved, events.BudgetApproved{
		OsID:     osID,
		BudgetID: o.ID,
		Status:   string(domain.OrcamentoAprovado),
	}, child)
	if err != nil {
		return nil, err
	}
	audit := novaAuditoria(osID, string(domain.OrcamentoAprovado), domain.EventBudgetApproved, child)

	if err := s.repo.AtualizarStatusOrcamento(ctx, osID, domain.OrcamentoEnviado, domain.OrcamentoAprovado, msg, audit); err != nil {
		return nil, err
	}
	o.Status = domain.OrcamentoAprovado

	s.log.Infow("✅ Orçamento aprovado", "osId", osID, "orcamentoId", o.ID,
		"correlationId", env.CorrelationID)
	s.registrarTransicao(ctx, audit)
	s.invalidarCache(ctx, osID)
	return o, nil
}

// RejeitarOrcamento move Enviado -> Rejeitado com o motivo informado.
func (s *OrcamentoService) RejeitarOrcamento(ctx context.Context, osID uuid.UUID, motivo string, env events.Envelope) (*domain.Orcamento, error) {
	o, err := s.repo.OrcamentoPorOsID(ctx, osID)
	if err != nil {
		return nil, err
	}
	if !o.PodeRejeitar() {
		return nil, domain.ErrTransicaoInvalida
	}

	child := env.Child()
	msg, err := novaMensagemOutbox(osID, domain.EventBudgetRejected, events.BudgetRejected{
		OsID:     osID,
		BudgetID: o.ID,
		Status:   string(domain.OrcamentoRejeitado),
		Reason:   motivo,
	}, child)
	if err != nil {
		return nil, err
	}
	audit := novaAuditoria(osID, string(domain.OrcamentoRejeitado), domain.EventBudgetRejected, child)

	if err := s.repo.AtualizarStatusOrcamento(ctx, osID, domain.OrcamentoEnviado, domain.OrcamentoRejeitado, msg, audit); err != nil {
		return nil, err
	}
	o.Status = domain.OrcamentoRejeitado

	s.log.Infow("🚫 Orçamento rejeitado", "osId", osID, "motivo", motivo,
		"correlationId", env.CorrelationID)
	s.registrarTransicao(ctx, audit)
	s.invalidarCache(ctx, osID)
	return o, nil
}

// BuscarPorOsID lê o orçamento passando pelo cache.
func (s *OrcamentoService) BuscarPorOsID(ctx context.Context, osID uuid.UUID) (*domain.Orcamento, error) {
	if s.cache != nil {
		var cached domain.Orcamento
		hit, err := s.cache.Get(ctx, domain.CacheKeyOrcamento(osID), &cached)
		if err != nil {
			s.log.Warnw("⚠️ Falha ao ler cache de orçamento", "osId", osID, "erro", err)
		} else if hit {
			return &cached, nil
		}
	}

	o, err := s.repo.OrcamentoPorOsID(ctx, osID)
	if err != nil {
		return nil, err
	}
	s.guardarCache(ctx, o)
	return o, nil
}

// ListarAtualizacoes devolve a trilha de auditoria da OS.
func (s *OrcamentoService) ListarAtualizacoes(ctx context.Context, osID uuid.UUID) ([]domain.AtualizacaoStatusOs, error) {
	return s.repo.ListarAtualizacoesStatus(ctx, osID)
}

func (s *OrcamentoService) guardarCache(ctx context.Context, o *domain.Orcamento) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, domain.CacheKeyOrcamento(o.OsID), o, s.cacheTTLSecs); err != nil {
		s.log.Warnw("⚠️ Falha ao gravar cache de orçamento", "osId", o.OsID, "erro", err)
	}
}

func (s *OrcamentoService) invalidarCache(ctx context.Context, osID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, domain.CacheKeyOrcamento(osID)); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warnw("⚠️ Falha ao invalidar cache de orçamento", "osId", osID, "erro", err)
	}
}

func (s *OrcamentoService) registrarTransicao(ctx context.Context, a domain.AtualizacaoStatusOs) {
	if s.analytics == nil {
		return
	}
	if err := s.analytics.RegistrarTransicao(ctx, a); err != nil {
		s.log.Warnw("⚠️ Falha ao registrar transição no sink analítico", "osId", a.OsID, "erro", err)
	}
}
