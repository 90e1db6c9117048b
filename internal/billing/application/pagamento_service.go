package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
	"github.com/marciocardozodev/oficina-billing/internal/shared/events"
)

// PagamentoService orquestra a cobrança de um orçamento aprovado junto
// ao provedor de pagamentos. A chamada ao gateway acontece FORA de
// qualquer transação: primeiro o pagamento nasce Pendente (com evento e
// auditoria na mesma transação), depois o gateway é acionado, e o
// resultado vira uma nova transação field-scoped.
type PagamentoService struct {
	repo         domain.BillingRepository
	gateway      domain.PaymentGateway
	analytics    domain.StatusAnalytics
	metodoPadrao string
	log          *zap.SugaredLogger
}

func NewPagamentoService(repo domain.BillingRepository, gateway domain.PaymentGateway, analytics domain.StatusAnalytics, metodoPadrao string, log *zap.SugaredLogger) *PagamentoService {
	return &PagamentoService{
		repo:         repo,
		gateway:      gateway,
		analytics:    analytics,
		metodoPadrao: metodoPadrao,
		log:          log,
	}
}

// IniciarPagamento inicia a cobrança da OS. Exige orçamento Aprovado.
// Se já existe pagamento para a OS (terminal ou não), o gateway NÃO é
// acionado de novo: o provedor não é idempotente.
func (s *PagamentoService) IniciarPagamento(ctx context.Context, osID uuid.UUID, env events.Envelope) (*domain.Pagamento, error) {
	o, err := s.repo.OrcamentoPorOsID(ctx, osID)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.OrcamentoAprovado {
		return nil, domain.ErrTransicaoInvalida
	}

	if existente, err := s.repo.PagamentoPorOsID(ctx, osID); err == nil {
		s.log.Infow("💳 Pagamento já existe para a OS, gateway não será reacionado",
			"osId", osID, "pagamentoId", existente.ID, "status", existente.Status,
			"correlationId", env.CorrelationID)
		return existente, nil
	} else if !errors.Is(err, domain.ErrPagamentoNaoEncontrado) {
		return nil, err
	}

	agora := env.Timestamp
	p := &domain.Pagamento{
		ID:            uuid.New(),
		OsID:          osID,
		OrcamentoID:   o.ID,
		Valor:         o.Valor,
		Metodo:        s.metodoPadrao,
		Status:        domain.PagamentoPendente,
		CorrelationID: env.CorrelationID,
		CausationID:   env.CausationID,
		CriadoEm:      agora,
		AtualizadoEm:  agora,
	}

	child := env.Child()
	msg, err := novaMensagemOutbox(osID, domain.EventPaymentPending, events.PaymentPending{
		OsID:          osID,
		PaymentID:     p.ID,
		Status:        string(p.Status),
		Amount:        p.Valor,
		PaymentMethod: p.Metodo,
	}, child)
	if err != nil {
		return nil, err
	}
	audit := novaAuditoria(osID, string(p.Status), domain.EventPaymentPending, child)

	res, err := s.repo.CriarPagamento(ctx, p, msg, audit)
	if err != nil {
		return nil, err
	}
	if res == domain.JaExistia {
		// Corrida com outra entrega: quem criou primeiro aciona o gateway.
		s.log.Infow("💳 Pagamento criado concorrentemente, abortando esta tentativa",
			"osId", osID, "correlationId", env.CorrelationID)
		return s.repo.PagamentoPorOsID(ctx, osID)
	}
	s.log.Infow("💳 Pagamento criado como Pendente", "osId", osID,
		"pagamentoId", p.ID, "valor", p.Valor, "metodo", p.Metodo,
		"correlationId", env.CorrelationID)
	s.registrarTransicao(ctx, audit)

	// Fora da transação: o gateway pode ser lento e não é idempotente.
	descricao := fmt.Sprintf("Pagamento da OS %s", osID)
	providerID, err := s.gateway.IniciarPagamento(ctx, osID, o.ID, p.Valor, p.Metodo, descricao)
	switch {
	case err != nil:
		s.log.Errorw("❌ Gateway de pagamento falhou", "osId", osID,
			"pagamentoId", p.ID, "erro", err, "correlationId", env.CorrelationID)
		return s.marcarFalha(ctx, p, err.Error(), env)
	case providerID == "":
		s.log.Warnw("🚫 Pagamento rejeitado pelo provedor", "osId", osID,
			"pagamentoId", p.ID, "correlationId", env.CorrelationID)
		return s.marcarFalha(ctx, p, "rejeitado pelo provedor", env)
	case domain.MetodoAssincrono(p.Metodo):
		// PIX/BOLETO: o aceite não confirma; a confirmação chega por webhook.
		if err := s.repo.DefinirProviderPaymentID(ctx, p.ID, providerID); err != nil {
			return nil, err
		}
		p.ProviderPaymentID = providerID
		s.log.Infow("⏳ Pagamento assíncrono aceito, aguardando confirmação do provedor",
			"osId", osID, "pagamentoId", p.ID, "providerPaymentId", providerID,
			"correlationId", env.CorrelationID)
		return p, nil
	default:
		return s.marcarConfirmado(ctx, p, providerID, env)
	}
}

// BuscarPorOsID retorna o pagamento da OS, quando existe.
func (s *PagamentoService) BuscarPorOsID(ctx context.Context, osID uuid.UUID) (*domain.Pagamento, error) {
	return s.repo.PagamentoPorOsID(ctx, osID)
}

func (s *PagamentoService) marcarConfirmado(ctx context.Context, p *domain.Pagamento, providerID string, env events.Envelope) (*domain.Pagamento, error) {
	child := env.Child()
	msg, err := novaMensagemOutbox(p.OsID, domain.EventPaymentConfirmed, events.PaymentConfirmed{
		OsID:              p.OsID,
		PaymentID:         p.ID,
		Status:            string(domain.PagamentoConfirmado),
		Amount:            p.Valor,
		ProviderPaymentID: providerID,
	}, child)
	if err != nil {
		return nil, err
	}
	audit := novaAuditoria(p.OsID, string(domain.PagamentoConfirmado), domain.EventPaymentConfirmed, child)

	if err := s.repo.AtualizarStatusPagamento(ctx, p.ID, domain.PagamentoConfirmado, providerID, msg, audit); err != nil {
		return nil, err
	}
	p.Status = domain.PagamentoConfirmado
	p.ProviderPaymentID = providerID

	s.log.Infow("✅ Pagamento confirmado", "osId", p.OsID, "pagamentoId", p.ID,
		"providerPaymentId", providerID, "correlationId", env.CorrelationID)
	s.registrarTransicao(ctx, audit)
	return p, nil
}

func (s *PagamentoService) marcarFalha(ctx context.Context, p *domain.Pagamento, motivo string, env events.Envelope) (*domain.Pagamento, error) {
	child := env.Child()
	msg, err := novaMensagemOutbox(p.OsID, domain.EventPaymentFailed, events.PaymentFailed{
		OsID:      p.OsID,
		PaymentID: p.ID,
		Status:    string(domain.PagamentoFalhou),
		Reason:    motivo,
	}, child)
	if err != nil {
		return nil, err
	}
	audit := novaAuditoria(p.OsID, string(domain.PagamentoFalhou), domain.EventPaymentFailed, child)

	if err := s.repo.AtualizarStatusPagamento(ctx, p.ID, domain.PagamentoFalhou, "", msg, audit); err != nil {
		return nil, err
	}
	p.Status = domain.PagamentoFalhou
	s.registrarTransicao(ctx, audit)
	return p, nil
}

func (s *PagamentoService) registrarTransicao(ctx context.Context, a domain.AtualizacaoStatusOs) {
	if s.analytics == nil {
		return
	}
	if err := s.analytics.RegistrarTransicao(ctx, a); err != nil {
		s.log.Warnw("⚠️ Falha ao registrar transição no sink analítico", "osId", a.OsID, "erro", err)
	}
}
