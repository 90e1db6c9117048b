package application

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
	"github.com/marciocardozodev/oficina-billing/internal/shared/events"
)

// CompensacaoService desfaz a cobrança quando a OS é cancelada ou uma
// compensação é pedida explicitamente (saga). Pagamento Pendente é
// cancelado localmente; Confirmado é terminal e imutável: apenas o
// evento PaymentReversed é publicado para que o estorno aconteça a
// jusante.
type CompensacaoService struct {
	repo      domain.BillingRepository
	analytics domain.StatusAnalytics
	log       *zap.SugaredLogger
}

func NewCompensacaoService(repo domain.BillingRepository, analytics domain.StatusAnalytics, log *zap.SugaredLogger) *CompensacaoService {
	return &CompensacaoService{repo: repo, analytics: analytics, log: log}
}

// Compensar trata OsCanceled/OsCompensationRequested. Idempotente: uma
// segunda entrega não encontra nada a fazer.
func (s *CompensacaoService) Compensar(ctx context.Context, osID uuid.UUID, motivo string, env events.Envelope) error {
	p, err := s.repo.PagamentoPorOsID(ctx, osID)
	if err != nil {
		if errors.Is(err, domain.ErrPagamentoNaoEncontrado) {
			s.log.Infow("↩️ Compensação sem pagamento para a OS, nada a fazer",
				"osId", osID, "correlationId", env.CorrelationID)
			return nil
		}
		return err
	}

	child := env.Child()
	msg, err := novaMensagemOutbox(osID, domain.EventPaymentReversed, events.PaymentReversed{
		OsID:      osID,
		PaymentID: p.ID,
		Status:    string(domain.PagamentoFalhou),
		Reason:    motivo,
	}, child)
	if err != nil {
		return err
	}

	switch p.Status {
	case domain.PagamentoPendente:
		// Cancelamento antes da captura: falha local + evento, uma transação.
		audit := novaAuditoria(osID, string(domain.PagamentoFalhou), domain.EventPaymentReversed, child)
		if err := s.repo.AtualizarStatusPagamento(ctx, p.ID, domain.PagamentoFalhou, "", msg, audit); err != nil {
			if errors.Is(err, domain.ErrTransicaoInvalida) {
				// Outra entrega compensou primeiro.
				return nil
			}
			return err
		}
		s.log.Infow("↩️ Pagamento pendente cancelado por compensação",
			"osId", osID, "pagamentoId", p.ID, "motivo", motivo,
			"correlationId", env.CorrelationID)
		s.registrarTransicao(ctx, audit)
		return nil

	case domain.PagamentoConfirmado:
		// Sem regressão local: o estorno é responsabilidade de quem consome
		// PaymentReversed. A auditoria registra a compensação e serve de
		// guarda de idempotência para reentregas.
		jaEstornado, verr := s.estornoJaRegistrado(ctx, osID)
		if verr != nil {
			return verr
		}
		if jaEstornado {
			s.log.Infow("↩️ Estorno já solicitado anteriormente, nada a fazer",
				"osId", osID, "pagamentoId", p.ID, "correlationId", env.CorrelationID)
			return nil
		}
		audit := novaAuditoria(osID, string(p.Status), domain.EventPaymentReversed, child)
		if err := s.repo.SalvarOutbox(ctx, msg, &audit); err != nil {
			return err
		}
		s.log.Infow("↩️ Estorno solicitado para pagamento confirmado",
			"osId", osID, "pagamentoId", p.ID, "motivo", motivo,
			"correlationId", env.CorrelationID)
		s.registrarTransicao(ctx, audit)
		return nil

	default:
		// Falhou: já compensado ou nunca capturado.
		s.log.Infow("↩️ Compensação para pagamento já falho, nada a fazer",
			"osId", osID, "pagamentoId", p.ID, "correlationId", env.CorrelationID)
		return nil
	}
}

func (s *CompensacaoService) estornoJaRegistrado(ctx context.Context, osID uuid.UUID) (bool, error) {
	trilha, err := s.repo.ListarAtualizacoesStatus(ctx, osID)
	if err != nil {
		return false, err
	}
	for _, a := range trilha {
		if a.EventType == domain.EventPaymentReversed {
			return true, nil
		}
	}
	return false, nil
}

func (s *CompensacaoService) registrarTransicao(ctx context.Context, a domain.AtualizacaoStatusOs) {
	if s.analytics == nil {
		return
	}
	if err := s.analytics.RegistrarTransicao(ctx, a); err != nil {
		s.log.Warnw("⚠️ Falha ao registrar transição no sink analítico", "osId", a.OsID, "erro", err)
	}
}
