package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
	"github.com/marciocardozodev/oficina-billing/internal/shared/events"
	"github.com/marciocardozodev/oficina-billing/pkg/utils"
)

// NotificacaoProvedor é a notificação do Mercado Pago já normalizada
// pelo handler HTTP (campos podem vir de query ou do corpo JSON).
type NotificacaoProvedor struct {
	ID        string `json:"id"`
	Action    string `json:"action"`
	Type      string `json:"type"`
	PaymentID string `json:"paymentId"`
}

// WebhookService reconcilia o estado local com o provedor a partir das
// notificações de webhook. O webhook é apenas um AVISO: o status que
// vale é o consultado no provedor, nunca o que veio no corpo.
type WebhookService struct {
	repo      domain.BillingRepository
	gateway   domain.PaymentGateway
	inbox     domain.InboxStore
	analytics domain.StatusAnalytics
	log       *zap.SugaredLogger
}

// NewWebhookService monta o serviço. inbox e analytics podem ser nil.
func NewWebhookService(repo domain.BillingRepository, gateway domain.PaymentGateway, inbox domain.InboxStore, analytics domain.StatusAnalytics, log *zap.SugaredLogger) *WebhookService {
	return &WebhookService{repo: repo, gateway: gateway, inbox: inbox, analytics: analytics, log: log}
}

// Processar trata uma notificação. Notificação ignorada (tipo não
// suportado, pagamento desconhecido, status sem mudança) retorna nil:
// para o provedor isso é sucesso e não deve ser reenviado.
func (s *WebhookService) Processar(ctx context.Context, n NotificacaoProvedor) error {
	if n.Type != "payment" || n.PaymentID == "" {
		s.log.Infow("📨 Webhook ignorado", "type", n.Type, "action", n.Action, "paymentId", n.PaymentID)
		return nil
	}

	if s.jaProcessada(ctx, n) {
		return nil
	}

	// Consulta o provedor (fonte da verdade) com retry curto.
	var pp *domain.ProviderPayment
	err := utils.Retry(ctx, 3, 500*time.Millisecond, func() error {
		var cerr error
		pp, cerr = s.gateway.ConsultarPagamento(ctx, n.PaymentID)
		return cerr
	})
	if err != nil {
		return err
	}

	novo := domain.MapProviderStatus(pp.Status)
	if novo == domain.PagamentoPendente {
		s.log.Infow("📨 Status do provedor sem mapeamento terminal, nada a fazer",
			"providerPaymentId", n.PaymentID, "providerStatus", pp.Status)
		return nil
	}

	p, err := s.localizarPagamento(ctx, n.PaymentID, pp.OsID)
	if err != nil {
		if errors.Is(err, domain.ErrPagamentoNaoEncontrado) {
			s.log.Warnw("⚠️ Webhook para pagamento desconhecido",
				"providerPaymentId", n.PaymentID, "providerOsId", pp.OsID)
			return nil
		}
		return err
	}

	if p.Status == novo {
		s.log.Infow("📨 Webhook replay, status já reconciliado",
			"pagamentoId", p.ID, "status", p.Status)
		return nil
	}
	if p.Terminal() {
		s.log.Warnw("⚠️ Webhook tenta mudar pagamento terminal, ignorando",
			"pagamentoId", p.ID, "statusAtual", p.Status, "statusProvedor", novo)
		return nil
	}

	// Preserva o CorrelationId original do fluxo de negócio.
	env := events.Envelope{
		CorrelationID: p.CorrelationID,
		CausationID:   p.CausationID,
		Timestamp:     time.Now().UTC(),
	}.Child()

	var audit domain.AtualizacaoStatusOs
	if novo == domain.PagamentoConfirmado {
		msg, merr := novaMensagemOutbox(p.OsID, domain.EventPaymentConfirmed, events.PaymentConfirmed{
			OsID:              p.OsID,
			PaymentID:         p.ID,
			Status:            string(domain.PagamentoConfirmado),
			Amount:            p.Valor,
			ProviderPaymentID: n.PaymentID,
		}, env)
		if merr != nil {
			return merr
		}
		audit = novaAuditoria(p.OsID, string(novo), domain.EventPaymentConfirmed, env)
		if err := s.repo.AtualizarStatusPagamento(ctx, p.ID, novo, n.PaymentID, msg, audit); err != nil {
			return err
		}
	} else {
		msg, merr := novaMensagemOutbox(p.OsID, domain.EventPaymentFailed, events.PaymentFailed{
			OsID:      p.OsID,
			PaymentID: p.ID,
			Status:    string(domain.PagamentoFalhou),
			Reason:    "provedor reportou " + pp.Status,
		}, env)
		if merr != nil {
			return merr
		}
		audit = novaAuditoria(p.OsID, string(novo), domain.EventPaymentFailed, env)
		if err := s.repo.AtualizarStatusPagamento(ctx, p.ID, novo, n.PaymentID, msg, audit); err != nil {
			return err
		}
	}

	s.log.Infow("✅ Pagamento reconciliado via webhook", "osId", p.OsID,
		"pagamentoId", p.ID, "de", p.Status, "para", novo,
		"correlationId", p.CorrelationID)
	if s.analytics != nil {
		if aerr := s.analytics.RegistrarTransicao(ctx, audit); aerr != nil {
			s.log.Warnw("⚠️ Falha ao registrar transição no sink analítico", "osId", p.OsID, "erro", aerr)
		}
	}
	return nil
}

// jaProcessada consulta e registra a notificação no inbox. Best effort:
// falha do inbox nunca bloqueia a reconciliação, porque o no-op por
// status igual já segura replays.
func (s *WebhookService) jaProcessada(ctx context.Context, n NotificacaoProvedor) bool {
	if s.inbox == nil || n.ID == "" {
		return false
	}
	ja, err := s.inbox.JaProcessada(ctx, n.ID)
	if err != nil {
		s.log.Warnw("⚠️ Falha ao consultar inbox de webhooks", "providerEventId", n.ID, "erro", err)
		return false
	}
	if ja {
		s.log.Infow("📨 Webhook duplicado (inbox)", "providerEventId", n.ID)
		return true
	}
	if err := s.inbox.Registrar(ctx, domain.NotificacaoWebhook{
		ProviderEventID: n.ID,
		Action:          n.Action,
		PaymentID:       n.PaymentID,
		RecebidaEm:      time.Now().UTC(),
	}); err != nil {
		s.log.Warnw("⚠️ Falha ao registrar webhook no inbox", "providerEventId", n.ID, "erro", err)
	}
	return false
}

// localizarPagamento busca pelo id do provedor e, em falta, pelo OsId
// informado nos metadados do provedor (pagamentos assíncronos antigos
// podem não ter o provider id gravado ainda).
func (s *WebhookService) localizarPagamento(ctx context.Context, providerPaymentID, providerOsID string) (*domain.Pagamento, error) {
	p, err := s.repo.PagamentoPorProviderID(ctx, providerPaymentID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrPagamentoNaoEncontrado) || providerOsID == "" {
		return nil, err
	}
	osID, perr := domain.ParseOsID(providerOsID)
	if perr != nil {
		return nil, domain.ErrPagamentoNaoEncontrado
	}
	return s.repo.PagamentoPorOsID(ctx, osID)
}
