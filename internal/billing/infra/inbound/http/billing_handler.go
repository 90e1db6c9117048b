// Package http expõe a borda HTTP do módulo de cobrança: consulta e
// aprovação manual de orçamento, disparo manual de pagamento e o
// webhook do Mercado Pago.
package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marciocardozodev/oficina-billing/internal/billing/application"
	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
	"github.com/marciocardozodev/oficina-billing/internal/shared/events"
	"github.com/marciocardozodev/oficina-billing/pkg/utils"
)

type BillingHandler struct {
	orcamentos *application.OrcamentoService
	pagamentos *application.PagamentoService
	webhooks   *application.WebhookService
	log        *zap.SugaredLogger
}

func NewBillingHandler(orcamentos *application.OrcamentoService, pagamentos *application.PagamentoService, webhooks *application.WebhookService, log *zap.SugaredLogger) *BillingHandler {
	return &BillingHandler{
		orcamentos: orcamentos,
		pagamentos: pagamentos,
		webhooks:   webhooks,
		log:        log,
	}
}

// GetBudget trata GET /billing/budgets/:osId (cache na frente).
func (h *BillingHandler) GetBudget(c *gin.Context) {
	osID, ok := h.osIDParam(c)
	if !ok {
		return
	}
	o, err := h.orcamentos.BuscarPorOsID(c.Request.Context(), osID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, o)
}

// ApproveBudget trata POST /billing/budgets/:osId/approve.
func (h *BillingHandler) ApproveBudget(c *gin.Context) {
	osID, ok := h.osIDParam(c)
	if !ok {
		return
	}
	o, err := h.orcamentos.AprovarOrcamento(c.Request.Context(), osID, h.envelope(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, o)
}

// RejectBudget trata POST /billing/budgets/:osId/reject.
func (h *BillingHandler) RejectBudget(c *gin.Context) {
	osID, ok := h.osIDParam(c)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)
	if body.Reason == "" {
		body.Reason = "rejeitado manualmente"
	}
	o, err := h.orcamentos.RejeitarOrcamento(c.Request.Context(), osID, body.Reason, h.envelope(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, o)
}

// StartPayment trata POST /billing/payments/:osId/start.
func (h *BillingHandler) StartPayment(c *gin.Context) {
	osID, ok := h.osIDParam(c)
	if !ok {
		return
	}
	p, err := h.pagamentos.IniciarPagamento(c.Request.Context(), osID, h.envelope(c))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusAccepted, p)
}

// GetPayment trata GET /billing/payments/:osId.
func (h *BillingHandler) GetPayment(c *gin.Context) {
	osID, ok := h.osIDParam(c)
	if !ok {
		return
	}
	p, err := h.pagamentos.BuscarPorOsID(c.Request.Context(), osID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, p)
}

// GetStatusHistory trata GET /billing/os/:osId/history (trilha de auditoria).
func (h *BillingHandler) GetStatusHistory(c *gin.Context) {
	osID, ok := h.osIDParam(c)
	if !ok {
		return
	}
	trilha, err := h.orcamentos.ListarAtualizacoes(c.Request.Context(), osID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, trilha)
}

// MercadoPagoWebhook trata POST /billing/mercadopago/webhook. O provedor
// manda os campos por query string ou por corpo JSON, dependendo do
// modo de notificação; aceitamos os dois. Resposta 200 tanto para
// processado quanto para ignorado: 5xx faria o provedor reenviar.
func (h *BillingHandler) MercadoPagoWebhook(c *gin.Context) {
	n := application.NotificacaoProvedor{
		ID:        c.Query("id"),
		Action:    c.Query("action"),
		Type:      c.Query("type"),
		PaymentID: c.Query("data.id"),
	}
	if n.Type == "" && n.PaymentID == "" {
		var body struct {
			ID     string `json:"id"`
			Action string `json:"action"`
			Type   string `json:"type"`
			Data   struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := c.ShouldBindJSON(&body); err == nil {
			n = application.NotificacaoProvedor{
				ID:        body.ID,
				Action:    body.Action,
				Type:      body.Type,
				PaymentID: body.Data.ID,
			}
		}
	}

	if err := h.webhooks.Processar(c.Request.Context(), n); err != nil {
		h.log.Errorw("❌ Falha ao processar webhook", "erro", err,
			"providerEventId", n.ID, "paymentId", n.PaymentID)
		utils.SendInternalServerError(c, "falha ao processar notificação")
		return
	}
	utils.SendSuccess(c, http.StatusOK, gin.H{"received": true})
}

// Health trata GET /health.
func (h *BillingHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *BillingHandler) osIDParam(c *gin.Context) (uuid.UUID, bool) {
	osID, err := domain.ParseOsID(c.Param("osId"))
	if err != nil {
		utils.SendBadRequest(c, "osId inválido")
		return uuid.Nil, false
	}
	return osID, true
}

func (h *BillingHandler) envelope(c *gin.Context) events.Envelope {
	return events.Envelope{
		CorrelationID: CorrelationFrom(c),
		CausationID:   uuid.New(),
		Timestamp:     time.Now().UTC(),
	}
}

func (h *BillingHandler) respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrOrcamentoNaoEncontrado),
		errors.Is(err, domain.ErrPagamentoNaoEncontrado):
		utils.SendNotFound(c, err.Error())
	case errors.Is(err, domain.ErrTransicaoInvalida):
		utils.SendConflict(c, err.Error())
	default:
		h.log.Errorw("❌ Erro inesperado na borda HTTP", "erro", err,
			"path", c.FullPath(), "correlationId", CorrelationFrom(c))
		utils.SendInternalServerError(c, "erro interno")
	}
}
