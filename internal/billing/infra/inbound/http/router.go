package http

import (
	"github.com/gin-gonic/gin"
)

// NewRouter monta o roteador HTTP do serviço.
func NewRouter(h *BillingHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), CorrelationMiddleware())

	r.GET("/health", h.Health)

	billing := r.Group("/billing")
	{
		billing.GET("/budgets/:osId", h.GetBudget)
		billing.POST("/budgets/:osId/approve", h.ApproveBudget)
		billing.POST("/budgets/:osId/reject", h.RejectBudget)
		billing.GET("/payments/:osId", h.GetPayment)
		billing.POST("/payments/:osId/start", h.StartPayment)
		billing.GET("/os/:osId/history", h.GetStatusHistory)
		billing.POST("/mercadopago/webhook", h.MercadoPagoWebhook)
	}

	return r
}
