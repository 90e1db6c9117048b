package http

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderCorrelationID é o header de rastreabilidade aceito e ecoado.
const HeaderCorrelationID = "Correlation-Id"

const ctxKeyCorrelationID = "correlationId"

// CorrelationMiddleware lê o Correlation-Id do request (ou gera um),
// guarda no contexto do gin e ecoa no response.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID, err := uuid.Parse(c.GetHeader(HeaderCorrelationID))
		if err != nil {
			correlationID = uuid.New()
		}
		c.Set(ctxKeyCorrelationID, correlationID)
		c.Header(HeaderCorrelationID, correlationID.String())
		c.Next()
	}
}

// CorrelationFrom recupera o id do contexto do gin.
func CorrelationFrom(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ctxKeyCorrelationID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.New()
}
