// Package gateway integra com o Mercado Pago. O client real fala com a
// API v1 de payments; o mock simula aprovações para desenvolvimento e
// testes sem credenciais.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
)

const baseURL = "https://api.mercadopago.com"

// MercadoPagoGateway é o client HTTP real do provedor.
type MercadoPagoGateway struct {
	httpClient  *http.Client
	accessToken string
	payerEmail  string
	sandbox     bool
	log         *zap.SugaredLogger
}

var _ domain.PaymentGateway = (*MercadoPagoGateway)(nil)

func NewMercadoPagoGateway(accessToken, payerEmail string, sandbox bool, log *zap.SugaredLogger) *MercadoPagoGateway {
	return &MercadoPagoGateway{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		accessToken: accessToken,
		payerEmail:  payerEmail,
		sandbox:     sandbox,
		log:         log,
	}
}

type mpPaymentRequest struct {
	TransactionAmount float64           `json:"transaction_amount"`
	Description       string            `json:"description"`
	PaymentMethodID   string            `json:"payment_method_id"`
	Payer             mpPayer           `json:"payer"`
	Metadata          map[string]string `json:"metadata"`
}

type mpPayer struct {
	Email string `json:"email"`
}

type mpPaymentResponse struct {
	ID       json.Number       `json:"id"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// IniciarPagamento cria o pagamento no provedor. O osId viaja nos
// metadados para a reconciliação por webhook conseguir voltar à OS.
func (g *MercadoPagoGateway) IniciarPagamento(ctx context.Context, osID, orcamentoID uuid.UUID, valor float64, metodo, descricao string) (string, error) {
	reqBody := mpPaymentRequest{
		TransactionAmount: valor,
		Description:       descricao,
		PaymentMethodID:   metodoParaMercadoPago(metodo),
		Payer:             mpPayer{Email: g.payerEmail},
		Metadata: map[string]string{
			"os_id":        osID.String(),
			"orcamento_id": orcamentoID.String(),
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("serializar pagamento: %w", err)
	}
	if g.sandbox {
		g.log.Debugw("🧪 Criando pagamento em sandbox", "osId", osID, "valor", valor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("montar request de pagamento: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.accessToken)
	req.Header.Set("Content-Type", "application/json")
	// O provedor deduplica por esta chave em caso de retry de transporte.
	req.Header.Set("X-Idempotency-Key", uuid.New().String())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chamar mercado pago: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("mercado pago respondeu %d", resp.StatusCode)
	}

	var payment mpPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return "", fmt.Errorf("decodificar resposta do mercado pago: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		g.log.Warnw("🚫 Mercado Pago recusou a criação do pagamento",
			"status", resp.StatusCode, "osId", osID)
		return "", nil
	}
	if payment.Status == "rejected" || payment.Status == "cancelled" {
		return "", nil
	}
	return payment.ID.String(), nil
}

// ConsultarPagamento busca o status atual no provedor; o osId volta dos
// metadados gravados na criação.
func (g *MercadoPagoGateway) ConsultarPagamento(ctx context.Context, providerPaymentID string) (*domain.ProviderPayment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/payments/"+providerPaymentID, nil)
	if err != nil {
		return nil, fmt.Errorf("montar consulta de pagamento: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.accessToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("consultar mercado pago: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mercado pago respondeu %d na consulta de %s", resp.StatusCode, providerPaymentID)
	}

	var payment mpPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return nil, fmt.Errorf("decodificar consulta do mercado pago: %w", err)
	}
	return &domain.ProviderPayment{
		Status: payment.Status,
		OsID:   payment.Metadata["os_id"],
	}, nil
}

// metodoParaMercadoPago traduz o método interno para o id do provedor.
func metodoParaMercadoPago(metodo string) string {
	switch metodo {
	case "PIX":
		return "pix"
	case "BOLETO":
		return "bolbradesco"
	default:
		return "master"
	}
}
