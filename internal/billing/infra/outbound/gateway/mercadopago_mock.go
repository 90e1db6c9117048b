package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
)

// MockGateway simula o provedor sem rede: aprova a maior parte dos
// pagamentos e recusa alguns, segundo o gerador injetado. Receber o
// *rand.Rand de fora deixa os testes determinísticos por seed.
type MockGateway struct {
	mu         sync.Mutex
	rnd        *rand.Rand
	taxaRecusa float64
	pagamentos map[string]domain.ProviderPayment
	log        *zap.SugaredLogger
}

var _ domain.PaymentGateway = (*MockGateway)(nil)

// NewMockGateway cria o mock. taxaRecusa em [0,1).
func NewMockGateway(rnd *rand.Rand, taxaRecusa float64, log *zap.SugaredLogger) *MockGateway {
	return &MockGateway{
		rnd:        rnd,
		taxaRecusa: taxaRecusa,
		pagamentos: make(map[string]domain.ProviderPayment),
		log:        log,
	}
}

func (g *MockGateway) IniciarPagamento(_ context.Context, osID, _ uuid.UUID, valor float64, metodo, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rnd.Float64() < g.taxaRecusa {
		g.log.Infow("🧪 Mock: pagamento recusado", "osId", osID, "valor", valor)
		return "", nil
	}

	providerID := fmt.Sprintf("MP-%d", g.rnd.Int63())
	status := "approved"
	if domain.MetodoAssincrono(metodo) {
		// PIX/BOLETO ficam pendentes até o "webhook" (Aprovar nos testes).
		status = "pending"
	}
	g.pagamentos[providerID] = domain.ProviderPayment{Status: status, OsID: osID.String()}
	g.log.Infow("🧪 Mock: pagamento criado", "osId", osID,
		"providerPaymentId", providerID, "status", status)
	return providerID, nil
}

func (g *MockGateway) ConsultarPagamento(_ context.Context, providerPaymentID string) (*domain.ProviderPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.pagamentos[providerPaymentID]
	if !ok {
		return nil, fmt.Errorf("pagamento %s não existe no mock", providerPaymentID)
	}
	return &p, nil
}

// DefinirStatus força o status de um pagamento no mock (simula o
// provedor mudando de ideia entre criação e webhook).
func (g *MockGateway) DefinirStatus(providerPaymentID, status, osID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pagamentos[providerPaymentID] = domain.ProviderPayment{Status: status, OsID: osID}
}
