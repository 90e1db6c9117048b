package application

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
	"github.com/marciocardozodev/oficina-billing/internal/shared/events"
)

// maxPassosFluxo limita o loop de ponto fixo. A máquina de estados só
// avança, então qualquer fluxo legítimo converge em poucos passos.
const maxPassosFluxo = 5

// BillingFlow é o orquestrador do fluxo automático de cobrança: a cada
// OsCreated, avalia o estado ATUAL até o ponto fixo
// (Enviado -> aprovar; Aprovado -> iniciar pagamento; senão parar).
// Reentrega de OsCreated apenas retoma o fluxo de onde parou.
type BillingFlow struct {
	orcamentos *OrcamentoService
	pagamentos *PagamentoService
	log        *zap.SugaredLogger
}

func NewBillingFlow(orcamentos *OrcamentoService, pagamentos *PagamentoService, log *zap.SugaredLogger) *BillingFlow {
	return &BillingFlow{orcamentos: orcamentos, pagamentos: pagamentos, log: log}
}

// HandleOsCreated gera o orçamento (idempotente) e roda o auto-fluxo.
func (f *BillingFlow) HandleOsCreated(ctx context.Context, evt events.OsCreated, env events.Envelope) error {
	o, err := f.orcamentos.GerarOrcamento(ctx, evt, env)
	if err != nil {
		return err
	}
	return f.avancar(ctx, o, env)
}

// avancar reavalia o estado corrente do orçamento até não haver mais
// transição automática a fazer.
func (f *BillingFlow) avancar(ctx context.Context, o *domain.Orcamento, env events.Envelope) error {
	for passo := 0; passo < maxPassosFluxo; passo++ {
		switch o.Status {
		case domain.OrcamentoEnviado:
			aprovado, err := f.orcamentos.AprovarOrcamento(ctx, o.OsID, env)
			if errors.Is(err, domain.ErrTransicaoInvalida) {
				// Outra entrega venceu a corrida; recarrega e reavalia.
				atual, lerr := f.orcamentos.BuscarPorOsID(ctx, o.OsID)
				if lerr != nil {
					return lerr
				}
				o = atual
				continue
			}
			if err != nil {
				return err
			}
			o = aprovado

		case domain.OrcamentoAprovado:
			if _, err := f.pagamentos.IniciarPagamento(ctx, o.OsID, env); err != nil {
				return err
			}
			return nil

		default:
			// Rejeitado ou Pendente: nada automático a fazer.
			return nil
		}
	}
	f.log.Warnw("⚠️ Auto-fluxo não convergiu no limite de passos",
		"osId", o.OsID, "status", o.Status, "correlationId", env.CorrelationID)
	return nil
}
