// Package clickhouse grava as transições de status em um sink analítico
// append-only. Fica fora do caminho quente: falha aqui é apenas logada
// pelo caller.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
)

const ddl = `
CREATE TABLE IF NOT EXISTS billing_status_transitions (
	id             UUID,
	os_id          UUID,
	novo_status    String,
	event_type     String,
	detalhe        String,
	correlation_id UUID,
	causation_id   UUID,
	atualizado_em  DateTime64(3, 'UTC')
) ENGINE = MergeTree()
ORDER BY (os_id, atualizado_em)
`

// StatusRepo implementa domain.StatusAnalytics sobre ClickHouse.
type StatusRepo struct {
	conn driver.Conn
}

var _ domain.StatusAnalytics = (*StatusRepo)(nil)

// NewStatusRepo conecta e garante a tabela.
func NewStatusRepo(ctx context.Context, addr string) (*StatusRepo, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr:        []string{addr},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("conectar no clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping no clickhouse: %w", err)
	}
	if err := conn.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("criar tabela de transições: %w", err)
	}
	return &StatusRepo{conn: conn}, nil
}

func (r *StatusRepo) RegistrarTransicao(ctx context.Context, a domain.AtualizacaoStatusOs) error {
	err := r.conn.AsyncInsert(ctx, `
		INSERT INTO billing_status_transitions
		(id, os_id, novo_status, event_type, detalhe, correlation_id, causation_id, atualizado_em)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, false,
		a.ID, a.OsID, a.NovoStatus, a.EventType, a.Detalhe, a.CorrelationID, a.CausationID, a.AtualizadoEm)
	if err != nil {
		return fmt.Errorf("inserir transição no clickhouse: %w", err)
	}
	return nil
}

// Close encerra a conexão.
func (r *StatusRepo) Close() error {
	return r.conn.Close()
}
