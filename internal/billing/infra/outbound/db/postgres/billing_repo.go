// Package postgres implementa o BillingRepository sobre PostgreSQL
// (modo produção), via driver pgx. Mesmo contrato transacional do
// adapter SQLite: entidade, outbox e auditoria na mesma transação.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
	sharedDomain "github.com/marciocardozodev/oficina-billing/internal/shared/domain"
)

// O driver pgx usa o protocolo estendido, que não aceita múltiplos
// comandos por Exec; o schema é aplicado comando a comando.
var schema = []string{`
CREATE TABLE IF NOT EXISTS orcamento (
	id             UUID PRIMARY KEY,
	os_id          UUID NOT NULL UNIQUE,
	valor          DOUBLE PRECISION NOT NULL,
	email_cliente  TEXT NOT NULL,
	status         TEXT NOT NULL,
	correlation_id UUID NOT NULL,
	causation_id   UUID NOT NULL,
	criado_em      TIMESTAMPTZ NOT NULL,
	atualizado_em  TIMESTAMPTZ NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS pagamento (
	id                  UUID PRIMARY KEY,
	os_id               UUID NOT NULL UNIQUE,
	orcamento_id        UUID NOT NULL,
	valor               DOUBLE PRECISION NOT NULL,
	metodo              TEXT NOT NULL,
	status              TEXT NOT NULL,
	provider_payment_id TEXT NOT NULL DEFAULT '',
	correlation_id      UUID NOT NULL,
	causation_id        UUID NOT NULL,
	criado_em           TIMESTAMPTZ NOT NULL,
	atualizado_em       TIMESTAMPTZ NOT NULL
)`, `
CREATE INDEX IF NOT EXISTS idx_pagamento_provider ON pagamento (provider_payment_id)`, `
CREATE TABLE IF NOT EXISTS outbox (
	id             UUID PRIMARY KEY,
	aggregate_id   TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	payload        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	published      BOOLEAN NOT NULL DEFAULT FALSE,
	published_at   TIMESTAMPTZ,
	correlation_id UUID NOT NULL,
	causation_id   UUID NOT NULL
)`, `
CREATE INDEX IF NOT EXISTS idx_outbox_pendentes ON outbox (published, created_at)`, `
CREATE TABLE IF NOT EXISTS atualizacao_status_os (
	id             UUID PRIMARY KEY,
	os_id          UUID NOT NULL,
	novo_status    TEXT NOT NULL,
	event_type     TEXT NOT NULL DEFAULT '',
	detalhe        TEXT NOT NULL DEFAULT '',
	correlation_id UUID NOT NULL,
	causation_id   UUID NOT NULL,
	atualizado_em  TIMESTAMPTZ NOT NULL
)`, `
CREATE INDEX IF NOT EXISTS idx_atualizacao_os ON atualizacao_status_os (os_id, atualizado_em)`,
}

// InitPostgres abre o pool e aplica o schema.
func InitPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("abrir postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("conectar no postgres: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("aplicar schema postgres: %w", err)
		}
	}
	return db, nil
}

// BillingRepo é a implementação PostgreSQL de domain.BillingRepository.
type BillingRepo struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

var _ domain.BillingRepository = (*BillingRepo)(nil)

func NewBillingRepo(db *sql.DB, log *zap.SugaredLogger) *BillingRepo {
	return &BillingRepo{db: db, log: log}
}

// isUniqueViolation checa o SQLSTATE de violação de unicidade.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ---------- Orçamento ----------

func (r *BillingRepo) CriarOrcamento(ctx context.Context, o *domain.Orcamento, evt sharedDomain.OutboxMessage, audit domain.AtualizacaoStatusOs) (domain.CreateResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Criado, fmt.Errorf("iniciar transação: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orcamento (id, os_id, valor, email_cliente, status, correlation_id, causation_id, criado_em, atualizado_em)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.OsID, o.Valor, o.EmailCliente, string(o.Status),
		o.CorrelationID, o.CausationID, o.CriadoEm, o.AtualizadoEm)
	if isUniqueViolation(err) {
		r.log.Debugw("Orçamento já existia para a OS", "osId", o.OsID)
		return domain.JaExistia, nil
	}
	if err != nil {
		return domain.Criado, fmt.Errorf("inserir orçamento: %w", err)
	}

	if err := insertOutboxTx(ctx, tx, evt); err != nil {
		return domain.Criado, err
	}
	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return domain.Criado, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Criado, fmt.Errorf("confirmar transação: %w", err)
	}
	return domain.Criado, nil
}

func (r *BillingRepo) OrcamentoPorOsID(ctx context.Context, osID uuid.UUID) (*domain.Orcamento, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, os_id, valor, email_cliente, status, correlation_id, causation_id, criado_em, atualizado_em
		FROM orcamento WHERE os_id = $1`, osID)
	return scanOrcamento(row)
}

func (r *BillingRepo) AtualizarStatusOrcamento(ctx context.Context, osID uuid.UUID, de, para domain.StatusOrcamento, evt sharedDomain.OutboxMessage, audit domain.AtualizacaoStatusOs) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("iniciar transação: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orcamento SET status = $1, atualizado_em = $2
		WHERE os_id = $3 AND status = $4`,
		string(para), time.Now().UTC(), osID, string(de))
	if err != nil {
		return fmt.Errorf("atualizar status do orçamento: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return motivoOrcamentoNaoAtualizado(ctx, tx, osID)
	}

	if err := insertOutboxTx(ctx, tx, evt); err != nil {
		return err
	}
	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("confirmar transação: %w", err)
	}
	return nil
}

// A checagem do motivo roda no mesmo querier do update: ler via r.db com
// a transação aberta disputaria o pool com a própria transação.
func motivoOrcamentoNaoAtualizado(ctx context.Context, q querier, osID uuid.UUID) error {
	var existe int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM orcamento WHERE os_id = $1`, osID).Scan(&existe)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrOrcamentoNaoEncontrado
	}
	if err != nil {
		return fmt.Errorf("verificar orçamento: %w", err)
	}
	return domain.ErrTransicaoInvalida
}

// ---------- Pagamento ----------

func (r *BillingRepo) CriarPagamento(ctx context.Context, p *domain.Pagamento, evt sharedDomain.OutboxMessage, audit domain.AtualizacaoStatusOs) (domain.CreateResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Criado, fmt.Errorf("iniciar transação: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pagamento (id, os_id, orcamento_id, valor, metodo, status, provider_payment_id, correlation_id, causation_id, criado_em, atualizado_em)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.OsID, p.OrcamentoID, p.Valor, p.Metodo, string(p.Status),
		p.ProviderPaymentID, p.CorrelationID, p.CausationID, p.CriadoEm, p.AtualizadoEm)
	if isUniqueViolation(err) {
		r.log.Debugw("Pagamento já existia para a OS", "osId", p.OsID)
		return domain.JaExistia, nil
	}
	if err != nil {
		return domain.Criado, fmt.Errorf("inserir pagamento: %w", err)
	}

	if err := insertOutboxTx(ctx, tx, evt); err != nil {
		return domain.Criado, err
	}
	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return domain.Criado, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Criado, fmt.Errorf("confirmar transação: %w", err)
	}
	return domain.Criado, nil
}

func (r *BillingRepo) PagamentoPorOsID(ctx context.Context, osID uuid.UUID) (*domain.Pagamento, error) {
	row := r.db.QueryRowContext(ctx, selectPagamento+` WHERE os_id = $1`, osID)
	return scanPagamento(row)
}

func (r *BillingRepo) PagamentoPorProviderID(ctx context.Context, providerPaymentID string) (*domain.Pagamento, error) {
	row := r.db.QueryRowContext(ctx, selectPagamento+` WHERE provider_payment_id = $1`, providerPaymentID)
	return scanPagamento(row)
}

func (r *BillingRepo) AtualizarStatusPagamento(ctx context.Context, pagamentoID uuid.UUID, para domain.StatusPagamento, providerPaymentID string, evt sharedDomain.OutboxMessage, audit domain.AtualizacaoStatusOs) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("iniciar transação: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE pagamento
		SET status = $1,
		    provider_payment_id = COALESCE(NULLIF($2, ''), provider_payment_id),
		    atualizado_em = $3
		WHERE id = $4 AND status = $5`,
		string(para), providerPaymentID, time.Now().UTC(),
		pagamentoID, string(domain.PagamentoPendente))
	if err != nil {
		return fmt.Errorf("atualizar status do pagamento: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return motivoPagamentoNaoAtualizado(ctx, tx, pagamentoID)
	}

	if err := insertOutboxTx(ctx, tx, evt); err != nil {
		return err
	}
	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("confirmar transação: %w", err)
	}
	return nil
}

func motivoPagamentoNaoAtualizado(ctx context.Context, q querier, pagamentoID uuid.UUID) error {
	var existe int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM pagamento WHERE id = $1`, pagamentoID).Scan(&existe)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrPagamentoNaoEncontrado
	}
	if err != nil {
		return fmt.Errorf("verificar pagamento: %w", err)
	}
	return domain.ErrTransicaoInvalida
}

func (r *BillingRepo) DefinirProviderPaymentID(ctx context.Context, pagamentoID uuid.UUID, providerPaymentID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pagamento SET provider_payment_id = $1, atualizado_em = $2
		WHERE id = $3 AND status = $4`,
		providerPaymentID, time.Now().UTC(), pagamentoID, string(domain.PagamentoPendente))
	if err != nil {
		return fmt.Errorf("gravar provider_payment_id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return motivoPagamentoNaoAtualizado(ctx, r.db, pagamentoID)
	}
	return nil
}

// ---------- Outbox e auditoria ----------

func (r *BillingRepo) SalvarOutbox(ctx context.Context, evt sharedDomain.OutboxMessage, audit *domain.AtualizacaoStatusOs) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("iniciar transação: %w", err)
	}
	defer tx.Rollback()

	if err := insertOutboxTx(ctx, tx, evt); err != nil {
		return err
	}
	if audit != nil {
		if err := insertAuditTx(ctx, tx, *audit); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("confirmar transação: %w", err)
	}
	return nil
}

func (r *BillingRepo) ListarAtualizacoesStatus(ctx context.Context, osID uuid.UUID) ([]domain.AtualizacaoStatusOs, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, os_id, novo_status, event_type, detalhe, correlation_id, causation_id, atualizado_em
		FROM atualizacao_status_os WHERE os_id = $1 ORDER BY atualizado_em ASC`, osID)
	if err != nil {
		return nil, fmt.Errorf("listar atualizações de status: %w", err)
	}
	defer rows.Close()

	var trilha []domain.AtualizacaoStatusOs
	for rows.Next() {
		var a domain.AtualizacaoStatusOs
		if err := rows.Scan(&a.ID, &a.OsID, &a.NovoStatus, &a.EventType, &a.Detalhe, &a.CorrelationID, &a.CausationID, &a.AtualizadoEm); err != nil {
			return nil, fmt.Errorf("ler atualização de status: %w", err)
		}
		trilha = append(trilha, a)
	}
	return trilha, rows.Err()
}

func (r *BillingRepo) FetchUnpublished(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, payload, created_at, published, published_at, correlation_id, causation_id
		FROM outbox WHERE published = FALSE ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("buscar outbox pendente: %w", err)
	}
	defer rows.Close()

	var msgs []sharedDomain.OutboxMessage
	for rows.Next() {
		var m sharedDomain.OutboxMessage
		var payload []byte
		var publishedAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.AggregateID, &m.AggregateType, &m.EventType, &payload,
			&m.CreatedAt, &m.Published, &publishedAt, &m.CorrelationID, &m.CausationID); err != nil {
			return nil, fmt.Errorf("ler linha da outbox: %w", err)
		}
		m.Payload = payload
		if publishedAt.Valid {
			m.PublishedAt = &publishedAt.Time
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *BillingRepo) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET published = TRUE, published_at = $1 WHERE id = $2`,
		publishedAt, id)
	if err != nil {
		return fmt.Errorf("marcar mensagem publicada: %w", err)
	}
	return nil
}

// ---------- helpers ----------

const selectPagamento = `
	SELECT id, os_id, orcamento_id, valor, metodo, status, provider_payment_id, correlation_id, causation_id, criado_em, atualizado_em
	FROM pagamento`

func insertOutboxTx(ctx context.Context, tx *sql.Tx, m sharedDomain.OutboxMessage) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_id, aggregate_type, event_type, payload, created_at, published, published_at, correlation_id, causation_id)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, NULL, $7, $8)`,
		m.ID, m.AggregateID, m.AggregateType, m.EventType, []byte(m.Payload),
		m.CreatedAt, m.CorrelationID, m.CausationID)
	if err != nil {
		return fmt.Errorf("inserir na outbox: %w", err)
	}
	return nil
}

func insertAuditTx(ctx context.Context, tx *sql.Tx, a domain.AtualizacaoStatusOs) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO atualizacao_status_os (id, os_id, novo_status, event_type, detalhe, correlation_id, causation_id, atualizado_em)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.OsID, a.NovoStatus, a.EventType, a.Detalhe, a.CorrelationID, a.CausationID, a.AtualizadoEm)
	if err != nil {
		return fmt.Errorf("inserir auditoria de status: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// querier cobre *sql.DB e *sql.Tx para as leituras de apoio.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func scanOrcamento(row rowScanner) (*domain.Orcamento, error) {
	var o domain.Orcamento
	var status string
	err := row.Scan(&o.ID, &o.OsID, &o.Valor, &o.EmailCliente, &status, &o.CorrelationID, &o.CausationID, &o.CriadoEm, &o.AtualizadoEm)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrcamentoNaoEncontrado
	}
	if err != nil {
		return nil, fmt.Errorf("ler orçamento: %w", err)
	}
	o.Status = domain.StatusOrcamento(status)
	return &o, nil
}

func scanPagamento(row rowScanner) (*domain.Pagamento, error) {
	var p domain.Pagamento
	var status string
	err := row.Scan(&p.ID, &p.OsID, &p.OrcamentoID, &p.Valor, &p.Metodo, &status, &p.ProviderPaymentID, &p.CorrelationID, &p.CausationID, &p.CriadoEm, &p.AtualizadoEm)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPagamentoNaoEncontrado
	}
	if err != nil {
		return nil, fmt.Errorf("ler pagamento: %w", err)
	}
	p.Status = domain.StatusPagamento(status)
	return &p, nil
}
