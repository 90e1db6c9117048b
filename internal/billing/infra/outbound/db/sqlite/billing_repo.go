// Package sqlite implementa o BillingRepository sobre SQLite (modo
// local/desenvolvimento). Orçamento, pagamento, outbox e auditoria
// vivem no mesmo arquivo, o que garante a atomicidade exigida pelo
// padrão outbox.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
	sharedDomain "github.com/marciocardozodev/oficina-billing/internal/shared/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS orcamento (
	id             TEXT PRIMARY KEY,
	os_id          TEXT NOT NULL UNIQUE,
	valor          REAL NOT NULL,
	email_cliente  TEXT NOT NULL,
	status         TEXT NOT NULL,
	correlation_id TEXT NOT NULL,
	causation_id   TEXT NOT NULL,
	criado_em      TIMESTAMP NOT NULL,
	atualizado_em  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS pagamento (
	id                  TEXT PRIMARY KEY,
	os_id               TEXT NOT NULL UNIQUE,
	orcamento_id        TEXT NOT NULL,
	valor               REAL NOT NULL,
	metodo              TEXT NOT NULL,
	status              TEXT NOT NULL,
	provider_payment_id TEXT NOT NULL DEFAULT '',
	correlation_id      TEXT NOT NULL,
	causation_id        TEXT NOT NULL,
	criado_em           TIMESTAMP NOT NULL,
	atualizado_em       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pagamento_provider ON pagamento (provider_payment_id);

CREATE TABLE IF NOT EXISTS outbox (
	id             TEXT PRIMARY KEY,
	aggregate_id   TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	payload        BLOB NOT NULL,
	created_at     TIMESTAMP NOT NULL,
	published      INTEGER NOT NULL DEFAULT 0,
	published_at   TIMESTAMP,
	correlation_id TEXT NOT NULL,
	causation_id   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outbox_pendentes ON outbox (published, created_at);

CREATE TABLE IF NOT EXISTS atualizacao_status_os (
	id             TEXT PRIMARY KEY,
	os_id          TEXT NOT NULL,
	novo_status    TEXT NOT NULL,
	event_type     TEXT NOT NULL DEFAULT '',
	detalhe        TEXT NOT NULL DEFAULT '',
	correlation_id TEXT NOT NULL,
	causation_id   TEXT NOT NULL,
	atualizado_em  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_atualizacao_os ON atualizacao_status_os (os_id, atualizado_em);
`

// InitSQLite abre (ou cria) o banco e aplica o schema.
func InitSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("abrir sqlite em %s: %w", path, err)
	}
	// SQLite não lida bem com escritores concorrentes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("aplicar schema sqlite: %w", err)
	}
	return db, nil
}

// BillingRepo é a implementação SQLite de domain.BillingRepository.
type BillingRepo struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

var _ domain.BillingRepository = (*BillingRepo)(nil)

func NewBillingRepo(db *sql.DB, log *zap.SugaredLogger) *BillingRepo {
	return &BillingRepo{db: db, log: log}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID.String(), o.OsID.String(), o.Valor, o.EmailCliente, string(o.Status),
		o.CorrelationID.String(), o.CausationID.String(), o.CriadoEm, o.AtualizadoEm)
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
		FROM orcamento WHERE os_id = ?`, osID.String())
	return scanOrcamento(row)
}

func (r *BillingRepo) AtualizarStatusOrcamento(ctx context.Context, osID uuid.UUID, de, para domain.StatusOrcamento, evt sharedDomain.OutboxMessage, audit domain.AtualizacaoStatusOs) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("iniciar transação: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orcamento SET status = ?, atualizado_em = ?
		WHERE os_id = ? AND status = ?`,
		string(para), time.Now().UTC(), osID.String(), string(de))
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

// motivoOrcamentoNaoAtualizado distingue "não existe" de "status guardado
// não era o esperado" (corrida entre handlers). A consulta roda no mesmo
// querier do update: com o pool limitado a uma conexão, uma leitura via
// r.db enquanto a transação segue aberta ficaria esperando para sempre
// pela conexão que a própria transação segura.
func motivoOrcamentoNaoAtualizado(ctx context.Context, q querier, osID uuid.UUID) error {
	var existe int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM orcamento WHERE os_id = ?`, osID.String()).Scan(&existe)
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.OsID.String(), p.OrcamentoID.String(), p.Valor, p.Metodo,
		string(p.Status), p.ProviderPaymentID, p.CorrelationID.String(), p.CausationID.String(),
		p.CriadoEm, p.AtualizadoEm)
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
	row := r.db.QueryRowContext(ctx, selectPagamento+` WHERE os_id = ?`, osID.String())
	return scanPagamento(row)
}

func (r *BillingRepo) PagamentoPorProviderID(ctx context.Context, providerPaymentID string) (*domain.Pagamento, error) {
	row := r.db.QueryRowContext(ctx, selectPagamento+` WHERE provider_payment_id = ?`, providerPaymentID)
	return scanPagamento(row)
}

func (r *BillingRepo) AtualizarStatusPagamento(ctx context.Context, pagamentoID uuid.UUID, para domain.StatusPagamento, providerPaymentID string, evt sharedDomain.OutboxMessage, audit domain.AtualizacaoStatusOs) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("iniciar transação: %w", err)
	}
	defer tx.Rollback()

	// Só Pendente pode virar terminal; o guard torna a transição
	// forward-only mesmo sob corrida.
	res, err := tx.ExecContext(ctx, `
		UPDATE pagamento
		SET status = ?,
		    provider_payment_id = COALESCE(NULLIF(?, ''), provider_payment_id),
		    atualizado_em = ?
		WHERE id = ? AND status = ?`,
		string(para), providerPaymentID, time.Now().UTC(),
		pagamentoID.String(), string(domain.PagamentoPendente))
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
	err := q.QueryRowContext(ctx, `SELECT 1 FROM pagamento WHERE id = ?`, pagamentoID.String()).Scan(&existe)
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
		UPDATE pagamento SET provider_payment_id = ?, atualizado_em = ?
		WHERE id = ? AND status = ?`,
		providerPaymentID, time.Now().UTC(), pagamentoID.String(), string(domain.PagamentoPendente))
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
		FROM atualizacao_status_os WHERE os_id = ? ORDER BY atualizado_em ASC`, osID.String())
	if err != nil {
		return nil, fmt.Errorf("listar atualizações de status: %w", err)
	}
	defer rows.Close()

	var trilha []domain.AtualizacaoStatusOs
	for rows.Next() {
		var a domain.AtualizacaoStatusOs
		var id, os, correlation, causation string
		if err := rows.Scan(&id, &os, &a.NovoStatus, &a.EventType, &a.Detalhe, &correlation, &causation, &a.AtualizadoEm); err != nil {
			return nil, fmt.Errorf("ler atualização de status: %w", err)
		}
		a.ID = parseUUID(id)
		a.OsID = parseUUID(os)
		a.CorrelationID = parseUUID(correlation)
		a.CausationID = parseUUID(causation)
		trilha = append(trilha, a)
	}
	return trilha, rows.Err()
}

func (r *BillingRepo) FetchUnpublished(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, payload, created_at, published, published_at, correlation_id, causation_id
		FROM outbox WHERE published = 0 ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("buscar outbox pendente: %w", err)
	}
	defer rows.Close()

	var msgs []sharedDomain.OutboxMessage
	for rows.Next() {
		var m sharedDomain.OutboxMessage
		var id, correlation, causation string
		var publishedAt sql.NullTime
		if err := rows.Scan(&id, &m.AggregateID, &m.AggregateType, &m.EventType, &m.Payload,
			&m.CreatedAt, &m.Published, &publishedAt, &correlation, &causation); err != nil {
			return nil, fmt.Errorf("ler linha da outbox: %w", err)
		}
		m.ID = parseUUID(id)
		m.CorrelationID = parseUUID(correlation)
		m.CausationID = parseUUID(causation)
		if publishedAt.Valid {
			m.PublishedAt = &publishedAt.Time
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *BillingRepo) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET published = 1, published_at = ? WHERE id = ?`,
		publishedAt, id.String())
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
		VALUES (?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)`,
		m.ID.String(), m.AggregateID, m.AggregateType, m.EventType, []byte(m.Payload),
		m.CreatedAt, m.CorrelationID.String(), m.CausationID.String())
	if err != nil {
		return fmt.Errorf("inserir na outbox: %w", err)
	}
	return nil
}

func insertAuditTx(ctx context.Context, tx *sql.Tx, a domain.AtualizacaoStatusOs) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO atualizacao_status_os (id, os_id, novo_status, event_type, detalhe, correlation_id, causation_id, atualizado_em)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.OsID.String(), a.NovoStatus, a.EventType, a.Detalhe,
		a.CorrelationID.String(), a.CausationID.String(), a.AtualizadoEm)
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
	var id, os, status, correlation, causation string
	err := row.Scan(&id, &os, &o.Valor, &o.EmailCliente, &status, &correlation, &causation, &o.CriadoEm, &o.AtualizadoEm)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrcamentoNaoEncontrado
	}
	if err != nil {
		return nil, fmt.Errorf("ler orçamento: %w", err)
	}
	o.ID = parseUUID(id)
	o.OsID = parseUUID(os)
	o.Status = domain.StatusOrcamento(status)
	o.CorrelationID = parseUUID(correlation)
	o.CausationID = parseUUID(causation)
	return &o, nil
}

func scanPagamento(row rowScanner) (*domain.Pagamento, error) {
	var p domain.Pagamento
	var id, os, orc, status, correlation, causation string
	err := row.Scan(&id, &os, &orc, &p.Valor, &p.Metodo, &status, &p.ProviderPaymentID, &correlation, &causation, &p.CriadoEm, &p.AtualizadoEm)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPagamentoNaoEncontrado
	}
	if err != nil {
		return nil, fmt.Errorf("ler pagamento: %w", err)
	}
	p.ID = parseUUID(id)
	p.OsID = parseUUID(os)
	p.OrcamentoID = parseUUID(orc)
	p.Status = domain.StatusPagamento(status)
	p.CorrelationID = parseUUID(correlation)
	p.CausationID = parseUUID(causation)
	return &p, nil
}

func parseUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}
