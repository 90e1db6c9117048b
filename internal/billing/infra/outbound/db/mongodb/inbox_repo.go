// Package mongodb guarda o inbox de notificações de webhook: um registro
// por id de evento do provedor, com índice único para dedup.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
)

const colecaoInbox = "webhook_inbox"

// Connect abre o client com timeout curto de handshake.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("conectar no mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping no mongodb: %w", err)
	}
	return client, nil
}

// InboxRepo implementa domain.InboxStore sobre MongoDB.
type InboxRepo struct {
	col *mongo.Collection
	log *zap.SugaredLogger
}

var _ domain.InboxStore = (*InboxRepo)(nil)

// NewInboxRepo prepara a coleção e o índice único de dedup.
func NewInboxRepo(ctx context.Context, client *mongo.Client, database string, log *zap.SugaredLogger) (*InboxRepo, error) {
	col := client.Database(database).Collection(colecaoInbox)
	_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "providerEventId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("criar índice do inbox: %w", err)
	}
	return &InboxRepo{col: col, log: log}, nil
}

func (r *InboxRepo) JaProcessada(ctx context.Context, providerEventID string) (bool, error) {
	err := r.col.FindOne(ctx, bson.M{"providerEventId": providerEventID}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consultar inbox: %w", err)
	}
	return true, nil
}

func (r *InboxRepo) Registrar(ctx context.Context, n domain.NotificacaoWebhook) error {
	_, err := r.col.InsertOne(ctx, bson.M{
		"providerEventId": n.ProviderEventID,
		"action":          n.Action,
		"paymentId":       n.PaymentID,
		"recebidaEm":      n.RecebidaEm,
	})
	if mongo.IsDuplicateKeyError(err) {
		// Corrida entre entregas do mesmo webhook: já registrado serve.
		return nil
	}
	if err != nil {
		return fmt.Errorf("registrar no inbox: %w", err)
	}
	return nil
}
