package main

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/marciocardozodev/oficina-billing/internal/billing/application"
	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
	inboundEvents "github.com/marciocardozodev/oficina-billing/internal/billing/infra/inbound/events"
	inboundHTTP "github.com/marciocardozodev/oficina-billing/internal/billing/infra/inbound/http"
	"github.com/marciocardozodev/oficina-billing/internal/billing/infra/outbound/analytics/clickhouse"
	"github.com/marciocardozodev/oficina-billing/internal/billing/infra/outbound/cache"
	"github.com/marciocardozodev/oficina-billing/internal/billing/infra/outbound/db/mongodb"
	"github.com/marciocardozodev/oficina-billing/internal/billing/infra/outbound/db/postgres"
	"github.com/marciocardozodev/oficina-billing/internal/billing/infra/outbound/db/sqlite"
	"github.com/marciocardozodev/oficina-billing/internal/billing/infra/outbound/gateway"
	"github.com/marciocardozodev/oficina-billing/internal/config"
	"github.com/marciocardozodev/oficina-billing/internal/shared/infra/broker"
	"github.com/marciocardozodev/oficina-billing/internal/shared/infra/consumer"
	"github.com/marciocardozodev/oficina-billing/internal/shared/infra/platform/bus"
	"github.com/marciocardozodev/oficina-billing/internal/shared/infra/relayer"
	"github.com/marciocardozodev/oficina-billing/pkg/logger"
)

func main() {
	logger.Init()
	log := logger.Sugar()
	defer log.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalw("❌ Erro ao carregar configuração", "erro", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---------- Persistência ----------
	var repo domain.BillingRepository
	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = postgres.InitPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalw("❌ Erro ao inicializar o PostgreSQL", "erro", err)
		}
		repo = postgres.NewBillingRepo(db, log)
		log.Infow("🗄️ Usando PostgreSQL como store de cobrança")
	} else {
		db, err = sqlite.InitSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatalw("❌ Erro ao inicializar o SQLite", "erro", err)
		}
		repo = sqlite.NewBillingRepo(db, log)
		log.Infow("🗄️ Usando SQLite como store de cobrança", "path", cfg.SQLitePath)
	}
	defer db.Close()

	// ---------- Cache de orçamento ----------
	var budgetCache domain.BudgetCache
	if redisCache, err := cache.NewRedisCache(ctx, cfg.RedisAddr); err != nil {
		log.Warnw("⚠️ Redis indisponível, usando cache em memória", "erro", err)
		budgetCache = cache.NewInMemoryCache()
	} else {
		budgetCache = redisCache
		defer redisCache.Close()
		log.Infow("🧠 Cache de orçamento no Redis", "addr", cfg.RedisAddr)
	}

	// ---------- Inbox de webhooks (opcional) ----------
	var inbox domain.InboxStore
	if cfg.MongoURI != "" {
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			log.Warnw("⚠️ MongoDB indisponível, inbox de webhooks desativado", "erro", err)
		} else {
			defer client.Disconnect(context.Background())
			inbox, err = mongodb.NewInboxRepo(ctx, client, cfg.MongoDatabase, log)
			if err != nil {
				log.Warnw("⚠️ Falha ao preparar inbox de webhooks", "erro", err)
				inbox = nil
			} else {
				log.Infow("📥 Inbox de webhooks no MongoDB", "database", cfg.MongoDatabase)
			}
		}
	}

	// ---------- Sink analítico (opcional) ----------
	var analytics domain.StatusAnalytics
	if cfg.ClickHouseAddr != "" {
		sink, err := clickhouse.NewStatusRepo(ctx, cfg.ClickHouseAddr)
		if err != nil {
			log.Warnw("⚠️ ClickHouse indisponível, sink analítico desativado", "erro", err)
		} else {
			analytics = sink
			defer sink.Close()
			log.Infow("📊 Transições de status enviadas ao ClickHouse", "addr", cfg.ClickHouseAddr)
		}
	}

	// ---------- Broker ----------
	var eventBus bus.Broker
	if cfg.UseKafka {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.ConsumerGroup,
			Topic:   domain.TopicoOs,
		})
		defer reader.Close()
		writer := &kafka.Writer{
			Addr:     kafka.TCP(cfg.KafkaBrokers...),
			Balancer: &kafka.Hash{},
		}
		defer writer.Close()
		eventBus = broker.NewKafkaBroker(reader, writer, logger.Logger())
		log.Infow("📡 Broker Kafka", "brokers", cfg.KafkaBrokers, "group", cfg.ConsumerGroup)
	} else {
		eventBus = broker.NewInMemoryBroker(domain.TopicoOs)
		log.Infow("📡 Broker em memória (modo local)")
	}

	// ---------- Gateway de pagamento ----------
	var payGateway domain.PaymentGateway
	if cfg.MPUseMock || cfg.MPAccessToken == "" {
		payGateway = gateway.NewMockGateway(rand.New(rand.NewSource(time.Now().UnixNano())), 0.1, log)
		log.Infow("💳 Gateway de pagamento em modo mock")
	} else {
		payGateway = gateway.NewMercadoPagoGateway(cfg.MPAccessToken, cfg.MPTestEmail, cfg.MPSandbox, log)
		log.Infow("💳 Gateway Mercado Pago", "sandbox", cfg.MPSandbox)
	}

	// ---------- Casos de uso ----------
	cacheTTLSecs := int(cfg.CacheTTL.Seconds())
	orcamentos := application.NewOrcamentoService(repo, budgetCache, analytics, cfg.EmailPadrao, cacheTTLSecs, log)
	pagamentos := application.NewPagamentoService(repo, payGateway, analytics, cfg.MetodoPagamento, log)
	flow := application.NewBillingFlow(orcamentos, pagamentos, log)
	compensacao := application.NewCompensacaoService(repo, analytics, log)
	webhooks := application.NewWebhookService(repo, payGateway, inbox, analytics, log)

	// ---------- Workers ----------
	billingConsumer := inboundEvents.NewBillingConsumer(flow, compensacao, log)
	dispatcher := consumer.NewDispatcher(eventBus, billingConsumer.Handlers(), cfg.ConsumerPeriod, cfg.ConsumerBatch, logger.Logger())
	dispatcher.Start(ctx)

	outboxWorker := relayer.NewOutboxWorker(repo, eventBus, domain.NewRoutingTable(),
		cfg.OutboxPeriod, cfg.OutboxBackoff, cfg.OutboxLimit, logger.Logger())
	outboxWorker.Start(ctx)

	// ---------- HTTP ----------
	handler := inboundHTTP.NewBillingHandler(orcamentos, pagamentos, webhooks, log)
	router := inboundHTTP.NewRouter(handler)
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Infow("🚀 Servidor HTTP iniciado", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("❌ Erro no servidor HTTP", "erro", err)
		}
	}()

	<-ctx.Done()
	log.Infow("🛑 Encerrando o serviço...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("⚠️ Encerramento do HTTP com erro", "erro", err)
	}
	log.Infow("✅ Serviço encerrado.")
}
