package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	auditadapter "github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/audit"
	cacheadapter "github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/cache"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/chain"
	eventadapter "github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/events"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/facilitator"
	grpcadapter "github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/grpc"
	httpadapter "github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/http"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/memory"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/monitor"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/reputation"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	service    *application.Service
	httpServer *http.Server
	grpcServer *grpc.Server
	outbox     *eventadapter.OutboxWorker
	// inProcessOutbox is set for in-memory storage, where only the API
	// process can see the outbox.
	inProcessOutbox bool
	cleanups        []func()
}

type storage struct {
	Stakes      ports.StakeRepository
	Payments    ports.PaymentRepository
	Balances    ports.BalanceRepository
	Queries     ports.QueryAccessRepository
	Channels    ports.PaymentChannelRepository
	Escrows     ports.EscrowRepository
	Campaigns   ports.CampaignRepository
	Idempotency ports.IdempotencyRepository
	Outbox      ports.OutboxRepository
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)
	logger.Info("bootstrapping m42 trust layer service", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	rt := &Runtime{cfg: cfg, logger: logger}
	if err := rt.wire(ctx); err != nil {
		rt.cleanup()
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) wire(ctx context.Context) error {
	cfg := r.cfg
	maxBudget, err := domain.ParseAmount(cfg.MaxCampaignBudget)
	if err != nil {
		return fmt.Errorf("max campaign budget: %w", err)
	}
	basePrice, err := domain.ParseAmount(cfg.BaseQueryPrice)
	if err != nil {
		return fmt.Errorf("base query price: %w", err)
	}

	store, err := r.openStorage(ctx)
	if err != nil {
		return err
	}
	scoreCache, err := r.openScoreCache(ctx)
	if err != nil {
		return err
	}

	var ledger ports.TokenLedgerPort
	verifiers := make([]ports.PaymentFacilitatorPort, 0, 3)
	if cfg.FacilitatorURL != "" {
		verifiers = append(verifiers, facilitator.NewHTTPClient(facilitator.HTTPClientConfig{
			BaseURL:    cfg.FacilitatorURL,
			APIKey:     cfg.FacilitatorAPIKey,
			HTTPClient: &http.Client{Timeout: cfg.ExternalCallTimeout},
		}))
	}
	if cfg.ChainRPCURL != "" {
		evm, err := chain.DialEVMTokenLedger(ctx, chain.EVMConfig{
			RPCURL:          cfg.ChainRPCURL,
			ContractAddress: cfg.ChainLedgerContract,
			PrivateKeyHex:   cfg.ChainSignerKey,
			ChainID:         cfg.ChainID,
		})
		if err != nil {
			return fmt.Errorf("connect chain ledger: %w", err)
		}
		r.cleanups = append(r.cleanups, evm.Close)
		ledger = evm
		verifiers = append(verifiers, facilitator.NewOnChainVerifier(evm.Client()))
	} else {
		r.logger.Warn("no chain rpc configured, using simulated token ledger")
		ledger = chain.NewSimulatedLedger()
	}
	verifiers = append(verifiers, facilitator.NewSignatureVerifier())

	var signals ports.ReputationSignalPort
	if cfg.ReputationAddr != "" {
		client, err := reputation.DialGRPC(cfg.ReputationAddr)
		if err != nil {
			return err
		}
		r.cleanups = append(r.cleanups, func() { _ = client.Close() })
		signals = client
	} else {
		signals = reputation.NewStatic(nil)
	}

	var publisher ports.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaDefaultTopic, map[string]string{
			domain.EventAuditEvidence: "trust.audit",
		})
		if err != nil {
			return fmt.Errorf("init kafka publisher: %w", err)
		}
		r.cleanups = append(r.cleanups, func() { _ = kafka.Close() })
		publisher = kafka
	} else {
		publisher = eventadapter.NewLoggingPublisher(r.logger)
	}

	r.service = application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:           cfg.ServiceID,
			IdempotencyTTL:        cfg.IdempotencyTTL,
			ExternalCallTimeout:   cfg.ExternalCallTimeout,
			ProofMaxAge:           cfg.ProofMaxAge,
			TrustCacheTTL:         cfg.TrustCacheTTL,
			TreasuryAccount:       cfg.TreasuryAccount,
			BaseQueryPrice:        basePrice,
			MaxCampaignBudget:     maxBudget,
			SettlementConcurrency: cfg.SettlementConcurrency,
		},
		Stakes:      store.Stakes,
		Payments:    store.Payments,
		Balances:    store.Balances,
		Queries:     store.Queries,
		Channels:    store.Channels,
		Escrows:     store.Escrows,
		Campaigns:   store.Campaigns,
		Idempotency: store.Idempotency,
		Outbox:      store.Outbox,
		Ledger:      ledger,
		Facilitator: facilitator.NewChain(verifiers...),
		Reputation:  signals,
		Audit:       auditadapter.NewOutboxPublisher(store.Outbox, cfg.ServiceID),
		Monitor:     monitor.NewStatic(),
		ScoreCache:  scoreCache,
	})

	var tokens ports.TokenVerifier
	if cfg.JWTSecret != "" {
		verifier, err := security.NewHMACVerifier(cfg.JWTSecret, cfg.JWTIssuer)
		if err != nil {
			return fmt.Errorf("init jwt verifier: %w", err)
		}
		tokens = verifier
	} else {
		r.logger.Warn("no jwt secret configured, trusting bearer subject and X-Actor-Role headers")
	}

	r.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(httpadapter.NewHandler(r.service, tokens)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.grpcServer = grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(r.grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(r.grpcServer, grpcadapter.NewTrustInternalServer(r.service))

	r.outbox = eventadapter.NewOutboxWorker(
		r.logger,
		store.Outbox,
		publisher,
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		cfg.OutboxMaxRetries,
	)
	return nil
}

func (r *Runtime) openStorage(ctx context.Context) (storage, error) {
	if r.cfg.DatabaseURL == "" {
		r.logger.Warn("no database configured, using in-memory repositories")
		r.inProcessOutbox = true
		repos := memory.NewRepositories()
		return storage{
			Stakes:      repos.Stakes,
			Payments:    repos.Payments,
			Balances:    repos.Balances,
			Queries:     repos.Queries,
			Channels:    repos.Channels,
			Escrows:     repos.Escrows,
			Campaigns:   repos.Campaigns,
			Idempotency: repos.Idempotency,
			Outbox:      repos.Outbox,
		}, nil
	}
	db, err := postgres.Connect(ctx, r.cfg.DatabaseURL, r.cfg.MaxDBConns)
	if err != nil {
		return storage{}, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return storage{}, fmt.Errorf("gorm sql db: %w", err)
	}
	r.cleanups = append(r.cleanups, func() { _ = sqlDB.Close() })
	if err := postgres.RunMigrations(ctx, db); err != nil {
		return storage{}, fmt.Errorf("run migrations: %w", err)
	}
	repos := postgres.NewRepositories(db)
	return storage{
		Stakes:      repos.Stakes,
		Payments:    repos.Payments,
		Balances:    repos.Balances,
		Queries:     repos.Queries,
		Channels:    repos.Channels,
		Escrows:     repos.Escrows,
		Campaigns:   repos.Campaigns,
		Idempotency: repos.Idempotency,
		Outbox:      repos.Outbox,
	}, nil
}

func (r *Runtime) openScoreCache(ctx context.Context) (ports.TrustScoreCache, error) {
	if r.cfg.RedisURL == "" {
		return cacheadapter.NewMemoryTrustScoreCache(nil), nil
	}
	client, err := cacheadapter.Connect(ctx, r.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	r.cleanups = append(r.cleanups, func() { _ = client.Close() })
	return cacheadapter.NewRedisTrustScoreCache(client), nil
}

// Service exposes the wired application service.
func (r *Runtime) Service() *application.Service { return r.service }

func (r *Runtime) cleanup() {
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		r.cleanups[i]()
	}
	r.cleanups = nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		r.cleanup()
		return fmt.Errorf("listen gRPC: %w", err)
	}

	errCh := make(chan error, 3)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", lis.Addr().String())
		if err := r.grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	if r.inProcessOutbox {
		go func() {
			r.logger.Info("in-process outbox worker started")
			if err := r.outbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("outbox worker: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanup()
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if r.inProcessOutbox {
		r.logger.Warn("worker started without a database; it only drains its own in-memory outbox")
	}
	r.logger.Info("outbox worker started")
	err := r.outbox.Run(ctx)
	r.cleanup()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
