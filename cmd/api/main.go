package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/marketcart/api/internal/di"
	"github.com/marketcart/api/internal/handlers"
	"github.com/marketcart/api/internal/payments"
	"github.com/marketcart/api/internal/platform/auth"
	"github.com/marketcart/api/internal/platform/config"
	pfirestore "github.com/marketcart/api/internal/platform/firestore"
	"github.com/marketcart/api/internal/platform/jobs"
	"github.com/marketcart/api/internal/platform/observability"
	"github.com/marketcart/api/internal/platform/secrets"
	"github.com/marketcart/api/internal/repositories"
	firestoreRepo "github.com/marketcart/api/internal/repositories/firestore"
)

const (
	eventProducer          = "marketcart-api"
	callbackRatePerMinute  = 120
	shutdownTimeout        = 10 * time.Second
	dependencyCloseTimeout = 5 * time.Second
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	resolver, err := newSecretResolver(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret resolver", zap.Error(err))
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(resolver.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	publisher, publisherCheck, err := newEventPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("event publisher close error", zap.Error(err))
		}
	}()

	registryOpts := []firestoreRepo.RegistryOption{
		firestoreRepo.WithHealthEnvironment(buildInfo.Environment),
	}
	if publisherCheck != nil {
		registryOpts = append(registryOpts, firestoreRepo.WithHealthChecks(*publisherCheck))
	}
	registry, err := firestoreRepo.NewRegistry(pfirestore.NewProvider(cfg.Firestore), registryOpts...)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	metrics, err := observability.NewMetrics(otel.GetMeterProvider().Meter("github.com/marketcart/api"))
	if err != nil {
		logger.Warn("metrics disabled", zap.Error(err))
		metrics = nil
	}

	paymentManager, err := newPaymentManager(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise payment providers", zap.Error(err))
	}

	eventLogger := observability.EventLogger(logger.Named("services"))
	container, err := di.NewContainer(ctx, cfg, registry,
		di.WithPaymentGateway(paymentManager),
		di.WithMetrics(metrics),
		di.WithLogger(eventLogger),
	)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), dependencyCloseTimeout)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	relay, err := jobs.NewOutboxRelay(jobs.OutboxRelayDeps{
		Outbox:      registry.Outbox(),
		Publisher:   publisher,
		Interval:    cfg.Outbox.PollInterval,
		BatchSize:   cfg.Outbox.BatchSize,
		MaxAttempts: cfg.Outbox.MaxAttempts,
		Metrics:     metrics,
		Logger:      observability.EventLogger(logger.Named("outbox")),
	})
	if err != nil {
		logger.Fatal("failed to initialise outbox relay", zap.Error(err))
	}

	relayCtx, relayCancel := context.WithCancel(ctx)
	var relayWG sync.WaitGroup
	relayWG.Add(1)
	go func() {
		defer relayWG.Done()
		if err := relay.Run(relayCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("outbox relay stopped", zap.Error(err))
		}
	}()

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	svc := container.Services
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Checkout, svc.Lifecycle, svc.Cancellations)
	sellerHandlers := handlers.NewSellerHandlers(authenticator, svc.Lifecycle, svc.Cancellations)
	shipperHandlers := handlers.NewShipperHandlers(authenticator, svc.Lifecycle, svc.Cancellations)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, svc.Checkout,
		handlers.WithCallbackLimiter(handlers.NewCallbackRateLimiter(callbackRatePerMinute, nil)),
	)
	reviewHandlers := handlers.NewReviewHandlers(authenticator, svc.Reviews)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthRepository(registry.Health()),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(traceProjectID(cfg)),
			observability.RecoveryMiddleware(logger),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithSellerRoutes(sellerHandlers.Routes),
		handlers.WithShipperRoutes(shipperHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithProductRoutes(reviewHandlers.Routes),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("marketcart api listening", zap.String("environment", buildInfo.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	relayCancel()
	relayWG.Wait()
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

// newSecretResolver builds the resolver from raw environment values, before config.Load needs it.
func newSecretResolver(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Resolver, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("API_SECRET_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallback := lookup("API_SECRET_FALLBACK_FILE")
	if fallback == "" {
		fallback = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallback),
		secrets.WithMeter(otel.GetMeterProvider().Meter("github.com/marketcart/api/secrets")),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if ttl := lookup("API_SECRET_CACHE_TTL"); ttl != "" {
		if parsed, err := time.ParseDuration(ttl); err == nil {
			opts = append(opts, secrets.WithCacheTTL(parsed))
		}
	}
	if creds := lookup("API_FIREBASE_CREDENTIALS_FILE"); creds != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(creds)))
	}
	return secrets.NewResolver(ctx, opts...)
}

func requiredSecretNames(env map[string]string) []string {
	provider := strings.ToLower(strings.TrimSpace(env["API_PSP_PROVIDER"]))
	if provider == "" || provider == "stripe" {
		return []string{"PSP.StripeAPIKey"}
	}
	return nil
}

func newPaymentManager(cfg config.Config, logger *zap.Logger) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider)
	if key := strings.TrimSpace(cfg.PSP.StripeAPIKey); key != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: key,
			Logger: payments.StripeLogger(observability.EventLogger(logger.Named("stripe"))),
		})
		if err != nil {
			return nil, err
		}
		providers["stripe"] = stripeProvider
	}
	return payments.NewManager(providers,
		payments.WithDefaultProvider(cfg.PSP.Provider),
		payments.WithTimeout(cfg.PSP.Timeout),
	)
}

// newEventPublisher selects the outbox transport and returns a readiness check for it when the
// transport has a remote dependency.
func newEventPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (jobs.EventPublisher, *repositories.DependencyCheck, error) {
	events := cfg.Events
	switch events.Driver {
	case config.EventsDriverPubSub:
		project := strings.TrimSpace(events.PubSub.ProjectID)
		if project == "" {
			project = strings.TrimSpace(cfg.Firestore.ProjectID)
		}
		var opts []option.ClientOption
		if host := strings.TrimSpace(events.PubSub.EmulatorHost); host != "" {
			opts = append(opts,
				option.WithEndpoint(host),
				option.WithoutAuthentication(),
				option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		client, err := pubsub.NewClient(ctx, project, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub client: %w", err)
		}
		publisher, err := jobs.NewPubSubEventPublisher(client, events.TopicPrefix)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return closerChain{publisher, client.Close}, nil, nil
	case config.EventsDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     events.Redis.Addr,
			Password: events.Redis.Password,
			DB:       events.Redis.DB,
		})
		publisher, err := jobs.NewRedisEventPublisher(client, events.TopicPrefix, eventProducer)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		dep := &repositories.DependencyCheck{
			Name:  "events",
			Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		}
		return closerChain{publisher, client.Close}, dep, nil
	case config.EventsDriverKafka:
		writer := jobs.NewKafkaWriter(events.Kafka.Brokers)
		publisher, err := jobs.NewKafkaEventPublisher(writer, events.TopicPrefix, eventProducer)
		if err != nil {
			_ = writer.Close()
			return nil, nil, err
		}
		return publisher, nil, nil
	default:
		logger.Warn("events: publishing outbox entries to the log only", zap.String("driver", events.Driver))
		return jobs.NewLogEventPublisher(observability.EventLogger(logger.Named("events"))), nil, nil
	}
}

// closerChain closes the publisher before the client it publishes through.
type closerChain struct {
	jobs.EventPublisher
	closeClient func() error
}

func (c closerChain) Close() error {
	return errors.Join(c.EventPublisher.Close(), c.closeClient())
}
