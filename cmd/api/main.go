package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/localeats/api/internal/cache"
	"github.com/localeats/api/internal/di"
	"github.com/localeats/api/internal/handlers"
	"github.com/localeats/api/internal/payments"
	"github.com/localeats/api/internal/platform/auth"
	"github.com/localeats/api/internal/platform/config"
	pfirestore "github.com/localeats/api/internal/platform/firestore"
	"github.com/localeats/api/internal/platform/idempotency"
	"github.com/localeats/api/internal/platform/jobs"
	"github.com/localeats/api/internal/platform/observability"
	"github.com/localeats/api/internal/platform/secrets"
	"github.com/localeats/api/internal/platform/textutil"
	"github.com/localeats/api/internal/repositories"
	firestoreRepo "github.com/localeats/api/internal/repositories/firestore"
	"github.com/localeats/api/internal/services"
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

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	requiredSecrets := requiredSecretNames(envValues)
	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecrets...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	var extraChecks []repositories.DependencyCheck

	var cartCache services.CartCache
	if cfg.Redis.Disabled {
		logger.Info("redis disabled; using in-memory cart cache")
		cartCache = cache.NewMemoryCartCache()
	} else {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		redisCache, err := cache.NewRedisCartCache(cache.RedisCartCacheDeps{
			Client:    redisClient,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.CartTTL,
		})
		if err != nil {
			logger.Fatal("failed to initialise redis cart cache", zap.Error(err))
		}
		cartCache = redisCache
		extraChecks = append(extraChecks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}

	var (
		scheduler services.ExpirationScheduler
		events    services.OrderEventPublisher
	)
	if projectID := strings.TrimSpace(cfg.PubSub.ProjectID); projectID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, projectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		expirationTopic := pubsubClient.Topic(cfg.PubSub.ExpirationTopic)
		defer expirationTopic.Stop()
		scheduler, err = jobs.NewPubSubExpirationScheduler(expirationTopic)
		if err != nil {
			logger.Fatal("failed to initialise expiration scheduler", zap.Error(err))
		}

		eventsTopic := pubsubClient.Topic(cfg.PubSub.OrderEventsTopic)
		defer eventsTopic.Stop()
		events, err = jobs.NewPubSubOrderEventPublisher(eventsTopic, time.Now)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
	} else {
		logger.Warn("pubsub project not configured; payment expiration relies on the periodic sweep")
	}

	registry, err := firestoreRepo.NewRegistry(firestoreRepo.RegistryDeps{
		Provider:    firestoreProvider,
		ExtraChecks: extraChecks,
	})
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	if strings.TrimSpace(cfg.PSP.StripeAPIKey) == "" {
		logger.Fatal("stripe api key is required")
	}
	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey:    cfg.PSP.StripeAPIKey,
		AccountID: cfg.PSP.StripeAccountID,
		Logger:    zapEventLogger(logger.Named("payments")),
		Clock:     time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
	}
	paymentManager, err := payments.NewManager(
		map[string]payments.Provider{"stripe": stripeProvider},
		payments.WithDefaultProvider(cfg.PSP.DefaultProvider),
	)
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	verifier, err := newIdentityVerifier(cfg)
	if err != nil {
		logger.Fatal("failed to initialise identity verifier", zap.Error(err))
	}
	if verifier == nil {
		logger.Warn("identity verification not configured; checkout identity tokens will be rejected")
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.Ports{
		Cache:     cartCache,
		Charges:   paymentManager,
		Scheduler: scheduler,
		Events:    events,
		Verifier:  verifier,
		Logger:    zapEventLogger(logger.Named("services")),
		Build:     buildInfo,
	})
	if err != nil {
		logger.Fatal("failed to assemble container", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg)
	hmacMiddleware := buildHMACMiddleware(logger.Named("auth"), cfg)

	cartHandlers := handlers.NewCartHandlers(container.Services.Cart,
		handlers.WithCartRateLimit(cfg.RateLimits.DefaultPerMinute, time.Minute))
	checkoutHandlers := handlers.NewCheckoutHandlers(container.Services.Checkout)
	orderHandlers := handlers.NewOrderHandlers(container.Services.Orders)
	publicHandlers := handlers.NewPublicHandlers(container.Services.BestSellers)
	webhookHandlers := handlers.NewWebhookHandlers(container.Services.Orders, cfg.PSP.StripeWebhookSecret,
		handlers.WithWebhookLogger(webhookEventLogger(logger.Named("webhooks"))))
	internalHandlers := handlers.NewInternalHandlers(container.Services.Orders, time.Now)
	healthHandlers := handlers.NewHealthHandlers(container.Services.System)

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
		idempotencyMiddleware,
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPublicRoutes(publicHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	} else if hmacMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(hmacMiddleware))
	}

	router := handlers.NewRouter(opts...)
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
		serverLogger.Info("localeats api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// zapEventLogger adapts a zap logger to the event-style logging callback the
// services accept.
func zapEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}

func webhookEventLogger(logger *zap.Logger) func(r *http.Request, event string, fields map[string]any) {
	return func(_ *http.Request, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info("webhook event", zFields...)
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

// identityVerifierAdapter exposes the auth token verifier through the narrow
// contract checkout depends on.
type identityVerifierAdapter struct {
	verifier auth.TokenVerifier
}

func (a identityVerifierAdapter) Verify(ctx context.Context, token string) (string, error) {
	identity, err := a.verifier.VerifyIdentityToken(ctx, token)
	if err != nil {
		return "", err
	}
	return identity.UID, nil
}

func newIdentityVerifier(cfg config.Config) (services.IdentityTokenVerifier, error) {
	opts := make([]auth.JWTVerifierOption, 0, 4)
	switch {
	case strings.TrimSpace(cfg.Identity.JWKSURL) != "":
		opts = append(opts, auth.WithJWKS(auth.NewJWKSCache(cfg.Identity.JWKSURL)))
	case strings.TrimSpace(cfg.Identity.HMACSecret) != "":
		opts = append(opts, auth.WithHMACSecret([]byte(cfg.Identity.HMACSecret)))
	default:
		return nil, nil
	}
	if issuer := strings.TrimSpace(cfg.Identity.Issuer); issuer != "" {
		opts = append(opts, auth.WithIssuer(issuer))
	}
	if audience := strings.TrimSpace(cfg.Identity.Audience); audience != "" {
		opts = append(opts, auth.WithAudience(audience))
	}
	verifier, err := auth.NewJWTVerifier(opts...)
	if err != nil {
		return nil, err
	}
	return identityVerifierAdapter{verifier: verifier}, nil
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	adapter := observability.NewPrintfAdapter(logger)
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter))
	validator := auth.NewOIDCValidator(cache, auth.WithOIDCLogger(adapter))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

func buildHMACMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	secrets := textutil.NormalizeStringMap(cfg.Security.HMAC.Secrets)
	if cfg.Webhooks.SigningSecret != "" {
		if _, ok := secrets["default"]; !ok {
			if secrets == nil {
				secrets = make(map[string]string)
			}
			secrets["default"] = cfg.Webhooks.SigningSecret
		}
	}
	if len(secrets) == 0 {
		return nil
	}

	provider := staticSecretProvider{secrets: secrets}
	nonces := auth.NewInMemoryNonceStore()
	adapter := observability.NewPrintfAdapter(logger)
	validator := auth.NewHMACValidator(provider, nonces,
		auth.WithHMACLogger(adapter),
		auth.WithHMACHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithHMACClockSkew(cfg.Security.HMAC.ClockSkew),
		auth.WithHMACNonceTTL(cfg.Security.HMAC.NonceTTL),
	)

	resolver := internalSecretResolver(secrets)
	return validator.RequireHMACResolver(resolver)
}

type staticSecretProvider struct {
	secrets map[string]string
}

func (p staticSecretProvider) GetSecret(_ context.Context, name string) (string, error) {
	if len(p.secrets) == 0 {
		return "", errors.New("auth: hmac secrets not configured")
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", errors.New("auth: secret name required")
	}
	if secret, ok := p.secrets[key]; ok && secret != "" {
		return secret, nil
	}
	return "", errors.New("auth: secret not found")
}

func internalSecretResolver(secrets map[string]string) func(*http.Request) (string, bool) {
	return func(r *http.Request) (string, bool) {
		path := r.URL.Path
		if idx := strings.Index(path, "/internal/"); idx >= 0 {
			path = path[idx+len("/internal/"):]
		}
		path = strings.Trim(path, "/")
		if path == "" {
			if secret, ok := secrets["default"]; ok && secret != "" {
				return "default", true
			}
			return "", false
		}

		segments := strings.Split(path, "/")
		candidates := make([]string, 0, 3)
		if len(segments) >= 2 {
			candidates = append(candidates, strings.ToLower(strings.Join(segments[:2], "/")))
		}
		if len(segments) >= 1 {
			candidates = append(candidates, strings.ToLower(segments[0]))
		}
		candidates = append(candidates, "default")

		for _, candidate := range candidates {
			if secret, ok := secrets[candidate]; ok && secret != "" {
				return candidate, true
			}
		}
		return "", false
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	projectMap := secretProjectMapFromEnv(env)
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	versionPins := secretVersionPinsFromEnv(env)

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if len(versionPins) > 0 {
		opts = append(opts, secrets.WithVersionPins(versionPins))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func requiredSecretNames(env map[string]string) []string {
	required := []string{
		"PSP.StripeAPIKey",
		"PSP.StripeWebhookSecret",
	}

	hmacRaw := ""
	if env != nil {
		hmacRaw = strings.TrimSpace(env["API_SECURITY_HMAC_SECRETS"])
		if secret := strings.TrimSpace(env["API_IDENTITY_HMAC_SECRET"]); secret != "" {
			required = append(required, "Identity.HMACSecret")
		}
		if secret := strings.TrimSpace(env["API_WEBHOOK_SIGNING_SECRET"]); secret != "" {
			required = append(required, "Webhooks.SigningSecret")
		}
	}
	for _, key := range parseHMACSecretKeys(hmacRaw) {
		required = append(required, fmt.Sprintf("Security.HMAC.Secrets[%s]", key))
	}

	return uniqueStrings(required)
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_PROJECT_IDS"]
	}
	raw = strings.TrimSpace(raw)
	projects := make(map[string]string)
	if raw == "" {
		return projects
	}
	entries := strings.Split(raw, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		envLabel := strings.ToLower(strings.TrimSpace(parts[0]))
		project := strings.TrimSpace(parts[1])
		if envLabel == "" || project == "" {
			continue
		}
		projects[envLabel] = project
	}
	return projects
}

func secretVersionPinsFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_VERSION_PINS"]
	}
	raw = strings.TrimSpace(raw)
	pins := make(map[string]string)
	if raw == "" {
		return pins
	}
	entries := strings.Split(raw, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		ref := strings.TrimSpace(parts[0])
		version := strings.TrimSpace(parts[1])
		if ref == "" || version == "" {
			continue
		}
		var prefix string
		if idx := strings.Index(ref, ":"); idx > 0 {
			schemeSplit := strings.Index(ref, "://")
			if schemeSplit == -1 || idx < schemeSplit {
				prefix = strings.ToLower(strings.TrimSpace(ref[:idx])) + ":"
				ref = strings.TrimSpace(ref[idx+1:])
			}
		}
		if strings.HasPrefix(ref, "sm://") {
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		} else if !strings.HasPrefix(ref, "secret://") {
			ref = "secret://" + ref
		}
		ref = prefix + ref
		pins[ref] = version
	}
	return pins
}

func parseHMACSecretKeys(raw string) []string {
	values := parseKeyValueList(raw)
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, strings.ToLower(key))
	}
	sort.Strings(keys)
	return keys
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result
	}
	entries := strings.Split(raw, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
