package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/promo-storefront/internal/app"
	"github.com/noah-isme/promo-storefront/internal/auth"
	"github.com/noah-isme/promo-storefront/internal/cart"
	"github.com/noah-isme/promo-storefront/internal/catalog"
	"github.com/noah-isme/promo-storefront/internal/checkout"
	"github.com/noah-isme/promo-storefront/internal/common"
	"github.com/noah-isme/promo-storefront/internal/config"
	"github.com/noah-isme/promo-storefront/internal/events"
	"github.com/noah-isme/promo-storefront/internal/health"
	"github.com/noah-isme/promo-storefront/internal/lock"
	"github.com/noah-isme/promo-storefront/internal/notify"
	"github.com/noah-isme/promo-storefront/internal/obs"
	"github.com/noah-isme/promo-storefront/internal/order"
	"github.com/noah-isme/promo-storefront/internal/payment"
	"github.com/noah-isme/promo-storefront/internal/pricing"
	"github.com/noah-isme/promo-storefront/internal/ratelimit"
	"github.com/noah-isme/promo-storefront/internal/security"
	"github.com/noah-isme/promo-storefront/internal/user"
)

const serviceName = "promo-storefront-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	tracingEnabled := cfg.Obs.EnableTracing
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   serviceName,
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: cfg.Obs.TracingSamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.Open(startCtx, cfg, serviceName, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	if envBool("DB_AUTO_MIGRATE", true) {
		if err := app.RunMigrations(cfg.DatabaseURL, logger); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           newRouter(cfg, deps, logger, tracingEnabled),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("draining")
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), envDurationMillis("HTTP_SHUTDOWN_TIMEOUT_MS", 30000))
	defer cancelDrain()
	if err := srv.Shutdown(drainCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func newRouter(cfg *config.Config, deps *app.Dependencies, logger zerolog.Logger, tracingEnabled bool) http.Handler {
	engine := pricing.NewEngine(cfg.Pricing)

	catalogAPI := app.NewUpstream("catalog", cfg.BackendBaseURL, 0, cfg.Outbound, logger)
	catalogAPI.ForwardToken = true
	cartAPI := app.NewUpstream("cart", cfg.BackendBaseURL, 0, cfg.Outbound, logger)
	cartAPI.ForwardToken = true
	addressAPI := app.NewUpstream("address", cfg.BackendBaseURL, 0, cfg.Outbound, logger)
	addressAPI.ForwardToken = true
	orderAPI := app.NewUpstream("order", cfg.BackendBaseURL, 0, cfg.Outbound, logger)
	orderAPI.ForwardToken = true
	gatewayAPI := app.NewUpstream("payment-gateway", cfg.Gateway.URL, cfg.Gateway.Timeout, cfg.Outbound, logger)
	gatewayAPI.Decorate = payment.GatewayConfig{
		Username: cfg.Gateway.Username,
		Password: cfg.Gateway.Password,
		AppKey:   cfg.Gateway.AppKey,
	}.Authenticate()

	catalogSvc := &catalog.Service{
		API:    catalogAPI,
		Cache:  catalog.NewCache(deps.Redis, cfg.CatalogCacheTTL),
		Engine: engine,
		Logger: &logger,
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogSvc})

	cartSvc := &cart.Service{Carts: cart.Client{API: cartAPI}, Catalog: catalogSvc, Engine: engine}
	cartHandler := &cart.Handler{Svc: cartSvc}

	book := user.Client{API: addressAPI}
	reconciler := user.Reconciler{Book: book}
	addressHandler := &user.Handler{Book: book, Reconciler: reconciler}

	orders := &order.Client{API: orderAPI}
	orderHandler := &order.Handler{Orders: orders}

	gateway := payment.HTTPGateway{API: gatewayAPI}

	mailer := notify.LogSender{Logger: &logger}
	bus := &events.Bus{
		Store: events.NewStore(deps.DB),
		Notifiers: []events.Notifier{
			notify.EmailNotifier{Mail: mailer, Enabled: true, TopicToggles: map[string]bool{events.TopicOrderCreated: true}},
			notify.OpsNotifier{Mail: mailer, To: cfg.NotifyOpsEmail, Enabled: cfg.NotifyOpsEmail != ""},
		},
	}

	checkoutSvc := &checkout.Service{
		Cart:      cartSvc,
		Addresses: reconciler,
		Gateway:   gateway,
		Orders:    orders,
		Attempts:  checkout.NewStore(deps.DB),
		Locker:    lock.Locker{R: deps.Redis},
		LockTTL:   cfg.Checkout.LockTTL,
		Compensator: checkout.AsynqCompensator{
			Client:   deps.TaskClient,
			MaxRetry: cfg.Checkout.CompensationMaxRetry,
			Queue:    checkout.QueueCompensation,
		},
		Events:   bus,
		Logger:   logger.With().Str("component", "checkout").Logger(),
		Currency: cfg.CurrencyCode,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc}

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		ClockSkew: 30 * time.Second,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token verifier")
	}
	authMiddleware := auth.Middleware{Verifier: verifier, AccessCookie: envOrDefault("AUTH_ACCESS_COOKIE", "")}

	idem := common.Idem{R: deps.Redis, TTL: cfg.Checkout.IdempotencyTTL}
	checkoutLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: deps.Redis, Prefix: "ratelimit:"},
		Config: ratelimit.Config{
			Key:    ratelimit.UserKey("checkout"),
			Window: cfg.Limits.CheckoutRateLimitWindow,
			Max:    cfg.Limits.CheckoutRateLimitMax,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("checkout rate limit unavailable")
		},
	}

	ipLimit := func(next http.Handler) http.Handler { return next }
	if store, err := app.NewLimiterStore(deps.Redis); err != nil {
		logger.Error().Err(err).Msg("initialise rate limiter store")
	} else {
		ipLimit = app.NewIPRateLimit(store, cfg.Limits.RPSPerIP)
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.EnablePrometheus {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", common.IdempotencyHeader},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production", NoStore: true}.Middleware)

	if cfg.Obs.EnablePrometheus {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", ""), envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: deps.DB, redis: deps.Redis},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(ipLimit)
		v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

		v.Group(func(pub chi.Router) {
			pub.Use(authMiddleware.Authenticate)
			pub.Get("/products/{productID}", catalogHandler.Product)
			pub.Get("/products/{productID}/quote", catalogHandler.Quote)
		})

		v.Route("/cart", func(c chi.Router) {
			c.Use(authMiddleware.RequireAuth)
			c.Get("/", cartHandler.Get)
			c.Group(func(g chi.Router) {
				g.Use(idem.Middleware)
				g.Post("/items", cartHandler.AddItem)
				g.Patch("/items/{itemId}", cartHandler.UpdateItem)
				g.Delete("/items/{itemId}", cartHandler.RemoveItem)
			})
		})

		v.Route("/users/me/addresses", func(a chi.Router) {
			a.Use(authMiddleware.RequireAuth)
			a.Get("/", addressHandler.List)
			a.Post("/", addressHandler.Create)
			a.Post("/reconcile", addressHandler.Reconcile)
			a.Route("/{addressID}", func(child chi.Router) {
				child.Patch("/", addressHandler.Update)
				child.Delete("/", addressHandler.Delete)
			})
		})

		v.Route("/checkout", func(c chi.Router) {
			c.Use(authMiddleware.RequireAuth)
			c.Post("/quote", checkoutHandler.Quote)
			c.With(checkoutLimit.Middleware).Post("/", checkoutHandler.Checkout)
			c.Get("/attempts/{attemptId}", checkoutHandler.Attempt)
		})

		v.Group(func(authR chi.Router) {
			authR.Use(authMiddleware.RequireAuth)
			authR.Get("/orders", orderHandler.List)
			authR.Get("/orders/{orderId}", orderHandler.Get)
		})
	})

	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
