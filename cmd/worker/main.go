package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/promo-storefront/internal/app"
	"github.com/noah-isme/promo-storefront/internal/checkout"
	"github.com/noah-isme/promo-storefront/internal/config"
	"github.com/noah-isme/promo-storefront/internal/events"
	"github.com/noah-isme/promo-storefront/internal/notify"
	"github.com/noah-isme/promo-storefront/internal/obs"
	"github.com/noah-isme/promo-storefront/internal/payment"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.Open(startCtx, cfg, "promo-storefront-worker", logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	gatewayAPI := app.NewUpstream("payment-gateway", cfg.Gateway.URL, cfg.Gateway.Timeout, cfg.Outbound, logger)
	gatewayAPI.Decorate = payment.GatewayConfig{
		Username: cfg.Gateway.Username,
		Password: cfg.Gateway.Password,
		AppKey:   cfg.Gateway.AppKey,
	}.Authenticate()

	mailer := notify.LogSender{Logger: &logger}
	bus := &events.Bus{
		Store: events.NewStore(deps.DB),
		Notifiers: []events.Notifier{
			notify.OpsNotifier{Mail: mailer, To: cfg.NotifyOpsEmail, Enabled: cfg.NotifyOpsEmail != ""},
		},
	}

	attempts := checkout.NewStore(deps.DB)
	sweepEvery := envDuration("CHECKOUT_SWEEP_INTERVAL", 5*time.Minute)
	compensator := checkout.AsynqCompensator{
		Client:   deps.TaskClient,
		MaxRetry: cfg.Checkout.CompensationMaxRetry,
		Queue:    checkout.QueueCompensation,
	}

	mux := asynq.NewServeMux()
	mux.Handle(checkout.TypeVoidCharge, checkout.VoidHandler{
		Attempts: attempts,
		Gateway:  payment.HTTPGateway{API: gatewayAPI},
		Events:   bus,
		Logger:   logger,
	})
	mux.Handle(checkout.TypeSweepOrphans, checkout.Sweeper{
		Attempts:    attempts,
		Compensator: compensator,
		MinAge:      envDuration("CHECKOUT_SWEEP_MIN_AGE", 2*time.Minute),
		Batch:       100,
		Logger:      logger,
	})

	srv := asynq.NewServer(deps.RedisConn, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues: map[string]int{
			checkout.QueueCompensation: 6,
			"default":                  3,
		},
		RetryDelayFunc:  asynq.DefaultRetryDelayFunc,
		ShutdownTimeout: envDuration("WORKER_SHUTDOWN_TIMEOUT", 30*time.Second),
		Logger:          asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			evt := logger.Warn()
			if retried >= maxRetry {
				evt = logger.Error()
			}
			evt.Err(err).Str("task_type", task.Type()).Int("retried", retried).Int("max_retry", maxRetry).Msg("task failed")
		}),
	})

	scheduler := asynq.NewScheduler(deps.RedisConn, &asynq.SchedulerOpts{
		Logger: asynqLogger{logger: logger},
		EnqueueErrorHandler: func(task *asynq.Task, _ []asynq.Option, err error) {
			logger.Warn().Err(err).Str("task_type", task.Type()).Msg("scheduled task enqueue failed")
		},
	})
	if _, err := scheduler.Register(
		fmt.Sprintf("@every %s", sweepEvery),
		asynq.NewTask(checkout.TypeSweepOrphans, nil),
		asynq.Queue(checkout.QueueCompensation),
		asynq.MaxRetry(0),
		asynq.Unique(sweepEvery),
	); err != nil {
		logger.Fatal().Err(err).Msg("register orphan sweep")
	}

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Dur("sweep_every", sweepEvery).Msg("worker starting")

	<-ctx.Done()
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }

func envDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(val)); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
