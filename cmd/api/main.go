package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"meeting-scheduler/internal/audit"
	"meeting-scheduler/internal/auth"
	"meeting-scheduler/internal/availability"
	"meeting-scheduler/internal/calendar"
	"meeting-scheduler/internal/calls"
	"meeting-scheduler/internal/config"
	"meeting-scheduler/internal/events"
	"meeting-scheduler/internal/httpapi"
	"meeting-scheduler/internal/notify"
	"meeting-scheduler/internal/oauth"
	"meeting-scheduler/internal/orchestrator"
	"meeting-scheduler/internal/reporting"
	"meeting-scheduler/internal/slots"
	"meeting-scheduler/migrations"
	"meeting-scheduler/pkg/logger"
	"meeting-scheduler/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	policy, err := config.LoadPolicy(cfg.Scheduler.PolicyFile, log)
	if err != nil {
		log.Error("policy load failed", "err", err)
		os.Exit(1)
	}
	slotPolicy, err := policy.Slots()
	if err != nil {
		log.Error("policy invalid", "err", err)
		os.Exit(1)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.DB.AutoMigrate {
		if _, err := utils.Migrate(rootCtx, db, migrations.FS, log); err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}
	}

	var locker orchestrator.Locker
	if cfg.RedisEnabled() {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		locker = utils.NewRedisLocker(rdb, "call-run:", cfg.Scheduler.LockTTL)
	} else {
		log.Warn("redis not configured, call runs are not locked across instances")
	}

	mailer, err := newMailer(cfg, log)
	if err != nil {
		log.Error("smtp init failed", "err", err)
		os.Exit(1)
	}

	callRepo := calls.NewPostgresRepo(db)
	credStore := oauth.NewPostgresStore(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db), log)

	guard := oauth.NewGuard(
		credStore,
		oauth.NewGoogleRefresher(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.TokenURL, nil),
		policy.Tokens.Skew,
		log,
	)
	provider := calendar.NewGoogle(calendar.GoogleOptions{Endpoint: cfg.Google.CalendarEndpoint})

	orch := orchestrator.New(orchestrator.Deps{
		Repo:   callRepo,
		Tokens: guard,
		Resolver: availability.NewResolver(guard, provider, callRepo, availability.Options{
			Location:   slotPolicy.Location,
			FetchLimit: policy.Search.FetchLimit,
			Logger:     log,
		}),
		Engine:     slots.NewEngine(slotPolicy),
		Reminders:  policy.ReminderPolicy(),
		Provider:   provider,
		Composer:   notify.NewComposer(cfg.App.PublicURL, slotPolicy.Location),
		Notifier:   notify.NewNotifier(mailer, log),
		Audit:      auditSvc,
		SearchSpan: policy.Search.DefaultSpan,
		Logger:     log,
	})
	sweeper := orchestrator.NewSweeper(callRepo, orch, orchestrator.SweeperOptions{
		Concurrency: cfg.Scheduler.Concurrency,
		Interval:    cfg.Scheduler.SweepInterval,
		RunTimeout:  cfg.Scheduler.RunTimeout,
		Locker:      locker,
		Logger:      log,
	})

	var directory oauth.Directory = credStore
	if cfg.Cache.Enabled {
		directory = oauth.NewCachedDirectory(credStore, cfg.Cache.Size, cfg.Cache.TTL)
	}
	callSvc := calls.NewService(callRepo, directory, calls.Options{
		AllowedDurations: policy.AllowedDurations,
		Logger:           log,
	}).WithAudit(auditSvc)

	busCfg := events.Config{Enabled: cfg.RabbitMQ.Enabled, URI: cfg.RabbitMQ.URI, Queue: cfg.RabbitMQ.Queue}
	publisher, err := events.NewPublisher(busCfg, log)
	if err != nil {
		log.Error("rabbitmq publisher init failed", "err", err)
		os.Exit(1)
	}
	if publisher != nil {
		defer publisher.Close()
		callSvc.WithRunRequester(publisher)

		listener, err := events.NewListener(busCfg, sweeper, log)
		if err != nil {
			log.Error("rabbitmq listener init failed", "err", err)
			os.Exit(1)
		}
		if err := listener.Start(rootCtx); err != nil {
			log.Error("rabbitmq listener start failed", "err", err)
			os.Exit(1)
		}
		defer listener.Stop()
	} else {
		callSvc.WithRunRequester(sweeper)
	}

	if cfg.Scheduler.Disabled {
		log.Info("background sweep disabled")
	} else {
		go sweeper.Loop(rootCtx)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, auth.RequireAccessToken(authManager), httpapi.Handlers{
		Calls:     callSvc,
		Scheduler: sweeper,
		Reports:   reporting.NewService(callRepo),
		Audit:     auditSvc,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A manual sweep can take a while.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	log.Info("shutdown complete")
}

func newMailer(cfg config.Config, log *slog.Logger) (notify.Mailer, error) {
	if !cfg.SMTPEnabled() {
		log.Warn("smtp not configured, emails are logged only")
		return notify.LogMailer{Log: log}, nil
	}
	return notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
}
