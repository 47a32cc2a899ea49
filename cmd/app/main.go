package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-paid-channel/internal/config"
	pg "telegram-paid-channel/internal/infra/db/postgres"
	httpapi "telegram-paid-channel/internal/infra/http"
	"telegram-paid-channel/internal/infra/logging"
	"telegram-paid-channel/internal/infra/metrics"
	"telegram-paid-channel/internal/infra/providers"
	red "telegram-paid-channel/internal/infra/redis"
	"telegram-paid-channel/internal/infra/sched"
	tele "telegram-paid-channel/internal/infra/telegram"
	"telegram-paid-channel/internal/infra/worker"
	"telegram-paid-channel/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		log.Info().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	events := red.NewEventPublisher(redisClient, log)

	// ---- Telegram ----
	bot, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("bot api init failed")
	}
	gate := tele.NewChannelGate(bot, cfg.Bot.ChannelID, log)
	invoices := tele.NewStarsInvoiceSender(bot, log)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	payRepo := pg.NewPaymentRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)

	// ---- Use cases ----
	tiers, err := cfg.TierTable()
	if err != nil {
		log.Fatal().Err(err).Msg("tier table invalid")
	}
	access := usecase.NewAccessController(gate, events, log)
	subUC := usecase.NewSubscriptionUseCase(subRepo, tiers, access, events, tm, log)

	registry := providers.NewRegistry(cfg.Providers, cfg.Server.Timeout, invoices, log)
	log.Info().Strs("providers", registry.Tags()).Msg("payment providers registered")
	pm := usecase.NewPaymentManager(registry, payRepo, subUC, access, events, tm, cfg.Server.Timeout, log)

	// ---- Bot update loop (pre-checkout + stars settlement) ----
	listener := tele.NewPaymentsListener(bot, pm, log)
	go func() {
		if err := listener.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("payments listener stopped")
		}
	}()

	// ---- Workers ----
	wp := worker.NewPool(cfg.Scheduler.Workers, log)
	wp.Start(ctx)
	defer wp.Stop()

	expiry := sched.NewExpiryWorker(cfg.Scheduler.ExpiryInterval, cfg.Scheduler.ExpiryWarnWindow, subUC, log)
	go func() { _ = expiry.Run(ctx, wp) }()
	reconciler := sched.NewPaymentReconciler(pm, cfg.Scheduler.ReconcileInterval, cfg.Scheduler.ReconcileStaleAfter, log)
	go func() { _ = reconciler.Run(ctx, wp) }()

	// ---- HTTP webhook server ----
	srv := httpapi.NewServer(pm, log)
	go func() {
		if err := srv.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
}
