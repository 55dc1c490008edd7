package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"revia/internal/api"
	"revia/internal/audit"
	"revia/internal/config"
	"revia/internal/db"
	"revia/internal/events"
	"revia/internal/metrics"
	"revia/internal/notify"
	"revia/internal/platform"
	"revia/internal/prefs"
	"revia/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("REVIA_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.Telegram.BotToken == "" || cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Fatal().Msg("set telegram.bot_token in config")
	}

	database, err := db.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("create bot error")
	}
	bot.Debug = cfg.Telegram.Debug

	bus := events.NewBus()
	bus.Subscribe(events.TypePermissionGranted, func(e events.Event) {
		logger.Info().Int64("user_id", e.UserID).Msg(e.Message)
	})
	bus.Subscribe(events.TypePermissionRefused, func(e events.Event) {
		logger.Info().Int64("user_id", e.UserID).Msg(e.Message)
	})
	bus.Subscribe(events.TypeReminderFired, func(e events.Event) {
		logger.Info().Int64("user_id", e.UserID).Msg(e.Message)
	})

	telegram := platform.NewTelegram(bot, cfg.Reminders.AppURL, &logger)
	gate := platform.NewGate(telegram, bus, &logger)

	reconciler := prefs.NewReconciler(database, &logger)
	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.RedisCacheTTL() > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		reconciler.UseRedisCache(rdb, cfg.RedisCacheTTL())
	}

	dispatchCfg := notify.DefaultDispatcherConfig()
	if cfg.Reminders.Icon != "" {
		dispatchCfg.Icon = cfg.Reminders.Icon
	}
	if cfg.Reminders.Badge != "" {
		dispatchCfg.Badge = cfg.Reminders.Badge
	}
	dispatchCfg.AutoClose = cfg.AutoClose()
	dispatcher := notify.NewDispatcher(telegram, database, reconciler, dispatchCfg, &logger)

	var email *notify.EmailSender
	if cfg.SMTP.Host != "" {
		mailer := &notify.SMTPMailer{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		}
		email = notify.NewEmailSender(mailer, database, database, cfg.SMTP.RatePerMinute, &logger)
	}

	sched := scheduler.New(gate, reconciler, dispatcher, emailChannel(email), database, &logger)
	sched.UseBus(bus)
	planner := scheduler.NewPlanner(sched, gate, reconciler, &logger)
	planner.SetDefaultLead(time.Duration(cfg.Reminders.LeadMinutes) * time.Minute)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Recover(ctx); err != nil {
		logger.Error().Err(err).Msg("reminder recovery scan failed")
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.API.Enabled {
		if cfg.API.Port == 0 {
			cfg.API.Port = 8080
		}
		exporter := audit.NewExporter(database)
		server := api.NewHTTPServer(cfg.API.Port, cfg.API.APIKey, reconciler, planner, sched, database, exporter, &logger)
		go server.Start(ctx)
	}

	logger.Info().Msg("reminder daemon started")
	<-ctx.Done()
	logger.Info().Msg("reminder daemon stopped")
}

// emailChannel avoids handing the scheduler a non-nil interface holding a
// nil *EmailSender.
func emailChannel(email *notify.EmailSender) scheduler.EmailChannel {
	if email == nil {
		return nil
	}
	return email
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
