package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/lev1nzz/test-bot-kopilka/internal/bot"
	"github.com/lev1nzz/test-bot-kopilka/internal/config"
	"github.com/lev1nzz/test-bot-kopilka/internal/db"
	"github.com/lev1nzz/test-bot-kopilka/internal/httpapi"
	"github.com/lev1nzz/test-bot-kopilka/internal/ledger"
	"github.com/lev1nzz/test-bot-kopilka/internal/lock"
	"github.com/lev1nzz/test-bot-kopilka/internal/logger"
	"github.com/lev1nzz/test-bot-kopilka/internal/observability"
	"github.com/lev1nzz/test-bot-kopilka/internal/repo"
	"github.com/lev1nzz/test-bot-kopilka/internal/repo/memory"
	"github.com/lev1nzz/test-bot-kopilka/internal/repo/sqlite"
)

func main() {
	cfg := config.MustLoad()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("bot stopped", "error", err)
	}
	log.Info("shutdown")
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	shutdownOTel, err := observability.InitOTel(ctx, log, cfg.OTelEnabled, "savings-bot")
	if err != nil {
		log.Warn("otel init failed (continuing)", "error", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(sctx)
	}()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, err := newLocker(cfg, log)
	if err != nil {
		return err
	}

	engine := ledger.New(store,
		ledger.WithAdmins(cfg.AdminIDs),
		ledger.WithLocker(locker),
		ledger.WithLogger(log),
		ledger.WithMaxRetries(cfg.LedgerMaxRetries),
	)

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("bot init: %w", err)
	}
	botAPI.Debug = false

	h := bot.NewHandler(botAPI, cfg, engine, log)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		h.RunReminderWorker(ctx, cfg.RemindEvery)
		return nil
	})

	g.Go(func() error {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := botAPI.GetUpdatesChan(u)
		defer botAPI.StopReceivingUpdates()

		log.Info("bot started", "username", botAPI.Self.UserName, "storage", cfg.StorageDriver, "lock", cfg.LedgerLock)
		for {
			select {
			case <-ctx.Done():
				return nil
			case upd := <-updates:
				h.HandleUpdate(ctx, upd)
			}
		}
	})

	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httpapi.NewRouter(engine, log),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("http listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, log *logger.Logger) (ledger.Store, func(), error) {
	switch cfg.StorageDriver {
	case "memory":
		log.Warn("memory storage: the ledger is lost on restart")
		return memory.New(), func() {}, nil
	case "postgres":
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := db.ApplyMigrations(ctx, pool, db.Migrations); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		return repo.NewStore(pool), pool.Close, nil
	default:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.Warn("sqlite close", "error", err)
			}
		}, nil
	}
}

func newLocker(cfg config.Config, log *logger.Logger) (lock.Locker, error) {
	if cfg.LedgerLock != "redis" {
		return lock.NewLocal(), nil
	}
	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	l, err := lock.NewRedis(client, lock.DefaultRedisOptions(), log)
	if err != nil {
		return nil, fmt.Errorf("redis lock: %w", err)
	}
	return l, nil
}
