package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"pixwithdraw/internal/config"
	"pixwithdraw/internal/domain"
	handler "pixwithdraw/internal/handler/http"
	"pixwithdraw/internal/logger"
	"pixwithdraw/internal/service"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.Logger.LoggerLevel, cfg.Logger.Format)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("service stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	queue, err := openQueue(cfg, log)
	if err != nil {
		return err
	}

	sender, closeSender, err := openSender(cfg, log)
	if err != nil {
		queue.Close()
		return err
	}
	defer closeSender()

	scheduler := service.NewScheduler(queue, log)
	notifier := service.NewNotifier(queue, store.withdrawals, store.accounts, store.keys, sender, log)
	svc := service.NewWithdrawalService(
		store.accounts,
		store.withdrawals,
		store.keys,
		store.transactor,
		service.NewTxIDGenerator(store.withdrawals),
		scheduler,
		notifier,
		service.WithLogger(log),
	)

	queue.Register(domain.JobExecuteWithdrawal, svc.HandleScheduledJob)
	queue.Register(domain.JobSendNotification, notifier.HandleNotificationJob)

	queueDone := make(chan struct{})
	go func() {
		defer close(queueDone)
		if err := queue.Run(ctx); err != nil {
			log.Error("job queue failed", "error", err)
			stop()
		}
	}()

	var sweeper *service.DueSweeper
	if cfg.Sweeper.Enabled {
		sweeper = service.NewDueSweeper(store.withdrawals, scheduler, cfg.Sweeper.Schedule, log)
		if err := sweeper.Start(); err != nil {
			stop()
			<-queueDone
			queue.Close()
			return err
		}
	}

	h := handler.NewWithdrawalHandler(svc, cfg.Token.AuthToken, log)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      h.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err = <-serverErr:
		log.Error("http server failed", "error", err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		log.Error("http server shutdown failed", "error", errShutdown)
	}
	if sweeper != nil {
		select {
		case <-sweeper.Stop().Done():
		case <-shutdownCtx.Done():
		}
	}
	select {
	case <-queueDone:
	case <-shutdownCtx.Done():
		log.Warn("job queue did not drain before shutdown timeout")
	}
	queue.Close()

	log.Info("service stopped")
	return err
}
