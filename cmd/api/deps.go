package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"pixwithdraw/internal/config"
	"pixwithdraw/internal/domain"
	"pixwithdraw/internal/mailer"
	"pixwithdraw/internal/port"
	memqueue "pixwithdraw/internal/queue/memory"
	"pixwithdraw/internal/queue/rabbitmq"
	"pixwithdraw/internal/repository/memory"
	"pixwithdraw/internal/repository/migration"
	"pixwithdraw/internal/repository/postgresql"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type storage struct {
	accounts    port.AccountRepository
	withdrawals port.WithdrawalRepository
	keys        port.KeyDetailRepository
	transactor  port.Transactor
	close       func() error
}

func openStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (*storage, error) {
	if cfg.DB.Driver == "memory" {
		store := memory.New()
		for _, raw := range cfg.DB.SeedAccounts {
			id, name, balance, err := parseSeedAccount(raw)
			if err != nil {
				return nil, err
			}
			store.AddAccount(id, name, balance)
			log.Info("seeded account", "account_id", id, "balance", balance.StringFixed(2))
		}
		return &storage{
			accounts:    store.Accounts(),
			withdrawals: store.Withdrawals(),
			keys:        store.KeyDetails(),
			transactor:  store,
			close:       func() error { return nil },
		}, nil
	}

	db, err := sql.Open("postgres", cfg.DB.DatabaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConnection)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConnection)
	db.SetConnMaxLifetime(cfg.DB.ConnectionLifetime)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migration.RunMigrations(db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	database := postgresql.NewDatabase(db, log)
	return &storage{
		accounts:    postgresql.NewAccountRepository(database),
		withdrawals: postgresql.NewWithdrawalRepository(database),
		keys:        postgresql.NewKeyDetailRepository(database),
		transactor:  database,
		close:       db.Close,
	}, nil
}

// parseSeedAccount reads "uuid:name:balance".
func parseSeedAccount(raw string) (uuid.UUID, string, decimal.Decimal, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return uuid.Nil, "", decimal.Zero, fmt.Errorf("seed account %q: want uuid:name:balance", raw)
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, "", decimal.Zero, fmt.Errorf("seed account %q: %w", raw, err)
	}
	balance, err := decimal.NewFromString(parts[2])
	if err != nil || balance.IsNegative() {
		return uuid.Nil, "", decimal.Zero, fmt.Errorf("seed account %q: invalid balance", raw)
	}
	return id, parts[1], balance, nil
}

type jobRunner interface {
	port.JobQueue
	Register(kind domain.JobKind, h port.JobHandler)
	Run(ctx context.Context) error
	Close()
}

func openQueue(cfg *config.Config, log *slog.Logger) (jobRunner, error) {
	if cfg.Queue.Driver == "rabbitmq" {
		q, err := rabbitmq.New(cfg.Queue.AMQPURL, cfg.Queue.Workers, log)
		if err != nil {
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}
		return q, nil
	}
	q := memqueue.New(cfg.Queue.Workers, log)
	q.OnGiveUp(func(job domain.Job, err error) {
		if job.Kind == domain.JobExecuteWithdrawal {
			log.Warn("scheduled withdrawal left for the due sweeper", "withdrawal_id", job.WithdrawalID)
		}
	})
	return q, nil
}

func openSender(cfg *config.Config, log *slog.Logger) (port.NotificationSender, func() error, error) {
	if cfg.Mailer.Driver == "nats" {
		s, err := mailer.NewNatsSender(cfg.Mailer.NatsURL, cfg.Mailer.Subject, cfg.Mailer.From, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to nats: %w", err)
		}
		return s, s.Close, nil
	}
	return mailer.NewLogSender(cfg.Mailer.From, log), func() error { return nil }, nil
}
