package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pixwithdraw/internal/domain"
	"pixwithdraw/internal/pixkey"
	"pixwithdraw/internal/port"

	"github.com/google/uuid"
)

var errDebitInterrupted = errors.New("debit interrupted")

const (
	compensationAttempts = 3
	compensationBackoff  = 100 * time.Millisecond
)

type WithdrawalService struct {
	accounts    port.AccountRepository
	withdrawals port.WithdrawalRepository
	keys        port.KeyDetailRepository
	transactor  port.Transactor
	txids       TransactionIDGenerator
	scheduler   WithdrawalScheduler
	notifier    WithdrawalNotifier
	logger      *slog.Logger
	now         func() time.Time
	backoff     time.Duration
}

type Option func(s *WithdrawalService)

func WithLogger(l *slog.Logger) Option {
	return func(s *WithdrawalService) {
		s.logger = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *WithdrawalService) {
		s.now = now
	}
}

func NewWithdrawalService(
	accounts port.AccountRepository,
	withdrawals port.WithdrawalRepository,
	keys port.KeyDetailRepository,
	transactor port.Transactor,
	txids TransactionIDGenerator,
	scheduler WithdrawalScheduler,
	notifier WithdrawalNotifier,
	opts ...Option,
) *WithdrawalService {
	s := &WithdrawalService{
		accounts:    accounts,
		withdrawals: withdrawals,
		keys:        keys,
		transactor:  transactor,
		txids:       txids,
		scheduler:   scheduler,
		notifier:    notifier,
		logger:      slog.Default(),
		now:         time.Now,
		backoff:     compensationBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs a withdrawal end to end. A request carrying WithdrawalID
// re-enters an existing record; any other request creates one.
// Failures are reported in the Result, never as a panic or error.
func (s *WithdrawalService) Execute(ctx context.Context, req domain.WithdrawalRequest) domain.Result {
	if req.Reentry() {
		return s.reenter(ctx, *req.WithdrawalID)
	}
	return s.create(ctx, req)
}

func (s *WithdrawalService) create(ctx context.Context, req domain.WithdrawalRequest) domain.Result {
	now := s.now()

	if violations := ValidateRequest(req, now); len(violations) > 0 {
		return domain.Failed(domain.CodeValidation, "withdrawal request is invalid", violations...)
	}

	account, err := s.accounts.Find(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.Failed(domain.CodeAccountNotFound, "account not found")
		}
		s.logger.Error("failed to load account", "account_id", req.AccountID, "error", err)
		return domain.Failed(domain.CodeProcessingError, "unable to process withdrawal")
	}

	if violations := ValidateBusinessRules(account, req); len(violations) > 0 {
		if hasViolation(violations, domain.ViolationInsufficientBalance) {
			return domain.Failed(domain.CodeInsufficientFunds, "insufficient balance", violations...)
		}
		return domain.Failed(domain.CodeValidation, "withdrawal request is invalid", violations...)
	}

	w, err := s.persist(ctx, req, now)
	if err != nil {
		s.logger.Error("failed to create withdrawal", "account_id", req.AccountID, "error", err)
		return domain.Failed(domain.CodeProcessingError, "unable to process withdrawal")
	}
	s.logger.Info("withdrawal created",
		"withdrawal_id", w.ID, "account_id", w.AccountID, "transaction_id", w.TransactionID,
		"amount", w.Amount.String(), "scheduled", w.Scheduled)

	if w.Scheduled {
		return s.schedule(ctx, w, account, true)
	}
	return s.executeNow(ctx, w, account, true)
}

// persist creates the record and its key detail in one transaction.
func (s *WithdrawalService) persist(ctx context.Context, req domain.WithdrawalRequest, now time.Time) (domain.Withdrawal, error) {
	txID, err := s.txids.Generate(ctx)
	if err != nil {
		return domain.Withdrawal{}, err
	}

	var created domain.Withdrawal
	err = s.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		w, err := s.withdrawals.Create(txCtx, domain.NewWithdrawal(req, txID, now))
		if err != nil {
			return fmt.Errorf("create withdrawal: %w", err)
		}
		if req.Method.RequiresKey() {
			kd, err := s.keys.Create(txCtx, w.ID, req.Key.Type, pixkey.Normalize(req.Key.Type, req.Key.Key), "")
			if err != nil {
				return fmt.Errorf("create key detail: %w", err)
			}
			w.KeyDetail = &kd
		}
		created = w
		return nil
	})
	return created, err
}

func (s *WithdrawalService) reenter(ctx context.Context, id uuid.UUID) domain.Result {
	w, err := s.load(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrWithdrawalNotFound) {
			return domain.Failed(domain.CodeWithdrawalNotFound, "withdrawal not found")
		}
		s.logger.Error("failed to load withdrawal", "withdrawal_id", id, "error", err)
		return domain.Failed(domain.CodeProcessingError, "unable to process withdrawal")
	}

	switch w.Status {
	case domain.StatusCompleted:
		return domain.Succeeded("withdrawal already completed", false, summary(w))
	case domain.StatusNew, domain.StatusPending:
	default:
		s.logger.Warn("withdrawal is not eligible for execution", "withdrawal_id", w.ID, "status", w.Status)
		return domain.Failed(domain.CodeStateConflict,
			fmt.Sprintf("withdrawal is %s and cannot be executed", w.Status)).WithData(summary(w))
	}

	account, err := s.accounts.Find(ctx, w.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.Failed(domain.CodeAccountNotFound, "account not found")
		}
		s.logger.Error("failed to load account", "account_id", w.AccountID, "error", err)
		return domain.Failed(domain.CodeProcessingError, "unable to process withdrawal")
	}

	if !w.DueAt(s.now()) {
		return s.schedule(ctx, w, account, false)
	}
	return s.executeNow(ctx, w, account, false)
}

func (s *WithdrawalService) load(ctx context.Context, id uuid.UUID) (domain.Withdrawal, error) {
	w, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return w, err
	}
	kd, err := s.keys.GetByWithdrawalID(ctx, id)
	switch {
	case err == nil:
		w.KeyDetail = &kd
	case !errors.Is(err, domain.ErrKeyDetailNotFound):
		return w, fmt.Errorf("load key detail: %w", err)
	}
	return w, nil
}

func (s *WithdrawalService) schedule(ctx context.Context, w domain.Withdrawal, account domain.Account, created bool) domain.Result {
	balances := PostWithdrawalBalances(account, w.Amount)

	if !s.scheduler.ScheduleWithdrawal(ctx, w.ID, *w.ScheduledFor) {
		data := summary(w)
		if s.compensate(ctx, w, "scheduling failed") {
			data.Status = domain.StatusFailed
			data.ErrorReason = "scheduling failed"
		}
		return domain.Failed(domain.CodeSchedulingFailed, "unable to schedule withdrawal").WithData(data)
	}

	data := summary(w)
	data.Balances = &balances
	return domain.Succeeded("withdrawal scheduled", created, data)
}

func (s *WithdrawalService) executeNow(ctx context.Context, w domain.Withdrawal, account domain.Account, created bool) domain.Result {
	log := s.logger.With("withdrawal_id", w.ID, "account_id", w.AccountID, "transaction_id", w.TransactionID)

	ok, err := s.withdrawals.MarkProcessing(ctx, w.ID, domain.Metadata{"processing_started_at": s.now().UTC()})
	if err != nil {
		log.Error("failed to mark withdrawal processing", "error", err)
		reason := "processing failed: " + err.Error()
		data := summary(w)
		if s.compensate(ctx, w, reason) {
			data.Status = domain.StatusFailed
			data.ErrorReason = reason
		}
		return domain.Failed(domain.CodeProcessingError, "unable to process withdrawal").WithData(data)
	}
	if !ok {
		// someone else owns the record now
		log.Warn("withdrawal is no longer eligible, aborting")
		return domain.Failed(domain.CodeStateConflict, "withdrawal is already being processed").WithData(summary(w))
	}
	w.Status = domain.StatusProcessing

	if err := s.debit(ctx, w); err != nil {
		reason := "debit failed: " + err.Error()
		if errors.Is(err, errDebitInterrupted) {
			reason = "debit failed: unexpected error"
		}
		log.Error("withdrawal debit failed", "error", err)
		data := summary(w)
		if s.compensate(ctx, w, reason) {
			data.Status = domain.StatusFailed
			data.ErrorReason = reason
		}
		return domain.Failed(domain.CodeDebitFailed, "debit failed").WithData(data)
	}

	log.Info("withdrawal completed", "amount", w.Amount.String())
	if !s.notifier.Notify(ctx, w.ID, requestOf(w)) {
		log.Warn("withdrawal notification was not queued")
	}

	balances := PostWithdrawalBalances(account, w.Amount)
	data := summary(w)
	data.Status = domain.StatusCompleted
	data.Balances = &balances
	return domain.Succeeded("withdrawal completed", created, data)
}

// debit takes the money and completes the record in one transaction.
// A panic inside the account port is turned into errDebitInterrupted.
func (s *WithdrawalService) debit(ctx context.Context, w domain.Withdrawal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errDebitInterrupted, r)
		}
	}()

	return s.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := s.accounts.Debit(txCtx, w.AccountID, w.Amount)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInsufficientBalance
		}
		done, err := s.withdrawals.MarkCompleted(txCtx, w.ID, domain.Metadata{"completed_at": s.now().UTC()})
		if err != nil {
			return fmt.Errorf("mark completed: %w", err)
		}
		if !done {
			return fmt.Errorf("mark completed: %w", domain.ErrInvalidTransition)
		}
		return nil
	})
}

// compensate moves w to failed and reports whether it got there. Only
// processing may fail, so records that never reached it pass through
// processing first. Each step is retried a few times; a record it cannot
// move is logged at error level.
func (s *WithdrawalService) compensate(ctx context.Context, w domain.Withdrawal, reason string) bool {
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With("withdrawal_id", w.ID, "reason", reason)

	if w.Status != domain.StatusProcessing {
		ok, err := s.retry(func() (bool, error) {
			return s.withdrawals.MarkProcessing(ctx, w.ID, domain.Metadata{"compensation": true})
		})
		if err != nil {
			log.Error("failed to compensate withdrawal", "status", w.Status, "error", err)
			return false
		}
		if !ok {
			// an earlier claim may have been stored even though it reported an error
			current, err := s.withdrawals.GetByID(ctx, w.ID)
			if err != nil || current.Status != domain.StatusProcessing {
				log.Error("failed to compensate withdrawal", "status", current.Status, "error", err)
				return false
			}
		}
	}

	ok, err := s.retry(func() (bool, error) {
		return s.withdrawals.MarkFailed(ctx, w.ID, reason, domain.Metadata{"failed_at": s.now().UTC()})
	})
	if err != nil || !ok {
		log.Error("withdrawal left in processing, failed to mark it failed", "error", err)
		return false
	}
	log.Warn("withdrawal marked failed")
	return true
}

// retry runs a status update until it stops returning an error or the
// attempts run out.
func (s *WithdrawalService) retry(update func() (bool, error)) (bool, error) {
	var (
		ok  bool
		err error
	)
	for attempt := 1; attempt <= compensationAttempts; attempt++ {
		ok, err = update()
		if err == nil {
			return ok, nil
		}
		if attempt < compensationAttempts {
			time.Sleep(s.backoff * time.Duration(attempt))
		}
	}
	return ok, err
}

func (s *WithdrawalService) Get(ctx context.Context, id uuid.UUID) domain.Result {
	w, err := s.load(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrWithdrawalNotFound) {
			return domain.Failed(domain.CodeWithdrawalNotFound, "withdrawal not found")
		}
		s.logger.Error("failed to load withdrawal", "withdrawal_id", id, "error", err)
		return domain.Failed(domain.CodeProcessingError, "unable to load withdrawal")
	}
	return domain.Succeeded("withdrawal found", false, summary(w))
}

// Cancel stops a withdrawal that has not started processing. An already
// queued job finds the record cancelled and does nothing.
func (s *WithdrawalService) Cancel(ctx context.Context, id uuid.UUID) domain.Result {
	w, err := s.load(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrWithdrawalNotFound) {
			return domain.Failed(domain.CodeWithdrawalNotFound, "withdrawal not found")
		}
		s.logger.Error("failed to load withdrawal", "withdrawal_id", id, "error", err)
		return domain.Failed(domain.CodeProcessingError, "unable to cancel withdrawal")
	}

	ok, err := s.withdrawals.Cancel(ctx, id, domain.Metadata{"cancelled_at": s.now().UTC()})
	if err != nil {
		s.logger.Error("failed to cancel withdrawal", "withdrawal_id", id, "error", err)
		return domain.Failed(domain.CodeProcessingError, "unable to cancel withdrawal")
	}
	if !ok {
		return domain.Failed(domain.CodeStateConflict,
			fmt.Sprintf("withdrawal is %s and cannot be cancelled", w.Status)).WithData(summary(w))
	}

	s.logger.Info("withdrawal cancelled", "withdrawal_id", id)
	data := summary(w)
	data.Status = domain.StatusCancelled
	return domain.Succeeded("withdrawal cancelled", false, data)
}

// HandleScheduledJob is the deferred re-invocation run by the job queue.
// State conflicts and failures are already recorded on the withdrawal, so
// the job itself is never retried.
func (s *WithdrawalService) HandleScheduledJob(ctx context.Context, job domain.Job) error {
	id := job.WithdrawalID
	res := s.Execute(ctx, domain.WithdrawalRequest{WithdrawalID: &id})
	if res.Success {
		s.logger.Info("scheduled withdrawal executed", "withdrawal_id", id, "message", res.Message)
		return nil
	}
	s.logger.Warn("scheduled withdrawal not executed", "withdrawal_id", id, "code", res.Code, "message", res.Message)
	return nil
}

func summary(w domain.Withdrawal) *domain.ResultData {
	data := &domain.ResultData{
		WithdrawalID:  w.ID,
		TransactionID: w.TransactionID,
		Status:        w.DisplayStatus(),
		Method:        w.Method,
		Amount:        w.Amount,
		Scheduled:     w.Scheduled,
		ScheduledFor:  w.ScheduledFor,
		ErrorReason:   w.ErrorReason,
		CreatedAt:     w.CreatedAt,
	}
	if w.KeyDetail != nil {
		data.KeyType = w.KeyDetail.Type
		data.MaskedKey = pixkey.Mask(w.KeyDetail.Type, w.KeyDetail.Key)
	}
	return data
}

// requestOf rebuilds the request view of a stored withdrawal.
func requestOf(w domain.Withdrawal) domain.WithdrawalRequest {
	req := domain.WithdrawalRequest{
		AccountID:    w.AccountID,
		Method:       w.Method,
		Amount:       w.Amount,
		ScheduleFor:  w.ScheduledFor,
		Metadata:     w.Metadata,
		WithdrawalID: &w.ID,
	}
	if w.KeyDetail != nil {
		req.Key = &domain.KeyDescriptor{Type: w.KeyDetail.Type, Key: w.KeyDetail.Key}
	}
	return req
}
