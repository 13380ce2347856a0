package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"live_session_service/internal/ledger/domain"
	"live_session_service/internal/ledger/repository"
	"live_session_service/pkg/config"
	errprocess "live_session_service/pkg/err"
	"live_session_service/pkg/logger"
	"live_session_service/pkg/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LedgerUseCase owns coin balances. Every money reversal path (gift failure,
// goal refund) goes through Credit with a unique reference.
type LedgerUseCase struct {
	repo       repository.LedgerRepository
	alerts     domain.AlertSink
	metrics    *metrics.Metrics
	newBackOff func() backoff.BackOff
	now        func() time.Time
}

// NewLedgerUseCase create LedgerUseCase
func NewLedgerUseCase(repo repository.LedgerRepository, alerts domain.AlertSink, m *metrics.Metrics, retry config.RefundConfig) *LedgerUseCase {
	if alerts == nil {
		alerts = repository.NewLogAlertSink()
	}
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = 100 * time.Millisecond
	}
	// MaxElapsedTime 0 代表無限重試, 不允許
	if retry.MaxElapsed <= 0 {
		retry.MaxElapsed = 5 * time.Second
	}
	return &LedgerUseCase{
		repo:    repo,
		alerts:  alerts,
		metrics: m,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = retry.InitialInterval
			b.MaxElapsedTime = retry.MaxElapsed
			return b
		},
		now: time.Now,
	}
}

func (uc *LedgerUseCase) entry(ref string, kind domain.EntryKind, from, to string, amount int64) domain.Entry {
	if ref == "" {
		ref = uuid.New().String()
	}
	return domain.Entry{
		ID:        uuid.New().String(),
		Reference: ref,
		Kind:      kind,
		FromID:    from,
		ToID:      to,
		Amount:    amount,
		CreatedAt: uc.now(),
	}
}

func (uc *LedgerUseCase) observe(kind domain.EntryKind, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(errprocess.CodeOf(err))
	}
	uc.metrics.LedgerOp(string(kind), outcome)
}

// OpenWallet create the owner's wallet when missing
func (uc *LedgerUseCase) OpenWallet(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return errprocess.ErrUnknownAccount
	}
	return uc.repo.CreateWallet(ctx, ownerID)
}

// Balance current coins of owner
func (uc *LedgerUseCase) Balance(ctx context.Context, ownerID string) (int64, error) {
	w, err := uc.repo.GetWallet(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

// History latest journal entries touching owner
func (uc *LedgerUseCase) History(ctx context.Context, ownerID string, limit int) ([]domain.Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return uc.repo.RecentEntries(ctx, ownerID, limit)
}

// TopUp external payment credited to the wallet, opening it when needed
func (uc *LedgerUseCase) TopUp(ctx context.Context, ownerID string, amount int64, reference string) error {
	if amount <= 0 {
		return errprocess.ErrInvalidAmount
	}
	if err := uc.OpenWallet(ctx, ownerID); err != nil {
		return err
	}
	_, err := uc.repo.Credit(ctx, ownerID, uc.entry(reference, domain.KindTopUp, "", ownerID, amount))
	uc.observe(domain.KindTopUp, err)
	return err
}

// Credit single sided credit
func (uc *LedgerUseCase) Credit(ctx context.Context, toID string, amount int64, kind domain.EntryKind, reference string) error {
	if amount <= 0 {
		return errprocess.ErrInvalidAmount
	}
	_, err := uc.repo.Credit(ctx, toID, uc.entry(reference, kind, "", toID, amount))
	uc.observe(kind, err)
	return err
}

// Debit single sided debit, InsufficientBalance is reported and never retried
func (uc *LedgerUseCase) Debit(ctx context.Context, fromID string, amount int64, kind domain.EntryKind, reference string) error {
	if amount <= 0 {
		return errprocess.ErrInvalidAmount
	}
	_, err := uc.repo.Debit(ctx, fromID, uc.entry(reference, kind, fromID, "", amount))
	uc.observe(kind, err)
	return err
}

// Transfer atomically move amount between two wallets, nothing changes on failure
func (uc *LedgerUseCase) Transfer(ctx context.Context, fromID, toID string, amount int64, kind domain.EntryKind, reference string) error {
	if amount <= 0 {
		return errprocess.ErrInvalidAmount
	}
	if fromID == toID {
		return errprocess.ErrSelfTransfer
	}
	_, err := uc.repo.Transfer(ctx, fromID, toID, uc.entry(reference, kind, fromID, toID, amount))
	uc.observe(kind, err)
	return err
}

// DebitThenCredit chained pair. A credit failing after the debit committed is
// compensated by crediting the payer back before the error is returned.
func (uc *LedgerUseCase) DebitThenCredit(ctx context.Context, fromID, toID string, amount int64, kind domain.EntryKind, reference string) error {
	if amount <= 0 {
		return errprocess.ErrInvalidAmount
	}
	if fromID == toID {
		return errprocess.ErrSelfTransfer
	}
	if reference == "" {
		reference = uuid.New().String()
	}

	if err := uc.Debit(ctx, fromID, amount, kind, reference+":debit"); err != nil {
		return err
	}

	creditErr := uc.Credit(ctx, toID, amount, kind, reference+":credit")
	if creditErr == nil {
		return nil
	}

	logger.Log.Warn("credit failed after debit, compensating",
		zap.String("reference", reference),
		zap.String("from", fromID),
		zap.String("to", toID),
		zap.Error(creditErr),
	)
	if err := uc.Compensate(ctx, fromID, amount, reference); err != nil {
		return fmt.Errorf("%w (compensation pending: %v)", creditErr, err)
	}
	return creditErr
}

// Compensate credit ownerID back for the half applied operation reference.
// Retried with backoff; a final failure raises an operational alert.
func (uc *LedgerUseCase) Compensate(ctx context.Context, ownerID string, amount int64, reference string) error {
	order := domain.RefundOrder{Reference: reference + ":reversal", OwnerID: ownerID, Amount: amount}
	attempts, err := uc.creditWithRetry(ctx, order, domain.KindReversal)
	if err != nil {
		uc.raise(ctx, domain.AlertCompensationFailed, order, attempts, err)
	}
	return err
}

// Reverse move amount back from toID to fromID after a half-recorded operation.
// Transient failures are retried, a reversal that still fails (receiver already
// spent the coins, store down) raises an operational alert.
func (uc *LedgerUseCase) Reverse(ctx context.Context, toID, fromID string, amount int64, reference string) error {
	order := domain.RefundOrder{Reference: reference + ":reversal", OwnerID: fromID, Amount: amount}
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		_, err := uc.repo.Transfer(ctx, toID, fromID, uc.entry(order.Reference, domain.KindReversal, toID, fromID, amount))
		if errors.Is(err, errprocess.ErrInsufficientBalance) || errors.Is(err, errprocess.ErrUnknownAccount) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(uc.newBackOff(), ctx))
	uc.observe(domain.KindReversal, err)
	if err != nil {
		uc.raise(ctx, domain.AlertCompensationFailed, order, attempts, err)
	}
	return err
}

// Refund replay every order as a refund credit. References make each order
// apply exactly once across retries. Orders still failing are alerted and
// reported, and the call returns RefundFailure.
func (uc *LedgerUseCase) Refund(ctx context.Context, orders []domain.RefundOrder) (domain.RefundReport, error) {
	var report domain.RefundReport
	for _, o := range orders {
		attempts, err := uc.creditWithRetry(ctx, o, domain.KindRefund)
		if err != nil {
			report.Failed = append(report.Failed, domain.RefundFailure{Order: o, Attempts: attempts, Err: err})
			uc.raise(ctx, domain.AlertRefundFailed, o, attempts, err)
			continue
		}
		report.Refunded = append(report.Refunded, o)
	}

	uc.metrics.Refund("ok", len(report.Refunded))
	uc.metrics.Refund("failed", len(report.Failed))
	if len(report.Failed) > 0 {
		return report, fmt.Errorf("%w: %d of %d refunds outstanding", errprocess.ErrRefundFailure, len(report.Failed), len(orders))
	}
	return report, nil
}

func (uc *LedgerUseCase) creditWithRetry(ctx context.Context, o domain.RefundOrder, kind domain.EntryKind) (int, error) {
	if o.Amount <= 0 {
		return 0, errprocess.ErrInvalidAmount
	}
	attempts := 0
	op := func() error {
		attempts++
		_, err := uc.repo.Credit(ctx, o.OwnerID, uc.entry(o.Reference, kind, "", o.OwnerID, o.Amount))
		if errors.Is(err, errprocess.ErrUnknownAccount) {
			// 帳戶不存在重試無用, 交給 alert 與 sweeper
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(uc.newBackOff(), ctx))
	uc.observe(kind, err)
	return attempts, err
}

func (uc *LedgerUseCase) raise(ctx context.Context, kind domain.AlertKind, o domain.RefundOrder, attempts int, cause error) {
	alert := domain.OperationalAlert{
		Kind:      kind,
		Reference: o.Reference,
		OwnerID:   o.OwnerID,
		Amount:    o.Amount,
		Reason:    cause.Error(),
		Attempts:  attempts,
		RaisedAt:  uc.now(),
	}
	uc.metrics.Alert(string(kind))
	logger.Log.Error("money outstanding, operator attention required",
		zap.String("kind", string(kind)),
		zap.String("reference", o.Reference),
		zap.String("owner_id", o.OwnerID),
		zap.Int64("amount", o.Amount),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
	if err := uc.alerts.Raise(ctx, alert); err != nil {
		logger.Log.Error("alert sink failed", zap.String("reference", o.Reference), zap.Error(err))
	}
}
