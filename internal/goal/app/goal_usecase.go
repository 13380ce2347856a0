package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	eventdomain "live_session_service/internal/eventbus/domain"
	"live_session_service/internal/goal/domain"
	"live_session_service/internal/goal/repository"
	ledgerdomain "live_session_service/internal/ledger/domain"
	notifydomain "live_session_service/internal/notify/domain"
	roomdomain "live_session_service/internal/room/domain"
	"live_session_service/pkg/config"
	errprocess "live_session_service/pkg/err"
	"live_session_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger money operations of a donation goal
type Ledger interface {
	Debit(ctx context.Context, fromID string, amount int64, kind ledgerdomain.EntryKind, reference string) error
	Compensate(ctx context.Context, ownerID string, amount int64, reference string) error
	Refund(ctx context.Context, orders []ledgerdomain.RefundOrder) (ledgerdomain.RefundReport, error)
}

// Rooms room lookup
type Rooms interface {
	Get(ctx context.Context, roomID string) (*roomdomain.Room, error)
}

// Gate moderation check run before any mutation
type Gate interface {
	Check(ctx context.Context, roomID, userID string, action roomdomain.Action) error
}

// GoalUseCase donation goals. Donations are debited when made and held by the
// goal; a goal that is rejected or lapses gives every contribution back.
type GoalUseCase struct {
	repo     repository.GoalRepository
	ledger   Ledger
	rooms    Rooms
	gate     Gate
	bus      eventdomain.Publisher
	notifier notifydomain.Notifier
	window   time.Duration
	now      func() time.Time
}

// NewGoalUseCase create GoalUseCase
func NewGoalUseCase(repo repository.GoalRepository, ledger Ledger, rooms Rooms, gate Gate, bus eventdomain.Publisher, notifier notifydomain.Notifier, cfg config.GoalConfig) *GoalUseCase {
	window := cfg.DecisionWindow
	if window <= 0 {
		window = 60 * time.Second
	}
	return &GoalUseCase{
		repo:     repo,
		ledger:   ledger,
		rooms:    rooms,
		gate:     gate,
		bus:      bus,
		notifier: notifier,
		window:   window,
		now:      time.Now,
	}
}

// CreateGoal host opens a goal for modelID, one open goal per room
func (uc *GoalUseCase) CreateGoal(ctx context.Context, hostID, roomID, modelID string, target int64) (*domain.DonationGoal, error) {
	room, err := uc.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsHost(hostID) {
		return nil, errprocess.ErrNotHost
	}
	if modelID == "" {
		modelID = hostID
	}
	goal, err := domain.NewGoal(uuid.New().String(), roomID, modelID, target, uc.now())
	if err != nil {
		return nil, err
	}
	if err := uc.repo.CreateExclusive(ctx, goal); err != nil {
		return nil, err
	}

	logger.Log.Info("donation goal created",
		zap.String("room_id", roomID),
		zap.String("goal_id", goal.ID),
		zap.String("model_id", modelID),
		zap.Int64("target", target),
	)
	uc.publish(ctx, eventdomain.KindGoalUpdated, goal)
	return goal, nil
}

// Fund donate amount coins. The debit happens inside the goal lock so a closed
// goal never takes money; a store failure after the debit credits it back.
func (uc *GoalUseCase) Fund(ctx context.Context, userID, goalID string, amount int64) (*domain.DonationGoal, error) {
	if amount <= 0 {
		return nil, errprocess.ErrInvalidAmount
	}
	current, err := uc.repo.Get(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if err := uc.gate.Check(ctx, current.RoomID, userID, roomdomain.ActionDonate); err != nil {
		return nil, err
	}

	var (
		debited bool
		reached bool
	)
	contribution := domain.Contribution{
		ID:            uuid.New().String(),
		GoalID:        goalID,
		ContributorID: userID,
		Amount:        amount,
	}
	goal, err := uc.repo.UpdateLocked(ctx, goalID, func(g *domain.DonationGoal) error {
		if g.Status != domain.GoalActive {
			return errprocess.ErrGoalNotActive
		}
		now := uc.now()
		contribution.CreatedAt = now
		if err := uc.ledger.Debit(ctx, userID, amount, ledgerdomain.KindDonation, contribution.FundReference()); err != nil {
			return err
		}
		debited = true
		var err error
		reached, err = g.Contribute(contribution, now, uc.window)
		return err
	})
	if err != nil {
		if debited {
			logger.Log.Warn("goal store failed after debit, compensating",
				zap.String("goal_id", goalID),
				zap.String("user_id", userID),
				zap.Int64("amount", amount),
				zap.Error(err),
			)
			if cerr := uc.ledger.Compensate(ctx, userID, amount, contribution.FundReference()); cerr != nil {
				return nil, fmt.Errorf("%w (compensation pending: %v)", err, cerr)
			}
		}
		return nil, err
	}

	uc.publish(ctx, eventdomain.KindGoalUpdated, goal)
	if reached {
		logger.Log.Info("donation goal reached",
			zap.String("goal_id", goal.ID),
			zap.Int64("amount", goal.CurrentAmount),
			zap.Time("decision_deadline", *goal.DecisionDeadline),
		)
		uc.publish(ctx, eventdomain.KindGoalReached, goal)
		uc.notifier.Notify(ctx, goal.ModelID, "Donation goal reached",
			fmt.Sprintf("%d of %d coins raised, confirm before %s", goal.CurrentAmount, goal.TargetAmount, goal.DecisionDeadline.Format(time.RFC3339)))
	}
	return goal, nil
}

// Confirm model accepts a reached goal within the window. Too late and the goal
// is expired and refunded instead, the caller gets DecisionWindowClosed.
func (uc *GoalUseCase) Confirm(ctx context.Context, modelID, goalID string) (*domain.DonationGoal, error) {
	var late bool
	goal, err := uc.repo.UpdateLocked(ctx, goalID, func(g *domain.DonationGoal) error {
		if g.ModelID != modelID {
			return errprocess.ErrNotModel
		}
		now := uc.now()
		err := g.Confirm(now)
		if errors.Is(err, errprocess.ErrDecisionWindowClosed) {
			// 超過決定時間, 直接轉為過期並進入退款
			late = g.Expire(now)
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if late {
		uc.publish(ctx, eventdomain.KindGoalExpired, goal)
		if _, err := uc.refund(ctx, goal); err != nil {
			return nil, fmt.Errorf("%w: %v", errprocess.ErrDecisionWindowClosed, err)
		}
		return nil, errprocess.ErrDecisionWindowClosed
	}

	logger.Log.Info("donation goal confirmed", zap.String("goal_id", goal.ID), zap.Int64("amount", goal.CurrentAmount))
	uc.publish(ctx, eventdomain.KindGoalConfirmed, goal)
	uc.notifier.Notify(ctx, goal.ModelID, "Time to go live", fmt.Sprintf("You confirmed a goal of %d coins", goal.CurrentAmount))
	return goal, nil
}

// Reject model declines an open goal, every contribution is refunded
func (uc *GoalUseCase) Reject(ctx context.Context, modelID, goalID string) (*domain.DonationGoal, error) {
	goal, err := uc.repo.UpdateLocked(ctx, goalID, func(g *domain.DonationGoal) error {
		if g.ModelID != modelID {
			return errprocess.ErrNotModel
		}
		return g.Reject(uc.now())
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("donation goal rejected", zap.String("goal_id", goal.ID), zap.Int64("amount", goal.CurrentAmount))
	uc.publish(ctx, eventdomain.KindGoalRejected, goal)
	return uc.refund(ctx, goal)
}

// ExpireDue expire reached goals past their deadline and retry refunds that
// failed before. Returns how many goals were expired.
func (uc *GoalUseCase) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := uc.repo.ListDueDecisions(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range due {
		goal, err := uc.repo.UpdateLocked(ctx, candidate.ID, func(g *domain.DonationGoal) error {
			if !g.Expire(now) {
				return errNotDue
			}
			return nil
		})
		if errors.Is(err, errNotDue) {
			continue
		}
		if err != nil {
			logger.Log.Warn("expire goal", zap.String("goal_id", candidate.ID), zap.Error(err))
			continue
		}
		expired++
		logger.Log.Info("donation goal expired", zap.String("goal_id", goal.ID))
		uc.publish(ctx, eventdomain.KindGoalExpired, goal)
		if _, err := uc.refund(ctx, goal); err != nil {
			logger.Log.Warn("goal refund outstanding", zap.String("goal_id", goal.ID), zap.Error(err))
		}
	}

	pending, err := uc.repo.ListRefundPending(ctx)
	if err != nil {
		return expired, err
	}
	for i := range pending {
		goal, err := uc.repo.Get(ctx, pending[i].ID)
		if err != nil {
			logger.Log.Warn("load goal for refund retry", zap.String("goal_id", pending[i].ID), zap.Error(err))
			continue
		}
		if _, err := uc.refund(ctx, goal); err != nil {
			logger.Log.Warn("goal refund still outstanding", zap.String("goal_id", goal.ID), zap.Error(err))
		}
	}
	return expired, nil
}

// Get goal by id
func (uc *GoalUseCase) Get(ctx context.Context, goalID string) (*domain.DonationGoal, error) {
	return uc.repo.Get(ctx, goalID)
}

// Latest newest goal of the room, nil when the room never had one
func (uc *GoalUseCase) Latest(ctx context.Context, roomID string) (*domain.DonationGoal, error) {
	goal, err := uc.repo.Latest(ctx, roomID)
	if errors.Is(err, errprocess.ErrGoalNotFound) {
		return nil, nil
	}
	return goal, err
}

// refund replay the outstanding contributions through the ledger and record
// the outcome on each of them. The ledger reference makes a replay a no-op.
func (uc *GoalUseCase) refund(ctx context.Context, goal *domain.DonationGoal) (*domain.DonationGoal, error) {
	outstanding := goal.Outstanding()
	if len(outstanding) == 0 {
		return goal, nil
	}

	orders := make([]ledgerdomain.RefundOrder, 0, len(outstanding))
	for _, c := range outstanding {
		orders = append(orders, ledgerdomain.RefundOrder{Reference: c.RefundReference(), OwnerID: c.ContributorID, Amount: c.Amount})
	}
	report, refundErr := uc.ledger.Refund(ctx, orders)

	byRef := make(map[string]string, len(outstanding))
	for _, c := range outstanding {
		byRef[c.RefundReference()] = c.ID
	}
	updated, err := uc.repo.UpdateLocked(ctx, goal.ID, func(g *domain.DonationGoal) error {
		now := uc.now()
		for _, o := range report.Refunded {
			g.MarkRefunded(byRef[o.Reference], now)
		}
		for _, f := range report.Failed {
			g.MarkRefundFailed(byRef[f.Order.Reference], f.Attempts, f.Err)
		}
		return nil
	})
	if err != nil {
		// 退款已入帳但狀態未寫回, 下一輪 sweeper 以相同 reference 重放不會重複入帳
		logger.Log.Error("record goal refunds", zap.String("goal_id", goal.ID), zap.Error(err))
		return nil, err
	}

	logger.Log.Info("donation goal refunded",
		zap.String("goal_id", updated.ID),
		zap.Int64("refunded", report.TotalRefunded()),
		zap.Int("failed", len(report.Failed)),
	)
	uc.publish(ctx, eventdomain.KindGoalRefunded, updated)
	if refundErr != nil {
		return updated, refundErr
	}
	return updated, nil
}

func (uc *GoalUseCase) publish(ctx context.Context, kind eventdomain.EventKind, g *domain.DonationGoal) {
	uc.bus.Emit(ctx, g.RoomID, kind, eventdomain.StreamGoal(g.ID), g.Version, g.View())
}

var errNotDue = errprocess.New(errprocess.CodeGoalNotActive, "not due")
