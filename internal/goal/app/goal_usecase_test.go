package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	eventdomain "live_session_service/internal/eventbus/domain"
	"live_session_service/internal/goal/domain"
	"live_session_service/internal/goal/repository"
	ledgerapp "live_session_service/internal/ledger/app"
	ledgerdomain "live_session_service/internal/ledger/domain"
	ledgerrepo "live_session_service/internal/ledger/repository"
	roomapp "live_session_service/internal/room/app"
	roomdomain "live_session_service/internal/room/domain"
	roomrepo "live_session_service/internal/room/repository"
	"live_session_service/pkg/config"
	errprocess "live_session_service/pkg/err"
	"live_session_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type goalFixture struct {
	ledger     *ledgerapp.LedgerUseCase
	rooms      *roomapp.RoomUseCase
	moderation *roomapp.ModerationUseCase
	bus        *recordingBus
	notifier   *MockNotifier
	room       *roomdomain.Room
	clock      time.Time
}

func newGoalFixture(t *testing.T, balances map[string]int64) *goalFixture {
	t.Helper()
	logger.SetNewNop()
	ctx := context.Background()

	ledger := ledgerapp.NewLedgerUseCase(ledgerrepo.NewMemoryLedgerRepository(), nil, nil,
		config.RefundConfig{InitialInterval: time.Millisecond, MaxElapsed: 20 * time.Millisecond})
	for owner, amount := range balances {
		require.NoError(t, ledger.OpenWallet(ctx, owner))
		if amount > 0 {
			require.NoError(t, ledger.TopUp(ctx, owner, amount, "seed:"+owner))
		}
	}

	rooms := roomrepo.NewMemoryRoomRepository()
	records := roomrepo.NewMemoryModerationRepository()
	roomBus := &recordingBus{}
	moderation := roomapp.NewModerationUseCase(rooms, records, roomBus)
	roomUC := roomapp.NewRoomUseCase(rooms, records, moderation, roomBus)
	room, err := roomUC.StartStream(ctx, "host", roomdomain.StartStreamReq{Title: "goal"})
	require.NoError(t, err)

	notifier := new(MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()

	return &goalFixture{
		ledger:     ledger,
		rooms:      roomUC,
		moderation: moderation,
		bus:        &recordingBus{},
		notifier:   notifier,
		room:       room,
		clock:      time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC),
	}
}

func (f *goalFixture) useCase(repo repository.GoalRepository, ledger Ledger) *GoalUseCase {
	uc := NewGoalUseCase(repo, ledger, f.rooms, f.moderation, f.bus, f.notifier, config.GoalConfig{DecisionWindow: time.Minute})
	uc.now = func() time.Time { return f.clock }
	return uc
}

func (f *goalFixture) balance(t *testing.T, owner string) int64 {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), owner)
	require.NoError(t, err)
	return b
}

func TestGoal_ScenarioD(t *testing.T) {
	ctx := context.Background()
	f := newGoalFixture(t, map[string]int64{"host": 0, "a": 600, "b": 700})
	uc := f.useCase(repository.NewMemoryGoalRepository(), f.ledger)

	goal, err := uc.CreateGoal(ctx, "host", f.room.ID, "host", 1000)
	require.NoError(t, err)

	_, err = uc.Fund(ctx, "a", goal.ID, 600)
	require.NoError(t, err)
	funded, err := uc.Fund(ctx, "b", goal.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, domain.GoalReached, funded.Status)
	assert.Equal(t, int64(1100), funded.CurrentAmount)
	require.NotNil(t, funded.DecisionDeadline)
	assert.Equal(t, f.clock.Add(time.Minute), *funded.DecisionDeadline)
	f.notifier.AssertCalled(t, "Notify", mock.Anything, "host", "Donation goal reached", mock.Anything)

	assert.Equal(t, int64(0), f.balance(t, "a"))
	assert.Equal(t, int64(200), f.balance(t, "b"))

	rejected, err := uc.Reject(ctx, "host", goal.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GoalRejected, rejected.Status)
	assert.Equal(t, int64(1100), rejected.Refunded())
	assert.Empty(t, rejected.Outstanding())

	assert.Equal(t, int64(600), f.balance(t, "a"))
	assert.Equal(t, int64(700), f.balance(t, "b"))

	view, ok := f.bus.last(eventdomain.KindGoalRefunded)
	require.True(t, ok)
	assert.Equal(t, int64(1100), view.Refunded)
	assert.Equal(t, 0, view.Outstanding)

	t.Run("重放退款不會重複入帳", func(t *testing.T) {
		for _, c := range rejected.Contributions {
			_, err := f.ledger.Refund(ctx, []ledgerdomain.RefundOrder{{Reference: c.RefundReference(), OwnerID: c.ContributorID, Amount: c.Amount}})
			require.NoError(t, err)
		}
		assert.Equal(t, int64(600), f.balance(t, "a"))
		assert.Equal(t, int64(700), f.balance(t, "b"))
	})
}

func TestGoal_CreateRules(t *testing.T) {
	ctx := context.Background()
	f := newGoalFixture(t, nil)
	uc := f.useCase(repository.NewMemoryGoalRepository(), f.ledger)

	_, err := uc.CreateGoal(ctx, "viewer", f.room.ID, "viewer", 100)
	assert.ErrorIs(t, err, errprocess.ErrNotHost)

	_, err = uc.CreateGoal(ctx, "host", f.room.ID, "host", 0)
	assert.ErrorIs(t, err, errprocess.ErrInvalidAmount)

	_, err = uc.CreateGoal(ctx, "host", "missing", "host", 100)
	assert.ErrorIs(t, err, errprocess.ErrRoomNotFound)

	first, err := uc.CreateGoal(ctx, "host", f.room.ID, "", 100)
	require.NoError(t, err)
	assert.Equal(t, "host", first.ModelID)

	_, err = uc.CreateGoal(ctx, "host", f.room.ID, "host", 100)
	assert.ErrorIs(t, err, errprocess.ErrGoalAlreadyActive)

	t.Run("結束後可以再開", func(t *testing.T) {
		_, err := uc.Reject(ctx, "host", first.ID)
		require.NoError(t, err)
		second, err := uc.CreateGoal(ctx, "host", f.room.ID, "host", 100)
		require.NoError(t, err)

		latest, err := uc.Latest(ctx, f.room.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, latest.ID)
	})
}

func TestGoal_FundRejections(t *testing.T) {
	ctx := context.Background()
	f := newGoalFixture(t, map[string]int64{"host": 0, "poor": 50, "rich": 5000, "troll": 500})
	uc := f.useCase(repository.NewMemoryGoalRepository(), f.ledger)
	goal, err := uc.CreateGoal(ctx, "host", f.room.ID, "host", 1000)
	require.NoError(t, err)

	t.Run("餘額不足不留下紀錄", func(t *testing.T) {
		_, err := uc.Fund(ctx, "poor", goal.ID, 100)
		assert.ErrorIs(t, err, errprocess.ErrInsufficientBalance)
		assert.Equal(t, int64(50), f.balance(t, "poor"))
		got, err := uc.Get(ctx, goal.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Contributions)
		assert.Equal(t, int64(0), got.CurrentAmount)
	})

	t.Run("金額必須為正", func(t *testing.T) {
		_, err := uc.Fund(ctx, "rich", goal.ID, 0)
		assert.ErrorIs(t, err, errprocess.ErrInvalidAmount)
	})

	t.Run("被 ban 的使用者", func(t *testing.T) {
		_, err := f.moderation.SetBanned(ctx, "host", f.room.ID, "troll", true)
		require.NoError(t, err)
		_, err = uc.Fund(ctx, "troll", goal.ID, 100)
		assert.ErrorIs(t, err, errprocess.ErrBanned)
		assert.Equal(t, int64(500), f.balance(t, "troll"))
	})

	t.Run("達標後不再收款", func(t *testing.T) {
		_, err := uc.Fund(ctx, "rich", goal.ID, 1000)
		require.NoError(t, err)
		_, err = uc.Fund(ctx, "rich", goal.ID, 10)
		assert.ErrorIs(t, err, errprocess.ErrGoalNotActive)
		assert.Equal(t, int64(4000), f.balance(t, "rich"))
	})

	t.Run("不存在的 goal", func(t *testing.T) {
		_, err := uc.Fund(ctx, "rich", "missing", 10)
		assert.ErrorIs(t, err, errprocess.ErrGoalNotFound)
	})
}

func TestGoal_ConfirmWithinWindow(t *testing.T) {
	ctx := context.Background()
	f := newGoalFixture(t, map[string]int64{"host": 0, "model": 0, "fan": 1000})
	uc := f.useCase(repository.NewMemoryGoalRepository(), f.ledger)
	goal, err := uc.CreateGoal(ctx, "host", f.room.ID, "model", 300)
	require.NoError(t, err)

	_, err = uc.Confirm(ctx, "model", goal.ID)
	assert.Equal(t, errprocess.CodeGoalNotActive, errprocess.CodeOf(err))

	_, err = uc.Fund(ctx, "fan", goal.ID, 300)
	require.NoError(t, err)

	_, err = uc.Confirm(ctx, "host", goal.ID)
	assert.ErrorIs(t, err, errprocess.ErrNotModel)
	_, err = uc.Reject(ctx, "fan", goal.ID)
	assert.ErrorIs(t, err, errprocess.ErrNotModel)

	f.clock = f.clock.Add(59 * time.Second)
	confirmed, err := uc.Confirm(ctx, "model", goal.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GoalConfirmed, confirmed.Status)
	assert.Equal(t, int64(700), f.balance(t, "fan"))

	view, ok := f.bus.last(eventdomain.KindGoalConfirmed)
	require.True(t, ok)
	assert.Equal(t, domain.GoPrompt, view.Prompt)
	f.notifier.AssertCalled(t, "Notify", mock.Anything, "model", "Time to go live", mock.Anything)

	_, err = uc.Reject(ctx, "model", goal.ID)
	assert.ErrorIs(t, err, errprocess.ErrGoalNotActive)

	n, err := uc.ExpireDue(ctx, f.clock.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(700), f.balance(t, "fan"))
}

func TestGoal_ConfirmAfterDeadlineRefunds(t *testing.T) {
	ctx := context.Background()
	f := newGoalFixture(t, map[string]int64{"host": 0, "fan": 1000})
	uc := f.useCase(repository.NewMemoryGoalRepository(), f.ledger)
	goal, err := uc.CreateGoal(ctx, "host", f.room.ID, "host", 300)
	require.NoError(t, err)
	_, err = uc.Fund(ctx, "fan", goal.ID, 400)
	require.NoError(t, err)

	f.clock = f.clock.Add(time.Minute)
	_, err = uc.Confirm(ctx, "host", goal.ID)
	assert.ErrorIs(t, err, errprocess.ErrDecisionWindowClosed)

	got, err := uc.Get(ctx, goal.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GoalExpired, got.Status)
	assert.Empty(t, got.Outstanding())
	assert.Equal(t, int64(1000), f.balance(t, "fan"))
}

func TestGoal_ExpireDue(t *testing.T) {
	ctx := context.Background()
	f := newGoalFixture(t, map[string]int64{"host": 0, "a": 500, "b": 500})
	uc := f.useCase(repository.NewMemoryGoalRepository(), f.ledger)
	goal, err := uc.CreateGoal(ctx, "host", f.room.ID, "host", 800)
	require.NoError(t, err)
	_, err = uc.Fund(ctx, "a", goal.ID, 500)
	require.NoError(t, err)
	_, err = uc.Fund(ctx, "b", goal.ID, 300)
	require.NoError(t, err)

	n, err := uc.ExpireDue(ctx, f.clock.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = uc.ExpireDue(ctx, f.clock.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := uc.Get(ctx, goal.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GoalExpired, got.Status)
	assert.Equal(t, int64(800), got.Refunded())
	assert.Equal(t, int64(500), f.balance(t, "a"))
	assert.Equal(t, int64(500), f.balance(t, "b"))

	_, ok := f.bus.last(eventdomain.KindGoalExpired)
	assert.True(t, ok)

	n, err = uc.ExpireDue(ctx, f.clock.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(500), f.balance(t, "a"))
}

func TestGoal_RefundFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	f := newGoalFixture(t, nil)
	ledger := new(MockLedger)
	uc := f.useCase(repository.NewMemoryGoalRepository(), ledger)

	ledger.On("Debit", mock.Anything, "fan", int64(200), ledgerdomain.KindDonation, mock.Anything).Return(nil)
	goal, err := uc.CreateGoal(ctx, "host", f.room.ID, "host", 1000)
	require.NoError(t, err)
	funded, err := uc.Fund(ctx, "fan", goal.ID, 200)
	require.NoError(t, err)
	order := ledgerdomain.RefundOrder{Reference: funded.Contributions[0].RefundReference(), OwnerID: "fan", Amount: 200}

	cause := errors.New("ledger unavailable")
	ledger.On("Refund", mock.Anything, []ledgerdomain.RefundOrder{order}).Return(ledgerdomain.RefundReport{
		Failed: []ledgerdomain.RefundFailure{{Order: order, Attempts: 3, Err: cause}},
	}, fmt.Errorf("%w: 1 of 1 refunds outstanding", errprocess.ErrRefundFailure)).Once()

	rejected, err := uc.Reject(ctx, "host", goal.ID)
	assert.ErrorIs(t, err, errprocess.ErrRefundFailure)
	require.NotNil(t, rejected)
	require.Len(t, rejected.Outstanding(), 1)
	assert.Equal(t, 3, rejected.Contributions[0].RefundAttempts)
	assert.Equal(t, cause.Error(), rejected.Contributions[0].LastRefundError)

	t.Run("sweeper 以相同 reference 重試", func(t *testing.T) {
		ledger.On("Refund", mock.Anything, []ledgerdomain.RefundOrder{order}).Return(ledgerdomain.RefundReport{
			Refunded: []ledgerdomain.RefundOrder{order},
		}, nil).Once()

		_, err := uc.ExpireDue(ctx, f.clock)
		require.NoError(t, err)

		got, err := uc.Get(ctx, goal.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Outstanding())
		assert.Empty(t, got.Contributions[0].LastRefundError)
		require.NotNil(t, got.Contributions[0].RefundedAt)
		ledger.AssertNumberOfCalls(t, "Refund", 2)
	})
}

func TestGoal_StoreFailureAfterDebitIsCompensated(t *testing.T) {
	ctx := context.Background()
	f := newGoalFixture(t, map[string]int64{"host": 0, "fan": 300})
	repo := new(MockGoalRepository)
	uc := f.useCase(repo, f.ledger)

	goal, err := domain.NewGoal("g1", f.room.ID, "host", 1000, f.clock)
	require.NoError(t, err)
	repo.On("Get", mock.Anything, "g1").Return(goal.Clone(), nil)
	repo.On("UpdateLocked", mock.Anything, "g1", mock.Anything).
		Run(func(args mock.Arguments) {
			fn := args.Get(2).(func(g *domain.DonationGoal) error)
			require.NoError(t, fn(goal.Clone()))
		}).
		Return(nil, errors.New("connection reset"))

	_, err = uc.Fund(ctx, "fan", "g1", 100)
	require.Error(t, err)
	assert.Equal(t, int64(300), f.balance(t, "fan"))

	history, err := f.ledger.History(ctx, "fan", 10)
	require.NoError(t, err)
	var kinds []ledgerdomain.EntryKind
	for _, e := range history {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, ledgerdomain.KindDonation)
	assert.Contains(t, kinds, ledgerdomain.KindReversal)
}

func TestGoal_ConcurrentFunding(t *testing.T) {
	ctx := context.Background()
	balances := map[string]int64{"host": 0}
	for i := 0; i < 10; i++ {
		balances[fmt.Sprintf("fan%d", i)] = 100
	}
	f := newGoalFixture(t, balances)
	uc := f.useCase(repository.NewMemoryGoalRepository(), f.ledger)
	goal, err := uc.CreateGoal(ctx, "host", f.room.ID, "host", 550)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(fan string) {
			defer wg.Done()
			_, _ = uc.Fund(ctx, fan, goal.ID, 100)
		}(fmt.Sprintf("fan%d", i))
	}
	wg.Wait()

	got, err := uc.Get(ctx, goal.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GoalReached, got.Status)
	// 第六筆跨過目標後就停止收款
	assert.Equal(t, int64(600), got.CurrentAmount)
	assert.Len(t, got.Contributions, 6)

	var spent int64
	for i := 0; i < 10; i++ {
		spent += 100 - f.balance(t, fmt.Sprintf("fan%d", i))
	}
	assert.Equal(t, got.CurrentAmount, spent)
}
