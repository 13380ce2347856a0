//go:build integration

package repository

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"live_session_service/internal/ledger/domain"
	"live_session_service/pkg/database"
	errprocess "live_session_service/pkg/err"
	"live_session_service/pkg/logger"
	testtool "live_session_service/pkg/test_tool"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	logger.SetNewNop()
	ctx := context.Background()

	// **啟動 PostgreSQL**
	container, endpoint, err := testtool.SetupContainer(ctx, testtool.PostgresRequest("test", "test", "ledger"))
	if err != nil {
		log.Fatalf("❌ Failed to start PostgreSQL container: %v", err)
	}
	fmt.Printf("✅ PostgreSQL running at %s\n", endpoint)

	pool, err = database.NewDatabaseConnection(database.Connection{
		ConnectStr:    testtool.PostgresDSN(endpoint, "test", "test", "ledger"),
		RetryCount:    5,
		RetryInterval: 1,
	})
	if err != nil {
		log.Fatalf("❌ connect postgres: %v", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("❌ ledger schema: %v", err)
	}

	code := m.Run()

	pool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func entry(ref string, kind domain.EntryKind, from, to string, amount int64) domain.Entry {
	return domain.Entry{ID: uuid.New().String(), Reference: ref, Kind: kind, FromID: from, ToID: to, Amount: amount, CreatedAt: time.Now()}
}

func wallet(t *testing.T, repo LedgerRepository, owner string, balance int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.CreateWallet(ctx, owner))
	if balance > 0 {
		_, err := repo.Credit(ctx, owner, entry("seed:"+owner, domain.KindTopUp, "", owner, balance))
		require.NoError(t, err)
	}
}

func TestLedgerRepository_TransferRejectedLeavesBalances(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository(pool)
	a, b := "a-"+uuid.NewString(), "b-"+uuid.NewString()
	wallet(t, repo, a, 100)
	wallet(t, repo, b, 0)

	_, err := repo.Transfer(ctx, a, b, entry(uuid.NewString(), domain.KindTransfer, a, b, 150))
	assert.ErrorIs(t, err, errprocess.ErrInsufficientBalance)

	wa, err := repo.GetWallet(ctx, a)
	require.NoError(t, err)
	wb, err := repo.GetWallet(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, int64(100), wa.Balance)
	assert.Equal(t, int64(0), wb.Balance)

	// 失敗的 transfer 不會留下 entry
	entries, err := repo.RecentEntries(ctx, a, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLedgerRepository_ReferenceAppliesOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository(pool)
	owner := "refund-" + uuid.NewString()
	wallet(t, repo, owner, 0)

	ref := "goal-refund:" + uuid.NewString()
	applied, err := repo.Credit(ctx, owner, entry(ref, domain.KindRefund, "", owner, 600))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.Credit(ctx, owner, entry(ref, domain.KindRefund, "", owner, 600))
	require.NoError(t, err)
	assert.False(t, applied)

	w, err := repo.GetWallet(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(600), w.Balance)
}

func TestLedgerRepository_ConcurrentDebitsNeverGoNegative(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository(pool)
	owner := "spender-" + uuid.NewString()
	wallet(t, repo, owner, 1000)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Debit(ctx, owner, entry(uuid.NewString(), domain.KindDebit, owner, "", 100))
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, errprocess.ErrInsufficientBalance)
			}
		}()
	}
	wg.Wait()

	w, err := repo.GetWallet(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 10, ok)
	assert.Equal(t, int64(0), w.Balance)
}

func TestLedgerRepository_UnknownAccount(t *testing.T) {
	_, err := NewLedgerRepository(pool).GetWallet(context.Background(), "nobody-"+uuid.NewString())
	assert.ErrorIs(t, err, errprocess.ErrUnknownAccount)
}
