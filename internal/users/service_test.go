package users

import (
	"context"
	"sync"
	"testing"
	"time"

	"btcpaper/internal/model"
	"btcpaper/internal/notify"
	"btcpaper/internal/store"
	"btcpaper/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	notifier := notify.NewService(mem, zap.NewNop())
	return NewService(mem, notifier, zap.NewNop()), mem
}

func TestGetOrCreateFirstSight(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	u, err := svc.GetOrCreate(ctx, Identity{
		PrivyUserID:   "did:privy:new",
		WalletAddress: "0xabc",
		LoginMethod:   types.LoginMethodWallet,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "did:privy:new", u.PrivyUserID)
	assert.Equal(t, "0xabc", u.WalletAddress)
	assert.True(t, u.Balance.IsZero())

	// welcome notification lands asynchronously
	owner := model.Owner{UserID: u.ID, PrivyUserID: u.PrivyUserID}
	require.Eventually(t, func() bool {
		ns, err := mem.Notifications(ctx, owner, 0)
		return err == nil && len(ns) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestGetOrCreateConcurrentFirstSight(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	id := Identity{PrivyUserID: "did:privy:race"}

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan *model.UserWithBalance, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := svc.GetOrCreate(ctx, id)
			require.NoError(t, err)
			results <- u
		}()
	}
	wg.Wait()
	close(results)

	// every caller must land on the same owner scope
	var userID string
	for u := range results {
		if userID == "" {
			userID = u.ID
		}
		assert.Equal(t, userID, u.ID, "parallel first sights must resolve to one user")
	}
	require.NotEmpty(t, userID)

	// and exactly one welcome must have been emitted for it
	owner := model.Owner{UserID: userID, PrivyUserID: id.PrivyUserID}
	require.Eventually(t, func() bool {
		ns, err := mem.Notifications(ctx, owner, 0)
		return err == nil && len(ns) >= 1
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond) // let any duplicate emission land
	ns, err := mem.Notifications(ctx, owner, 0)
	require.NoError(t, err)
	assert.Len(t, ns, 1, "only the creating request may emit a welcome")
}

func TestGetOrCreateIsStable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := Identity{PrivyUserID: "did:privy:stable"}

	first, err := svc.GetOrCreate(ctx, id)
	require.NoError(t, err)
	second, err := svc.GetOrCreate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "repeat resolution must return the same user")
}

func TestGetOrCreatePatchesChangedProfile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, Identity{PrivyUserID: "did:privy:patch", Email: "old@example.com"})
	require.NoError(t, err)

	u, err := svc.GetOrCreate(ctx, Identity{
		PrivyUserID: "did:privy:patch",
		Email:       "new@example.com",
		LoginMethod: types.LoginMethodEmail,
	})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", u.Email)
	assert.Equal(t, types.LoginMethodEmail, u.LoginMethod)
}

func TestGetOrCreateKeepsProfileWhenIdentityIsBare(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, Identity{PrivyUserID: "did:privy:bare", Email: "keep@example.com"})
	require.NoError(t, err)

	// a token without profile claims must not blank existing fields
	u, err := svc.GetOrCreate(ctx, Identity{PrivyUserID: "did:privy:bare"})
	require.NoError(t, err)
	assert.Equal(t, "keep@example.com", u.Email)
}
