package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	_, found, err := store.Load(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)

	s := Session{State: "cart"}
	s.SetTemp("prompt_msg", "17")
	require.NoError(t, store.Save(ctx, 1, s))

	// caller mutations after Save must not leak into the store
	s.SetTemp("prompt_msg", "99")

	got, found, err := store.Load(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "cart", got.State)
	v, ok := got.TempValue("prompt_msg")
	assert.True(t, ok)
	assert.Equal(t, "17", v)
	assert.False(t, got.UpdatedAt.IsZero())

	require.NoError(t, store.Delete(ctx, 1))
	_, found, _ = store.Load(ctx, 1)
	assert.False(t, found)
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, 5, Session{State: "menu"}))
	now = now.Add(2 * time.Minute)

	_, found, err := store.Load(ctx, 5)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, store.Len())
}

func TestKeyedMutexExcludes(t *testing.T) {
	locker := NewKeyedMutex()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, 9)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			assert.NoError(t, unlock(ctx))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, locker.size())
}

func TestKeyedMutexContextAndKeys(t *testing.T) {
	locker := NewKeyedMutex()
	unlock, err := locker.Lock(context.Background(), 1)
	require.NoError(t, err)

	// another user is unaffected
	other, err := locker.Lock(context.Background(), 2)
	require.NoError(t, err)
	require.NoError(t, other(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(context.Background()))
	// double unlock is harmless
	require.NoError(t, unlock(context.Background()))
	assert.Equal(t, 0, locker.size())
}
