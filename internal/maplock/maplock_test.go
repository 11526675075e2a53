package maplock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockIsExclusivePerMap(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	var mu sync.Mutex
	var order []int

	assert.NoError(t, reg.Lock(ctx, 1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := reg.Lock(ctx, 1); err != nil {
			t.Error(err)
			return
		}
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		reg.Unlock(1)
	}()

	// the second locker must not get in before we release
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	reg.Unlock(1)

	<-done
	assert.Equal(t, []int{1, 2}, order)
}

func TestLockDistinctMapsDoNotBlock(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	assert.NoError(t, reg.Lock(ctx, 1))
	defer reg.Unlock(1)

	done := make(chan error, 1)
	go func() {
		if err := reg.Lock(ctx, 2); err != nil {
			done <- err
			return
		}
		reg.Unlock(2)
		done <- nil
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("lock on a different map blocked")
	}
}

func TestLockRespectsContextCancel(t *testing.T) {
	reg := NewRegistry()
	assert.NoError(t, reg.Lock(context.Background(), 1))
	defer reg.Unlock(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := reg.Lock(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithReleasesOnError(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	wantErr := errors.New("boom")
	err := reg.With(ctx, 1, func() error { return wantErr })
	assert.ErrorIs(t, err, wantErr)

	// the lock must be free again
	assert.NoError(t, reg.Lock(ctx, 1))
	reg.Unlock(1)
}

func TestUnlockWithoutLockIsNoop(t *testing.T) {
	reg := NewRegistry()
	reg.Unlock(99)
}
