package redisclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestLocalLocker_ExcludesSameTuple(t *testing.T) {
	locker := NewLocalLocker()
	doctorID := uuid.New()
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := locker.WithSlotLock(ctx, doctorID, "2024-06-10|09:00", func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
		if err != nil {
			t.Errorf("holder: %v", err)
		}
	}()

	<-entered

	// Same tuple while held: immediate refusal, no blocking.
	err := locker.WithSlotLock(ctx, doctorID, "2024-06-10|09:00", func(context.Context) error {
		t.Error("entered critical section while lock held")
		return nil
	})
	if !errors.Is(err, ErrLockNotAcquired) {
		t.Errorf("err = %v, want ErrLockNotAcquired", err)
	}

	// Different slot and different doctor proceed freely.
	if err := locker.WithSlotLock(ctx, doctorID, "2024-06-10|11:00", func(context.Context) error { return nil }); err != nil {
		t.Errorf("different slot: %v", err)
	}
	if err := locker.WithSlotLock(ctx, uuid.New(), "2024-06-10|09:00", func(context.Context) error { return nil }); err != nil {
		t.Errorf("different doctor: %v", err)
	}

	close(release)
	wg.Wait()

	// Released tuple can be taken again.
	if err := locker.WithSlotLock(ctx, doctorID, "2024-06-10|09:00", func(context.Context) error { return nil }); err != nil {
		t.Errorf("relock after release: %v", err)
	}
}

func TestLocalLocker_ReleasesOnError(t *testing.T) {
	locker := NewLocalLocker()
	doctorID := uuid.New()
	ctx := context.Background()

	boom := errors.New("boom")
	if err := locker.WithSlotLock(ctx, doctorID, "2024-06-10|14:00", func(context.Context) error {
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the callback error", err)
	}

	// A failed callback must not leave the tuple locked.
	if err := locker.WithSlotLock(ctx, doctorID, "2024-06-10|14:00", func(context.Context) error { return nil }); err != nil {
		t.Errorf("relock after failed callback: %v", err)
	}
}

func TestLocalLocker_ConcurrentSingleWinner(t *testing.T) {
	locker := NewLocalLocker()
	doctorID := uuid.New()

	const attempts = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	won, refused := 0, 0

	start := make(chan struct{})
	hold := make(chan struct{})

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := locker.WithSlotLock(context.Background(), doctorID, "2024-06-10|16:00", func(context.Context) error {
				<-hold
				return nil
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, ErrLockNotAcquired):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	close(start)
	// Give every goroutine a chance to attempt while the winner holds.
	for {
		mu.Lock()
		done := refused == attempts-1
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(time.Millisecond)
	}
	close(hold)
	wg.Wait()

	if won != 1 || refused != attempts-1 {
		t.Fatalf("won=%d refused=%d, want 1/%d", won, refused, attempts-1)
	}
}

// recordingLockClient stands in for *redis.Client and records, at call
// time, whether each unlock script ran with a live context.
type recordingLockClient struct {
	mu          sync.Mutex
	releaseErrs []error
}

func (c *recordingLockClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func (c *recordingLockClient) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	c.mu.Lock()
	c.releaseErrs = append(c.releaseErrs, ctx.Err())
	c.mu.Unlock()
	return redis.NewCmdResult(int64(1), nil)
}

func (c *recordingLockClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return c.EvalSha(ctx, script, keys, args...)
}

func (c *recordingLockClient) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return c.Eval(ctx, script, keys, args...)
}

func (c *recordingLockClient) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return c.EvalSha(ctx, sha1, keys, args...)
}

func (c *recordingLockClient) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult([]bool{true}, nil)
}

func (c *recordingLockClient) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func TestRedisSlotLocker_ReleasesAfterCallerCancel(t *testing.T) {
	client := &recordingLockClient{}
	locker := &redisSlotLocker{client: client, ttl: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())

	err := locker.WithSlotLock(ctx, uuid.New(), "2024-06-10|09:00", func(context.Context) error {
		// The caller goes away mid-booking.
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled from the callback", err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.releaseErrs) == 0 {
		t.Fatal("unlock script never ran")
	}
	// The unlock must not ride the cancelled request context, or the slot
	// would stay locked until the TTL expires.
	for _, err := range client.releaseErrs {
		if err != nil {
			t.Fatalf("release ran with a dead context: %v", err)
		}
	}
}
