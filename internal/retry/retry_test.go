package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond, Multiplier: 2}
}

func TestSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := DoWithConfig(context.Background(), fastConfig(), func() error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Errorf("err=%v calls=%d", err, calls)
	}
}

func TestRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := DoWithConfig(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("err=%v calls=%d", err, calls)
	}
}

func TestReturnsLastErrorAfterExhaustion(t *testing.T) {
	sentinel := errors.New("still down")
	calls := 0
	err := DoWithConfig(context.Background(), fastConfig(), func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) || calls != 3 {
		t.Errorf("err=%v calls=%d", err, calls)
	}
}

func TestContextCancelStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := DoWithConfig(ctx, fastConfig(), func() error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
