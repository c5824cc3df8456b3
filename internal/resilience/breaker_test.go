package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", FailureThreshold: 3, Cooldown: time.Hour})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: err = %v, want boom", i, err)
		}
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("err = %v, want ErrBreakerOpen", err)
	}
	if called {
		t.Error("fn was called while the breaker was open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{FailureThreshold: 3, Cooldown: time.Hour})
	boom := errors.New("boom")

	b.Do(func() error { return boom })
	b.Do(func() error { return boom })
	b.Do(func() error { return nil })
	b.Do(func() error { return boom })
	b.Do(func() error { return boom })

	if got := b.State(); got != StateClosed {
		t.Errorf("state = %v, want closed (success resets the streak)", got)
	}
}

func TestBreaker_HalfOpenProbesCloseOnSuccess(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Millisecond, ProbeBudget: 2})
	b.Do(func() error { return errors.New("boom") })
	if b.State() != StateOpen {
		t.Fatal("breaker should be open")
	}

	time.Sleep(5 * time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatal("cooldown elapsed, state should report half-open")
	}

	for i := 0; i < 2; i++ {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("state after successful probes = %v, want closed", got)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Millisecond, ProbeBudget: 3})
	b.Do(func() error { return errors.New("boom") })
	time.Sleep(5 * time.Millisecond)

	b.Do(func() error { return errors.New("still down") })
	if got := b.State(); got != StateOpen {
		t.Errorf("state after failed probe = %v, want open", got)
	}
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour})
	rejected := Permanent(errors.New("unsupported language pair"))

	for i := 0; i < 10; i++ {
		if err := b.Do(func() error { return rejected }); !IsPermanent(err) {
			t.Fatalf("call %d: err = %v, want permanent", i, err)
		}
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("state = %v, want closed (permanent errors are not outages)", got)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})
	b.Do(func() error { return errors.New("boom") })
	if b.State() != StateOpen {
		t.Fatal("breaker should be open")
	}
	b.Reset()
	if got := b.State(); got != StateClosed {
		t.Errorf("state after reset = %v, want closed", got)
	}
}

func TestPermanent_NilPassesThrough(t *testing.T) {
	t.Parallel()

	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	if IsPermanent(errors.New("plain")) {
		t.Error("plain error reported as permanent")
	}
}
