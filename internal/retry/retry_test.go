package retry

import (
	"testing"
	"time"
)

func TestDelayForAttemptDefaultPolicy(t *testing.T) {
	p := Policy{
		InitialDelay: 100 * time.Millisecond,
		Backoff:      2.0,
		MaxDelay:     10 * time.Second,
	}
	cases := []struct {
		attempt uint32
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
	}
	for _, c := range cases {
		got := p.DelayForAttempt(c.attempt)
		if got != c.want {
			t.Errorf("attempt %d: got %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestDelayForAttemptCapsAtMaxDelay(t *testing.T) {
	p := DefaultPolicy()
	got := p.DelayForAttempt(10)
	if got != 30000*time.Millisecond {
		t.Errorf("got %v, want capped 30s", got)
	}
}

func TestShouldRetryBounded(t *testing.T) {
	max := uint32(3)
	p := Policy{MaxAttempts: &max}
	want := []bool{true, true, true, false}
	for attempt, w := range want {
		if got := p.ShouldRetry(uint32(attempt)); got != w {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, w)
		}
	}
}

func TestShouldRetryUnbounded(t *testing.T) {
	p := DefaultPolicy()
	if !p.ShouldRetry(1000) {
		t.Error("unbounded policy should always retry")
	}
}
