package exchange

import (
	"testing"
	"time"
)

func TestNormalizeDepthLimit(t *testing.T) {
	t.Parallel()
	cases := map[int]int{
		1:    5,
		5:    5,
		7:    10,
		21:   50,
		100:  100,
		501:  1000,
		5000: 1000,
	}
	for in, want := range cases {
		if got := NormalizeDepthLimit(in); got != want {
			t.Errorf("NormalizeDepthLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestRateLimiterBackoffDoublesAndResets(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter()
	now := time.Now()

	rl.RecordAttempt("BTCUSDT", now)
	if got := rl.CurrentBackoff("BTCUSDT"); got != minBackoff {
		t.Fatalf("initial backoff = %v, want %v", got, minBackoff)
	}

	rl.RecordThrottled("BTCUSDT")
	if got := rl.CurrentBackoff("BTCUSDT"); got != 4*time.Second {
		t.Fatalf("backoff after one throttle = %v, want 4s", got)
	}

	for i := 0; i < 10; i++ {
		rl.RecordThrottled("BTCUSDT")
	}
	if got := rl.CurrentBackoff("BTCUSDT"); got != maxBackoff {
		t.Fatalf("backoff should cap at %v, got %v", maxBackoff, got)
	}

	rl.RecordSuccess("BTCUSDT")
	if got := rl.CurrentBackoff("BTCUSDT"); got != minBackoff {
		t.Fatalf("backoff after success = %v, want %v", got, minBackoff)
	}
}

func TestRateLimiterAllowRespectsThrottleInterval(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter()
	now := time.Now()
	rl.RecordAttempt("ETHUSDT", now)

	if ok, _ := rl.Allow("ETHUSDT", now.Add(100*time.Millisecond)); ok {
		t.Fatal("Allow should refuse within the 500ms throttle interval")
	}
	if ok, _ := rl.Allow("ETHUSDT", now.Add(minBackoff+time.Millisecond)); !ok {
		t.Fatal("Allow should permit once the backoff interval has elapsed")
	}
}
