package testutil

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestFakeClock_AdvanceMovesNow(t *testing.T) {
	start := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	if got := clock.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	clock.Advance(90 * time.Second)
	clock.Advance(30 * time.Second)

	want := start.Add(2 * time.Minute)
	if got := clock.Now(); !got.Equal(want) {
		t.Errorf("after two advances, Now() = %v, want %v", got, want)
	}
}

func TestTestContext_HasDeadline(t *testing.T) {
	ctx := TestContext(t)

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("TestContext should carry a deadline")
	}
	if remaining := time.Until(deadline); remaining <= 0 || remaining > 6*time.Second {
		t.Errorf("deadline should be a few seconds out, got %v", remaining)
	}
}

func TestMustParseUUID(t *testing.T) {
	const s = "c8d4a7e2-1b3f-4f6a-a0d9-7e8f9a0b1c03"
	if got := MustParseUUID(s); got.String() != s {
		t.Errorf("MustParseUUID(%q) = %s", s, got)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustParseUUID should panic on garbage input")
		}
	}()
	MustParseUUID("not-a-uuid")
}

func TestWaitUntil_SeesAsyncCondition(t *testing.T) {
	var done atomic.Bool
	go func() {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
	}()

	WaitUntil(t, time.Second, done.Load)
}

func TestWaitUntil_FailsOnTimeout(t *testing.T) {
	// Fatalf exits the calling goroutine, so run WaitUntil off to the side.
	inner := &testing.T{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		WaitUntil(inner, 30*time.Millisecond, func() bool { return false })
	}()
	<-done

	if !inner.Failed() {
		t.Error("WaitUntil should fail the test when the condition never holds")
	}
}
