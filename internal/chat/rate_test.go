package chat

import (
	"strconv"
	"testing"
	"time"
)

func TestRateBudget_AllowsUpToLimit(t *testing.T) {
	b := NewRateBudget(5, 10*time.Second)

	for i := 0; i < 5; i++ {
		if !b.Check("sess-1") {
			t.Fatalf("Check %d denied, expected allowed", i+1)
		}
	}
	if b.Check("sess-1") {
		t.Error("6th check within window allowed, expected denied")
	}
}

func TestRateBudget_DenialLeavesStateUnchanged(t *testing.T) {
	b := NewRateBudget(2, 50*time.Millisecond)

	b.Check("sess-1")
	b.Check("sess-1")
	// Repeated denials must not consume or extend the window.
	for i := 0; i < 10; i++ {
		if b.Check("sess-1") {
			t.Fatalf("check %d allowed over budget", i)
		}
	}

	time.Sleep(60 * time.Millisecond)
	if !b.Check("sess-1") {
		t.Error("check after window expiry denied, expected allowed")
	}
}

func TestRateBudget_WindowResetsLazily(t *testing.T) {
	b := NewRateBudget(1, 30*time.Millisecond)

	if !b.Check("sess-1") {
		t.Fatal("first check denied")
	}
	if b.Check("sess-1") {
		t.Fatal("second check within window allowed")
	}

	time.Sleep(40 * time.Millisecond)
	if !b.Check("sess-1") {
		t.Error("check in fresh window denied")
	}
}

func TestRateBudget_PerSessionBudgets(t *testing.T) {
	b := NewRateBudget(1, time.Minute)

	for i := 0; i < 3; i++ {
		id := "sess-" + strconv.Itoa(i)
		if !b.Check(id) {
			t.Errorf("first check for %s denied", id)
		}
	}
}

func TestRateBudget_ForgetFreesBudget(t *testing.T) {
	b := NewRateBudget(1, time.Minute)

	b.Check("sess-1")
	if b.Check("sess-1") {
		t.Fatal("second check allowed")
	}

	// A reconnect under the same id starts fresh.
	b.Forget("sess-1")
	if !b.Check("sess-1") {
		t.Error("check after Forget denied")
	}
}
