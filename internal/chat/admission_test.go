package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nvoronin/gatechat/internal/notify"
)

// countingWhitelist records how many lookups reached it, to verify that
// format failures short-circuit before the membership check.
type countingWhitelist struct {
	mu    sync.Mutex
	codes map[string]struct{}
	calls int
}

func newCountingWhitelist(codes ...string) *countingWhitelist {
	w := &countingWhitelist{codes: make(map[string]struct{})}
	for _, c := range codes {
		w.codes[c] = struct{}{}
	}
	return w
}

func (w *countingWhitelist) Contains(code string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	_, ok := w.codes[code]
	return ok
}

func (w *countingWhitelist) lookups() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

type recordingSink struct {
	mu    sync.Mutex
	kinds []notify.Kind
	last  notify.Fields
}

func (s *recordingSink) Notify(kind notify.Kind, fields notify.Fields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, kind)
	s.last = fields
}

func (s *recordingSink) kindCount(kind notify.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range s.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func (s *recordingSink) lastFields() notify.Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

type memoryLedger struct {
	mu    sync.Mutex
	pairs map[string][]string
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{pairs: make(map[string][]string)}
}

func (l *memoryLedger) RecordUsage(_ context.Context, code, username string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pairs[code] = append(l.pairs[code], username)
	return nil
}

func (l *memoryLedger) users(code string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pairs[code]
}

func newTestGate(wl WhitelistLookup, sink notify.Sink, ledger UsageRecorder) (*AdmissionGate, *AbuseGuard) {
	abuse := NewAbuseGuard(5, time.Minute)
	return NewAdmissionGate(wl, abuse, ledger, sink), abuse
}

func TestAdmissionGate_Success(t *testing.T) {
	wl := newCountingWhitelist("ABCDEFGHI")
	sink := &recordingSink{}
	gate, _ := newTestGate(wl, sink, nil)

	res := gate.Verify("c1", "abcdefghi", "Alice", "203.0.113.1")
	if res.Status != VerifyOK {
		t.Fatalf("Verify = %v, expected VerifyOK", res.Status)
	}
	if res.Code != "ABCDEFGHI" {
		t.Errorf("accepted code = %q, expected uppercased ABCDEFGHI", res.Code)
	}
}

func TestAdmissionGate_RecordAdmission(t *testing.T) {
	wl := newCountingWhitelist("ABCDEFGHI")
	sink := &recordingSink{}
	ledger := newMemoryLedger()
	gate, _ := newTestGate(wl, sink, ledger)

	// Recorded under the name the session actually holds, which may be a
	// suffixed variant of the requested one.
	gate.RecordAdmission("ABCDEFGHI", "Alice#2")

	if got := sink.kindCount(notify.KindVerifySucceeded); got != 1 {
		t.Errorf("verifySucceeded notifications = %d, expected 1", got)
	}
	fields := sink.lastFields()
	if fields["username"] != "Alice#2" {
		t.Errorf("notified username = %q, expected Alice#2", fields["username"])
	}
	if fields["code"] != "AB*****HI" {
		t.Errorf("notified code = %q, expected masked", fields["code"])
	}

	// Ledger writes happen off the hot path.
	deadline := time.Now().Add(time.Second)
	for len(ledger.users("ABCDEFGHI")) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if users := ledger.users("ABCDEFGHI"); len(users) != 1 || users[0] != "Alice#2" {
		t.Errorf("ledger users = %v, expected [Alice#2]", users)
	}
}

func TestAdmissionGate_BadCodeFormatSkipsWhitelist(t *testing.T) {
	wl := newCountingWhitelist("ABCDEFGHI")
	sink := &recordingSink{}
	gate, _ := newTestGate(wl, sink, nil)

	res := gate.Verify("c1", "wronglen", "Alice", "203.0.113.1")
	if res.Status != VerifyFailed {
		t.Fatalf("Verify = %v, expected generic VerifyFailed", res.Status)
	}
	if wl.lookups() != 0 {
		t.Errorf("whitelist consulted %d times for malformed code, expected 0", wl.lookups())
	}
	if got := sink.kindCount(notify.KindVerifyFailed); got != 1 {
		t.Errorf("verifyFailed notifications = %d, expected 1", got)
	}
}

func TestAdmissionGate_InvalidNameNoPenaltyNoLookup(t *testing.T) {
	wl := newCountingWhitelist("ABCDEFGHI")
	sink := &recordingSink{}
	gate, abuse := newTestGate(wl, sink, nil)

	res := gate.Verify("c1", "ABCDEFGHI", "x", "203.0.113.1")
	if res.Status != VerifyInvalidName {
		t.Fatalf("Verify = %v, expected VerifyInvalidName", res.Status)
	}
	if res.Reason == "" {
		t.Error("invalid-name result carries no reason")
	}
	if wl.lookups() != 0 {
		t.Error("whitelist consulted despite invalid name")
	}

	// Name violations carry no admission penalty.
	for i := 0; i < 10; i++ {
		gate.Verify("c1", "ABCDEFGHI", "x", "203.0.113.1")
	}
	if _, blocked := abuse.Blocked("203.0.113.1"); blocked {
		t.Error("address locked out by name violations")
	}
}

func TestAdmissionGate_WhitelistMissIsGeneric(t *testing.T) {
	wl := newCountingWhitelist("ABCDEFGHI")
	sink := &recordingSink{}
	gate, _ := newTestGate(wl, sink, nil)

	res := gate.Verify("c1", "ZZZZZZZZZ", "Alice", "203.0.113.1")
	if res.Status != VerifyFailed {
		t.Fatalf("Verify = %v, expected VerifyFailed", res.Status)
	}
	if res.Reason != "" {
		t.Errorf("whitelist miss leaked a reason: %q", res.Reason)
	}
}

func TestAdmissionGate_LockoutFlow(t *testing.T) {
	wl := newCountingWhitelist("ABCDEFGHI")
	sink := &recordingSink{}
	gate, _ := newTestGate(wl, sink, nil)

	for i := 0; i < 5; i++ {
		if res := gate.Verify("c1", "ZZZZZZZZZ", "Alice", "203.0.113.1"); res.Status != VerifyFailed {
			t.Fatalf("attempt %d = %v, expected VerifyFailed", i+1, res.Status)
		}
	}

	// 6th attempt during lockout is rejected without counting.
	res := gate.Verify("c1", "ZZZZZZZZZ", "Alice", "203.0.113.1")
	if res.Status != VerifyBlocked {
		t.Fatalf("attempt during lockout = %v, expected VerifyBlocked", res.Status)
	}
	if res.RetryAfter <= 0 {
		t.Error("blocked result has no retry delay")
	}
	// Only the 5 counted failures notified the sink.
	if got := sink.kindCount(notify.KindVerifyFailed); got != 5 {
		t.Errorf("verifyFailed notifications = %d, expected 5", got)
	}
}

func TestAdmissionGate_SuccessClearsAbuseRecord(t *testing.T) {
	wl := newCountingWhitelist("ABCDEFGHI")
	gate, abuse := newTestGate(wl, &recordingSink{}, nil)

	for i := 0; i < 4; i++ {
		gate.Verify("c1", "ZZZZZZZZZ", "Alice", "203.0.113.1")
	}
	if res := gate.Verify("c1", "ABCDEFGHI", "Alice", "203.0.113.1"); res.Status != VerifyOK {
		t.Fatalf("Verify = %v, expected VerifyOK", res.Status)
	}

	// Counter back at zero: four fresh failures must not lock.
	for i := 0; i < 4; i++ {
		gate.Verify("c2", "ZZZZZZZZZ", "Alice", "203.0.113.1")
	}
	if _, blocked := abuse.Blocked("203.0.113.1"); blocked {
		t.Error("address locked despite successful reset")
	}
}

func TestValidCodeFormat(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"ABCDEFGHI", true},
		{"A3K9X7M2B", true},
		{"ABCDEFGH", false},
		{"ABCDEFGHIJ", false},
		{"ABCDEFGH!", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := validCodeFormat(tc.code); got != tc.want {
			t.Errorf("validCodeFormat(%q) = %v, expected %v", tc.code, got, tc.want)
		}
	}
}
