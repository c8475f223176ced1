package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nvoronin/gatechat/internal/notify"
)

// CodeLength is the exact length of a whitelist authorization code.
const CodeLength = 9

// WhitelistLookup is the admission-control capability consumed from the
// whitelist collaborator. Lookups are case-insensitive.
type WhitelistLookup interface {
	Contains(code string) bool
}

// UsageRecorder records which display names have used which codes.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, code, username string) error
}

// VerifyStatus classifies the outcome of a verification attempt.
type VerifyStatus int

// Verification outcomes. Format failures and whitelist misses both map
// to VerifyFailed so a probing client cannot tell which check tripped.
const (
	VerifyOK VerifyStatus = iota
	VerifyBlocked
	VerifyInvalidName
	VerifyFailed
)

// VerifyResult is the outcome of AdmissionGate.Verify.
type VerifyResult struct {
	Status     VerifyStatus
	Code       string        // normalized accepted code, set for VerifyOK
	RetryAfter time.Duration // set for VerifyBlocked
	Reason     string        // client-facing detail for VerifyInvalidName
}

// AdmissionGate runs the verification checks. A session starts Connected
// and moves to Verified exactly once; failures leave it Connected and it
// may retry indefinitely, subject only to the abuse lockout for its
// origin address.
type AdmissionGate struct {
	whitelist WhitelistLookup
	abuse     *AbuseGuard
	ledger    UsageRecorder
	sink      notify.Sink
}

// NewAdmissionGate wires the gate to its collaborators. ledger may be
// nil when usage tracking is disabled.
func NewAdmissionGate(whitelist WhitelistLookup, abuse *AbuseGuard, ledger UsageRecorder, sink notify.Sink) *AdmissionGate {
	return &AdmissionGate{
		whitelist: whitelist,
		abuse:     abuse,
		ledger:    ledger,
		sink:      sink,
	}
}

// Verify runs the admission checks in order: lockout, display-name
// format, code format, whitelist membership. On success it clears the
// address's abuse record and returns the normalized code; the caller
// allocates the display name, flips the session state, and then calls
// RecordAdmission with the allocated name.
func (g *AdmissionGate) Verify(id, code, name, addr string) VerifyResult {
	if remaining, blocked := g.abuse.Blocked(addr); blocked {
		slog.Warn("Verification rejected, address locked out", "addr", addr, "retry_after", remaining)
		return VerifyResult{Status: VerifyBlocked, RetryAfter: remaining}
	}

	if err := ValidateDisplayName(name); err != nil {
		return VerifyResult{Status: VerifyInvalidName, Reason: err.Error()}
	}

	upper := strings.ToUpper(strings.TrimSpace(code))
	if !validCodeFormat(upper) {
		g.fail(addr, name, upper)
		return VerifyResult{Status: VerifyFailed}
	}

	if !g.whitelist.Contains(upper) {
		g.fail(addr, name, upper)
		return VerifyResult{Status: VerifyFailed}
	}

	g.abuse.Clear(addr)
	slog.Info("Session verified", "session_id", id, "username", name)
	return VerifyResult{Status: VerifyOK, Code: upper}
}

// RecordAdmission reports a completed admission under the display name
// the session actually holds, which may differ from the requested one
// when the registry had to suffix it.
func (g *AdmissionGate) RecordAdmission(code, name string) {
	g.recordUsage(code, name)
	g.sink.Notify(notify.KindVerifySucceeded, notify.Fields{
		"username": name,
		"code":     notify.MaskCode(code),
	})
}

func (g *AdmissionGate) fail(addr, name, code string) {
	locked := g.abuse.RecordFailure(addr)
	if locked {
		slog.Warn("Address locked out after repeated failures", "addr", addr)
	}
	g.sink.Notify(notify.KindVerifyFailed, notify.Fields{
		"username": name,
		"code":     notify.MaskCode(code),
	})
}

// recordUsage persists the (code, name) pair off the hot path. Ledger
// failures are logged, never surfaced to the client.
func (g *AdmissionGate) recordUsage(code, name string) {
	if g.ledger == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.ledger.RecordUsage(ctx, code, name); err != nil {
			slog.Warn("Failed to record code usage", "error", err)
		}
	}()
}

func validCodeFormat(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
