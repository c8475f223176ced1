package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nvoronin/gatechat/internal/chat"
	"github.com/nvoronin/gatechat/internal/notify"
	"github.com/nvoronin/gatechat/internal/whitelist"
)

// fakeLedger is an in-memory store.Ledger for handler tests.
type fakeLedger struct {
	usage map[string][]string
	fail  bool
}

func (l *fakeLedger) RecordUsage(_ context.Context, code, username string) error {
	if l.usage == nil {
		l.usage = make(map[string][]string)
	}
	l.usage[code] = append(l.usage[code], username)
	return nil
}

func (l *fakeLedger) Snapshot(context.Context) (map[string][]string, error) {
	if l.fail {
		return nil, errors.New("ledger unavailable")
	}
	return l.usage, nil
}

func (l *fakeLedger) CodeCount(context.Context) (int, error) {
	if l.fail {
		return 0, errors.New("ledger unavailable")
	}
	return len(l.usage), nil
}

func (l *fakeLedger) Ping(context.Context) error { return nil }
func (l *fakeLedger) Close() error               { return nil }

func newTestHandler(t *testing.T, ledger *fakeLedger) (*Handler, *whitelist.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whitelist.txt")
	if err := os.WriteFile(path, []byte("A3K9X7M2B\nZZZZZZZZZ\n"), 0644); err != nil {
		t.Fatal(err)
	}
	wl := whitelist.New(path)
	if err := wl.Load(); err != nil {
		t.Fatalf("whitelist load: %v", err)
	}

	table := chat.NewConnectionTable()
	names := chat.NewNameRegistry()
	abuse := chat.NewAbuseGuard(5, time.Minute)
	rate := chat.NewRateBudget(5, 10*time.Second)
	history := chat.NewHistoryBuffer(50)
	sink := notify.NopSink{}
	gate := chat.NewAdmissionGate(wl, abuse, ledger, sink)
	router := chat.NewMessageRouter(table, rate, history, sink)
	sup := chat.NewSupervisor(table, names, gate, router, rate, history, sink)

	return NewHandler(wl, ledger, sup, true, false), wl
}

func serve(t *testing.T, h *Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, expected application/json", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("malformed response body: %v", err)
	}
	return body
}

func TestStatusEndpoint(t *testing.T) {
	ledger := &fakeLedger{}
	ledger.RecordUsage(context.Background(), "A3K9X7M2B", "Alice")
	h, _ := newTestHandler(t, ledger)

	rec := serve(t, h, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}
	body := decode(t, rec)

	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["connectedClients"] != float64(0) {
		t.Errorf("connectedClients = %v, expected 0", body["connectedClients"])
	}
	if body["whitelistedCodes"] != float64(2) {
		t.Errorf("whitelistedCodes = %v, expected 2", body["whitelistedCodes"])
	}
	if body["trackedCodes"] != float64(1) {
		t.Errorf("trackedCodes = %v, expected 1", body["trackedCodes"])
	}
	hooks, ok := body["webhooksConfigured"].(map[string]any)
	if !ok {
		t.Fatal("webhooksConfigured missing")
	}
	if hooks["logs"] != true || hooks["chat"] != false {
		t.Errorf("webhooksConfigured = %v", hooks)
	}
}

func TestReloadWhitelistEndpoint(t *testing.T) {
	h, wl := newTestHandler(t, &fakeLedger{})

	rec := serve(t, h, "/reload-whitelist")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}
	body := decode(t, rec)
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if body["totalCodes"] != float64(wl.Size()) {
		t.Errorf("totalCodes = %v, expected %d", body["totalCodes"], wl.Size())
	}
}

func TestCodeUsageEndpoint(t *testing.T) {
	ledger := &fakeLedger{}
	ledger.RecordUsage(context.Background(), "A3K9X7M2B", "Alice")
	ledger.RecordUsage(context.Background(), "A3K9X7M2B", "Bob")
	ledger.RecordUsage(context.Background(), "ZZZZZZZZZ", "Carol")
	h, _ := newTestHandler(t, ledger)

	rec := serve(t, h, "/admin/code-usage")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}
	body := decode(t, rec)
	if body["totalCodes"] != float64(2) {
		t.Errorf("totalCodes = %v, expected 2", body["totalCodes"])
	}
	if body["totalUsers"] != float64(3) {
		t.Errorf("totalUsers = %v, expected 3", body["totalUsers"])
	}
	usage, ok := body["codeUsage"].(map[string]any)
	if !ok {
		t.Fatal("codeUsage missing")
	}
	if len(usage) != 2 {
		t.Errorf("codeUsage has %d codes, expected 2", len(usage))
	}
}

func TestLedgerFailureReportedAsError(t *testing.T) {
	h, _ := newTestHandler(t, &fakeLedger{fail: true})

	for _, target := range []string{"/", "/admin/code-usage"} {
		rec := serve(t, h, target)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s status = %d, expected 500", target, rec.Code)
		}
		body := decode(t, rec)
		if body["error"] == "" || body["error"] == nil {
			t.Errorf("%s error field missing", target)
		}
	}
}
