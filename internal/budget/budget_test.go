package budget

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/roguectrl/electricsheep/internal/clock"
	"github.com/roguectrl/electricsheep/internal/state"
)

var testNow = time.Date(2026, 3, 14, 22, 30, 0, 0, time.UTC)

func setupLedger(t *testing.T, limit int) (*Ledger, *state.Store, *clock.FakeClock) {
	t.Helper()
	st := state.New("state.json", state.NewMemFS(), nil)
	clk := clock.Fake(testNow)
	return New(st, limit, clk, nil), st, clk
}

func seed(t *testing.T, st *state.Store, date string, used int) {
	t.Helper()
	if err := st.Save(state.Document{KeyDate: date, KeyUsed: used}); err != nil {
		t.Fatalf("seed state: %v", err)
	}
}

func okCall(units *Usage) func(context.Context) (string, *Usage, error) {
	return func(context.Context) (string, *Usage, error) {
		return "ok", units, nil
	}
}

func TestUsedToday_DayRollover(t *testing.T) {
	l, st, _ := setupLedger(t, 1000)
	seed(t, st, "2026-03-13", 999_999)

	if got := l.UsedToday(); got != 0 {
		t.Errorf("UsedToday after rollover = %d, want 0", got)
	}
	remaining, unbounded := l.RemainingToday()
	if unbounded || remaining != 1000 {
		t.Errorf("RemainingToday = (%d, %v), want (1000, false)", remaining, unbounded)
	}
}

func TestUsedToday_UsesUTCDate(t *testing.T) {
	l, st, clk := setupLedger(t, 100)
	// 22:30 UTC on the 14th is already the 15th in UTC+10.
	clk.Set(time.Date(2026, 3, 15, 8, 30, 0, 0, time.FixedZone("AEST", 10*3600)))
	seed(t, st, "2026-03-14", 40)

	if got := l.UsedToday(); got != 40 {
		t.Errorf("UsedToday = %d, want 40 (UTC date is still 2026-03-14)", got)
	}
}

func TestRecordUsage_ResetsOnNewDay(t *testing.T) {
	l, st, clk := setupLedger(t, 0)
	if err := l.RecordUsage(30); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if err := l.RecordUsage(12); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if got := l.UsedToday(); got != 42 {
		t.Fatalf("UsedToday = %d, want 42", got)
	}

	clk.Advance(2 * time.Hour)
	if err := l.RecordUsage(5); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	doc := st.Load()
	if doc.String(KeyDate) != "2026-03-15" || doc.Int(KeyUsed) != 5 {
		t.Errorf("state after rollover = %v, want date 2026-03-15 used 5", doc)
	}
}

func TestRecordUsage_PreservesOtherKeys(t *testing.T) {
	l, st, _ := setupLedger(t, 0)
	if err := st.Save(state.Document{"total_dreams": 4}); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordUsage(10); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if st.Load().Int("total_dreams") != 4 {
		t.Error("RecordUsage clobbered an unrelated state key")
	}
}

func TestRemainingToday(t *testing.T) {
	tests := []struct {
		name          string
		limit, used   int
		wantRemaining int
		wantUnbounded bool
	}{
		{"unbounded zero", 0, 500, 0, true},
		{"unbounded negative", -1, 500, 0, true},
		{"partial", 1000, 250, 750, false},
		{"exact", 1000, 1000, 0, false},
		{"overshoot floors at zero", 1000, 1300, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, st, _ := setupLedger(t, tt.limit)
			seed(t, st, "2026-03-14", tt.used)
			remaining, unbounded := l.RemainingToday()
			if remaining != tt.wantRemaining || unbounded != tt.wantUnbounded {
				t.Errorf("RemainingToday = (%d, %v), want (%d, %v)",
					remaining, unbounded, tt.wantRemaining, tt.wantUnbounded)
			}
		})
	}
}

func TestCall_RefusesAtLimit(t *testing.T) {
	const limit = 1000
	l, st, _ := setupLedger(t, limit)
	seed(t, st, "2026-03-14", limit)

	invoked := false
	_, err := Call(context.Background(), l, func(context.Context) (string, *Usage, error) {
		invoked = true
		return "", nil, nil
	})

	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("err = %v, want *ExceededError", err)
	}
	if invoked {
		t.Error("metered call was invoked despite the exhausted budget")
	}
	if exceeded.Used != limit || exceeded.Limit != limit {
		t.Errorf("ExceededError = %+v", exceeded)
	}
	msg := err.Error()
	for _, want := range []string{"1000 of 1000", "UTC calendar day"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q does not mention %q", msg, want)
		}
	}
}

func TestCall_OneBelowLimitMayOvershoot(t *testing.T) {
	const limit = 1000
	l, st, _ := setupLedger(t, limit)
	seed(t, st, "2026-03-14", limit-1)

	got, err := Call(context.Background(), l, okCall(&Usage{InputUnits: 400, OutputUnits: 100}))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %q", got)
	}
	if used := l.UsedToday(); used != limit-1+500 {
		t.Errorf("UsedToday = %d, want %d", used, limit-1+500)
	}

	if _, err := Call(context.Background(), l, okCall(nil)); err == nil {
		t.Error("expected the next call to be refused")
	}
}

func TestCall_FailureRecordsNothing(t *testing.T) {
	l, _, _ := setupLedger(t, 1000)
	boom := errors.New("upstream exploded")

	_, err := Call(context.Background(), l, func(context.Context) (string, *Usage, error) {
		return "", &Usage{InputUnits: 50}, boom
	})
	if err != boom {
		t.Errorf("err = %v, want the call's own error unchanged", err)
	}
	if used := l.UsedToday(); used != 0 {
		t.Errorf("UsedToday = %d after a failed call, want 0", used)
	}
}

func TestCall_MissingUsageRecordsNothing(t *testing.T) {
	l, _, _ := setupLedger(t, 1000)
	if _, err := Call(context.Background(), l, okCall(nil)); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if used := l.UsedToday(); used != 0 {
		t.Errorf("UsedToday = %d, want 0 when no usage was reported", used)
	}
}

func TestCall_UnboundedNeverRefuses(t *testing.T) {
	l, st, _ := setupLedger(t, 0)
	seed(t, st, "2026-03-14", 50_000_000)
	if _, err := Call(context.Background(), l, okCall(&Usage{OutputUnits: 1})); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if used := l.UsedToday(); used != 50_000_001 {
		t.Errorf("UsedToday = %d", used)
	}
}
