package measure

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/linkcomfort/linkcomfort/pkg/config"
	"github.com/linkcomfort/linkcomfort/pkg/types"
)

// step is one scripted runner response.
type step struct {
	out output
	err error
}

// fakeRunner replays steps in order and records every launch.
type fakeRunner struct {
	steps []step
	calls int
	names []string
}

func (f *fakeRunner) run(_ context.Context, name string, _ []string) (output, error) {
	f.names = append(f.names, name)
	i := f.calls
	f.calls++
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	return f.steps[i].out, f.steps[i].err
}

// fakeSleeper records requested waits without sleeping.
type fakeSleeper struct {
	waits []time.Duration
	err   error
}

func (f *fakeSleeper) sleep(_ context.Context, d time.Duration) error {
	f.waits = append(f.waits, d)
	return f.err
}

var fixedNow = time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)

func newTestInvoker(retry, waitSec int, steps ...step) (*Invoker, *fakeRunner, *fakeSleeper) {
	cfg := config.Defaults().Measurement
	cfg.Command = "/usr/local/bin/speedtest"
	cfg.RetryCount = retry
	cfg.RetryWaitSec = waitSec

	r := &fakeRunner{steps: steps}
	s := &fakeSleeper{}
	inv := New(cfg)
	inv.run = r.run
	inv.sleep = s.sleep
	inv.now = func() time.Time { return fixedNow }
	return inv, r, s
}

func okStep() step {
	return step{out: output{Stdout: []byte(ooklaJSON)}}
}

func totalWait(waits []time.Duration) time.Duration {
	var d time.Duration
	for _, w := range waits {
		d += w
	}
	return d
}

func TestMeasure_FirstAttemptSucceeds(t *testing.T) {
	inv, r, s := newTestInvoker(3, 10, okStep())

	res := inv.Run(context.Background())
	if res.Attempts != 1 || r.calls != 1 {
		t.Errorf("attempts: got %d (calls %d), want 1", res.Attempts, r.calls)
	}
	if len(s.waits) != 0 {
		t.Errorf("unexpected waits: %v", s.waits)
	}

	got := res.Sample
	if err := got.Validate(); err != nil {
		t.Fatalf("sample invalid: %v", err)
	}
	if !got.OK() {
		t.Fatalf("status: got %q, want ok", got.Status)
	}
	if got.Metrics.DownloadMbps != 100 || got.Metrics.UploadMbps != 50 {
		t.Errorf("bandwidth: got %v/%v Mbps", got.Metrics.DownloadMbps, got.Metrics.UploadMbps)
	}
	if got.Provider != "Example ISP" || got.ServerID != "48463" || got.ServerName != "Example Tokyo" {
		t.Errorf("metadata: got %q/%q/%q", got.Provider, got.ServerID, got.ServerName)
	}
	if !got.Timestamp.Equal(fixedNow) {
		t.Errorf("timestamp: got %v, want %v", got.Timestamp, fixedNow)
	}
	if got.RawPayload != ooklaJSON {
		t.Error("raw payload not retained")
	}
}

func TestMeasure_RetriesExhausted(t *testing.T) {
	inv, r, s := newTestInvoker(3, 10, step{out: output{ExitCode: 2, Stderr: []byte("network unreachable")}})

	res := inv.Run(context.Background())
	if r.calls != 4 || res.Attempts != 4 {
		t.Errorf("attempts: got %d (calls %d), want retry_count+1 = 4", res.Attempts, r.calls)
	}
	if len(s.waits) != 3 {
		t.Errorf("waits: got %d, want 3", len(s.waits))
	}
	if got := totalWait(s.waits); got != 30*time.Second {
		t.Errorf("total wait: got %v, want 30s", got)
	}
	for _, w := range s.waits {
		if w != 10*time.Second {
			t.Errorf("wait %v is not the fixed 10s delay", w)
		}
	}

	got := res.Sample
	if err := got.Validate(); err != nil {
		t.Fatalf("sample invalid: %v", err)
	}
	if got.Status != types.StatusError || got.ErrorMessage != "nonzero_exit:2" {
		t.Errorf("got status %q message %q", got.Status, got.ErrorMessage)
	}
	if got.RawPayload != "network unreachable" {
		t.Errorf("raw payload: got %q", got.RawPayload)
	}
}

func TestMeasure_ZeroRetries(t *testing.T) {
	inv, r, s := newTestInvoker(0, 10, step{err: context.DeadlineExceeded})

	res := inv.Run(context.Background())
	if r.calls != 1 || len(s.waits) != 0 {
		t.Errorf("calls %d waits %d, want 1 and 0", r.calls, len(s.waits))
	}
	if res.Sample.ErrorMessage != CauseTimeout {
		t.Errorf("cause: got %q", res.Sample.ErrorMessage)
	}
}

func TestMeasure_RecoversAfterFailure(t *testing.T) {
	inv, r, s := newTestInvoker(3, 5,
		step{err: context.DeadlineExceeded},
		step{out: output{Stdout: []byte("not json")}},
		okStep(),
	)

	res := inv.Run(context.Background())
	if !res.Sample.OK() {
		t.Fatalf("expected ok sample, got %q", res.Sample.ErrorMessage)
	}
	if res.Attempts != 3 || r.calls != 3 {
		t.Errorf("attempts: got %d (calls %d), want 3", res.Attempts, r.calls)
	}
	if got := totalWait(s.waits); got != 10*time.Second {
		t.Errorf("total wait: got %v, want 10s", got)
	}
}

func TestMeasure_TerminalCause(t *testing.T) {
	tests := []struct {
		name       string
		last       step
		wantPrefix string
	}{
		{"timeout", step{err: context.DeadlineExceeded}, "timeout"},
		{"nonzero exit", step{out: output{ExitCode: 137}}, "nonzero_exit:137"},
		{"parse error", step{out: output{Stdout: []byte(`{"isp":"X"}`)}}, "parse_error:"},
		{"launch failure", step{err: errors.New(`exec: "speedtest": executable file not found in $PATH`)}, "exec_error:"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// Earlier attempts fail differently; only the last cause is kept.
			inv, _, _ := newTestInvoker(1, 0, step{out: output{ExitCode: 1}}, tc.last)

			got := inv.Measure(context.Background())
			if err := got.Validate(); err != nil {
				t.Fatalf("sample invalid: %v", err)
			}
			if !strings.HasPrefix(got.ErrorMessage, tc.wantPrefix) {
				t.Errorf("cause: got %q, want prefix %q", got.ErrorMessage, tc.wantPrefix)
			}
			if got.Metrics != nil {
				t.Error("error sample carries metrics")
			}
		})
	}
}

func TestMeasure_ParseErrorKeepsPayload(t *testing.T) {
	inv, _, _ := newTestInvoker(0, 0, step{out: output{Stdout: []byte("<html>captive portal</html>")}})

	got := inv.Measure(context.Background())
	if !strings.HasPrefix(got.ErrorMessage, CauseParseError) {
		t.Fatalf("cause: got %q", got.ErrorMessage)
	}
	if got.RawPayload != "<html>captive portal</html>" {
		t.Errorf("raw payload: got %q", got.RawPayload)
	}
}

func TestMeasure_CanceledDuringWait(t *testing.T) {
	inv, r, s := newTestInvoker(3, 10, step{out: output{ExitCode: 1}})
	s.err = context.Canceled

	got := inv.Measure(context.Background())
	if r.calls != 1 {
		t.Errorf("calls after canceled wait: got %d, want 1", r.calls)
	}
	if !strings.HasPrefix(got.ErrorMessage, CauseCanceled) {
		t.Errorf("cause: got %q", got.ErrorMessage)
	}
}

func TestMeasure_CanceledContextStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inv, r, _ := newTestInvoker(3, 0)
	r.steps = []step{{err: context.Canceled}}
	inv.run = func(c context.Context, name string, args []string) (output, error) {
		cancel()
		return r.run(c, name, args)
	}

	got := inv.Measure(ctx)
	if r.calls != 1 {
		t.Errorf("calls: got %d, want 1", r.calls)
	}
	if !strings.HasPrefix(got.ErrorMessage, CauseCanceled) {
		t.Errorf("cause: got %q", got.ErrorMessage)
	}
}

func TestMeasure_ResolvesCommandOnce(t *testing.T) {
	inv, r, _ := newTestInvoker(1, 0, step{out: output{ExitCode: 1}})
	inv.cfg.Command = "speedtest"
	inv.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	inv.exists = func(p string) bool { return p == "/usr/bin/speedtest" }

	inv.Measure(context.Background())
	for _, name := range r.names {
		if name != "/usr/bin/speedtest" {
			t.Errorf("launched %q, want fallback path", name)
		}
	}
}

func TestSleepCtx(t *testing.T) {
	if err := sleepCtx(context.Background(), 0); err != nil {
		t.Errorf("zero sleep: %v", err)
	}
	if err := sleepCtx(context.Background(), time.Millisecond); err != nil {
		t.Errorf("short sleep: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled sleep: got %v", err)
	}
}
