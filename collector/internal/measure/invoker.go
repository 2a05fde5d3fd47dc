package measure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/linkcomfort/linkcomfort/pkg/config"
	"github.com/linkcomfort/linkcomfort/pkg/types"
)

// Failure cause prefixes recorded in types.Sample.ErrorMessage.
const (
	CauseTimeout     = "timeout"
	CauseNonzeroExit = "nonzero_exit"
	CauseParseError  = "parse_error"
	CauseExecError   = "exec_error"
	CauseCanceled    = "canceled"
)

// Result is the outcome of one Run: the sample to persist plus how many
// process launches it took.
type Result struct {
	Sample   types.Sample
	Attempts int
}

// Invoker runs the external speed-test command with a per-attempt timeout
// and a fixed-delay retry loop. It never persists anything.
type Invoker struct {
	cfg config.MeasurementConfig

	run      runFunc
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	lookPath func(string) (string, error)
	exists   func(string) bool
}

// New returns an Invoker that launches real processes.
func New(cfg config.MeasurementConfig) *Invoker {
	return &Invoker{
		cfg:      cfg,
		run:      execRun,
		sleep:    sleepCtx,
		now:      time.Now,
		lookPath: exec.LookPath,
		exists:   isExecutable,
	}
}

// Measure performs one measurement and always returns a sample: an ok
// sample on the first successful attempt, otherwise an error sample whose
// message is the cause of the final attempt.
func (inv *Invoker) Measure(ctx context.Context) types.Sample {
	return inv.Run(ctx).Sample
}

// Run is Measure plus the number of attempts made.
func (inv *Invoker) Run(ctx context.Context) Result {
	command := resolveCommand(inv.cfg.Command, inv.lookPath, inv.exists)
	maxAttempts := inv.cfg.RetryCount + 1

	var (
		cause   string
		payload string
		attempt int
	)
	for attempt = 1; attempt <= maxAttempts; attempt++ {
		var p parsed
		p, payload, cause = inv.attempt(ctx, command)
		if cause == "" {
			s := types.NewOK(inv.now(), p.metrics, p.provider, p.serverID)
			s.ServerName = p.serverName
			s.ResultURL = p.resultURL
			s.RawPayload = payload
			slog.Info("measure: attempt succeeded",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"download_mbps", p.metrics.DownloadMbps,
				"upload_mbps", p.metrics.UploadMbps,
				"ping_ms", p.metrics.PingMs,
				"jitter_ms", p.metrics.JitterMs,
			)
			return Result{Sample: s, Attempts: attempt}
		}

		slog.Warn("measure: attempt failed",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"cause", cause,
		)
		if strings.HasPrefix(cause, CauseCanceled) || attempt == maxAttempts {
			break
		}
		if err := inv.sleep(ctx, inv.cfg.RetryWait()); err != nil {
			cause = CauseCanceled + ":" + err.Error()
			break
		}
	}
	slog.Error("measure: all attempts failed", "attempts", attempt, "cause", cause)
	return Result{Sample: types.NewError(inv.now(), cause, payload), Attempts: attempt}
}

// attempt makes exactly one launch. An empty cause means success.
func (inv *Invoker) attempt(ctx context.Context, command string) (parsed, string, string) {
	actx, cancel := context.WithTimeout(ctx, inv.cfg.Timeout())
	defer cancel()

	out, err := inv.run(actx, command, inv.cfg.Args)
	payload := out.payload()
	switch {
	case ctx.Err() != nil:
		return parsed{}, payload, CauseCanceled + ":" + ctx.Err().Error()
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(actx.Err(), context.DeadlineExceeded):
		return parsed{}, payload, CauseTimeout
	case err != nil:
		return parsed{}, payload, CauseExecError + ":" + err.Error()
	case out.ExitCode != 0:
		if stderr := strings.TrimSpace(string(out.Stderr)); stderr != "" {
			slog.Debug("measure: command stderr", "exit_code", out.ExitCode, "stderr", stderr)
		}
		return parsed{}, payload, fmt.Sprintf("%s:%d", CauseNonzeroExit, out.ExitCode)
	}

	p, perr := parseResult(out.Stdout)
	if perr != nil {
		return parsed{}, payload, CauseParseError + ":" + perr.Error()
	}
	return p, payload, ""
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
