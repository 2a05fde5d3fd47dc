package measure

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// fallbackDirs are well-known install locations of the Ookla CLI, searched
// when the command is not on PATH (cron and launchd run with a minimal PATH).
var fallbackDirs = []string{"/opt/homebrew/bin", "/usr/local/bin", "/usr/bin"}

// waitDelay bounds how long Run waits for output pipes to close after the
// command is killed. Grandchildren of a wrapper script can hold them open.
const waitDelay = 2 * time.Second

// output is everything captured from one process run.
type output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// payload returns the text worth keeping for diagnosis: stdout when the
// command wrote any, else stderr.
func (o output) payload() string {
	if len(bytes.TrimSpace(o.Stdout)) > 0 {
		return string(o.Stdout)
	}
	return string(o.Stderr)
}

// runFunc launches name with args and waits for it. A non-zero exit is
// reported through output.ExitCode with a nil error; a non-nil error means
// the process could not run to completion (launch failure or ctx expiry).
type runFunc func(ctx context.Context, name string, args []string) (output, error)

// execRun is the production runFunc.
func execRun(ctx context.Context, name string, args []string) (output, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	killGroup(cmd)

	err := cmd.Run()
	out := output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if ctx.Err() != nil {
		return out, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	return out, err
}

// resolveCommand turns a bare command name into an executable path, trying
// PATH first and then fallbackDirs. Names containing a separator are used
// verbatim. When nothing matches, the name is returned unchanged so the
// launch fails with a descriptive error.
func resolveCommand(name string, lookPath func(string) (string, error), exists func(string) bool) string {
	if strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	if p, err := lookPath(name); err == nil {
		return p
	}
	for _, dir := range fallbackDirs {
		if candidate := filepath.Join(dir, name); exists(candidate) {
			return candidate
		}
	}
	return name
}

// isExecutable reports whether path is a regular file with an execute bit.
func isExecutable(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular() && fi.Mode().Perm()&0o111 != 0
}
