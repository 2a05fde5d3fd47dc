//go:build unix

package measure

import (
	"os/exec"
	"syscall"
)

// killGroup starts cmd in its own process group and kills the whole group
// on context expiry, so helpers spawned by a wrapper die with it.
func killGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
