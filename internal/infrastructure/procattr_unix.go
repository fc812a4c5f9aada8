//go:build !windows

package infrastructure

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the tool in its own process group and makes context
// cancellation kill the whole group, including ffmpeg children
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
}
