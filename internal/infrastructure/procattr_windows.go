//go:build windows

package infrastructure

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts the tool in a new process group; cancellation kills the process
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
