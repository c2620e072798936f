//go:build !windows

package player

import (
	"os/exec"
	"syscall"
)

// setProcessGroup keeps Ctrl+C in the terminal from reaching mpv directly
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
