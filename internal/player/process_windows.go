//go:build windows

package player

import "os/exec"

func setProcessGroup(*exec.Cmd) {}
