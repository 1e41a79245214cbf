//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// detach starts the archiver in its own session so it outlives the CLI and
// ignores terminal hangups
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
