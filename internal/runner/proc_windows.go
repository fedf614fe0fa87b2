//go:build windows

package runner

import "os/exec"

// Windows has no process groups to signal; exec kills the direct child.
func setProcessGroup(*exec.Cmd) {}

func killProcessGroup(*exec.Cmd) {}
