//go:build windows

package backend

import "os/exec"

func startGroup(cmd *exec.Cmd) {}

// terminate has no graceful variant on Windows.
func terminate(cmd *exec.Cmd) error {
	return kill(cmd)
}

func kill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
