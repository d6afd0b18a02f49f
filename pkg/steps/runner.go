// Package steps provides the shared command execution surface for the
// built-in step implementations.
package steps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// CommandRunner executes one external command to completion. A non-nil error
// reports a non-zero exit or a spawn failure. Steps take a runner instead of
// shelling out directly so tests can fake the external surface.
type CommandRunner func(ctx context.Context, name string, args []string, env []string) error

// ExecRunner runs commands through os/exec, inheriting the process
// environment and forwarding output to stderr.
func ExecRunner(ctx context.Context, name string, args []string, env []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err != nil {
		return fmt.Errorf("command %s failed: %w", name, err)
	}

	return nil
}
