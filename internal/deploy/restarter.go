package deploy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dash/internal/security"
	"dash/pkg/cmdutil"
)

// Restarter performs the actual redeploy.
type Restarter interface {
	Restart(ctx context.Context) (*cmdutil.Result, error)
	// Target identifies what is restarted; jobs sharing a target never overlap.
	Target() string
}

// CommandRestarter runs an external command, optionally through `sudo -S`
// with the password fed on stdin.
type CommandRestarter struct {
	command      []string
	dir          string
	timeout      time.Duration
	sudoPassword string
}

// NewCommandRestarter parses and validates a shell-quoted restart command.
func NewCommandRestarter(command, dir string, timeout time.Duration, sudoPassword string) (*CommandRestarter, error) {
	parts, err := cmdutil.ParseCommandString(command)
	if err != nil {
		return nil, fmt.Errorf("invalid restart command: %w", err)
	}
	if err := security.NewRestartPolicy().Validate(parts); err != nil {
		return nil, fmt.Errorf("restart command rejected: %w", err)
	}

	return &CommandRestarter{
		command:      parts,
		dir:          dir,
		timeout:      timeout,
		sudoPassword: sudoPassword,
	}, nil
}

// Target returns the quoted command line.
func (r *CommandRestarter) Target() string {
	return cmdutil.FormatCommand(r.command)
}

// argv returns the process arguments actually executed.
func (r *CommandRestarter) argv() []string {
	if r.sudoPassword == "" {
		return r.command
	}
	// An empty prompt keeps the password request out of the captured output.
	return append([]string{"sudo", "-S", "-p", ""}, r.command...)
}

// Restart runs the command. The returned output never contains the sudo
// password.
func (r *CommandRestarter) Restart(ctx context.Context) (*cmdutil.Result, error) {
	opts := cmdutil.ExecOptions{
		Dir:     r.dir,
		Timeout: r.timeout,
	}
	if r.sudoPassword != "" {
		opts.Stdin = strings.NewReader(r.sudoPassword + "\n")
	}

	result, err := cmdutil.Run(ctx, opts, r.argv())
	if result != nil && r.sudoPassword != "" {
		result.Output = cmdutil.SanitizeOutput(result.Output, []string{r.sudoPassword})
	}
	return result, err
}
