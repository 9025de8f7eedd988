package security

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultRestartCommands is the set of programs a restart command may start with.
var DefaultRestartCommands = map[string]bool{
	"sh":            true,
	"bash":          true,
	"systemctl":     true,
	"supervisorctl": true,
	"service":       true,
	"docker":        true,
	"pm2":           true,
	"git":           true,
	"make":          true,
}

// CommandPolicy validates externally configured commands before they are run.
type CommandPolicy struct {
	// Allowed is the map of base commands that are permitted.
	Allowed map[string]bool

	// AllowShellMetachars allows shell metacharacters in arguments.
	// This should almost always be false.
	AllowShellMetachars bool
}

// NewRestartPolicy returns the policy applied to the configured restart command.
func NewRestartPolicy() *CommandPolicy {
	return &CommandPolicy{Allowed: DefaultRestartCommands}
}

// Validate checks the base command against the allowlist and rejects
// arguments carrying shell metacharacters.
func (p *CommandPolicy) Validate(cmdParts []string) error {
	if len(cmdParts) == 0 {
		return fmt.Errorf("empty command")
	}

	base := cmdParts[0]
	if base == "sudo" {
		return fmt.Errorf("command must not include sudo; set sudo_password instead")
	}
	if !p.Allowed[base] {
		return fmt.Errorf("command not allowed: %s (must be one of: %s)", base, strings.Join(p.allowedList(), ", "))
	}

	if !p.AllowShellMetachars {
		for i, arg := range cmdParts[1:] {
			if containsShellMetachars(arg) {
				return fmt.Errorf("argument %d contains shell metacharacters: %s", i+1, arg)
			}
		}
	}

	return nil
}

func (p *CommandPolicy) allowedList() []string {
	commands := make([]string, 0, len(p.Allowed))
	for cmd := range p.Allowed {
		commands = append(commands, cmd)
	}
	sort.Strings(commands)
	return commands
}

// containsShellMetachars checks if a string contains shell metacharacters.
func containsShellMetachars(s string) bool {
	return strings.ContainsAny(s, ";|&$`\n><(){}*?[]\\'\"")
}
