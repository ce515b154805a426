package manager

import (
	"strconv"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
)

// BuildSSHCommand constructs the argv for OpenSSH from resolved settings:
//
//	ssh user@hostName -p port [-i identityFile]
//
// The identity file is added only when non-blank; "~" and $VARS are expanded.
// This package never executes the command.
func BuildSSHCommand(host Host, s ResolvedSettings) []string {
	argv := []string{"ssh", s.User + "@" + host.HostName, "-p", strconv.Itoa(s.Port)}
	if id := strings.TrimSpace(s.IdentityFile); id != "" {
		argv = append(argv, "-i", expandPath(id))
	}
	return argv
}

// CommandString joins argv into a single shell-safe command line.
func CommandString(argv []string) string {
	return shellquote.Join(argv...)
}

// ConnectCommand resolves host against chain and returns the shell command
// line handed to the terminal launcher.
func ConnectCommand(host Host, chain []Group) string {
	return CommandString(BuildSSHCommand(host, ResolveHostSettings(host, chain)))
}
