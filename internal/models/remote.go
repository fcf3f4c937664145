package models

import (
	"fmt"
	"net"
	"strconv"
)

// LocalHost is the role entry that targets the machine running webmaint.
const LocalHost = "local"

// Host is a target machine in a role group.
type Host struct {
	Name string
	Port int // 0 means the configured SSH port
}

// ParseHost parses "name" or "name:port".
func ParseHost(s string) (Host, error) {
	if s == "" {
		return Host{}, fmt.Errorf("empty host")
	}
	name, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port given.
		return Host{Name: s}, nil //nolint:nilerr // bare host names are valid
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Host{}, fmt.Errorf("invalid port in host %q", s)
	}
	return Host{Name: name, Port: port}, nil
}

// IsLocal reports whether commands for this host run on the local machine.
func (h Host) IsLocal() bool {
	return h.Name == LocalHost
}

func (h Host) String() string {
	if h.Port == 0 {
		return h.Name
	}
	return net.JoinHostPort(h.Name, strconv.Itoa(h.Port))
}

// Command is a parameterized remote command: an argument vector plus optional stdin.
type Command struct {
	Args  []string
	Stdin []byte
}

// CommandResult holds the result of running a command on a host.
type CommandResult struct {
	CommandRun bool
	ExitCode   int
	Output     string
	Error      error
}
