// Package local runs parameterized commands on the machine running webmaint.
// It backs the "local" role entry, for single-box deployments.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/fgeck/webmaint/internal/models"
	"github.com/rs/zerolog"
)

// Impl runs commands with os/exec. It satisfies the same contract as the SSH service.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new local executor.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

// Run executes cmd directly, without a shell.
func (s *Impl) Run(ctx context.Context, host models.Host, cmd models.Command) (*models.CommandResult, error) {
	if len(cmd.Args) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	result := &models.CommandResult{}

	s.logger.Debug().
		Str("host", host.String()).
		Strs("args", cmd.Args).
		Msg("running local command")

	c := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...) //nolint:gosec // argument vector, no shell
	if cmd.Stdin != nil {
		c.Stdin = bytes.NewReader(cmd.Stdin)
	}

	output, err := c.CombinedOutput()
	result.Output = string(output)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.CommandRun = true
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		result.Error = fmt.Errorf("command %q failed: %w", strings.Join(cmd.Args, " "), err)
		return result, nil
	}

	result.CommandRun = true
	return result, nil
}
