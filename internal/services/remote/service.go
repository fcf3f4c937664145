// Package remote routes commands to the executor that can reach each host.
package remote

import (
	"context"

	"github.com/fgeck/webmaint/internal/models"
)

// Executor runs a parameterized command on a host. Failures of the command
// itself are reported in CommandResult.Error; the returned error is for
// invalid input.
type Executor interface {
	Run(ctx context.Context, host models.Host, cmd models.Command) (*models.CommandResult, error)
}

// Router sends "local" hosts to one executor and everything else to another.
type Router struct {
	local  Executor
	remote Executor
}

// NewRouter creates a router. Either executor may be nil when no host needs it.
func NewRouter(local, remote Executor) *Router {
	return &Router{local: local, remote: remote}
}

// Run implements Executor.
func (r *Router) Run(ctx context.Context, host models.Host, cmd models.Command) (*models.CommandResult, error) {
	if host.IsLocal() {
		if r.local == nil {
			return &models.CommandResult{Error: ErrNoExecutor}, nil
		}
		return r.local.Run(ctx, host, cmd)
	}
	if r.remote == nil {
		return &models.CommandResult{Error: ErrNoExecutor}, nil
	}
	return r.remote.Run(ctx, host, cmd)
}

type routerError string

func (e routerError) Error() string { return string(e) }

// ErrNoExecutor is reported when no executor is configured for a host.
const ErrNoExecutor = routerError("no executor configured for host")
