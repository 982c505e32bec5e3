package executor

import "github.com/nodefleet/fleet/pkg/types"

// Registry resolves a JobType's executor name to an Executor instance.
type Registry map[types.Executor]Executor

// DefaultRegistry wires the two executors named by the base design.
func DefaultRegistry() Registry {
	return Registry{
		types.ExecutorBash:    NewShellExecutor(),
		types.ExecutorSidekiq: NewSidekiqExecutor(),
	}
}

func (r Registry) Lookup(name types.Executor) (Executor, bool) {
	e, ok := r[name]
	return e, ok
}
