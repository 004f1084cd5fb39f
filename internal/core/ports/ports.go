package ports

import (
	"context"

	"omvstack.control/internal/core/domain"
)

// CommandRunner executes host processes. A non-zero exit is reported in the
// result, not as an error; errors mean the process could not run at all.
type CommandRunner interface {
	Run(ctx context.Context, cmd domain.Command) (domain.CommandResult, error)
	LookPath(name string) (string, error)
}

// ComposeBackend reads compose project state from docker.
type ComposeBackend interface {
	Status(ctx context.Context, project string) (domain.StackStatus, error)
	Logs(ctx context.Context, stack domain.Stack, service string) (domain.LogOutput, error)
}

type CallRepository interface {
	Create(ctx context.Context, record *domain.CallRecord) error
	ListCalls(ctx context.Context, service string, limit int) ([]*domain.CallRecord, error)
	CountCalls(ctx context.Context) (int64, error)
}

type EventBus interface {
	Publish(ctx context.Context, event domain.Event) error
	Subscribe(ctx context.Context) (<-chan domain.Event, error)
}

// ActionLock serialises mutating calls per key across engine instances.
type ActionLock interface {
	Acquire(ctx context.Context, key, owner string) (bool, error)
	Release(ctx context.Context, key, owner string) error
	Holder(ctx context.Context, key string) (string, error)
}
