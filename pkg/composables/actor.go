package composables

import (
	"context"

	"github.com/sirta-dev/sirta/pkg/constants"
)

// SystemActor is recorded on audit entries for writes performed without an
// authenticated operator (CLI runs, scheduled sweeps).
const SystemActor = "system"

func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, constants.ActorKey, actor)
}

func UseActor(ctx context.Context) string {
	if v, ok := ctx.Value(constants.ActorKey).(string); ok && v != "" {
		return v
	}
	return SystemActor
}
