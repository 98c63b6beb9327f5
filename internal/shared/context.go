package shared

import (
	"context"
	"strings"
)

type actorContextKey struct{}

// SystemActor is recorded when no staff member is attached to the request.
const SystemActor = "system"

// ContextWithActor stores the acting staff member in context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting staff member, defaulting to SystemActor.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorContextKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}
