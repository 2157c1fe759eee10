package domain

import "context"

// Actor identifies the authenticated caller. It is used for audit fields only
// and never consulted for capacity decisions.
type Actor struct {
	Client string
	Tenant string
}

// String is the audit label stored in created_by columns.
func (a Actor) String() string {
	switch {
	case a.Client == "" && a.Tenant == "":
		return ""
	case a.Tenant == "":
		return a.Client
	default:
		return a.Tenant + "/" + a.Client
	}
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// ActorLabel returns the audit label for ctx or "system" when no caller is attached.
func ActorLabel(ctx context.Context) string {
	if a, ok := ActorFromContext(ctx); ok {
		if s := a.String(); s != "" {
			return s
		}
	}
	return "system"
}
