// Package session carries the authenticated actor through request contexts.
package session

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

type ctxKey string

const actorKey ctxKey = "flour.actorID"

// Session supplies the authenticated actor for a call, if any.
type Session interface {
	CurrentActorID(ctx context.Context) (uuid.UUID, bool)
}

// WithActor stores authenticated actor ID in context.
func WithActor(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, actorKey, id)
}

// ActorFromContext fetches actor ID from context.
func ActorFromContext(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(actorKey)
	if v == nil {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// Context is the default Session: the actor set by the transport's auth interceptor.
type Context struct{}

// CurrentActorID implements Session.
func (Context) CurrentActorID(ctx context.Context) (uuid.UUID, bool) {
	return ActorFromContext(ctx)
}
