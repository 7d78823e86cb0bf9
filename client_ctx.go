package openpush

import "context"

type clientKeyType struct{}

var clientKey clientKeyType

// WithClient marks the context as being used by the client with the given ID.
func WithClient(ctx context.Context, clientID uint64) context.Context {
	return context.WithValue(ctx, clientKey, clientID)
}

// ClientIDFromContext returns the ID of the client attached to the context, if any.
func ClientIDFromContext(ctx context.Context) (uint64, bool) {
	clientID, ok := ctx.Value(clientKey).(uint64)

	return clientID, ok
}
