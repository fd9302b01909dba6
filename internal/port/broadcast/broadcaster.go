// Package broadcast defines the port the services push live events
// through. The ws hub implements it; policy changes, execution records
// and breaker trips all reach connected clients this way.
package broadcast

import "context"

// Broadcaster fans a typed event out to every connected client.
// Implementations must tolerate having no listeners.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
