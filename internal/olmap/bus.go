package olmap

import "github.com/joeblew999/plat-olmap/internal/pubsub"

// Bus carries a map's commands to every attached browser. A browser that
// falls behind misses commands and resyncs from a snapshot on reconnect.
type Bus = pubsub.Bus[Command]

// NewBus creates a command bus.
func NewBus() *Bus {
	return pubsub.New[Command](64)
}
