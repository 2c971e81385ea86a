// Package routing implements Response Routing and the Feedback Guarantee:
// the two final pipeline stages that deliver (or, failing that, guarantee)
// one outgoing response per turn.
package routing

import "github.com/arcbound/turnloop/internal/turn/ports"

// Registry looks up the ChannelPort adapter registered for a channel type.
type Registry struct {
	channels map[string]ports.ChannelPort
}

// NewRegistry indexes channels by their own ChannelType().
func NewRegistry(channels ...ports.ChannelPort) *Registry {
	r := &Registry{channels: make(map[string]ports.ChannelPort, len(channels))}
	for _, c := range channels {
		r.channels[c.ChannelType()] = c
	}
	return r
}

// Get returns the adapter for channelType, or nil if none is registered —
// Response Routing treats a missing adapter as a best-effort skip.
func (r *Registry) Get(channelType string) ports.ChannelPort {
	return r.channels[channelType]
}
