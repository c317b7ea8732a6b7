package logging

import (
	"context"
)

// Context keys for logging values.
type contextKey int

const (
	commandKey contextKey = iota
	componentKey
	channelKey
)

// WithCommand adds the CLI command path to the context.
func WithCommand(ctx context.Context, command string) context.Context {
	return context.WithValue(ctx, commandKey, command)
}

// WithComponent adds a component name to the context.
// Component names identify the subsystem generating logs (e.g., "branch", "fetch", "store").
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// WithChannel adds the release channel being resolved to the context.
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, channelKey, channel)
}

// CommandFromContext extracts the command path from the context.
// Returns empty string if not set.
func CommandFromContext(ctx context.Context) string {
	return stringValue(ctx, commandKey)
}

// ComponentFromContext extracts the component name from the context.
// Returns empty string if not set.
func ComponentFromContext(ctx context.Context) string {
	return stringValue(ctx, componentKey)
}

// ChannelFromContext extracts the channel name from the context.
// Returns empty string if not set.
func ChannelFromContext(ctx context.Context) string {
	return stringValue(ctx, channelKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
