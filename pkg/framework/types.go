package framework

import "context"

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners: the P2P
// input/output stream pump loops, the telemetry loop, and the websocket
// bridge's HTTP server all implement it so a Runner can supervise them
// uniformly.
type Runnable interface {
	Run(context.Context) error
}
