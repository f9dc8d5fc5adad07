package core

import "context"

// Service is a long-lived capability instance keyed by type, typically a
// singleton client manager for an external platform. Services own their
// lifecycle: the runtime starts them on registration (or on runtime
// start) and stops them during teardown, in reverse registration order.
type Service interface {
	Type() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
