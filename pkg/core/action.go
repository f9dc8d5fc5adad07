package core

import "context"

// HandlerCallback is the only channel by which an action or evaluator
// produces a user-visible reply. It persists the reply through the memory
// facade before returning the created records. A handler may invoke it
// zero, one or many times, and the callback stays valid after the turn
// ends, so a task worker may deliver a deferred reply through it.
type HandlerCallback func(ctx context.Context, content Content) ([]Memory, error)

// Validator gates a handler for the current message and state. It must be
// read-only: no side effects, no state mutation.
type Validator func(ctx context.Context, rt Runtime, msg *Memory, state *State) (bool, error)

// Handler executes a capability against the composed state. opts carries
// caller-supplied options, responses the reply memories produced so far
// this turn.
type Handler func(ctx context.Context, rt Runtime, msg *Memory, state *State, opts map[string]any, cb HandlerCallback, responses []*Memory) error

// Action is a named stateless capability: a validation gate plus a
// side-effecting handler. The registry holds exactly one entry per name;
// re-registration overwrites.
type Action struct {
	Name        string
	Similes     []string
	Description string
	Validate    Validator
	Handler     Handler
}

// Evaluator is a post-response analysis handler. AlwaysRun evaluators are
// candidates on every turn, even when the agent did not respond.
type Evaluator struct {
	Name        string
	Similes     []string
	Description string
	AlwaysRun   bool
	Validate    Validator
	Handler     Handler
}
