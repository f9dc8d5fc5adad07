package core

import "context"

// ProviderResult is one provider's contribution to a context snapshot.
// Any field may be empty; keys in Values and Data are merged into the
// snapshot under the composer's override rule.
type ProviderResult struct {
	Values map[string]any
	Data   map[string]any
	Text   string
}

// Provider is a pluggable read-only context contributor. Providers run
// sequentially in Position order during composition, so a later provider
// may read what earlier providers merged into the partial state.
//
// Private providers are skipped by default and only run when explicitly
// included by name.
type Provider struct {
	Name        string
	Description string
	Position    int
	Private     bool

	// Get computes the provider's contribution. The partial state holds
	// contributions merged so far; it must be treated as read-only.
	Get func(ctx context.Context, rt Runtime, msg *Memory, partial *State) (*ProviderResult, error)
}
