package core

import "context"

// Plugin bundles the capabilities a third party contributes at load time.
// All slices and maps are optional. Extensions is the single open slot for
// fields the runtime does not interpret.
type Plugin struct {
	Name        string
	Description string
	Config      map[string]string

	// Init runs once during registration, before any component of the
	// plugin is registered. An Init error aborts registration and is
	// surfaced to the host.
	Init func(ctx context.Context, config map[string]string, rt Runtime) error

	Actions     []*Action
	Evaluators  []*Evaluator
	Providers   []*Provider
	Services    []Service
	Models      map[ModelType]ModelHandler
	Events      map[EventType][]EventHandler
	TaskWorkers []*TaskWorker

	// MemoryManagers supplies custom managers keyed by table name. A
	// registered manager replaces the store-backed one the runtime would
	// otherwise build for that table.
	MemoryManagers map[string]MemoryManager

	Extensions map[string]any
}

// Character describes the agent persona the runtime hosts. Settings are
// flat key/value configuration readable by handlers through the runtime;
// Extensions carries front-end specific fields untouched.
type Character struct {
	Name       string            `yaml:"name" json:"name"`
	Bio        []string          `yaml:"bio,omitempty" json:"bio,omitempty"`
	Style      []string          `yaml:"style,omitempty" json:"style,omitempty"`
	Topics     []string          `yaml:"topics,omitempty" json:"topics,omitempty"`
	Settings   map[string]string `yaml:"settings,omitempty" json:"settings,omitempty"`
	Extensions map[string]any    `yaml:"extensions,omitempty" json:"extensions,omitempty"`
}
