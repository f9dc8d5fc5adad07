// Package runtime hosts a single agent: capability registries, the state
// composer, dispatchers and lifecycle.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/memory"
	"github.com/jllopis/telos/pkg/store"
	"github.com/jllopis/telos/pkg/task"
	"github.com/jllopis/telos/pkg/telemetry"
)

// Runtime is the in-process agent host. One instance per hosted agent;
// several runtimes can coexist in one process.
type Runtime struct {
	agentID   uuid.UUID
	character *core.Character
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *telemetry.RuntimeMetrics

	store    store.Store
	embedder memory.Embedder
	vectors  memory.VectorStore
	tasks    core.TaskService
	sweeper  *task.Sweeper

	sweepInterval time.Duration
	sweepTimeout  time.Duration

	mu         sync.RWMutex
	actions    map[string]*core.Action
	actionList []*core.Action
	evaluators []*core.Evaluator
	providers  []*core.Provider
	services   map[string]core.Service
	serviceOrd []string
	models     map[core.ModelType]core.ModelHandler
	events     map[core.EventType][]core.EventHandler
	managers   map[string]core.MemoryManager
	settings   map[string]string
	plugins    []string
	started    bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithAgentID fixes the agent identity instead of generating one.
func WithAgentID(id uuid.UUID) Option {
	return func(r *Runtime) { r.agentID = id }
}

// WithCharacter sets the hosted persona.
func WithCharacter(ch *core.Character) Option {
	return func(r *Runtime) {
		if ch != nil {
			r.character = ch
		}
	}
}

// WithLogger sets the runtime logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) { r.logger = logger }
}

// WithStore sets the storage collaborator backing memories and tasks.
func WithStore(s store.Store) Option {
	return func(r *Runtime) { r.store = s }
}

// WithEmbedder overrides the embedder used by memory managers. Without
// it, managers embed through the TEXT_EMBEDDING model handler when one
// is registered.
func WithEmbedder(e memory.Embedder) Option {
	return func(r *Runtime) { r.embedder = e }
}

// WithVectorStore mirrors memory embeddings into an external index.
func WithVectorStore(v memory.VectorStore) Option {
	return func(r *Runtime) { r.vectors = v }
}

// WithMetrics sets the dispatch metrics tracker.
func WithMetrics(m *telemetry.RuntimeMetrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// WithTaskService overrides the task scheduler built from the store.
func WithTaskService(ts core.TaskService) Option {
	return func(r *Runtime) { r.tasks = ts }
}

// WithTaskSweep sets the background sweep cadence for queued tasks.
// A zero interval disables the sweeper.
func WithTaskSweep(interval, timeout time.Duration) Option {
	return func(r *Runtime) {
		r.sweepInterval = interval
		r.sweepTimeout = timeout
	}
}

// New creates a runtime. Without a store option the runtime uses an
// in-memory store, so tests and ephemeral agents work out of the box.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		agentID:      uuid.New(),
		character:    &core.Character{Name: "agent"},
		logger:       slog.Default(),
		tracer:       otel.Tracer("telos/runtime"),
		sweepTimeout: 30 * time.Second,
		actions:      make(map[string]*core.Action),
		services:     make(map[string]core.Service),
		models:       make(map[core.ModelType]core.ModelHandler),
		events:       make(map[core.EventType][]core.EventHandler),
		managers:     make(map[string]core.MemoryManager),
		settings:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.store == nil {
		r.store = store.NewInMemoryStore()
	}
	if r.tasks == nil {
		r.tasks = task.NewService(r.store, r, task.WithLogger(r.logger))
	}
	return r
}

// AgentID identifies the hosted agent.
func (r *Runtime) AgentID() uuid.UUID {
	return r.agentID
}

// Character returns the hosted persona.
func (r *Runtime) Character() *core.Character {
	return r.character
}

// Logger returns the runtime's structured logger.
func (r *Runtime) Logger() *slog.Logger {
	return r.logger
}

// Setting reads a flat configuration value: plugin config first, then
// character settings. Missing keys return "".
func (r *Runtime) Setting(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if v, ok := r.settings[key]; ok {
		return v
	}
	if r.character.Settings != nil {
		return r.character.Settings[key]
	}
	return ""
}

// Tasks returns the task scheduler.
func (r *Runtime) Tasks() core.TaskService {
	return r.tasks
}

// Service returns the live service instance for the type, or nil.
func (r *Runtime) Service(serviceType string) core.Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.services[serviceType]
}

// Memories returns the memory manager for a table, creating it on first
// use. Managers embed through the runtime's TEXT_EMBEDDING handler unless
// an explicit embedder was configured.
func (r *Runtime) Memories(table string) core.MemoryManager {
	r.mu.Lock()
	defer r.mu.Unlock()

	if mgr, ok := r.managers[table]; ok {
		return mgr
	}

	embedder := r.embedder
	if embedder == nil {
		embedder = &runtimeEmbedder{rt: r}
	}
	opts := []memory.ManagerOption{
		memory.WithEmbedder(embedder),
		memory.WithLogger(r.logger),
	}
	if r.vectors != nil {
		opts = append(opts, memory.WithVectorStore(r.vectors))
	}
	mgr := memory.NewManager(table, r.store, opts...)
	r.managers[table] = mgr
	return mgr
}

// RegisterMemoryManager installs a custom manager for a table. Later
// Memories calls for that table return it instead of building a
// store-backed manager; same-table registration overwrites.
func (r *Runtime) RegisterMemoryManager(table string, mgr core.MemoryManager) {
	if table == "" || mgr == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers[table] = mgr
}

// RegisterPlugin loads a plugin: Init runs first and aborts the whole
// registration on error; afterwards every contributed capability is
// registered in declaration order.
func (r *Runtime) RegisterPlugin(ctx context.Context, plugin *core.Plugin) error {
	if plugin == nil {
		return errors.New(errors.CodeInvalidInput, "plugin is nil", nil)
	}

	if plugin.Init != nil {
		if err := plugin.Init(ctx, plugin.Config, r); err != nil {
			return errors.New(errors.CodePluginError, "plugin init failed", err).
				WithContext("plugin", plugin.Name)
		}
	}

	r.mu.Lock()
	for k, v := range plugin.Config {
		r.settings[k] = v
	}
	r.plugins = append(r.plugins, plugin.Name)
	r.mu.Unlock()

	for _, action := range plugin.Actions {
		r.RegisterAction(action)
	}
	for _, evaluator := range plugin.Evaluators {
		r.RegisterEvaluator(evaluator)
	}
	for _, provider := range plugin.Providers {
		r.RegisterProvider(provider)
	}
	for modelType, handler := range plugin.Models {
		r.RegisterModel(modelType, handler)
	}
	for eventType, handlers := range plugin.Events {
		for _, handler := range handlers {
			r.RegisterEvent(eventType, handler)
		}
	}
	for _, worker := range plugin.TaskWorkers {
		r.tasks.RegisterWorker(worker)
	}
	for table, manager := range plugin.MemoryManagers {
		r.RegisterMemoryManager(table, manager)
	}
	for _, service := range plugin.Services {
		if err := r.RegisterService(ctx, service); err != nil {
			return err
		}
	}

	r.logger.Info("runtime.plugin.registered",
		"plugin", plugin.Name,
		"actions", len(plugin.Actions),
		"providers", len(plugin.Providers),
		"evaluators", len(plugin.Evaluators),
	)
	return nil
}

// RegisterAction adds an action; re-registration under the same name
// overwrites.
func (r *Runtime) RegisterAction(action *core.Action) {
	if action == nil || action.Name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[action.Name]; exists {
		for i, a := range r.actionList {
			if a.Name == action.Name {
				r.actionList[i] = action
				break
			}
		}
	} else {
		r.actionList = append(r.actionList, action)
	}
	r.actions[action.Name] = action
}

// RegisterEvaluator adds an evaluator; same-name registration overwrites.
func (r *Runtime) RegisterEvaluator(evaluator *core.Evaluator) {
	if evaluator == nil || evaluator.Name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.evaluators {
		if e.Name == evaluator.Name {
			r.evaluators[i] = evaluator
			return
		}
	}
	r.evaluators = append(r.evaluators, evaluator)
}

// RegisterProvider adds a provider; same-name registration overwrites.
func (r *Runtime) RegisterProvider(provider *core.Provider) {
	if provider == nil || provider.Name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, p := range r.providers {
		if p.Name == provider.Name {
			r.providers[i] = provider
			return
		}
	}
	r.providers = append(r.providers, provider)
}

// RegisterService registers and, when the runtime is already started,
// immediately starts the service.
func (r *Runtime) RegisterService(ctx context.Context, service core.Service) error {
	if service == nil {
		return nil
	}
	r.mu.Lock()
	serviceType := service.Type()
	if _, exists := r.services[serviceType]; !exists {
		r.serviceOrd = append(r.serviceOrd, serviceType)
	}
	r.services[serviceType] = service
	started := r.started
	r.mu.Unlock()

	if started {
		if err := service.Start(ctx); err != nil {
			return errors.New(errors.CodePluginError, "service start failed", err).
				WithContext("service", serviceType)
		}
	}
	return nil
}

// Start brings up registered services in registration order and launches
// the task sweeper. A service failure aborts startup.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	order := append([]string(nil), r.serviceOrd...)
	r.mu.Unlock()

	for _, serviceType := range order {
		service := r.Service(serviceType)
		if service == nil {
			continue
		}
		if err := service.Start(ctx); err != nil {
			return errors.New(errors.CodePluginError, "service start failed", err).
				WithContext("service", serviceType)
		}
		r.logger.Info("runtime.service.started", "service", serviceType)
	}

	if ts, ok := r.tasks.(*task.Service); ok && r.sweepInterval > 0 {
		r.sweeper = task.NewSweeper(ts, r,
			task.WithSweepInterval(r.sweepInterval),
			task.WithSweepTimeout(r.sweepTimeout),
			task.WithSweeperLogger(r.logger),
		)
		r.sweeper.Start(ctx)
	}

	r.logger.Info("runtime.started", "agent_id", r.agentID, "agent", r.character.Name)
	return nil
}

// Stop halts the sweeper and stops services in reverse registration
// order. All stop errors are collected.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	order := append([]string(nil), r.serviceOrd...)
	r.mu.Unlock()

	if r.sweeper != nil {
		r.sweeper.Stop()
		r.sweeper = nil
	}

	var errs []string
	for i := len(order) - 1; i >= 0; i-- {
		service := r.Service(order[i])
		if service == nil {
			continue
		}
		if err := service.Stop(ctx); err != nil {
			r.logger.Error("runtime.service.stop.error", "service", order[i], "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", order[i], err))
		}
	}

	r.logger.Info("runtime.stopped", "agent_id", r.agentID)
	if len(errs) > 0 {
		return errors.Newf(errors.CodeInternal, "service stop errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// runtimeEmbedder routes embedding through the model registry. Without a
// TEXT_EMBEDDING handler it reports no vector, leaving memories
// unembedded rather than failing writes.
type runtimeEmbedder struct {
	rt *Runtime
}

func (e *runtimeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.rt.mu.RLock()
	_, ok := e.rt.models[core.ModelTextEmbedding]
	e.rt.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	out, err := e.rt.UseModel(ctx, core.ModelTextEmbedding, map[string]any{"text": text})
	if err != nil {
		return nil, err
	}
	embedding, ok := out.([]float32)
	if !ok {
		return nil, errors.New(errors.CodeModelError, "embedding handler returned unexpected type", nil)
	}
	return embedding, nil
}
