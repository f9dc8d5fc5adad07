package runtime

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/telemetry"
)

// ComposeOption shapes a single composition.
type ComposeOption func(*composeConfig)

type composeConfig struct {
	include map[string]bool
	skip    map[string]bool
}

// WithProviders restricts composition to the named providers. Naming a
// private provider includes it.
func WithProviders(names ...string) ComposeOption {
	return func(c *composeConfig) {
		c.include = make(map[string]bool, len(names))
		for _, name := range names {
			c.include[name] = true
		}
	}
}

// SkipProviders excludes the named providers from composition.
func SkipProviders(names ...string) ComposeOption {
	return func(c *composeConfig) {
		c.skip = make(map[string]bool, len(names))
		for _, name := range names {
			c.skip[name] = true
		}
	}
}

// ComposeState builds the per-turn context snapshot. Providers run
// sequentially in Position order (registration order breaks ties); later
// contributions override earlier keys. A provider failure or panic drops
// that contribution and never aborts composition. The returned snapshot
// is complete at return and must be treated as immutable.
func (r *Runtime) ComposeState(ctx context.Context, msg *core.Memory, opts ...ComposeOption) (*core.State, error) {
	cfg := &composeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	providers := r.selectProviders(cfg)

	ctx, span := r.tracer.Start(ctx, "Runtime.ComposeState", trace.WithAttributes(
		attribute.String(telemetry.AttrAgentID, r.agentID.String()),
		attribute.Int(telemetry.AttrProviderCount, len(providers)),
	))
	defer span.End()

	state := core.NewState()
	var texts []string

	for _, provider := range providers {
		start := time.Now()
		result, err := r.runProvider(ctx, provider, msg, state)
		durationMs := float64(time.Since(start).Seconds() * 1000)
		r.metrics.RecordProvider(ctx, provider.Name, durationMs)
		if err != nil {
			r.logger.Warn("runtime.compose.provider.error",
				"provider", provider.Name,
				"duration_ms", durationMs,
				"error", err.Error(),
			)
			continue
		}
		if result == nil {
			continue
		}
		for k, v := range result.Values {
			state.Values[k] = v
		}
		for k, v := range result.Data {
			state.Data[k] = v
		}
		if result.Text != "" {
			texts = append(texts, result.Text)
		}
	}

	state.Text = strings.Join(texts, "\n\n")
	return state, nil
}

// selectProviders returns the providers to run, position-ordered with
// registration order as the stable tiebreak.
func (r *Runtime) selectProviders(cfg *composeConfig) []*core.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var selected []*core.Provider
	for _, p := range r.providers {
		if cfg.include != nil {
			if !cfg.include[p.Name] {
				continue
			}
		} else if p.Private {
			continue
		}
		if cfg.skip[p.Name] {
			continue
		}
		selected = append(selected, p)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Position < selected[j].Position
	})
	return selected
}

// runProvider executes one provider, converting panics into errors so a
// misbehaving contributor cannot abort the turn.
func (r *Runtime) runProvider(ctx context.Context, provider *core.Provider, msg *core.Memory, partial *core.State) (result *core.ProviderResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("provider panic: %v", rec)
		}
	}()
	if provider.Get == nil {
		return nil, nil
	}
	return provider.Get(ctx, r, msg, partial)
}
