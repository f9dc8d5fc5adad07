package bootstrap

import (
	"github.com/jllopis/telos/pkg/core"
)

// Plugin returns the built-in capability bundle. Hosts register it
// before any third-party plugin so its defaults can be overridden.
func Plugin() *core.Plugin {
	return &core.Plugin{
		Name:        "bootstrap",
		Description: "Baseline providers, actions and evaluators",
		Providers: []*core.Provider{
			TimeProvider(),
			CharacterProvider(),
			RecentMessagesProvider(),
		},
		Actions: []*core.Action{
			ReplyAction(),
			IgnoreAction(),
			PublishAction(),
		},
		Evaluators: []*core.Evaluator{
			ReflectionEvaluator(),
		},
		TaskWorkers: []*core.TaskWorker{
			ChooseOptionWorker(),
		},
	}
}
