package core

import "context"

// ModelType identifies a model capability class. Plugins may register
// handlers for types beyond the predeclared set; dispatch is a plain
// registry lookup.
type ModelType string

const (
	ModelTextSmall     ModelType = "TEXT_SMALL"
	ModelTextLarge     ModelType = "TEXT_LARGE"
	ModelTextEmbedding ModelType = "TEXT_EMBEDDING"
	ModelTranscription ModelType = "TRANSCRIPTION"
	ModelImage         ModelType = "IMAGE"
	ModelObjectSmall   ModelType = "OBJECT_SMALL"
	ModelObjectLarge   ModelType = "OBJECT_LARGE"
)

// ModelHandler services requests for one model type. Handlers are pure
// request/response and must tolerate interleaved concurrent calls; any
// retry policy lives inside the handler, never in the runtime.
type ModelHandler func(ctx context.Context, rt Runtime, params map[string]any) (any, error)
