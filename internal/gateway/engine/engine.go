package engine

import (
	"context"

	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
)

type GenerateOptions struct {
	Temperature float64
	// ForceJSON asks the upstream for response_format=json_object.
	ForceJSON bool
}

// Engine is one upstream model server. The router maps provider ids onto engines.
type Engine interface {
	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)
	GenerateText(ctx context.Context, model string, messages []ports.Message, opts GenerateOptions) (string, error)
}
