package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/yungbote/graphrag-gateway/internal/gateway/engine"
	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
)

// Engine is an offline stand-in for LiteLLM. Embeddings are hash-derived and graph
// extraction links consecutive capitalized words of the last user message.
type Engine struct {
	EmbeddingDims int
}

func New() *Engine {
	return &Engine{EmbeddingDims: 8}
}

var _ engine.Engine = (*Engine)(nil)

func (e *Engine) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		h := sha256.Sum256([]byte(model + "\n" + s))
		vec := make([]float32, e.EmbeddingDims)
		for j := 0; j < e.EmbeddingDims; j++ {
			u := binary.LittleEndian.Uint32(h[(j*4)%(len(h)-3):])
			vec[j] = float32(u%10_000)/10_000.0 - 0.5
		}
		out[i] = vec
	}
	return out, nil
}

func (e *Engine) GenerateText(ctx context.Context, model string, messages []ports.Message, opts engine.GenerateOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var user string
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.EqualFold(messages[i].Role, "user") {
			user = messages[i].Content
			break
		}
	}

	if opts.ForceJSON || mentionsJSON(messages) {
		return graphJSON(contextBlock(user)), nil
	}
	if strings.TrimSpace(user) == "" {
		return "mock: ok", nil
	}
	return fmt.Sprintf("mock: %s", user), nil
}

type node struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type edge struct {
	Src  string `json:"src"`
	Dst  string `json:"dst"`
	Type string `json:"type"`
}

func graphJSON(text string) string {
	var nodes []node
	seen := map[string]bool{}
	for _, w := range strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) {
		r := []rune(w)
		if len(r) < 2 || !unicode.IsUpper(r[0]) || seen[w] {
			continue
		}
		seen[w] = true
		nodes = append(nodes, node{ID: w, Type: "Entity"})
	}
	edges := []edge{}
	for i := 1; i < len(nodes); i++ {
		edges = append(edges, edge{Src: nodes[i-1].ID, Dst: nodes[i].ID, Type: "RELATED_TO"})
	}
	if nodes == nil {
		nodes = []node{}
	}
	b, _ := json.Marshal(map[string]any{"nodes": nodes, "edges": edges})
	return string(b)
}

// contextBlock returns the text after a "Context:" line up to the next blank line, or the
// whole message when there is none.
func contextBlock(user string) string {
	_, rest, ok := strings.Cut(user, "Context:")
	if !ok {
		return user
	}
	rest = strings.TrimLeft(rest, " \n")
	if block, _, ok := strings.Cut(rest, "\n\n"); ok {
		return block
	}
	return rest
}

func mentionsJSON(messages []ports.Message) bool {
	for _, m := range messages {
		if strings.Contains(strings.ToLower(m.Content), "json") {
			return true
		}
	}
	return false
}
