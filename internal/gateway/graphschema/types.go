// Package graphschema owns the extracted-graph payload: its declared shape, parsing of raw
// model output into that shape, content thresholds, and the corrective hints fed back into a
// nudged attempt.
package graphschema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

type KV struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type Node struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Props []KV   `json:"props"`
}

type Edge struct {
	Src   string `json:"src"`
	Dst   string `json:"dst"`
	Type  string `json:"type"`
	Props []KV   `json:"props"`
}

type Payload struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Policy carries the minimum-content thresholds for one request.
type Policy struct {
	MinNodes   int  `json:"min_nodes"`
	MinEdges   int  `json:"min_edges"`
	AllowEmpty bool `json:"allow_empty"`
}

type DefectKind string

const (
	DefectParse   DefectKind = "parse"
	DefectQuality DefectKind = "quality"
)

type Defect struct {
	Kind         DefectKind `json:"kind"`
	Reason       string     `json:"reason"`
	MissingCount int        `json:"missing_count,omitempty"`
}

func (d *Defect) Error() string {
	if d == nil {
		return ""
	}
	return string(d.Kind) + " defect: " + d.Reason
}

// Schema is the declared JSON Schema of a Payload. It is sent to providers in prompts and
// hashed into SchemaHash so callers can tell which contract produced a result.
var Schema = map[string]any{
	"type":     "object",
	"required": []string{"nodes", "edges"},
	"properties": map[string]any{
		"nodes": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"id", "type", "props"},
				"properties": map[string]any{
					"id":    map[string]any{"type": "string", "minLength": 1},
					"type":  map[string]any{"type": "string", "minLength": 1},
					"props": kvListSchema,
				},
			},
		},
		"edges": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"src", "dst", "type", "props"},
				"properties": map[string]any{
					"src":   map[string]any{"type": "string", "minLength": 1},
					"dst":   map[string]any{"type": "string", "minLength": 1},
					"type":  map[string]any{"type": "string", "minLength": 1},
					"props": kvListSchema,
				},
			},
		},
	},
}

var kvListSchema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type":     "object",
		"required": []string{"key", "value"},
		"properties": map[string]any{
			"key": map[string]any{"type": "string", "minLength": 1},
		},
	},
}

var (
	schemaHashOnce sync.Once
	schemaHash     string
	schemaText     string
)

func computeSchema() {
	b, err := json.Marshal(Schema)
	if err != nil {
		return
	}
	sum := sha256.Sum256(b)
	schemaHash = hex.EncodeToString(sum[:])
	schemaText = string(b)
}

func SchemaHash() string {
	schemaHashOnce.Do(computeSchema)
	return schemaHash
}

func SchemaJSON() string {
	schemaHashOnce.Do(computeSchema)
	return schemaText
}
