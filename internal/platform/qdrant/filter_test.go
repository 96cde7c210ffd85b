package qdrant

import (
	"testing"

	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
)

func TestTranslateFilterMapSubset(t *testing.T) {
	filter := map[string]any{
		"type": "chunk",
		"doc_id": map[string]any{
			"$in": []any{"doc-1", "doc-2"},
		},
	}

	got, err := translateFilterMap(filter)
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.Must) != 2 {
		t.Fatalf("must length: want=2 got=%d", len(got.Must))
	}

	typeCond := findConditionByKey(got.Must, "type")
	if typeCond == nil {
		t.Fatalf("missing type condition")
	}
	typeMatch, ok := typeCond["match"].(map[string]any)
	if !ok || typeMatch["value"] != "chunk" {
		t.Fatalf("type match: got=%v", typeCond["match"])
	}

	docCond := findConditionByKey(got.Must, "doc_id")
	if docCond == nil {
		t.Fatalf("missing doc_id condition")
	}
	docMatch, ok := docCond["match"].(map[string]any)
	if !ok {
		t.Fatalf("doc_id match type: got=%T", docCond["match"])
	}
	anyVals, ok := docMatch["any"].([]any)
	if !ok {
		t.Fatalf("doc_id any type: got=%T", docMatch["any"])
	}
	if len(anyVals) != 2 || anyVals[0] != "doc-1" || anyVals[1] != "doc-2" {
		t.Fatalf("doc_id any values: got=%v", anyVals)
	}
}

func TestTranslateFilterMapUnsupportedOperator(t *testing.T) {
	_, err := translateFilterMap(map[string]any{
		"type": map[string]any{
			"$regex": "^a",
		},
	})
	if err == nil {
		t.Fatalf("translateFilterMap: expected error, got nil")
	}

	if ports.KindOf(err) != ports.KindInvalidInput {
		t.Fatalf("error kind: want=%q got=%q", ports.KindInvalidInput, ports.KindOf(err))
	}
}

func TestTranslateQueryFilterPassesNativeFilter(t *testing.T) {
	native := map[string]any{
		"must": []any{map[string]any{"key": "doc_id", "match": map[string]any{"value": "d1"}}},
	}
	got, err := translateQueryFilter(native)
	if err != nil {
		t.Fatalf("translateQueryFilter: %v", err)
	}
	if len(got) != 1 || got["must"] == nil {
		t.Fatalf("native filter altered: %v", got)
	}

	got, err = translateQueryFilter(nil)
	if err != nil || got != nil {
		t.Fatalf("empty filter: got=%v err=%v", got, err)
	}
}

func TestTranslateFilterMapLogicalOperators(t *testing.T) {
	got, err := translateFilterMap(map[string]any{
		"$or": []any{
			map[string]any{"doc_id": "a"},
			map[string]any{"doc_id": "b"},
		},
		"$not": map[string]any{"metadata.lang": "fr"},
	})
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	if len(got.Should) != 2 {
		t.Fatalf("should length: want=2 got=%d", len(got.Should))
	}
	if len(got.MustNot) != 1 {
		t.Fatalf("must_not length: want=1 got=%d", len(got.MustNot))
	}
}

func findConditionByKey(items []any, key string) map[string]any {
	for _, raw := range items {
		cond, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if condKey, _ := cond["key"].(string); condKey == key {
			return cond
		}
	}
	return nil
}

func TestTranslateFieldRangeAndNin(t *testing.T) {
	got, err := translateFilterMap(map[string]any{
		"year": map[string]any{"$gte": 2020, "$lt": 2024.5},
		"lang": map[string]any{"$nin": []string{"fr", "de"}},
	})
	if err != nil {
		t.Fatalf("translateFilterMap: %v", err)
	}
	year := findConditionByKey(got.Must, "year")
	if year == nil {
		t.Fatalf("missing range condition: %v", got.Must)
	}
	bounds, _ := year["range"].(map[string]any)
	if bounds["gte"] != float64(2020) || bounds["lt"] != 2024.5 {
		t.Fatalf("range bounds: %v", bounds)
	}
	lang := findConditionByKey(got.MustNot, "lang")
	if lang == nil {
		t.Fatalf("missing $nin condition: %v", got.MustNot)
	}
	anyVals, _ := lang["match"].(map[string]any)["any"].([]any)
	if len(anyVals) != 2 || anyVals[0] != "fr" {
		t.Fatalf("$nin values: %v", anyVals)
	}
}

func TestScalarOfRejectsFractions(t *testing.T) {
	if v, ok := scalarOf(float64(3)); !ok || v != int64(3) {
		t.Fatalf("integral float: %v %v", v, ok)
	}
	if _, ok := scalarOf(1.5); ok {
		t.Fatal("fractional float accepted")
	}
	if _, ok := scalarOf([]string{"x"}); ok {
		t.Fatal("slice accepted as scalar")
	}
}
