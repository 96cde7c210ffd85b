package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
	"github.com/yungbote/graphrag-gateway/internal/platform/logger"
)

func TestStoreSearchRequestShapeAndHits(t *testing.T) {
	var captured map[string]any
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=%s got=%s", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/collections/chunks/points/search" {
			t.Fatalf("path: got=%q", r.URL.Path)
		}
		if r.Header.Get("api-key") != "secret" {
			t.Fatalf("api-key header missing")
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, []map[string]any{
			{
				"id":    "7f1b2c3d-0000-0000-0000-000000000001",
				"score": 0.9,
				"payload": map[string]any{
					"doc_id":   "doc-a",
					"text":     "Acme is in Taipei",
					"metadata": map[string]any{"lang": "en"},
					"hash":     "x",
					"extra":    true,
				},
			},
			{"id": 42, "score": 0.4, "payload": map[string]any{"text": "second"}},
		}), nil
	})

	hits, err := s.Search(context.Background(), ports.VectorQuery{
		Collection: "chunks",
		Vector:     []float32{1, 2, 3},
		TopK:       2,
		Filters:    map[string]any{"doc_id": "doc-a"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if captured["limit"] != float64(2) || captured["with_payload"] != true {
		t.Fatalf("request body: %v", captured)
	}
	if _, ok := captured["filter"].(map[string]any); !ok {
		t.Fatalf("filter missing: %v", captured["filter"])
	}

	if len(hits) != 2 {
		t.Fatalf("hits length: want=2 got=%d", len(hits))
	}
	if hits[0].DocID != "doc-a" || hits[0].Text != "Acme is in Taipei" {
		t.Fatalf("hit[0]: %+v", hits[0])
	}
	if hits[0].Metadata["lang"] != "en" || hits[0].Metadata["extra"] != true {
		t.Fatalf("metadata: %v", hits[0].Metadata)
	}
	if _, ok := hits[0].Metadata["hash"]; ok {
		t.Fatalf("hash should not leak into metadata")
	}
	if hits[1].ID != "42" || hits[1].Score != 0.4 {
		t.Fatalf("hit[1]: %+v", hits[1])
	}
}

func TestStoreSearchOmitsEmptyFilter(t *testing.T) {
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["filter"]; ok {
			t.Fatalf("filter should be omitted: %v", body["filter"])
		}
		return okResponse(t, []any{}), nil
	})
	hits, err := s.Search(context.Background(), ports.VectorQuery{Collection: "chunks", Vector: []float32{1}, TopK: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("hits: %v", hits)
	}
}

func TestStoreSearchRejectsBadFilterLocally(t *testing.T) {
	var calls int32
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return okResponse(t, []any{}), nil
	})
	_, err := s.Search(context.Background(), ports.VectorQuery{
		Collection: "chunks",
		Vector:     []float32{1},
		Filters:    map[string]any{"score": map[string]any{"$regex": "^a"}},
	})
	if ports.KindOf(err) != ports.KindInvalidInput {
		t.Fatalf("kind: want=%q got=%q (%v)", ports.KindInvalidInput, ports.KindOf(err), err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("no request should be sent for an invalid filter")
	}
}

func TestStoreSearchClassifiesStatus(t *testing.T) {
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Header:     make(http.Header),
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"status":{"error":"overloaded"}}`))),
		}, nil
	})
	_, err := s.Search(context.Background(), ports.VectorQuery{Collection: "chunks", Vector: []float32{1}})
	if ports.KindOf(err) != ports.KindUnavailable {
		t.Fatalf("kind: want=%q got=%q", ports.KindUnavailable, ports.KindOf(err))
	}
}

func TestStoreSearchTransportError(t *testing.T) {
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	_, err := s.Search(context.Background(), ports.VectorQuery{Collection: "chunks", Vector: []float32{1}})
	if ports.KindOf(err) != ports.KindUnavailable {
		t.Fatalf("kind: want=%q got=%q", ports.KindUnavailable, ports.KindOf(err))
	}
}

func TestStoreUpsertCreatesCollectionOnce(t *testing.T) {
	var (
		created  int32
		upserted []map[string]any
	)
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/docs":
			if atomic.LoadInt32(&created) == 0 {
				return &http.Response{
					StatusCode: http.StatusNotFound,
					Header:     make(http.Header),
					Body:       io.NopCloser(bytes.NewReader([]byte(`{"status":{"error":"Not found"}}`))),
				}, nil
			}
			return okResponse(t, map[string]any{}), nil
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			vectors, _ := body["vectors"].(map[string]any)
			if vectors["size"] != float64(2) || vectors["distance"] != "Cosine" {
				t.Fatalf("create body: %v", body)
			}
			atomic.AddInt32(&created, 1)
			return okResponse(t, true), nil
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/points":
			var body struct {
				Points []map[string]any `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			upserted = append(upserted, body.Points...)
			return okResponse(t, map[string]any{"status": "acknowledged"}), nil
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
			return nil, nil
		}
	})

	points := []ports.VectorPoint{
		{DocID: "d1", Text: "alpha", Vector: []float32{1, 0}},
		{ID: "chunk-7", DocID: "d1", Text: "beta", Vector: []float32{0, 1}, Metadata: map[string]any{"page": 2}},
	}
	n, err := s.Upsert(context.Background(), "docs", points)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n != 2 {
		t.Fatalf("upserted: want=2 got=%d", n)
	}
	if _, err := s.Upsert(context.Background(), "docs", points[:1]); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if atomic.LoadInt32(&created) != 1 {
		t.Fatalf("collection created %d times", created)
	}
	if len(upserted) != 3 {
		t.Fatalf("points sent: want=3 got=%d", len(upserted))
	}
	// Re-indexing the same chunk maps onto the same point.
	if upserted[0]["id"] != upserted[2]["id"] {
		t.Fatalf("point ids differ for identical chunk: %v vs %v", upserted[0]["id"], upserted[2]["id"])
	}
	if _, err := uuid.Parse(upserted[1]["id"].(string)); err != nil {
		t.Fatalf("point id is not a UUID: %v", upserted[1]["id"])
	}
	payload := upserted[1]["payload"].(map[string]any)
	if payload["doc_id"] != "d1" || payload["text"] != "beta" || payload["hash"] == "" {
		t.Fatalf("payload: %v", payload)
	}
	if _, ok := payload["tenant_id"]; ok {
		t.Fatalf("tenant_id written without a tenant: %v", payload)
	}
}

func TestStoreUpsertWritesTenantPayload(t *testing.T) {
	var sent []map[string]any
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/chunks_acme/points" {
			var body struct {
				Points []map[string]any `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			sent = body.Points
		}
		return okResponse(t, map[string]any{}), nil
	})
	_, err := s.Upsert(context.Background(), "chunks_acme", []ports.VectorPoint{
		{DocID: "d1", TenantID: "acme", Text: "alpha", Vector: []float32{1, 0}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(sent) != 1 || sent[0]["payload"].(map[string]any)["tenant_id"] != "acme" {
		t.Fatalf("points: %v", sent)
	}
}

func TestStoreDeleteByDocID(t *testing.T) {
	var paths []string
	var deleteBody map[string]any
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/collections/chunks_acme/points/count":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["exact"] != true {
				t.Fatalf("count body: %v", body)
			}
			return okResponse(t, map[string]any{"count": 4}), nil
		case "/collections/chunks_acme/points/delete":
			if r.URL.Query().Get("wait") != "true" {
				t.Fatalf("delete must wait: %s", r.URL.RawQuery)
			}
			_ = json.NewDecoder(r.Body).Decode(&deleteBody)
			return okResponse(t, map[string]any{"status": "completed"}), nil
		}
		t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		return nil, nil
	})

	n, err := s.Delete(context.Background(), "chunks_acme", "doc-9")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n != 4 {
		t.Fatalf("deleted: want=4 got=%d", n)
	}
	if len(paths) != 2 || paths[0] != "POST /collections/chunks_acme/points/count" {
		t.Fatalf("requests: %v", paths)
	}
	must := deleteBody["filter"].(map[string]any)["must"].([]any)
	cond := must[0].(map[string]any)
	if cond["key"] != "doc_id" || cond["match"].(map[string]any)["value"] != "doc-9" {
		t.Fatalf("delete filter: %v", deleteBody)
	}
}

func TestStoreDeleteSkipsWhenNothingMatches(t *testing.T) {
	calls := 0
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return okResponse(t, map[string]any{"count": 0}), nil
	})
	n, err := s.Delete(context.Background(), "chunks_acme", "doc-0")
	if err != nil || n != 0 || calls != 1 {
		t.Fatalf("Delete = %d, %v after %d calls", n, err, calls)
	}
}

func TestStoreDeleteDropsCollection(t *testing.T) {
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodDelete || r.URL.Path != "/collections/chunks_acme" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		return okResponse(t, true), nil
	})
	s.ready["chunks_acme"] = true
	n, err := s.Delete(context.Background(), "chunks_acme", "")
	if err != nil || n != 1 {
		t.Fatalf("Delete = %d, %v", n, err)
	}
	if s.ready["chunks_acme"] {
		t.Fatal("dropped collection still marked ready")
	}
}

func TestStoreDeleteMissingCollection(t *testing.T) {
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Header:     make(http.Header),
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"status":{"error":"Not found"}}`))),
		}, nil
	})
	n, err := s.Delete(context.Background(), "gone", "doc-1")
	if err != nil || n != 0 {
		t.Fatalf("Delete = %d, %v", n, err)
	}
}

func TestStoreUpsertRejectsMixedDimensions(t *testing.T) {
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	_, err := s.Upsert(context.Background(), "docs", []ports.VectorPoint{
		{Text: "a", Vector: []float32{1, 2}},
		{Text: "b", Vector: []float32{1}},
	})
	if ports.KindOf(err) != ports.KindInvalidInput {
		t.Fatalf("kind: got=%q", ports.KindOf(err))
	}
}

func TestPointIDKeepsValidUUID(t *testing.T) {
	id := "0f1705d1-2c3f-4e40-b2f4-f855f7d3c8e8"
	if got := pointID("c", ports.VectorPoint{ID: id}); got != id {
		t.Fatalf("pointID: want=%q got=%q", id, got)
	}
}

func TestValidateConfig(t *testing.T) {
	var cfgErr *ConfigError
	if err := ValidateConfig(Config{}); !errors.As(err, &cfgErr) || cfgErr.Code != ConfigErrorMissingURL {
		t.Fatalf("missing url: %v", err)
	}
	if err := ValidateConfig(Config{URL: "qdrant:6333"}); !errors.As(err, &cfgErr) || cfgErr.Code != ConfigErrorInvalidURL {
		t.Fatalf("invalid url: %v", err)
	}
	if err := ValidateConfig(Config{URL: "http://qdrant:6333"}); err != nil {
		t.Fatalf("valid url: %v", err)
	}
	if err := ValidateConfig(Config{URL: "http://qdrant:6333", Distance: "hamming"}); !errors.As(err, &cfgErr) || cfgErr.Code != ConfigErrorInvalidDistance {
		t.Fatalf("invalid distance: %v", err)
	}
	if got := canonicalDistance(" euclidean "); got != "Euclid" {
		t.Fatalf("canonicalDistance: %q", got)
	}
}

func newTestStore(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *Store {
	t.Helper()
	s, err := NewWithHTTPClient(logger.NewNop(), Config{URL: "http://qdrant.local", APIKey: "secret"},
		&http.Client{Transport: roundTripFunc(roundTrip)})
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	return s
}

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	payload := map[string]any{
		"result": result,
		"status": "ok",
		"time":   0.001,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
