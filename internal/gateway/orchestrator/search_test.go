package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
)

type recordingSearch struct {
	last ports.VectorQuery
	hits []ports.Hit
	err  error
}

func (s *recordingSearch) Search(ctx context.Context, q ports.VectorQuery) ([]ports.Hit, error) {
	s.last = q
	return s.hits, s.err
}

type fakeVectorDeleter struct {
	collection, docID string
	n                 int
}

func (f *fakeVectorDeleter) Delete(ctx context.Context, collection, docID string) (int, error) {
	f.collection, f.docID = collection, docID
	return f.n, nil
}

type fakeGraphDeleter struct {
	tenant, docID string
	n             int
	err           error
}

func (f *fakeGraphDeleter) Delete(ctx context.Context, tenant, docID string) (int, error) {
	f.tenant, f.docID = tenant, docID
	return f.n, f.err
}

func TestSearchScopesToTenantAndClampsTopK(t *testing.T) {
	search := &recordingSearch{hits: []ports.Hit{{ID: "c1", Score: 0.4}}}
	o := newTestOrchestrator(t, &fakeCompletion{}, Deps{Embedder: &fakeEmbedder{dim: 3}, Search: search})

	hits, err := o.Search(tenantCtx("acme"), SearchRequest{
		Query: " who founded acme ", TopK: 1000, Filters: map[string]any{"lang": "en"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Citations != nil {
		t.Fatalf("hits: %+v", hits)
	}
	if search.last.Collection != "chunks_acme" || search.last.TopK != maxSearchTopK {
		t.Fatalf("query: %+v", search.last)
	}
	if search.last.Filters["lang"] != "en" {
		t.Fatalf("filters dropped: %+v", search.last.Filters)
	}

	if _, err := o.Search(context.Background(), SearchRequest{Query: "x", Collection: "docs"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if search.last.Collection != "docs_default" || search.last.TopK != defaultSearchTopK {
		t.Fatalf("query: %+v", search.last)
	}
}

func TestSearchEmptyResultIsNotNil(t *testing.T) {
	o := newTestOrchestrator(t, &fakeCompletion{}, Deps{Embedder: &fakeEmbedder{dim: 3}, Search: &recordingSearch{}})
	hits, err := o.Search(context.Background(), SearchRequest{Query: "x"})
	if err != nil || hits == nil || len(hits) != 0 {
		t.Fatalf("Search = %v, %v", hits, err)
	}
}

func TestSearchErrors(t *testing.T) {
	o := newTestOrchestrator(t, &fakeCompletion{}, Deps{})
	if _, err := o.Search(context.Background(), SearchRequest{Query: "x"}); !errors.Is(err, ErrIndexDisabled) {
		t.Fatalf("want ErrIndexDisabled, got %v", err)
	}

	o = newTestOrchestrator(t, &fakeCompletion{}, Deps{Embedder: &fakeEmbedder{dim: 3}, Search: &recordingSearch{err: unavailable()}})
	if _, err := o.Search(context.Background(), SearchRequest{Query: " "}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("blank query: %v", err)
	}
	if _, err := o.Search(context.Background(), SearchRequest{Query: "x", TopK: -1}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("negative top_k: %v", err)
	}
	if _, err := o.Search(context.Background(), SearchRequest{Query: "x"}); ports.KindOf(err) != ports.KindUnavailable {
		t.Fatalf("want unavailable, got %v", err)
	}
}

func TestDeleteVectorsUsesTenantCollection(t *testing.T) {
	del := &fakeVectorDeleter{n: 3}
	o := newTestOrchestrator(t, &fakeCompletion{}, Deps{Vectors: del})

	n, err := o.DeleteVectors(tenantCtx("acme"), "docs", " d1 ")
	if err != nil || n != 3 {
		t.Fatalf("DeleteVectors = %d, %v", n, err)
	}
	if del.collection != "docs_acme" || del.docID != "d1" {
		t.Fatalf("deleter got %q %q", del.collection, del.docID)
	}

	if _, err := o.DeleteVectors(context.Background(), " ", "d1"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("blank collection: %v", err)
	}
	if _, err := newTestOrchestrator(t, &fakeCompletion{}, Deps{}).DeleteVectors(context.Background(), "docs", ""); !errors.Is(err, ErrIndexDisabled) {
		t.Fatalf("want ErrIndexDisabled, got %v", err)
	}
}

func TestDeleteGraphUsesTenant(t *testing.T) {
	del := &fakeGraphDeleter{n: 5}
	o := newTestOrchestrator(t, &fakeCompletion{}, Deps{Graph: del})

	n, err := o.DeleteGraph(tenantCtx("acme"), "d1")
	if err != nil || n != 5 {
		t.Fatalf("DeleteGraph = %d, %v", n, err)
	}
	if del.tenant != "acme" || del.docID != "d1" {
		t.Fatalf("deleter got %q %q", del.tenant, del.docID)
	}

	del.err = unavailable()
	if _, err := o.DeleteGraph(context.Background(), ""); ports.KindOf(err) != ports.KindUnavailable {
		t.Fatalf("want unavailable, got %v", err)
	}
	if del.tenant != ports.DefaultTenant {
		t.Fatalf("tenant: %q", del.tenant)
	}
	if _, err := newTestOrchestrator(t, &fakeCompletion{}, Deps{}).DeleteGraph(context.Background(), "d1"); !errors.Is(err, ErrGraphDisabled) {
		t.Fatalf("want ErrGraphDisabled, got %v", err)
	}
}
