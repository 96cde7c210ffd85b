package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
	"github.com/yungbote/graphrag-gateway/internal/gateway/retrieval"
)

type vectorOnly struct {
	hits []ports.Hit
	err  error
}

func (v vectorOnly) Search(ctx context.Context, q ports.VectorQuery) ([]ports.Hit, error) {
	return v.hits, v.err
}

type brokenGraph struct{}

func (brokenGraph) Neighborhood(ctx context.Context, tenant string, seeds []string, maxHops int) (*ports.Subgraph, error) {
	return nil, ports.NewBackendError("neo4j", "neighborhood", ports.KindTimeout, 0, context.DeadlineExceeded)
}

type retrieveRecorder struct {
	countingRecorder
	outcomes []string
}

func (r *retrieveRecorder) RetrieveDone(outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, outcome)
}

type tenantSearch struct {
	collection string
}

func (s *tenantSearch) Search(ctx context.Context, q ports.VectorQuery) ([]ports.Hit, error) {
	s.collection = q.Collection
	return nil, nil
}

func newRetrieveOrchestrator(t *testing.T, search ports.VectorSearcher, graph ports.GraphNeighborhood, rec Recorder) *Orchestrator {
	t.Helper()
	m, err := retrieval.New(retrieval.Deps{
		Embedder: &fakeEmbedder{dim: 3},
		Search:   search,
		Graph:    graph,
	}, retrieval.Defaults{})
	if err != nil {
		t.Fatalf("retrieval.New: %v", err)
	}
	return newTestOrchestrator(t, &fakeCompletion{}, Deps{Merger: m, Recorder: rec})
}

func TestRetrieveThroughFacadeReportsDegraded(t *testing.T) {
	rec := &retrieveRecorder{}
	o := newRetrieveOrchestrator(t, vectorOnly{hits: []ports.Hit{{ID: "c1", Text: "alpha", Score: 0.8}}}, brokenGraph{}, rec)

	res, err := o.Retrieve(context.Background(), RetrieveRequest{Query: "who founded acme", IncludeSubgraph: true})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !res.Degraded || res.Subgraph != nil {
		t.Fatalf("want degraded with no subgraph, got degraded=%v subgraph=%v", res.Degraded, res.Subgraph)
	}
	if len(res.Hits) != 1 || res.Hits[0].ID != "c1" {
		t.Fatalf("hits = %+v", res.Hits)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != RetrieveDegraded {
		t.Fatalf("recorder saw %v", rec.outcomes)
	}
}

func TestRetrieveRecordsOKOutcome(t *testing.T) {
	rec := &retrieveRecorder{}
	o := newRetrieveOrchestrator(t, vectorOnly{hits: []ports.Hit{{ID: "c1"}}}, nil, rec)
	if _, err := o.Retrieve(context.Background(), RetrieveRequest{Query: "acme"}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != RetrieveOK {
		t.Fatalf("recorder saw %v", rec.outcomes)
	}
}

func TestRetrieveRecordsFailures(t *testing.T) {
	rec := &retrieveRecorder{}
	o := newRetrieveOrchestrator(t, vectorOnly{err: unavailable()}, nil, rec)
	if _, err := o.Retrieve(context.Background(), RetrieveRequest{Query: "anything"}); err == nil {
		t.Fatal("want error")
	}
	if _, err := o.Retrieve(context.Background(), RetrieveRequest{Query: "  "}); err == nil {
		t.Fatal("want error")
	}
	if len(rec.outcomes) != 2 || rec.outcomes[0] != RetrieveError || rec.outcomes[1] != RetrieveError {
		t.Fatalf("recorder saw %v", rec.outcomes)
	}
}

func TestRetrieveUsesCallerTenant(t *testing.T) {
	search := &tenantSearch{}
	o := newRetrieveOrchestrator(t, search, nil, nil)
	if _, err := o.Retrieve(tenantCtx("acme"), RetrieveRequest{Query: "acme", Tenant: "spoofed"}); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if search.collection != "chunks_acme" {
		t.Fatalf("searched %q", search.collection)
	}
}

func TestRetrieveThroughFacadeMapsInvalidQuery(t *testing.T) {
	o := newRetrieveOrchestrator(t, vectorOnly{}, nil, nil)
	_, err := o.Retrieve(context.Background(), RetrieveRequest{Query: "   "})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}

func TestRetrieveThroughFacadeSurfacesVectorFailure(t *testing.T) {
	o := newRetrieveOrchestrator(t, vectorOnly{err: unavailable()}, nil, nil)
	_, err := o.Retrieve(context.Background(), RetrieveRequest{Query: "anything"})
	if ports.KindOf(err) != ports.KindUnavailable {
		t.Fatalf("want unavailable backend error, got %v", err)
	}
}

func TestRetrieveDisabledWithoutMerger(t *testing.T) {
	o := newTestOrchestrator(t, &fakeCompletion{}, Deps{})
	if _, err := o.Retrieve(context.Background(), RetrieveRequest{Query: "q"}); !errors.Is(err, ErrRetrievalDisabled) {
		t.Fatalf("want ErrRetrievalDisabled, got %v", err)
	}
}
