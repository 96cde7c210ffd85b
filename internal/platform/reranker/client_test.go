package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func TestRerank(t *testing.T) {
	c, err := NewWithHTTPClient("http://reranker:8080/", time.Second, &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.URL.String() != "http://reranker:8080/rerank" {
				t.Fatalf("url=%s", req.URL)
			}
			var in rerankRequest
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if in.Query != "who founded acme" || len(in.Documents) != 3 || in.TopN != 3 {
				t.Fatalf("request=%+v", in)
			}
			return respond(http.StatusOK, `{"results":[{"index":2,"score":0.9,"text":"c"},{"index":0,"score":0.1,"text":"a"}]}`), nil
		}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := c.Rerank(context.Background(), "who founded acme", []string{"a", "b", "c"}, 10)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(got) != 2 || got[0].Index != 2 || got[0].Score != 0.9 {
		t.Fatalf("results=%+v", got)
	}
}

func TestRerankUpstreamError(t *testing.T) {
	c, _ := NewWithHTTPClient("http://reranker:8080", time.Second, &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return respond(http.StatusInternalServerError, `{"detail":"cuda oom"}`), nil
		}),
	})
	_, err := c.Rerank(context.Background(), "q", []string{"a"}, 1)
	if ports.KindOf(err) != ports.KindUnavailable {
		t.Fatalf("kind=%q err=%v", ports.KindOf(err), err)
	}
}

func TestRerankMalformedBody(t *testing.T) {
	c, _ := NewWithHTTPClient("http://reranker:8080", time.Second, &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return respond(http.StatusOK, `not json`), nil
		}),
	})
	_, err := c.Rerank(context.Background(), "q", []string{"a"}, 1)
	if ports.KindOf(err) != ports.KindMalformed {
		t.Fatalf("kind=%q", ports.KindOf(err))
	}
}

func TestRerankNoDocuments(t *testing.T) {
	c, _ := New("http://reranker:8080", 0)
	got, err := c.Rerank(context.Background(), "q", nil, 3)
	if err != nil || len(got) != 0 {
		t.Fatalf("got=%v err=%v", got, err)
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(" ", time.Second); err == nil {
		t.Fatalf("expected error")
	}
}
