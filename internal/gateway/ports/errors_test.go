package ports

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		status int
		err    error
		want   ErrorKind
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: KindTimeout},
		{name: "wrapped deadline", err: fmt.Errorf("dial: %w", context.DeadlineExceeded), want: KindTimeout},
		{name: "connection refused", err: errors.New("connection refused"), want: KindUnavailable},
		{name: "429", status: http.StatusTooManyRequests, want: KindRateLimited},
		{name: "504", status: http.StatusGatewayTimeout, want: KindTimeout},
		{name: "503", status: http.StatusServiceUnavailable, want: KindUnavailable},
		{name: "400", status: http.StatusBadRequest, want: KindMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Classify("litellm", "chat", tc.status, tc.err)
			if got := KindOf(err); got != tc.want {
				t.Fatalf("kind: want=%s got=%s (err=%v)", tc.want, got, err)
			}
		})
	}
}

func TestClassifySuccessIsNil(t *testing.T) {
	if err := Classify("qdrant", "search", http.StatusOK, nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestClassifyKeepsExistingBackendError(t *testing.T) {
	orig := NewBackendError("neo4j", "read", KindRateLimited, 0, nil)
	err := Classify("other", "op", 500, orig)
	if err != orig {
		t.Fatalf("expected original backend error to pass through, got %v", err)
	}
	if !IsRateLimited(fmt.Errorf("wrap: %w", err)) {
		t.Fatalf("expected wrapped error to report rate limited")
	}
}
