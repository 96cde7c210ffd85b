package qdrant

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
	"github.com/yungbote/graphrag-gateway/internal/platform/logger"
)

const (
	backendName       = "qdrant"
	maxErrorBodyBytes = 1024
	maxResponseBytes  = 8 << 20
)

var pointIDNamespaceUUID = uuid.MustParse("0f1705d1-2c3f-4e40-b2f4-f855f7d3c8e8")

// Store is a Qdrant REST client serving the vector search and indexing ports.
type Store struct {
	log      *logger.Logger
	baseURL  string
	apiKey   string
	distance string
	http     *http.Client

	mu    sync.Mutex
	ready map[string]bool
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type searchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func New(log *logger.Logger, cfg Config) (*Store, error) {
	return NewWithHTTPClient(log, cfg, nil)
}

// NewWithHTTPClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewWithHTTPClient(log *logger.Logger, cfg Config, httpClient *http.Client) (*Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	distance := canonicalDistance(cfg.Distance)
	s := &Store{
		log:      log.With("service", "QdrantStore"),
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		distance: distance,
		http:     httpClient,
		ready:    map[string]bool{},
	}
	log.Info("Qdrant vector store selected", "url", s.baseURL)
	return s, nil
}

var (
	_ ports.VectorSearcher = (*Store)(nil)
	_ ports.VectorIndexer  = (*Store)(nil)
	_ ports.VectorDeleter  = (*Store)(nil)
)

// Search returns hits in Qdrant's score order. Payload fields doc_id, text and metadata are
// lifted onto the hit; any other payload keys are folded into Metadata.
func (s *Store) Search(ctx context.Context, q ports.VectorQuery) ([]ports.Hit, error) {
	const op = "search"
	if len(q.Vector) == 0 {
		return nil, invalid(op, "query vector required")
	}
	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}
	filter, err := translateQueryFilter(q.Filters)
	if err != nil {
		s.log.Warn("qdrant query filter rejected", "collection", q.Collection, "error", err)
		return nil, err
	}

	req := map[string]any{
		"vector":       q.Vector,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
	}
	if filter != nil {
		req["filter"] = filter
	}
	var raw []searchResultItem
	if err := s.doJSON(ctx, op, http.MethodPost, collectionPath(q.Collection, "/points/search"), req, &raw); err != nil {
		return nil, err
	}

	out := make([]ports.Hit, 0, len(raw))
	for _, item := range raw {
		out = append(out, hitFromItem(item))
	}
	return out, nil
}

// Upsert writes points, creating the collection on first use. Points without an ID get a
// UUID derived from collection, doc id and text so re-indexing the same chunk overwrites it.
func (s *Store) Upsert(ctx context.Context, collection string, points []ports.VectorPoint) (int, error) {
	const op = "upsert"
	if len(points) == 0 {
		return 0, nil
	}
	dim := len(points[0].Vector)
	if dim == 0 {
		return 0, invalid(op, "point vectors must be non-empty")
	}

	body := make([]map[string]any, 0, len(points))
	for i, p := range points {
		if len(p.Vector) != dim {
			return 0, invalid(op, fmt.Sprintf("point %d dimension mismatch: expected=%d got=%d", i, dim, len(p.Vector)))
		}
		meta := p.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		payload := map[string]any{
			"doc_id":   p.DocID,
			"text":     p.Text,
			"metadata": meta,
			"hash":     textHash(p.Text),
		}
		if p.TenantID != "" {
			payload["tenant_id"] = p.TenantID
		}
		body = append(body, map[string]any{
			"id":      pointID(collection, p),
			"vector":  p.Vector,
			"payload": payload,
		})
	}

	if err := s.ensureCollection(ctx, collection, dim); err != nil {
		return 0, err
	}
	req := map[string]any{"points": body}
	if err := s.doJSON(ctx, op, http.MethodPut, collectionPath(collection, "/points?wait=true"), req, nil); err != nil {
		return 0, err
	}
	return len(body), nil
}

// Delete removes the points of docID from collection and reports how many there were. An
// empty docID drops the whole collection and counts as one deletion. A missing collection
// deletes nothing.
func (s *Store) Delete(ctx context.Context, collection, docID string) (int, error) {
	const op = "delete"
	if strings.TrimSpace(collection) == "" {
		return 0, invalid(op, "collection required")
	}
	docID = strings.TrimSpace(docID)

	var n int
	var err error
	if docID == "" {
		err = s.doJSON(ctx, "drop_collection", http.MethodDelete, collectionPath(collection, ""), nil, nil)
		n = 1
	} else {
		filter := map[string]any{"must": []any{matchValue("doc_id", docID)}}
		var counted struct {
			Count int `json:"count"`
		}
		err = s.doJSON(ctx, "count", http.MethodPost, collectionPath(collection, "/points/count"),
			map[string]any{"filter": filter, "exact": true}, &counted)
		if err == nil && counted.Count > 0 {
			err = s.doJSON(ctx, op, http.MethodPost, collectionPath(collection, "/points/delete?wait=true"),
				map[string]any{"filter": filter}, nil)
		}
		n = counted.Count
	}

	var be *ports.BackendError
	if errors.As(err, &be) && be.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if docID == "" {
		s.mu.Lock()
		delete(s.ready, collection)
		s.mu.Unlock()
	}
	s.log.Info("qdrant points deleted", "collection", collection, "doc_id", docID, "deleted", n)
	return n, nil
}

// Ping checks the server's readiness endpoint.
func (s *Store) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return ports.Classify(backendName, "ready", 0, err)
	}
	s.authorize(req)
	resp, err := s.http.Do(req)
	if err != nil {
		return ports.Classify(backendName, "ready", 0, err)
	}
	_ = resp.Body.Close()
	return ports.Classify(backendName, "ready", resp.StatusCode, statusErr(resp.StatusCode, nil))
}

func (s *Store) ensureCollection(ctx context.Context, collection string, dim int) error {
	s.mu.Lock()
	ok := s.ready[collection]
	s.mu.Unlock()
	if ok {
		return nil
	}

	err := s.doJSON(ctx, "collection_info", http.MethodGet, collectionPath(collection, ""), nil, nil)
	var be *ports.BackendError
	switch {
	case err == nil:
	case errors.As(err, &be) && be.StatusCode == http.StatusNotFound:
		create := map[string]any{"vectors": map[string]any{"size": dim, "distance": s.distance}}
		if err := s.doJSON(ctx, "create_collection", http.MethodPut, collectionPath(collection, ""), create, nil); err != nil {
			return err
		}
		s.log.Info("qdrant collection created", "collection", collection, "dim", dim, "distance", s.distance)
	default:
		return err
	}

	s.mu.Lock()
	s.ready[collection] = true
	s.mu.Unlock()
	return nil
}

func (s *Store) authorize(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}

func (s *Store) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return invalid(op, "encode request failed: "+err.Error())
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return ports.Classify(backendName, op, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.http.Do(req)
	if err != nil {
		return ports.Classify(backendName, op, 0, err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if readErr != nil {
		return ports.NewBackendError(backendName, op, ports.KindMalformed, resp.StatusCode, readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ports.Classify(backendName, op, resp.StatusCode, statusErr(resp.StatusCode, raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ports.NewBackendError(backendName, op, ports.KindMalformed, resp.StatusCode, fmt.Errorf("decode envelope: %w", err))
	}
	if msg := parseEnvelopeStatus(env.Status); msg != "" {
		return ports.NewBackendError(backendName, op, ports.KindMalformed, resp.StatusCode, errors.New(msg))
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return ports.NewBackendError(backendName, op, ports.KindMalformed, resp.StatusCode, fmt.Errorf("decode result: %w", err))
	}
	return nil
}

func statusErr(status int, raw []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	return fmt.Errorf("qdrant http status=%d body=%q", status, truncateBody(raw))
}

func invalid(op, msg string) error {
	return ports.NewBackendError(backendName, op, ports.KindInvalidInput, 0, errors.New(msg))
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") || strings.EqualFold(statusString, "acknowledged") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}
	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func hitFromItem(item searchResultItem) ports.Hit {
	h := ports.Hit{ID: decodePointID(item.ID), Score: item.Score, Metadata: map[string]any{}}
	for k, v := range item.Payload {
		switch k {
		case "doc_id":
			h.DocID, _ = v.(string)
		case "text":
			h.Text, _ = v.(string)
		case "metadata":
			if m, ok := v.(map[string]any); ok {
				for mk, mv := range m {
					h.Metadata[mk] = mv
				}
			}
		case "hash":
		default:
			h.Metadata[k] = v
		}
	}
	return h
}

func decodePointID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var idString string
	if err := json.Unmarshal(raw, &idString); err == nil {
		return strings.TrimSpace(idString)
	}
	var idNumber int64
	if err := json.Unmarshal(raw, &idNumber); err == nil {
		return fmt.Sprintf("%d", idNumber)
	}
	return strings.TrimSpace(string(raw))
}

// pointID keeps caller-supplied UUIDs; anything else is hashed into one, since Qdrant only
// accepts UUIDs or unsigned integers.
func pointID(collection string, p ports.VectorPoint) string {
	if id := strings.TrimSpace(p.ID); id != "" {
		if u, err := uuid.Parse(id); err == nil {
			return u.String()
		}
		return uuid.NewSHA1(pointIDNamespaceUUID, []byte(collection+"|"+id)).String()
	}
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(collection+"|"+p.DocID+"|"+textHash(p.Text))).String()
}

func textHash(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func collectionPath(collection, suffix string) string {
	return "/collections/" + url.PathEscape(collection) + suffix
}
