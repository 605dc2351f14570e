package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kirillkom/rag-eval/internal/core/domain"
	"github.com/kirillkom/rag-eval/internal/core/ports"
	"github.com/kirillkom/rag-eval/internal/infrastructure/resilience"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"

	payloadDocumentID = "document_id"
	payloadContent    = "content"
	payloadSource     = "source"
)

// pointsAPI is the subset of *qdrant.Client the store uses.
type pointsAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
}

// Store serves dense, sparse (lexical) and natively fused search over one
// hybrid Qdrant collection.
type Store struct {
	api        pointsAPI
	closer     func() error
	collection string
	embedder   ports.Embedder
	executor   *resilience.Executor
}

// New dials Qdrant over gRPC. addr is "host:port"; the port defaults to 6334.
func New(addr, collection string, embedder ports.Embedder, executor *resilience.Executor) (*Store, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant addr: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	store := newStore(client, collection, embedder, executor)
	store.closer = client.Close
	return store, nil
}

func newStore(api pointsAPI, collection string, embedder ports.Embedder, executor *resilience.Executor) *Store {
	if strings.TrimSpace(collection) == "" {
		collection = "rag_eval"
	}
	return &Store{
		api:        api,
		collection: collection,
		embedder:   embedder,
		executor:   executor,
	}
}

func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func (s *Store) DenseSearch(ctx context.Context, text string, topK int) ([]domain.SearchHit, error) {
	if topK <= 0 {
		return nil, nil
	}
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.query(ctx, "dense_search", &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vector),
		Using:          qdrant.PtrOf(denseVectorName),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
}

func (s *Store) LexicalSearch(ctx context.Context, text string, topK int) ([]domain.SearchHit, error) {
	if topK <= 0 {
		return nil, nil
	}
	sparse := encodeSparseQuery(text)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}
	return s.query(ctx, "lexical_search", &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuerySparse(sparse.Indices, sparse.Values),
		Using:          qdrant.PtrOf(sparseVectorName),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
}

// HybridSearch fuses both indexes server-side with reciprocal rank fusion.
// Qdrant's RRF is unweighted, so alpha only selects the pure modes at 0 and 1.
func (s *Store) HybridSearch(ctx context.Context, text string, topK int, alpha float64) ([]domain.SearchHit, error) {
	switch {
	case alpha >= 1:
		return s.DenseSearch(ctx, text, topK)
	case alpha <= 0:
		return s.LexicalSearch(ctx, text, topK)
	}
	if topK <= 0 {
		return nil, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	prefetchLimit := uint64(topK * 2)
	prefetch := []*qdrant.PrefetchQuery{
		{
			Query: qdrant.NewQueryDense(vector),
			Using: qdrant.PtrOf(denseVectorName),
			Limit: qdrant.PtrOf(prefetchLimit),
		},
	}
	if sparse := encodeSparseQuery(text); len(sparse.Indices) > 0 {
		prefetch = append(prefetch, &qdrant.PrefetchQuery{
			Query: qdrant.NewQuerySparse(sparse.Indices, sparse.Values),
			Using: qdrant.PtrOf(sparseVectorName),
			Limit: qdrant.PtrOf(prefetchLimit),
		})
	}

	return s.query(ctx, "hybrid_search", &qdrant.QueryPoints{
		CollectionName: s.collection,
		Prefetch:       prefetch,
		Query:          qdrant.NewQueryFusion(qdrant.Fusion_RRF),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
}

// EnsureCollection creates the hybrid collection when it is missing.
func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid vector dimension: %d", dimension)
	}
	return s.execute(ctx, "ensure_collection", func(callCtx context.Context) error {
		exists, err := s.api.CollectionExists(callCtx, s.collection)
		if err != nil {
			return fmt.Errorf("check collection: %w", err)
		}
		if exists {
			return nil
		}
		err = s.api.CreateCollection(callCtx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
				denseVectorName: {
					Size:     uint64(dimension),
					Distance: qdrant.Distance_Cosine,
				},
			}),
			SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
				sparseVectorName: {Modifier: qdrant.Modifier_Idf.Enum()},
			}),
		})
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return fmt.Errorf("create collection: %w", err)
		}
		return nil
	})
}

// UpsertDocuments embeds and indexes documents. Point ids are derived from the
// document id, so re-indexing replaces earlier points.
func (s *Store) UpsertDocuments(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, 0, len(docs))
	for _, doc := range docs {
		texts = append(texts, doc.Content)
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}
	if err := s.EnsureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, doc := range docs {
		points = append(points, documentPoint(doc, vectors[i]))
	}
	return s.execute(ctx, "upsert", func(callCtx context.Context) error {
		_, err := s.api.Upsert(callCtx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("upsert points: %w", err)
		}
		return nil
	})
}

func documentPoint(doc domain.Document, dense []float32) *qdrant.PointStruct {
	payload := map[string]*qdrant.Value{
		payloadDocumentID: qdrant.NewValueString(doc.ID),
		payloadContent:    qdrant.NewValueString(doc.Content),
	}
	if doc.Source != "" {
		payload[payloadSource] = qdrant.NewValueString(doc.Source)
	}
	for k, v := range doc.Metadata {
		if _, reserved := payload[k]; reserved {
			continue
		}
		payload[k] = qdrant.NewValueString(v)
	}

	sparse := encodeSparseDocument(doc.Content, doc.Source)
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(pointID(doc.ID)),
		Payload: payload,
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vectors{
				Vectors: &qdrant.NamedVectors{
					Vectors: map[string]*qdrant.Vector{
						denseVectorName: {Data: dense},
						sparseVectorName: {
							Indices: &qdrant.SparseIndices{Data: sparse.Indices},
							Data:    sparse.Values,
						},
					},
				},
			},
		},
	}
}

func pointID(documentID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("rag-eval:"+documentID)).String()
}

func (s *Store) query(ctx context.Context, operation string, req *qdrant.QueryPoints) ([]domain.SearchHit, error) {
	var points []*qdrant.ScoredPoint
	err := s.execute(ctx, operation, func(callCtx context.Context) error {
		res, err := s.api.Query(callCtx, req)
		if err != nil {
			return fmt.Errorf("qdrant %s: %w", operation, err)
		}
		points = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toHits(points), nil
}

func toHits(points []*qdrant.ScoredPoint) []domain.SearchHit {
	hits := make([]domain.SearchHit, 0, len(points))
	for _, point := range points {
		if point == nil {
			continue
		}
		doc := domain.Document{Metadata: map[string]string{}}
		for k, v := range point.GetPayload() {
			switch k {
			case payloadDocumentID:
				doc.ID = v.GetStringValue()
			case payloadContent:
				doc.Content = v.GetStringValue()
			case payloadSource:
				doc.Source = v.GetStringValue()
			default:
				doc.Metadata[k] = v.GetStringValue()
			}
		}
		if doc.ID == "" {
			doc.ID = point.GetId().GetUuid()
		}
		if len(doc.Metadata) == 0 {
			doc.Metadata = nil
		}
		hits = append(hits, domain.SearchHit{Document: doc, Score: float64(point.GetScore())})
	}
	return hits
}

func (s *Store) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if s.executor == nil {
		return fn(ctx)
	}
	return s.executor.Execute(ctx, "qdrant."+operation, fn, classifyGRPC)
}

func classifyGRPC(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition, codes.AlreadyExists:
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
