package kb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QdrantStore is a remote Store over github.com/qdrant/go-client, adapted
// from the teacher's pkg/rag/store/qdrant_store.go: same collection
// existence/creation dance and payload shape, recast onto this package's
// Record model.
type QdrantStore struct {
	conn           *grpc.ClientConn
	points         pb.PointsClient
	collections    pb.CollectionsClient
	collectionName string
	vectorSize     uint64
}

const qdrantDialTimeout = 30 * time.Second

var qdrantWaitTrue = true

// NewQdrantStore dials host (plaintext gRPC, matching the teacher) and
// ensures collection exists, creating it lazily once the first upsert
// reveals the embedding dimension.
func NewQdrantStore(host, collection string) (*QdrantStore, error) {
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimPrefix(host, "https://")

	ctx, cancel := context.WithTimeout(context.Background(), qdrantDialTimeout)
	defer cancel()

	conn, err := grpc.DialContext(ctx, host, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("kb: dial qdrant at %s: %w", host, err)
	}

	return &QdrantStore{
		conn:           conn,
		points:         pb.NewPointsClient(conn),
		collections:    pb.NewCollectionsClient(conn),
		collectionName: collection,
	}, nil
}

func qdrantCollectionName(storeName, kbName string) string {
	return storeName + "__" + kbName
}

func (s *QdrantStore) ensureCollection(ctx context.Context, vectorSize uint64) error {
	listResp, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("kb: list qdrant collections: %w", err)
	}
	for _, col := range listResp.Collections {
		if col.Name == s.collectionName {
			s.vectorSize = vectorSize
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     vectorSize,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("kb: create qdrant collection %s: %w", s.collectionName, err)
	}
	s.vectorSize = vectorSize
	return nil
}

func pointIDFor(id string) *pb.PointId {
	pointUUID := id
	if _, err := uuid.Parse(pointUUID); err != nil {
		pointUUID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
	}
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointUUID}}
}

func (s *QdrantStore) Upsert(ctx context.Context, records []Record, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("kb: upsert record/vector count mismatch: %d vs %d", len(records), len(vectors))
	}
	if len(records) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, uint64(len(vectors[0]))); err != nil {
		return err
	}

	points := make([]*pb.PointStruct, 0, len(records))
	for i, r := range records {
		id := r.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d-%d", r.OutputHash, r.DocumentNumber, r.ChunkNumber)
		}
		model := ""
		if r.Model != nil {
			model = *r.Model
		}
		payload := map[string]*pb.Value{
			"content":         {Kind: &pb.Value_StringValue{StringValue: r.Content}},
			"inserted":        {Kind: &pb.Value_StringValue{StringValue: r.Inserted.Format(time.RFC3339)}},
			"conversion":      {Kind: &pb.Value_StringValue{StringValue: r.Conversion}},
			"model":           {Kind: &pb.Value_StringValue{StringValue: model}},
			"document_hash":   {Kind: &pb.Value_StringValue{StringValue: r.DocumentHash}},
			"output_hash":     {Kind: &pb.Value_StringValue{StringValue: r.OutputHash}},
			"document_number": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(r.DocumentNumber)}},
			"document_count":  {Kind: &pb.Value_IntegerValue{IntegerValue: int64(r.DocumentCount)}},
			"chunk_number":    {Kind: &pb.Value_IntegerValue{IntegerValue: int64(r.ChunkNumber)}},
			"chunk_count":     {Kind: &pb.Value_IntegerValue{IntegerValue: int64(r.ChunkCount)}},
			"document_path":   {Kind: &pb.Value_StringValue{StringValue: r.DocumentPath}},
		}
		points = append(points, &pb.PointStruct{
			Id: pointIDFor(id),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vectors[i]}},
			},
			Payload: payload,
		})
	}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collectionName,
		Points:         points,
		Wait:           &qdrantWaitTrue,
	})
	if err != nil {
		return fmt.Errorf("kb: upsert qdrant points: %w", err)
	}
	return nil
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Text{Text: value}},
			},
		},
	}
}

func recordFromPayload(payload map[string]*pb.Value) Record {
	r := Record{
		Content:      payload["content"].GetStringValue(),
		Conversion:   payload["conversion"].GetStringValue(),
		DocumentHash: payload["document_hash"].GetStringValue(),
		OutputHash:   payload["output_hash"].GetStringValue(),
		DocumentPath: payload["document_path"].GetStringValue(),
	}
	if v, ok := payload["model"]; ok && v.GetStringValue() != "" {
		m := v.GetStringValue()
		r.Model = &m
	}
	if v, ok := payload["document_number"]; ok {
		r.DocumentNumber = int(v.GetIntegerValue())
	}
	if v, ok := payload["document_count"]; ok {
		r.DocumentCount = int(v.GetIntegerValue())
	}
	if v, ok := payload["chunk_number"]; ok {
		r.ChunkNumber = int(v.GetIntegerValue())
	}
	if v, ok := payload["chunk_count"]; ok {
		r.ChunkCount = int(v.GetIntegerValue())
	}
	if v, ok := payload["inserted"]; ok {
		if t, err := time.Parse(time.RFC3339, v.GetStringValue()); err == nil {
			r.Inserted = t
		}
	}
	return r
}

func (s *QdrantStore) scrollByField(ctx context.Context, key, value string) ([]Record, error) {
	resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: s.collectionName,
		Filter:         &pb.Filter{Must: []*pb.Condition{fieldMatch(key, value)}},
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
		Limit: ptrUint32(10000),
	})
	if err != nil {
		if strings.Contains(err.Error(), "doesn't exist") || strings.Contains(err.Error(), "not found") {
			return nil, nil
		}
		return nil, fmt.Errorf("kb: scroll qdrant points: %w", err)
	}
	recs := make([]Record, 0, len(resp.Result))
	for _, p := range resp.Result {
		r := recordFromPayload(p.Payload)
		r.ID = p.Id.GetUuid()
		recs = append(recs, r)
	}
	return recs, nil
}

func ptrUint32(v uint32) *uint32 { return &v }

func (s *QdrantStore) QueryByDocumentHash(ctx context.Context, documentHash string) ([]Record, error) {
	return s.scrollByField(ctx, "document_hash", documentHash)
}

func (s *QdrantStore) QueryByOutputHash(ctx context.Context, outputHash string) ([]Record, error) {
	return s.scrollByField(ctx, "output_hash", outputHash)
}

func (s *QdrantStore) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]ScoredRecord, error) {
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collectionName,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("kb: search qdrant: %w", err)
	}
	out := make([]ScoredRecord, 0, len(resp.Result))
	for _, p := range resp.Result {
		r := recordFromPayload(p.Payload)
		r.ID = p.Id.GetUuid()
		// Qdrant reports cosine similarity (higher = closer); convert to
		// the package's distance semantics (lower = more similar, §4.5).
		out = append(out, ScoredRecord{Record: r, Score: 1 - float64(p.Score)})
	}
	return out, nil
}

// UpdateDocumentPaths patches document_path in place via SetPayload, so no
// round trip through the embedding vectors is needed (§4.5 add_doc_path).
func (s *QdrantStore) UpdateDocumentPaths(ctx context.Context, documentHash string, newPath string) error {
	records, err := s.QueryByDocumentHash(ctx, documentHash)
	if err != nil {
		return err
	}
	for _, r := range records {
		aliases := strings.Split(r.DocumentPath, ";")
		if containsAlias(aliases, newPath) {
			continue
		}
		updated := strings.Join(append(aliases, newPath), ";")
		_, err := s.points.SetPayload(ctx, &pb.SetPayloadPoints{
			CollectionName: s.collectionName,
			Payload: map[string]*pb.Value{
				"document_path": {Kind: &pb.Value_StringValue{StringValue: updated}},
			},
			PointsSelector: &pb.PointsSelector{
				PointsSelectorOneOf: &pb.PointsSelector_Points{
					Points: &pb.PointsIdsList{Ids: []*pb.PointId{pointIDFor(r.ID)}},
				},
			},
			Wait: &qdrantWaitTrue,
		})
		if err != nil {
			return fmt.Errorf("kb: set qdrant payload: %w", err)
		}
	}
	return nil
}

func (s *QdrantStore) DeleteCollection(ctx context.Context) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collectionName})
	if err != nil && strings.Contains(err.Error(), "doesn't exist") {
		return nil
	}
	return err
}

func (s *QdrantStore) Close() error {
	return s.conn.Close()
}

var _ Store = (*QdrantStore)(nil)
