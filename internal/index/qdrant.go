package index

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	"github.com/marek/imagesim/internal/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// QdrantConfig holds configuration for the Qdrant connection.
type QdrantConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS          bool   // Explicitly enable TLS without API Key
	Dimension       int
	HNSWM           uint64
	HNSWEfConstruct uint64
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantIndex implements VectorIndex against a Qdrant collection with cosine
// distance. Tie-break order for equal-score hits is whatever the backend's
// scored-point ordering yields for the current index state; exact ordering
// guarantees live in MemoryIndex, which tests run against.
type QdrantIndex struct {
	conn          *grpc.ClientConn
	pointsClient  pb.PointsClient
	collectClient pb.CollectionsClient
	collection    string
	dimension     int
	hnswM         uint64
	hnswEf        uint64
}

// NewQdrantIndex creates a new QdrantIndex.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key).
func NewQdrantIndex(cfg *QdrantConfig) (*QdrantIndex, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption

	// TLS is enabled if an API key is set or UseTLS is explicitly true
	useTLS := cfg.UseTLS || cfg.APIKey != ""

	if useTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
		creds := credentials.NewTLS(tlsConfig)
		opts = append(opts, grpc.WithTransportCredentials(creds))

		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	hnswM := cfg.HNSWM
	if hnswM == 0 {
		hnswM = 16
	}
	hnswEf := cfg.HNSWEfConstruct
	if hnswEf == 0 {
		hnswEf = 128
	}

	return &QdrantIndex{
		conn:          conn,
		pointsClient:  pb.NewPointsClient(conn),
		collectClient: pb.NewCollectionsClient(conn),
		collection:    cfg.Collection,
		dimension:     cfg.Dimension,
		hnswM:         hnswM,
		hnswEf:        hnswEf,
	}, nil
}

// Close closes the gRPC connection
func (q *QdrantIndex) Close() error {
	return q.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist. An existing
// collection with a different vector size is an error: the embedding
// dimension is fixed for the lifetime of the index, and changing the
// embedder requires re-indexing into a fresh collection.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	info, err := q.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: q.collection,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok {
			if size != uint64(q.dimension) {
				return fmt.Errorf("collection %s has vector size %d, expected %d", q.collection, size, q.dimension)
			}
		}
		return nil // Collection exists
	}

	_, err = q.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(q.dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(q.hnswM),
			EfConstruct:       optionalUint64(q.hnswEf),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}

	config := info.GetConfig()
	if config == nil {
		return 0, false
	}

	params := config.GetParams()
	if params == nil {
		return 0, false
	}

	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}

	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}

	return 0, false
}

// Upsert inserts or updates the point for entry.ImageID with its payload.
func (q *QdrantIndex) Upsert(ctx context.Context, entry Entry) error {
	uid, err := uuid.Parse(entry.ImageID)
	if err != nil {
		return fmt.Errorf("%w: invalid point ID %q: %v", domain.ErrIndexWrite, entry.ImageID, err)
	}

	points := []*pb.PointStruct{
		{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{
					Uuid: uid.String(),
				},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{
						Data: entry.Embedding,
					},
				},
			},
			Payload: map[string]*pb.Value{
				"title":    {Kind: &pb.Value_StringValue{StringValue: entry.Title}},
				"blob_key": {Kind: &pb.Value_StringValue{StringValue: entry.BlobKey}},
				"tags":     tagsToValue(entry.Tags),
			},
		},
	}

	_, err = q.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("%w: upsert point %s: %v", domain.ErrIndexWrite, entry.ImageID, err)
	}

	return nil
}

func tagsToValue(tags []string) *pb.Value {
	values := make([]*pb.Value, len(tags))
	for i, tag := range tags {
		values[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tag}}
	}
	return &pb.Value{
		Kind: &pb.Value_ListValue{
			ListValue: &pb.ListValue{Values: values},
		},
	}
}

// Query performs a cosine similarity search, returning up to topK hits in
// descending score order.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return []Hit{}, nil
	}

	resp, err := q.pointsClient.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", domain.ErrIndexQuery, err)
	}

	hits := make([]Hit, len(resp.Result))
	for i, scored := range resp.Result {
		hit := Hit{
			ImageID: scored.Id.GetUuid(),
			Score:   scored.Score,
		}
		if payload := scored.Payload; payload != nil {
			if v, ok := payload["title"]; ok {
				hit.Title = v.GetStringValue()
			}
			if v, ok := payload["blob_key"]; ok {
				hit.BlobKey = v.GetStringValue()
			}
			if v, ok := payload["tags"]; ok {
				if list := v.GetListValue(); list != nil {
					for _, item := range list.Values {
						hit.Tags = append(hit.Tags, item.GetStringValue())
					}
				}
			}
		}
		hits[i] = hit
	}

	return hits, nil
}

// Delete deletes the point for imageID.
func (q *QdrantIndex) Delete(ctx context.Context, imageID string) error {
	uid, err := uuid.Parse(imageID)
	if err != nil {
		return fmt.Errorf("%w: invalid point ID %q: %v", domain.ErrIndexWrite, imageID, err)
	}

	_, err = q.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{
						{PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()}},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: delete point %s: %v", domain.ErrIndexWrite, imageID, err)
	}

	return nil
}
