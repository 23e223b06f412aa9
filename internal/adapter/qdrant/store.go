// Package qdrant implements port.VectorStore on top of a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"findit/internal/adapter/store"
	"findit/internal/domain"
	"findit/internal/port"
)

// payloadID holds the caller's id; Qdrant point ids must be UUIDs or integers.
const payloadID = "_id"

// pointNamespace derives stable point UUIDs from caller ids.
var pointNamespace = uuid.MustParse("6f1c9a52-3b7e-4c1d-9a0e-2d5b8f7c4e11")

// pointsAPI is the subset of pb.PointsClient the store calls.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

// collectionsAPI is the subset of pb.CollectionsClient the store calls.
type collectionsAPI interface {
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Store is the sole owner of all Qdrant operations.
type Store struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
}

// New creates a Store connected to Qdrant at the given gRPC address.
func New(addr string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

// NewWithClients builds a Store from existing clients.
func NewWithClients(points pointsAPI, collections collectionsAPI) *Store {
	return &Store{points: points, collections: collections}
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Store) exists(ctx context.Context, name string) (bool, error) {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("qdrant: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateCollection(ctx context.Context, name string, cfg port.CollectionConfig) (port.Collection, error) {
	if name == "" || cfg.Dimension <= 0 {
		return nil, fmt.Errorf("qdrant: collection %q dimension %d: %w", name, cfg.Dimension, domain.ErrInvalidArgument)
	}
	if cfg.Distance != "" && cfg.Distance != domain.DistanceCosine {
		return nil, fmt.Errorf("qdrant: unsupported distance %q: %w", cfg.Distance, domain.ErrInvalidArgument)
	}

	ok, err := s.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, fmt.Errorf("qdrant: collection %s: %w", name, domain.ErrAlreadyExists)
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		Metadata:       toValues(cfg.Metadata),
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(cfg.Dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: create collection %s: %w", name, err)
	}
	return &Collection{store: s, name: name, dimension: cfg.Dimension, metadata: copyMetadata(cfg.Metadata)}, nil
}

func (s *Store) GetCollection(ctx context.Context, name string) (port.Collection, error) {
	resp, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("qdrant: collection %s: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("qdrant: get collection %s: %w", name, err)
	}
	params := resp.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params.GetDistance() != pb.Distance_Cosine {
		return nil, fmt.Errorf("qdrant: collection %s uses %s distance: %w", name, params.GetDistance(), domain.ErrInvalidArgument)
	}
	return &Collection{
		store:     s,
		name:      name,
		dimension: int(params.GetSize()),
		metadata:  fromValues(resp.GetResult().GetConfig().GetMetadata()),
	}, nil
}

func (s *Store) GetOrCreateCollection(ctx context.Context, name string, cfg port.CollectionConfig) (port.Collection, error) {
	c, err := s.GetCollection(ctx, name)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return s.CreateCollection(ctx, name, cfg)
}

func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	ok, err := s.exists(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("qdrant: collection %s: %w", name, domain.ErrNotFound)
	}
	if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
		return fmt.Errorf("qdrant: delete collection %s: %w", name, err)
	}
	return nil
}

func (s *Store) ListCollections(ctx context.Context) ([]domain.CollectionInfo, error) {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return nil, fmt.Errorf("qdrant: list collections: %w", err)
	}
	infos := make([]domain.CollectionInfo, 0, len(list.GetCollections()))
	for _, d := range list.GetCollections() {
		c, err := s.GetCollection(ctx, d.GetName())
		if err != nil {
			continue // non-cosine collections owned by someone else
		}
		info, err := c.Info(ctx)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Collection is a Qdrant collection with a single unnamed cosine vector.
type Collection struct {
	store     *Store
	name      string
	dimension int
	metadata  map[string]string
}

func toValues(m map[string]string) map[string]*pb.Value {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]*pb.Value, len(m))
	for k, v := range m {
		out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	return out
}

// fromValues keeps only string entries; other JSON kinds were not written by us.
func fromValues(m map[string]*pb.Value) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if sv, ok := v.GetKind().(*pb.Value_StringValue); ok {
			out[k] = sv.StringValue
		}
	}
	return out
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (c *Collection) Name() string {
	return c.name
}

// PointID maps a caller id to the UUID used as the Qdrant point id.
func PointID(id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

// Upsert sends all points in one request and waits for it to be applied.
func (c *Collection) Upsert(ctx context.Context, ids []string, embeddings [][]float32, metadatas []map[string]string) error {
	if err := store.ValidateUpsert(c.dimension, ids, embeddings, metadatas); err != nil {
		return fmt.Errorf("qdrant: collection %s: %w", c.name, err)
	}

	points := make([]*pb.PointStruct, len(ids))
	for i, id := range ids {
		payload := make(map[string]*pb.Value, len(metadatas[i])+1)
		for k, v := range metadatas[i] {
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}
		payload[payloadID] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: id}}

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(id)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: embeddings[i]},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := c.store.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: c.name,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert %d points: %w", len(ids), err)
	}
	return nil
}

// Query performs k-NN search. Qdrant reports cosine similarity; it is
// converted to distance so results read the same as the local stores.
func (c *Collection) Query(ctx context.Context, embedding []float32, k int) ([]domain.Match, error) {
	if err := store.ValidateQuery(c.dimension, embedding, k); err != nil {
		return nil, fmt.Errorf("qdrant: collection %s: %w", c.name, err)
	}

	n, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("qdrant: collection %s: %w", c.name, domain.ErrEmptyCollection)
	}

	resp, err := c.store.points.Search(ctx, &pb.SearchPoints{
		CollectionName: c.name,
		Vector:         embedding,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}

	matches := make([]domain.Match, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		m := domain.Match{
			ID:       r.GetId().GetUuid(),
			Distance: 1 - float64(r.GetScore()),
			Metadata: make(map[string]string),
		}
		for k, val := range r.GetPayload() {
			if k == payloadID {
				m.ID = val.GetStringValue()
				continue
			}
			m.Metadata[k] = val.GetStringValue()
		}
		if m.Distance < 0 {
			m.Distance = 0
		}
		matches[i] = m
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})
	return matches, nil
}

func (c *Collection) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(id)}}
	}
	wait := true
	_, err := c.store.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: c.name,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete %d points: %w", len(ids), err)
	}
	return nil
}

// Clear deletes every point with an empty filter, which matches all points.
func (c *Collection) Clear(ctx context.Context) error {
	wait := true
	_, err := c.store.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: c.name,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: &pb.Filter{}},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: clear %s: %w", c.name, err)
	}
	return nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := c.store.points.Count(ctx, &pb.CountPoints{
		CollectionName: c.name,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count %s: %w", c.name, err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (c *Collection) Info(ctx context.Context) (domain.CollectionInfo, error) {
	n, err := c.Count(ctx)
	if err != nil {
		return domain.CollectionInfo{}, err
	}
	return domain.CollectionInfo{
		Name:      c.name,
		Dimension: c.dimension,
		Distance:  domain.DistanceCosine,
		Count:     n,
		Metadata:  copyMetadata(c.metadata),
	}, nil
}
