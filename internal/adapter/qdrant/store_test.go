package qdrant

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"findit/internal/domain"
	"findit/internal/port"
)

// --- Mocks ---

type mockPoints struct {
	upserted   *pb.UpsertPoints
	deleted    *pb.DeletePoints
	searchResp *pb.SearchResponse
	count      uint64
	upsertErr  error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upserted = in
	return &pb.PointsOperationResponse{}, m.upsertErr
}
func (m *mockPoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.deleted = in
	return &pb.PointsOperationResponse{}, nil
}
func (m *mockPoints) Search(_ context.Context, _ *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	return m.searchResp, nil
}
func (m *mockPoints) Count(_ context.Context, _ *pb.CountPoints, _ ...grpc.CallOption) (*pb.CountResponse, error) {
	return &pb.CountResponse{Result: &pb.CountResult{Count: m.count}}, nil
}

type mockCollections struct {
	names    []string
	size     uint64
	metadata map[string]*pb.Value
	created  *pb.CreateCollection
}

func (m *mockCollections) Get(_ context.Context, in *pb.GetCollectionInfoRequest, _ ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	for _, n := range m.names {
		if n == in.GetCollectionName() {
			return &pb.GetCollectionInfoResponse{
				Result: &pb.CollectionInfo{
					Config: &pb.CollectionConfig{
						Params: &pb.CollectionParams{
							VectorsConfig: &pb.VectorsConfig{
								Config: &pb.VectorsConfig_Params{
									Params: &pb.VectorParams{Size: m.size, Distance: pb.Distance_Cosine},
								},
							},
						},
						Metadata: m.metadata,
					},
				},
			}, nil
		}
	}
	return nil, status.Error(codes.NotFound, "collection not found")
}
func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	resp := &pb.ListCollectionsResponse{}
	for _, n := range m.names {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: n})
	}
	return resp, nil
}
func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = in
	m.names = append(m.names, in.GetCollectionName())
	m.size = in.GetVectorsConfig().GetParams().GetSize()
	m.metadata = in.GetMetadata()
	return &pb.CollectionOperationResponse{Result: true}, nil
}
func (m *mockCollections) Delete(_ context.Context, in *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	return &pb.CollectionOperationResponse{Result: true}, nil
}

// --- Tests ---

func TestGetCollection_NotFound(t *testing.T) {
	s := NewWithClients(&mockPoints{}, &mockCollections{})
	_, err := s.GetCollection(context.Background(), "images")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteCollection(context.Background(), "images"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestGetOrCreateCollection_Creates(t *testing.T) {
	cols := &mockCollections{}
	s := NewWithClients(&mockPoints{}, cols)

	c, err := s.GetOrCreateCollection(context.Background(), "images", port.CollectionConfig{Dimension: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.created == nil || cols.created.GetVectorsConfig().GetParams().GetDistance() != pb.Distance_Cosine {
		t.Fatalf("expected cosine collection to be created, got %+v", cols.created)
	}
	if c.Name() != "images" {
		t.Errorf("Name() = %q", c.Name())
	}

	if _, err := s.CreateCollection(context.Background(), "images", port.CollectionConfig{Dimension: 4}); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestUpsert_PayloadCarriesID(t *testing.T) {
	pts := &mockPoints{}
	s := NewWithClients(pts, &mockCollections{names: []string{"images"}, size: 2})
	c, err := s.GetCollection(context.Background(), "images")
	if err != nil {
		t.Fatal(err)
	}

	err = c.Upsert(context.Background(), []string{"7"}, [][]float32{{1, 0}},
		[]map[string]string{{domain.MetaImage: "/a.png"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := pts.upserted.GetPoints()[0]
	if p.GetId().GetUuid() != PointID("7") {
		t.Errorf("point id = %s", p.GetId().GetUuid())
	}
	if p.GetPayload()[payloadID].GetStringValue() != "7" {
		t.Errorf("payload id = %v", p.GetPayload()[payloadID])
	}
	if !pts.upserted.GetWait() {
		t.Error("expected wait=true")
	}
}

func TestUpsert_DimensionMismatchSendsNothing(t *testing.T) {
	pts := &mockPoints{}
	s := NewWithClients(pts, &mockCollections{names: []string{"images"}, size: 2})
	c, _ := s.GetCollection(context.Background(), "images")

	err := c.Upsert(context.Background(), []string{"a", "b"}, [][]float32{{1, 0}, {1, 0, 0}}, []map[string]string{nil, nil})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if pts.upserted != nil {
		t.Error("expected no upsert request")
	}
}

func TestQuery_EmptyCollection(t *testing.T) {
	s := NewWithClients(&mockPoints{}, &mockCollections{names: []string{"images"}, size: 2})
	c, _ := s.GetCollection(context.Background(), "images")
	if _, err := c.Query(context.Background(), []float32{1, 0}, 3); !errors.Is(err, domain.ErrEmptyCollection) {
		t.Fatalf("expected ErrEmptyCollection, got %v", err)
	}
}

func TestQuery_ConvertsScoreToDistance(t *testing.T) {
	str := func(s string) *pb.Value { return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}} }
	pts := &mockPoints{
		count: 2,
		searchResp: &pb.SearchResponse{Result: []*pb.ScoredPoint{
			{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID("1")}},
				Score:   0.5,
				Payload: map[string]*pb.Value{payloadID: str("1"), domain.MetaImage: str("/b.png")},
			},
			{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID("0")}},
				Score:   1,
				Payload: map[string]*pb.Value{payloadID: str("0"), domain.MetaImage: str("/a.png")},
			},
		}},
	}
	s := NewWithClients(pts, &mockCollections{names: []string{"images"}, size: 2})
	c, _ := s.GetCollection(context.Background(), "images")

	matches, err := c.Query(context.Background(), []float32{1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 || matches[0].ID != "0" || matches[1].ID != "1" {
		t.Fatalf("unexpected order: %+v", matches)
	}
	if matches[0].Distance != 0 || matches[1].Distance != 0.5 {
		t.Errorf("unexpected distances: %+v", matches)
	}
	if matches[0].Metadata[domain.MetaImage] != "/a.png" {
		t.Errorf("metadata = %v", matches[0].Metadata)
	}
	if _, ok := matches[0].Metadata[payloadID]; ok {
		t.Error("internal id key leaked into metadata")
	}
}

func TestPointIDStable(t *testing.T) {
	if PointID("3") != PointID("3") {
		t.Error("expected stable point ids")
	}
	if PointID("3") == PointID("4") {
		t.Error("expected distinct point ids")
	}
}

func TestCollectionMetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	cols := &mockCollections{}
	s := NewWithClients(&mockPoints{count: 2}, cols)

	meta := map[string]string{"embedding_model": "jina-clip-v2", "manifest": "photos.csv"}
	c, err := s.CreateCollection(ctx, "images", port.CollectionConfig{Dimension: 4, Metadata: meta})
	if err != nil {
		t.Fatal(err)
	}
	if got := cols.created.GetMetadata()["embedding_model"].GetStringValue(); got != "jina-clip-v2" {
		t.Errorf("create request metadata = %v", cols.created.GetMetadata())
	}
	meta["manifest"] = "changed.csv"

	info, err := c.Info(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.Metadata["manifest"] != "photos.csv" || info.Count != 2 {
		t.Errorf("Info() after create = %+v", info)
	}

	reopened, err := s.GetCollection(ctx, "images")
	if err != nil {
		t.Fatal(err)
	}
	info, err = reopened.Info(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.Metadata["embedding_model"] != "jina-clip-v2" || info.Metadata["manifest"] != "photos.csv" {
		t.Errorf("Info() after reopen = %+v", info)
	}

	infos, err := s.ListCollections(ctx)
	if err != nil || len(infos) != 1 || infos[0].Metadata["embedding_model"] != "jina-clip-v2" {
		t.Errorf("ListCollections() = %+v, %v", infos, err)
	}
}
