// Package qdrant mirrors promoted collections into a Qdrant server.
//
// Each promoted build is copied into its own Qdrant collection. A stable
// alias per embedding version is then switched to the new collection in a
// single alias update, so readers of the alias never see a partial copy.
// Previous collections are left in place.
package qdrant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
	"github.com/custodia-labs/patentgov/internal/logger"
)

// Ensure Mirror implements the interface.
var _ driven.CollectionMirror = (*Mirror)(nil)

// Defaults.
const (
	DefaultPrefix    = "patentgov"
	DefaultBatchSize = 256
)

// pointNamespace seeds the deterministic point ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("patentgov/vector"))

// pointsAPI is the subset of the Qdrant points client the mirror uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// collectionsAPI is the subset of the Qdrant collections client the mirror uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	ListAliases(ctx context.Context, in *pb.ListAliasesRequest, opts ...grpc.CallOption) (*pb.ListAliasesResponse, error)
	UpdateAliases(ctx context.Context, in *pb.ChangeAliases, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Mirror copies promoted collections into Qdrant.
type Mirror struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	prefix      string
	batchSize   int
}

// New connects to Qdrant at the given gRPC address.
func New(addr string) (*Mirror, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", addr, err)
	}
	m := newWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn))
	m.conn = conn
	return m, nil
}

func newWithClients(points pointsAPI, collections collectionsAPI) *Mirror {
	return &Mirror{
		points:      points,
		collections: collections,
		prefix:      DefaultPrefix,
		batchSize:   DefaultBatchSize,
	}
}

// Close closes the gRPC connection.
func (m *Mirror) Close() error {
	if m.conn == nil {
		return nil
	}
	return m.conn.Close()
}

// AliasName returns the alias that tracks the production copy of an
// embedding version.
func (m *Mirror) AliasName(evid string) string {
	sum := sha256.Sum256([]byte(evid))
	return m.prefix + "_" + hex.EncodeToString(sum[:8])
}

// CollectionName returns the Qdrant collection holding one build.
func (m *Mirror) CollectionName(evid, runID string) string {
	return m.AliasName(evid) + "_" + sanitize(runID)
}

// Mirror copies every vector of the collection, then points the version's
// alias at the copy.
func (m *Mirror) Mirror(ctx context.Context, reader driven.CollectionReader) error {
	col := reader.Collection()
	manifest, err := reader.Manifest(ctx)
	if err != nil {
		return fmt.Errorf("qdrant: read manifest: %w", err)
	}
	if manifest.EmbeddingDim <= 0 {
		return fmt.Errorf("qdrant: %w: manifest has no embedding dim", domain.ErrInvalidInput)
	}

	name := m.CollectionName(col.EmbeddingVersionID, col.RunID)
	if err := m.ensureCollection(ctx, name, manifest.EmbeddingDim); err != nil {
		return err
	}

	batch := make([]*pb.PointStruct, 0, m.batchSize)
	total := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := m.upsert(ctx, name, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}
	err = reader.Vectors(ctx, func(v domain.Vector) error {
		batch = append(batch, point(v))
		if len(batch) == m.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("qdrant: copy vectors: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}

	alias := m.AliasName(col.EmbeddingVersionID)
	if err := m.switchAlias(ctx, alias, name); err != nil {
		return err
	}
	logger.Info("mirrored %d vectors into qdrant collection %s (alias %s)", total, name, alias)
	return nil
}

func (m *Mirror) ensureCollection(ctx context.Context, name string, dims int) error {
	list, err := m.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			return nil
		}
	}
	_, err = m.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", name, err)
	}
	return nil
}

func (m *Mirror) upsert(ctx context.Context, name string, points []*pb.PointStruct) error {
	wait := true
	_, err := m.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert %d points: %w", len(points), err)
	}
	return nil
}

// switchAlias deletes the alias if present and recreates it on target in
// one request.
func (m *Mirror) switchAlias(ctx context.Context, alias, target string) error {
	resp, err := m.collections.ListAliases(ctx, &pb.ListAliasesRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list aliases: %w", err)
	}
	var actions []*pb.AliasOperations
	for _, a := range resp.GetAliases() {
		if a.GetAliasName() != alias {
			continue
		}
		if a.GetCollectionName() == target {
			return nil
		}
		actions = append(actions, &pb.AliasOperations{
			Action: &pb.AliasOperations_DeleteAlias{
				DeleteAlias: &pb.DeleteAlias{AliasName: alias},
			},
		})
	}
	actions = append(actions, &pb.AliasOperations{
		Action: &pb.AliasOperations_CreateAlias{
			CreateAlias: &pb.CreateAlias{CollectionName: target, AliasName: alias},
		},
	})
	if _, err := m.collections.UpdateAliases(ctx, &pb.ChangeAliases{Actions: actions}); err != nil {
		return fmt.Errorf("qdrant: switch alias %s to %s: %w", alias, target, err)
	}
	return nil
}

// PointID derives the Qdrant point id of a vector id.
func PointID(vectorID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(vectorID)).String()
}

func point(v domain.Vector) *pb.PointStruct {
	md := v.Metadata
	payload := map[string]*pb.Value{
		"vector_id":            stringValue(v.VectorID),
		"family_id":            stringValue(md.FamilyID),
		"selected_publication": stringValue(md.SelectedPublication),
		"chunk_type":           stringValue(string(md.ChunkType)),
		"chunk_policy_version": stringValue(md.ChunkPolicyVersion),
		"run_id":               stringValue(md.RunID),
		"embedding_version_id": stringValue(md.EmbeddingVersionID),
		"language_hint":        stringValue(md.LanguageHint),
		"embedding_dim":        {Kind: &pb.Value_IntegerValue{IntegerValue: int64(md.EmbeddingDim)}},
	}
	return &pb.PointStruct{
		Id: &pb.PointId{
			PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(v.VectorID)},
		},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: v.Embedding},
			},
		},
		Payload: payload,
	}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

// sanitize keeps collection names to letters, digits, '-' and '_'.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
