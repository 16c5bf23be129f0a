package mongorepo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stylegan-api/internal/domain"
)

// CollectionName is the collection holding artifact records.
const CollectionName = "images"

// ArtifactRepository implements domain.ArtifactRepository on MongoDB. The
// artifact id is the document _id.
type ArtifactRepository struct {
	coll *mongo.Collection
}

// NewArtifactRepository binds the repository to db.
func NewArtifactRepository(db *mongo.Database) *ArtifactRepository {
	return &ArtifactRepository{coll: db.Collection(CollectionName)}
}

// EnsureIndexes creates the per-user listing index.
func (r *ArtifactRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("user_created"),
	})
	if err != nil {
		return fmt.Errorf("mongorepo: ensure indexes: %w", err)
	}
	return nil
}

func (r *ArtifactRepository) Insert(ctx context.Context, rec domain.ArtifactRecord) error {
	if _, err := r.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("mongorepo: insert artifact %s: %w", rec.ID, err)
	}
	return nil
}

// FindByUser lists a user's records, newest first.
func (r *ArtifactRepository) FindByUser(ctx context.Context, userID string) ([]domain.ArtifactRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, userFilter(userID, nil), opts)
	if err != nil {
		return nil, fmt.Errorf("mongorepo: list artifacts: %w", err)
	}
	records := []domain.ArtifactRecord{}
	if err := cur.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("mongorepo: decode artifacts: %w", err)
	}
	return records, nil
}

func (r *ArtifactRepository) DeleteByIDs(ctx context.Context, userID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	return r.deleteMatching(ctx, userID, ids)
}

func (r *ArtifactRepository) DeleteAllForUser(ctx context.Context, userID string) ([]string, error) {
	return r.deleteMatching(ctx, userID, nil)
}

// deleteMatching collects the matching ids before deleting so the caller
// learns which blobs to drop.
func (r *ArtifactRepository) deleteMatching(ctx context.Context, userID string, only []string) ([]string, error) {
	cur, err := r.coll.Find(ctx, userFilter(userID, only), options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongorepo: find artifacts: %w", err)
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongorepo: decode artifact ids: %w", err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	if len(ids) == 0 {
		return ids, nil
	}
	if _, err := r.coll.DeleteMany(ctx, userFilter(userID, ids)); err != nil {
		return nil, fmt.Errorf("mongorepo: delete artifacts: %w", err)
	}
	return ids, nil
}

// userFilter matches the records of userID, restricted to ids when given.
func userFilter(userID string, ids []string) bson.D {
	filter := bson.D{{Key: "user_id", Value: userID}}
	if ids != nil {
		filter = append(filter, bson.E{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}})
	}
	return filter
}

var _ domain.ArtifactRepository = (*ArtifactRepository)(nil)
