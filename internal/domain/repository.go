package domain

import "context"

// ArtifactRepository stores artifact metadata. Deletions only touch records
// owned by userID and report the ids actually removed, so callers can drop
// the matching blobs.
type ArtifactRepository interface {
	Insert(ctx context.Context, rec ArtifactRecord) error
	FindByUser(ctx context.Context, userID string) ([]ArtifactRecord, error)
	DeleteByIDs(ctx context.Context, userID string, ids []string) ([]string, error)
	DeleteAllForUser(ctx context.Context, userID string) ([]string, error)
}
