package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"stylegan-api/internal/domain"
	"stylegan-api/internal/infra"
	"stylegan-api/internal/sqlinline"
)

// ArtifactRepositoryPG implements domain.ArtifactRepository on PostgreSQL.
// Method parameters are stored as jsonb.
type ArtifactRepositoryPG struct {
	db infra.SQLExecutor
}

// NewArtifactRepository wraps a marked-query executor.
func NewArtifactRepository(db infra.SQLExecutor) *ArtifactRepositoryPG {
	return &ArtifactRepositoryPG{db: db}
}

// EnsureSchema creates the artifacts table when missing.
func (r *ArtifactRepositoryPG) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, sqlinline.QEnsureArtifactsSchema); err != nil {
		return fmt.Errorf("repo: ensure artifacts schema: %w", err)
	}
	return nil
}

// Insert persists one record. A zero CreatedAt is stamped with the current
// time.
func (r *ArtifactRepositoryPG) Insert(ctx context.Context, rec domain.ArtifactRecord) error {
	method, err := json.Marshal(rec.Method)
	if err != nil {
		return fmt.Errorf("repo: encode method: %w", err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := r.db.Exec(ctx, sqlinline.QInsertArtifact, rec.ID, rec.UserID, method, createdAt); err != nil {
		return fmt.Errorf("repo: insert artifact %s: %w", rec.ID, err)
	}
	return nil
}

// FindByUser lists a user's records, newest first.
func (r *ArtifactRepositoryPG) FindByUser(ctx context.Context, userID string) ([]domain.ArtifactRecord, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListArtifactsByUser, userID)
	if err != nil {
		return nil, fmt.Errorf("repo: list artifacts: %w", err)
	}
	defer rows.Close()

	records := []domain.ArtifactRecord{}
	for rows.Next() {
		var (
			rec    domain.ArtifactRecord
			method []byte
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &method, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("repo: scan artifact: %w", err)
		}
		if err := json.Unmarshal(method, &rec.Method); err != nil {
			return nil, fmt.Errorf("repo: decode method of %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo: list artifacts: %w", err)
	}
	return records, nil
}

// DeleteByIDs removes the listed records owned by userID.
func (r *ArtifactRepositoryPG) DeleteByIDs(ctx context.Context, userID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	rows, err := r.db.Query(ctx, sqlinline.QDeleteArtifactsByIDs, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("repo: delete artifacts: %w", err)
	}
	return collectIDs(rows)
}

// DeleteAllForUser removes every record owned by userID.
func (r *ArtifactRepositoryPG) DeleteAllForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Query(ctx, sqlinline.QDeleteArtifactsForUser, userID)
	if err != nil {
		return nil, fmt.Errorf("repo: delete all artifacts: %w", err)
	}
	return collectIDs(rows)
}

func collectIDs(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repo: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo: delete artifacts: %w", err)
	}
	return ids, nil
}

var _ domain.ArtifactRepository = (*ArtifactRepositoryPG)(nil)
