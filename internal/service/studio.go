// Package service orchestrates the generation engine with artifact
// persistence on behalf of one authenticated user at a time.
package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/rs/zerolog"

	"stylegan-api/internal/domain"
	"stylegan-api/internal/storage"
	"stylegan-api/internal/stylegan"
	"stylegan-api/pkg/zip"
)

// BlobStore holds artifact bytes in named buckets.
type BlobStore interface {
	Put(ctx context.Context, bucket string, data []byte, id string) (string, error)
	Get(ctx context.Context, bucket, id string) ([]byte, error)
	Delete(ctx context.Context, bucket string, ids []string) error
}

// ModelCatalog lists the checkpoints the service may load.
type ModelCatalog interface {
	List() []stylegan.ModelDescriptor
	Version() string
	Resolve(name string) (stylegan.ModelDescriptor, error)
}

// Options tunes persistence and projection limits.
type Options struct {
	JPEGQuality           int
	ProjectionMaxSteps    int
	ProjectionWAvgSamples int
}

// GenerateInput is a validated generation request.
type GenerateInput struct {
	Model      stylegan.ModelDescriptor
	Seed       stylegan.ImageReference
	Truncation float64
}

// StyleMixInput is a validated style mixing request.
type StyleMixInput struct {
	Model      stylegan.ModelDescriptor
	Row        stylegan.ImageReference
	Col        stylegan.ImageReference
	Band       stylegan.Band
	Truncation float64
}

// StyleMixOutput names the persisted artifacts of a style mix. RowID and
// ColID echo the caller's id for existing sides and are equal when both
// sides were the same fresh seed.
type StyleMixOutput struct {
	ResultID string
	RowID    string
	ColID    string
}

// ProjectInput is a validated projection request. Zero Steps and a nil Seed
// use the projection defaults.
type ProjectInput struct {
	Model  stylegan.ModelDescriptor
	Target image.Image
	Steps  int
	Seed   *uint32
}

// Studio runs generation, style mixing and projection and keeps every
// produced image, its style code and its metadata under one artifact id.
type Studio struct {
	engine  *stylegan.Engine
	catalog ModelCatalog
	blobs   BlobStore
	records domain.ArtifactRepository
	logger  zerolog.Logger
	opts    Options
	now     func() time.Time
}

// NewStudio wires a studio.
func NewStudio(engine *stylegan.Engine, catalog ModelCatalog, blobs BlobStore, records domain.ArtifactRepository, logger zerolog.Logger, opts Options) *Studio {
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 75
	}
	if opts.ProjectionMaxSteps <= 0 {
		opts.ProjectionMaxSteps = 1000
	}
	return &Studio{
		engine:  engine,
		catalog: catalog,
		blobs:   blobs,
		records: records,
		logger:  logger.With().Str("component", "studio").Logger(),
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Models lists the available checkpoints stamped with the catalog version.
func (s *Studio) Models() []stylegan.ModelDescriptor {
	return s.catalog.List()
}

// ModelVersion is the version tag of every served checkpoint.
func (s *Studio) ModelVersion() string {
	return s.catalog.Version()
}

// Descriptor stamps a client supplied img/res/fid triple with the catalog
// version so it matches loaded models.
func (s *Studio) Descriptor(images, resolution, fid int) stylegan.ModelDescriptor {
	return stylegan.ModelDescriptor{Images: images, Resolution: resolution, FID: fid, Version: s.catalog.Version()}
}

// ResolveModel turns a checkpoint name into a descriptor.
func (s *Studio) ResolveModel(name string) (stylegan.ModelDescriptor, error) {
	return s.catalog.Resolve(name)
}

// CacheStats reports model cache counters.
func (s *Studio) CacheStats() stylegan.CacheStats {
	return s.engine.Models().Stats()
}

// Generate synthesizes one image and persists it.
func (s *Studio) Generate(ctx context.Context, userID string, in GenerateInput) (string, error) {
	art, err := s.engine.Generate(ctx, stylegan.GenerateRequest{Model: in.Model, Seed: in.Seed, Truncation: in.Truncation})
	if err != nil {
		return "", err
	}
	psi := in.Truncation
	id := stylegan.NewArtifactID()
	method := domain.Method{
		Name:       domain.MethodGenerate,
		Model:      modelRef(in.Model),
		Role:       domain.RoleResult,
		Truncation: &psi,
		Seed:       art.Seed,
	}
	if err := s.persist(ctx, userID, id, art, method); err != nil {
		return "", err
	}
	s.logger.Info().Str("user_id", userID).Str("artifact_id", id).Str("model", in.Model.String()).Msg("generated")
	return id, nil
}

// StyleMix mixes two images and persists the result together with every
// freshly synthesized side. Either all new artifacts are stored or none.
func (s *Studio) StyleMix(ctx context.Context, userID string, in StyleMixInput) (out StyleMixOutput, err error) {
	res, err := s.engine.StyleMix(ctx, stylegan.StyleMixRequest{
		Model:      in.Model,
		Row:        in.Row,
		Col:        in.Col,
		Band:       in.Band,
		Truncation: in.Truncation,
	})
	if err != nil {
		return StyleMixOutput{}, err
	}

	psi := in.Truncation
	base := domain.Method{
		Name:        domain.MethodStyleMix,
		Model:       modelRef(in.Model),
		Truncation:  &psi,
		RowImage:    in.Row.String(),
		ColumnImage: in.Col.String(),
		Styles:      string(in.Band),
	}

	var saved []string
	defer func() {
		if err != nil {
			s.rollback(userID, saved)
			out = StyleMixOutput{}
		}
	}()

	switch {
	case res.Row != nil:
		out.RowID = stylegan.NewArtifactID()
		m := base
		m.Role, m.Seed = domain.RoleRow, res.Row.Seed
		if res.Col == res.Row {
			m.Role = domain.RoleRowColumn
		}
		if err = s.persist(ctx, userID, out.RowID, *res.Row, m); err != nil {
			return out, err
		}
		saved = append(saved, out.RowID)
	default:
		out.RowID = in.Row.ArtifactID
	}
	switch {
	case res.Col != nil && res.Col == res.Row:
		out.ColID = out.RowID
	case res.Col != nil:
		out.ColID = stylegan.NewArtifactID()
		m := base
		m.Role, m.Seed = domain.RoleColumn, res.Col.Seed
		if err = s.persist(ctx, userID, out.ColID, *res.Col, m); err != nil {
			return out, err
		}
		saved = append(saved, out.ColID)
	default:
		out.ColID = in.Col.ArtifactID
	}

	out.ResultID = stylegan.NewArtifactID()
	m := base
	m.Role = domain.RoleResult
	if err = s.persist(ctx, userID, out.ResultID, res.Result, m); err != nil {
		return out, err
	}
	s.logger.Info().
		Str("user_id", userID).
		Str("artifact_id", out.ResultID).
		Str("model", in.Model.String()).
		Str("styles", string(in.Band)).
		Msg("style mixed")
	return out, nil
}

// Project inverts a target image into a style code, renders that code and
// persists both.
func (s *Studio) Project(ctx context.Context, userID string, in ProjectInput) (string, error) {
	if in.Target == nil {
		return "", fmt.Errorf("%w: projection target image is required", domain.ErrInvalidInput)
	}
	if in.Steps < 0 || in.Steps > s.opts.ProjectionMaxSteps {
		return "", fmt.Errorf("%w: steps must be within [1, %d]", domain.ErrInvalidInput, s.opts.ProjectionMaxSteps)
	}
	opts := stylegan.ProjectOptions{Steps: in.Steps, Seed: in.Seed, WAvgSamples: s.opts.ProjectionWAvgSamples}
	start := time.Now()
	code, err := s.engine.Project(ctx, in.Model, in.Target, opts)
	if err != nil {
		return "", err
	}
	model, err := s.engine.Models().Get(ctx, in.Model)
	if err != nil {
		return "", err
	}
	img, err := model.Synthesize(ctx, code)
	if err != nil {
		return "", fmt.Errorf("service: synthesize projection: %w", err)
	}

	steps := in.Steps
	if steps == 0 {
		steps = stylegan.DefaultProjectOptions().Steps
	}
	id := stylegan.NewArtifactID()
	method := domain.Method{Name: domain.MethodProjection, Model: modelRef(in.Model), Role: domain.RoleResult, Steps: steps}
	if err := s.persist(ctx, userID, id, stylegan.Artifact{Image: img, Code: code}, method); err != nil {
		return "", err
	}
	s.logger.Info().
		Str("user_id", userID).
		Str("artifact_id", id).
		Str("model", in.Model.String()).
		Int("steps", steps).
		Dur("took", time.Since(start)).
		Msg("projected")
	return id, nil
}

// ListImages returns the user's artifacts, newest first.
func (s *Studio) ListImages(ctx context.Context, userID string) ([]domain.ArtifactRecord, error) {
	return s.records.FindByUser(ctx, userID)
}

// DeleteImages removes the listed artifacts, or all of the user's artifacts
// when all is set, and returns the ids actually removed. Ids owned by other
// users are ignored.
func (s *Studio) DeleteImages(ctx context.Context, userID string, ids []string, all bool) ([]string, error) {
	var (
		removed []string
		err     error
	)
	if all {
		removed, err = s.records.DeleteAllForUser(ctx, userID)
	} else {
		canonical := make([]string, 0, len(ids))
		for _, raw := range ids {
			id, perr := stylegan.ParseArtifactID(raw)
			if perr != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, perr)
			}
			canonical = append(canonical, id)
		}
		removed, err = s.records.DeleteByIDs(ctx, userID, canonical)
	}
	if err != nil {
		return nil, err
	}
	for _, bucket := range []string{storage.BucketImages, storage.BucketVectors} {
		if err := s.blobs.Delete(ctx, bucket, removed); err != nil {
			return nil, fmt.Errorf("service: delete %s blobs: %w", bucket, err)
		}
	}
	s.logger.Info().Str("user_id", userID).Int("count", len(removed)).Bool("all", all).Msg("deleted images")
	return removed, nil
}

// ImageBytes returns the stored JPEG of an artifact.
func (s *Studio) ImageBytes(ctx context.Context, rawID string) ([]byte, error) {
	id, err := stylegan.ParseArtifactID(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	data, err := s.blobs.Get(ctx, storage.BucketImages, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: image %s", domain.ErrNotFound, id)
	}
	return data, err
}

// Archive writes a zip of every JPEG the user owns to w. Records whose
// image is gone are skipped.
func (s *Studio) Archive(ctx context.Context, userID string, w io.Writer) error {
	records, err := s.records.FindByUser(ctx, userID)
	if err != nil {
		return err
	}
	assets := make([]zip.Asset, 0, len(records))
	for _, rec := range records {
		data, err := s.blobs.Get(ctx, storage.BucketImages, rec.ID)
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Str("artifact_id", rec.ID).Msg("archive: image missing")
			continue
		}
		if err != nil {
			return err
		}
		assets = append(assets, zip.Asset{Filename: rec.ID + ".jpg", Modified: rec.CreatedAt, Data: data})
	}
	return zip.Write(w, assets)
}

// persist stores the JPEG and the style code under id, then inserts the
// metadata record. Blobs are removed again when a later step fails.
func (s *Studio) persist(ctx context.Context, userID, id string, art stylegan.Artifact, method domain.Method) error {
	jpeg, err := art.Image.EncodeJPEG(s.opts.JPEGQuality)
	if err != nil {
		return fmt.Errorf("service: encode image: %w", err)
	}
	code, err := art.Code.MarshalBinary()
	if err != nil {
		return fmt.Errorf("service: encode style code: %w", err)
	}
	if _, err := s.blobs.Put(ctx, storage.BucketImages, jpeg, id); err != nil {
		return fmt.Errorf("service: store image %s: %w", id, err)
	}
	if _, err := s.blobs.Put(ctx, storage.BucketVectors, code, id); err != nil {
		s.cleanup(id)
		return fmt.Errorf("service: store style code %s: %w", id, err)
	}
	rec := domain.ArtifactRecord{ID: id, UserID: userID, CreatedAt: s.now(), Method: method}
	if err := s.records.Insert(ctx, rec); err != nil {
		s.cleanup(id)
		return err
	}
	return nil
}

// rollback removes artifacts persisted earlier in a request that failed
// later on.
func (s *Studio) rollback(userID string, ids []string) {
	if len(ids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.records.DeleteByIDs(ctx, userID, ids); err != nil {
		s.logger.Warn().Err(err).Strs("artifact_ids", ids).Msg("rollback: delete records failed")
	}
	for _, id := range ids {
		s.cleanup(id)
	}
}

func (s *Studio) cleanup(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, bucket := range []string{storage.BucketImages, storage.BucketVectors} {
		if err := s.blobs.Delete(ctx, bucket, []string{id}); err != nil {
			s.logger.Warn().Err(err).Str("artifact_id", id).Str("bucket", bucket).Msg("cleanup failed")
		}
	}
}

func modelRef(d stylegan.ModelDescriptor) domain.ModelRef {
	return domain.ModelRef{Images: d.Images, Resolution: d.Resolution, FID: d.FID, Version: d.Version}
}

// vectorSource reads persisted style codes for the resolver.
type vectorSource struct {
	blobs BlobStore
}

// NewVectorSource exposes the vectors bucket as a stylegan.VectorSource.
// Missing blobs are reported as stylegan.ErrArtifactNotFound.
func NewVectorSource(blobs BlobStore) stylegan.VectorSource {
	return vectorSource{blobs: blobs}
}

func (v vectorSource) StyleCodeBytes(ctx context.Context, id string) ([]byte, error) {
	data, err := v.blobs.Get(ctx, storage.BucketVectors, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", stylegan.ErrArtifactNotFound, id)
	}
	return data, err
}
