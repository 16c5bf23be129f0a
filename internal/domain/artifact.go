package domain

import "time"

// MethodName identifies the operation that produced an artifact.
type MethodName string

const (
	MethodGenerate   MethodName = "generate"
	MethodStyleMix   MethodName = "stylemix"
	MethodProjection MethodName = "projection"
)

// ArtifactRole tells which slot of a style mix an artifact filled.
type ArtifactRole string

const (
	RoleResult ArtifactRole = "result"
	RoleRow    ArtifactRole = "row"
	RoleColumn ArtifactRole = "column"
	// RoleRowColumn marks a deduplicated side that served as both row and
	// column.
	RoleRowColumn ArtifactRole = "row_column"
)

// ModelRef names the checkpoint an artifact was produced with.
type ModelRef struct {
	Images     int    `json:"img" bson:"img"`
	Resolution int    `json:"res" bson:"res"`
	FID        int    `json:"fid" bson:"fid"`
	Version    string `json:"version,omitempty" bson:"version,omitempty"`
}

// Method records the parameters of the request that produced an artifact.
// Row and column references hold the caller's input (seed, id or empty for
// random); Seed holds the seed actually used for fresh images.
type Method struct {
	Name        MethodName   `json:"name" bson:"name"`
	Model       ModelRef     `json:"model" bson:"model"`
	Role        ArtifactRole `json:"role,omitempty" bson:"role,omitempty"`
	Truncation  *float64     `json:"truncation,omitempty" bson:"truncation,omitempty"`
	Seed        *uint32      `json:"seed,omitempty" bson:"seed,omitempty"`
	RowImage    string       `json:"row_image,omitempty" bson:"row_image,omitempty"`
	ColumnImage string       `json:"column_image,omitempty" bson:"column_image,omitempty"`
	Styles      string       `json:"styles,omitempty" bson:"styles,omitempty"`
	Steps       int          `json:"steps,omitempty" bson:"steps,omitempty"`
}

// ArtifactRecord is the persisted metadata of one generated image.
type ArtifactRecord struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"-" bson:"user_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	Method    Method    `json:"method" bson:"method"`
}
