package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"stylegan-api/internal/domain"
)

type execCall struct {
	query string
	args  []any
}

type stubExecutor struct {
	execs   []execCall
	queries []execCall
	rows    [][]any
	err     error
}

func (s *stubExecutor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, execCall{query: query, args: args})
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("QueryRow not used")
}

func (s *stubExecutor) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	s.queries = append(s.queries, execCall{query: query, args: args})
	if s.err != nil {
		return nil, s.err
	}
	return &stubRows{data: s.rows, idx: -1}, nil
}

type stubRows struct {
	data   [][]any
	idx    int
	closed bool
}

func (r *stubRows) Close()                                       { r.closed = true }
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error)                       { return r.data[r.idx], nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func (r *stubRows) Next() bool {
	r.idx++
	return r.idx < len(r.data)
}

func (r *stubRows) Scan(dest ...any) error {
	row := r.data[r.idx]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(row))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *[]byte:
			*d = v.([]byte)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", dest[i])
		}
	}
	return nil
}

func TestArtifactRepositoryInsert(t *testing.T) {
	db := &stubExecutor{}
	repo := NewArtifactRepository(db)
	psi := 0.7
	rec := domain.ArtifactRecord{
		ID:     "6f9619ff-8b86-d011-b42d-00c04fc964ff",
		UserID: "auth0|abc",
		Method: domain.Method{Name: domain.MethodGenerate, Model: domain.ModelRef{Images: 31, Resolution: 256, FID: 12}, Truncation: &psi},
	}
	if err := repo.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(db.execs) != 1 {
		t.Fatalf("execs = %d", len(db.execs))
	}
	call := db.execs[0]
	if !strings.HasPrefix(call.query, "--sql ") {
		t.Fatalf("query missing marker: %q", call.query)
	}
	if call.args[0] != rec.ID || call.args[1] != rec.UserID {
		t.Fatalf("args = %v", call.args)
	}
	var method domain.Method
	if err := json.Unmarshal(call.args[2].([]byte), &method); err != nil {
		t.Fatalf("method payload: %v", err)
	}
	if method.Name != domain.MethodGenerate || method.Model.Resolution != 256 || *method.Truncation != 0.7 {
		t.Fatalf("method = %+v", method)
	}
	if call.args[3].(time.Time).IsZero() {
		t.Fatalf("created_at not stamped")
	}
}

func TestArtifactRepositoryFindByUser(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	db := &stubExecutor{rows: [][]any{
		{"id-1", "auth0|abc", []byte(`{"name":"stylemix","model":{"img":31,"res":256,"fid":12},"role":"row","styles":"Middle"}`), created},
	}}
	repo := NewArtifactRepository(db)
	records, err := repo.FindByUser(context.Background(), "auth0|abc")
	if err != nil {
		t.Fatalf("FindByUser: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %v", records)
	}
	got := records[0]
	if got.ID != "id-1" || got.Method.Styles != "Middle" || got.Method.Role != domain.RoleRow || !got.CreatedAt.Equal(created) {
		t.Fatalf("record = %+v", got)
	}
	if db.queries[0].args[0] != "auth0|abc" {
		t.Fatalf("user filter = %v", db.queries[0].args)
	}
}

func TestArtifactRepositoryDeletes(t *testing.T) {
	db := &stubExecutor{rows: [][]any{{"id-1"}, {"id-2"}}}
	repo := NewArtifactRepository(db)

	ids, err := repo.DeleteByIDs(context.Background(), "u1", []string{"id-1", "id-2", "id-3"})
	if err != nil {
		t.Fatalf("DeleteByIDs: %v", err)
	}
	if len(ids) != 2 || ids[1] != "id-2" {
		t.Fatalf("ids = %v", ids)
	}
	if got := db.queries[0].args[1].([]string); len(got) != 3 {
		t.Fatalf("id list arg = %v", got)
	}

	none, err := repo.DeleteByIDs(context.Background(), "u1", nil)
	if err != nil || len(none) != 0 || len(db.queries) != 1 {
		t.Fatalf("empty delete should not query: %v %v", none, err)
	}

	all, err := repo.DeleteAllForUser(context.Background(), "u1")
	if err != nil || len(all) != 2 {
		t.Fatalf("DeleteAllForUser = %v, %v", all, err)
	}
}

func TestArtifactRepositoryPropagatesErrors(t *testing.T) {
	db := &stubExecutor{err: fmt.Errorf("connection reset")}
	repo := NewArtifactRepository(db)
	if err := repo.EnsureSchema(context.Background()); err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("EnsureSchema err = %v", err)
	}
	if _, err := repo.FindByUser(context.Background(), "u1"); err == nil {
		t.Fatalf("expected error")
	}
}
