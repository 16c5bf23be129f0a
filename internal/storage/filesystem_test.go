package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestFileStorePutGetDelete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	id, err := store.Put(ctx, BucketImages, []byte("jpeg"), "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(id) != 36 {
		t.Fatalf("generated id %q is not a uuid", id)
	}
	if _, err := store.Put(ctx, BucketVectors, []byte("code"), id); err != nil {
		t.Fatalf("Put with id: %v", err)
	}

	got, err := store.Get(ctx, BucketImages, id)
	if err != nil || !bytes.Equal(got, []byte("jpeg")) {
		t.Fatalf("Get images = %q, %v", got, err)
	}
	got, err = store.Get(ctx, BucketVectors, id)
	if err != nil || !bytes.Equal(got, []byte("code")) {
		t.Fatalf("Get vectors = %q, %v", got, err)
	}

	if err := store.Delete(ctx, BucketImages, []string{id, "missing"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, BucketImages, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete err = %v, want ErrNotFound", err)
	}
	if _, err := store.Get(ctx, BucketVectors, id); err != nil {
		t.Fatalf("vector removed with image: %v", err)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	tests := []struct {
		name   string
		bucket string
		id     string
	}{
		{name: "parent id", bucket: BucketImages, id: "../escape"},
		{name: "nested id", bucket: BucketImages, id: "a/b"},
		{name: "parent bucket", bucket: "..", id: "x"},
		{name: "empty bucket", bucket: "", id: "x"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.Put(ctx, tc.bucket, []byte("x"), tc.id); err == nil {
				t.Fatalf("Put(%q, %q) succeeded", tc.bucket, tc.id)
			}
		})
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "images/abc", want: "images/abc"},
		{in: "/images//abc", want: "images/abc"},
		{in: `images\abc`, want: "images/abc"},
		{in: "./x", want: "x"},
		{in: "../x", wantErr: true},
		{in: "  ", wantErr: true},
	}
	for _, tc := range tests {
		got, err := sanitizeKey(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("sanitizeKey(%q) = %q, want error", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("sanitizeKey(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}
