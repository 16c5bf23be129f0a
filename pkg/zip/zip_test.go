package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
	"time"
)

func TestWriteRoundTrip(t *testing.T) {
	assets := []Asset{
		{Filename: "a.jpg", Modified: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Data: []byte("first")},
		{Filename: "b.jpg", Data: []byte("second")},
	}
	var buf bytes.Buffer
	if err := Write(&buf, assets); err != nil {
		t.Fatalf("Write: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("files = %d", len(zr.File))
	}
	for i, f := range zr.File {
		if f.Name != assets[i].Filename {
			t.Fatalf("file %d name = %q", i, f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if !bytes.Equal(data, assets[i].Data) {
			t.Fatalf("file %d data = %q", i, data)
		}
	}
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil || len(zr.File) != 0 {
		t.Fatalf("empty archive = %v, %v", zr, err)
	}
}
