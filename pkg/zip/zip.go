// Package zip bundles stored artifacts into a zip archive.
package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"time"
)

// Asset is one file of an archive.
type Asset struct {
	Filename string
	Modified time.Time
	Data     []byte
}

// Write streams assets into w as a zip archive. JPEG payloads are stored
// without recompression.
func Write(w io.Writer, assets []Asset) error {
	zw := zip.NewWriter(w)
	for _, asset := range assets {
		hdr := &zip.FileHeader{
			Name:     asset.Filename,
			Method:   zip.Store,
			Modified: asset.Modified,
		}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("zip: add %s: %w", asset.Filename, err)
		}
		if _, err := fw.Write(asset.Data); err != nil {
			return fmt.Errorf("zip: write %s: %w", asset.Filename, err)
		}
	}
	return zw.Close()
}
