package packager

import (
	"archive/zip"
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/dataset.export/internal/fsutil"
	"github.com/banshee-data/dataset.export/internal/nuscenes"
)

// manifestFiles lists every file a finished dataset contains, relative to
// the output root, in a stable order: payloads, maps, tables, then the
// report when one was written.
func manifestFiles(fsys fsutil.FileSystem, root string, tables *nuscenes.TableSet) []string {
	files := make([]string, 0, len(tables.SampleData)+len(tables.Maps)+14)
	for _, sd := range tables.SampleData {
		files = append(files, sd.Filename)
	}
	for _, m := range tables.Maps {
		files = append(files, m.Filename)
	}
	for _, tf := range tables.Files() {
		files = append(files, tablesDir+"/"+tf.Name)
	}
	if fsys.Exists(filepath.Join(root, reportFilename)) {
		files = append(files, reportFilename)
	}
	return files
}

// writeArchive zips the named files into dest. Entry names keep their
// root-relative paths, so unpacking reproduces the output tree.
func writeArchive(fsys fsutil.FileSystem, root, dest string, files []string) error {
	out, err := fsys.Create(dest)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	zw := zip.NewWriter(out)
	for _, rel := range files {
		src, err := fsys.Open(filepath.Join(root, rel))
		if err != nil {
			zw.Close()
			out.Close()
			return fmt.Errorf("archive %s: %w", rel, err)
		}
		w, err := zw.Create(rel)
		if err == nil {
			_, err = io.Copy(w, src)
		}
		src.Close()
		if err != nil {
			zw.Close()
			out.Close()
			return fmt.Errorf("archive %s: %w", rel, err)
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("finalize archive: %w", err)
	}
	return out.Close()
}
