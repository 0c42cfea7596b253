package zip

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/primait/nembo/tools/filesystem/files"
)

// ZipDirectory packs the contents of srcDir into a deployment package at
// destPath. Entries are walked in lexical order so the same tree always
// produces the same member sequence.
func ZipDirectory(srcDir string, destPath string) error {
	srcDir = files.NormalizePath(srcDir)

	filePtr, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer filePtr.Close()

	writer := zip.NewWriter(filePtr)
	defer writer.Close()

	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		entry, err := writer.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(entry, src)
		return err
	})
}
