package stage

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ZipArtifacts bundles every file under dir with the given extension
// into a single archive at zipPath, overwriting any previous archive.
// It returns the number of files bundled; zero files is not an error
// and produces no archive.
func ZipArtifacts(dir, zipPath, ext string) (int, string, error) {
	var artifacts []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ext) {
			artifacts = append(artifacts, path)
		}
		return nil
	})
	if err != nil {
		return 0, "", fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	if len(artifacts) == 0 {
		return 0, "", nil
	}

	file, err := os.Create(zipPath)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create archive %s: %w", zipPath, err)
	}
	defer file.Close()

	writer := zip.NewWriter(file)
	for _, artifact := range artifacts {
		rel, err := filepath.Rel(dir, artifact)
		if err != nil {
			rel = filepath.Base(artifact)
		}
		if err := addToZip(writer, artifact, rel); err != nil {
			_ = writer.Close()
			return 0, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return 0, "", fmt.Errorf("failed to finalize archive %s: %w", zipPath, err)
	}

	return len(artifacts), zipPath, nil
}

func addToZip(writer *zip.Writer, path, name string) error {
	source, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open artifact %s: %w", path, err)
	}
	defer source.Close()

	dest, err := writer.Create(name)
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", name, err)
	}
	_, err = io.Copy(dest, source)
	return err
}
