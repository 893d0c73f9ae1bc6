package report

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Bundle zips every artifact belonging to the job into <jobID>.zip inside
// dir and returns the archive path. Artifacts that were never produced are
// simply absent from the archive; a job with no artifacts yields a valid
// empty archive.
func Bundle(dir, jobID string) (string, error) {
	archivePath := filepath.Join(dir, jobID+".zip")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", &ArtifactError{Artifact: "bundle", Err: err}
	}

	f, err := os.Create(archivePath)
	if err != nil {
		return "", &ArtifactError{Artifact: "bundle", Err: err}
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, jobID) || name == jobID+".zip" {
			continue
		}
		src, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		w, err := zw.Create(name)
		if err != nil {
			src.Close()
			continue
		}
		_, _ = io.Copy(w, src)
		src.Close()
	}
	if err := zw.Close(); err != nil {
		return "", &ArtifactError{Artifact: "bundle", Err: err}
	}
	return archivePath, nil
}
