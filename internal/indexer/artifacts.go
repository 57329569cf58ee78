package indexer

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/skyline93/strvct/internal/fs"
	"github.com/skyline93/strvct/internal/strvct"
)

// Artifact describes one published file.
type Artifact struct {
	Name string
	Size int
	Hash strvct.ID
}

const (
	artifactDirMode  os.FileMode = 0755
	artifactFileMode os.FileMode = 0644
)

// WriteArtifacts writes the index, the CAM and the gzip compressed CAM to
// dir. Each artifact gets a sidecar file holding the base64 hash of its
// bytes.
func WriteArtifacts(dir string, idx strvct.IndexFile, cam strvct.CAM) ([]Artifact, error) {
	if err := fs.MkdirAll(dir, artifactDirMode); err != nil {
		return nil, errors.WithStack(err)
	}

	indexBuf, err := strvct.MarshalArtifact(idx)
	if err != nil {
		return nil, err
	}

	camBuf, err := strvct.MarshalArtifact(cam)
	if err != nil {
		return nil, err
	}

	archive, err := Compress(camBuf)
	if err != nil {
		return nil, err
	}

	files := []struct {
		t   strvct.FileType
		buf []byte
	}{
		{strvct.IndexArtifact, indexBuf},
		{strvct.CAMFile, camBuf},
		{strvct.CAMArchive, archive},
	}

	artifacts := make([]Artifact, 0, len(files))
	for _, f := range files {
		a, err := writeArtifact(dir, f.t.Name(), f.buf)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}

	return artifacts, nil
}

func writeArtifact(dir, name string, buf []byte) (Artifact, error) {
	a := Artifact{Name: name, Size: len(buf), Hash: strvct.Hash(buf)}

	// a missing sidecar skips the check, a stale one fails it
	sidecar := filepath.Join(dir, strvct.SidecarPath(name))
	if err := fs.RemoveIfExists(sidecar); err != nil {
		return Artifact{}, errors.Wrapf(err, "remove %v", strvct.SidecarPath(name))
	}

	if err := fs.WriteFileAtomic(filepath.Join(dir, name), buf, artifactFileMode); err != nil {
		return Artifact{}, errors.Wrapf(err, "write %v", name)
	}

	if err := fs.WriteFileAtomic(sidecar, []byte(a.Hash.String()), artifactFileMode); err != nil {
		return Artifact{}, errors.Wrapf(err, "write %v", strvct.SidecarPath(name))
	}

	log.Infof("wrote %v (%d bytes, %v)", name, a.Size, a.Hash)
	return a, nil
}

// Compress returns buf compressed with gzip.
func Compress(buf []byte) ([]byte, error) {
	var out bytes.Buffer
	wr, err := gzip.NewWriterLevel(&out, gzip.BestCompression)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err := wr.Write(buf); err != nil {
		return nil, errors.Wrap(err, "gzip")
	}
	if err := wr.Close(); err != nil {
		return nil, errors.Wrap(err, "gzip")
	}
	return out.Bytes(), nil
}
