// Package indexer implements the build step: it flattens the manifest tree
// into an ordered index of hashed files and bundles text resources into the
// content-addressable map.
package indexer

import (
	"context"
	"path/filepath"
	"runtime"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/skyline93/strvct/internal/strvct"
	"golang.org/x/sync/errgroup"
)

// Options configures an Indexer.
type Options struct {
	// Manifest is the root manifest, relative to the root directory.
	Manifest string
	// OutDir receives the artifacts, relative to the root directory.
	OutDir string
	// Workers is the number of files read and hashed concurrently.
	Workers uint
}

// ApplyDefaults returns a copy of o with unset fields filled in.
func (o Options) ApplyDefaults() Options {
	if o.Manifest == "" {
		o.Manifest = strvct.ManifestName
	}
	if o.OutDir == "" {
		o.OutDir = strvct.BuildDir
	}
	if o.Workers == 0 {
		o.Workers = uint(runtime.GOMAXPROCS(0))
	}
	return o
}

// Indexer builds the index and CAM for the app rooted at a directory.
type Indexer struct {
	root string
	opts Options
}

// New returns an Indexer for the directory root.
func New(root string, opts Options) *Indexer {
	return &Indexer{root: root, opts: opts.ApplyDefaults()}
}

// Result holds everything one build produced.
type Result struct {
	Paths     []string
	Index     strvct.IndexFile
	CAM       strvct.CAM
	Artifacts []Artifact
}

// Build resolves the manifest tree and computes index and CAM. Nothing is
// written.
func (ix *Indexer) Build(ctx context.Context) (*Result, error) {
	paths, err := ResolveManifest(ix.root, ix.opts.Manifest)
	if err != nil {
		return nil, err
	}
	paths = uniquePaths(paths)

	idx, cam, err := ix.hashAll(ctx, paths, true)
	if err != nil {
		return nil, err
	}

	return &Result{Paths: paths, Index: idx, CAM: cam}, nil
}

// Run builds index and CAM and writes all artifacts to the output directory.
func (ix *Indexer) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	res, err := ix.Build(ctx)
	if err != nil {
		return nil, err
	}

	res.Artifacts, err = WriteArtifacts(filepath.Join(ix.root, ix.opts.OutDir), res.Index, res.CAM)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"files":   len(res.Index),
		"cam":     len(res.CAM),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("build complete")
	return res, nil
}

// BuildIndex computes one entry per path, in the order given.
func (ix *Indexer) BuildIndex(ctx context.Context, paths []string) (strvct.IndexFile, error) {
	idx, _, err := ix.hashAll(ctx, paths, false)
	return idx, err
}

// BuildCAM bundles the content of all paths with an allow-listed extension.
// Files with identical content share one entry.
func (ix *Indexer) BuildCAM(ctx context.Context, paths []string) (strvct.CAM, error) {
	var bundled []string
	for _, p := range paths {
		if strvct.CanBeBundled(p) {
			bundled = append(bundled, p)
		}
	}

	_, cam, err := ix.hashAll(ctx, bundled, true)
	return cam, err
}

// hashAll reads and hashes all paths concurrently. When withCAM is set, the
// content of bundleable files is collected into a CAM.
func (ix *Indexer) hashAll(ctx context.Context, paths []string, withCAM bool) (strvct.IndexFile, strvct.CAM, error) {
	entries := make(strvct.IndexFile, len(paths))
	data := make([][]byte, len(paths))

	wg, wgCtx := errgroup.WithContext(ctx)
	hasher := NewFileHasher(wgCtx, wg, ix.root, ix.opts.Workers)

	for i, p := range paths {
		i := i
		keep := withCAM && strvct.CanBeBundled(p)
		hasher.Hash(wgCtx, p, keep, func(res HashFileResponse) {
			entries[i] = res.Entry
			data[i] = res.Data
		})
	}
	hasher.TriggerShutdown()

	if err := wg.Wait(); err != nil {
		return nil, nil, err
	}
	// workers return early without error when the parent context is done
	if err := ctx.Err(); err != nil {
		return nil, nil, errors.WithStack(err)
	}

	var cam strvct.CAM
	if withCAM {
		cam = strvct.CAM{}
		for i, buf := range data {
			if buf == nil {
				continue
			}
			if !utf8.Valid(buf) {
				log.Warnf("%v is not valid UTF-8, leaving it out of the CAM", paths[i])
				continue
			}
			id := cam.Add(string(buf))
			if !id.Equal(entries[i].Hash) {
				return nil, nil, errors.Errorf("hash of %v changed while building", paths[i])
			}
		}
	}

	return entries, cam, nil
}

// uniquePaths drops repeated paths, keeping the first occurrence so that the
// load order is that of the first mention.
func uniquePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	result := paths[:0]
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			log.Warnf("%v is listed more than once, keeping the first position", p)
			continue
		}
		seen[p] = struct{}{}
		result = append(result, p)
	}
	return result
}
